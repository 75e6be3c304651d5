package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/internal/types"
)

func crashView(c *models.Crash) types.Crash {
	var machineID *string
	if c.MachineID != nil {
		id := c.MachineID.String()
		machineID = &id
	}

	return types.Crash{
		ID:          c.ID.String(),
		MachineID:   machineID,
		Title:       c.Title,
		Fingerprint: c.CrashHash,
		CrashLog:    c.CrashLog,
		DupCrash:    c.DupCrash,
		CrashFile:   c.CrashFile,
		RegDate:     types.NewUnixMilli(c.RegDate),
		LatestDate:  types.NewUnixMilli(c.LatestDate),
		Comment:     models.PtrFromNull(c.Comment),
		IsEncrypted: c.IsEncrypted,
	}
}

func ownedCrash(ctx context.Context, db *gorm.DB, ownerID, crashID uuid.UUID) (*models.Crash, error) {
	var crash models.Crash
	err := db.WithContext(ctx).Where("id = ? AND owner_id = ?", crashID, ownerID).Take(&crash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load crash: %w", err)
	}
	return &crash, nil
}

// Crash returns a canonical crash. Crashes of other owners are reported as missing
func (s *Service) Crash(ctx context.Context, ownerID, crashID uuid.UUID) (*types.Crash, error) {
	ctx, span := tracer.Start(ctx, "Service.Crash", trace.WithAttributes(
		attribute.String("owner.id", ownerID.String()),
		attribute.String("crash.id", crashID.String()),
	))
	defer span.End()

	crash, err := ownedCrash(ctx, s.db, ownerID, crashID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load crash")
		return nil, err
	}

	view := crashView(crash)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "loaded crash")
	return &view, nil
}

// SetCrashComment replaces the comment. An empty comment clears it
func (s *Service) SetCrashComment(
	ctx context.Context,
	ownerID uuid.UUID,
	crashID uuid.UUID,
	comment string,
) (*types.Crash, error) {
	ctx, span := tracer.Start(ctx, "Service.SetCrashComment", trace.WithAttributes(
		attribute.String("owner.id", ownerID.String()),
		attribute.String("crash.id", crashID.String()),
	))
	defer span.End()

	var value *string
	if comment != "" {
		value = &comment
	}

	result := s.db.WithContext(ctx).
		Model(&models.Crash{}).
		Where("id = ? AND owner_id = ?", crashID, ownerID).
		Update("comment", models.NewNull(value))
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to update comment")
		return nil, fmt.Errorf("failed to update comment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		span.SetStatus(codes.Error, "unknown crash")
		return nil, ErrNotFound
	}

	crash, err := ownedCrash(ctx, s.db, ownerID, crashID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reload crash")
		return nil, err
	}

	view := crashView(crash)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "updated comment")
	return &view, nil
}
