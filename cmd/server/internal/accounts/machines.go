package accounts

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/internal/audit"
	"github.com/sweetmon/triage-api/internal/hash"
	"github.com/sweetmon/triage-api/internal/types"
)

// Compared against when the machine is unknown so a miss costs the same as a wrong token
var defaultHashForError = func() string {
	h, err := argon2id.CreateHash(
		"pNwS0EqRzXc2bq1Jp8y/5lVtH0ugkQ3WfUeDcv7mXz9gOaLr4=",
		argon2id.DefaultParams,
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create default hash: %v", err))
	}
	return h
}()

func fakePasswordHash(ctx context.Context) {
	_, span := tracer.Start(ctx, "fakePasswordHash")
	defer span.End()

	if _, err := argon2id.ComparePasswordAndHash("not a machine token", defaultHashForError); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to compare fake token")
		return
	}

	span.AddEvent("compared fake token")
}

// RegisterMachine binds a new machine to the owner whose registration key matches. The returned token
// is only ever shown here
func (s *Service) RegisterMachine(
	ctx context.Context,
	req types.MachineRegistration,
) (uuid.UUID, string, error) {
	ctx, span := tracer.Start(ctx, "Service.RegisterMachine", trace.WithAttributes(
		attribute.String("fuzzer_name", req.FuzzerName),
		attribute.String("pub_ip", req.PubIP),
	))
	defer span.End()

	db := s.db.WithContext(ctx)

	var profile models.Profile
	err := db.Where("registration_key_hash = ?", digest(req.RegistrationKey)).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		audit.LogMachineRejected(audit.Context{}, "invalid registration key", req.PubIP)
		span.SetStatus(codes.Error, "invalid registration key")
		return uuid.Nil, "", ErrInvalidRegistrationKey
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to look up registration key")
		return uuid.Nil, "", fmt.Errorf("failed to look up registration key: %w", err)
	}

	token, err := hash.PathToken()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to generate token")
		return uuid.Nil, "", err
	}

	tokenHash, err := argon2id.CreateHash(token, argon2id.DefaultParams)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to hash token")
		return uuid.Nil, "", err
	}

	now := s.now()
	machine := models.Machine{
		OwnerID:    profile.OwnerID,
		Token:      tokenHash,
		FuzzerName: req.FuzzerName,
		Target:     req.Target,
		PubIP:      req.PubIP,
		PriIP:      req.PriIP,
		Ping:       now,
		RegDate:    now,
	}
	if err := db.Create(&machine).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create machine")
		return uuid.Nil, "", fmt.Errorf("failed to create machine: %w", err)
	}

	ownerID := profile.OwnerID.String()
	machineID := machine.ID.String()
	audit.LogMachineRegistered(
		audit.Context{OwnerID: &ownerID, MachineID: &machineID},
		req.FuzzerName,
		req.Target,
		req.PubIP,
	)

	span.SetAttributes(attribute.String("machine.id", machineID))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "registered machine")
	return machine.ID, token, nil
}

// AuthenticateMachine checks a machine's credentials. Unknown ids and malformed ids cost as much as
// a wrong token and all of them come back as ErrInvalidCredentials
func (s *Service) AuthenticateMachine(
	ctx context.Context,
	rawID string,
	token string,
) (*models.Machine, error) {
	ctx, span := tracer.Start(ctx, "Service.AuthenticateMachine", trace.WithAttributes(
		attribute.String("id.raw", rawID),
	))
	defer span.End()

	db := s.db.WithContext(ctx)

	id, err := uuid.Parse(rawID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse rawID as a uuid")
		_, _ = models.ByID[models.Machine](ctx, db, uuid.New())
		fakePasswordHash(ctx)
		return nil, ErrInvalidCredentials
	}

	machine, err := models.ByID[models.Machine](ctx, db, id)
	if err != nil {
		fakePasswordHash(ctx)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "machine not found")
			return nil, ErrInvalidCredentials
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load machine")
		return nil, fmt.Errorf("failed to load machine: %w", err)
	}

	match, params, err := argon2id.CheckHash(token, machine.Token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check token")
		return nil, fmt.Errorf("failed to check token: %w", err)
	}
	if !match {
		span.AddEvent("failed login attempt")
		span.SetStatus(codes.Ok, "token mismatch")
		return nil, ErrInvalidCredentials
	}

	if !reflect.DeepEqual(params, argon2id.DefaultParams) {
		span.AddEvent("rehashing token with current params")
		newHash, err := argon2id.CreateHash(token, argon2id.DefaultParams)
		if err == nil {
			err = db.Model(machine).Update("token", newHash).Error
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to rehash token")
			return nil, fmt.Errorf("failed to rehash token: %w", err)
		}
	}

	span.SetAttributes(attribute.String("owner.id", machine.OwnerID.String()))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "authenticated machine")
	return machine, nil
}

// Heartbeat refreshes the machine's last ping and, when given, its addresses
func (s *Service) Heartbeat(ctx context.Context, machineID uuid.UUID, hb types.Heartbeat) error {
	ctx, span := tracer.Start(ctx, "Service.Heartbeat", trace.WithAttributes(
		attribute.String("machine.id", machineID.String()),
	))
	defer span.End()

	updates := map[string]any{"ping": s.now()}
	if hb.PubIP != "" {
		updates["pub_ip"] = hb.PubIP
	}
	if hb.PriIP != "" {
		updates["pri_ip"] = hb.PriIP
	}

	result := s.db.WithContext(ctx).
		Model(&models.Machine{}).
		Where("id = ?", machineID).
		Updates(updates)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to update machine")
		return fmt.Errorf("failed to update machine: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		span.SetStatus(codes.Error, "unknown machine")
		return ErrNotFound
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "recorded heartbeat")
	return nil
}
