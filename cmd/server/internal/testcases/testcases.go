// Package testcases stores testcases and fuzzers that machines hand in alongside crashes.
package testcases

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/sweetmon/triage-api/cmd/server/internal/ingest"
	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/internal/artifact"
	"github.com/sweetmon/triage-api/internal/audit"
	"github.com/sweetmon/triage-api/internal/logger"
)

var tracer = otel.Tracer("github.com/sweetmon/triage-api/cmd/server/internal/testcases")

type Submission struct {
	OwnerID     uuid.UUID
	MachineID   uuid.UUID
	Title       string
	FuzzerName  string
	Target      string
	Description string
	TestcaseURL string
	FuzzerURL   string
	// both optional
	Testcase []byte
	Fuzzer   []byte
}

type Service struct {
	db    *gorm.DB
	store *artifact.Store
}

func NewService(db *gorm.DB, store *artifact.Store) *Service {
	return &Service{db: db, store: store}
}

// Submit writes the blobs under random names, then commits the row. Blobs of a submission that fails
// to commit are removed again
func (s *Service) Submit(ctx context.Context, sub Submission) (uuid.UUID, error) {
	ctx, span := tracer.Start(ctx, "Service.Submit", trace.WithAttributes(
		attribute.String("owner.id", sub.OwnerID.String()),
		attribute.String("machine.id", sub.MachineID.String()),
		attribute.Int("testcase.length", len(sub.Testcase)),
		attribute.Int("fuzzer.length", len(sub.Fuzzer)),
	))
	defer span.End()

	var (
		mu      sync.Mutex
		written []artifact.Ref
	)
	persist := func(ctx context.Context, root artifact.Root, data []byte) (*artifact.Ref, error) {
		if len(data) == 0 {
			return nil, nil
		}
		ref, err := s.store.PersistRandom(ctx, root, data, "")
		if err != nil {
			return nil, ingest.StorageError{Err: err}
		}
		mu.Lock()
		written = append(written, ref)
		mu.Unlock()
		return &ref, nil
	}

	var testcaseRef, fuzzerRef *artifact.Ref
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		ref, err := persist(egctx, artifact.RootTestcase, sub.Testcase)
		testcaseRef = ref
		return err
	})
	eg.Go(func() error {
		ref, err := persist(egctx, artifact.RootFuzzer, sub.Fuzzer)
		fuzzerRef = ref
		return err
	})

	span.AddEvent("persisting_artifacts")
	err := eg.Wait()

	var row models.Testcase
	if err == nil {
		row = models.Testcase{
			OwnerID:      sub.OwnerID,
			MachineID:    &sub.MachineID,
			Title:        sub.Title,
			FuzzerName:   sub.FuzzerName,
			Target:       sub.Target,
			Description:  sub.Description,
			TestcaseURL:  sub.TestcaseURL,
			FuzzerURL:    sub.FuzzerURL,
			TestcaseFile: models.NewNull(refString(testcaseRef)),
			FuzzerFile:   models.NewNull(refString(fuzzerRef)),
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to create testcase: %w", err)
			}

			result := tx.Model(&models.Machine{}).
				Where("id = ? AND owner_id = ?", sub.MachineID, sub.OwnerID).
				Update("testcase_count", gorm.Expr("testcase_count + ?", 1))
			if result.Error != nil {
				return fmt.Errorf("failed to update machine: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return ingest.AuthError{Reason: "machine does not belong to owner"}
			}
			return nil
		})
	}
	if err != nil {
		for _, ref := range written {
			if delErr := s.store.Delete(context.WithoutCancel(ctx), ref); delErr != nil {
				logger.Logger.ErrorContext(
					ctx,
					"failed to remove artifact of rolled back testcase",
					"artifact", ref.String(),
					"error", delErr,
				)
			}
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record testcase")
		return uuid.Nil, err
	}

	ownerID := sub.OwnerID.String()
	machineID := sub.MachineID.String()
	audit.LogTestcaseSubmission(
		audit.Context{OwnerID: &ownerID, MachineID: &machineID},
		row.ID.String(),
		sub.FuzzerName,
		refString(testcaseRef),
		refString(fuzzerRef),
	)

	span.SetAttributes(attribute.String("testcase.id", row.ID.String()))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "recorded testcase")
	return row.ID, nil
}

func refString(ref *artifact.Ref) *string {
	if ref == nil {
		return nil
	}
	s := ref.String()
	return &s
}
