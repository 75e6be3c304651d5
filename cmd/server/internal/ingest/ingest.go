// Package ingest turns a machine's crash report into a canonical or duplicate crash record.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/internal/artifact"
	"github.com/sweetmon/triage-api/internal/audit"
	"github.com/sweetmon/triage-api/internal/hash"
	"github.com/sweetmon/triage-api/internal/logger"
	"github.com/sweetmon/triage-api/internal/normalize"
	"github.com/sweetmon/triage-api/internal/types"
)

const name = "github.com/sweetmon/triage-api/cmd/server/internal/ingest"

var (
	tracer = otel.Tracer(name)
	meter  = otel.Meter(name)
)

const (
	DefaultExcerptLength = 512

	// a lost insert race is retried once as a duplicate
	maxAttempts = 2
)

var errRaceLost = errors.New("canonical insert lost a race")

type Index interface {
	Lock(ownerID uuid.UUID, fingerprint string) func()
	Lookup(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, fingerprint string) (*models.Crash, error)
	RecordDuplicate(ctx context.Context, tx *gorm.DB, canonicalID uuid.UUID, seenAt time.Time) error
}

// Receives an event for every committed submission. Must not block
type Publisher interface {
	Publish(ctx context.Context, event types.NotificationEvent)
}

type Submission struct {
	OwnerID     uuid.UUID
	MachineID   *uuid.UUID
	Title       string
	CrashLog    string
	Artifact    []byte
	Filename    string
	IsEncrypted bool
	// when the server received the crash, defaults to the pipeline clock
	ReceivedAt time.Time
}

type Result struct {
	Fingerprint string
	Artifact    artifact.Ref
	RecordID    uuid.UUID
	CanonicalID uuid.UUID
	IsNew       bool
}

type Pipeline struct {
	db            *gorm.DB
	store         *artifact.Store
	index         Index
	normalizer    normalize.Normalizer
	publisher     Publisher
	now           func() time.Time
	ingested      metric.Int64Counter
	excerptLength int
}

type Option func(*Pipeline)

func WithExcerptLength(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.excerptLength = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(
	db *gorm.DB,
	store *artifact.Store,
	index Index,
	normalizer normalize.Normalizer,
	publisher Publisher,
	opts ...Option,
) (*Pipeline, error) {
	ingested, err := meter.Int64Counter(
		"triage.crashes.ingested",
		metric.WithDescription("crash submissions committed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	p := &Pipeline{
		db:            db,
		store:         store,
		index:         index,
		normalizer:    normalizer,
		publisher:     publisher,
		now:           func() time.Time { return time.Now().UTC() },
		ingested:      ingested,
		excerptLength: DefaultExcerptLength,
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Fingerprint of a crash log under the pipeline's normalization policy
func (p *Pipeline) Fingerprint(crashLog string) string {
	return hash.Fingerprint(p.normalizer.Normalize([]byte(crashLog)))
}

// Submit records a crash for the owner.
//
// The first submission of a fingerprint creates the canonical crash. Every later one creates a
// duplicate row pointing at it and bumps its counter. The artifact is written before the metadata is
// committed: a failed write leaves no row behind, and a failed commit removes the written artifact.
func (p *Pipeline) Submit(ctx context.Context, sub Submission) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Submit", trace.WithAttributes(
		attribute.String("owner.id", sub.OwnerID.String()),
		attribute.Int("artifact.length", len(sub.Artifact)),
	))
	defer span.End()

	auditContext := audit.Context{OwnerID: ptr(sub.OwnerID.String())}
	if sub.MachineID != nil {
		auditContext.MachineID = ptr(sub.MachineID.String())
		span.SetAttributes(attribute.String("machine.id", sub.MachineID.String()))
	}

	if err := p.authorize(ctx, sub); err != nil {
		var authErr AuthError
		if errors.As(err, &authErr) {
			audit.LogCrashRejected(auditContext, authErr.Reason)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to authorize submission")
		return nil, err
	}

	fingerprint := p.Fingerprint(sub.CrashLog)
	span.SetAttributes(
		attribute.String("fingerprint", fingerprint),
		attribute.String("normalizer", p.normalizer.Name()),
	)

	span.AddEvent("waiting_for_key")
	unlock := p.index.Lock(sub.OwnerID, fingerprint)
	defer unlock()

	var (
		result *Result
		err    error
	)
	for attempt := range maxAttempts {
		result, err = p.submitOnce(ctx, sub, fingerprint)
		if !errors.Is(err, errRaceLost) {
			break
		}

		logger.Logger.InfoContext(
			ctx,
			"duplicate race resolved",
			"owner", sub.OwnerID,
			"fingerprint", fingerprint,
			"attempt", attempt+1,
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record crash")
		return nil, err
	}

	p.ingested.Add(ctx, 1, metric.WithAttributes(attribute.Bool("new", result.IsNew)))
	span.SetAttributes(
		attribute.String("crash.id", result.RecordID.String()),
		attribute.String("crash.canonical_id", result.CanonicalID.String()),
		attribute.Bool("crash.new", result.IsNew),
	)

	audit.LogCrashSubmission(
		auditContext,
		result.RecordID.String(),
		result.CanonicalID.String(),
		fingerprint,
		result.Artifact.String(),
		result.IsNew,
	)

	p.publisher.Publish(ctx, types.NotificationEvent{
		OwnerID:     sub.OwnerID.String(),
		RecordID:    result.RecordID.String(),
		Title:       sub.Title,
		Excerpt:     excerpt(sub.CrashLog, p.excerptLength),
		Fingerprint: fingerprint,
		IsNew:       result.IsNew,
	})

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "recorded crash")
	return result, nil
}

func (p *Pipeline) authorize(ctx context.Context, sub Submission) error {
	ctx, span := tracer.Start(ctx, "Pipeline.authorize")
	defer span.End()

	exists, err := models.Exists[models.Owner](ctx, p.db, "id = ?", sub.OwnerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check owner")
		return fmt.Errorf("failed to check owner: %w", err)
	}
	if !exists {
		span.SetStatus(codes.Error, "unknown owner")
		return AuthError{Reason: "unknown owner"}
	}

	if sub.MachineID != nil {
		exists, err = models.Exists[models.Machine](
			ctx,
			p.db,
			"id = ? AND owner_id = ?",
			*sub.MachineID,
			sub.OwnerID,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to check machine")
			return fmt.Errorf("failed to check machine: %w", err)
		}
		if !exists {
			span.SetStatus(codes.Error, "machine does not belong to owner")
			return AuthError{Reason: "machine does not belong to owner"}
		}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "authorized")
	return nil
}

func (p *Pipeline) submitOnce(ctx context.Context, sub Submission, fingerprint string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.submitOnce")
	defer span.End()

	now := sub.ReceivedAt
	if now.IsZero() {
		now = p.now()
	}
	recordID, err := uuid.NewV7()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to generate id")
		return nil, err
	}
	ref := artifact.Ref{Root: artifact.RootCrash, Key: artifact.CrashKey(recordID, sub.Filename)}

	result := &Result{Fingerprint: fingerprint, Artifact: ref, RecordID: recordID}
	written := false

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		canonical, err := p.index.Lookup(ctx, tx, sub.OwnerID, fingerprint)
		if err != nil {
			return err
		}

		if canonical == nil {
			span.AddEvent("new_fingerprint")
			crash := models.Crash{
				Model:       models.Model{ID: recordID},
				OwnerID:     sub.OwnerID,
				MachineID:   sub.MachineID,
				Title:       sub.Title,
				CrashHash:   fingerprint,
				CrashLog:    sub.CrashLog,
				CrashFile:   ref.String(),
				RegDate:     now,
				LatestDate:  now,
				IsEncrypted: sub.IsEncrypted,
			}
			if err := tx.Create(&crash).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return errRaceLost
				}
				return fmt.Errorf("failed to create crash: %w", err)
			}

			result.IsNew = true
			result.CanonicalID = recordID
		} else {
			span.AddEvent("duplicate_fingerprint")
			dup := models.DupCrash{
				Model:           models.Model{ID: recordID},
				OwnerID:         sub.OwnerID,
				OriginalCrashID: canonical.ID,
				MachineID:       sub.MachineID,
				CrashHash:       fingerprint,
				CrashFile:       ref.String(),
				RegDate:         now,
			}
			if err := tx.Create(&dup).Error; err != nil {
				return fmt.Errorf("failed to create duplicate crash: %w", err)
			}

			if err := p.index.RecordDuplicate(ctx, tx, canonical.ID, now); err != nil {
				return err
			}

			result.CanonicalID = canonical.ID
		}

		if sub.MachineID != nil {
			err := tx.Model(&models.Machine{}).
				Where("id = ?", *sub.MachineID).
				Updates(map[string]any{
					"crash_count": gorm.Expr("crash_count + ?", 1),
					"ping":        now,
				}).Error
			if err != nil {
				return fmt.Errorf("failed to update machine: %w", err)
			}
		}

		span.AddEvent("persisting_artifact")
		if _, err := p.store.Persist(ctx, ref.Root, ref.Key, sub.Artifact); err != nil {
			return StorageError{Err: err}
		}
		written = true

		return nil
	})
	if err != nil {
		if written {
			span.AddEvent("compensating_delete")
			if delErr := p.store.Delete(context.WithoutCancel(ctx), ref); delErr != nil {
				logger.Logger.ErrorContext(
					ctx,
					"failed to remove artifact of rolled back crash",
					"artifact", ref.String(),
					"error", delErr,
				)
			}
		}

		if !errors.Is(err, errRaceLost) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to commit crash")
		}
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "committed crash")
	return result, nil
}

// excerpt cuts s to at most n runes
func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	runes := []rune(s)
	return string(runes[:n])
}

func ptr[T any](v T) *T {
	return &v
}
