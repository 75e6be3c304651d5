// Package dedup answers "have we seen this crash before" for a single owner.
//
// Two submissions with equal fingerprints under the same owner collapse onto one canonical crash row.
// Within a process the lookup-or-create step is serialized per (owner, fingerprint) with [Index.Lock];
// across processes the unique index on crash(owner_id, crash_hash) rejects the second insert.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/sweetmon/triage-api/cmd/server/internal/models"
)

const name = "github.com/sweetmon/triage-api/cmd/server/internal/dedup"

var tracer = otel.Tracer(name)

var ErrCanonicalMissing = errors.New("canonical crash does not exist")

const DefaultStripes = 256

type Index struct {
	stripes []sync.Mutex
}

func NewIndex(stripes int) *Index {
	if stripes <= 0 {
		stripes = DefaultStripes
	}
	return &Index{stripes: make([]sync.Mutex, stripes)}
}

// Lock blocks until the caller holds the key for (ownerID, fingerprint) and returns the release func.
// Unrelated keys may share a stripe
func (i *Index) Lock(ownerID uuid.UUID, fingerprint string) func() {
	h := fnv.New32a()
	_, _ = h.Write(ownerID[:])
	_, _ = h.Write([]byte(fingerprint))

	mu := &i.stripes[h.Sum32()%uint32(len(i.stripes))]
	mu.Lock()
	return mu.Unlock
}

// Lookup returns the canonical crash for the fingerprint, or nil when the owner has never seen it
func (i *Index) Lookup(
	ctx context.Context,
	tx *gorm.DB,
	ownerID uuid.UUID,
	fingerprint string,
) (*models.Crash, error) {
	ctx, span := tracer.Start(ctx, "Index.Lookup", trace.WithAttributes(
		attribute.String("owner.id", ownerID.String()),
		attribute.String("fingerprint", fingerprint),
	))
	defer span.End()

	var crash models.Crash
	err := tx.WithContext(ctx).
		Where("owner_id = ? AND crash_hash = ?", ownerID, fingerprint).
		Take(&crash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		span.AddEvent("not_found")
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "fingerprint not seen")
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to look up fingerprint")
		return nil, fmt.Errorf("failed to look up fingerprint: %w", err)
	}

	span.SetAttributes(attribute.String("crash.id", crash.ID.String()))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "fingerprint seen")
	return &crash, nil
}

// RecordDuplicate bumps the duplicate counter and latest_date of a canonical crash in one statement
func (i *Index) RecordDuplicate(
	ctx context.Context,
	tx *gorm.DB,
	canonicalID uuid.UUID,
	seenAt time.Time,
) error {
	ctx, span := tracer.Start(ctx, "Index.RecordDuplicate", trace.WithAttributes(
		attribute.String("crash.id", canonicalID.String()),
	))
	defer span.End()

	result := tx.WithContext(ctx).
		Model(&models.Crash{}).
		Where("id = ?", canonicalID).
		Updates(map[string]any{
			"dup_crash":   gorm.Expr("dup_crash + ?", 1),
			"latest_date": seenAt,
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to record duplicate")
		return fmt.Errorf("failed to record duplicate: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		span.RecordError(ErrCanonicalMissing)
		span.SetStatus(codes.Error, "canonical crash missing")
		return ErrCanonicalMissing
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "recorded duplicate")
	return nil
}
