// Package migrations holds the postgres schema as goose Go migrations
package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/sweetmon/triage-api/internal/logger"
)

var tracer = otel.Tracer(
	"github.com/sweetmon/triage-api/cmd/server/internal/migrations",
)

func rawDB(db *gorm.DB) (*sql.DB, error) {
	raw, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return raw, nil
}

// Up applies every pending migration and logs the resulting schema version
func Up(ctx context.Context, db *gorm.DB) error {
	ctx, span := tracer.Start(ctx, "Up")
	defer span.End()

	raw, err := rawDB(db)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get sql db")
		return err
	}

	if err := goose.UpContext(ctx, raw, "."); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to bring migrations up")
		return fmt.Errorf("failed to bring migrations up: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read schema version")
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	span.SetAttributes(attribute.Int64("schema.version", version))
	logger.Logger.InfoContext(ctx, "schema migrated", "version", version)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "brought migrations up")
	return nil
}

// Down rolls every migration back. Only tests use it
func Down(ctx context.Context, db *gorm.DB) error {
	ctx, span := tracer.Start(ctx, "Down")
	defer span.End()

	raw, err := rawDB(db)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get sql db")
		return err
	}

	if err := goose.DownToContext(ctx, raw, ".", 0); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to bring migrations down")
		return fmt.Errorf("failed to bring migrations down: %w", err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "brought migrations down")
	return nil
}

type statement struct {
	query string
	args  []any
}

// runs in order, stopping at the first failure
func execStatements(ctx context.Context, tx *sql.Tx, statements ...statement) error {
	for i, s := range statements {
		if _, err := tx.ExecContext(ctx, s.query, s.args...); err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}

	return nil
}
