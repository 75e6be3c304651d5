package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0008, Down0008)
}

func Up0008(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE download_token (
    id UUID PRIMARY KEY DEFAULT triage_uuidv7(),
    owner_id UUID NOT NULL REFERENCES owner (id),
    token_hash TEXT NOT NULL UNIQUE,
    real_path TEXT NOT NULL,
    is_expired BOOLEAN NOT NULL DEFAULT FALSE,
    expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE INDEX download_token_owner_id_index ON download_token (owner_id);`},
	)
}

func Down0008(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE download_token;`)
	return err
}
