package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0006, Down0006)
}

func Up0006(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE crash (
    id UUID PRIMARY KEY DEFAULT triage_uuidv7(),
    owner_id UUID NOT NULL REFERENCES owner (id),
    machine_id UUID DEFAULT NULL REFERENCES machine (id),
    title TEXT NOT NULL,
    crash_hash TEXT NOT NULL,
    crash_log TEXT NOT NULL,
    crash_file TEXT NOT NULL,
    dup_crash BIGINT NOT NULL DEFAULT 0,
    comment TEXT DEFAULT NULL,
    is_encrypted BOOLEAN NOT NULL DEFAULT FALSE,
    reg_date TIMESTAMP WITH TIME ZONE NOT NULL,
    latest_date TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE UNIQUE INDEX idx_crash_owner_hash ON crash (owner_id, crash_hash);`},
		statement{query: `
CREATE TABLE dup_crash (
    id UUID PRIMARY KEY DEFAULT triage_uuidv7(),
    owner_id UUID NOT NULL REFERENCES owner (id),
    original_crash_id UUID NOT NULL REFERENCES crash (id),
    machine_id UUID DEFAULT NULL REFERENCES machine (id),
    crash_hash TEXT NOT NULL,
    crash_file TEXT NOT NULL,
    reg_date TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE INDEX dup_crash_owner_id_index ON dup_crash (owner_id);`},
		statement{query: `
CREATE INDEX dup_crash_original_crash_id_index ON dup_crash (original_crash_id);`},
	)
}

func Down0006(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `DROP TABLE dup_crash;`},
		statement{query: `DROP TABLE crash;`},
	)
}
