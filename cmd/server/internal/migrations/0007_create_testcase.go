package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0007, Down0007)
}

func Up0007(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE testcase (
    id UUID PRIMARY KEY DEFAULT triage_uuidv7(),
    owner_id UUID NOT NULL REFERENCES owner (id),
    machine_id UUID DEFAULT NULL REFERENCES machine (id),
    title TEXT NOT NULL,
    fuzzer_name TEXT NOT NULL DEFAULT '',
    target TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    testcase_url TEXT NOT NULL DEFAULT '',
    fuzzer_url TEXT NOT NULL DEFAULT '',
    fuzzer_file TEXT DEFAULT NULL,
    testcase_file TEXT DEFAULT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE INDEX testcase_owner_id_index ON testcase (owner_id);`},
	)
}

func Down0007(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE testcase;`)
	return err
}
