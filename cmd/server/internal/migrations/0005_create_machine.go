package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0005, Down0005)
}

func Up0005(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE machine (
    id UUID PRIMARY KEY DEFAULT triage_uuidv7(),
    owner_id UUID NOT NULL REFERENCES owner (id),
    token TEXT NOT NULL,
    fuzzer_name TEXT NOT NULL,
    target TEXT NOT NULL DEFAULT '',
    pub_ip TEXT NOT NULL DEFAULT '',
    pri_ip TEXT NOT NULL DEFAULT '',
    crash_count BIGINT NOT NULL DEFAULT 0,
    testcase_count BIGINT NOT NULL DEFAULT 0,
    ping TIMESTAMP WITH TIME ZONE NOT NULL,
    reg_date TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE INDEX machine_owner_id_index ON machine (owner_id);`},
	)
}

func Down0005(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE machine;`)
	return err
}
