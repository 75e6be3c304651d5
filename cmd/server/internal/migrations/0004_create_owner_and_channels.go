package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0004, Down0004)
}

func Up0004(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE owner (
    id UUID PRIMARY KEY DEFAULT triage_uuidv7(),
    username TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE TABLE email_bot (
    id UUID PRIMARY KEY DEFAULT triage_uuidv7(),
    owner_id UUID NOT NULL REFERENCES owner (id),
    email_id TEXT NOT NULL,
    email_pw_enc TEXT NOT NULL,
    smtp_server TEXT NOT NULL,
    smtp_port INTEGER NOT NULL,
    is_public BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE INDEX email_bot_owner_id_index ON email_bot (owner_id);`},
		statement{query: `
CREATE TABLE telegram_bot (
    id UUID PRIMARY KEY DEFAULT triage_uuidv7(),
    owner_id UUID NOT NULL REFERENCES owner (id),
    name TEXT NOT NULL,
    key_enc TEXT NOT NULL,
    is_activated BOOLEAN NOT NULL DEFAULT FALSE,
    is_public BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE INDEX telegram_bot_owner_id_index ON telegram_bot (owner_id);`},
		statement{query: `
CREATE TABLE profile (
    id UUID PRIMARY KEY DEFAULT triage_uuidv7(),
    owner_id UUID NOT NULL UNIQUE REFERENCES owner (id),
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    alert_message TEXT NOT NULL,
    registration_key_hash TEXT NOT NULL UNIQUE,
    telegram_chat_id TEXT NOT NULL DEFAULT '',
    profile_image TEXT DEFAULT NULL,
    email_bot_id UUID DEFAULT NULL REFERENCES email_bot (id),
    telegram_bot_id UUID DEFAULT NULL REFERENCES telegram_bot (id),
    use_email_alert BOOLEAN NOT NULL DEFAULT FALSE,
    use_telegram_alert BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
	)
}

func Down0004(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `DROP TABLE profile;`},
		statement{query: `DROP TABLE telegram_bot;`},
		statement{query: `DROP TABLE email_bot;`},
		statement{query: `DROP TABLE owner;`},
	)
}
