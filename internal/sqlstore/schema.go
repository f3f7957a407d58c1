package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; schema_meta records how many have run.
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS users (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	account     TEXT NOT NULL UNIQUE,
	currency    TEXT NOT NULL DEFAULT '',
	country     TEXT NOT NULL DEFAULT '',
	risk_score  REAL NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id                 TEXT PRIMARY KEY,
	extr_id            TEXT NOT NULL UNIQUE,
	sender_name        TEXT NOT NULL,
	sender_account     TEXT NOT NULL,
	recipient_name     TEXT NOT NULL,
	recipient_account  TEXT NOT NULL,
	amount             TEXT NOT NULL,
	currency           TEXT NOT NULL,
	country            TEXT NOT NULL,
	status             TEXT NOT NULL,
	suspicious         INTEGER NOT NULL DEFAULT 0,
	suspicion_reasons  TEXT NOT NULL DEFAULT '',
	ofac_score         REAL NOT NULL DEFAULT 0,
	ofac_match         INTEGER NOT NULL DEFAULT 0,
	ofac_similarity    TEXT NOT NULL DEFAULT 'weak',
	callback_url       TEXT NOT NULL DEFAULT '',
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions(sender_account, created_at);

CREATE TABLE IF NOT EXISTS compliance_checks (
	id              TEXT PRIMARY KEY,
	transaction_id  TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
	check_type      TEXT NOT NULL,
	result          TEXT NOT NULL,
	notes           TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_compliance_checks_tx ON compliance_checks(transaction_id, created_at);
`,
	`
ALTER TABLE transactions ADD COLUMN async_outcome TEXT;
ALTER TABLE transactions ADD COLUMN async_score REAL NOT NULL DEFAULT 0;
ALTER TABLE transactions ADD COLUMN async_match INTEGER NOT NULL DEFAULT 0;
ALTER TABLE transactions ADD COLUMN async_similarity TEXT NOT NULL DEFAULT '';
ALTER TABLE transactions ADD COLUMN async_notes TEXT NOT NULL DEFAULT '';
ALTER TABLE transactions ADD COLUMN async_reviewed_at TEXT NOT NULL DEFAULT '';
`,
}

// schemaVersion is the number of migrations a current database has applied.
var schemaVersion = len(migrations)

func currentSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_meta (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_meta: %w", err)
	}

	var ver int
	err := db.QueryRowContext(ctx, `SELECT version FROM schema_meta LIMIT 1`).Scan(&ver)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return ver, err
}

func migrate(ctx context.Context, db *sql.DB) error {
	ver, err := currentSchemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}
	if ver > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", ver, schemaVersion)
	}

	for i := ver; i < schemaVersion; i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM schema_meta`); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("reset schema version: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_meta (version) VALUES (?)`, i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}
	return nil
}
