package store

import (
	"context"
	"database/sql"
)

func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}

	if v >= 1 {
		return tx.Commit()
	}

	// ---- Schema v1 ----

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS offers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  row_key TEXT NOT NULL,
  company TEXT NOT NULL,
  category TEXT NOT NULL,
  branches TEXT NOT NULL,
  tenth TEXT NOT NULL,
  twelfth TEXT NOT NULL,
  cgpa TEXT NOT NULL,
  ctc TEXT NOT NULL,
  stipend TEXT NOT NULL,
  last_date TEXT NOT NULL,
  application_source TEXT NOT NULL,
  application_status TEXT NOT NULL,
  registration_links TEXT NOT NULL,
  mail_date TEXT NOT NULL,
  mail_time TEXT NOT NULL,
  archived_at TEXT NOT NULL
);
`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
CREATE UNIQUE INDEX IF NOT EXISTS idx_offers_row_key
ON offers(row_key);
`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
CREATE INDEX IF NOT EXISTS idx_offers_company
ON offers(company);
`); err != nil {
		return err
	}

	// Mark schema v1
	if _, err := tx.ExecContext(ctx, `PRAGMA user_version = 1;`); err != nil {
		return err
	}

	return tx.Commit()
}
