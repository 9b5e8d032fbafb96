package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"placement-engine/internal/domain"
)

// Name makes *DB a sink.
func (d *DB) Name() string { return "sqlite" }

// Append archives rows in one transaction. Rows already archived (same cells,
// Sr.No and status aside) are ignored, so a re-run after a failed sheet append
// does not duplicate them here.
func (d *DB) Append(ctx context.Context, rows []domain.OutputRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT OR IGNORE INTO offers (row_key, company, category, branches, tenth, twelfth, cgpa, ctc, stipend,
  last_date, application_source, application_status, registration_links, mail_date, mail_time, archived_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("archive prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			RowKey(r),
			r[domain.ColCompany], r[domain.ColCategory], r[domain.ColBranches],
			r[domain.ColTenth], r[domain.ColTwelfth], r[domain.ColCGPA],
			r[domain.ColCTC], r[domain.ColStipend], r[domain.ColLastDate],
			r[domain.ColApplicationSource], r[domain.ColApplicationStatus], r[domain.ColRegistrationLinks],
			r[domain.ColMailDate], r[domain.ColMailTime], now,
		); err != nil {
			return fmt.Errorf("archive insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive commit: %w", err)
	}
	return nil
}

// RowKey identifies a row by its extracted content and mail timestamp.
func RowKey(r domain.OutputRow) string {
	h := sha256.New()
	for i, c := range r {
		if i == domain.ColSrNo || i == domain.ColApplicationStatus {
			continue
		}
		h.Write([]byte(strings.TrimSpace(c)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Recent returns up to limit archived rows, newest first. Sr.No holds the archive id.
func (d *DB) Recent(ctx context.Context, limit int) ([]domain.OutputRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	rows, err := d.Pool.QueryContext(ctx, `
SELECT id, company, category, branches, tenth, twelfth, cgpa, ctc, stipend,
  last_date, application_source, application_status, registration_links, mail_date, mail_time
FROM offers
ORDER BY id DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OutputRow
	for rows.Next() {
		var r domain.OutputRow
		if err := rows.Scan(
			&r[domain.ColSrNo],
			&r[domain.ColCompany], &r[domain.ColCategory], &r[domain.ColBranches],
			&r[domain.ColTenth], &r[domain.ColTwelfth], &r[domain.ColCGPA],
			&r[domain.ColCTC], &r[domain.ColStipend], &r[domain.ColLastDate],
			&r[domain.ColApplicationSource], &r[domain.ColApplicationStatus], &r[domain.ColRegistrationLinks],
			&r[domain.ColMailDate], &r[domain.ColMailTime],
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns how many rows the archive holds.
func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	err := d.Pool.QueryRowContext(ctx, `SELECT COUNT(*) FROM offers;`).Scan(&n)
	return n, err
}
