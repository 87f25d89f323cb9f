package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/custodia/backoffice/internal/domain"
)

type BreakRepo struct {
	db *sql.DB
}

func NewBreakRepo(db *sql.DB) *BreakRepo {
	return &BreakRepo{db: db}
}

// InsertNew stores newly detected breaks. A position that already has an
// open break keeps it (INSERT OR IGNORE against the open-position unique
// index) so break age survives repeated reconciliation runs.
func (r *BreakRepo) InsertNew(breaks []domain.Break) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO breaks
		(id, owner_id, owner_name, instrument, isin, reference_qty, comparison_qty,
		 qty_variance, value_variance, severity, status, detected_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range breaks {
		b := &breaks[i]
		res, err := stmt.Exec(
			b.ID, b.OwnerID, b.OwnerName, b.Instrument, b.ISIN,
			b.ReferenceQty, b.ComparisonQty, b.QuantityVariance, b.ValueVariance,
			string(b.Severity), string(b.Status), b.DetectedAt.Format(time.RFC3339),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *BreakRepo) GetByID(id string) (*domain.Break, error) {
	row := r.db.QueryRow(selectBreaks+" WHERE id = ?", id)
	b, err := scanBreak(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

type BreakFilter struct {
	Status   string
	Severity string
	OwnerID  string
}

func (r *BreakRepo) List(f BreakFilter) ([]domain.Break, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_id = ?")
		args = append(args, f.OwnerID)
	}

	q := selectBreaks
	if len(clauses) > 0 {
		q += " WHERE " + strings.Join(clauses, " AND ")
	}
	q += " ORDER BY detected_at DESC"

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBreaks(rows)
}

// GetOpenOlderThan returns open breaks detected at or before the cutoff.
func (r *BreakRepo) GetOpenOlderThan(cutoff time.Time) ([]domain.Break, error) {
	rows, err := r.db.Query(
		selectBreaks+" WHERE status = 'open' AND detected_at <= ? ORDER BY detected_at",
		cutoff.Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBreaks(rows)
}

// MarkResolved flips an open break to resolved. Returns false when the break
// was not open (already resolved or missing); the caller decides what that
// means.
func (r *BreakRepo) MarkResolved(id string, at time.Time) (bool, error) {
	res, err := r.db.Exec(
		"UPDATE breaks SET status = 'resolved', resolved_at = ? WHERE id = ? AND status = 'open'",
		at.Format(time.RFC3339), id,
	)
	if err != nil {
		return false, err
	}
	ra, _ := res.RowsAffected()
	return ra > 0, nil
}

// --- helpers ---

const selectBreaks = `SELECT id, owner_id, owner_name, instrument, isin,
	reference_qty, comparison_qty, qty_variance, value_variance,
	severity, status, detected_at, resolved_at FROM breaks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBreak(row rowScanner) (*domain.Break, error) {
	var b domain.Break
	var ownerName, resolvedAt sql.NullString
	var severity, status, detectedAt string

	err := row.Scan(
		&b.ID, &b.OwnerID, &ownerName, &b.Instrument, &b.ISIN,
		&b.ReferenceQty, &b.ComparisonQty, &b.QuantityVariance, &b.ValueVariance,
		&severity, &status, &detectedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Severity = domain.BreakSeverity(severity)
	b.Status = domain.BreakStatus(status)
	b.DetectedAt, _ = time.Parse(time.RFC3339, detectedAt)
	if ownerName.Valid {
		b.OwnerName = ownerName.String
	}
	if resolvedAt.Valid {
		t, _ := time.Parse(time.RFC3339, resolvedAt.String)
		b.ResolvedAt = &t
	}
	return &b, nil
}

func scanBreaks(rows *sql.Rows) ([]domain.Break, error) {
	var breaks []domain.Break
	for rows.Next() {
		b, err := scanBreak(rows)
		if err != nil {
			return nil, err
		}
		breaks = append(breaks, *b)
	}
	return breaks, rows.Err()
}
