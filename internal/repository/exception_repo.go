package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/custodia/backoffice/internal/domain"
)

type ExceptionRepo struct {
	db *sql.DB
}

func NewExceptionRepo(db *sql.DB) *ExceptionRepo {
	return &ExceptionRepo{db: db}
}

func (r *ExceptionRepo) Insert(e *domain.Exception) error {
	var breakID any
	if e.BreakID != "" {
		breakID = e.BreakID
	}
	_, err := r.db.Exec(
		`INSERT INTO exceptions
		(id, category, severity, status, description, break_id, trade_id,
		 assigned_to, created_at, sla_minutes, root_cause, resolution)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Category, string(e.Severity), string(e.Status), e.Description,
		breakID, e.TradeID, e.AssignedTo, e.CreatedAt.Format(time.RFC3339),
		e.SLAMinutes, e.RootCause, e.Resolution,
	)
	return err
}

// InsertForBreak inserts unless the break already has an exception (UNIQUE
// break_id). Returns true when a row was actually created, making the cutoff
// sweep idempotent.
func (r *ExceptionRepo) InsertForBreak(e *domain.Exception) (bool, error) {
	res, err := r.db.Exec(
		`INSERT OR IGNORE INTO exceptions
		(id, category, severity, status, description, break_id, trade_id,
		 assigned_to, created_at, sla_minutes, root_cause, resolution)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Category, string(e.Severity), string(e.Status), e.Description,
		e.BreakID, e.TradeID, e.AssignedTo, e.CreatedAt.Format(time.RFC3339),
		e.SLAMinutes, e.RootCause, e.Resolution,
	)
	if err != nil {
		return false, err
	}
	ra, _ := res.RowsAffected()
	return ra > 0, nil
}

func (r *ExceptionRepo) GetByID(id string) (*domain.Exception, error) {
	row := r.db.QueryRow(selectExceptions+" WHERE id = ?", id)
	e, err := scanException(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

type ExceptionFilter struct {
	Status     string
	Severity   string
	Category   string
	AssignedTo string
	Search     string
	Page       int
	Limit      int
}

func (r *ExceptionRepo) List(f ExceptionFilter) ([]domain.Exception, int, error) {
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
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, f.Category)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to = ?")
		args = append(args, f.AssignedTo)
	}
	if f.Search != "" {
		clauses = append(clauses, "(id LIKE ? OR category LIKE ? OR description LIKE ? OR trade_id LIKE ?)")
		pat := "%" + f.Search + "%"
		args = append(args, pat, pat, pat, pat)
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM exceptions"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := selectExceptions + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	excs, err := scanExceptions(rows)
	return excs, total, err
}

// ListNonTerminal returns every exception the SLA tick still cares about.
func (r *ExceptionRepo) ListNonTerminal() ([]domain.Exception, error) {
	rows, err := r.db.Query(selectExceptions + " WHERE status != 'resolved' ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExceptions(rows)
}

// Acknowledge moves open → in_progress. Returns false when the exception was
// not in open.
func (r *ExceptionRepo) Acknowledge(id string) (bool, error) {
	res, err := r.db.Exec(
		"UPDATE exceptions SET status = 'in_progress' WHERE id = ? AND status = 'open'", id,
	)
	if err != nil {
		return false, err
	}
	ra, _ := res.RowsAffected()
	return ra > 0, nil
}

// Escalate moves in_progress → escalated. The status guard in the WHERE
// clause is what makes the tick safe against a concurrent resolve: if the
// exception went terminal first, no row matches and nothing is written.
func (r *ExceptionRepo) Escalate(id string) (bool, error) {
	res, err := r.db.Exec(
		"UPDATE exceptions SET status = 'escalated' WHERE id = ? AND status = 'in_progress'", id,
	)
	if err != nil {
		return false, err
	}
	ra, _ := res.RowsAffected()
	return ra > 0, nil
}

// ResolveWithBreak resolves the exception and its originating break in a
// single transaction, so a crash between the two writes can never leave the
// exception resolved with the break still open. Returns whether the
// exception transition won and whether the break row actually flipped.
func (r *ExceptionRepo) ResolveWithBreak(id, breakID, rootCause, resolution string, at time.Time) (bool, bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stamp := at.Format(time.RFC3339)
	res, err := tx.Exec(
		`UPDATE exceptions SET status = 'resolved', root_cause = ?, resolution = ?, resolved_at = ?
		WHERE id = ? AND status != 'resolved'`,
		rootCause, resolution, stamp, id,
	)
	if err != nil {
		return false, false, err
	}
	ra, _ := res.RowsAffected()
	if ra == 0 {
		return false, false, nil
	}

	brkResolved := false
	if breakID != "" {
		res, err = tx.Exec(
			"UPDATE breaks SET status = 'resolved', resolved_at = ? WHERE id = ? AND status = 'open'",
			stamp, breakID,
		)
		if err != nil {
			return false, false, err
		}
		bra, _ := res.RowsAffected()
		brkResolved = bra > 0
	}

	if err := tx.Commit(); err != nil {
		return false, false, fmt.Errorf("commit: %w", err)
	}
	return true, brkResolved, nil
}

// UpdateAssignee reassigns a non-terminal exception.
func (r *ExceptionRepo) UpdateAssignee(id, assignedTo string) (bool, error) {
	res, err := r.db.Exec(
		"UPDATE exceptions SET assigned_to = ? WHERE id = ? AND status != 'resolved'",
		assignedTo, id,
	)
	if err != nil {
		return false, err
	}
	ra, _ := res.RowsAffected()
	return ra > 0, nil
}

func (r *ExceptionRepo) CountByStatus() (map[string]int, error) {
	return r.groupCount("status")
}

func (r *ExceptionRepo) CountBySeverity() (map[string]int, error) {
	return r.groupCount("severity")
}

func (r *ExceptionRepo) groupCount(col string) (map[string]int, error) {
	rows, err := r.db.Query(
		fmt.Sprintf("SELECT %s, COUNT(*) FROM exceptions GROUP BY %s", col, col),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m := make(map[string]int)
	for rows.Next() {
		var k string
		var v int
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, rows.Err()
}

// --- helpers ---

const selectExceptions = `SELECT id, category, severity, status, description,
	break_id, trade_id, assigned_to, created_at, sla_minutes,
	root_cause, resolution, resolved_at FROM exceptions`

func scanException(row rowScanner) (*domain.Exception, error) {
	var e domain.Exception
	var severity, status, createdAt string
	var description, breakID, tradeID, rootCause, resolution, resolvedAt sql.NullString

	err := row.Scan(
		&e.ID, &e.Category, &severity, &status, &description,
		&breakID, &tradeID, &e.AssignedTo, &createdAt, &e.SLAMinutes,
		&rootCause, &resolution, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Severity = domain.ExceptionSeverity(severity)
	e.Status = domain.ExceptionStatus(status)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.Description = description.String
	e.BreakID = breakID.String
	e.TradeID = tradeID.String
	e.RootCause = rootCause.String
	e.Resolution = resolution.String
	if resolvedAt.Valid {
		t, _ := time.Parse(time.RFC3339, resolvedAt.String)
		e.ResolvedAt = &t
	}
	return &e, nil
}

func scanExceptions(rows *sql.Rows) ([]domain.Exception, error) {
	var excs []domain.Exception
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		excs = append(excs, *e)
	}
	return excs, rows.Err()
}
