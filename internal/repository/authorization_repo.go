package repository

import (
	"database/sql"
	"strings"
	"time"

	"github.com/custodia/backoffice/internal/domain"
)

type AuthorizationRepo struct {
	db *sql.DB
}

func NewAuthorizationRepo(db *sql.DB) *AuthorizationRepo {
	return &AuthorizationRepo{db: db}
}

func (r *AuthorizationRepo) Insert(a *domain.AuthorizationRequest) error {
	_, err := r.db.Exec(
		`INSERT INTO authorization_requests
		(id, subject_type, subject_id, module, action, maker, status, comments,
		 rejection_reason, checked_by, payload, submitted_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, string(a.SubjectType), a.SubjectID, a.Module, a.Action, a.Maker,
		string(a.Status), a.Comments, a.RejectionReason, a.CheckedBy, a.Payload,
		a.SubmittedAt.Format(time.RFC3339),
	)
	return err
}

func (r *AuthorizationRepo) GetByID(id string) (*domain.AuthorizationRequest, error) {
	row := r.db.QueryRow(selectAuthRequests+" WHERE id = ?", id)
	a, err := scanAuthRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// HasActiveForSubject reports whether a non-terminal request exists for the
// subject. The pending-subject unique index backstops this check against
// concurrent submissions racing past it.
func (r *AuthorizationRepo) HasActiveForSubject(subjectType domain.SubjectType, subjectID string) (bool, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM authorization_requests
		WHERE subject_type = ? AND subject_id = ? AND status = ?`,
		string(subjectType), subjectID, string(domain.RequestStatusPending),
	).Scan(&n)
	return n > 0, err
}

// Decide moves a pending request to its terminal status. The pending guard
// in the WHERE clause serializes concurrent approve/reject calls: exactly
// one caller sees true, everyone else gets false.
func (r *AuthorizationRepo) Decide(id string, to domain.RequestStatus, checkedBy, comments, rejectionReason string, at time.Time) (bool, error) {
	res, err := r.db.Exec(
		`UPDATE authorization_requests
		SET status = ?, checked_by = ?, comments = ?, rejection_reason = ?, decided_at = ?
		WHERE id = ? AND status = ?`,
		string(to), checkedBy, comments, rejectionReason,
		at.Format(time.RFC3339), id, string(domain.RequestStatusPending),
	)
	if err != nil {
		return false, err
	}
	ra, _ := res.RowsAffected()
	return ra > 0, nil
}

type AuthorizationFilter struct {
	Status string
	Module string
	Action string
	Maker  string // substring match
	Page   int
	Limit  int
}

func (r *AuthorizationRepo) List(f AuthorizationFilter) ([]domain.AuthorizationRequest, int, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		// submitted and pending_approval are the same logical state.
		if f.Status == "submitted" || f.Status == "pending" {
			f.Status = string(domain.RequestStatusPending)
		}
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.Module != "" {
		clauses = append(clauses, "module = ?")
		args = append(args, f.Module)
	}
	if f.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, f.Action)
	}
	if f.Maker != "" {
		clauses = append(clauses, "maker LIKE ?")
		args = append(args, "%"+f.Maker+"%")
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM authorization_requests"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := selectAuthRequests + where + " ORDER BY submitted_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reqs []domain.AuthorizationRequest
	for rows.Next() {
		a, err := scanAuthRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		reqs = append(reqs, *a)
	}
	return reqs, total, rows.Err()
}

// --- helpers ---

const selectAuthRequests = `SELECT id, subject_type, subject_id, module, action,
	maker, status, comments, rejection_reason, checked_by, payload,
	submitted_at, decided_at FROM authorization_requests`

func scanAuthRequest(row rowScanner) (*domain.AuthorizationRequest, error) {
	var a domain.AuthorizationRequest
	var subjectType, status, submittedAt string
	var comments, rejectionReason, checkedBy, payload, decidedAt sql.NullString

	err := row.Scan(
		&a.ID, &subjectType, &a.SubjectID, &a.Module, &a.Action,
		&a.Maker, &status, &comments, &rejectionReason, &checkedBy, &payload,
		&submittedAt, &decidedAt,
	)
	if err != nil {
		return nil, err
	}

	a.SubjectType = domain.SubjectType(subjectType)
	a.Status = domain.RequestStatus(status)
	a.Comments = comments.String
	a.RejectionReason = rejectionReason.String
	a.CheckedBy = checkedBy.String
	a.Payload = payload.String
	a.SubmittedAt, _ = time.Parse(time.RFC3339, submittedAt)
	if decidedAt.Valid {
		t, _ := time.Parse(time.RFC3339, decidedAt.String)
		a.DecidedAt = &t
	}
	return &a, nil
}
