package repository

import (
	"database/sql"
	"strings"
	"time"

	"github.com/custodia/backoffice/internal/domain"
)

// AuditRepo is append-only: events are inserted and listed, never updated.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Insert(e *domain.AuditEvent) error {
	_, err := r.db.Exec(
		`INSERT INTO audit_events
		(id, ts, actor, action, entity_type, entity_id, from_status, to_status, detail)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Timestamp.Format(time.RFC3339), e.Actor, e.Action,
		e.EntityType, e.EntityID, e.FromStatus, e.ToStatus, e.Detail,
	)
	return err
}

type AuditFilter struct {
	EntityType string
	EntityID   string
	Action     string
	Actor      string
	Page       int
	Limit      int
}

func (r *AuditRepo) List(f AuditFilter) ([]domain.AuditEvent, int, error) {
	var clauses []string
	var args []any
	if f.EntityType != "" {
		clauses = append(clauses, "entity_type = ?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, f.Action)
	}
	if f.Actor != "" {
		clauses = append(clauses, "actor = ?")
		args = append(args, f.Actor)
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM audit_events"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := `SELECT id, ts, actor, action, entity_type, entity_id, from_status, to_status, detail
		FROM audit_events` + where + " ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var ts string
		var fromStatus, toStatus, detail sql.NullString
		if err := rows.Scan(
			&e.ID, &ts, &e.Actor, &e.Action, &e.EntityType, &e.EntityID,
			&fromStatus, &toStatus, &detail,
		); err != nil {
			return nil, 0, err
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		e.FromStatus = fromStatus.String
		e.ToStatus = toStatus.String
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, total, rows.Err()
}
