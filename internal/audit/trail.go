// Package audit records every state transition in the engine as an
// append-only event stream consumed by the compliance views.
package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/custodia/backoffice/internal/domain"
	"github.com/custodia/backoffice/internal/repository"
)

type Trail struct {
	repo *repository.AuditRepo
	now  func() time.Time
}

func NewTrail(repo *repository.AuditRepo) *Trail {
	return &Trail{repo: repo, now: time.Now}
}

// Record appends one event. Audit writes are best-effort: a failed insert is
// logged but never fails the transition that produced it.
func (t *Trail) Record(actor, action, entityType, entityID, fromStatus, toStatus, detail string) {
	e := &domain.AuditEvent{
		ID:         "AUD-" + uuid.NewString(),
		Timestamp:  t.now().UTC(),
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		FromStatus: fromStatus,
		ToStatus:   toStatus,
		Detail:     detail,
	}
	if err := t.repo.Insert(e); err != nil {
		log.Error().Err(err).
			Str("action", action).
			Str("entity", entityType+"/"+entityID).
			Msg("audit insert failed")
	}
}

// List returns recorded events, newest first.
func (t *Trail) List(f repository.AuditFilter) ([]domain.AuditEvent, int, error) {
	return t.repo.List(f)
}
