// Package exceptions runs the exception ticket lifecycle: creation from
// breaks or operator actions, SLA countdown with auto-escalation, and
// root-cause resolution closure.
package exceptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/custodia/backoffice/internal/audit"
	"github.com/custodia/backoffice/internal/domain"
	"github.com/custodia/backoffice/internal/matching"
	"github.com/custodia/backoffice/internal/repository"
)

// Config holds the lifecycle knobs.
type Config struct {
	// GracePeriod is how long an open break may age before the sweep turns
	// it into an exception.
	GracePeriod time.Duration
	// EscalateThreshold is the remaining-SLA level at which an in_progress
	// exception escalates.
	EscalateThreshold time.Duration
	// Owners maps category to the team that works it.
	Owners map[string]string
	// TriageOwner picks up unmapped categories.
	TriageOwner string
}

type Manager struct {
	excRepo *repository.ExceptionRepo
	brkRepo *repository.BreakRepo
	trail   *audit.Trail
	cfg     Config
	now     func() time.Time
}

func NewManager(excRepo *repository.ExceptionRepo, brkRepo *repository.BreakRepo, trail *audit.Trail, cfg Config) *Manager {
	if cfg.TriageOwner == "" {
		cfg.TriageOwner = "ops-triage"
	}
	if cfg.EscalateThreshold == 0 {
		cfg.EscalateThreshold = 15 * time.Minute
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = 6 * time.Hour
	}
	return &Manager{
		excRepo: excRepo,
		brkRepo: brkRepo,
		trail:   trail,
		cfg:     cfg,
		now:     time.Now,
	}
}

// CreateParams describes a manual or sweep-driven exception creation.
type CreateParams struct {
	Category    string
	Severity    domain.ExceptionSeverity
	Description string
	BreakID     string
	TradeID     string
}

// Create opens a new exception. SLA minutes come from severity and are fixed
// for the ticket's life; the assignee comes from the category owner table.
func (m *Manager) Create(actor string, p CreateParams) (*domain.Exception, error) {
	if strings.TrimSpace(p.Category) == "" {
		return nil, domain.NewValidationError("category is required")
	}
	switch p.Severity {
	case domain.ExceptionSeverityLow, domain.ExceptionSeverityMedium,
		domain.ExceptionSeverityHigh, domain.ExceptionSeverityCritical:
	case "":
		p.Severity = domain.ExceptionSeverityMedium
	default:
		return nil, domain.NewValidationError("unknown severity %q", p.Severity)
	}

	e := &domain.Exception{
		ID:          "EXC-" + uuid.NewString(),
		Category:    p.Category,
		Severity:    p.Severity,
		Status:      domain.ExceptionStatusOpen,
		Description: p.Description,
		BreakID:     p.BreakID,
		TradeID:     p.TradeID,
		AssignedTo:  m.ownerFor(p.Category),
		CreatedAt:   m.now().UTC(),
		SLAMinutes:  domain.SLAMinutesFor(p.Severity),
	}

	if err := m.excRepo.Insert(e); err != nil {
		return nil, fmt.Errorf("insert exception: %w", err)
	}

	m.trail.Record(actor, "exception.create", "exception", e.ID, "", string(e.Status),
		fmt.Sprintf("category=%s severity=%s sla=%dm", e.Category, e.Severity, e.SLAMinutes))

	return m.decorate(e), nil
}

// Acknowledge moves an open exception to in_progress. This is the explicit
// operator acknowledgment; it never happens automatically.
func (m *Manager) Acknowledge(id, actor string) (*domain.Exception, error) {
	e, err := m.getExisting(id)
	if err != nil {
		return nil, err
	}

	ok, err := m.excRepo.Acknowledge(id)
	if err != nil {
		return nil, fmt.Errorf("acknowledge: %w", err)
	}
	if !ok {
		return nil, domain.NewConflictError("exception %s is %s, not open", id, e.Status)
	}

	m.trail.Record(actor, "exception.acknowledge", "exception", id,
		string(domain.ExceptionStatusOpen), string(domain.ExceptionStatusInProgress), "")
	return m.Get(id)
}

// Assign reassigns a non-terminal exception.
func (m *Manager) Assign(id, assignedTo, actor string) (*domain.Exception, error) {
	if strings.TrimSpace(assignedTo) == "" {
		return nil, domain.NewValidationError("assignee is required")
	}
	e, err := m.getExisting(id)
	if err != nil {
		return nil, err
	}

	ok, err := m.excRepo.UpdateAssignee(id, assignedTo)
	if err != nil {
		return nil, fmt.Errorf("assign: %w", err)
	}
	if !ok {
		return nil, domain.NewConflictError("exception %s is already resolved", id)
	}

	m.trail.Record(actor, "exception.assign", "exception", id,
		string(e.Status), string(e.Status), "assigned_to="+assignedTo)
	return m.Get(id)
}

// Resolve closes an exception with root cause and resolution. Both fields
// are required. Any non-terminal status resolves directly; the originating
// break, if there is one, resolves with it.
func (m *Manager) Resolve(id, rootCause, resolution, actor string) (*domain.Exception, error) {
	if strings.TrimSpace(rootCause) == "" {
		return nil, domain.NewValidationError("root cause is required")
	}
	if strings.TrimSpace(resolution) == "" {
		return nil, domain.NewValidationError("resolution is required")
	}

	e, err := m.getExisting(id)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	ok, brkResolved, err := m.excRepo.ResolveWithBreak(id, e.BreakID, rootCause, resolution, now)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	if !ok {
		return nil, domain.NewConflictError("exception %s is already resolved", id)
	}

	m.trail.Record(actor, "exception.resolve", "exception", id,
		string(e.Status), string(domain.ExceptionStatusResolved), "root_cause="+rootCause)
	if brkResolved {
		m.trail.Record(actor, "break.resolve", "break", e.BreakID,
			string(domain.BreakStatusOpen), string(domain.BreakStatusResolved),
			"resolved with "+id)
	}

	return m.Get(id)
}

// Sweep converts open breaks older than the grace period into exception
// tickets, one per break. Re-running never duplicates: the break_id
// uniqueness on exceptions makes already-swept breaks no-ops.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	now := m.now().UTC()
	stale, err := m.brkRepo.GetOpenOlderThan(now.Add(-m.cfg.GracePeriod))
	if err != nil {
		return 0, fmt.Errorf("list stale breaks: %w", err)
	}

	created := 0
	for i := range stale {
		b := &stale[i]
		e := &domain.Exception{
			ID:       "EXC-" + uuid.NewString(),
			Category: "position_break",
			Severity: matching.ExceptionSeverityFor(b.Severity),
			Status:   domain.ExceptionStatusOpen,
			Description: fmt.Sprintf("Unresolved break %s on %s (%s): qty variance %.0f",
				b.ID, b.Instrument, b.ISIN, b.QuantityVariance),
			BreakID:    b.ID,
			AssignedTo: m.ownerFor("position_break"),
			CreatedAt:  now,
		}
		e.SLAMinutes = domain.SLAMinutesFor(e.Severity)

		inserted, err := m.excRepo.InsertForBreak(e)
		if err != nil {
			return created, fmt.Errorf("sweep insert for break %s: %w", b.ID, err)
		}
		if inserted {
			created++
			m.trail.Record("system", "exception.sweep_create", "exception", e.ID,
				"", string(domain.ExceptionStatusOpen), "break_id="+b.ID)
		}
	}

	if created > 0 {
		log.Info().Int("created", created).Int("stale_breaks", len(stale)).Msg("cutoff sweep created exceptions")
	}
	return created, nil
}

// Tick recomputes remaining SLA for all non-terminal exceptions and
// escalates any in_progress ticket at or under the threshold. The guarded
// update re-checks status at write time, so a resolution landing mid-tick
// wins and the escalation is silently skipped.
func (m *Manager) Tick(ctx context.Context) error {
	open, err := m.excRepo.ListNonTerminal()
	if err != nil {
		return fmt.Errorf("list non-terminal: %w", err)
	}

	now := m.now().UTC()
	threshold := m.cfg.EscalateThreshold.Minutes()

	for i := range open {
		e := &open[i]
		if e.Status != domain.ExceptionStatusInProgress {
			continue
		}
		if e.Remaining(now) > threshold {
			continue
		}

		escalated, err := m.excRepo.Escalate(e.ID)
		if err != nil {
			return fmt.Errorf("escalate %s: %w", e.ID, err)
		}
		if escalated {
			m.trail.Record("system", "exception.escalate", "exception", e.ID,
				string(domain.ExceptionStatusInProgress), string(domain.ExceptionStatusEscalated),
				fmt.Sprintf("remaining_minutes=%.0f", e.Remaining(now)))
			log.Warn().Str("exception", e.ID).Msg("exception escalated on SLA threshold")
		}
	}
	return nil
}

// Get returns one exception with derived SLA fields.
func (m *Manager) Get(id string) (*domain.Exception, error) {
	e, err := m.excRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, domain.NewNotFoundError("exception", id)
	}
	return m.decorate(e), nil
}

// List returns exceptions with derived SLA fields.
func (m *Manager) List(f repository.ExceptionFilter) ([]domain.Exception, int, error) {
	excs, total, err := m.excRepo.List(f)
	if err != nil {
		return nil, 0, err
	}
	for i := range excs {
		m.decorate(&excs[i])
	}
	return excs, total, nil
}

// Summary is the dashboard rollup.
func (m *Manager) Summary() (*domain.ExceptionSummary, error) {
	byStatus, err := m.excRepo.CountByStatus()
	if err != nil {
		return nil, err
	}
	bySeverity, err := m.excRepo.CountBySeverity()
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range byStatus {
		total += n
	}

	open, err := m.excRepo.ListNonTerminal()
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	breached := 0
	for i := range open {
		if open[i].IsBreached(now) {
			breached++
		}
	}

	return &domain.ExceptionSummary{
		Total:      total,
		ByStatus:   byStatus,
		BySeverity: bySeverity,
		Breached:   breached,
	}, nil
}

// --- helpers ---

func (m *Manager) getExisting(id string) (*domain.Exception, error) {
	e, err := m.excRepo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("get exception: %w", err)
	}
	if e == nil {
		return nil, domain.NewNotFoundError("exception", id)
	}
	return e, nil
}

func (m *Manager) ownerFor(category string) string {
	if owner, ok := m.cfg.Owners[category]; ok {
		return owner
	}
	return m.cfg.TriageOwner
}

func (m *Manager) decorate(e *domain.Exception) *domain.Exception {
	now := m.now().UTC()
	e.RemainingMinutes = e.Remaining(now)
	e.Breached = e.IsBreached(now)
	return e
}
