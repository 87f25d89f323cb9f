package domain

import "time"

type ExceptionSeverity string

const (
	ExceptionSeverityLow      ExceptionSeverity = "low"
	ExceptionSeverityMedium   ExceptionSeverity = "medium"
	ExceptionSeverityHigh     ExceptionSeverity = "high"
	ExceptionSeverityCritical ExceptionSeverity = "critical"
)

type ExceptionStatus string

const (
	ExceptionStatusOpen       ExceptionStatus = "open"
	ExceptionStatusInProgress ExceptionStatus = "in_progress"
	ExceptionStatusEscalated  ExceptionStatus = "escalated"
	ExceptionStatusResolved   ExceptionStatus = "resolved"
)

// Exception is an operational exception ticket running a time-boxed
// resolution lifecycle. SLAMinutes is fixed at creation from severity and
// never changes; remaining time is always derived from CreatedAt, never
// stored.
type Exception struct {
	ID          string            `json:"exception_id"`
	Category    string            `json:"category"`
	Severity    ExceptionSeverity `json:"severity"`
	Status      ExceptionStatus   `json:"status"`
	Description string            `json:"description,omitempty"`
	BreakID     string            `json:"break_id,omitempty"`
	TradeID     string            `json:"trade_id,omitempty"`
	AssignedTo  string            `json:"assigned_to"`
	CreatedAt   time.Time         `json:"created_at"`
	SLAMinutes  int               `json:"sla_minutes"`
	RootCause   string            `json:"root_cause,omitempty"`
	Resolution  string            `json:"resolution,omitempty"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`

	// Derived at read time.
	RemainingMinutes float64 `json:"remaining_minutes"`
	Breached         bool    `json:"breached"`
}

// SLAMinutesFor maps severity to the resolution time budget.
func SLAMinutesFor(sev ExceptionSeverity) int {
	switch sev {
	case ExceptionSeverityCritical:
		return 60
	case ExceptionSeverityHigh:
		return 120
	default:
		return 240
	}
}

// Remaining returns SLA minutes left at the given instant. May be negative.
func (e *Exception) Remaining(now time.Time) float64 {
	elapsed := now.Sub(e.CreatedAt).Minutes()
	return float64(e.SLAMinutes) - elapsed
}

// IsTerminal reports whether the exception has reached its final state.
func (e *Exception) IsTerminal() bool {
	return e.Status == ExceptionStatusResolved
}

// IsBreached reports whether the SLA has run out on a non-terminal
// exception. Breached is a read view, not a stored status.
func (e *Exception) IsBreached(now time.Time) bool {
	return !e.IsTerminal() && e.Remaining(now) <= 0
}

// ExceptionSummary is the dashboard rollup of the exception book.
type ExceptionSummary struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	BySeverity map[string]int `json:"by_severity"`
	Breached   int            `json:"breached"`
}
