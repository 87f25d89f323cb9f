package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/custodia/backoffice/internal/audit"
	"github.com/custodia/backoffice/internal/domain"
	"github.com/custodia/backoffice/internal/feed"
	"github.com/custodia/backoffice/internal/repository"
)

// RunResult summarises one reconciliation run over the latest two feed
// snapshots.
type RunResult struct {
	ReferenceSource  string             `json:"reference_source"`
	ComparisonSource string             `json:"comparison_source"`
	PositionsLoaded  int                `json:"positions_loaded"`
	Matches          []domain.Match     `json:"matches"`
	Breaks           []domain.Break     `json:"breaks"`
	NewBreaks        int                `json:"new_breaks"`
	CashEntries      []domain.CashEntry `json:"cash_entries"`
	RanAt            time.Time          `json:"ran_at"`
}

// Service pulls snapshots, runs the matcher, and persists the break book.
type Service struct {
	source   feed.Source
	posRepo  *repository.PositionRepo
	brkRepo  *repository.BreakRepo
	trail    *audit.Trail
	tol      Tolerances
	refName  string
	cmpName  string
	now      func() time.Time
}

func NewService(
	source feed.Source,
	posRepo *repository.PositionRepo,
	brkRepo *repository.BreakRepo,
	trail *audit.Trail,
	tol Tolerances,
	referenceSource, comparisonSource string,
) *Service {
	return &Service{
		source:  source,
		posRepo: posRepo,
		brkRepo: brkRepo,
		trail:   trail,
		tol:     tol,
		refName: referenceSource,
		cmpName: comparisonSource,
		now:     time.Now,
	}
}

// Run fetches both snapshots, reconciles them, and persists newly detected
// breaks. A position that already has an open break keeps the existing one
// so its age keeps counting.
func (s *Service) Run(ctx context.Context) (*RunResult, error) {
	reference, err := s.source.FetchSnapshot(ctx, s.refName)
	if err != nil {
		return nil, fmt.Errorf("fetch %s snapshot: %w", s.refName, err)
	}
	comparison, err := s.source.FetchSnapshot(ctx, s.cmpName)
	if err != nil {
		return nil, fmt.Errorf("fetch %s snapshot: %w", s.cmpName, err)
	}

	if _, err := s.posRepo.ReplaceSnapshot(s.refName, reference); err != nil {
		return nil, fmt.Errorf("store %s snapshot: %w", s.refName, err)
	}
	if _, err := s.posRepo.ReplaceSnapshot(s.cmpName, comparison); err != nil {
		return nil, fmt.Errorf("store %s snapshot: %w", s.cmpName, err)
	}

	now := s.now().UTC()
	result := Reconcile(reference, comparison, s.tol)

	for i := range result.Breaks {
		result.Breaks[i].ID = "BRK-" + uuid.NewString()
		result.Breaks[i].DetectedAt = now
	}

	inserted, err := s.brkRepo.InsertNew(result.Breaks)
	if err != nil {
		return nil, fmt.Errorf("persist breaks: %w", err)
	}

	// Report the persisted open book, not just this run's detections, so
	// ages and IDs of carried-over breaks come back to the caller.
	open, err := s.brkRepo.List(repository.BreakFilter{Status: string(domain.BreakStatusOpen)})
	if err != nil {
		return nil, fmt.Errorf("list open breaks: %w", err)
	}
	for i := range open {
		open[i].AgeHours = open[i].Age(now)
	}

	cash, err := s.source.FetchCashEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch cash entries: %w", err)
	}

	log.Info().
		Str("reference", s.refName).
		Str("comparison", s.cmpName).
		Int("matches", len(result.Matches)).
		Int("open_breaks", len(open)).
		Int("new_breaks", inserted).
		Msg("reconciliation run complete")

	return &RunResult{
		ReferenceSource:  s.refName,
		ComparisonSource: s.cmpName,
		PositionsLoaded:  len(reference) + len(comparison),
		Matches:          result.Matches,
		Breaks:           open,
		NewBreaks:        inserted,
		CashEntries:      cash,
		RanAt:            now,
	}, nil
}

// ListBreaks returns breaks with ages computed at read time.
func (s *Service) ListBreaks(f repository.BreakFilter) ([]domain.Break, error) {
	breaks, err := s.brkRepo.List(f)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	for i := range breaks {
		breaks[i].AgeHours = breaks[i].Age(now)
	}
	return breaks, nil
}

// ResolveBreak marks a break resolved. Unknown IDs fail with NotFoundError;
// resolving an already-resolved break is a no-op success.
func (s *Service) ResolveBreak(id, actor string) (*domain.Break, error) {
	b, err := s.brkRepo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("get break: %w", err)
	}
	if b == nil {
		return nil, domain.NewNotFoundError("break", id)
	}
	if b.Status == domain.BreakStatusResolved {
		return b, nil
	}

	now := s.now().UTC()
	if _, err := s.brkRepo.MarkResolved(id, now); err != nil {
		return nil, fmt.Errorf("resolve break: %w", err)
	}
	s.trail.Record(actor, "break.resolve", "break", id,
		string(domain.BreakStatusOpen), string(domain.BreakStatusResolved), "")

	return s.brkRepo.GetByID(id)
}
