// Package feed abstracts the upstream custodian and ledger feeds behind a
// capability interface so reconciliation runs against injected snapshots
// rather than live wire formats.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/custodia/backoffice/internal/domain"
)

// Source supplies position snapshots per named source system plus the
// ledger-vs-expected cash entries from the core banking feed.
type Source interface {
	FetchSnapshot(ctx context.Context, sourceID string) ([]domain.PositionRecord, error)
	FetchCashEntries(ctx context.Context) ([]domain.CashEntry, error)
}

// FixtureSource reads deterministic JSON snapshots from a directory:
// <dir>/<sourceID>.json for positions, <dir>/cash.json for cash entries.
type FixtureSource struct {
	Dir string
	Now func() time.Time
}

func NewFixtureSource(dir string) *FixtureSource {
	return &FixtureSource{Dir: dir, Now: time.Now}
}

func (s *FixtureSource) FetchSnapshot(ctx context.Context, sourceID string) ([]domain.PositionRecord, error) {
	path := filepath.Join(s.Dir, sourceID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewUnavailableError(sourceID, err)
	}

	var records []domain.PositionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}

	now := s.Now().UTC()
	for i := range records {
		records[i].SourceSystem = sourceID
		records[i].IngestedAt = now
	}
	return records, nil
}

func (s *FixtureSource) FetchCashEntries(ctx context.Context) ([]domain.CashEntry, error) {
	path := filepath.Join(s.Dir, "cash.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.NewUnavailableError("cash-ledger", err)
	}

	var entries []domain.CashEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse cash entries %s: %w", path, err)
	}
	return entries, nil
}
