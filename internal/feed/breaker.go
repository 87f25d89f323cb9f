package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/custodia/backoffice/internal/domain"
)

// BreakerSource wraps another Source in circuit breakers, one per upstream,
// so a dead custodian feed short-circuits its own fetches without blinding
// the other sources. A tripped breaker reports UnavailableError, never an
// empty (all-clear) snapshot.
type BreakerSource struct {
	inner Source

	mu  sync.Mutex
	cbs map[string]*gobreaker.CircuitBreaker
}

func NewBreakerSource(inner Source) *BreakerSource {
	return &BreakerSource{inner: inner, cbs: make(map[string]*gobreaker.CircuitBreaker)}
}

func (s *BreakerSource) breaker(upstream string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.cbs[upstream]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "feed-" + upstream,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
		s.cbs[upstream] = cb
	}
	return cb
}

func (s *BreakerSource) FetchSnapshot(ctx context.Context, sourceID string) ([]domain.PositionRecord, error) {
	out, err := s.breaker(sourceID).Execute(func() (any, error) {
		return s.inner.FetchSnapshot(ctx, sourceID)
	})
	if err != nil {
		return nil, wrapBreakerErr(sourceID, err)
	}
	return out.([]domain.PositionRecord), nil
}

func (s *BreakerSource) FetchCashEntries(ctx context.Context) ([]domain.CashEntry, error) {
	out, err := s.breaker("cash-ledger").Execute(func() (any, error) {
		return s.inner.FetchCashEntries(ctx)
	})
	if err != nil {
		return nil, wrapBreakerErr("cash-ledger", err)
	}
	return out.([]domain.CashEntry), nil
}

func wrapBreakerErr(upstream string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.NewUnavailableError(upstream, err)
	}
	if domain.IsUnavailable(err) {
		return err
	}
	return domain.NewUnavailableError(upstream, err)
}
