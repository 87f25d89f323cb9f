package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia/backoffice/internal/domain"
)

type flakySource struct {
	err       error
	failOnly  string // when set, only this sourceID fails
	snapshots []domain.PositionRecord
	calls     int
}

func (s *flakySource) FetchSnapshot(ctx context.Context, sourceID string) ([]domain.PositionRecord, error) {
	s.calls++
	if s.err != nil && (s.failOnly == "" || s.failOnly == sourceID) {
		return nil, s.err
	}
	return s.snapshots, nil
}

func (s *flakySource) FetchCashEntries(ctx context.Context) ([]domain.CashEntry, error) {
	if s.err != nil && s.failOnly == "" {
		return nil, s.err
	}
	return nil, nil
}

func TestDownFeedReportsUnavailable(t *testing.T) {
	src := NewBreakerSource(&flakySource{err: errors.New("connection refused")})

	_, err := src.FetchSnapshot(context.Background(), "CSCS")
	require.Error(t, err)
	assert.True(t, domain.IsUnavailable(err), "a failed fetch must surface as unavailable, not as empty")
}

func TestEmptySnapshotIsNotAnError(t *testing.T) {
	src := NewBreakerSource(&flakySource{snapshots: []domain.PositionRecord{}})

	records, err := src.FetchSnapshot(context.Background(), "CSCS")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBreakerTripsAndShortCircuits(t *testing.T) {
	inner := &flakySource{err: errors.New("connection refused")}
	src := NewBreakerSource(inner)

	for i := 0; i < 3; i++ {
		_, err := src.FetchSnapshot(context.Background(), "CSCS")
		require.Error(t, err)
	}
	require.Equal(t, 3, inner.calls)

	// Breaker is open now: the inner source is no longer hit.
	_, err := src.FetchSnapshot(context.Background(), "CSCS")
	require.Error(t, err)
	assert.True(t, domain.IsUnavailable(err))
	assert.Equal(t, 3, inner.calls)
}

func TestBreakerTripsPerSource(t *testing.T) {
	inner := &flakySource{err: errors.New("connection refused"), failOnly: "CSCS"}
	src := NewBreakerSource(inner)

	for i := 0; i < 4; i++ {
		_, err := src.FetchSnapshot(context.Background(), "CSCS")
		require.Error(t, err)
	}

	// One dead upstream must not blind the others.
	_, err := src.FetchSnapshot(context.Background(), "NGX")
	require.NoError(t, err)
	_, err = src.FetchCashEntries(context.Background())
	require.NoError(t, err)
}

func TestFixtureSourceMissingSnapshot(t *testing.T) {
	src := NewFixtureSource(t.TempDir())

	_, err := src.FetchSnapshot(context.Background(), "CSCS")
	require.Error(t, err)
	assert.True(t, domain.IsUnavailable(err))
}

func TestFixtureSourceMissingCashIsEmpty(t *testing.T) {
	src := NewFixtureSource(t.TempDir())

	entries, err := src.FetchCashEntries(context.Background())
	require.NoError(t, err)
	assert.Nil(t, entries)
}
