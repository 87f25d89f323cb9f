package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia/backoffice/internal/domain"
)

func position(owner, isin string, qty, value float64) domain.PositionRecord {
	return domain.PositionRecord{
		OwnerID:       owner,
		ISIN:          isin,
		Instrument:    isin,
		Quantity:      qty,
		NotionalValue: value,
	}
}

func TestReconcileIdenticalSnapshotsYieldNoBreaks(t *testing.T) {
	snapshot := []domain.PositionRecord{
		position("CLT-1", "NG000001", 500000, 10000000),
		position("CLT-2", "NG000002", 250000, 5000000),
	}

	result := Reconcile(snapshot, snapshot, DefaultTolerances())

	assert.Empty(t, result.Breaks)
	assert.Len(t, result.Matches, 2)
}

func TestReconcileToleranceBoundary(t *testing.T) {
	ref := []domain.PositionRecord{position("CLT-1", "NG000001", 100000, 1000000)}

	// Exactly 1% variance is still a match.
	cmp := []domain.PositionRecord{position("CLT-1", "NG000001", 101000, 1000000)}
	result := Reconcile(ref, cmp, DefaultTolerances())
	assert.Empty(t, result.Breaks)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, 1000.0, result.Matches[0].QuantityVariance)

	// Just over 1% is a break.
	cmp = []domain.PositionRecord{position("CLT-1", "NG000001", 101001, 1000000)}
	result = Reconcile(ref, cmp, DefaultTolerances())
	assert.Empty(t, result.Matches)
	require.Len(t, result.Breaks, 1)
}

func TestReconcileValueVarianceAloneBreaks(t *testing.T) {
	ref := []domain.PositionRecord{position("CLT-1", "NG000001", 100000, 1000000)}
	cmp := []domain.PositionRecord{position("CLT-1", "NG000001", 100000, 1020000)}

	result := Reconcile(ref, cmp, DefaultTolerances())

	require.Len(t, result.Breaks, 1)
	assert.Equal(t, 20000.0, result.Breaks[0].ValueVariance)
	assert.Equal(t, 0.0, result.Breaks[0].QuantityVariance)
}

func TestReconcileMissingPeerIsFullVarianceBreak(t *testing.T) {
	ref := []domain.PositionRecord{position("CLT-1", "NG000001", 500000, 10000000)}

	result := Reconcile(ref, nil, DefaultTolerances())

	require.Len(t, result.Breaks, 1)
	b := result.Breaks[0]
	assert.Equal(t, 0.0, b.ComparisonQty)
	assert.Equal(t, -500000.0, b.QuantityVariance)
	assert.Equal(t, domain.BreakSeverityHigh, b.Severity)
}

func TestReconcileComparisonOnlyIsOrphanBreak(t *testing.T) {
	cmp := []domain.PositionRecord{position("CLT-1", "NG000001", 500000, 10000000)}

	result := Reconcile(nil, cmp, DefaultTolerances())

	require.Len(t, result.Breaks, 1)
	b := result.Breaks[0]
	assert.Equal(t, 0.0, b.ReferenceQty)
	assert.Equal(t, 500000.0, b.QuantityVariance)
	assert.Equal(t, domain.BreakSeverityHigh, b.Severity)
}

func TestSeverityBoundary(t *testing.T) {
	ref := []domain.PositionRecord{position("CLT-1", "NG000001", 100000, 1000000)}

	// Exactly 5% quantity variance stays medium.
	cmp := []domain.PositionRecord{position("CLT-1", "NG000001", 105000, 1050000)}
	result := Reconcile(ref, cmp, DefaultTolerances())
	require.Len(t, result.Breaks, 1)
	assert.Equal(t, domain.BreakSeverityMedium, result.Breaks[0].Severity)

	// Just above 5% is high.
	cmp = []domain.PositionRecord{position("CLT-1", "NG000001", 105001, 1050010)}
	result = Reconcile(ref, cmp, DefaultTolerances())
	require.Len(t, result.Breaks, 1)
	assert.Equal(t, domain.BreakSeverityHigh, result.Breaks[0].Severity)
}

func TestReconcileTwoPercentVarianceIsMediumBreak(t *testing.T) {
	ref := []domain.PositionRecord{position("CLT-1", "NG000001", 500000, 10000000)}
	cmp := []domain.PositionRecord{position("CLT-1", "NG000001", 510000, 10200000)}

	result := Reconcile(ref, cmp, DefaultTolerances())

	assert.Empty(t, result.Matches)
	require.Len(t, result.Breaks, 1)
	b := result.Breaks[0]
	assert.Equal(t, 10000.0, b.QuantityVariance)
	assert.Equal(t, domain.BreakSeverityMedium, b.Severity)
	assert.Equal(t, domain.BreakStatusOpen, b.Status)
}

func TestReconcileDeterministic(t *testing.T) {
	ref := []domain.PositionRecord{
		position("CLT-1", "NG000001", 500000, 10000000),
		position("CLT-2", "NG000002", 300000, 6000000),
		position("CLT-3", "NG000003", 200000, 4000000),
	}
	cmp := []domain.PositionRecord{
		position("CLT-3", "NG000003", 260000, 5200000),
		position("CLT-1", "NG000001", 500000, 10000000),
	}

	first := Reconcile(ref, cmp, DefaultTolerances())
	second := Reconcile(ref, cmp, DefaultTolerances())

	assert.Equal(t, first, second)
	require.Len(t, first.Breaks, 2)
	// Output order follows reference input order.
	assert.Equal(t, "NG000002", first.Breaks[0].ISIN)
	assert.Equal(t, "NG000003", first.Breaks[1].ISIN)
}
