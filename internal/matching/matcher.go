// Package matching joins two custodian position snapshots and flags
// quantity/value variance beyond tolerance.
package matching

import (
	"math"

	"github.com/custodia/backoffice/internal/domain"
)

// Tolerances holds the match and severity boundaries as fractions of the
// reference values.
type Tolerances struct {
	// MatchPct is the match/break boundary. Exactly at the boundary is a
	// match; strictly above is a break.
	MatchPct float64
	// HighPct is the medium/high severity boundary on quantity variance.
	// Exactly at the boundary is medium.
	HighPct float64
}

func DefaultTolerances() Tolerances {
	return Tolerances{MatchPct: 0.01, HighPct: 0.05}
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	Matches []domain.Match
	Breaks  []domain.Break
}

type positionKey struct {
	ownerID string
	isin    string
}

// Reconcile joins the reference snapshot against the comparison snapshot by
// (owner, ISIN). Pure and deterministic: output order follows reference
// input order, with comparison-only orphans appended in comparison order.
// Breaks come back without IDs or timestamps; the caller stamps those at the
// persistence boundary.
func Reconcile(reference, comparison []domain.PositionRecord, tol Tolerances) Result {
	byKey := make(map[positionKey]*domain.PositionRecord, len(comparison))
	for i := range comparison {
		rec := &comparison[i]
		byKey[positionKey{rec.OwnerID, rec.ISIN}] = rec
	}

	var result Result
	seen := make(map[positionKey]bool, len(reference))

	for i := range reference {
		ref := &reference[i]
		key := positionKey{ref.OwnerID, ref.ISIN}
		seen[key] = true

		// A reference position absent from the comparison side is a
		// 100%-variance break: comparison quantity and value default to 0.
		var cmpQty, cmpVal float64
		if peer, ok := byKey[key]; ok {
			cmpQty = peer.Quantity
			cmpVal = peer.NotionalValue
		}

		qtyVar := cmpQty - ref.Quantity
		valVar := cmpVal - ref.NotionalValue

		if withinTolerance(qtyVar, ref.Quantity, tol.MatchPct) &&
			withinTolerance(valVar, ref.NotionalValue, tol.MatchPct) {
			result.Matches = append(result.Matches, domain.Match{
				OwnerID:          ref.OwnerID,
				OwnerName:        ref.OwnerName,
				Instrument:       ref.Instrument,
				ISIN:             ref.ISIN,
				ReferenceQty:     ref.Quantity,
				ComparisonQty:    cmpQty,
				QuantityVariance: qtyVar,
			})
			continue
		}

		result.Breaks = append(result.Breaks, domain.Break{
			OwnerID:          ref.OwnerID,
			OwnerName:        ref.OwnerName,
			Instrument:       ref.Instrument,
			ISIN:             ref.ISIN,
			ReferenceQty:     ref.Quantity,
			ComparisonQty:    cmpQty,
			QuantityVariance: qtyVar,
			ValueVariance:    valVar,
			Severity:         classifySeverity(qtyVar, ref.Quantity, tol.HighPct),
			Status:           domain.BreakStatusOpen,
		})
	}

	// Comparison-only positions are one-sided breaks too: the reference
	// custodian knows nothing about them.
	for i := range comparison {
		cmp := &comparison[i]
		key := positionKey{cmp.OwnerID, cmp.ISIN}
		if seen[key] {
			continue
		}
		result.Breaks = append(result.Breaks, domain.Break{
			OwnerID:          cmp.OwnerID,
			OwnerName:        cmp.OwnerName,
			Instrument:       cmp.Instrument,
			ISIN:             cmp.ISIN,
			ReferenceQty:     0,
			ComparisonQty:    cmp.Quantity,
			QuantityVariance: cmp.Quantity,
			ValueVariance:    cmp.NotionalValue,
			Severity:         domain.BreakSeverityHigh,
			Status:           domain.BreakStatusOpen,
		})
	}

	return result
}

func withinTolerance(variance, referenceValue, pct float64) bool {
	return math.Abs(variance) <= pct*math.Abs(referenceValue)
}
