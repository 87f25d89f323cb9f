package matching

import (
	"math"

	"github.com/custodia/backoffice/internal/domain"
)

// classifySeverity assigns break severity from quantity variance: high when
// |variance| strictly exceeds highPct of the reference quantity, medium
// otherwise. A zero reference quantity (one-sided break) is always high.
func classifySeverity(qtyVariance, referenceQty, highPct float64) domain.BreakSeverity {
	if referenceQty == 0 {
		return domain.BreakSeverityHigh
	}
	if math.Abs(qtyVariance) > highPct*math.Abs(referenceQty) {
		return domain.BreakSeverityHigh
	}
	return domain.BreakSeverityMedium
}

// ExceptionSeverityFor maps break severity to the severity of the exception
// ticket the cutoff sweep raises for it.
func ExceptionSeverityFor(sev domain.BreakSeverity) domain.ExceptionSeverity {
	if sev == domain.BreakSeverityHigh {
		return domain.ExceptionSeverityHigh
	}
	return domain.ExceptionSeverityMedium
}
