package domain

import "time"

type BreakSeverity string

const (
	BreakSeverityMedium BreakSeverity = "medium"
	BreakSeverityHigh   BreakSeverity = "high"
)

type BreakStatus string

const (
	BreakStatusOpen     BreakStatus = "open"
	BreakStatusResolved BreakStatus = "resolved"
)

// Break is a position mismatch between the reference and comparison sources
// for one (owner, instrument), beyond tolerance. Variances are signed,
// comparison minus reference.
type Break struct {
	ID               string        `json:"break_id"`
	OwnerID          string        `json:"owner_id"`
	OwnerName        string        `json:"owner_name,omitempty"`
	Instrument       string        `json:"instrument"`
	ISIN             string        `json:"isin"`
	ReferenceQty     float64       `json:"reference_qty"`
	ComparisonQty    float64       `json:"comparison_qty"`
	QuantityVariance float64       `json:"quantity_variance"`
	ValueVariance    float64       `json:"value_variance"`
	Severity         BreakSeverity `json:"severity"`
	Status           BreakStatus   `json:"status"`
	DetectedAt       time.Time     `json:"detected_at"`
	ResolvedAt       *time.Time    `json:"resolved_at,omitempty"`

	// AgeHours is derived at read time from DetectedAt, informational only.
	AgeHours float64 `json:"age_hours"`
}

// Age returns hours elapsed since detection.
func (b *Break) Age(now time.Time) float64 {
	return now.Sub(b.DetectedAt).Hours()
}

// Match is a position pair within tolerance on both quantity and value.
type Match struct {
	OwnerID          string  `json:"owner_id"`
	OwnerName        string  `json:"owner_name,omitempty"`
	Instrument       string  `json:"instrument"`
	ISIN             string  `json:"isin"`
	ReferenceQty     float64 `json:"reference_qty"`
	ComparisonQty    float64 `json:"comparison_qty"`
	QuantityVariance float64 `json:"quantity_variance"`
}
