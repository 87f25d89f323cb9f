package domain

import "time"

// PositionRecord is one custodian position as reported by an upstream feed.
// Immutable once ingested; one record per (source, owner, instrument) per
// snapshot.
type PositionRecord struct {
	SourceSystem  string    `json:"source_system"`
	ISIN          string    `json:"isin"`
	Instrument    string    `json:"instrument"`
	OwnerID       string    `json:"owner_id"`
	OwnerName     string    `json:"owner_name,omitempty"`
	Quantity      float64   `json:"quantity"`
	NotionalValue float64   `json:"notional_value"`
	IngestedAt    time.Time `json:"ingested_at"`
}

// CashEntry is a ledger-vs-expected balance record from the core banking
// feed. Display-only downstream; cash reconciliation itself is out of scope.
type CashEntry struct {
	Account        string  `json:"account"`
	LedgerAmount   float64 `json:"ledger_amount"`
	ExpectedAmount float64 `json:"expected_amount"`
}

// Variance is ledger minus expected.
func (c CashEntry) Variance() float64 {
	return c.LedgerAmount - c.ExpectedAmount
}
