package domain

import "time"

type SubjectType string

const (
	SubjectInstruction    SubjectType = "instruction"
	SubjectAccountClosure SubjectType = "account_closure"
)

type RequestStatus string

// submitted and pending_approval are one logical pre-decision state; the
// queue stores pending_approval and accepts either spelling in filters.
const (
	RequestStatusPending  RequestStatus = "pending_approval"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// AuthorizationRequest is a maker-checker item. It transitions to approved
// or rejected exactly once; the underlying subject only changes state as a
// direct consequence of that one transition.
type AuthorizationRequest struct {
	ID              string        `json:"request_id"`
	SubjectType     SubjectType   `json:"subject_type"`
	SubjectID       string        `json:"subject_id"`
	Module          string        `json:"module"`
	Action          string        `json:"action"`
	Maker           string        `json:"maker"`
	Status          RequestStatus `json:"status"`
	Comments        string        `json:"comments,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	CheckedBy       string        `json:"checked_by,omitempty"`
	Payload         string        `json:"payload,omitempty"`
	SubmittedAt     time.Time     `json:"submitted_at"`
	DecidedAt       *time.Time    `json:"decided_at,omitempty"`
}

// IsTerminal reports whether the request has been decided.
func (r *AuthorizationRequest) IsTerminal() bool {
	return r.Status == RequestStatusApproved || r.Status == RequestStatusRejected
}

type TradeStatus string

const (
	TradeStatusDraft     TradeStatus = "draft"
	TradeStatusValidated TradeStatus = "validated"
	TradeStatusSettled   TradeStatus = "settled"
	TradeStatusCancelled TradeStatus = "cancelled"
)

// Trade is created in draft status as the side effect of approving an
// instruction; validation and settlement happen downstream.
type Trade struct {
	ID            string      `json:"trade_id"`
	InstructionID string      `json:"instruction_id"`
	ClientID      string      `json:"client_id"`
	ISIN          string      `json:"isin"`
	Side          string      `json:"side"`
	Quantity      float64     `json:"quantity"`
	Price         float64     `json:"price"`
	Status        TradeStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
}

type AccountStatus string

const (
	AccountStatusActive         AccountStatus = "active"
	AccountStatusPendingClosure AccountStatus = "pending_closure"
	AccountStatusClosed         AccountStatus = "closed"
)

// ClientAccount is the closure side-effect subject.
type ClientAccount struct {
	ID     string        `json:"client_id"`
	Name   string        `json:"client_name"`
	Status AccountStatus `json:"status"`
}
