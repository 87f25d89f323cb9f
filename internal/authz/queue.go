// Package authz implements the maker-checker authorization queue: submitted
// actions are held pending approval, and the domain side effect only fires
// as a direct consequence of the one approve transition.
package authz

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/custodia/backoffice/internal/audit"
	"github.com/custodia/backoffice/internal/domain"
	"github.com/custodia/backoffice/internal/repository"
)

type Queue struct {
	authRepo   *repository.AuthorizationRepo
	tradeRepo  *repository.TradeRepo
	clientRepo *repository.ClientRepo
	trail      *audit.Trail
	now        func() time.Time
}

func NewQueue(
	authRepo *repository.AuthorizationRepo,
	tradeRepo *repository.TradeRepo,
	clientRepo *repository.ClientRepo,
	trail *audit.Trail,
) *Queue {
	return &Queue{
		authRepo:   authRepo,
		tradeRepo:  tradeRepo,
		clientRepo: clientRepo,
		trail:      trail,
		now:        time.Now,
	}
}

// InstructionPayload is the trade detail carried by an instruction request,
// used to build the draft trade on approval.
type InstructionPayload struct {
	ClientID string  `json:"client_id"`
	ISIN     string  `json:"isin"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

type SubmitParams struct {
	SubjectType domain.SubjectType
	SubjectID   string
	Module      string
	Action      string
	Payload     string
}

// DecisionResult pairs the decided request with whatever side effect the
// decision produced.
type DecisionResult struct {
	Request *domain.AuthorizationRequest `json:"request"`
	Trade   *domain.Trade                `json:"trade,omitempty"`
	Account *domain.ClientAccount        `json:"account,omitempty"`
}

// Submit queues an action for approval. A subject with a pending request
// cannot be submitted again. Closure submissions park the account in
// pending_closure until the decision lands.
func (q *Queue) Submit(caller domain.Caller, p SubmitParams) (*domain.AuthorizationRequest, error) {
	if strings.TrimSpace(p.SubjectID) == "" {
		return nil, domain.NewValidationError("subject id is required")
	}
	switch p.SubjectType {
	case domain.SubjectInstruction, domain.SubjectAccountClosure:
	default:
		return nil, domain.NewValidationError("unknown subject type %q", p.SubjectType)
	}

	// Parse the payload at submission so a malformed instruction is rejected
	// here, while the request can still bounce, rather than after approval
	// has already gone terminal.
	if p.SubjectType == domain.SubjectInstruction {
		if _, err := parseInstructionPayload(p.Payload); err != nil {
			return nil, err
		}
	}

	active, err := q.authRepo.HasActiveForSubject(p.SubjectType, p.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("check active requests: %w", err)
	}
	if active {
		return nil, domain.NewConflictError("subject %s already has a pending request", p.SubjectID)
	}

	if p.SubjectType == domain.SubjectAccountClosure {
		client, err := q.clientRepo.GetByID(p.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("get client: %w", err)
		}
		if client == nil {
			return nil, domain.NewNotFoundError("client", p.SubjectID)
		}
		ok, err := q.clientRepo.UpdateStatus(p.SubjectID, domain.AccountStatusActive, domain.AccountStatusPendingClosure)
		if err != nil {
			return nil, fmt.Errorf("mark pending closure: %w", err)
		}
		if !ok {
			return nil, domain.NewConflictError("client %s is %s, not active", p.SubjectID, client.Status)
		}
	}

	req := &domain.AuthorizationRequest{
		ID:          "AUTH-" + uuid.NewString(),
		SubjectType: p.SubjectType,
		SubjectID:   p.SubjectID,
		Module:      p.Module,
		Action:      p.Action,
		Maker:       caller.UserID,
		Status:      domain.RequestStatusPending,
		Payload:     p.Payload,
		SubmittedAt: q.now().UTC(),
	}
	if req.Module == "" {
		req.Module = defaultModule(p.SubjectType)
	}
	if req.Action == "" {
		req.Action = defaultAction(p.SubjectType)
	}

	if err := q.authRepo.Insert(req); err != nil {
		// The partial unique index on pending subjects backstops the check
		// above against two concurrent submissions.
		if repository.IsUniqueViolation(err) {
			return nil, domain.NewConflictError("subject %s already has a pending request", p.SubjectID)
		}
		return nil, fmt.Errorf("insert request: %w", err)
	}

	q.trail.Record(caller.UserID, "authorization.submit", "authorization", req.ID,
		"", string(req.Status), fmt.Sprintf("subject=%s/%s", req.SubjectType, req.SubjectID))

	return req, nil
}

// Approve decides a pending request and fires its domain side effect exactly
// once. The capability check is a pure function of the passed-in caller.
func (q *Queue) Approve(caller domain.Caller, requestID, comments string) (*DecisionResult, error) {
	if !caller.Can(domain.PermApproveInstructions) {
		return nil, domain.NewForbiddenError("approval requires the %s capability", domain.PermApproveInstructions)
	}

	req, err := q.getExisting(requestID)
	if err != nil {
		return nil, err
	}
	if req.IsTerminal() {
		return nil, domain.NewConflictError("request %s is already %s", requestID, req.Status)
	}

	// Parse before deciding: a bad payload must leave the request pending,
	// never terminal-approved with the side effect unfired.
	var payload InstructionPayload
	if req.SubjectType == domain.SubjectInstruction {
		if payload, err = parseInstructionPayload(req.Payload); err != nil {
			return nil, err
		}
	}

	now := q.now().UTC()
	won, err := q.authRepo.Decide(requestID, domain.RequestStatusApproved, caller.UserID, comments, "", now)
	if err != nil {
		return nil, fmt.Errorf("decide: %w", err)
	}
	if !won {
		// Someone else decided between our read and our write.
		return nil, domain.NewConflictError("request %s was already decided", requestID)
	}

	q.trail.Record(caller.UserID, "authorization.approve", "authorization", requestID,
		string(domain.RequestStatusPending), string(domain.RequestStatusApproved), comments)

	// The side effect runs only on the winning transition, keyed by the
	// request, so retries of the same approval cannot fire it twice.
	result := &DecisionResult{}
	switch req.SubjectType {
	case domain.SubjectInstruction:
		trade, err := q.createDraftTrade(caller, req, payload)
		if err != nil {
			return nil, err
		}
		result.Trade = trade
	case domain.SubjectAccountClosure:
		account, err := q.closeAccount(caller, req)
		if err != nil {
			return nil, err
		}
		result.Account = account
	}

	result.Request, err = q.authRepo.GetByID(requestID)
	if err != nil {
		return nil, fmt.Errorf("reload request: %w", err)
	}
	return result, nil
}

// Reject decides a pending request with a mandatory reason. No side effect
// fires; closure subjects revert to active.
func (q *Queue) Reject(caller domain.Caller, requestID, reason string) (*domain.AuthorizationRequest, error) {
	if !caller.Can(domain.PermApproveInstructions) {
		return nil, domain.NewForbiddenError("rejection requires the %s capability", domain.PermApproveInstructions)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, domain.NewValidationError("rejection reason is required")
	}

	req, err := q.getExisting(requestID)
	if err != nil {
		return nil, err
	}
	if req.IsTerminal() {
		return nil, domain.NewConflictError("request %s is already %s", requestID, req.Status)
	}

	now := q.now().UTC()
	won, err := q.authRepo.Decide(requestID, domain.RequestStatusRejected, caller.UserID, "", reason, now)
	if err != nil {
		return nil, fmt.Errorf("decide: %w", err)
	}
	if !won {
		return nil, domain.NewConflictError("request %s was already decided", requestID)
	}

	q.trail.Record(caller.UserID, "authorization.reject", "authorization", requestID,
		string(domain.RequestStatusPending), string(domain.RequestStatusRejected), reason)

	if req.SubjectType == domain.SubjectAccountClosure {
		reverted, err := q.clientRepo.UpdateStatus(req.SubjectID, domain.AccountStatusPendingClosure, domain.AccountStatusActive)
		if err != nil {
			return nil, fmt.Errorf("revert account: %w", err)
		}
		if reverted {
			q.trail.Record(caller.UserID, "account.revert", "client", req.SubjectID,
				string(domain.AccountStatusPendingClosure), string(domain.AccountStatusActive),
				"closure rejected: "+reason)
		}
	}

	return q.authRepo.GetByID(requestID)
}

// Get returns one request.
func (q *Queue) Get(requestID string) (*domain.AuthorizationRequest, error) {
	return q.getExisting(requestID)
}

// List returns requests matching the filter, straight from storage.
func (q *Queue) List(f repository.AuthorizationFilter) ([]domain.AuthorizationRequest, int, error) {
	return q.authRepo.List(f)
}

// --- helpers ---

func (q *Queue) getExisting(id string) (*domain.AuthorizationRequest, error) {
	req, err := q.authRepo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, domain.NewNotFoundError("authorization request", id)
	}
	return req, nil
}

func parseInstructionPayload(raw string) (InstructionPayload, error) {
	var payload InstructionPayload
	if raw == "" {
		return payload, nil
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, domain.NewValidationError("instruction payload is not valid: %v", err)
	}
	return payload, nil
}

func (q *Queue) createDraftTrade(caller domain.Caller, req *domain.AuthorizationRequest, payload InstructionPayload) (*domain.Trade, error) {
	trade := &domain.Trade{
		ID:            "TRD-" + uuid.NewString(),
		InstructionID: req.SubjectID,
		ClientID:      payload.ClientID,
		ISIN:          payload.ISIN,
		Side:          payload.Side,
		Quantity:      payload.Quantity,
		Price:         payload.Price,
		Status:        domain.TradeStatusDraft,
		CreatedAt:     q.now().UTC(),
	}
	if err := q.tradeRepo.Insert(trade); err != nil {
		return nil, fmt.Errorf("create draft trade: %w", err)
	}

	q.trail.Record(caller.UserID, "trade.create", "trade", trade.ID,
		"", string(domain.TradeStatusDraft), "instruction="+req.SubjectID)
	log.Info().Str("trade", trade.ID).Str("instruction", req.SubjectID).Msg("draft trade created on approval")
	return trade, nil
}

func (q *Queue) closeAccount(caller domain.Caller, req *domain.AuthorizationRequest) (*domain.ClientAccount, error) {
	closed, err := q.clientRepo.UpdateStatus(req.SubjectID, domain.AccountStatusPendingClosure, domain.AccountStatusClosed)
	if err != nil {
		return nil, fmt.Errorf("close account: %w", err)
	}
	if closed {
		q.trail.Record(caller.UserID, "account.close", "client", req.SubjectID,
			string(domain.AccountStatusPendingClosure), string(domain.AccountStatusClosed), "")
	}
	return q.clientRepo.GetByID(req.SubjectID)
}

func defaultModule(t domain.SubjectType) string {
	if t == domain.SubjectAccountClosure {
		return "clients"
	}
	return "trades"
}

func defaultAction(t domain.SubjectType) string {
	if t == domain.SubjectAccountClosure {
		return "close_account"
	}
	return "create_trade"
}
