package authz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia/backoffice/internal/audit"
	"github.com/custodia/backoffice/internal/domain"
	"github.com/custodia/backoffice/internal/repository"
)

var (
	maker   = domain.Caller{UserID: "maker1", Role: "maker", Permissions: domain.DefaultPermissions("maker")}
	checker = domain.Caller{UserID: "checker1", Role: "checker", Permissions: domain.DefaultPermissions("checker")}
)

func newTestQueue(t *testing.T) (*Queue, *repository.TradeRepo, *repository.ClientRepo) {
	t.Helper()

	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tradeRepo := repository.NewTradeRepo(db)
	clientRepo := repository.NewClientRepo(db)
	trail := audit.NewTrail(repository.NewAuditRepo(db))
	q := NewQueue(repository.NewAuthorizationRepo(db), tradeRepo, clientRepo, trail)

	require.NoError(t, clientRepo.Insert(&domain.ClientAccount{
		ID: "CLT-1001", Name: "Zenith Pensions", Status: domain.AccountStatusActive,
	}))
	return q, tradeRepo, clientRepo
}

func submitInstruction(t *testing.T, q *Queue, subjectID string) *domain.AuthorizationRequest {
	t.Helper()
	req, err := q.Submit(maker, SubmitParams{
		SubjectType: domain.SubjectInstruction,
		SubjectID:   subjectID,
		Payload:     `{"client_id":"CLT-1001","isin":"NG000001","side":"buy","quantity":1000,"price":42.5}`,
	})
	require.NoError(t, err)
	return req
}

func TestSubmitSingleActiveRequestPerSubject(t *testing.T) {
	q, _, _ := newTestQueue(t)

	req := submitInstruction(t, q, "INS-001")
	assert.Equal(t, domain.RequestStatusPending, req.Status)
	assert.Equal(t, "maker1", req.Maker)

	_, err := q.Submit(maker, SubmitParams{
		SubjectType: domain.SubjectInstruction,
		SubjectID:   "INS-001",
	})
	assert.True(t, domain.IsConflict(err))
}

func TestApproveRequiresCapability(t *testing.T) {
	q, _, _ := newTestQueue(t)
	req := submitInstruction(t, q, "INS-001")

	_, err := q.Approve(maker, req.ID, "looks fine")
	assert.True(t, domain.IsForbidden(err))

	viewer := domain.Caller{UserID: "viewer1", Role: "viewer"}
	_, err = q.Approve(viewer, req.ID, "")
	assert.True(t, domain.IsForbidden(err))

	_, err = q.Reject(maker, req.ID, "nope")
	assert.True(t, domain.IsForbidden(err))
}

func TestApproveCreatesDraftTradeOnce(t *testing.T) {
	q, tradeRepo, _ := newTestQueue(t)
	req := submitInstruction(t, q, "INS-001")

	result, err := q.Approve(checker, req.ID, "ok")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusApproved, result.Request.Status)
	assert.Equal(t, "checker1", result.Request.CheckedBy)
	assert.Equal(t, "ok", result.Request.Comments)

	require.NotNil(t, result.Trade)
	assert.Equal(t, domain.TradeStatusDraft, result.Trade.Status)
	assert.Equal(t, "INS-001", result.Trade.InstructionID)
	assert.Equal(t, "CLT-1001", result.Trade.ClientID)
	assert.Equal(t, 1000.0, result.Trade.Quantity)

	// A second decision conflicts and the side effect stays at one trade.
	_, err = q.Approve(checker, req.ID, "again")
	assert.True(t, domain.IsConflict(err))
	_, err = q.Reject(checker, req.ID, "changed my mind")
	assert.True(t, domain.IsConflict(err))

	trades, err := tradeRepo.GetByInstructionID("INS-001")
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestRejectRequiresReasonAndSkipsSideEffect(t *testing.T) {
	q, tradeRepo, _ := newTestQueue(t)
	req := submitInstruction(t, q, "INS-001")

	_, err := q.Reject(checker, req.ID, "  ")
	assert.True(t, domain.IsValidation(err))

	rejected, err := q.Reject(checker, req.ID, "price off market")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusRejected, rejected.Status)
	assert.Equal(t, "price off market", rejected.RejectionReason)

	trades, err := tradeRepo.GetByInstructionID("INS-001")
	require.NoError(t, err)
	assert.Empty(t, trades)

	// Approving after the terminal decision conflicts.
	_, err = q.Approve(checker, req.ID, "")
	assert.True(t, domain.IsConflict(err))
}

func TestAccountClosureLifecycle(t *testing.T) {
	q, _, clientRepo := newTestQueue(t)

	req, err := q.Submit(maker, SubmitParams{
		SubjectType: domain.SubjectAccountClosure,
		SubjectID:   "CLT-1001",
	})
	require.NoError(t, err)

	client, err := clientRepo.GetByID("CLT-1001")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusPendingClosure, client.Status)

	result, err := q.Approve(checker, req.ID, "KYC cleared")
	require.NoError(t, err)
	require.NotNil(t, result.Account)
	assert.Equal(t, domain.AccountStatusClosed, result.Account.Status)
	assert.Nil(t, result.Trade)
}

func TestRejectedClosureRevertsAccount(t *testing.T) {
	q, _, clientRepo := newTestQueue(t)

	req, err := q.Submit(maker, SubmitParams{
		SubjectType: domain.SubjectAccountClosure,
		SubjectID:   "CLT-1001",
	})
	require.NoError(t, err)

	_, err = q.Reject(checker, req.ID, "pending settlements")
	require.NoError(t, err)

	client, err := clientRepo.GetByID("CLT-1001")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusActive, client.Status)
}

func TestClosureForUnknownClient(t *testing.T) {
	q, _, _ := newTestQueue(t)

	_, err := q.Submit(maker, SubmitParams{
		SubjectType: domain.SubjectAccountClosure,
		SubjectID:   "CLT-9999",
	})
	assert.True(t, domain.IsNotFound(err))
}

func TestListFilters(t *testing.T) {
	q, _, _ := newTestQueue(t)

	submitInstruction(t, q, "INS-001")
	second := submitInstruction(t, q, "INS-002")
	_, err := q.Submit(domain.Caller{UserID: "aliu.muibi", Role: "maker"}, SubmitParams{
		SubjectType: domain.SubjectAccountClosure,
		SubjectID:   "CLT-1001",
	})
	require.NoError(t, err)

	_, err = q.Approve(checker, second.ID, "ok")
	require.NoError(t, err)

	// submitted and pending_approval are the same logical state.
	pending, total, err := q.List(repository.AuthorizationFilter{Status: "submitted"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, pending, 2)

	closures, _, err := q.List(repository.AuthorizationFilter{Module: "clients"})
	require.NoError(t, err)
	require.Len(t, closures, 1)
	assert.Equal(t, domain.SubjectAccountClosure, closures[0].SubjectType)

	byMaker, _, err := q.List(repository.AuthorizationFilter{Maker: "muibi"})
	require.NoError(t, err)
	require.Len(t, byMaker, 1)
	assert.Equal(t, "aliu.muibi", byMaker[0].Maker)

	approved, _, err := q.List(repository.AuthorizationFilter{Status: "approved"})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, second.ID, approved[0].ID)
}

func TestSubmitRejectsMalformedPayload(t *testing.T) {
	q, _, _ := newTestQueue(t)

	_, err := q.Submit(maker, SubmitParams{
		SubjectType: domain.SubjectInstruction,
		SubjectID:   "INS-901",
		Payload:     `"not an object"`,
	})
	require.True(t, domain.IsValidation(err), "got %v", err)

	// Nothing was queued for the subject.
	reqs, total, err := q.List(repository.AuthorizationFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, reqs)
}

func TestApproveBadPayloadLeavesRequestPending(t *testing.T) {
	q, tradeRepo, _ := newTestQueue(t)

	// A request whose payload predates submission-time validation.
	legacy := &domain.AuthorizationRequest{
		ID:          "AUTH-legacy",
		SubjectType: domain.SubjectInstruction,
		SubjectID:   "INS-902",
		Module:      "trades",
		Action:      "create_trade",
		Maker:       "maker1",
		Status:      domain.RequestStatusPending,
		Payload:     `"not an object"`,
		SubmittedAt: time.Now().UTC(),
	}
	require.NoError(t, q.authRepo.Insert(legacy))

	_, err := q.Approve(checker, legacy.ID, "ok")
	require.True(t, domain.IsValidation(err), "got %v", err)

	// The request must not have gone terminal without its side effect.
	got, err := q.Get(legacy.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusPending, got.Status)

	trades, err := tradeRepo.GetByInstructionID("INS-902")
	require.NoError(t, err)
	assert.Empty(t, trades)

	// Still pending, so it can be rejected instead.
	rejected, err := q.Reject(checker, legacy.ID, "unusable payload")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusRejected, rejected.Status)
}

func TestPendingSubjectUniquenessBackstop(t *testing.T) {
	q, _, _ := newTestQueue(t)
	first := submitInstruction(t, q, "INS-001")

	// Even with the pre-insert check bypassed, storage refuses a second
	// pending request for the same subject.
	dup := &domain.AuthorizationRequest{
		ID:          "AUTH-dup",
		SubjectType: domain.SubjectInstruction,
		SubjectID:   "INS-001",
		Module:      "trades",
		Action:      "create_trade",
		Maker:       "maker2",
		Status:      domain.RequestStatusPending,
		SubmittedAt: time.Now().UTC(),
	}
	err := q.authRepo.Insert(dup)
	require.Error(t, err)
	assert.True(t, repository.IsUniqueViolation(err))

	// A decided request frees the subject for resubmission.
	_, err = q.Approve(checker, first.ID, "ok")
	require.NoError(t, err)
	second := submitInstruction(t, q, "INS-001")
	assert.Equal(t, domain.RequestStatusPending, second.Status)
}
