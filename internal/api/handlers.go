package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/custodia/backoffice/internal/audit"
	"github.com/custodia/backoffice/internal/authz"
	"github.com/custodia/backoffice/internal/domain"
	"github.com/custodia/backoffice/internal/exceptions"
	"github.com/custodia/backoffice/internal/matching"
	"github.com/custodia/backoffice/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	reconSvc   *matching.Service
	excMgr     *exceptions.Manager
	queue      *authz.Queue
	trail      *audit.Trail
	tradeRepo  *repository.TradeRepo
	clientRepo *repository.ClientRepo
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

// writeError maps the engine error taxonomy to HTTP status codes. The body
// carries the specific precondition message so operators see more than a
// generic failure.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsValidation(err):
		status = http.StatusBadRequest
	case domain.IsForbidden(err):
		status = http.StatusForbidden
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	case domain.IsConflict(err):
		status = http.StatusConflict
	case domain.IsUnavailable(err):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// callerFrom builds the caller identity from gateway headers. Session
// mechanics live upstream; the engine only sees explicit credentials.
// Without an explicit permission list the role's default set applies.
func callerFrom(r *http.Request) domain.Caller {
	c := domain.Caller{
		UserID: r.Header.Get("X-User-Id"),
		Role:   r.Header.Get("X-User-Role"),
	}
	if raw := r.Header.Get("X-User-Permissions"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Permissions = append(c.Permissions, p)
			}
		}
	} else {
		c.Permissions = domain.DefaultPermissions(c.Role)
	}
	if c.UserID == "" {
		c.UserID = "anonymous"
	}
	return c
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.NewValidationError("invalid request body: %v", err)
	}
	return nil
}

// --- reconciliation ---

func (h *Handlers) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconSvc.Run(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) ListBreaks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	breaks, err := h.reconSvc.ListBreaks(repository.BreakFilter{
		Status:   q.Get("status"),
		Severity: q.Get("severity"),
		OwnerID:  q.Get("owner"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"breaks": breaks, "total": len(breaks)})
}

func (h *Handlers) ResolveBreak(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	b, err := h.reconSvc.ResolveBreak(chi.URLParam(r, "id"), caller.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// --- exceptions ---

func (h *Handlers) CreateException(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Category    string `json:"category"`
		Severity    string `json:"severity"`
		Description string `json:"description"`
		BreakID     string `json:"break_id"`
		TradeID     string `json:"trade_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	caller := callerFrom(r)
	e, err := h.excMgr.Create(caller.UserID, exceptions.CreateParams{
		Category:    body.Category,
		Severity:    domain.ExceptionSeverity(body.Severity),
		Description: body.Description,
		BreakID:     body.BreakID,
		TradeID:     body.TradeID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handlers) ListExceptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ExceptionFilter{
		Status:     q.Get("status"),
		Severity:   q.Get("severity"),
		Category:   q.Get("category"),
		AssignedTo: q.Get("assigned_to"),
		Search:     q.Get("search"),
		Page:       parseIntDefault(q.Get("page"), 1),
		Limit:      parseIntDefault(q.Get("limit"), 50),
	}

	excs, total, err := h.excMgr.List(filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exceptions": excs,
		"total":      total,
		"page":       filter.Page,
		"limit":      filter.Limit,
	})
}

func (h *Handlers) GetException(w http.ResponseWriter, r *http.Request) {
	e, err := h.excMgr.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handlers) ExceptionSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.excMgr.Summary()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) SweepExceptions(w http.ResponseWriter, r *http.Request) {
	created, err := h.excMgr.Sweep(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"created": created})
}

func (h *Handlers) AcknowledgeException(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	e, err := h.excMgr.Acknowledge(chi.URLParam(r, "id"), caller.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handlers) AssignException(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AssignedTo string `json:"assignedTo"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	caller := callerFrom(r)
	e, err := h.excMgr.Assign(chi.URLParam(r, "id"), body.AssignedTo, caller.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handlers) ResolveException(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RootCause  string `json:"rootCause"`
		Resolution string `json:"resolution"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	caller := callerFrom(r)
	e, err := h.excMgr.Resolve(chi.URLParam(r, "id"), body.RootCause, body.Resolution, caller.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// --- authorizations ---

func (h *Handlers) ListAuthorizations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.AuthorizationFilter{
		Status: q.Get("status"),
		Module: q.Get("module"),
		Action: q.Get("action"),
		Maker:  q.Get("maker"),
		Page:   parseIntDefault(q.Get("page"), 1),
		Limit:  parseIntDefault(q.Get("limit"), 50),
	}

	reqs, total, err := h.queue.List(filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authorizations": reqs,
		"total":          total,
		"page":           filter.Page,
		"limit":          filter.Limit,
	})
}

func (h *Handlers) SubmitAuthorization(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SubjectType string          `json:"subject_type"`
		SubjectID   string          `json:"subject_id"`
		Module      string          `json:"module"`
		Action      string          `json:"action"`
		Payload     json.RawMessage `json:"payload"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	req, err := h.queue.Submit(callerFrom(r), authz.SubmitParams{
		SubjectType: domain.SubjectType(body.SubjectType),
		SubjectID:   body.SubjectID,
		Module:      body.Module,
		Action:      body.Action,
		Payload:     string(body.Payload),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handlers) GetAuthorization(w http.ResponseWriter, r *http.Request) {
	req, err := h.queue.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *Handlers) ApproveAuthorization(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Comments string `json:"comments"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.queue.Approve(callerFrom(r), chi.URLParam(r, "id"), body.Comments)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) RejectAuthorization(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	req, err := h.queue.Reject(callerFrom(r), chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// --- audit ---

func (h *Handlers) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.AuditFilter{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Action:     q.Get("action"),
		Actor:      q.Get("actor"),
		Page:       parseIntDefault(q.Get("page"), 1),
		Limit:      parseIntDefault(q.Get("limit"), 50),
	}

	events, total, err := h.trail.List(filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
		"page":   filter.Page,
		"limit":  filter.Limit,
	})
}

// --- subjects ---

func (h *Handlers) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.tradeRepo.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades, "total": len(trades)})
}

func (h *Handlers) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.clientRepo.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients, "total": len(clients)})
}
