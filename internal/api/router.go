package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/custodia/backoffice/internal/audit"
	"github.com/custodia/backoffice/internal/authz"
	"github.com/custodia/backoffice/internal/exceptions"
	"github.com/custodia/backoffice/internal/matching"
	"github.com/custodia/backoffice/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	reconSvc *matching.Service,
	excMgr *exceptions.Manager,
	queue *authz.Queue,
	trail *audit.Trail,
	tradeRepo *repository.TradeRepo,
	clientRepo *repository.ClientRepo,
) http.Handler {
	h := &Handlers{
		reconSvc:   reconSvc,
		excMgr:     excMgr,
		queue:      queue,
		trail:      trail,
		tradeRepo:  tradeRepo,
		clientRepo: clientRepo,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		// Reconciliation.
		r.Get("/reconciliations/run", h.RunReconciliation)
		r.Get("/reconciliations/breaks", h.ListBreaks)
		r.Post("/reconciliations/breaks/{id}/resolve", h.ResolveBreak)

		// Exceptions.
		r.Post("/exceptions", h.CreateException)
		r.Get("/exceptions", h.ListExceptions)
		r.Get("/exceptions/dashboard/summary", h.ExceptionSummary)
		r.Post("/exceptions/sweep", h.SweepExceptions)
		r.Get("/exceptions/{id}", h.GetException)
		r.Post("/exceptions/{id}/acknowledge", h.AcknowledgeException)
		r.Post("/exceptions/{id}/assign", h.AssignException)
		r.Post("/exceptions/{id}/resolve", h.ResolveException)

		// Authorizations.
		r.Get("/authorizations", h.ListAuthorizations)
		r.Post("/authorizations", h.SubmitAuthorization)
		r.Get("/authorizations/{id}", h.GetAuthorization)
		r.Post("/authorizations/{id}/approve", h.ApproveAuthorization)
		r.Post("/authorizations/{id}/reject", h.RejectAuthorization)

		// Audit trail.
		r.Get("/audit", h.ListAudit)

		// Side-effect subjects, read-only.
		r.Get("/trades", h.ListTrades)
		r.Get("/clients", h.ListClients)
	})

	return r
}
