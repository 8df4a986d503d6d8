package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/multivitaminds/signof-sub014/internal/middleware"
)

// MountRoutes registers the governance API under /api/v1. Every route is
// tenant scoped; apiMiddleware runs after tenant resolution, so rate limits
// and idempotency keys can key on the tenant.
func MountRoutes(r chi.Router, h *Handlers, apiMiddleware ...func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"1.0.0"}`))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.TenantID)
			r.Use(apiMiddleware...)

			// Tenant
			r.Get("/tenant", h.GetTenant)
			r.Put("/tenant", h.UpsertTenant)

			// Kernel
			r.Post("/messages", h.ProcessMessage)
			r.Get("/conversations/{id}", h.GetConversation)
			r.Get("/conversations/{id}/messages", h.ListMessages)
			r.Get("/runs", h.ListRuns)
			r.Get("/runs/{id}", h.GetRun)
			r.Get("/runs/{id}/tool-calls", h.ListToolCalls)
			r.Get("/models", h.ListModels)
			r.Get("/tools", h.ListTools)

			// Governor
			r.Post("/actions/check", h.CheckAction)
			r.Get("/policies", h.ListPolicies)
			r.Post("/policies", h.CreatePolicy)
			r.Get("/policies/{id}", h.GetPolicy)
			r.Put("/policies/{id}", h.UpdatePolicy)
			r.Delete("/policies/{id}", h.DeletePolicy)
			r.Get("/audit", h.ListAudit)

			// Approvals
			r.Post("/approvals", h.CreateApproval)
			r.Get("/approvals", h.ListPendingApprovals)
			r.Get("/approvals/{id}", h.GetApproval)
			r.Get("/approvals/{id}/status", h.ApprovalStatus)
			r.Post("/approvals/{id}/approve", h.ApproveRequest)
			r.Post("/approvals/{id}/deny", h.DenyRequest)

			// Circuit breakers
			r.Get("/breakers", h.ListBreakers)
			r.Get("/breakers/{connectorID}", h.GetBreaker)
			r.Post("/breakers/{connectorID}/check", h.CheckBreaker)
			r.Post("/breakers/{connectorID}/success", h.RecordBreakerSuccess)
			r.Post("/breakers/{connectorID}/failure", h.RecordBreakerFailure)
			r.Post("/breakers/{connectorID}/reset", h.ResetBreaker)

			// Budgets
			r.Post("/budgets/check", h.CheckBudget)
			r.Post("/budgets/usage", h.RecordUsage)
			r.Get("/budgets/tenant", h.GetTenantBudget)
			r.Put("/budgets/tenant", h.SetTenantBudget)
			r.Post("/budgets/tenant/check", h.CheckTenantBudget)
			r.Get("/budgets/tenant/daily", h.ListDailyCosts)
			r.Get("/budgets/agents/{agentID}", h.GetAgentBudget)
			r.Put("/budgets/agents/{agentID}", h.SetAgentBudget)
			r.Get("/budgets/agents/{agentID}/status", h.AgentBudgetStatus)
			r.Get("/budgets/agents/{agentID}/records", h.ListCostRecords)

			// Identities
			r.Post("/identities", h.CreateIdentity)
			r.Get("/identities", h.ListIdentities)
			r.Get("/identities/{identityID}", h.GetIdentity)
			r.Post("/identities/{identityID}/check", h.CheckContract)
			r.Post("/identities/{identityID}/violations", h.RecordViolation)
			r.Post("/identities/{identityID}/events/{event}", h.RecordIdentityEvent)
			r.Put("/identities/{identityID}/contract", h.UpdateContract)
			r.Post("/identities/{identityID}/retire", h.RetireIdentity)
		})
	})
}
