package http

import (
	"net/http"

	"github.com/multivitaminds/signof-sub014/internal/port/connector"
	"github.com/multivitaminds/signof-sub014/internal/service"
)

// Handlers holds the services behind the HTTP surface. Models and Tools
// are optional.
type Handlers struct {
	Kernel        *service.Kernel
	Conversations *service.ConversationService
	Governor      *service.Governor
	Policies      *service.PolicyService
	Approvals     *service.ApprovalService
	Audit         *service.AuditService
	Breakers      *service.BreakerService
	Budgets       *service.BudgetService
	Identities    *service.IdentityService
	Tenants       *service.TenantService
	Models        *service.ModelRegistry
	Tools         *connector.Registry
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListModels returns the models discovered through the LLM proxy.
func (h *Handlers) ListModels(w http.ResponseWriter, _ *http.Request) {
	if h.Models == nil {
		writeJSON(w, http.StatusOK, map[string]any{"models": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models":       h.Models.AvailableModels(),
		"last_refresh": h.Models.LastRefresh(),
	})
}

// ListTools returns the tool catalog offered to agents.
func (h *Handlers) ListTools(w http.ResponseWriter, _ *http.Request) {
	if h.Tools == nil {
		writeJSON(w, http.StatusOK, []connector.Tool{})
		return
	}
	writeJSON(w, http.StatusOK, h.Tools.Tools())
}
