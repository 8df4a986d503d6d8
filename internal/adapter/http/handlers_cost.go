package http

import (
	"net/http"

	"github.com/multivitaminds/signof-sub014/internal/domain/budget"
	"github.com/multivitaminds/signof-sub014/internal/service"
)

type budgetCheckRequest struct {
	AgentID string  `json:"agent_id"`
	Tokens  int64   `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

// CheckBudget evaluates whether an agent can afford the requested usage.
func (h *Handlers) CheckBudget(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[budgetCheckRequest](w, r)
	if !ok || !requireField(w, req.AgentID, "agent_id") {
		return
	}
	if !h.ownsAgentBudget(w, r, req.AgentID) {
		return
	}
	d, err := h.Budgets.CheckBudget(r.Context(), req.AgentID, budget.Usage{Tokens: req.Tokens, CostUSD: req.CostUSD})
	if err != nil {
		writeDomainError(w, r, err, "budget not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// RecordUsage appends a cost record to the ledger.
func (h *Handlers) RecordUsage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.UsageRecord](w, r)
	if !ok {
		return
	}
	req.TenantID = tenantOf(r)
	if !h.ownsAgentBudget(w, r, req.AgentID) {
		return
	}
	rec, err := h.Budgets.RecordUsage(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err, "budget not found")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// SetAgentBudget configures an agent budget and resets its counters.
func (h *Handlers) SetAgentBudget(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[budget.SetRequest](w, r)
	if !ok {
		return
	}
	req.AgentID = urlParam(r, "agentID")
	req.TenantID = tenantOf(r)
	if !h.ownsAgentBudget(w, r, req.AgentID) {
		return
	}
	b, err := h.Budgets.SetBudget(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err, "budget not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GetAgentBudget returns an agent budget.
func (h *Handlers) GetAgentBudget(w http.ResponseWriter, r *http.Request) {
	b, err := h.Budgets.GetBudget(r.Context(), urlParam(r, "agentID"))
	if err != nil {
		writeDomainError(w, r, err, "budget not found")
		return
	}
	if b.TenantID != "" && b.TenantID != tenantOf(r) {
		writeError(w, http.StatusNotFound, "budget not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// AgentBudgetStatus reports an agent's consumption percentages.
func (h *Handlers) AgentBudgetStatus(w http.ResponseWriter, r *http.Request) {
	agentID := urlParam(r, "agentID")
	if !h.ownsAgentBudget(w, r, agentID) {
		return
	}
	st, err := h.Budgets.Status(r.Context(), agentID)
	if err != nil {
		writeDomainError(w, r, err, "budget not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListCostRecords returns an agent's most recent ledger entries.
func (h *Handlers) ListCostRecords(w http.ResponseWriter, r *http.Request) {
	agentID := urlParam(r, "agentID")
	if !h.ownsAgentBudget(w, r, agentID) {
		return
	}
	recs, err := h.Budgets.CostRecords(r.Context(), agentID, queryInt(r, "limit", 100))
	if err != nil {
		writeDomainError(w, r, err, "budget not found")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(recs))
}

// GetTenantBudget returns the tenant's monthly cap.
func (h *Handlers) GetTenantBudget(w http.ResponseWriter, r *http.Request) {
	b, err := h.Budgets.GetTenantBudget(r.Context(), tenantOf(r))
	if err != nil {
		writeDomainError(w, r, err, "tenant budget not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// SetTenantBudget configures the tenant's monthly cap.
func (h *Handlers) SetTenantBudget(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[budget.TenantBudget](w, r)
	if !ok {
		return
	}
	req.TenantID = tenantOf(r)
	b, err := h.Budgets.SetTenantBudget(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err, "tenant budget not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// CheckTenantBudget evaluates additional spend against the tenant's cap.
func (h *Handlers) CheckTenantBudget(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[budgetCheckRequest](w, r)
	if !ok {
		return
	}
	d, err := h.Budgets.CheckTenantBudget(r.Context(), tenantOf(r), req.CostUSD)
	if err != nil {
		writeDomainError(w, r, err, "tenant budget not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ListDailyCosts returns the tenant's daily aggregates.
func (h *Handlers) ListDailyCosts(w http.ResponseWriter, r *http.Request) {
	days, err := h.Budgets.DailyCosts(r.Context(), tenantOf(r), queryInt(r, "days", 30))
	if err != nil {
		writeDomainError(w, r, err, "costs not found")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(days))
}

// ownsAgentBudget rejects agents whose budget belongs to another tenant.
// Agents without a budget pass.
func (h *Handlers) ownsAgentBudget(w http.ResponseWriter, r *http.Request, agentID string) bool {
	if agentID == "" {
		return true
	}
	b, err := h.Budgets.GetBudget(r.Context(), agentID)
	if err != nil || b.TenantID == "" || b.TenantID == tenantOf(r) {
		return true
	}
	writeError(w, http.StatusNotFound, "budget not found")
	return false
}
