package http

import (
	"context"
	"net/http"

	"github.com/multivitaminds/signof-sub014/internal/domain/approval"
	"github.com/multivitaminds/signof-sub014/internal/domain/policy"
)

// CheckAction submits a proposed action to the governor. Denials are 200
// responses carrying allowed=false.
func (h *Handlers) CheckAction(w http.ResponseWriter, r *http.Request) {
	ac, ok := readJSON[policy.ActionContext](w, r)
	if !ok {
		return
	}
	ac.TenantID = tenantOf(r)
	d, err := h.Governor.CheckAction(r.Context(), ac)
	if err != nil {
		writeDomainError(w, r, err, "not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ---------------------------------------------------------------------------
// Policies
// ---------------------------------------------------------------------------

// ListPolicies returns the tenant's stored policies.
func (h *Handlers) ListPolicies(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Policies.List(r.Context(), tenantOf(r))
	if err != nil {
		writeDomainError(w, r, err, "policies not found")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ps))
}

// GetPolicy returns one policy.
func (h *Handlers) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.Policies.Get(r.Context(), tenantOf(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "policy not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreatePolicy stores a new policy.
func (h *Handlers) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	p, ok := readJSON[policy.Policy](w, r)
	if !ok {
		return
	}
	created, err := h.Policies.Create(r.Context(), tenantOf(r), p)
	if err != nil {
		writeDomainError(w, r, err, "policy not found")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// UpdatePolicy replaces a policy.
func (h *Handlers) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	p, ok := readJSON[policy.Policy](w, r)
	if !ok {
		return
	}
	updated, err := h.Policies.Update(r.Context(), tenantOf(r), urlParam(r, "id"), p)
	if err != nil {
		writeDomainError(w, r, err, "policy not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeletePolicy removes a policy.
func (h *Handlers) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.Policies.Delete(r.Context(), tenantOf(r), urlParam(r, "id")); err != nil {
		writeDomainError(w, r, err, "policy not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Approvals
// ---------------------------------------------------------------------------

// CreateApproval opens an approval request.
func (h *Handlers) CreateApproval(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[approval.CreateRequest](w, r)
	if !ok {
		return
	}
	req.TenantID = tenantOf(r)
	created, err := h.Approvals.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err, "approval not found")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListPendingApprovals returns the tenant's pending requests.
func (h *Handlers) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Approvals.ListPending(r.Context(), tenantOf(r))
	if err != nil {
		writeDomainError(w, r, err, "approvals not found")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(reqs))
}

// GetApproval returns one request.
func (h *Handlers) GetApproval(w http.ResponseWriter, r *http.Request) {
	req, err := h.Approvals.Get(r.Context(), tenantOf(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ApprovalStatus reports a request's status; unknown ids are expired.
func (h *Handlers) ApprovalStatus(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	st, err := h.Approvals.Status(r.Context(), tenantOf(r), id)
	if err != nil {
		writeDomainError(w, r, err, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approval_id": id, "status": st})
}

// ApproveRequest resolves a pending request as approved.
func (h *Handlers) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveApproval(w, r, h.Approvals.Approve)
}

// DenyRequest resolves a pending request as denied.
func (h *Handlers) DenyRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveApproval(w, r, h.Approvals.Deny)
}

type resolveFunc = func(ctx context.Context, tenantID, id string, res approval.Resolution) (*approval.Request, error)

func (h *Handlers) resolveApproval(w http.ResponseWriter, r *http.Request, fn resolveFunc) {
	res, ok := readJSON[approval.Resolution](w, r)
	if !ok {
		return
	}
	req, err := fn(r.Context(), tenantOf(r), urlParam(r, "id"), res)
	if err != nil {
		writeDomainError(w, r, err, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ---------------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------------

// ListAudit returns the tenant's audit trail, newest first.
func (h *Handlers) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Audit.List(r.Context(), tenantOf(r), queryInt(r, "limit", 100))
	if err != nil {
		writeDomainError(w, r, err, "audit not found")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}
