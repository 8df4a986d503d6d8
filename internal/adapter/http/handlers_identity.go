package http

import (
	"net/http"

	"github.com/multivitaminds/signof-sub014/internal/domain/identity"
)

// CreateIdentity registers an agent identity for the caller's tenant.
func (h *Handlers) CreateIdentity(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[identity.CreateRequest](w, r)
	if !ok {
		return
	}
	req.TenantID = tenantOf(r)
	id, err := h.Identities.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err, "identity not found")
		return
	}
	writeJSON(w, http.StatusCreated, id)
}

// ListIdentities returns the tenant's identities.
func (h *Handlers) ListIdentities(w http.ResponseWriter, r *http.Request) {
	ids, err := h.Identities.List(r.Context(), tenantOf(r))
	if err != nil {
		writeDomainError(w, r, err, "identity not found")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ids))
}

// GetIdentity returns one identity. Identities of other tenants are not found.
func (h *Handlers) GetIdentity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedIdentity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// CheckContract evaluates an action against the identity's contract.
func (h *Handlers) CheckContract(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedIdentity(w, r)
	if !ok {
		return
	}
	a, ok := readJSON[identity.ContractAction](w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Identities.CheckContract(r.Context(), id.ID, a))
}

type violationRequest struct {
	Action identity.ContractAction `json:"action"`
	Result identity.ContractResult `json:"result"`
}

// RecordViolation counts a contract violation against the identity.
func (h *Handlers) RecordViolation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedIdentity(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[violationRequest](w, r)
	if !ok {
		return
	}
	updated, err := h.Identities.RecordContractViolation(r.Context(), id.ID, req.Action, req.Result)
	if err != nil {
		writeDomainError(w, r, err, "identity not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// RecordIdentityEvent increments one lifecycle counter, selected by the
// {event} URL parameter.
func (h *Handlers) RecordIdentityEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedIdentity(w, r)
	if !ok {
		return
	}
	var (
		updated *identity.Identity
		err     error
	)
	switch event := urlParam(r, "event"); event {
	case "action":
		updated, err = h.Identities.RecordAction(r.Context(), id.ID)
	case "error":
		updated, err = h.Identities.RecordError(r.Context(), id.ID)
	case "deployment":
		updated, err = h.Identities.RecordDeployment(r.Context(), id.ID)
	case "cycle":
		updated, err = h.Identities.RecordCycle(r.Context(), id.ID)
	case "repair":
		updated, err = h.Identities.RecordRepair(r.Context(), id.ID)
	default:
		writeError(w, http.StatusBadRequest, "unknown identity event "+event)
		return
	}
	if err != nil {
		writeDomainError(w, r, err, "identity not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// UpdateContract replaces the identity's contract.
func (h *Handlers) UpdateContract(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedIdentity(w, r)
	if !ok {
		return
	}
	c, ok := readJSON[identity.Contract](w, r)
	if !ok {
		return
	}
	updated, err := h.Identities.UpdateContract(r.Context(), id.ID, c)
	if err != nil {
		writeDomainError(w, r, err, "identity not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// RetireIdentity retires the identity.
func (h *Handlers) RetireIdentity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedIdentity(w, r)
	if !ok {
		return
	}
	updated, err := h.Identities.Retire(r.Context(), id.ID)
	if err != nil {
		writeDomainError(w, r, err, "identity not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handlers) ownedIdentity(w http.ResponseWriter, r *http.Request) (*identity.Identity, bool) {
	id, err := h.Identities.Get(r.Context(), urlParam(r, "identityID"))
	if err != nil {
		writeDomainError(w, r, err, "identity not found")
		return nil, false
	}
	if id.TenantID != tenantOf(r) {
		writeError(w, http.StatusNotFound, "identity not found")
		return nil, false
	}
	return id, true
}
