package http

import (
	"net/http"

	"github.com/multivitaminds/signof-sub014/internal/domain/tenant"
)

// UpsertTenant creates or updates the caller's tenant record.
func (h *Handlers) UpsertTenant(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[tenant.CreateRequest](w, r)
	if !ok {
		return
	}
	req.ID = tenantOf(r)
	t, err := h.Tenants.Upsert(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GetTenant returns the caller's tenant record.
func (h *Handlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tenants.Get(r.Context(), tenantOf(r))
	if err != nil {
		writeDomainError(w, r, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}
