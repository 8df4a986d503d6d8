package http

import "net/http"

// ListBreakers returns a snapshot of every known connector breaker.
func (h *Handlers) ListBreakers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Breakers.List())
}

// GetBreaker returns one breaker snapshot. Unknown connectors report closed.
func (h *Handlers) GetBreaker(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Breakers.Status(urlParam(r, "connectorID")))
}

// CheckBreaker asks whether a call to the connector may proceed. A granted
// half-open probe counts against the probe budget.
func (h *Handlers) CheckBreaker(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "connectorID")
	allowed := h.Breakers.Check(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"allowed": allowed,
		"breaker": h.Breakers.Status(id),
	})
}

// RecordBreakerSuccess reports a successful connector call.
func (h *Handlers) RecordBreakerSuccess(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "connectorID")
	h.Breakers.RecordSuccess(id)
	writeJSON(w, http.StatusOK, h.Breakers.Status(id))
}

// RecordBreakerFailure reports a failed connector call.
func (h *Handlers) RecordBreakerFailure(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "connectorID")
	h.Breakers.RecordFailure(id)
	writeJSON(w, http.StatusOK, h.Breakers.Status(id))
}

// ResetBreaker forces the breaker closed.
func (h *Handlers) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Breakers.Reset(urlParam(r, "connectorID")))
}
