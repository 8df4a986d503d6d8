package http

import (
	"net/http"

	"github.com/multivitaminds/signof-sub014/internal/service"
)

// ProcessMessage runs one user message through the kernel.
func (h *Handlers) ProcessMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.ProcessRequest](w, r)
	if !ok {
		return
	}
	req.TenantID = tenantOf(r)
	if !requireField(w, req.Message, "message") || !requireField(w, req.UserID, "user_id") {
		return
	}
	resp, err := h.Kernel.ProcessMessage(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetConversation returns one conversation.
func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	c, err := h.Conversations.Get(r.Context(), tenantOf(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListMessages returns the most recent messages of a conversation, oldest first.
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.Conversations.Messages(r.Context(), tenantOf(r), urlParam(r, "id"), queryInt(r, "limit", 50))
	if err != nil {
		writeDomainError(w, r, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(msgs))
}

// ListRuns returns the tenant's most recent runs.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Conversations.Runs(r.Context(), tenantOf(r), queryInt(r, "limit", 50))
	if err != nil {
		writeDomainError(w, r, err, "runs not found")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(runs))
}

// GetRun returns one run.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Conversations.Run(r.Context(), tenantOf(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListToolCalls returns the tool calls made during a run.
func (h *Handlers) ListToolCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := h.Conversations.ToolCalls(r.Context(), tenantOf(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(calls))
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
