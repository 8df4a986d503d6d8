package service

import (
	"context"

	"github.com/multivitaminds/signof-sub014/internal/domain/conversation"
	"github.com/multivitaminds/signof-sub014/internal/domain/run"
	"github.com/multivitaminds/signof-sub014/internal/port/database"
)

// ConversationService exposes read access to conversations and runs.
// Writes happen only through the Kernel.
type ConversationService struct {
	store KernelStore
}

// NewConversationService creates a ConversationService.
func NewConversationService(store KernelStore) *ConversationService {
	return &ConversationService{store: store}
}

// Get returns a conversation.
func (s *ConversationService) Get(ctx context.Context, tenantID, id string) (*conversation.Conversation, error) {
	return s.store.GetConversation(ctx, tenantID, id)
}

// Messages returns up to limit most recent messages, oldest first.
func (s *ConversationService) Messages(ctx context.Context, tenantID, id string, limit int) ([]conversation.Message, error) {
	if _, err := s.store.GetConversation(ctx, tenantID, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.RecentMessages(ctx, tenantID, id, limit)
}

// Run returns a run.
func (s *ConversationService) Run(ctx context.Context, tenantID, id string) (*run.Run, error) {
	return s.store.GetRun(ctx, tenantID, id)
}

// Runs returns the tenant's most recent runs.
func (s *ConversationService) Runs(ctx context.Context, tenantID string, limit int) ([]run.Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.store.ListRuns(ctx, tenantID, limit)
}

// ToolCalls returns the tool calls recorded for a run.
func (s *ConversationService) ToolCalls(ctx context.Context, tenantID, runID string) ([]run.ToolCall, error) {
	return s.store.ListToolCalls(ctx, tenantID, runID)
}

var _ KernelStore = (database.Store)(nil)
