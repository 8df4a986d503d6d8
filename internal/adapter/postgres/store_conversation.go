package postgres

import (
	"context"
	"fmt"

	"github.com/multivitaminds/signof-sub014/internal/domain"
	"github.com/multivitaminds/signof-sub014/internal/domain/conversation"
)

func (s *Store) CreateConversation(ctx context.Context, c *conversation.Conversation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, tenant_id, user_id, title, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.TenantID, c.UserID, c.Title, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, tenantID, id string) (*conversation.Conversation, error) {
	var c conversation.Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, user_id, title, created_at, updated_at
		 FROM conversations WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&c.ID, &c.TenantID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get conversation %s", id)
	}
	return &c, nil
}

func (s *Store) AppendMessage(ctx context.Context, m *conversation.Message) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_messages (id, conversation_id, tenant_id, role, content, model, tokens_in, tokens_out, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.ConversationID, m.TenantID, m.Role, m.Content, m.Model, m.TokensIn, m.TokensOut, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	// Update conversation's updated_at
	_, _ = s.pool.Exec(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, m.ConversationID, m.CreatedAt)
	return nil
}

func (s *Store) RecentMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]conversation.Message, error) {
	ok, err := s.exists(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1 AND tenant_id = $2)`, conversationID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, tenant_id, role, content, model, tokens_in, tokens_out, created_at
		 FROM (
		     SELECT * FROM conversation_messages
		     WHERE conversation_id = $1 AND tenant_id = $2
		     ORDER BY seq DESC LIMIT $3
		 ) recent ORDER BY seq ASC`,
		conversationID, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var result []conversation.Message
	for rows.Next() {
		var m conversation.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.TenantID, &m.Role, &m.Content,
			&m.Model, &m.TokensIn, &m.TokensOut, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
