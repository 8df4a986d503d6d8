package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	sgotel "github.com/multivitaminds/signof-sub014/internal/adapter/otel"
	"github.com/multivitaminds/signof-sub014/internal/config"
	"github.com/multivitaminds/signof-sub014/internal/domain"
	"github.com/multivitaminds/signof-sub014/internal/domain/agent"
	"github.com/multivitaminds/signof-sub014/internal/domain/budget"
	"github.com/multivitaminds/signof-sub014/internal/domain/conversation"
	"github.com/multivitaminds/signof-sub014/internal/domain/cost"
	"github.com/multivitaminds/signof-sub014/internal/domain/run"
	"github.com/multivitaminds/signof-sub014/internal/logger"
	"github.com/multivitaminds/signof-sub014/internal/port/broadcast"
	"github.com/multivitaminds/signof-sub014/internal/port/database"
	"github.com/multivitaminds/signof-sub014/internal/port/llm"
	"github.com/multivitaminds/signof-sub014/internal/port/messagequeue"
	"github.com/multivitaminds/signof-sub014/internal/resilience"
)

// KernelStore is the persistence the kernel needs.
type KernelStore interface {
	database.RunStore
	database.ConversationStore
}

// ProcessRequest is one user message submitted to the kernel.
type ProcessRequest struct {
	TenantID       string `json:"tenant_id"`
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	AgentType      string `json:"agent_type,omitempty"`
	IdentityID     string `json:"identity_id,omitempty"`
}

// ProcessResponse is the kernel's answer.
type ProcessResponse struct {
	ConversationID string          `json:"conversation_id"`
	RunID          string          `json:"run_id"`
	Content        string          `json:"content"`
	AgentType      agent.Type      `json:"agent_type"`
	Model          string          `json:"model"`
	Provider       string          `json:"provider"`
	Usage          cost.TokenUsage `json:"usage"`
	CostUSD        float64         `json:"cost_usd"`
	ToolCalls      []run.ToolCall  `json:"tool_calls,omitempty"`
}

// Kernel orchestrates one message end to end: routing, model selection,
// the model call, at most one tool round trip, and cost accounting.
type Kernel struct {
	store      KernelStore
	selector   *Selector
	llms       *llm.Registry
	tools      *ToolExecutor
	budgets    *BudgetService
	identities *IdentityService
	breakers   *resilience.Registry
	queue      messagequeue.Queue
	hub        broadcast.Broadcaster
	pricing    cost.Pricing
	cfg        config.Kernel
	metrics    *sgotel.Metrics
	now        func() time.Time
}

// KernelDeps groups the kernel's collaborators. Tools, Identities, Queue
// and Hub are optional.
type KernelDeps struct {
	Store      KernelStore
	Selector   *Selector
	LLMs       *llm.Registry
	Tools      *ToolExecutor
	Budgets    *BudgetService
	Identities *IdentityService
	Breakers   *resilience.Registry
	Queue      messagequeue.Queue
	Hub        broadcast.Broadcaster
}

// NewKernel creates a Kernel.
func NewKernel(deps KernelDeps, cfg config.Kernel) *Kernel {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = 2 * time.Minute
	}
	return &Kernel{
		store:      deps.Store,
		selector:   deps.Selector,
		llms:       deps.LLMs,
		tools:      deps.Tools,
		budgets:    deps.Budgets,
		identities: deps.Identities,
		breakers:   deps.Breakers,
		queue:      deps.Queue,
		hub:        deps.Hub,
		pricing:    cost.Pricing{PerThousand: cfg.Pricing, DefaultRate: cfg.DefaultRatePer1K},
		cfg:        cfg,
		now:        time.Now,
	}
}

// SetMetrics attaches metric instruments.
func (k *Kernel) SetMetrics(m *sgotel.Metrics) { k.metrics = m }

// prepared is the state resolved before a run is created.
type prepared struct {
	agentType agent.Type
	agentKey  string
	selection Selection
	client    llm.Client
	system    string
	conv      *conversation.Conversation
}

// ProcessMessage handles one user message. Failures before the run exists
// are returned as is; later failures mark the run failed and are returned
// as *run.Error.
func (k *Kernel) ProcessMessage(ctx context.Context, req ProcessRequest) (*ProcessResponse, error) {
	if req.TenantID == "" || req.UserID == "" {
		return nil, fmt.Errorf("tenant_id and user_id are required: %w", domain.ErrValidation)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("message is required: %w", domain.ErrValidation)
	}

	p, err := k.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	ctx, span := sgotel.StartKernelSpan(ctx, req.TenantID, string(p.agentType))
	defer span.End()

	r := &run.Run{
		ID:             uuid.NewString(),
		TenantID:       req.TenantID,
		UserID:         req.UserID,
		ConversationID: p.conv.ID,
		IdentityID:     req.IdentityID,
		AgentType:      string(p.agentType),
		Model:          p.selection.Model,
		Provider:       p.selection.Provider,
		Status:         run.StatusRunning,
		Task:           req.Message,
		StartedAt:      k.now().UTC(),
	}
	if err := k.store.CreateRun(ctx, r); err != nil {
		span.SetStatus(codes.Error, "create run")
		return nil, fmt.Errorf("create run: %w", err)
	}
	ctx = logger.WithRunID(ctx, r.ID)
	span.SetAttributes(attribute.String("run.id", r.ID))
	k.runStarted(ctx, r)

	resp, stage, err := k.execute(ctx, r, p, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		k.fail(ctx, r, stage, err)
		return nil, &run.Error{RunID: r.ID, Stage: stage, Err: err}
	}
	return resp, nil
}

// prepare resolves the agent type, model, budget and conversation.
func (k *Kernel) prepare(ctx context.Context, req ProcessRequest) (*prepared, error) {
	p := &prepared{}
	if req.AgentType != "" {
		t, err := agent.ParseType(req.AgentType)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		p.agentType = t
	} else {
		p.agentType = Route(req.Message)
	}
	profile, _ := agent.Lookup(p.agentType)
	p.system = profile.SystemPrompt
	p.agentKey = AgentKey(req.TenantID, req.IdentityID, p.agentType)

	if err := k.checkIdentity(ctx, req.IdentityID); err != nil {
		return nil, err
	}

	sel, err := k.selector.Select(ctx, req.TenantID, p.agentType)
	if err != nil {
		return nil, err
	}
	client, err := k.llms.Client(sel.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNoProvider, err)
	}
	p.selection, p.client = sel, client

	bd, err := k.budgets.CheckBudget(ctx, p.agentKey, budget.Usage{})
	switch {
	case err != nil:
		slog.Warn("preflight budget check failed", "agent_id", p.agentKey, "error", err)
	case !bd.Allowed:
		return nil, fmt.Errorf("agent %s: %s: %w", p.agentKey, bd.Reason, domain.ErrBudgetExhausted)
	case bd.WarningReached:
		p.system += fmt.Sprintf("\n\nBudget notice: %.0f%% of your token budget and %.0f%% of your cost budget are used. Keep answers short and avoid unnecessary tool calls.", bd.TokenPct, bd.CostPct)
	}

	conv, err := k.conversation(ctx, req)
	if err != nil {
		return nil, err
	}
	p.conv = conv
	return p, nil
}

// AgentKey is the budget key of an agent: its identity when one is bound,
// otherwise the tenant-scoped agent type.
func AgentKey(tenantID, identityID string, t agent.Type) string {
	if identityID != "" {
		return identityID
	}
	return tenantID + ":" + string(t)
}

// checkIdentity rejects retired identities. Unknown identities pass.
func (k *Kernel) checkIdentity(ctx context.Context, identityID string) error {
	if k.identities == nil || identityID == "" {
		return nil
	}
	id, err := k.identities.Get(ctx, identityID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("identity lookup failed", "identity_id", identityID, "error", err)
		}
		return nil
	}
	if id.Retired() {
		return fmt.Errorf("identity %s is retired: %w", identityID, domain.ErrConflict)
	}
	return nil
}

func (k *Kernel) conversation(ctx context.Context, req ProcessRequest) (*conversation.Conversation, error) {
	if req.ConversationID != "" {
		c, err := k.store.GetConversation(ctx, req.TenantID, req.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("get conversation %s: %w", req.ConversationID, err)
		}
		return c, nil
	}
	now := k.now().UTC()
	c := &conversation.Conversation{
		ID:        uuid.NewString(),
		TenantID:  req.TenantID,
		UserID:    req.UserID,
		Title:     conversation.TitleFrom(req.Message),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := k.store.CreateConversation(ctx, c); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

// execute runs every step after run creation. It returns the failing
// stage alongside any error.
func (k *Kernel) execute(ctx context.Context, r *run.Run, p *prepared, req ProcessRequest) (*ProcessResponse, string, error) {
	history, err := k.store.RecentMessages(ctx, r.TenantID, p.conv.ID, k.cfg.HistoryLimit)
	if err != nil {
		return nil, "load_history", err
	}
	if err := k.appendMessage(ctx, p.conv, conversation.RoleUser, req.Message, "", cost.TokenUsage{}); err != nil {
		return nil, "store_user_message", err
	}

	messages := make([]llm.Message, 0, len(history)+3)
	for _, m := range history {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: string(conversation.RoleUser), Content: req.Message})

	var defs []llm.ToolDef
	if k.tools != nil {
		defs = k.tools.Defs()
	}
	first, err := k.callModel(ctx, r, p, llm.Request{
		Model:        p.selection.Model,
		SystemPrompt: p.system,
		Messages:     messages,
		Tools:        defs,
	})
	if err != nil {
		return nil, "model_call", err
	}
	usage, content := first.Usage, first.Content

	var calls []run.ToolCall
	if len(first.ToolCalls) > 0 && k.tools != nil {
		for _, call := range first.ToolCalls {
			calls = append(calls, k.tools.Execute(ctx, ToolInvocation{
				RunID:      r.ID,
				TenantID:   r.TenantID,
				ActorID:    r.UserID,
				AgentID:    p.agentKey,
				IdentityID: r.IdentityID,
				AgentType:  r.AgentType,
				Call:       call,
			}))
		}
		if first.Content != "" {
			messages = append(messages, llm.Message{Role: string(conversation.RoleAssistant), Content: first.Content})
		}
		messages = append(messages, llm.Message{Role: string(conversation.RoleUser), Content: toolResultsTurn(calls)})

		// Single round trip: the follow-up is offered no tools.
		second, err := k.callModel(ctx, r, p, llm.Request{
			Model:        p.selection.Model,
			SystemPrompt: p.system,
			Messages:     messages,
		})
		if err != nil {
			return nil, "model_followup", err
		}
		usage = usage.Add(second.Usage)
		content = second.Content
	}

	costUSD := k.pricing.Cost(p.selection.Model, usage)

	if err := k.appendMessage(ctx, p.conv, conversation.RoleAssistant, content, p.selection.Model, usage); err != nil {
		return nil, "store_assistant_message", err
	}
	if len(calls) > 0 {
		if err := k.store.AppendToolCalls(ctx, calls); err != nil {
			return nil, "store_tool_calls", err
		}
	}
	if _, err := k.budgets.RecordUsage(ctx, UsageRecord{
		TenantID:      r.TenantID,
		AgentID:       p.agentKey,
		OperationType: "chat",
		Usage:         &usage,
		CostUSD:       costUSD,
	}); err != nil {
		return nil, "record_usage", err
	}
	if err := k.budgets.AddDaily(ctx, r.TenantID, usage, costUSD); err != nil {
		return nil, "daily_cost", err
	}
	completion := run.Completion{TokensIn: usage.InputTokens, TokensOut: usage.OutputTokens, CostUSD: costUSD}
	if err := k.store.CompleteRun(ctx, r.TenantID, r.ID, completion, k.now().UTC()); err != nil {
		return nil, "complete_run", err
	}

	k.runCompleted(ctx, r, completion)
	return &ProcessResponse{
		ConversationID: p.conv.ID,
		RunID:          r.ID,
		Content:        content,
		AgentType:      p.agentType,
		Model:          p.selection.Model,
		Provider:       p.selection.Provider,
		Usage:          usage,
		CostUSD:        costUSD,
		ToolCalls:      calls,
	}, "", nil
}

// callModel invokes the provider behind its breaker with the configured
// timeout. Streaming deltas are broadcast best effort.
func (k *Kernel) callModel(ctx context.Context, r *run.Run, p *prepared, req llm.Request) (*llm.Response, error) {
	breakerID := LLMBreakerID(p.selection.Provider)
	if !k.breakers.Check(breakerID) {
		return nil, fmt.Errorf("provider %s: %w", p.selection.Provider, resilience.ErrCircuitOpen)
	}
	if k.hub != nil {
		req.OnToken = func(delta string) {
			k.hub.BroadcastEvent(ctx, r.TenantID, broadcast.EventRunToken, broadcast.RunTokenEvent{RunID: r.ID, Delta: delta})
		}
	}

	ctx, span := sgotel.StartModelSpan(ctx, r.ID, p.selection.Provider, p.selection.Model)
	defer span.End()
	callCtx, cancel := context.WithTimeout(ctx, k.cfg.ModelTimeout)
	defer cancel()

	resp, err := p.client.Chat(callCtx, req)
	switch {
	case err == nil:
		k.breakers.RecordSuccess(breakerID)
		return resp, nil
	case errors.Is(err, context.DeadlineExceeded):
		k.breakers.RecordTimeout(breakerID)
	case ctx.Err() != nil:
		k.breakers.Release(breakerID)
	default:
		k.breakers.RecordFailure(breakerID)
	}
	span.RecordError(err)
	return nil, err
}

func (k *Kernel) appendMessage(ctx context.Context, c *conversation.Conversation, role conversation.Role, content, model string, usage cost.TokenUsage) error {
	return k.store.AppendMessage(ctx, &conversation.Message{
		ID:             uuid.NewString(),
		ConversationID: c.ID,
		TenantID:       c.TenantID,
		Role:           role,
		Content:        content,
		Model:          model,
		TokensIn:       usage.InputTokens,
		TokensOut:      usage.OutputTokens,
		CreatedAt:      k.now().UTC(),
	})
}

// toolResultsTurn renders tool outputs as the synthetic user turn sent
// with the follow-up call.
func toolResultsTurn(calls []run.ToolCall) string {
	var b strings.Builder
	b.WriteString("Tool results:\n")
	for _, c := range calls {
		fmt.Fprintf(&b, "- %s [%s]: %s\n", c.Name, c.Status, c.Output)
	}
	return b.String()
}

func (k *Kernel) runStarted(ctx context.Context, r *run.Run) {
	slog.Info("run started", "run_id", r.ID, "tenant_id", r.TenantID, "agent_type", r.AgentType, "model", r.Model)
	if k.metrics != nil {
		k.metrics.RunsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("agent_type", r.AgentType)))
	}
	publishEvent(ctx, k.queue, messagequeue.SubjectRunStarted, r)
	if k.hub != nil {
		k.hub.BroadcastEvent(ctx, r.TenantID, broadcast.EventRunStarted, broadcast.RunStartedEvent{
			RunID:          r.ID,
			ConversationID: r.ConversationID,
			AgentType:      r.AgentType,
			Model:          r.Model,
		})
	}
}

func (k *Kernel) runCompleted(ctx context.Context, r *run.Run, c run.Completion) {
	costUSD := c.CostUSD
	if k.identities != nil && r.IdentityID != "" {
		if _, err := k.identities.RecordCycle(ctx, r.IdentityID); err != nil {
			slog.Debug("record identity cycle", "identity_id", r.IdentityID, "error", err)
		}
	}
	if k.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("agent_type", r.AgentType), attribute.String("model", r.Model))
		k.metrics.RunsCompleted.Add(ctx, 1, attrs)
		k.metrics.RunCost.Record(ctx, costUSD, attrs)
	}
	publishEvent(ctx, k.queue, messagequeue.SubjectRunCompleted, messagequeue.RunCompletedPayload{
		RunID:     r.ID,
		TenantID:  r.TenantID,
		Model:     r.Model,
		TokensIn:  c.TokensIn,
		TokensOut: c.TokensOut,
		CostUSD:   costUSD,
	})
	if k.hub != nil {
		k.hub.BroadcastEvent(ctx, r.TenantID, broadcast.EventRunFinished, broadcast.RunFinishedEvent{
			RunID:   r.ID,
			Status:  string(run.StatusCompleted),
			CostUSD: costUSD,
		})
	}
}

// fail marks the run failed. It runs even when ctx is cancelled.
func (k *Kernel) fail(ctx context.Context, r *run.Run, stage string, cause error) {
	ctx = context.WithoutCancel(ctx)
	msg := fmt.Sprintf("%s: %v", stage, cause)
	slog.Error("run failed", "run_id", r.ID, "tenant_id", r.TenantID, "stage", stage, "error", cause)

	if err := k.store.FailRun(ctx, r.TenantID, r.ID, msg, k.now().UTC()); err != nil {
		slog.Error("mark run failed", "run_id", r.ID, "error", err)
	}
	if k.metrics != nil {
		k.metrics.RunsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	}
	publishEvent(ctx, k.queue, messagequeue.SubjectRunFailed, messagequeue.RunFailedPayload{
		RunID:    r.ID,
		TenantID: r.TenantID,
		Stage:    stage,
		Error:    cause.Error(),
	})
	if k.hub != nil {
		k.hub.BroadcastEvent(ctx, r.TenantID, broadcast.EventRunFinished, broadcast.RunFinishedEvent{
			RunID:  r.ID,
			Status: string(run.StatusFailed),
			Error:  msg,
		})
	}
}
