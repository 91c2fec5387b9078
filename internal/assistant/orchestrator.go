// Package assistant runs the exchange pipeline: quota check, context build,
// model calls, tool dispatch and transcript persistence. One Exchange call
// is one user-message-in, assistant-message-out round trip.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ledgermate-backend/internal/functions"
	"ledgermate-backend/internal/llm"
	"ledgermate-backend/internal/metrics"
	"ledgermate-backend/internal/models"
	"ledgermate-backend/internal/policy"
	"ledgermate-backend/internal/store"
	"ledgermate-backend/pkg/logger"
)

// ErrEmptyMessage rejects exchanges with no user text.
var ErrEmptyMessage = errors.New("message must not be empty")

// ModelClient is the chat completion surface the orchestrator needs.
// *llm.Client satisfies it; tests substitute a scripted stub.
type ModelClient interface {
	CompleteChat(ctx context.Context, messages []llm.ChatMessage, opts llm.Options) (*llm.Completion, error)
	CompleteChatWithTools(ctx context.Context, messages []llm.ChatMessage, tools []llm.Tool, opts llm.Options) (*llm.Completion, error)
}

// Config tunes the pipeline.
type Config struct {
	// HistoryWindow is how many recent transcript rows are replayed into the
	// model context. Older history is dropped, not summarized.
	HistoryWindow int
	// DispatchParallelism bounds concurrent tool executions in one exchange.
	DispatchParallelism int
	// FunctionTimeout is the per-tool-call deadline. Zero means the
	// exchange deadline alone applies.
	FunctionTimeout time.Duration
	// SettingsDefaults seeds the settings row created on a tenant's first
	// exchange.
	SettingsDefaults store.SettingsDefaults
}

// DefaultConfig returns the production pipeline settings.
func DefaultConfig() Config {
	return Config{
		HistoryWindow:       10,
		DispatchParallelism: 4,
		FunctionTimeout:     15 * time.Second,
		SettingsDefaults: store.SettingsDefaults{
			DailyLimit:   50,
			Model:        "gpt-4o-mini",
			MaxTokens:    1024,
			Temperature:  0.2,
			SystemPrompt: defaultSystemPrompt,
		},
	}
}

const defaultSystemPrompt = "You are LedgerMate, the accounting assistant. " +
	"You help with customers, invoices and sales orders for exactly one " +
	"organization. Use the provided tools to read or change data instead of " +
	"guessing, report tool failures honestly, and keep answers short and " +
	"concrete. Amounts are stored in cents."

// Request is one inbound exchange.
type Request struct {
	OrgID   uuid.UUID
	UserID  uuid.UUID
	Message string
	// UserRole comes from the verified access token, not from UIContext,
	// and feeds the tool policy gate.
	UserRole string
	// SessionID continues an existing session; nil starts a new one.
	SessionID *uuid.UUID
	// Source and ExternalRef tag sessions created by this request.
	Source      string
	ExternalRef *string
	// Context is the optional view state from the caller.
	Context *UIContext
}

// ExecutedFunction reports one dispatched tool call to the caller.
type ExecutedFunction struct {
	Name       string `json:"name"`
	Success    bool   `json:"success"`
	EntityType string `json:"entityType,omitempty"`
	EntityID   string `json:"entityId,omitempty"`
}

// Response is one completed exchange.
type Response struct {
	SessionID         uuid.UUID          `json:"sessionId"`
	Content           string             `json:"content"`
	Confidence        float64            `json:"confidence"`
	Form              *Form              `json:"form,omitempty"`
	SuggestedActions  []SuggestedAction  `json:"suggestedActions,omitempty"`
	ExecutedFunctions []ExecutedFunction `json:"executedFunctions,omitempty"`
}

// Orchestrator drives the exchange pipeline against one store, one model
// client and one merged tool set. Safe for concurrent use.
type Orchestrator struct {
	store  store.Store
	model  ModelClient
	tools  *functions.Set
	policy *policy.Engine
	cfg    Config
	log    *logger.Logger
}

// New assembles an orchestrator. A nil policy engine disables the gate.
func New(st store.Store, model ModelClient, tools *functions.Set, gate *policy.Engine, cfg Config) *Orchestrator {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 10
	}
	if cfg.DispatchParallelism <= 0 {
		cfg.DispatchParallelism = 4
	}
	return &Orchestrator{
		store:  st,
		model:  model,
		tools:  tools,
		policy: gate,
		cfg:    cfg,
		log:    logger.Get().WithComponent("assistant"),
	}
}

// Exchange runs one full round trip. Classified failures come back as
// *Error; anything else is an unexpected internal fault.
func (o *Orchestrator) Exchange(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		metrics.ObserveExchange(outcome)
	}()

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	settings, err := o.checkQuota(ctx, req.OrgID)
	if err != nil {
		outcome = KindOf(err).String()
		return nil, err
	}

	session, err := o.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}

	if form := ClassifyIntent(message); form != nil {
		resp, err := o.respondWithForm(ctx, req, session, message, form, start)
		if err != nil {
			return nil, err
		}
		outcome = "form"
		return resp, nil
	}

	messages, err := o.buildContext(ctx, settings, session, req, message)
	if err != nil {
		return nil, err
	}

	opts := llm.Options{
		Model:       settings.Model,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	}

	callStart := time.Now()
	completion, err := o.model.CompleteChatWithTools(ctx, messages, o.toolList(), opts)
	metrics.ObserveModelCall("tools", time.Since(callStart))
	if err != nil {
		classified := fromModelError(err)
		outcome = classified.Kind.String()
		o.log.LogError(err, "model call failed", "org_id", req.OrgID.String(), "stage", "tools")
		return nil, classified
	}

	var executed []ExecutedFunction
	if len(completion.ToolCalls) > 0 {
		calls := completion.ToolCalls
		results := o.dispatch(ctx, req, calls)

		executed = make([]ExecutedFunction, len(calls))
		for i := range calls {
			executed[i] = ExecutedFunction{
				Name:       calls[i].Function.Name,
				Success:    results[i].Success,
				EntityType: results[i].EntityType,
				EntityID:   results[i].EntityID,
			}
		}

		messages = append(messages, llm.ChatMessage{
			Role:      llm.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: calls,
		})
		for i := range calls {
			messages = append(messages, llm.ChatMessage{
				Role:       llm.RoleTool,
				Content:    toolResultContent(results[i]),
				ToolCallID: calls[i].ID,
			})
		}

		callStart = time.Now()
		completion, err = o.model.CompleteChat(ctx, messages, opts)
		metrics.ObserveModelCall("synthesis", time.Since(callStart))
		if err != nil {
			classified := fromModelError(err)
			outcome = classified.Kind.String()
			o.log.LogError(err, "model call failed", "org_id", req.OrgID.String(), "stage", "synthesis")
			return nil, classified
		}
	}

	content := strings.TrimSpace(completion.Content)
	if content == "" {
		content = "I was not able to put together a response. Please try rephrasing your request."
	}

	if err := o.persist(ctx, session.ID, req, message, content, completion.Confidence, start); err != nil {
		return nil, err
	}

	outcome = "completed"
	return &Response{
		SessionID:         session.ID,
		Content:           content,
		Confidence:        completion.Confidence,
		SuggestedActions:  SuggestActions(content, uiContext(req)),
		ExecutedFunctions: executed,
	}, nil
}

// checkQuota is the single access path for the enablement and daily-limit
// decision. When the stored reset date is behind today (UTC) the usage
// counter is reset first and the state re-read, so a stale row can never
// keep blocking a tenant after midnight.
func (o *Orchestrator) checkQuota(ctx context.Context, orgID uuid.UUID) (*models.AssistantSettings, error) {
	settings, err := o.store.GetOrCreateAssistantSettings(ctx, orgID, o.cfg.SettingsDefaults)
	if err != nil {
		return nil, fmt.Errorf("failed to load assistant settings: %w", err)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	if settings.LastResetDate.Before(today) {
		if _, err := o.store.ResetDailyUsage(ctx, orgID, today); err != nil {
			return nil, fmt.Errorf("failed to reset daily usage: %w", err)
		}
		settings, err = o.store.GetOrCreateAssistantSettings(ctx, orgID, o.cfg.SettingsDefaults)
		if err != nil {
			return nil, fmt.Errorf("failed to reload assistant settings: %w", err)
		}
	}

	if !settings.Enabled {
		return nil, &Error{
			Kind:    KindDisabled,
			Message: "The assistant is turned off for this organization.",
		}
	}
	if settings.CurrentUsage >= settings.DailyLimit {
		return nil, &Error{
			Kind:    KindQuotaExceeded,
			Message: fmt.Sprintf("The daily limit of %d assistant exchanges is reached. It resets at midnight UTC.", settings.DailyLimit),
		}
	}
	return settings, nil
}

func (o *Orchestrator) resolveSession(ctx context.Context, req Request) (*models.AssistantSession, error) {
	if req.SessionID != nil {
		session, err := o.store.GetSessionByID(ctx, *req.SessionID, req.OrgID)
		if err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		return session, nil
	}

	source := req.Source
	if source == "" {
		source = models.SessionSourceWeb
	}
	session, err := o.store.CreateSession(ctx, store.CreateSessionParams{
		OrganizationID: req.OrgID,
		Source:         source,
		ExternalRef:    req.ExternalRef,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// respondWithForm finishes the intent-shortcut path: no model call, a
// deterministic form reply, persisted and quota-counted like any exchange.
func (o *Orchestrator) respondWithForm(ctx context.Context, req Request, session *models.AssistantSession, message string, form *Form, start time.Time) (*Response, error) {
	content := form.Prompt()
	if err := o.persist(ctx, session.ID, req, message, content, 1.0, start); err != nil {
		return nil, err
	}
	return &Response{
		SessionID:        session.ID,
		Content:          content,
		Confidence:       1.0,
		Form:             form,
		SuggestedActions: SuggestActions(content, uiContext(req)),
	}, nil
}

func (o *Orchestrator) buildContext(ctx context.Context, settings *models.AssistantSettings, session *models.AssistantSession, req Request, message string) ([]llm.ChatMessage, error) {
	history, err := o.store.ListRecentMessages(ctx, session.ID, req.OrgID, o.cfg.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load session history: %w", err)
	}

	messages := make([]llm.ChatMessage, 0, len(history)+3)
	messages = append(messages, llm.ChatMessage{Role: llm.RoleSystem, Content: settings.SystemPrompt})
	for _, m := range history {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		messages = append(messages, llm.ChatMessage{Role: m.Role, Content: m.Content})
	}
	if note := o.entityNote(ctx, req); note != "" {
		messages = append(messages, llm.ChatMessage{Role: llm.RoleSystem, Content: note})
	}
	messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: message})
	return messages, nil
}

// entityNote renders the caller's current entity into a context note. For
// customers the record is loaded for a richer note; lookup failures fall
// back to the bare reference rather than failing the exchange.
func (o *Orchestrator) entityNote(ctx context.Context, req Request) string {
	if req.Context == nil || req.Context.EntityType == "" || req.Context.EntityID == "" {
		return ""
	}

	if req.Context.EntityType == "customer" {
		if id, err := uuid.Parse(req.Context.EntityID); err == nil {
			if customer, err := o.store.GetCustomerByID(ctx, id, req.OrgID); err == nil {
				note := fmt.Sprintf("The user is currently viewing customer %q (id %s)", customer.Name, customer.ID)
				if customer.Email != nil {
					note += fmt.Sprintf(", email %s", *customer.Email)
				}
				if customer.City != nil {
					note += fmt.Sprintf(", based in %s", *customer.City)
				}
				return note + "."
			}
		}
	}
	return fmt.Sprintf("The user is currently viewing %s %s.", req.Context.EntityType, req.Context.EntityID)
}

func (o *Orchestrator) toolList() []llm.Tool {
	defs := o.tools.Definitions()
	tools := make([]llm.Tool, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, llm.Tool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return tools
}

// dispatch executes the model's tool calls concurrently with bounded
// parallelism. results[i] always corresponds to calls[i] no matter the
// completion order, and a failing call degrades to an inline failed result
// without touching its siblings.
func (o *Orchestrator) dispatch(ctx context.Context, req Request, calls []llm.ToolCall) []functions.Result {
	results := make([]functions.Result, len(calls))

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.DispatchParallelism)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = o.executeCall(ctx, req, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) executeCall(ctx context.Context, req Request, call llm.ToolCall) functions.Result {
	name := call.Function.Name

	registry := "unknown"
	if reg, ok := o.tools.RegistryFor(name); ok {
		registry = reg.Name()
	}

	if o.cfg.FunctionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.FunctionTimeout)
		defer cancel()
	}

	if o.policy != nil {
		decision := o.policy.Decide(ctx, policy.Input{
			Function: name,
			Registry: registry,
			Role:     req.UserRole,
		})
		if decision != policy.DecisionAllow {
			o.log.Warn("tool call blocked by policy",
				"function", name, "role", req.UserRole, "org_id", req.OrgID.String())
			metrics.ObserveFunctionCall(registry, false)
			return functions.Result{
				Success: false,
				Message: fmt.Sprintf("your role does not permit running %s", name),
			}
		}
	}

	result := o.tools.Execute(ctx, name, call.Function.Arguments, req.OrgID)
	metrics.ObserveFunctionCall(registry, result.Success)
	return result
}

// toolResultContent renders a function result as the tool message body for
// the synthesis call.
func toolResultContent(result functions.Result) string {
	b, err := json.Marshal(result)
	if err != nil {
		return result.Message
	}
	return string(b)
}

// persist writes the user and assistant rows and bumps the usage counter in
// one store transaction. Nothing is written until the exchange has a final
// answer, so cancellation before this point leaves no trace.
func (o *Orchestrator) persist(ctx context.Context, sessionID uuid.UUID, req Request, userText, assistantText string, confidence float64, start time.Time) error {
	latency := int(time.Since(start).Milliseconds())

	userMessage := store.NewMessage{Role: models.RoleUser, Content: userText}
	if req.Context != nil && req.Context.EntityType != "" && req.Context.EntityID != "" {
		userMessage.EntityType = &req.Context.EntityType
		userMessage.EntityID = &req.Context.EntityID
	}

	err := o.store.RecordExchange(ctx, store.RecordExchangeParams{
		OrganizationID: req.OrgID,
		SessionID:      sessionID,
		UserMessage:    userMessage,
		AssistantMessage: store.NewMessage{
			Role:       models.RoleAssistant,
			Content:    assistantText,
			Confidence: &confidence,
			LatencyMS:  &latency,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to record exchange: %w", err)
	}
	return nil
}

func uiContext(req Request) UIContext {
	if req.Context == nil {
		return UIContext{}
	}
	return *req.Context
}
