package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgermate-backend/internal/functions"
	"ledgermate-backend/internal/llm"
	"ledgermate-backend/internal/models"
	"ledgermate-backend/internal/policy"
	"ledgermate-backend/internal/schema"
	"ledgermate-backend/internal/store"
	"ledgermate-backend/internal/store/storetest"
)

// stubModel is a scripted ModelClient. Default behavior answers with plain
// text; tests override withTools / plain per scenario.
type stubModel struct {
	mu        sync.Mutex
	withTools func(ctx context.Context, messages []llm.ChatMessage, tools []llm.Tool, opts llm.Options) (*llm.Completion, error)
	plain     func(ctx context.Context, messages []llm.ChatMessage, opts llm.Options) (*llm.Completion, error)

	toolCalls     int
	plainCalls    int
	toolMessages  [][]llm.ChatMessage
	plainMessages [][]llm.ChatMessage
	toolDefs      []llm.Tool
}

func (s *stubModel) CompleteChatWithTools(ctx context.Context, messages []llm.ChatMessage, tools []llm.Tool, opts llm.Options) (*llm.Completion, error) {
	s.mu.Lock()
	s.toolCalls++
	s.toolMessages = append(s.toolMessages, append([]llm.ChatMessage(nil), messages...))
	s.toolDefs = tools
	fn := s.withTools
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, messages, tools, opts)
	}
	return textCompletion("stub tools reply", 0.95), nil
}

func (s *stubModel) CompleteChat(ctx context.Context, messages []llm.ChatMessage, opts llm.Options) (*llm.Completion, error) {
	s.mu.Lock()
	s.plainCalls++
	s.plainMessages = append(s.plainMessages, append([]llm.ChatMessage(nil), messages...))
	fn := s.plain
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, messages, opts)
	}
	return textCompletion("stub synthesis reply", 0.95), nil
}

func (s *stubModel) calls() (withTools, plain int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toolCalls, s.plainCalls
}

func textCompletion(content string, confidence float64) *llm.Completion {
	return &llm.Completion{Content: content, Confidence: confidence, FinishReason: "stop"}
}

func toolCallCompletion(calls ...llm.ToolCall) *llm.Completion {
	return &llm.Completion{ToolCalls: calls, Confidence: 0.70, FinishReason: "tool_calls"}
}

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{
		ID:       id,
		Type:     "function",
		Function: llm.ToolCallFunction{Name: name, Arguments: args},
	}
}

func newTestOrchestrator(t *testing.T, st *storetest.Store, model ModelClient) *Orchestrator {
	t.Helper()
	customers, err := functions.NewCustomerRegistry(st)
	require.NoError(t, err)
	invoices, err := functions.NewInvoiceRegistry(st)
	require.NoError(t, err)
	set, err := functions.NewSet(customers, invoices)
	require.NoError(t, err)
	gate, err := policy.New(context.Background(), policy.DefaultModule)
	require.NoError(t, err)
	return New(st, model, set, gate, DefaultConfig())
}

func baseRequest(orgID uuid.UUID, message string) Request {
	return Request{
		OrgID:    orgID,
		UserID:   uuid.New(),
		Message:  message,
		UserRole: models.UserRoleMember,
	}
}

func today() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}

func settingsRow(orgID uuid.UUID, usage, limit int) models.AssistantSettings {
	return models.AssistantSettings{
		OrganizationID: orgID,
		Enabled:        true,
		DailyLimit:     limit,
		CurrentUsage:   usage,
		LastResetDate:  today(),
		Model:          "gpt-4o-mini",
		MaxTokens:      512,
		Temperature:    0.2,
		SystemPrompt:   "You are the accounting assistant.",
	}
}

func TestQuotaExhaustedShortCircuits(t *testing.T) {
	st := storetest.New()
	orgID := uuid.New()
	st.SetSettings(settingsRow(orgID, 5, 5))
	model := &stubModel{}
	o := newTestOrchestrator(t, st, model)

	_, err := o.Exchange(context.Background(), baseRequest(orgID, "show me all invoices"))

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, KindQuotaExceeded, ae.Kind)
	withTools, plain := model.calls()
	assert.Zero(t, withTools)
	assert.Zero(t, plain)
}

func TestDisabledAssistantShortCircuits(t *testing.T) {
	st := storetest.New()
	orgID := uuid.New()
	row := settingsRow(orgID, 0, 50)
	row.Enabled = false
	st.SetSettings(row)
	model := &stubModel{}
	o := newTestOrchestrator(t, st, model)

	_, err := o.Exchange(context.Background(), baseRequest(orgID, "show me all invoices"))

	assert.Equal(t, KindDisabled, KindOf(err))
	withTools, _ := model.calls()
	assert.Zero(t, withTools)
}

func TestPlainAnswerPersistsPairAndCountsUsage(t *testing.T) {
	st := storetest.New()
	orgID := uuid.New()
	model := &stubModel{}
	o := newTestOrchestrator(t, st, model)

	resp, err := o.Exchange(context.Background(), baseRequest(orgID, "what can you do for me?"))
	require.NoError(t, err)

	assert.Equal(t, "stub tools reply", resp.Content)
	assert.InDelta(t, 0.95, resp.Confidence, 0.001)
	assert.Equal(t, 2, st.MessageCount(resp.SessionID))
	assert.Equal(t, 1, st.Settings(orgID).CurrentUsage)
	assert.NotEmpty(t, model.toolDefs, "tool definitions must be offered to the model")

	sent := model.toolMessages[0]
	require.Len(t, sent, 2)
	assert.Equal(t, llm.RoleSystem, sent[0].Role)
	assert.Equal(t, llm.RoleUser, sent[1].Role)
	assert.Equal(t, "what can you do for me?", sent[1].Content)
}

func TestToolMixKeepsExchangeAliveAndCountsOnce(t *testing.T) {
	st := storetest.New()
	orgID := uuid.New()
	model := &stubModel{
		withTools: func(ctx context.Context, messages []llm.ChatMessage, tools []llm.Tool, opts llm.Options) (*llm.Completion, error) {
			return toolCallCompletion(
				call("c1", "list_customers", `{}`),
				call("c2", "create_customer", `{"email":"no-name@acme.test"}`),
			), nil
		},
		plain: func(ctx context.Context, messages []llm.ChatMessage, opts llm.Options) (*llm.Completion, error) {
			return textCompletion("The listing worked, the creation was missing a name.", 0.95), nil
		},
	}
	o := newTestOrchestrator(t, st, model)

	resp, err := o.Exchange(context.Background(), baseRequest(orgID, "list customers and add one"))
	require.NoError(t, err)

	require.Len(t, resp.ExecutedFunctions, 2)
	assert.Equal(t, "list_customers", resp.ExecutedFunctions[0].Name)
	assert.True(t, resp.ExecutedFunctions[0].Success)
	assert.Equal(t, "create_customer", resp.ExecutedFunctions[1].Name)
	assert.False(t, resp.ExecutedFunctions[1].Success)

	assert.Equal(t, 1, st.Settings(orgID).CurrentUsage)
	assert.Equal(t, 2, st.MessageCount(resp.SessionID))

	// The synthesis call sees the placeholder and one tool message per
	// call, in call order, each bound to its call id.
	synth := model.plainMessages[0]
	var toolMsgs []llm.ChatMessage
	var placeholder *llm.ChatMessage
	for i := range synth {
		switch synth[i].Role {
		case llm.RoleTool:
			toolMsgs = append(toolMsgs, synth[i])
		case llm.RoleAssistant:
			if len(synth[i].ToolCalls) > 0 {
				placeholder = &synth[i]
			}
		}
	}
	require.NotNil(t, placeholder)
	require.Len(t, placeholder.ToolCalls, 2)
	require.Len(t, toolMsgs, 2)
	assert.Equal(t, "c1", toolMsgs[0].ToolCallID)
	assert.Equal(t, "c2", toolMsgs[1].ToolCallID)
	assert.Contains(t, toolMsgs[0].Content, `"success":true`)
	assert.Contains(t, toolMsgs[1].Content, `"success":false`)
	assert.Contains(t, toolMsgs[1].Content, "invalid arguments")
}

func TestDispatchPreservesCallOrder(t *testing.T) {
	st := storetest.New()
	orgID := uuid.New()

	staggered := func(d time.Duration, marker string) functions.Handler {
		return func(ctx context.Context, orgID uuid.UUID, args json.RawMessage) (functions.Result, error) {
			time.Sleep(d)
			return functions.Result{Success: true, Message: marker}, nil
		}
	}
	reg, err := functions.NewRegistry("stagger", []functions.Function{
		{Definition: functions.Definition{Name: "op_a", Parameters: schema.Object(nil)}, Handler: staggered(80*time.Millisecond, "first")},
		{Definition: functions.Definition{Name: "op_b", Parameters: schema.Object(nil)}, Handler: staggered(5*time.Millisecond, "second")},
		{Definition: functions.Definition{Name: "op_c", Parameters: schema.Object(nil)}, Handler: staggered(40*time.Millisecond, "third")},
	})
	require.NoError(t, err)
	set, err := functions.NewSet(reg)
	require.NoError(t, err)

	model := &stubModel{
		withTools: func(ctx context.Context, messages []llm.ChatMessage, tools []llm.Tool, opts llm.Options) (*llm.Completion, error) {
			return toolCallCompletion(
				call("c1", "op_a", `{}`),
				call("c2", "op_b", `{}`),
				call("c3", "op_c", `{}`),
			), nil
		},
	}
	o := New(st, model, set, nil, DefaultConfig())

	resp, err := o.Exchange(context.Background(), baseRequest(orgID, "run everything"))
	require.NoError(t, err)

	require.Len(t, resp.ExecutedFunctions, 3)
	assert.Equal(t, "op_a", resp.ExecutedFunctions[0].Name)
	assert.Equal(t, "op_b", resp.ExecutedFunctions[1].Name)
	assert.Equal(t, "op_c", resp.ExecutedFunctions[2].Name)

	synth := model.plainMessages[0]
	var contents, ids []string
	for _, m := range synth {
		if m.Role == llm.RoleTool {
			contents = append(contents, m.Content)
			ids = append(ids, m.ToolCallID)
		}
	}
	require.Len(t, contents, 3)
	assert.Equal(t, []string{"c1", "c2", "c3"}, ids)
	assert.Contains(t, contents[0], "first")
	assert.Contains(t, contents[1], "second")
	assert.Contains(t, contents[2], "third")
}

func TestCancellationLeavesNoTrace(t *testing.T) {
	st := storetest.New()
	orgID := uuid.New()
	st.SetSettings(settingsRow(orgID, 0, 50))
	session, err := st.CreateSession(context.Background(), store.CreateSessionParams{
		OrganizationID: orgID,
		Source:         models.SessionSourceWeb,
	})
	require.NoError(t, err)

	model := &stubModel{
		withTools: func(ctx context.Context, messages []llm.ChatMessage, tools []llm.Tool, opts llm.Options) (*llm.Completion, error) {
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
			return nil, &llm.Error{Kind: llm.KindTimeout, Message: "context cancelled", Err: ctx.Err()}
		},
	}
	o := newTestOrchestrator(t, st, model)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	req := baseRequest(orgID, "list my invoices")
	req.SessionID = &session.ID
	_, err = o.Exchange(ctx, req)

	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, 0, st.MessageCount(session.ID), "no half-written pair may remain")
	assert.Equal(t, 0, st.Settings(orgID).CurrentUsage, "no dangling usage increment")
}

func TestCreationIntentBypassesModel(t *testing.T) {
	st := storetest.New()
	orgID := uuid.New()
	model := &stubModel{}
	o := newTestOrchestrator(t, st, model)

	resp, err := o.Exchange(context.Background(), baseRequest(orgID, "create a new customer"))
	require.NoError(t, err)

	require.NotNil(t, resp.Form)
	assert.Equal(t, "customer", resp.Form.Entity)
	assert.InDelta(t, 1.0, resp.Confidence, 0.001)
	assert.Contains(t, resp.Content, "Required: Name")

	withTools, plain := model.calls()
	assert.Zero(t, withTools, "bypass must not invoke the model")
	assert.Zero(t, plain)

	assert.Equal(t, 2, st.MessageCount(resp.SessionID))
	assert.Equal(t, 1, st.Settings(orgID).CurrentUsage, "bypass counts as one exchange")
}

func TestDayRolloverResetsBeforeCheck(t *testing.T) {
	st := storetest.New()
	orgID := uuid.New()
	row := settingsRow(orgID, 5, 5)
	row.LastResetDate = today().AddDate(0, 0, -1)
	st.SetSettings(row)
	model := &stubModel{}
	o := newTestOrchestrator(t, st, model)

	resp, err := o.Exchange(context.Background(), baseRequest(orgID, "good morning, what happened yesterday?"))
	require.NoError(t, err, "yesterday's exhausted counter must not block today")

	got := st.Settings(orgID)
	assert.Equal(t, 1, got.CurrentUsage)
	assert.Equal(t, today(), got.LastResetDate)
	assert.NotEqual(t, uuid.Nil, resp.SessionID)
}

func TestHistoryWindowClampsContext(t *testing.T) {
	st := storetest.New()
	orgID := uuid.New()
	st.SetSettings(settingsRow(orgID, 0, 100))
	session, err := st.CreateSession(context.Background(), store.CreateSessionParams{
		OrganizationID: orgID,
		Source:         models.SessionSourceWeb,
	})
	require.NoError(t, err)

	for turn := 1; turn <= 15; turn++ {
		err := st.RecordExchange(context.Background(), store.RecordExchangeParams{
			OrganizationID: orgID,
			SessionID:      session.ID,
			UserMessage:    store.NewMessage{Role: models.RoleUser, Content: fmt.Sprintf("turn %d user", turn)},
			AssistantMessage: store.NewMessage{
				Role:    models.RoleAssistant,
				Content: fmt.Sprintf("turn %d assistant", turn),
			},
		})
		require.NoError(t, err)
	}

	model := &stubModel{}
	o := newTestOrchestrator(t, st, model)

	req := baseRequest(orgID, "and what now?")
	req.SessionID = &session.ID
	_, err = o.Exchange(context.Background(), req)
	require.NoError(t, err)

	sent := model.toolMessages[0]
	require.Len(t, sent, 12, "system prompt + 10 history rows + new user message")
	assert.Equal(t, llm.RoleSystem, sent[0].Role)
	assert.Equal(t, "turn 11 user", sent[1].Content)
	assert.Equal(t, "turn 15 assistant", sent[10].Content)
	assert.Equal(t, "and what now?", sent[11].Content)
}

func TestEntityNoteIncludedInContext(t *testing.T) {
	st := storetest.New()
	orgID := uuid.New()
	email := "billing@acme.test"
	customer, err := st.CreateCustomer(context.Background(), store.CreateCustomerParams{
		OrganizationID: orgID,
		Name:           "Acme GmbH",
		Email:          &email,
	})
	require.NoError(t, err)

	model := &stubModel{}
	o := newTestOrchestrator(t, st, model)

	req := baseRequest(orgID, "is anything overdue here?")
	req.Context = &UIContext{
		CurrentModule: "customers",
		EntityType:    "customer",
		EntityID:      customer.ID.String(),
	}
	_, err = o.Exchange(context.Background(), req)
	require.NoError(t, err)

	sent := model.toolMessages[0]
	require.Len(t, sent, 3, "system prompt + entity note + user message")
	assert.Equal(t, llm.RoleSystem, sent[1].Role)
	assert.Contains(t, sent[1].Content, `customer "Acme GmbH"`)
	assert.Contains(t, sent[1].Content, email)
}

func TestPolicyBlocksViewerWrites(t *testing.T) {
	st := storetest.New()
	orgID := uuid.New()
	model := &stubModel{
		withTools: func(ctx context.Context, messages []llm.ChatMessage, tools []llm.Tool, opts llm.Options) (*llm.Completion, error) {
			return toolCallCompletion(call("c1", "create_customer", `{"name":"Blocked Inc"}`)), nil
		},
	}
	o := newTestOrchestrator(t, st, model)

	req := baseRequest(orgID, "put Blocked Inc into the books")
	req.UserRole = models.UserRoleViewer
	resp, err := o.Exchange(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, resp.ExecutedFunctions, 1)
	assert.False(t, resp.ExecutedFunctions[0].Success)

	customers, err := st.ListCustomers(context.Background(), orgID, 10)
	require.NoError(t, err)
	assert.Empty(t, customers, "blocked call must not write")

	var blocked string
	for _, m := range model.plainMessages[0] {
		if m.Role == llm.RoleTool {
			blocked = m.Content
		}
	}
	assert.Contains(t, blocked, "does not permit")
}

func TestUnknownSessionFails(t *testing.T) {
	st := storetest.New()
	orgID := uuid.New()
	o := newTestOrchestrator(t, st, &stubModel{})

	bogus := uuid.New()
	req := baseRequest(orgID, "hello again")
	req.SessionID = &bogus
	_, err := o.Exchange(context.Background(), req)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestEmptyMessageRejected(t *testing.T) {
	st := storetest.New()
	model := &stubModel{}
	o := newTestOrchestrator(t, st, model)

	_, err := o.Exchange(context.Background(), baseRequest(uuid.New(), "   "))
	require.ErrorIs(t, err, ErrEmptyMessage)
	withTools, _ := model.calls()
	assert.Zero(t, withTools)
}

func TestUpstreamKindsPassThrough(t *testing.T) {
	cases := []struct {
		name string
		from llm.Kind
		want Kind
	}{
		{"rate limited", llm.KindRateLimited, KindRateLimited},
		{"transient", llm.KindTransient, KindTransient},
		{"fatal", llm.KindFatal, KindFatal},
		{"timeout", llm.KindTimeout, KindTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := storetest.New()
			orgID := uuid.New()
			st.SetSettings(settingsRow(orgID, 0, 50))
			session, err := st.CreateSession(context.Background(), store.CreateSessionParams{
				OrganizationID: orgID,
				Source:         models.SessionSourceWeb,
			})
			require.NoError(t, err)

			model := &stubModel{
				withTools: func(ctx context.Context, messages []llm.ChatMessage, tools []llm.Tool, opts llm.Options) (*llm.Completion, error) {
					return nil, &llm.Error{Kind: tc.from, Message: "provider says no"}
				},
			}
			o := newTestOrchestrator(t, st, model)

			req := baseRequest(orgID, "anything")
			req.SessionID = &session.ID
			_, err = o.Exchange(context.Background(), req)

			assert.Equal(t, tc.want, KindOf(err))
			assert.Equal(t, 0, st.MessageCount(session.ID))
			assert.Equal(t, 0, st.Settings(orgID).CurrentUsage)
		})
	}
}

func TestGenerationOptionsComeFromSettings(t *testing.T) {
	st := storetest.New()
	orgID := uuid.New()
	row := settingsRow(orgID, 0, 50)
	row.Model = "gpt-4.1"
	row.MaxTokens = 321
	row.Temperature = 0.7
	st.SetSettings(row)

	var got llm.Options
	model := &stubModel{
		withTools: func(ctx context.Context, messages []llm.ChatMessage, tools []llm.Tool, opts llm.Options) (*llm.Completion, error) {
			got = opts
			return textCompletion("ok", 0.95), nil
		},
	}
	o := newTestOrchestrator(t, st, model)

	_, err := o.Exchange(context.Background(), baseRequest(orgID, "hello"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", got.Model)
	assert.Equal(t, 321, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 0.001)
}
