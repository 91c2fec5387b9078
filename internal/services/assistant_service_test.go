package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgermate-backend/internal/assistant"
	"ledgermate-backend/internal/functions"
	"ledgermate-backend/internal/llm"
	"ledgermate-backend/internal/models"
	"ledgermate-backend/internal/store"
	"ledgermate-backend/internal/store/storetest"
)

// scriptedModel answers each call with the next canned reply.
type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (m *scriptedModel) next() *llm.Completion {
	m.mu.Lock()
	defer m.mu.Unlock()
	reply := "Understood."
	if m.calls < len(m.replies) {
		reply = m.replies[m.calls]
	}
	m.calls++
	return &llm.Completion{Content: reply, Confidence: 0.95, FinishReason: "stop"}
}

func (m *scriptedModel) CompleteChat(_ context.Context, _ []llm.ChatMessage, _ llm.Options) (*llm.Completion, error) {
	return m.next(), nil
}

func (m *scriptedModel) CompleteChatWithTools(_ context.Context, _ []llm.ChatMessage, _ []llm.Tool, _ llm.Options) (*llm.Completion, error) {
	return m.next(), nil
}

func newAssistantFixture(t *testing.T, model *scriptedModel) (*AssistantService, *storetest.Store) {
	t.Helper()
	st := storetest.New()
	set, err := functions.NewSet()
	require.NoError(t, err)
	engine := assistant.New(st, model, set, nil, assistant.DefaultConfig())
	return NewAssistantService(st, engine), st
}

func TestExchangeFromSlackThreadKeepsSession(t *testing.T) {
	model := &scriptedModel{replies: []string{"Hello from the books.", "Still here."}}
	svc, st := newAssistantFixture(t, model)
	orgID := uuid.New()
	ref := "T123_C456_1699.0001"

	first, err := svc.ExchangeFromSlack(context.Background(), orgID, ref, "hello there")
	require.NoError(t, err)
	assert.Equal(t, "Hello from the books.", first.Content)

	second, err := svc.ExchangeFromSlack(context.Background(), orgID, ref, "still with me?")
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID, "same thread reuses the session")

	sessions, err := st.ListSessionsByOrg(context.Background(), orgID, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.SessionSourceSlack, sessions[0].Source)
	require.NotNil(t, sessions[0].ExternalRef)
	assert.Equal(t, ref, *sessions[0].ExternalRef)
	assert.Equal(t, 4, st.MessageCount(first.SessionID))
}

func TestExchangeFromSlackDistinctThreadsGetDistinctSessions(t *testing.T) {
	model := &scriptedModel{}
	svc, st := newAssistantFixture(t, model)
	orgID := uuid.New()

	a, err := svc.ExchangeFromSlack(context.Background(), orgID, "T1_C1_100.1", "first thread")
	require.NoError(t, err)
	b, err := svc.ExchangeFromSlack(context.Background(), orgID, "T1_C1_200.2", "second thread")
	require.NoError(t, err)

	assert.NotEqual(t, a.SessionID, b.SessionID)
	sessions, err := st.ListSessionsByOrg(context.Background(), orgID, 10)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestChatMapsEngineResponse(t *testing.T) {
	model := &scriptedModel{replies: []string{"You have 3 open invoices."}}
	svc, _ := newAssistantFixture(t, model)

	resp, err := svc.Chat(context.Background(), uuid.New(), uuid.New(), models.UserRoleMember, models.ChatRequest{
		Message: "how many invoices are open?",
	})
	require.NoError(t, err)

	assert.Equal(t, "You have 3 open invoices.", resp.Content)
	assert.InDelta(t, 0.95, resp.Confidence, 1e-9)
	assert.Nil(t, resp.Form)
	assert.Empty(t, resp.ExecutedFunctions)

	routes := make([]string, 0, len(resp.SuggestedActions))
	for _, a := range resp.SuggestedActions {
		routes = append(routes, a.Route)
	}
	assert.Contains(t, routes, "/invoices")
}

func TestChatFormShortcutMapsForm(t *testing.T) {
	model := &scriptedModel{}
	svc, _ := newAssistantFixture(t, model)

	resp, err := svc.Chat(context.Background(), uuid.New(), uuid.New(), models.UserRoleMember, models.ChatRequest{
		Message: "create a new customer",
	})
	require.NoError(t, err)

	require.NotNil(t, resp.Form)
	assert.Equal(t, "customer", resp.Form.Entity)
	require.NotEmpty(t, resp.Form.Fields)
	assert.Equal(t, "name", resp.Form.Fields[0].Name)
	assert.True(t, resp.Form.Fields[0].Required)
	assert.Contains(t, resp.Content, "Required: Name")
	assert.InDelta(t, 1.0, resp.Confidence, 1e-9)
	assert.Equal(t, 0, model.calls, "intent shortcut never reaches the model")
}

func TestSessionReadsAreOrgScoped(t *testing.T) {
	model := &scriptedModel{}
	svc, _ := newAssistantFixture(t, model)
	orgA := uuid.New()
	orgB := uuid.New()

	resp, err := svc.Chat(context.Background(), orgA, uuid.New(), models.UserRoleMember, models.ChatRequest{
		Message: "hello over there",
	})
	require.NoError(t, err)

	messages, err := svc.GetSessionMessages(context.Background(), orgA, resp.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, messages.Messages, 2)
	assert.Equal(t, models.RoleUser, messages.Messages[0].Role)
	assert.Equal(t, models.RoleAssistant, messages.Messages[1].Role)

	_, err = svc.GetSessionMessages(context.Background(), orgB, resp.SessionID, 0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteSessionRemovesTranscript(t *testing.T) {
	model := &scriptedModel{}
	svc, st := newAssistantFixture(t, model)
	orgID := uuid.New()

	resp, err := svc.Chat(context.Background(), orgID, uuid.New(), models.UserRoleMember, models.ChatRequest{
		Message: "note this down",
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSession(context.Background(), orgID, resp.SessionID))
	assert.Equal(t, 0, st.MessageCount(resp.SessionID))

	err = svc.DeleteSession(context.Background(), orgID, resp.SessionID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
