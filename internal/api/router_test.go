package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgermate-backend/internal/assistant"
	"ledgermate-backend/internal/config"
	"ledgermate-backend/internal/functions"
	"ledgermate-backend/internal/handlers"
	"ledgermate-backend/internal/llm"
	"ledgermate-backend/internal/models"
	"ledgermate-backend/internal/services"
	"ledgermate-backend/internal/store/storetest"
)

type stubModel struct{ reply string }

func (m *stubModel) CompleteChat(_ context.Context, _ []llm.ChatMessage, _ llm.Options) (*llm.Completion, error) {
	return &llm.Completion{Content: m.reply, Confidence: 0.9, FinishReason: "stop"}, nil
}

func (m *stubModel) CompleteChatWithTools(_ context.Context, _ []llm.ChatMessage, _ []llm.Tool, _ llm.Options) (*llm.Completion, error) {
	return &llm.Completion{Content: m.reply, Confidence: 0.9, FinishReason: "stop"}, nil
}

type noopSender struct{}

func (noopSender) SendMessage(context.Context, uuid.UUID, string, string, string) error {
	return nil
}

func (noopSender) SigningSecret(context.Context, uuid.UUID) (string, error) {
	return "", nil
}

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	st := storetest.New()
	set, err := functions.NewSet()
	require.NoError(t, err)
	engine := assistant.New(st, &stubModel{reply: "All settled."}, set, nil, assistant.DefaultConfig())
	assistantSvc := services.NewAssistantService(st, engine)

	return NewRouter(RouterDependencies{
		AuthHandler:         handlers.NewAuthHandler(services.NewAuthService(st, cfg)),
		AssistantHandler:    handlers.NewAssistantHandler(assistantSvc),
		SettingsHandler:     handlers.NewSettingsHandler(services.NewSettingsService(st, assistant.DefaultConfig().SettingsDefaults)),
		SlackWebhookHandler: handlers.NewSlackWebhookHandler(assistantSvc, noopSender{}),
		Config:              cfg,
	})
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:           "router-test-secret",
		TokenExpiration:     time.Hour,
		AssistantRatePerSec: 100,
		AssistantRateBurst:  100,
	}
}

func doJSON(router http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

// signupAndLogin registers a fresh admin and returns a usable bearer token.
func signupAndLogin(t *testing.T, router http.Handler) string {
	t.Helper()
	w := doJSON(router, http.MethodPost, "/v1/auth/signup", "", models.SignupRequest{
		Email:    "books@acme.test",
		Password: "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(router, http.MethodPost, "/v1/auth/login", "", models.LoginRequest{
		Email:    "books@acme.test",
		Password: "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func TestHealthIsPublic(t *testing.T) {
	router := newTestRouter(t, testConfig())
	w := doJSON(router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestMetricsEndpointExposesCollectors(t *testing.T) {
	router := newTestRouter(t, testConfig())
	token := signupAndLogin(t, router)

	w := doJSON(router, http.MethodPost, "/v1/assistant/chat", token,
		models.ChatRequest{Message: "ping"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ledgermate_assistant_exchanges_total")
}

func TestChatRequiresBearerToken(t *testing.T) {
	router := newTestRouter(t, testConfig())

	w := doJSON(router, http.MethodPost, "/v1/assistant/chat", "",
		models.ChatRequest{Message: "hello"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodPost, "/v1/assistant/chat", "not-a-jwt",
		models.ChatRequest{Message: "hello"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChatRoundTripThroughRouter(t *testing.T) {
	router := newTestRouter(t, testConfig())
	token := signupAndLogin(t, router)

	w := doJSON(router, http.MethodPost, "/v1/assistant/chat", token,
		models.ChatRequest{Message: "are we settled up?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "All settled.", resp.Content)

	w = doJSON(router, http.MethodGet, "/v1/assistant/sessions", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sessions models.ListSessionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	assert.Len(t, sessions.Sessions, 1)
}

func TestAssistantRoutesAreRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.AssistantRatePerSec = 1
	cfg.AssistantRateBurst = 2
	router := newTestRouter(t, cfg)
	token := signupAndLogin(t, router)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := doJSON(router, http.MethodGet, "/v1/assistant/sessions", token, nil)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimitDoesNotApplyToCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.AssistantRatePerSec = 1
	cfg.AssistantRateBurst = 1
	st := storetest.New()
	router := NewRouter(RouterDependencies{
		AuthHandler:      handlers.NewAuthHandler(services.NewAuthService(st, cfg)),
		AssistantHandler: handlers.NewAssistantHandler(services.NewAssistantService(st, assistant.New(st, &stubModel{reply: "x"}, mustSet(t), nil, assistant.DefaultConfig()))),
		Config:           cfg,
	})
	token := signupAndLogin(t, router)

	// Burn the assistant budget.
	w := doJSON(router, http.MethodGet, "/v1/assistant/sessions", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(router, http.MethodGet, "/v1/assistant/sessions", token, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	// Other authed groups stay reachable; this one 404s only because the
	// handler is not mounted in this minimal router.
	w = doJSON(router, http.MethodGet, "/v1/credentials", token, nil)
	assert.NotEqual(t, http.StatusTooManyRequests, w.Code)
}

func mustSet(t *testing.T) *functions.Set {
	t.Helper()
	set, err := functions.NewSet()
	require.NoError(t, err)
	return set
}

func TestSlackWebhookIsPublic(t *testing.T) {
	router := newTestRouter(t, testConfig())

	body := bytes.NewBufferString(`{"type":"url_verification","challenge":"router-check"}`)
	r := httptest.NewRequest(http.MethodPost, "/slack-events/"+uuid.NewString(), body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "router-check", w.Body.String())
}

func TestExpiredTokenIsRejected(t *testing.T) {
	cfg := testConfig()
	cfg.TokenExpiration = -time.Minute
	router := newTestRouter(t, cfg)

	w := doJSON(router, http.MethodPost, "/v1/auth/signup", "", models.SignupRequest{
		Email:    "late@acme.test",
		Password: "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(router, http.MethodPost, "/v1/auth/login", "", models.LoginRequest{
		Email:    "late@acme.test",
		Password: "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = doJSON(router, http.MethodPost, "/v1/assistant/chat", resp.AccessToken,
		models.ChatRequest{Message: "too late"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "expired")
}
