package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgermate-backend/internal/assistant"
	"ledgermate-backend/internal/integrations/slack"
	"ledgermate-backend/internal/models"
)

type exchangeCall struct {
	orgID       uuid.UUID
	externalRef string
	text        string
}

type fakeExchanger struct {
	mu    sync.Mutex
	resp  *models.ChatResponse
	err   error
	calls []exchangeCall
}

func (f *fakeExchanger) ExchangeFromSlack(_ context.Context, orgID uuid.UUID, externalRef, text string) (*models.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, exchangeCall{orgID: orgID, externalRef: externalRef, text: text})
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeExchanger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeExchanger) call(i int) exchangeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type sentReply struct {
	channelID string
	text      string
	threadTS  string
}

type fakeSender struct {
	mu        sync.Mutex
	secret    string
	secretErr error
	sends     []sentReply
}

func (f *fakeSender) SendMessage(_ context.Context, _ uuid.UUID, channelID, text, threadTS string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentReply{channelID: channelID, text: text, threadTS: threadTS})
	return nil
}

func (f *fakeSender) SigningSecret(_ context.Context, _ uuid.UUID) (string, error) {
	return f.secret, f.secretErr
}

func (f *fakeSender) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeSender) send(i int) sentReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends[i]
}

// slackEventRequest builds a POST carrying the marshalled payload, routed to
// the given org.
func slackEventRequest(t *testing.T, orgID uuid.UUID, payload any) (*http.Request, []byte) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/slack-events/"+orgID.String(), bytes.NewReader(body))
	return withURLParam(r, "orgID", orgID.String()), body
}

// signSlackRequest attaches the v0 signature headers Slack sends.
func signSlackRequest(r *http.Request, secret string, body []byte) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:%s", ts, body)
	r.Header.Set("X-Slack-Request-Timestamp", ts)
	r.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
}

func messagePayload() models.SlackEventPayload {
	return models.SlackEventPayload{
		Type:   "event_callback",
		TeamID: "T123",
		Event: models.SlackEvent{
			Type:      "message",
			User:      "U777",
			Text:      "how many open invoices?",
			Channel:   "C456",
			Timestamp: "1700000000.000100",
		},
	}
}

func TestSlackURLVerificationEchoesChallenge(t *testing.T) {
	h := NewSlackWebhookHandler(&fakeExchanger{}, &fakeSender{})
	r, _ := slackEventRequest(t, uuid.New(), models.SlackChallengeRequest{
		Type:      "url_verification",
		Challenge: "c0ffee-challenge",
	})
	w := httptest.NewRecorder()
	h.HandleSlackEvent(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c0ffee-challenge", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
}

func TestSlackMessageEventAcksAndReplies(t *testing.T) {
	exchanger := &fakeExchanger{resp: &models.ChatResponse{Content: "You have 3 open invoices."}}
	sender := &fakeSender{}
	h := NewSlackWebhookHandler(exchanger, sender)
	orgID := uuid.New()

	r, _ := slackEventRequest(t, orgID, messagePayload())
	w := httptest.NewRecorder()
	h.HandleSlackEvent(w, r)

	// The ack comes back before the exchange finishes.
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	require.Eventually(t, func() bool { return sender.sendCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	call := exchanger.call(0)
	assert.Equal(t, orgID, call.orgID)
	assert.Equal(t, "T123_C456_1700000000.000100", call.externalRef)
	assert.Equal(t, "how many open invoices?", call.text)

	reply := sender.send(0)
	assert.Equal(t, "C456", reply.channelID)
	assert.Equal(t, "You have 3 open invoices.", reply.text)
	assert.Equal(t, "1700000000.000100", reply.threadTS, "reply starts the thread the session is keyed on")
}

func TestSlackThreadReplyReusesThreadTimestamp(t *testing.T) {
	exchanger := &fakeExchanger{resp: &models.ChatResponse{Content: "Still 3."}}
	sender := &fakeSender{}
	h := NewSlackWebhookHandler(exchanger, sender)
	orgID := uuid.New()

	payload := messagePayload()
	payload.Event.ThreadTS = "1700000000.000100"
	payload.Event.Timestamp = "1700000042.000900"

	r, _ := slackEventRequest(t, orgID, payload)
	w := httptest.NewRecorder()
	h.HandleSlackEvent(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool { return sender.sendCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "T123_C456_1700000000.000100", exchanger.call(0).externalRef,
		"follow-ups in a thread continue the original session")
	assert.Equal(t, "1700000000.000100", sender.send(0).threadTS)
}

func TestSlackBotEventsAreIgnored(t *testing.T) {
	exchanger := &fakeExchanger{}
	h := NewSlackWebhookHandler(exchanger, &fakeSender{})

	payload := messagePayload()
	payload.Event.BotID = "B999"

	r, _ := slackEventRequest(t, uuid.New(), payload)
	w := httptest.NewRecorder()
	h.HandleSlackEvent(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bot event ignored")
	assert.Equal(t, 0, exchanger.callCount())
}

func TestSlackNonMessageEventsAreIgnored(t *testing.T) {
	exchanger := &fakeExchanger{}
	h := NewSlackWebhookHandler(exchanger, &fakeSender{})

	payload := messagePayload()
	payload.Event.Type = "reaction_added"

	r, _ := slackEventRequest(t, uuid.New(), payload)
	w := httptest.NewRecorder()
	h.HandleSlackEvent(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event type ignored")
	assert.Equal(t, 0, exchanger.callCount())
}

func TestSlackValidSignatureIsAccepted(t *testing.T) {
	exchanger := &fakeExchanger{resp: &models.ChatResponse{Content: "ok"}}
	sender := &fakeSender{secret: "8f742231b10e8888abcd99yyyzzz85a5"}
	h := NewSlackWebhookHandler(exchanger, sender)

	r, body := slackEventRequest(t, uuid.New(), messagePayload())
	signSlackRequest(r, sender.secret, body)
	w := httptest.NewRecorder()
	h.HandleSlackEvent(w, r)

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestSlackSignatureMismatchIsRejected(t *testing.T) {
	exchanger := &fakeExchanger{}
	sender := &fakeSender{secret: "8f742231b10e8888abcd99yyyzzz85a5"}
	h := NewSlackWebhookHandler(exchanger, sender)

	r, body := slackEventRequest(t, uuid.New(), messagePayload())
	signSlackRequest(r, "some-other-secret", body)
	w := httptest.NewRecorder()
	h.HandleSlackEvent(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, exchanger.callCount())
}

func TestSlackMissingSignatureHeadersAreRejected(t *testing.T) {
	sender := &fakeSender{secret: "8f742231b10e8888abcd99yyyzzz85a5"}
	h := NewSlackWebhookHandler(&fakeExchanger{}, sender)

	r, _ := slackEventRequest(t, uuid.New(), messagePayload())
	w := httptest.NewRecorder()
	h.HandleSlackEvent(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSlackEventWithoutCredentialIsRejected(t *testing.T) {
	sender := &fakeSender{secretErr: slack.ErrNoCredential}
	h := NewSlackWebhookHandler(&fakeExchanger{}, sender)

	r, _ := slackEventRequest(t, uuid.New(), messagePayload())
	w := httptest.NewRecorder()
	h.HandleSlackEvent(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSlackClassifiedFailureIsPostedToThread(t *testing.T) {
	exchanger := &fakeExchanger{err: &assistant.Error{
		Kind:    assistant.KindQuotaExceeded,
		Message: "The daily limit of 50 assistant exchanges is reached. It resets at midnight UTC.",
	}}
	sender := &fakeSender{}
	h := NewSlackWebhookHandler(exchanger, sender)

	r, _ := slackEventRequest(t, uuid.New(), messagePayload())
	w := httptest.NewRecorder()
	h.HandleSlackEvent(w, r)
	require.Equal(t, http.StatusOK, w.Code, "failures after the ack never turn into Slack retries")

	require.Eventually(t, func() bool { return sender.sendCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	reply := sender.send(0)
	assert.Contains(t, reply.text, "daily limit")
	assert.Equal(t, "1700000000.000100", reply.threadTS)
}

func TestSlackUnclassifiedFailureStaysSilent(t *testing.T) {
	exchanger := &fakeExchanger{err: fmt.Errorf("store: connection refused")}
	sender := &fakeSender{}
	h := NewSlackWebhookHandler(exchanger, sender)

	r, _ := slackEventRequest(t, uuid.New(), messagePayload())
	w := httptest.NewRecorder()
	h.HandleSlackEvent(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool { return exchanger.callCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	// Give the goroutine a moment to (wrongly) send before asserting silence.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, sender.sendCount())
}

func TestSlackUnknownPayloadTypeIsRejected(t *testing.T) {
	h := NewSlackWebhookHandler(&fakeExchanger{}, &fakeSender{})

	r, _ := slackEventRequest(t, uuid.New(), map[string]string{"type": "block_actions"})
	w := httptest.NewRecorder()
	h.HandleSlackEvent(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
