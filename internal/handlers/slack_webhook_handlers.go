package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	slackapi "github.com/slack-go/slack"

	"ledgermate-backend/internal/assistant"
	"ledgermate-backend/internal/integrations/slack"
	"ledgermate-backend/internal/models"
	"ledgermate-backend/pkg/httputil"
	"ledgermate-backend/pkg/logger"
)

// slackExchangeTimeout bounds the background exchange an event triggers.
// Slack itself only waits three seconds for the ack.
const slackExchangeTimeout = 60 * time.Second

// SlackExchanger runs one assistant exchange for a Slack-originated message.
type SlackExchanger interface {
	ExchangeFromSlack(ctx context.Context, orgID uuid.UUID, externalRef, text string) (*models.ChatResponse, error)
}

// ReplySender posts replies back into Slack and resolves the signing secret
// used to verify incoming events.
type ReplySender interface {
	SendMessage(ctx context.Context, orgID uuid.UUID, channelID, text, threadTS string) error
	SigningSecret(ctx context.Context, orgID uuid.UUID) (string, error)
}

// SlackWebhookHandler ingests Slack Events API callbacks. Each organization
// gets its own webhook URL carrying the org id, so events authenticate
// against that org's stored signing secret.
type SlackWebhookHandler struct {
	exchanger SlackExchanger
	sender    ReplySender
	log       *logger.Logger
}

// NewSlackWebhookHandler creates a SlackWebhookHandler.
func NewSlackWebhookHandler(exchanger SlackExchanger, sender ReplySender) *SlackWebhookHandler {
	return &SlackWebhookHandler{
		exchanger: exchanger,
		sender:    sender,
		log:       logger.Get().WithComponent("slack_webhook"),
	}
}

// HandleSlackEvent handles POST /slack-events/{orgID}. The URL verification
// handshake is answered inline; message events are acknowledged immediately
// and processed in the background, because Slack retries anything that takes
// longer than its ack window.
func (h *SlackWebhookHandler) HandleSlackEvent(w http.ResponseWriter, r *http.Request) {
	orgID, err := parseUUIDParam(r, "orgID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid organization ID in URL")
		return
	}

	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var typeFinder struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(bodyBytes, &typeFinder); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Could not determine payload type")
		return
	}

	switch typeFinder.Type {
	case "url_verification":
		var challengeReq models.SlackChallengeRequest
		if err := json.Unmarshal(bodyBytes, &challengeReq); err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "Invalid Slack challenge request")
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challengeReq.Challenge))

	case "event_callback":
		if !h.verifySignature(r, orgID, bodyBytes) {
			httputil.RespondError(w, http.StatusUnauthorized, "Invalid request signature")
			return
		}

		var payload models.SlackEventPayload
		if err := json.Unmarshal(bodyBytes, &payload); err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "Invalid Slack event payload")
			return
		}

		// The bot's own posts come back as events; answering them would loop.
		if payload.Event.BotID != "" {
			httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "bot event ignored"})
			return
		}
		if payload.Event.Type != "message" && payload.Event.Type != "app_mention" {
			httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "event type ignored"})
			return
		}
		if payload.TeamID == "" || payload.Event.Channel == "" || payload.Event.User == "" {
			httputil.RespondError(w, http.StatusBadRequest, "Missing team_id, channel_id, or user_id in event_callback payload")
			return
		}

		// Ack now, answer later. Failures past this point are logged and
		// swallowed so Slack does not re-deliver the event.
		go h.processEvent(context.WithoutCancel(r.Context()), orgID, payload)
		httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	default:
		httputil.RespondError(w, http.StatusBadRequest, "Unhandled payload type: "+typeFinder.Type)
	}
}

// verifySignature checks the Slack request signature against the org's
// stored signing secret. Orgs without a secret skip verification with a
// warning; a present secret must match.
func (h *SlackWebhookHandler) verifySignature(r *http.Request, orgID uuid.UUID, body []byte) bool {
	secret, err := h.sender.SigningSecret(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, slack.ErrNoCredential) {
			h.log.Warn("slack event for org without credential", "org_id", orgID.String())
			return false
		}
		h.log.LogError(err, "failed to resolve signing secret", "org_id", orgID.String())
		return false
	}
	if secret == "" {
		h.log.Warn("slack credential has no signing secret, skipping verification", "org_id", orgID.String())
		return true
	}

	verifier, err := slackapi.NewSecretsVerifier(r.Header, secret)
	if err != nil {
		h.log.Warn("malformed slack signature headers", "org_id", orgID.String(), "error", err.Error())
		return false
	}
	if _, err := verifier.Write(body); err != nil {
		return false
	}
	if err := verifier.Ensure(); err != nil {
		h.log.Warn("slack signature mismatch", "org_id", orgID.String())
		return false
	}
	return true
}

// processEvent runs the exchange for one Slack message and posts the reply
// into the thread the message lives in. The thread timestamp doubles as the
// session key, so follow-ups in the same thread continue the session.
func (h *SlackWebhookHandler) processEvent(ctx context.Context, orgID uuid.UUID, payload models.SlackEventPayload) {
	ctx, cancel := context.WithTimeout(ctx, slackExchangeTimeout)
	defer cancel()

	threadTS := payload.Event.ThreadTS
	if threadTS == "" {
		threadTS = payload.Event.Timestamp
	}
	externalRef := fmt.Sprintf("%s_%s_%s", payload.TeamID, payload.Event.Channel, threadTS)

	resp, err := h.exchanger.ExchangeFromSlack(ctx, orgID, externalRef, payload.Event.Text)
	if err != nil {
		h.log.LogError(err, "slack exchange failed",
			"org_id", orgID.String(), "external_ref", externalRef)
		// Classified failures carry a user-safe message worth surfacing in
		// the thread; anything else stays silent.
		var ae *assistant.Error
		if errors.As(err, &ae) {
			if sendErr := h.sender.SendMessage(ctx, orgID, payload.Event.Channel, ae.Message, threadTS); sendErr != nil {
				h.log.LogError(sendErr, "failed to post slack failure notice", "org_id", orgID.String())
			}
		}
		return
	}

	if err := h.sender.SendMessage(ctx, orgID, payload.Event.Channel, resp.Content, threadTS); err != nil {
		h.log.LogError(err, "failed to post slack reply",
			"org_id", orgID.String(), "channel", payload.Event.Channel)
	}
}
