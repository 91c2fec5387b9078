// Package slack posts assistant replies back into Slack channels using the
// organization's stored bot credential.
package slack

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	slackapi "github.com/slack-go/slack"

	"ledgermate-backend/internal/crypto"
	"ledgermate-backend/internal/models"
	integration_models "ledgermate-backend/internal/models/integrations"
	"ledgermate-backend/internal/store"
)

// ErrNoCredential is returned when an organization has no active Slack
// credential to send with.
var ErrNoCredential = errors.New("no active Slack credential for organization")

// Sender resolves an organization's Slack bot token and posts messages.
type Sender struct {
	store store.Store
	codec *crypto.Codec
}

// NewSender creates a sender backed by the credential store.
func NewSender(st store.Store, codec *crypto.Codec) *Sender {
	return &Sender{store: st, codec: codec}
}

func (s *Sender) credentials(ctx context.Context, orgID uuid.UUID) (integration_models.DecryptedCredentials, error) {
	cred, err := s.store.GetActiveCredentialByServiceType(ctx, string(models.ServiceTypeSlack), orgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("failed to load Slack credential: %w", err)
	}

	var creds integration_models.DecryptedCredentials
	if err := s.codec.DecryptJSON(cred.EncryptedCredentials, &creds); err != nil {
		return nil, fmt.Errorf("failed to decrypt Slack credential: %w", err)
	}
	return creds, nil
}

// BotToken loads and decrypts the organization's active Slack bot token.
func (s *Sender) BotToken(ctx context.Context, orgID uuid.UUID) (string, error) {
	creds, err := s.credentials(ctx, orgID)
	if err != nil {
		return "", err
	}
	token := creds["bot_token"]
	if token == "" {
		return "", fmt.Errorf("slack credential for organization %s has no bot_token", orgID)
	}
	return token, nil
}

// SigningSecret loads the organization's Slack signing secret. May be empty
// when the credential was stored without one.
func (s *Sender) SigningSecret(ctx context.Context, orgID uuid.UUID) (string, error) {
	creds, err := s.credentials(ctx, orgID)
	if err != nil {
		return "", err
	}
	return creds["signing_secret"], nil
}

// SendMessage posts text to a channel on behalf of the organization. A
// non-empty threadTS makes the message a threaded reply.
func (s *Sender) SendMessage(ctx context.Context, orgID uuid.UUID, channelID, text, threadTS string) error {
	token, err := s.BotToken(ctx, orgID)
	if err != nil {
		return err
	}
	return PostMessage(ctx, token, channelID, text, threadTS)
}

// PostMessage sends one message with an already resolved bot token.
func PostMessage(ctx context.Context, botToken, channelID, text, threadTS string) error {
	client := slackapi.New(botToken)

	opts := []slackapi.MsgOption{slackapi.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slackapi.MsgOptionTS(threadTS))
	}

	if _, _, err := client.PostMessageContext(ctx, channelID, opts...); err != nil {
		return fmt.Errorf("failed to post message to Slack channel %s: %w", channelID, err)
	}
	return nil
}
