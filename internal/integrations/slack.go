package integrations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	integration_models "ledgermate-backend/internal/models/integrations"
	"ledgermate-backend/pkg/logger"
)

var _ Integration = (*SlackIntegration)(nil)

// SlackIntegration connects the Slack channel: the stored bot token posts
// replies, the signing secret is kept for webhook verification.
type SlackIntegration struct {
	log *logger.Logger
}

// NewSlackIntegration creates the Slack connector.
func NewSlackIntegration() *SlackIntegration {
	return &SlackIntegration{log: logger.Get().WithComponent("integrations")}
}

// ValidateCredentials requires the bot token. The signing secret is only
// needed once webhooks are enabled, so its absence is a warning.
func (s *SlackIntegration) ValidateCredentials(creds integration_models.DecryptedCredentials) error {
	if creds["bot_token"] == "" {
		return errors.New("'bot_token' is required for Slack credentials")
	}
	if creds["signing_secret"] == "" {
		s.log.Warn("slack credentials have no signing_secret, webhook verification will be skipped")
	}
	return nil
}

// TestConnection verifies the bot token with auth.test.
func (s *SlackIntegration) TestConnection(ctx context.Context, creds integration_models.DecryptedCredentials) (*integration_models.TestConnectionResult, error) {
	botToken := creds["bot_token"]
	if botToken == "" {
		return &integration_models.TestConnectionResult{
			Success: false,
			Message: "Missing or empty 'bot_token' in Slack credentials",
		}, nil
	}

	client := slack.New(botToken)
	resp, err := client.AuthTestContext(ctx)
	if err != nil {
		// The Slack client surfaces API errors as plain strings.
		errStr := err.Error()
		switch {
		case strings.Contains(errStr, "invalid_auth"):
			return &integration_models.TestConnectionResult{
				Success: false,
				Message: "Slack rejected the bot token (invalid_auth).",
			}, nil
		case strings.Contains(errStr, "not_authed"), strings.Contains(errStr, "account_inactive"):
			return &integration_models.TestConnectionResult{
				Success: false,
				Message: fmt.Sprintf("Slack authentication failed: %s", errStr),
			}, nil
		}
		return nil, fmt.Errorf("failed to test Slack connection: %w", err)
	}

	return &integration_models.TestConnectionResult{
		Success: true,
		Message: fmt.Sprintf("Connected to Slack workspace %q as bot %q.", resp.Team, resp.User),
		Details: map[string]interface{}{
			"bot_name":    resp.User,
			"bot_user_id": resp.UserID,
			"team_id":     resp.TeamID,
		},
	}, nil
}
