package integrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/jomei/notionapi"

	integration_models "ledgermate-backend/internal/models/integrations"
)

var _ Integration = (*NotionIntegration)(nil)

// NotionIntegration connects the help-article search to a Notion workspace
// through an internal integration secret.
type NotionIntegration struct{}

// NewNotionIntegration creates the Notion connector.
func NewNotionIntegration() *NotionIntegration {
	return &NotionIntegration{}
}

// ValidateCredentials requires the internal integration secret.
func (n *NotionIntegration) ValidateCredentials(creds integration_models.DecryptedCredentials) error {
	if creds["internal_integration_secret"] == "" {
		return errors.New("'internal_integration_secret' is required for Notion credentials")
	}
	return nil
}

// TestConnection verifies the secret by fetching the integration's own bot
// user, the cheapest authenticated Notion call.
func (n *NotionIntegration) TestConnection(ctx context.Context, creds integration_models.DecryptedCredentials) (*integration_models.TestConnectionResult, error) {
	secret := creds["internal_integration_secret"]
	if secret == "" {
		return &integration_models.TestConnectionResult{
			Success: false,
			Message: "Missing or empty 'internal_integration_secret' in credentials",
		}, nil
	}

	client := notionapi.NewClient(notionapi.Token(secret))
	botUser, err := client.User.Me(ctx)
	if err != nil {
		var notionErr *notionapi.Error
		if errors.As(err, &notionErr) {
			message := fmt.Sprintf("Notion API error (%s): %s", notionErr.Code, notionErr.Message)
			if notionErr.Status == 401 {
				message = "Notion rejected the integration secret (unauthorized)."
			}
			return &integration_models.TestConnectionResult{Success: false, Message: message}, nil
		}
		return nil, fmt.Errorf("failed to test Notion connection: %w", err)
	}

	var botName string
	if botUser != nil && botUser.Type == notionapi.UserTypeBot {
		botName = botUser.Name
	}
	return &integration_models.TestConnectionResult{
		Success: true,
		Message: fmt.Sprintf("Connected to Notion as integration %q.", botName),
		Details: map[string]interface{}{"bot_name": botName},
	}, nil
}
