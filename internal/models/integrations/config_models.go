package integrations

// NotionCredentials is the expected structure of Notion API credentials
// (stored encrypted). The secret is the token of an internal integration
// shared with the workspace holding the help articles.
type NotionCredentials struct {
	InternalIntegrationSecret string `json:"internal_integration_secret"`
}

// SlackCredentials is the expected structure of Slack API credentials
// (stored encrypted).
type SlackCredentials struct {
	BotToken      string `json:"bot_token"`      // xoxb-... token
	SigningSecret string `json:"signing_secret"` // used for webhook verification
}

// TestConnectionResult is the standard outcome of an integration
// connection test.
type TestConnectionResult struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// DecryptedCredentials is the decrypted credential payload as a flat map.
type DecryptedCredentials map[string]string
