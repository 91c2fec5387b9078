package models

// SlackEventPayload represents the envelope of an event callback from Slack.
type SlackEventPayload struct {
	Token     string     `json:"token"`
	TeamID    string     `json:"team_id"`
	APIAppID  string     `json:"api_app_id"`
	Event     SlackEvent `json:"event"`
	Type      string     `json:"type"` // "event_callback"
	EventID   string     `json:"event_id"`
	EventTime int64      `json:"event_time"`
}

// SlackEvent represents the actual event details within the payload.
type SlackEvent struct {
	User        string `json:"user"` // user id of the sender
	BotID       string `json:"bot_id,omitempty"`
	Type        string `json:"type"` // "message" or "app_mention"
	Text        string `json:"text"`
	Timestamp   string `json:"ts"`
	ThreadTS    string `json:"thread_ts,omitempty"`
	Team        string `json:"team"`
	Channel     string `json:"channel"`
	EventTS     string `json:"event_ts"`
	ChannelType string `json:"channel_type"`
}

// SlackChallengeRequest is used for Slack's URL verification handshake.
type SlackChallengeRequest struct {
	Token     string `json:"token"`
	Challenge string `json:"challenge"`
	Type      string `json:"type"` // "url_verification"
}
