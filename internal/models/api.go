package models

import (
	"time"

	"github.com/google/uuid"
)

// --- Auth ---

// SignupRequest defines the expected body for the signup endpoint.
type SignupRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	OrganizationName string `json:"organization_name"`
}

// LoginRequest defines the expected body for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse defines the user information returned by the API.
// Avoid returning sensitive info like HashedPassword.
type UserResponse struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Role           string    `json:"role"`
}

// AuthResponse defines the response body for successful authentication.
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	User        UserResponse `json:"user"`
}

// ErrorResponse defines the standard structure for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// --- Integration credentials ---

// ServiceType defines the types of external services we can integrate with.
type ServiceType string

const (
	ServiceTypeNotion ServiceType = "NOTION"
	ServiceTypeSlack  ServiceType = "SLACK"
)

// CreateCredentialRequest defines the body for creating a new integration credential.
// The Credentials map contains the raw secrets and is ONLY used for this request.
// It is never stored directly or returned in responses.
type CreateCredentialRequest struct {
	ServiceType    ServiceType       `json:"service_type"`
	CredentialName *string           `json:"credential_name,omitempty"`
	Credentials    map[string]string `json:"credentials"`
}

// CredentialResponse defines the data returned when fetching integration
// credentials. It excludes the actual secrets.
type CredentialResponse struct {
	ID             uuid.UUID   `json:"id"`
	OrganizationID uuid.UUID   `json:"organization_id"`
	ServiceType    ServiceType `json:"service_type"`
	CredentialName string      `json:"credential_name"`
	Status         string      `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// TestCredentialResponse defines the response for testing a credential's validity.
type TestCredentialResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Assistant chat ---

// RequestContext carries UI context alongside a chat message: where the user
// currently is and, optionally, which entity they are looking at.
type RequestContext struct {
	CurrentModule string `json:"currentModule,omitempty"` // e.g. "invoices"
	EntityType    string `json:"entityType,omitempty"`    // e.g. "invoice"
	EntityID      string `json:"entityId,omitempty"`
	UserRole      string `json:"userRole,omitempty"`
}

// ChatRequest defines the body for one assistant exchange. Unlike the rest
// of the API this surface uses camelCase keys; it is consumed by the
// assistant widget, not the admin frontend.
type ChatRequest struct {
	Message   string          `json:"message"`
	SessionID *uuid.UUID      `json:"sessionId,omitempty"`
	Context   *RequestContext `json:"context,omitempty"`
}

// SuggestedAction is a navigation hint derived from the assistant's answer.
type SuggestedAction struct {
	Label string `json:"label"`
	Route string `json:"route"`
}

// ExecutedFunction reports one tool invocation performed during an exchange.
type ExecutedFunction struct {
	Name       string `json:"name"`
	Success    bool   `json:"success"`
	EntityType string `json:"entityType,omitempty"`
	EntityID   string `json:"entityId,omitempty"`
}

// FormField describes one input of a guided creation form.
type FormField struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // text, number, date, select
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

// Form is the structured field list returned by the intent shortcut instead
// of a model completion.
type Form struct {
	Entity string      `json:"entity"`
	Title  string      `json:"title"`
	Fields []FormField `json:"fields"`
}

// ChatResponse defines the body returned for a completed exchange.
type ChatResponse struct {
	SessionID         uuid.UUID          `json:"sessionId"`
	Content           string             `json:"content"`
	Confidence        float64            `json:"confidence"`
	SuggestedActions  []SuggestedAction  `json:"suggestedActions,omitempty"`
	ExecutedFunctions []ExecutedFunction `json:"executedFunctions,omitempty"`
	Form              *Form              `json:"form,omitempty"`
}

// --- Sessions ---

// SessionResponse defines the representation of an assistant session.
type SessionResponse struct {
	ID          uuid.UUID `json:"id"`
	Source      string    `json:"source"`
	ExternalRef *string   `json:"external_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListSessionsResponse defines the response for listing sessions.
type ListSessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// MessageResponse defines the representation of one transcript message.
type MessageResponse struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Confidence *float64  `json:"confidence,omitempty"`
	LatencyMS  *int      `json:"latency_ms,omitempty"`
	EntityType *string   `json:"entity_type,omitempty"`
	EntityID   *string   `json:"entity_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListMessagesResponse defines the response for reading a session transcript.
type ListMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// --- Assistant settings ---

// SettingsResponse exposes the per-organization assistant configuration and
// the current day's usage.
type SettingsResponse struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	Enabled        bool      `json:"enabled"`
	DailyLimit     int       `json:"daily_limit"`
	CurrentUsage   int       `json:"current_usage"`
	LastResetDate  string    `json:"last_reset_date"` // YYYY-MM-DD
	Model          string    `json:"model"`
	MaxTokens      int       `json:"max_tokens"`
	Temperature    float64   `json:"temperature"`
	SystemPrompt   string    `json:"system_prompt"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UpdateSettingsRequest defines the payload for updating assistant settings.
// Only fields present in the request will be updated; usage counters are
// managed by the engine and cannot be written here.
type UpdateSettingsRequest struct {
	Enabled      *bool    `json:"enabled"`
	DailyLimit   *int     `json:"daily_limit"`
	Model        *string  `json:"model"`
	MaxTokens    *int     `json:"max_tokens"`
	Temperature  *float64 `json:"temperature"`
	SystemPrompt *string  `json:"system_prompt"`
}
