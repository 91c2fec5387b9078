package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles within an organization. Viewers get read-only access and are
// blocked from write tools by the policy gate.
const (
	UserRoleAdmin  = "admin"
	UserRoleMember = "member"
	UserRoleViewer = "viewer"
)

// User represents a user in the database.
type User struct {
	ID             uuid.UUID `db:"id"`
	OrganizationID uuid.UUID `db:"organization_id"`
	Email          string    `db:"email"`
	HashedPassword string    `db:"hashed_password"`
	Role           string    `db:"role"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Organization represents a tenant. All assistant data, quota state and
// sessions hang off an organization.
type Organization struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// IntegrationCredential represents stored credentials for external services.
type IntegrationCredential struct {
	ID                   uuid.UUID   `db:"id"`
	OrganizationID       uuid.UUID   `db:"organization_id"`
	ServiceType          ServiceType `db:"service_type"`
	CredentialName       string      `db:"credential_name"`
	EncryptedCredentials []byte      `db:"encrypted_credentials"` // AES-GCM sealed JSON
	Status               string      `db:"status"`
	CreatedAt            time.Time   `db:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at"`
}

// Channels a session can originate from.
const (
	SessionSourceWeb   = "web"
	SessionSourceSlack = "slack"
)

// AssistantSession groups an ordered sequence of assistant messages.
// Sessions are created implicitly on first message and removed only by an
// explicit clear, which cascades to the messages.
type AssistantSession struct {
	ID             uuid.UUID `db:"id"`
	OrganizationID uuid.UUID `db:"organization_id"`
	Source         string    `db:"source"`       // "web" or "slack"
	ExternalRef    *string   `db:"external_ref"` // e.g. Slack team_channel_thread key
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// AssistantMessage is one immutable row of a session transcript.
type AssistantMessage struct {
	ID             uuid.UUID `db:"id"`
	SessionID      uuid.UUID `db:"session_id"`
	OrganizationID uuid.UUID `db:"organization_id"`
	Role           string    `db:"role"` // system, user, assistant
	Content        string    `db:"content"`
	Confidence     *float64  `db:"confidence"`
	LatencyMS      *int      `db:"latency_ms"`
	EntityType     *string   `db:"entity_type"`
	EntityID       *string   `db:"entity_id"`
	CreatedAt      time.Time `db:"created_at"`
}

// AssistantSettings is the per-organization assistant configuration and
// daily usage state. A row is created lazily with defaults on first use and
// never deleted.
type AssistantSettings struct {
	OrganizationID uuid.UUID `db:"organization_id"`
	Enabled        bool      `db:"enabled"`
	DailyLimit     int       `db:"daily_limit"`
	CurrentUsage   int       `db:"current_usage"`
	LastResetDate  time.Time `db:"last_reset_date"` // date precision, UTC
	Model          string    `db:"model"`
	MaxTokens      int       `db:"max_tokens"`
	Temperature    float64   `db:"temperature"`
	SystemPrompt   string    `db:"system_prompt"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Customer is the accounting customer entity the assistant operates on.
type Customer struct {
	ID             uuid.UUID `db:"id"`
	OrganizationID uuid.UUID `db:"organization_id"`
	Name           string    `db:"name"`
	Email          *string   `db:"email"`
	Phone          *string   `db:"phone"`
	City           *string   `db:"city"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Invoice statuses.
const (
	InvoiceStatusDraft = "draft"
	InvoiceStatusSent  = "sent"
	InvoiceStatusPaid  = "paid"
)

// Invoice is the accounting invoice entity the assistant operates on.
type Invoice struct {
	ID             uuid.UUID  `db:"id"`
	OrganizationID uuid.UUID  `db:"organization_id"`
	CustomerID     uuid.UUID  `db:"customer_id"`
	InvoiceNumber  string     `db:"invoice_number"`
	Status         string     `db:"status"`
	TotalCents     int64      `db:"total_cents"`
	Currency       string     `db:"currency"`
	IssueDate      time.Time  `db:"issue_date"`
	DueDate        *time.Time `db:"due_date"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// Sales order statuses.
const (
	OrderStatusOpen      = "open"
	OrderStatusConfirmed = "confirmed"
	OrderStatusFulfilled = "fulfilled"
)

// SalesOrder is the accounting sales order entity the assistant operates on.
type SalesOrder struct {
	ID             uuid.UUID `db:"id"`
	OrganizationID uuid.UUID `db:"organization_id"`
	CustomerID     uuid.UUID `db:"customer_id"`
	OrderNumber    string    `db:"order_number"`
	Status         string    `db:"status"`
	TotalCents     int64     `db:"total_cents"`
	Currency       string    `db:"currency"`
	OrderDate      time.Time `db:"order_date"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}
