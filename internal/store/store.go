package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"ledgermate-backend/internal/models"
)

// ErrNotFound is returned when a specific record is not found.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert collides with a uniqueness
// constraint, such as an invoice number already taken within the org.
var ErrDuplicate = errors.New("duplicate record")

// CreateIntegrationCredentialParams contains parameters for creating a credential.
type CreateIntegrationCredentialParams struct {
	ID                   uuid.UUID
	OrganizationID       uuid.UUID
	ServiceType          string
	CredentialName       string
	EncryptedCredentials []byte // Raw encrypted bytes
	Status               string
}

// CreateSessionParams contains parameters for creating an assistant session.
type CreateSessionParams struct {
	OrganizationID uuid.UUID
	Source         string
	ExternalRef    *string
}

// NewMessage is one transcript row to be appended.
type NewMessage struct {
	Role       string
	Content    string
	Confidence *float64
	LatencyMS  *int
	EntityType *string
	EntityID   *string
}

// RecordExchangeParams describes one completed exchange: the user message
// and the final assistant message. The implementation must persist both rows
// and bump the daily usage counter in a single transaction so a cancelled
// exchange never leaves a half-written pair.
type RecordExchangeParams struct {
	OrganizationID   uuid.UUID
	SessionID        uuid.UUID
	UserMessage      NewMessage
	AssistantMessage NewMessage
}

// SettingsDefaults seeds the assistant settings row created lazily on first
// use for an organization.
type SettingsDefaults struct {
	DailyLimit   int
	Model        string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
}

// UpdateSettingsParams contains the updatable assistant settings fields.
// Nil pointers leave the column untouched. Usage counters are not updatable
// through this path.
type UpdateSettingsParams struct {
	OrganizationID uuid.UUID
	Enabled        *bool
	DailyLimit     *int
	Model          *string
	MaxTokens      *int
	Temperature    *float64
	SystemPrompt   *string
}

// CreateCustomerParams contains parameters for creating a customer.
type CreateCustomerParams struct {
	OrganizationID uuid.UUID
	Name           string
	Email          *string
	Phone          *string
	City           *string
}

// UpdateCustomerParams contains the updatable customer fields.
type UpdateCustomerParams struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           *string
	Email          *string
	Phone          *string
	City           *string
}

// ListInvoicesParams filters an invoice listing.
type ListInvoicesParams struct {
	OrganizationID uuid.UUID
	Status         *string
	CustomerID     *uuid.UUID
	Limit          int
}

// CreateInvoiceParams contains parameters for creating an invoice.
type CreateInvoiceParams struct {
	OrganizationID uuid.UUID
	CustomerID     uuid.UUID
	InvoiceNumber  string
	Status         string
	TotalCents     int64
	Currency       string
	IssueDate      time.Time
	DueDate        *time.Time
}

// ListSalesOrdersParams filters a sales order listing.
type ListSalesOrdersParams struct {
	OrganizationID uuid.UUID
	Status         *string
	Limit          int
}

// CreateSalesOrderParams contains parameters for creating a sales order.
type CreateSalesOrderParams struct {
	OrganizationID uuid.UUID
	CustomerID     uuid.UUID
	OrderNumber    string
	Status         string
	TotalCents     int64
	Currency       string
	OrderDate      time.Time
}

// Store defines the interface for database operations.
// Every method operating on tenant data takes the organization id and must
// never return another organization's rows.
type Store interface {
	// User operations
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error

	// Organization operations
	CreateOrganization(ctx context.Context, org *models.Organization) error
	GetOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)

	// Assistant session operations
	CreateSession(ctx context.Context, arg CreateSessionParams) (*models.AssistantSession, error)
	GetSessionByID(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.AssistantSession, error)
	GetSessionByExternalRef(ctx context.Context, externalRef string, orgID uuid.UUID) (*models.AssistantSession, error)
	ListSessionsByOrg(ctx context.Context, orgID uuid.UUID, limit int) ([]models.AssistantSession, error)
	DeleteSession(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error

	// Assistant message operations
	ListRecentMessages(ctx context.Context, sessionID uuid.UUID, orgID uuid.UUID, limit int) ([]models.AssistantMessage, error)
	RecordExchange(ctx context.Context, arg RecordExchangeParams) error

	// Assistant settings operations
	GetOrCreateAssistantSettings(ctx context.Context, orgID uuid.UUID, defaults SettingsDefaults) (*models.AssistantSettings, error)
	ResetDailyUsage(ctx context.Context, orgID uuid.UUID, day time.Time) (bool, error)
	UpdateAssistantSettings(ctx context.Context, arg UpdateSettingsParams) (*models.AssistantSettings, error)

	// Integration credentials operations
	CreateIntegrationCredential(ctx context.Context, arg CreateIntegrationCredentialParams) (*models.IntegrationCredential, error)
	GetIntegrationCredentialByID(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.IntegrationCredential, error)
	GetActiveCredentialByServiceType(ctx context.Context, serviceType string, orgID uuid.UUID) (*models.IntegrationCredential, error)
	ListIntegrationCredentialsByOrg(ctx context.Context, orgID uuid.UUID, serviceType *string) ([]models.IntegrationCredential, error)
	UpdateIntegrationCredentialStatus(ctx context.Context, id uuid.UUID, orgID uuid.UUID, status string) error
	DeleteIntegrationCredential(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error

	// Customer operations
	ListCustomers(ctx context.Context, orgID uuid.UUID, limit int) ([]models.Customer, error)
	SearchCustomers(ctx context.Context, orgID uuid.UUID, query string, limit int) ([]models.Customer, error)
	GetCustomerByID(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Customer, error)
	CreateCustomer(ctx context.Context, arg CreateCustomerParams) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, arg UpdateCustomerParams) (*models.Customer, error)

	// Invoice operations
	ListInvoices(ctx context.Context, arg ListInvoicesParams) ([]models.Invoice, error)
	GetInvoiceByNumber(ctx context.Context, invoiceNumber string, orgID uuid.UUID) (*models.Invoice, error)
	CreateInvoice(ctx context.Context, arg CreateInvoiceParams) (*models.Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, orgID uuid.UUID, status string) (*models.Invoice, error)

	// Sales order operations
	ListSalesOrders(ctx context.Context, arg ListSalesOrdersParams) ([]models.SalesOrder, error)
	GetSalesOrderByNumber(ctx context.Context, orderNumber string, orgID uuid.UUID) (*models.SalesOrder, error)
	CreateSalesOrder(ctx context.Context, arg CreateSalesOrderParams) (*models.SalesOrder, error)
	UpdateSalesOrderStatus(ctx context.Context, id uuid.UUID, orgID uuid.UUID, status string) (*models.SalesOrder, error)
}
