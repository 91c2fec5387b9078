// Package storetest provides an in-memory store.Store implementation for
// tests. Ordering and tenant-scoping semantics mirror the postgres store.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ledgermate-backend/internal/models"
	"ledgermate-backend/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps everything in maps guarded by one mutex. Zero value is not
// usable; call New.
type Store struct {
	mu        sync.Mutex
	users     map[string]*models.User
	orgs      map[uuid.UUID]*models.Organization
	sessions  map[uuid.UUID]*models.AssistantSession
	messages  map[uuid.UUID][]models.AssistantMessage
	settings  map[uuid.UUID]*models.AssistantSettings
	creds     map[uuid.UUID]*models.IntegrationCredential
	customers map[uuid.UUID]*models.Customer
	invoices  map[uuid.UUID]*models.Invoice
	orders    map[uuid.UUID]*models.SalesOrder

	// RecordExchangeErr, when set, makes RecordExchange fail without
	// persisting anything.
	RecordExchangeErr error
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:     map[string]*models.User{},
		orgs:      map[uuid.UUID]*models.Organization{},
		sessions:  map[uuid.UUID]*models.AssistantSession{},
		messages:  map[uuid.UUID][]models.AssistantMessage{},
		settings:  map[uuid.UUID]*models.AssistantSettings{},
		creds:     map[uuid.UUID]*models.IntegrationCredential{},
		customers: map[uuid.UUID]*models.Customer{},
		invoices:  map[uuid.UUID]*models.Invoice{},
		orders:    map[uuid.UUID]*models.SalesOrder{},
	}
}

// --- Users and organizations ---

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	u := *user
	return &u, nil
}

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Email]; ok {
		return fmt.Errorf("user with email %s: %w", user.Email, store.ErrDuplicate)
	}
	u := *user
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	s.users[user.Email] = &u
	return nil
}

func (s *Store) CreateOrganization(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := *org
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	s.orgs[org.ID] = &o
	return nil
}

func (s *Store) GetOrganizationByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	o := *org
	return &o, nil
}

// --- Assistant sessions ---

func (s *Store) CreateSession(_ context.Context, arg store.CreateSessionParams) (*models.AssistantSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	sess := &models.AssistantSession{
		ID:             uuid.New(),
		OrganizationID: arg.OrganizationID,
		Source:         arg.Source,
		ExternalRef:    arg.ExternalRef,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.sessions[sess.ID] = sess
	out := *sess
	return &out, nil
}

func (s *Store) GetSessionByID(_ context.Context, id uuid.UUID, orgID uuid.UUID) (*models.AssistantSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.OrganizationID != orgID {
		return nil, store.ErrNotFound
	}
	out := *sess
	return &out, nil
}

func (s *Store) GetSessionByExternalRef(_ context.Context, externalRef string, orgID uuid.UUID) (*models.AssistantSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.OrganizationID == orgID && sess.ExternalRef != nil && *sess.ExternalRef == externalRef {
			out := *sess
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListSessionsByOrg(_ context.Context, orgID uuid.UUID, limit int) ([]models.AssistantSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AssistantSession
	for _, sess := range s.sessions {
		if sess.OrganizationID == orgID {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteSession(_ context.Context, id uuid.UUID, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.OrganizationID != orgID {
		return store.ErrNotFound
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

// --- Assistant messages ---

func (s *Store) ListRecentMessages(_ context.Context, sessionID uuid.UUID, orgID uuid.UUID, limit int) ([]models.AssistantMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// The slice is append-ordered, which is exactly insertion order.
	var msgs []models.AssistantMessage
	for _, m := range s.messages[sessionID] {
		if m.OrganizationID == orgID {
			msgs = append(msgs, m)
		}
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *Store) RecordExchange(_ context.Context, arg store.RecordExchangeParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordExchangeErr != nil {
		return s.RecordExchangeErr
	}
	for _, m := range []store.NewMessage{arg.UserMessage, arg.AssistantMessage} {
		if !models.ValidPersistedRole(m.Role) {
			return fmt.Errorf("invalid message role %q", m.Role)
		}
	}
	sess, ok := s.sessions[arg.SessionID]
	if !ok || sess.OrganizationID != arg.OrganizationID {
		return store.ErrNotFound
	}
	now := time.Now()
	for _, nm := range []store.NewMessage{arg.UserMessage, arg.AssistantMessage} {
		s.messages[arg.SessionID] = append(s.messages[arg.SessionID], models.AssistantMessage{
			ID:             uuid.New(),
			SessionID:      arg.SessionID,
			OrganizationID: arg.OrganizationID,
			Role:           nm.Role,
			Content:        nm.Content,
			Confidence:     nm.Confidence,
			LatencyMS:      nm.LatencyMS,
			EntityType:     nm.EntityType,
			EntityID:       nm.EntityID,
			CreatedAt:      now,
		})
	}
	sess.UpdatedAt = now
	if cfg, ok := s.settings[arg.OrganizationID]; ok {
		cfg.CurrentUsage++
	}
	return nil
}

// MessageCount returns how many messages a session holds. Test helper.
func (s *Store) MessageCount(sessionID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[sessionID])
}

// --- Assistant settings ---

func (s *Store) GetOrCreateAssistantSettings(_ context.Context, orgID uuid.UUID, defaults store.SettingsDefaults) (*models.AssistantSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.settings[orgID]
	if !ok {
		now := time.Now()
		cfg = &models.AssistantSettings{
			OrganizationID: orgID,
			Enabled:        true,
			DailyLimit:     defaults.DailyLimit,
			CurrentUsage:   0,
			LastResetDate:  truncateDay(now),
			Model:          defaults.Model,
			MaxTokens:      defaults.MaxTokens,
			Temperature:    defaults.Temperature,
			SystemPrompt:   defaults.SystemPrompt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		s.settings[orgID] = cfg
	}
	out := *cfg
	return &out, nil
}

func (s *Store) ResetDailyUsage(_ context.Context, orgID uuid.UUID, day time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.settings[orgID]
	if !ok {
		return false, nil
	}
	day = truncateDay(day)
	if cfg.LastResetDate.Before(day) {
		cfg.CurrentUsage = 0
		cfg.LastResetDate = day
		return true, nil
	}
	return false, nil
}

func (s *Store) UpdateAssistantSettings(_ context.Context, arg store.UpdateSettingsParams) (*models.AssistantSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.settings[arg.OrganizationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if arg.Enabled != nil {
		cfg.Enabled = *arg.Enabled
	}
	if arg.DailyLimit != nil {
		cfg.DailyLimit = *arg.DailyLimit
	}
	if arg.Model != nil {
		cfg.Model = *arg.Model
	}
	if arg.MaxTokens != nil {
		cfg.MaxTokens = *arg.MaxTokens
	}
	if arg.Temperature != nil {
		cfg.Temperature = *arg.Temperature
	}
	if arg.SystemPrompt != nil {
		cfg.SystemPrompt = *arg.SystemPrompt
	}
	cfg.UpdatedAt = time.Now()
	out := *cfg
	return &out, nil
}

// SetSettings overwrites an org's settings row. Test helper.
func (s *Store) SetSettings(cfg models.AssistantSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cfg
	s.settings[cfg.OrganizationID] = &c
}

// Settings returns a copy of an org's settings row, or nil. Test helper.
func (s *Store) Settings(orgID uuid.UUID) *models.AssistantSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.settings[orgID]
	if !ok {
		return nil
	}
	out := *cfg
	return &out
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// --- Integration credentials ---

func (s *Store) CreateIntegrationCredential(_ context.Context, arg store.CreateIntegrationCredentialParams) (*models.IntegrationCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	cred := &models.IntegrationCredential{
		ID:                   arg.ID,
		OrganizationID:       arg.OrganizationID,
		ServiceType:          models.ServiceType(arg.ServiceType),
		CredentialName:       arg.CredentialName,
		EncryptedCredentials: arg.EncryptedCredentials,
		Status:               arg.Status,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	s.creds[cred.ID] = cred
	out := *cred
	return &out, nil
}

func (s *Store) GetIntegrationCredentialByID(_ context.Context, id uuid.UUID, orgID uuid.UUID) (*models.IntegrationCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[id]
	if !ok || cred.OrganizationID != orgID {
		return nil, store.ErrNotFound
	}
	out := *cred
	return &out, nil
}

func (s *Store) GetActiveCredentialByServiceType(_ context.Context, serviceType string, orgID uuid.UUID) (*models.IntegrationCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newest *models.IntegrationCredential
	for _, cred := range s.creds {
		if cred.OrganizationID != orgID || string(cred.ServiceType) != serviceType || cred.Status != "ACTIVE" {
			continue
		}
		if newest == nil || cred.CreatedAt.After(newest.CreatedAt) {
			newest = cred
		}
	}
	if newest == nil {
		return nil, store.ErrNotFound
	}
	out := *newest
	return &out, nil
}

func (s *Store) ListIntegrationCredentialsByOrg(_ context.Context, orgID uuid.UUID, serviceType *string) ([]models.IntegrationCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.IntegrationCredential{}
	for _, cred := range s.creds {
		if cred.OrganizationID != orgID {
			continue
		}
		if serviceType != nil && *serviceType != "" && string(cred.ServiceType) != *serviceType {
			continue
		}
		out = append(out, *cred)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateIntegrationCredentialStatus(_ context.Context, id uuid.UUID, orgID uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[id]
	if !ok || cred.OrganizationID != orgID {
		return store.ErrNotFound
	}
	cred.Status = status
	cred.UpdatedAt = time.Now()
	return nil
}

func (s *Store) DeleteIntegrationCredential(_ context.Context, id uuid.UUID, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[id]
	if !ok || cred.OrganizationID != orgID {
		return store.ErrNotFound
	}
	delete(s.creds, id)
	return nil
}

// --- Customers ---

func (s *Store) ListCustomers(_ context.Context, orgID uuid.UUID, limit int) ([]models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Customer{}
	for _, c := range s.customers {
		if c.OrganizationID == orgID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SearchCustomers(_ context.Context, orgID uuid.UUID, query string, limit int) ([]models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Customer{}
	for _, c := range s.customers {
		if c.OrganizationID == orgID && strings.Contains(strings.ToLower(c.Name), strings.ToLower(query)) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok || c.OrganizationID != orgID {
		return nil, store.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *Store) CreateCustomer(_ context.Context, arg store.CreateCustomerParams) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	c := &models.Customer{
		ID:             uuid.New(),
		OrganizationID: arg.OrganizationID,
		Name:           arg.Name,
		Email:          arg.Email,
		Phone:          arg.Phone,
		City:           arg.City,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.customers[c.ID] = c
	out := *c
	return &out, nil
}

func (s *Store) UpdateCustomer(_ context.Context, arg store.UpdateCustomerParams) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[arg.ID]
	if !ok || c.OrganizationID != arg.OrganizationID {
		return nil, store.ErrNotFound
	}
	if arg.Name != nil {
		c.Name = *arg.Name
	}
	if arg.Email != nil {
		c.Email = arg.Email
	}
	if arg.Phone != nil {
		c.Phone = arg.Phone
	}
	if arg.City != nil {
		c.City = arg.City
	}
	c.UpdatedAt = time.Now()
	out := *c
	return &out, nil
}

// --- Invoices ---

func (s *Store) ListInvoices(_ context.Context, arg store.ListInvoicesParams) ([]models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Invoice{}
	for _, inv := range s.invoices {
		if inv.OrganizationID != arg.OrganizationID {
			continue
		}
		if arg.Status != nil && *arg.Status != "" && inv.Status != *arg.Status {
			continue
		}
		if arg.CustomerID != nil && inv.CustomerID != *arg.CustomerID {
			continue
		}
		out = append(out, *inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if arg.Limit > 0 && len(out) > arg.Limit {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (s *Store) GetInvoiceByNumber(_ context.Context, invoiceNumber string, orgID uuid.UUID) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invoices {
		if inv.OrganizationID == orgID && inv.InvoiceNumber == invoiceNumber {
			out := *inv
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateInvoice(_ context.Context, arg store.CreateInvoiceParams) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.invoices {
		if existing.OrganizationID == arg.OrganizationID && existing.InvoiceNumber == arg.InvoiceNumber {
			return nil, fmt.Errorf("invoice number %s: %w", arg.InvoiceNumber, store.ErrDuplicate)
		}
	}
	now := time.Now()
	inv := &models.Invoice{
		ID:             uuid.New(),
		OrganizationID: arg.OrganizationID,
		CustomerID:     arg.CustomerID,
		InvoiceNumber:  arg.InvoiceNumber,
		Status:         arg.Status,
		TotalCents:     arg.TotalCents,
		Currency:       arg.Currency,
		IssueDate:      arg.IssueDate,
		DueDate:        arg.DueDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.invoices[inv.ID] = inv
	out := *inv
	return &out, nil
}

func (s *Store) UpdateInvoiceStatus(_ context.Context, id uuid.UUID, orgID uuid.UUID, status string) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok || inv.OrganizationID != orgID {
		return nil, store.ErrNotFound
	}
	inv.Status = status
	inv.UpdatedAt = time.Now()
	out := *inv
	return &out, nil
}

// --- Sales orders ---

func (s *Store) ListSalesOrders(_ context.Context, arg store.ListSalesOrdersParams) ([]models.SalesOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.SalesOrder{}
	for _, so := range s.orders {
		if so.OrganizationID != arg.OrganizationID {
			continue
		}
		if arg.Status != nil && *arg.Status != "" && so.Status != *arg.Status {
			continue
		}
		out = append(out, *so)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if arg.Limit > 0 && len(out) > arg.Limit {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (s *Store) GetSalesOrderByNumber(_ context.Context, orderNumber string, orgID uuid.UUID) (*models.SalesOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, so := range s.orders {
		if so.OrganizationID == orgID && so.OrderNumber == orderNumber {
			out := *so
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateSalesOrder(_ context.Context, arg store.CreateSalesOrderParams) (*models.SalesOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orders {
		if existing.OrganizationID == arg.OrganizationID && existing.OrderNumber == arg.OrderNumber {
			return nil, fmt.Errorf("order number %s: %w", arg.OrderNumber, store.ErrDuplicate)
		}
	}
	now := time.Now()
	so := &models.SalesOrder{
		ID:             uuid.New(),
		OrganizationID: arg.OrganizationID,
		CustomerID:     arg.CustomerID,
		OrderNumber:    arg.OrderNumber,
		Status:         arg.Status,
		TotalCents:     arg.TotalCents,
		Currency:       arg.Currency,
		OrderDate:      arg.OrderDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.orders[so.ID] = so
	out := *so
	return &out, nil
}

func (s *Store) UpdateSalesOrderStatus(_ context.Context, id uuid.UUID, orgID uuid.UUID, status string) (*models.SalesOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	so, ok := s.orders[id]
	if !ok || so.OrganizationID != orgID {
		return nil, store.ErrNotFound
	}
	so.Status = status
	so.UpdatedAt = time.Now()
	out := *so
	return &out, nil
}
