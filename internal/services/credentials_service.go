package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ledgermate-backend/internal/crypto"
	"ledgermate-backend/internal/integrations"
	"ledgermate-backend/internal/models"
	integration_models "ledgermate-backend/internal/models/integrations"
	"ledgermate-backend/internal/store"
	"ledgermate-backend/pkg/logger"
)

// Credentials service errors mapped to HTTP statuses by the handlers.
var (
	ErrCredentialNotFound     = errors.New("credential not found")
	ErrCredentialValidation   = errors.New("credential validation failed")
	ErrCredentialEncryption   = errors.New("credential encryption failed")
	ErrCredentialTestFailed   = errors.New("credential test failed")
	ErrUnsupportedServiceType = errors.New("unsupported service type")
)

// CredentialsService manages integration credentials: validation against the
// service connector, a live connection test before anything is stored, and
// AES-GCM encryption at rest.
type CredentialsService interface {
	CreateCredential(ctx context.Context, orgID uuid.UUID, req models.CreateCredentialRequest) (*models.CredentialResponse, error)
	GetCredential(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.CredentialResponse, error)
	ListCredentials(ctx context.Context, orgID uuid.UUID, serviceType *string) ([]models.CredentialResponse, error)
	DeleteCredential(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error
	TestCredential(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.TestCredentialResponse, error)
}

type credentialsService struct {
	store    store.Store
	codec    *crypto.Codec
	registry *integrations.Registry
	log      *logger.Logger
}

// NewCredentialsService creates a new CredentialsService.
func NewCredentialsService(s store.Store, codec *crypto.Codec, reg *integrations.Registry) CredentialsService {
	return &credentialsService{
		store:    s,
		codec:    codec,
		registry: reg,
		log:      logger.Get().WithComponent("credentials"),
	}
}

func mapDbCredentialToResponse(dbCred *models.IntegrationCredential) *models.CredentialResponse {
	return &models.CredentialResponse{
		ID:             dbCred.ID,
		OrganizationID: dbCred.OrganizationID,
		ServiceType:    dbCred.ServiceType,
		CredentialName: dbCred.CredentialName,
		Status:         dbCred.Status,
		CreatedAt:      dbCred.CreatedAt,
		UpdatedAt:      dbCred.UpdatedAt,
	}
}

// CreateCredential validates the payload, tests it against the live service,
// then encrypts and stores it. A credential that fails the live test is never
// saved.
func (s *credentialsService) CreateCredential(ctx context.Context, orgID uuid.UUID, req models.CreateCredentialRequest) (*models.CredentialResponse, error) {
	if req.ServiceType == "" {
		return nil, fmt.Errorf("%w: service type cannot be empty", ErrCredentialValidation)
	}
	if len(req.Credentials) == 0 {
		return nil, fmt.Errorf("%w: credentials map cannot be empty", ErrCredentialValidation)
	}

	integration, err := s.registry.Get(req.ServiceType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedServiceType, req.ServiceType)
	}

	creds := integration_models.DecryptedCredentials(req.Credentials)
	if err := integration.ValidateCredentials(creds); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCredentialValidation, err.Error())
	}

	testResult, err := integration.TestConnection(ctx, creds)
	if err != nil {
		s.log.LogError(err, "pre-save connection test errored",
			"org_id", orgID.String(), "service_type", string(req.ServiceType))
		return nil, fmt.Errorf("failed to test %s connection: %w", req.ServiceType, err)
	}
	if !testResult.Success {
		s.log.Warn("pre-save connection test failed",
			"org_id", orgID.String(), "service_type", string(req.ServiceType), "message", testResult.Message)
		return nil, fmt.Errorf("%w: %s", ErrCredentialTestFailed, testResult.Message)
	}

	// Prefer an explicit name, then the bot name the test reported.
	var credentialName string
	if req.CredentialName != nil {
		credentialName = *req.CredentialName
	}
	if credentialName == "" {
		if botName, ok := testResult.Details["bot_name"].(string); ok && botName != "" {
			credentialName = botName
		} else {
			credentialName = fmt.Sprintf("%s connection", req.ServiceType)
		}
	}

	encrypted, err := s.codec.EncryptJSON(req.Credentials)
	if err != nil {
		s.log.LogError(err, "credential encryption failed", "org_id", orgID.String())
		return nil, ErrCredentialEncryption
	}

	dbCred, err := s.store.CreateIntegrationCredential(ctx, store.CreateIntegrationCredentialParams{
		ID:                   uuid.New(),
		OrganizationID:       orgID,
		ServiceType:          string(req.ServiceType),
		CredentialName:       credentialName,
		EncryptedCredentials: encrypted,
		Status:               "ACTIVE",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save credential: %w", err)
	}

	s.log.Info("credential created",
		"credential_id", dbCred.ID.String(), "org_id", orgID.String(),
		"service_type", string(req.ServiceType), "name", credentialName)
	return mapDbCredentialToResponse(dbCred), nil
}

// GetCredential retrieves a credential by ID for the specified organization.
func (s *credentialsService) GetCredential(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.CredentialResponse, error) {
	dbCred, err := s.store.GetIntegrationCredentialByID(ctx, id, orgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to retrieve credential: %w", err)
	}
	return mapDbCredentialToResponse(dbCred), nil
}

// ListCredentials retrieves all credentials for the specified organization,
// optionally filtered by service type.
func (s *credentialsService) ListCredentials(ctx context.Context, orgID uuid.UUID, serviceType *string) ([]models.CredentialResponse, error) {
	dbCreds, err := s.store.ListIntegrationCredentialsByOrg(ctx, orgID, serviceType)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	resp := make([]models.CredentialResponse, len(dbCreds))
	for i := range dbCreds {
		resp[i] = *mapDbCredentialToResponse(&dbCreds[i])
	}
	return resp, nil
}

// DeleteCredential deletes a credential by ID for the specified organization.
func (s *credentialsService) DeleteCredential(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error {
	if err := s.store.DeleteIntegrationCredential(ctx, id, orgID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCredentialNotFound
		}
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	s.log.Info("credential deleted", "credential_id", id.String(), "org_id", orgID.String())
	return nil
}

// TestCredential decrypts a stored credential and verifies it against the
// live service. The stored status tracks the outcome so the UI can surface
// connections that went stale.
func (s *credentialsService) TestCredential(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.TestCredentialResponse, error) {
	dbCred, err := s.store.GetIntegrationCredentialByID(ctx, id, orgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to retrieve credential: %w", err)
	}

	integration, err := s.registry.Get(dbCred.ServiceType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedServiceType, dbCred.ServiceType)
	}

	creds := integration_models.DecryptedCredentials{}
	if err := s.codec.DecryptJSON(dbCred.EncryptedCredentials, &creds); err != nil {
		s.log.LogError(err, "credential decryption failed", "credential_id", id.String())
		return &models.TestCredentialResponse{
			Success: false,
			Message: "Failed to decrypt stored credentials.",
		}, nil
	}

	testResult, err := integration.TestConnection(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("error occurred during connection test: %w", err)
	}

	status := "ACTIVE"
	if !testResult.Success {
		status = "ERROR"
	}
	if err := s.store.UpdateIntegrationCredentialStatus(ctx, id, orgID, status); err != nil {
		s.log.LogError(err, "failed to record credential test outcome", "credential_id", id.String())
	}

	return &models.TestCredentialResponse{
		Success: testResult.Success,
		Message: testResult.Message,
	}, nil
}
