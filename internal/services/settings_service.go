package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ledgermate-backend/internal/models"
	"ledgermate-backend/internal/store"
	"ledgermate-backend/pkg/logger"
)

// SettingsService reads and updates the per-organization assistant
// configuration. Reads go through the same lazy-create path the engine uses,
// so both always see an identical defaults row.
type SettingsService struct {
	store    store.Store
	defaults store.SettingsDefaults
	log      *logger.Logger
}

// NewSettingsService creates the settings service. The defaults must be the
// same value the orchestration engine was configured with.
func NewSettingsService(s store.Store, defaults store.SettingsDefaults) *SettingsService {
	return &SettingsService{
		store:    s,
		defaults: defaults,
		log:      logger.Get().WithComponent("settings"),
	}
}

// Get returns the organization's assistant settings, creating the row with
// defaults if this organization never used the assistant before.
func (s *SettingsService) Get(ctx context.Context, orgID uuid.UUID) (*models.SettingsResponse, error) {
	settings, err := s.store.GetOrCreateAssistantSettings(ctx, orgID, s.defaults)
	if err != nil {
		return nil, fmt.Errorf("failed to load assistant settings: %w", err)
	}
	return mapSettingsToResponse(settings), nil
}

// Update applies the provided fields and returns the updated settings.
// Usage counters are engine-owned and cannot be written here.
func (s *SettingsService) Update(ctx context.Context, orgID uuid.UUID, req models.UpdateSettingsRequest) (*models.SettingsResponse, error) {
	if err := validateSettingsUpdate(req); err != nil {
		return nil, err
	}

	// Ensure the row exists so a PUT before any chat still works.
	if _, err := s.store.GetOrCreateAssistantSettings(ctx, orgID, s.defaults); err != nil {
		return nil, fmt.Errorf("failed to load assistant settings: %w", err)
	}

	settings, err := s.store.UpdateAssistantSettings(ctx, store.UpdateSettingsParams{
		OrganizationID: orgID,
		Enabled:        req.Enabled,
		DailyLimit:     req.DailyLimit,
		Model:          req.Model,
		MaxTokens:      req.MaxTokens,
		Temperature:    req.Temperature,
		SystemPrompt:   req.SystemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update assistant settings: %w", err)
	}

	s.log.Info("assistant settings updated", "org_id", orgID.String())
	return mapSettingsToResponse(settings), nil
}

func validateSettingsUpdate(req models.UpdateSettingsRequest) error {
	if req.DailyLimit != nil && (*req.DailyLimit < 1 || *req.DailyLimit > 10000) {
		return fmt.Errorf("%w: daily_limit must be between 1 and 10000", ErrValidation)
	}
	if req.MaxTokens != nil && (*req.MaxTokens < 1 || *req.MaxTokens > 32768) {
		return fmt.Errorf("%w: max_tokens must be between 1 and 32768", ErrValidation)
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return fmt.Errorf("%w: temperature must be between 0 and 2", ErrValidation)
	}
	if req.Model != nil && strings.TrimSpace(*req.Model) == "" {
		return fmt.Errorf("%w: model cannot be empty", ErrValidation)
	}
	if req.SystemPrompt != nil && len(*req.SystemPrompt) > 8000 {
		return fmt.Errorf("%w: system_prompt exceeds 8000 characters", ErrValidation)
	}
	return nil
}

func mapSettingsToResponse(settings *models.AssistantSettings) *models.SettingsResponse {
	return &models.SettingsResponse{
		OrganizationID: settings.OrganizationID,
		Enabled:        settings.Enabled,
		DailyLimit:     settings.DailyLimit,
		CurrentUsage:   settings.CurrentUsage,
		LastResetDate:  settings.LastResetDate.Format("2006-01-02"),
		Model:          settings.Model,
		MaxTokens:      settings.MaxTokens,
		Temperature:    settings.Temperature,
		SystemPrompt:   settings.SystemPrompt,
		UpdatedAt:      settings.UpdatedAt,
	}
}
