package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ledgermate-backend/internal/models"
	"ledgermate-backend/internal/store"
)

// --- Assistant settings methods ---

const seedAssistantSettings = `-- name: SeedAssistantSettings :exec
INSERT INTO assistant_settings (organization_id, daily_limit, model, max_tokens, temperature, system_prompt)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (organization_id) DO NOTHING;
`

const getAssistantSettings = `-- name: GetAssistantSettings :one
SELECT organization_id, enabled, daily_limit, current_usage, last_reset_date, model, max_tokens, temperature, system_prompt, created_at, updated_at
FROM assistant_settings
WHERE organization_id = $1;
`

// GetOrCreateAssistantSettings returns the organization's assistant
// settings, creating the row with the given defaults on first use.
func (s *PostgresStore) GetOrCreateAssistantSettings(ctx context.Context, orgID uuid.UUID, defaults store.SettingsDefaults) (*models.AssistantSettings, error) {
	_, err := s.db.Exec(ctx, seedAssistantSettings,
		orgID,
		defaults.DailyLimit,
		defaults.Model,
		defaults.MaxTokens,
		defaults.Temperature,
		defaults.SystemPrompt,
	)
	if err != nil {
		return nil, fmt.Errorf("error seeding assistant settings: %w", err)
	}

	row := s.db.QueryRow(ctx, getAssistantSettings, orgID)
	var i models.AssistantSettings
	err = row.Scan(
		&i.OrganizationID,
		&i.Enabled,
		&i.DailyLimit,
		&i.CurrentUsage,
		&i.LastResetDate,
		&i.Model,
		&i.MaxTokens,
		&i.Temperature,
		&i.SystemPrompt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning assistant settings: %w", err)
	}
	return &i, nil
}

const resetDailyUsage = `-- name: ResetDailyUsage :exec
UPDATE assistant_settings
SET current_usage = 0, last_reset_date = $2, updated_at = NOW()
WHERE organization_id = $1 AND last_reset_date < $2;
`

// ResetDailyUsage zeroes the usage counter when the stored reset date is
// older than day. The WHERE guard makes the reset happen exactly once per
// calendar day even under concurrent exchanges. Reports whether a reset
// was applied.
func (s *PostgresStore) ResetDailyUsage(ctx context.Context, orgID uuid.UUID, day time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, resetDailyUsage, orgID, day)
	if err != nil {
		return false, fmt.Errorf("error resetting daily usage: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateAssistantSettings builds the query dynamically based on which
// fields are provided.
func (s *PostgresStore) UpdateAssistantSettings(ctx context.Context, arg store.UpdateSettingsParams) (*models.AssistantSettings, error) {
	setClauses := []string{}
	args := []interface{}{}
	argID := 1

	if arg.Enabled != nil {
		setClauses = append(setClauses, fmt.Sprintf("enabled = $%d", argID))
		args = append(args, *arg.Enabled)
		argID++
	}
	if arg.DailyLimit != nil {
		setClauses = append(setClauses, fmt.Sprintf("daily_limit = $%d", argID))
		args = append(args, *arg.DailyLimit)
		argID++
	}
	if arg.Model != nil {
		setClauses = append(setClauses, fmt.Sprintf("model = $%d", argID))
		args = append(args, *arg.Model)
		argID++
	}
	if arg.MaxTokens != nil {
		setClauses = append(setClauses, fmt.Sprintf("max_tokens = $%d", argID))
		args = append(args, *arg.MaxTokens)
		argID++
	}
	if arg.Temperature != nil {
		setClauses = append(setClauses, fmt.Sprintf("temperature = $%d", argID))
		args = append(args, *arg.Temperature)
		argID++
	}
	if arg.SystemPrompt != nil {
		setClauses = append(setClauses, fmt.Sprintf("system_prompt = $%d", argID))
		args = append(args, *arg.SystemPrompt)
		argID++
	}

	if len(setClauses) == 0 {
		return nil, fmt.Errorf("no fields provided for settings update")
	}

	setClauses = append(setClauses, "updated_at = NOW()")
	query := fmt.Sprintf(`
		UPDATE assistant_settings
		SET %s
		WHERE organization_id = $%d
		RETURNING organization_id, enabled, daily_limit, current_usage, last_reset_date, model, max_tokens, temperature, system_prompt, created_at, updated_at`,
		strings.Join(setClauses, ", "), argID)
	args = append(args, arg.OrganizationID)

	row := s.db.QueryRow(ctx, query, args...)
	var i models.AssistantSettings
	err := row.Scan(
		&i.OrganizationID,
		&i.Enabled,
		&i.DailyLimit,
		&i.CurrentUsage,
		&i.LastResetDate,
		&i.Model,
		&i.MaxTokens,
		&i.Temperature,
		&i.SystemPrompt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error updating assistant settings: %w", err)
	}
	return &i, nil
}
