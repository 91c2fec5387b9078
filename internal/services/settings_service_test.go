package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgermate-backend/internal/models"
	"ledgermate-backend/internal/store"
	"ledgermate-backend/internal/store/storetest"
)

func testDefaults() store.SettingsDefaults {
	return store.SettingsDefaults{
		DailyLimit:   50,
		Model:        "gpt-4o-mini",
		MaxTokens:    1024,
		Temperature:  0.2,
		SystemPrompt: "You are the accounting assistant.",
	}
}

func TestSettingsGetCreatesRowLazily(t *testing.T) {
	st := storetest.New()
	svc := NewSettingsService(st, testDefaults())
	orgID := uuid.New()

	resp, err := svc.Get(context.Background(), orgID)
	require.NoError(t, err)

	assert.Equal(t, orgID, resp.OrganizationID)
	assert.True(t, resp.Enabled)
	assert.Equal(t, 50, resp.DailyLimit)
	assert.Equal(t, 0, resp.CurrentUsage)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, resp.LastResetDate)

	row := st.Settings(orgID)
	require.NotNil(t, row, "row should exist after first read")
	assert.Equal(t, row.LastResetDate.Format("2006-01-02"), resp.LastResetDate)
}

func TestSettingsUpdateAppliesOnlyProvidedFields(t *testing.T) {
	st := storetest.New()
	svc := NewSettingsService(st, testDefaults())
	orgID := uuid.New()

	limit := 200
	temp := 0.9
	resp, err := svc.Update(context.Background(), orgID, models.UpdateSettingsRequest{
		DailyLimit:  &limit,
		Temperature: &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, 200, resp.DailyLimit)
	assert.InDelta(t, 0.9, resp.Temperature, 1e-9)
	assert.Equal(t, "gpt-4o-mini", resp.Model, "untouched field keeps its default")
	assert.Equal(t, 1024, resp.MaxTokens)
}

func TestSettingsUpdateCanDisableAssistant(t *testing.T) {
	st := storetest.New()
	svc := NewSettingsService(st, testDefaults())
	orgID := uuid.New()

	enabled := false
	resp, err := svc.Update(context.Background(), orgID, models.UpdateSettingsRequest{Enabled: &enabled})
	require.NoError(t, err)
	assert.False(t, resp.Enabled)
}

func TestSettingsUpdateValidation(t *testing.T) {
	intp := func(v int) *int { return &v }
	floatp := func(v float64) *float64 { return &v }
	strp := func(v string) *string { return &v }

	longPrompt := make([]byte, 8001)
	for i := range longPrompt {
		longPrompt[i] = 'a'
	}

	cases := []struct {
		name string
		req  models.UpdateSettingsRequest
	}{
		{"zero daily limit", models.UpdateSettingsRequest{DailyLimit: intp(0)}},
		{"huge daily limit", models.UpdateSettingsRequest{DailyLimit: intp(10001)}},
		{"zero max tokens", models.UpdateSettingsRequest{MaxTokens: intp(0)}},
		{"negative temperature", models.UpdateSettingsRequest{Temperature: floatp(-0.1)}},
		{"temperature above two", models.UpdateSettingsRequest{Temperature: floatp(2.5)}},
		{"blank model", models.UpdateSettingsRequest{Model: strp("  ")}},
		{"oversized prompt", models.UpdateSettingsRequest{SystemPrompt: strp(string(longPrompt))}},
	}

	st := storetest.New()
	svc := NewSettingsService(st, testDefaults())
	orgID := uuid.New()

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), orgID, tc.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}
