package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"ledgermate-backend/internal/models"
	"ledgermate-backend/internal/store"
)

const credentialColumns = `id, organization_id, service_type, credential_name, encrypted_credentials, status, created_at, updated_at`

func scanCredential(row pgx.Row) (*models.IntegrationCredential, error) {
	cred := &models.IntegrationCredential{}
	err := row.Scan(
		&cred.ID,
		&cred.OrganizationID,
		&cred.ServiceType,
		&cred.CredentialName,
		&cred.EncryptedCredentials,
		&cred.Status,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// CreateIntegrationCredential inserts a new encrypted credential record.
func (s *PostgresStore) CreateIntegrationCredential(ctx context.Context, arg store.CreateIntegrationCredentialParams) (*models.IntegrationCredential, error) {
	query := `
		INSERT INTO integration_credentials (id, organization_id, service_type, credential_name, encrypted_credentials, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + credentialColumns

	cred, err := scanCredential(s.db.QueryRow(ctx, query,
		arg.ID,
		arg.OrganizationID,
		arg.ServiceType,
		arg.CredentialName,
		arg.EncryptedCredentials,
		arg.Status,
	))
	if err != nil {
		return nil, fmt.Errorf("database error creating integration credential: %w", err)
	}
	return cred, nil
}

// GetIntegrationCredentialByID retrieves a credential ensuring it belongs to the org.
func (s *PostgresStore) GetIntegrationCredentialByID(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.IntegrationCredential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM integration_credentials
		WHERE id = $1 AND organization_id = $2`

	cred, err := scanCredential(s.db.QueryRow(ctx, query, id, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching integration credential: %w", err)
	}
	return cred, nil
}

// GetActiveCredentialByServiceType returns the most recently created ACTIVE
// credential of the given service type for the org. Returns store.ErrNotFound
// when the org has not connected that service.
func (s *PostgresStore) GetActiveCredentialByServiceType(ctx context.Context, serviceType string, orgID uuid.UUID) (*models.IntegrationCredential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM integration_credentials
		WHERE organization_id = $1 AND service_type = $2 AND status = 'ACTIVE'
		ORDER BY created_at DESC
		LIMIT 1`

	cred, err := scanCredential(s.db.QueryRow(ctx, query, orgID, serviceType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching active credential: %w", err)
	}
	return cred, nil
}

// ListIntegrationCredentialsByOrg lists credentials for an organization, optionally filtering by type.
func (s *PostgresStore) ListIntegrationCredentialsByOrg(ctx context.Context, orgID uuid.UUID, serviceType *string) ([]models.IntegrationCredential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM integration_credentials
		WHERE organization_id = $1`

	args := []any{orgID}
	if serviceType != nil && *serviceType != "" {
		query += " AND service_type = $2"
		args = append(args, *serviceType)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database error listing integration credentials: %w", err)
	}
	defer rows.Close()

	credentials := []models.IntegrationCredential{}
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("database error scanning integration credential: %w", err)
		}
		credentials = append(credentials, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error after listing integration credentials: %w", err)
	}
	return credentials, nil
}

// UpdateIntegrationCredentialStatus updates the status of a specific credential.
func (s *PostgresStore) UpdateIntegrationCredentialStatus(ctx context.Context, id uuid.UUID, orgID uuid.UUID, status string) error {
	query := `
		UPDATE integration_credentials
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND organization_id = $3`

	cmdTag, err := s.db.Exec(ctx, query, status, id, orgID)
	if err != nil {
		return fmt.Errorf("database error updating credential status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteIntegrationCredential deletes a credential ensuring it belongs to the org.
func (s *PostgresStore) DeleteIntegrationCredential(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error {
	query := `DELETE FROM integration_credentials WHERE id = $1 AND organization_id = $2`

	cmdTag, err := s.db.Exec(ctx, query, id, orgID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("cannot delete credential because it is still in use")
		}
		return fmt.Errorf("database error deleting integration credential: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
