package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ledgermate-backend/internal/models"
	"ledgermate-backend/internal/store"
)

// --- Assistant session methods ---

const createSession = `-- name: CreateSession :one
INSERT INTO assistant_sessions (organization_id, source, external_ref)
VALUES ($1, $2, $3)
RETURNING id, organization_id, source, external_ref, created_at, updated_at;
`

func (s *PostgresStore) CreateSession(ctx context.Context, arg store.CreateSessionParams) (*models.AssistantSession, error) {
	row := s.db.QueryRow(ctx, createSession, arg.OrganizationID, arg.Source, arg.ExternalRef)
	var i models.AssistantSession
	err := row.Scan(
		&i.ID,
		&i.OrganizationID,
		&i.Source,
		&i.ExternalRef,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("error creating assistant session: %w", err)
	}
	return &i, nil
}

const getSessionByID = `-- name: GetSessionByID :one
SELECT id, organization_id, source, external_ref, created_at, updated_at
FROM assistant_sessions
WHERE id = $1 AND organization_id = $2;
`

func (s *PostgresStore) GetSessionByID(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.AssistantSession, error) {
	row := s.db.QueryRow(ctx, getSessionByID, id, orgID)
	var i models.AssistantSession
	err := row.Scan(
		&i.ID,
		&i.OrganizationID,
		&i.Source,
		&i.ExternalRef,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning assistant session: %w", err)
	}
	return &i, nil
}

const getSessionByExternalRef = `-- name: GetSessionByExternalRef :one
SELECT id, organization_id, source, external_ref, created_at, updated_at
FROM assistant_sessions
WHERE external_ref = $1 AND organization_id = $2;
`

func (s *PostgresStore) GetSessionByExternalRef(ctx context.Context, externalRef string, orgID uuid.UUID) (*models.AssistantSession, error) {
	row := s.db.QueryRow(ctx, getSessionByExternalRef, externalRef, orgID)
	var i models.AssistantSession
	err := row.Scan(
		&i.ID,
		&i.OrganizationID,
		&i.Source,
		&i.ExternalRef,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning assistant session: %w", err)
	}
	return &i, nil
}

const listSessionsByOrg = `-- name: ListSessionsByOrg :many
SELECT id, organization_id, source, external_ref, created_at, updated_at
FROM assistant_sessions
WHERE organization_id = $1
ORDER BY updated_at DESC
LIMIT $2;
`

func (s *PostgresStore) ListSessionsByOrg(ctx context.Context, orgID uuid.UUID, limit int) ([]models.AssistantSession, error) {
	rows, err := s.db.Query(ctx, listSessionsByOrg, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying assistant sessions: %w", err)
	}
	defer rows.Close()

	var items []models.AssistantSession
	for rows.Next() {
		var i models.AssistantSession
		if err := rows.Scan(
			&i.ID,
			&i.OrganizationID,
			&i.Source,
			&i.ExternalRef,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning assistant session row: %w", err)
		}
		items = append(items, i)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assistant session rows: %w", err)
	}
	return items, nil
}

const deleteSession = `-- name: DeleteSession :exec
DELETE FROM assistant_sessions
WHERE id = $1 AND organization_id = $2;
`

// DeleteSession removes a session; its messages cascade at the database level.
func (s *PostgresStore) DeleteSession(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, deleteSession, id, orgID)
	if err != nil {
		return fmt.Errorf("error deleting assistant session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Assistant message methods ---

const listRecentMessages = `-- name: ListRecentMessages :many
SELECT id, session_id, organization_id, role, content, confidence, latency_ms, entity_type, entity_id, created_at
FROM (
	SELECT *
	FROM assistant_messages
	WHERE session_id = $1 AND organization_id = $2
	ORDER BY created_at DESC, seq DESC
	LIMIT $3
) recent
ORDER BY created_at ASC, seq ASC;
`

// ListRecentMessages returns the last limit messages of a session in
// chronological order. Ties on created_at are broken by insertion order.
func (s *PostgresStore) ListRecentMessages(ctx context.Context, sessionID uuid.UUID, orgID uuid.UUID, limit int) ([]models.AssistantMessage, error) {
	rows, err := s.db.Query(ctx, listRecentMessages, sessionID, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying assistant messages: %w", err)
	}
	defer rows.Close()

	var items []models.AssistantMessage
	for rows.Next() {
		var i models.AssistantMessage
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.OrganizationID,
			&i.Role,
			&i.Content,
			&i.Confidence,
			&i.LatencyMS,
			&i.EntityType,
			&i.EntityID,
			&i.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning assistant message row: %w", err)
		}
		items = append(items, i)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assistant message rows: %w", err)
	}
	return items, nil
}

const insertMessage = `-- name: InsertMessage :exec
INSERT INTO assistant_messages (session_id, organization_id, role, content, confidence, latency_ms, entity_type, entity_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`

const touchSession = `-- name: TouchSession :exec
UPDATE assistant_sessions SET updated_at = NOW()
WHERE id = $1 AND organization_id = $2;
`

const bumpUsage = `-- name: BumpUsage :exec
UPDATE assistant_settings SET current_usage = current_usage + 1, updated_at = NOW()
WHERE organization_id = $1;
`

// RecordExchange appends the user and assistant messages of one completed
// exchange and increments the daily usage counter, all in one transaction.
// Either everything is persisted or nothing is.
func (s *PostgresStore) RecordExchange(ctx context.Context, arg store.RecordExchangeParams) error {
	for _, m := range []store.NewMessage{arg.UserMessage, arg.AssistantMessage} {
		if !models.ValidPersistedRole(m.Role) {
			return fmt.Errorf("invalid message role %q", m.Role)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error starting exchange transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, touchSession, arg.SessionID, arg.OrganizationID)
	if err != nil {
		return fmt.Errorf("error touching session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	for _, m := range []store.NewMessage{arg.UserMessage, arg.AssistantMessage} {
		if _, err := tx.Exec(ctx, insertMessage,
			arg.SessionID,
			arg.OrganizationID,
			m.Role,
			m.Content,
			m.Confidence,
			m.LatencyMS,
			m.EntityType,
			m.EntityID,
		); err != nil {
			return fmt.Errorf("error inserting %s message: %w", m.Role, err)
		}
	}

	if _, err := tx.Exec(ctx, bumpUsage, arg.OrganizationID); err != nil {
		return fmt.Errorf("error incrementing usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing exchange: %w", err)
	}
	return nil
}
