package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ledgermate-backend/internal/assistant"
	"ledgermate-backend/internal/models"
	"ledgermate-backend/internal/store"
	"ledgermate-backend/pkg/logger"
)

// AssistantService fronts the orchestration engine for the HTTP API and the
// Slack webhook. It maps engine results to API DTOs and owns session listing,
// transcript reads and session deletion.
type AssistantService struct {
	store  store.Store
	engine *assistant.Orchestrator
	log    *logger.Logger
}

// NewAssistantService creates the assistant service.
func NewAssistantService(s store.Store, engine *assistant.Orchestrator) *AssistantService {
	return &AssistantService{
		store:  s,
		engine: engine,
		log:    logger.Get().WithComponent("assistant_service"),
	}
}

// Chat runs one web exchange for an authenticated user. The role comes from
// the verified token; any role inside req.Context is ignored.
func (s *AssistantService) Chat(ctx context.Context, orgID, userID uuid.UUID, userRole string, req models.ChatRequest) (*models.ChatResponse, error) {
	engineReq := assistant.Request{
		OrgID:     orgID,
		UserID:    userID,
		Message:   req.Message,
		UserRole:  userRole,
		SessionID: req.SessionID,
		Source:    models.SessionSourceWeb,
		Context:   toUIContext(req.Context),
	}

	resp, err := s.engine.Exchange(ctx, engineReq)
	if err != nil {
		return nil, err
	}
	return mapEngineResponse(resp), nil
}

// ExchangeFromSlack runs one exchange originating from a Slack message.
// Sessions are keyed by the external ref (team, channel and thread), so a
// Slack thread keeps its history across messages. Slack senders are not
// LedgerMate users; their exchanges run with member permissions.
func (s *AssistantService) ExchangeFromSlack(ctx context.Context, orgID uuid.UUID, externalRef, text string) (*models.ChatResponse, error) {
	engineReq := assistant.Request{
		OrgID:       orgID,
		Message:     text,
		UserRole:    models.UserRoleMember,
		Source:      models.SessionSourceSlack,
		ExternalRef: &externalRef,
	}

	session, err := s.store.GetSessionByExternalRef(ctx, externalRef, orgID)
	switch {
	case err == nil:
		engineReq.SessionID = &session.ID
	case errors.Is(err, store.ErrNotFound):
		// First message in this thread; the engine creates the session.
	default:
		return nil, fmt.Errorf("failed to look up slack session: %w", err)
	}

	resp, err := s.engine.Exchange(ctx, engineReq)
	if err != nil {
		return nil, err
	}
	return mapEngineResponse(resp), nil
}

// ListSessions returns the organization's sessions, newest first.
func (s *AssistantService) ListSessions(ctx context.Context, orgID uuid.UUID, limit int) (*models.ListSessionsResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	sessions, err := s.store.ListSessionsByOrg(ctx, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	out := make([]models.SessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, models.SessionResponse{
			ID:          sessions[i].ID,
			Source:      sessions[i].Source,
			ExternalRef: sessions[i].ExternalRef,
			CreatedAt:   sessions[i].CreatedAt,
			UpdatedAt:   sessions[i].UpdatedAt,
		})
	}
	return &models.ListSessionsResponse{Sessions: out}, nil
}

// GetSessionMessages returns the most recent transcript rows of one session
// in chronological order. Returns store.ErrNotFound when the session does not
// exist in this organization.
func (s *AssistantService) GetSessionMessages(ctx context.Context, orgID, sessionID uuid.UUID, limit int) (*models.ListMessagesResponse, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	if _, err := s.store.GetSessionByID(ctx, sessionID, orgID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	messages, err := s.store.ListRecentMessages(ctx, sessionID, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	out := make([]models.MessageResponse, 0, len(messages))
	for i := range messages {
		out = append(out, models.MessageResponse{
			ID:         messages[i].ID,
			SessionID:  messages[i].SessionID,
			Role:       messages[i].Role,
			Content:    messages[i].Content,
			Confidence: messages[i].Confidence,
			LatencyMS:  messages[i].LatencyMS,
			EntityType: messages[i].EntityType,
			EntityID:   messages[i].EntityID,
			CreatedAt:  messages[i].CreatedAt,
		})
	}
	return &models.ListMessagesResponse{Messages: out}, nil
}

// DeleteSession removes a session and its transcript. Returns
// store.ErrNotFound when the session does not exist in this organization.
func (s *AssistantService) DeleteSession(ctx context.Context, orgID, sessionID uuid.UUID) error {
	if err := s.store.DeleteSession(ctx, sessionID, orgID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.log.Info("session deleted", "session_id", sessionID.String(), "org_id", orgID.String())
	return nil
}

func toUIContext(rc *models.RequestContext) *assistant.UIContext {
	if rc == nil {
		return nil
	}
	return &assistant.UIContext{
		CurrentModule: rc.CurrentModule,
		EntityType:    rc.EntityType,
		EntityID:      rc.EntityID,
		UserRole:      rc.UserRole,
	}
}

func mapEngineResponse(resp *assistant.Response) *models.ChatResponse {
	out := &models.ChatResponse{
		SessionID:  resp.SessionID,
		Content:    resp.Content,
		Confidence: resp.Confidence,
	}

	if resp.Form != nil {
		fields := make([]models.FormField, 0, len(resp.Form.Fields))
		for _, f := range resp.Form.Fields {
			fields = append(fields, models.FormField{
				Name:     f.Name,
				Label:    f.Label,
				Type:     f.Type,
				Required: f.Required,
				Options:  f.Options,
			})
		}
		out.Form = &models.Form{
			Entity: resp.Form.Entity,
			Title:  resp.Form.Title,
			Fields: fields,
		}
	}

	for _, a := range resp.SuggestedActions {
		out.SuggestedActions = append(out.SuggestedActions, models.SuggestedAction{
			Label: a.Label,
			Route: a.Route,
		})
	}
	for _, f := range resp.ExecutedFunctions {
		out.ExecutedFunctions = append(out.ExecutedFunctions, models.ExecutedFunction{
			Name:       f.Name,
			Success:    f.Success,
			EntityType: f.EntityType,
			EntityID:   f.EntityID,
		})
	}
	return out
}
