package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jomei/notionapi"

	"ledgermate-backend/internal/crypto"
	"ledgermate-backend/internal/models"
	integration_models "ledgermate-backend/internal/models/integrations"
	"ledgermate-backend/internal/schema"
	"ledgermate-backend/internal/store"
)

// Help article search talks to the org's connected Notion workspace, so its
// limits are much tighter than the database read cap.
const (
	defaultArticleResults = 5
	maxArticleResults     = 20
)

func clampArticleLimit(requested int) int {
	if requested <= 0 {
		return defaultArticleResults
	}
	if requested > maxArticleResults {
		return maxArticleResults
	}
	return requested
}

func richTextPlain(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		b.WriteString(rt.PlainText)
	}
	return strings.TrimSpace(b.String())
}

func pageTitle(page *notionapi.Page) string {
	for _, prop := range page.Properties {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			if title := richTextPlain(tp.Title); title != "" {
				return title
			}
		}
	}
	return "Untitled"
}

func formatSearchResults(results []notionapi.Object) string {
	lines := []string{}
	for _, obj := range results {
		switch v := obj.(type) {
		case *notionapi.Page:
			lines = append(lines, fmt.Sprintf("- %s (%s)", pageTitle(v), v.URL))
		case *notionapi.Database:
			title := richTextPlain(v.Title)
			if title == "" {
				title = "Untitled"
			}
			lines = append(lines, fmt.Sprintf("- %s (%s)", title, v.URL))
		}
	}
	if len(lines) == 0 {
		return "No help articles matched."
	}
	return fmt.Sprintf("Found %d help article(s):\n%s", len(lines), strings.Join(lines, "\n"))
}

// NewKnowledgeRegistry builds the help-article registry backed by the org's
// Notion workspace. Orgs without an active Notion credential get an inline
// failure result, not an error.
func NewKnowledgeRegistry(st store.Store, codec *crypto.Codec) (*Registry, error) {
	return NewRegistry("knowledge", []Function{
		{
			Definition: Definition{
				Name:        "search_help_articles",
				Description: "Search the organization's help articles and documentation.",
				Parameters: schema.Object(map[string]*schema.Schema{
					"query": schema.String("Search terms."),
					"limit": schema.Integer("Maximum number of articles to return."),
				}, "query"),
			},
			Handler: func(ctx context.Context, orgID uuid.UUID, args json.RawMessage) (Result, error) {
				var params struct {
					Query string `json:"query"`
					Limit int    `json:"limit"`
				}
				if err := json.Unmarshal(args, &params); err != nil {
					return Result{}, fmt.Errorf("failed to decode arguments: %w", err)
				}

				cred, err := st.GetActiveCredentialByServiceType(ctx, string(models.ServiceTypeNotion), orgID)
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return Result{Success: false, Message: "no Notion workspace is connected, so help articles cannot be searched"}, nil
					}
					return Result{}, err
				}

				creds := integration_models.DecryptedCredentials{}
				if err := codec.DecryptJSON(cred.EncryptedCredentials, &creds); err != nil {
					return Result{}, fmt.Errorf("failed to decrypt notion credentials: %w", err)
				}
				secret := creds["internal_integration_secret"]
				if secret == "" {
					return Result{Success: false, Message: "the Notion connection is missing its integration secret"}, nil
				}

				client := notionapi.NewClient(notionapi.Token(secret))
				resp, err := client.Search.Do(ctx, &notionapi.SearchRequest{
					Query:    params.Query,
					PageSize: clampArticleLimit(params.Limit),
				})
				if err != nil {
					var notionErr *notionapi.Error
					if errors.As(err, &notionErr) {
						return Result{Success: false, Message: fmt.Sprintf("Notion search failed: %s", notionErr.Message)}, nil
					}
					return Result{}, fmt.Errorf("notion search request failed: %w", err)
				}
				return Result{Success: true, Message: formatSearchResults(resp.Results)}, nil
			},
		},
	})
}
