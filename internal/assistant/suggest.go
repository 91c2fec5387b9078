package assistant

import "strings"

// SuggestedAction is a navigation hint rendered under the assistant reply.
type SuggestedAction struct {
	Label string `json:"label"`
	Route string `json:"route"`
}

// UIContext is the caller-supplied view state: which module the user is on
// and which entity they are looking at. It shapes context notes and
// suggestions only; authorization never reads it.
type UIContext struct {
	CurrentModule string `json:"currentModule,omitempty"`
	EntityType    string `json:"entityType,omitempty"`
	EntityID      string `json:"entityId,omitempty"`
	UserRole      string `json:"userRole,omitempty"`
}

const maxSuggestions = 3

// moduleRoutes pairs each module's trigger terms with its navigation target,
// in the order suggestions are emitted.
var moduleRoutes = []struct {
	module string
	terms  []string
	label  string
	route  string
}{
	{"customers", []string{"customer", "customers", "client", "clients"}, "Open customers", "/customers"},
	{"invoices", []string{"invoice", "invoices", "bill", "bills", "paid", "payment"}, "Open invoices", "/invoices"},
	{"sales-orders", []string{"sales order", "sales orders", "order", "orders"}, "Open sales orders", "/sales-orders"},
	{"settings", []string{"daily limit", "quota", "disabled"}, "Open assistant settings", "/settings/assistant"},
}

// SuggestActions derives navigation suggestions from the final response
// text. It is pure and cannot fail: unrecognized text yields an empty list,
// and the module the user is already on is never suggested.
func SuggestActions(finalText string, ui UIContext) []SuggestedAction {
	normalized := normalizeUtterance(finalText)
	current := strings.Trim(strings.ToLower(ui.CurrentModule), "/")

	var actions []SuggestedAction
	for _, mr := range moduleRoutes {
		if mr.module == current {
			continue
		}
		for _, term := range mr.terms {
			if hasTerm(normalized, term) {
				actions = append(actions, SuggestedAction{Label: mr.label, Route: mr.route})
				break
			}
		}
		if len(actions) == maxSuggestions {
			break
		}
	}
	return actions
}
