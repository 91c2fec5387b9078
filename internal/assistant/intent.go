package assistant

import (
	"strings"
	"unicode"
)

// FormField describes one input of a creation form.
type FormField struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // text, email, number, date, select
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

// Form is a structured field list returned instead of a model answer when
// the utterance is a plain creation request.
type Form struct {
	Entity string      `json:"entity"`
	Title  string      `json:"title"`
	Fields []FormField `json:"fields"`
}

// Prompt is the transcript text persisted alongside a form response.
func (f *Form) Prompt() string {
	var b strings.Builder
	b.WriteString("Happy to help with that. Fill in the ")
	b.WriteString(strings.ReplaceAll(f.Entity, "_", " "))
	b.WriteString(" details below and I will create it for you. Required: ")
	var required []string
	for _, field := range f.Fields {
		if field.Required {
			required = append(required, field.Label)
		}
	}
	b.WriteString(strings.Join(required, ", "))
	b.WriteString(".")
	return b.String()
}

var creationVerbs = []string{"create", "add", "new", "make", "register", "set up"}

var entityTerms = map[string][]string{
	"customer":    {"customer", "client"},
	"invoice":     {"invoice", "bill"},
	"sales_order": {"sales order", "order"},
}

// entityOrder fixes precedence when an utterance names several entities.
// "create an invoice for customer X" is an invoice request.
var entityOrder = []string{"invoice", "sales_order", "customer"}

// ClassifyIntent matches the raw utterance against the creation shortcut.
// It returns nil unless a creation verb and an entity term are both present,
// in which case the model is never consulted for this exchange.
func ClassifyIntent(message string) *Form {
	normalized := normalizeUtterance(message)

	verb := false
	for _, v := range creationVerbs {
		if hasTerm(normalized, v) {
			verb = true
			break
		}
	}
	if !verb {
		return nil
	}

	for _, entity := range entityOrder {
		for _, term := range entityTerms[entity] {
			if hasTerm(normalized, term) {
				return formFor(entity)
			}
		}
	}
	return nil
}

// normalizeUtterance lowercases and strips punctuation so keyword checks can
// match on word boundaries, including multi-word terms.
func normalizeUtterance(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return " " + strings.Join(strings.Fields(b.String()), " ") + " "
}

func hasTerm(normalized, term string) bool {
	return strings.Contains(normalized, " "+term+" ")
}

var currencyOptions = []string{"EUR", "USD", "GBP", "CHF"}

func formFor(entity string) *Form {
	switch entity {
	case "customer":
		return &Form{
			Entity: "customer",
			Title:  "New customer",
			Fields: []FormField{
				{Name: "name", Label: "Name", Type: "text", Required: true},
				{Name: "email", Label: "Email", Type: "email"},
				{Name: "phone", Label: "Phone", Type: "text"},
				{Name: "city", Label: "City", Type: "text"},
			},
		}
	case "invoice":
		return &Form{
			Entity: "invoice",
			Title:  "New invoice",
			Fields: []FormField{
				{Name: "customer_id", Label: "Customer", Type: "select", Required: true},
				{Name: "invoice_number", Label: "Invoice number", Type: "text", Required: true},
				{Name: "total_cents", Label: "Amount", Type: "number", Required: true},
				{Name: "currency", Label: "Currency", Type: "select", Options: currencyOptions},
				{Name: "due_date", Label: "Due date", Type: "date"},
			},
		}
	case "sales_order":
		return &Form{
			Entity: "sales_order",
			Title:  "New sales order",
			Fields: []FormField{
				{Name: "customer_id", Label: "Customer", Type: "select", Required: true},
				{Name: "order_number", Label: "Order number", Type: "text", Required: true},
				{Name: "total_cents", Label: "Amount", Type: "number", Required: true},
				{Name: "currency", Label: "Currency", Type: "select", Options: currencyOptions},
			},
		}
	default:
		return nil
	}
}
