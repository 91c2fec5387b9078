package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestActionsFromResponseText(t *testing.T) {
	actions := SuggestActions("I created invoice INV-042 for you.", UIContext{CurrentModule: "dashboard"})
	require.Len(t, actions, 1)
	assert.Equal(t, "Open invoices", actions[0].Label)
	assert.Equal(t, "/invoices", actions[0].Route)
}

func TestSuggestActionsSuppressCurrentModule(t *testing.T) {
	text := "Customer Acme GmbH now has three open invoices."

	onDashboard := SuggestActions(text, UIContext{CurrentModule: "dashboard"})
	require.Len(t, onDashboard, 2)

	onCustomers := SuggestActions(text, UIContext{CurrentModule: "customers"})
	require.Len(t, onCustomers, 1)
	assert.Equal(t, "/invoices", onCustomers[0].Route)

	// Leading slash in the module name makes no difference.
	withSlash := SuggestActions(text, UIContext{CurrentModule: "/customers"})
	assert.Equal(t, onCustomers, withSlash)
}

func TestSuggestActionsAmbiguityIsEmpty(t *testing.T) {
	assert.Empty(t, SuggestActions("Sure, anything else?", UIContext{}))
	assert.Empty(t, SuggestActions("", UIContext{}))
}

func TestSuggestActionsCapped(t *testing.T) {
	text := "The customer has one invoice, a sales order, and you hit the daily limit."
	actions := SuggestActions(text, UIContext{})
	require.Len(t, actions, 3)
	assert.Equal(t, "/customers", actions[0].Route)
	assert.Equal(t, "/invoices", actions[1].Route)
	assert.Equal(t, "/sales-orders", actions[2].Route)
}

func TestSuggestActionsQuotaHintsPointAtSettings(t *testing.T) {
	text := "The daily limit of 50 assistant exchanges is reached."
	actions := SuggestActions(text, UIContext{})
	require.Len(t, actions, 1)
	assert.Equal(t, "/settings/assistant", actions[0].Route)
}
