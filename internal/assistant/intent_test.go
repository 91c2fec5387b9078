package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyIntentMatrix(t *testing.T) {
	cases := []struct {
		message string
		entity  string // "" means no match
	}{
		{"create a new customer", "customer"},
		{"Add a client please", "customer"},
		{"please register a new CLIENT for me", "customer"},
		{"make me an invoice", "invoice"},
		{"Add a bill for last month", "invoice"},
		{"set up a sales order", "sales_order"},
		{"create order", "sales_order"},
		{"create an invoice for that order", "invoice"},

		{"show me all customers", ""},
		{"what is new around here", ""},
		{"renew the maintenance contract", ""},
		{"customers in Berlin", ""},
		{"delete the customer", ""},
		{"", ""},
	}

	for _, tc := range cases {
		form := ClassifyIntent(tc.message)
		if tc.entity == "" {
			assert.Nil(t, form, "message %q must not match", tc.message)
			continue
		}
		require.NotNil(t, form, "message %q must match", tc.message)
		assert.Equal(t, tc.entity, form.Entity, "message %q", tc.message)
	}
}

func TestCustomerFormFields(t *testing.T) {
	form := ClassifyIntent("create a new customer")
	require.NotNil(t, form)

	var names []string
	required := map[string]bool{}
	for _, f := range form.Fields {
		names = append(names, f.Name)
		required[f.Name] = f.Required
	}
	assert.Equal(t, []string{"name", "email", "phone", "city"}, names)
	assert.True(t, required["name"])
	assert.False(t, required["email"])
}

func TestInvoiceFormMatchesCreateArguments(t *testing.T) {
	form := ClassifyIntent("make me an invoice")
	require.NotNil(t, form)

	byName := map[string]FormField{}
	for _, f := range form.Fields {
		byName[f.Name] = f
	}
	assert.True(t, byName["customer_id"].Required)
	assert.True(t, byName["invoice_number"].Required)
	assert.True(t, byName["total_cents"].Required)
	assert.Equal(t, "number", byName["total_cents"].Type)
	assert.Contains(t, byName["currency"].Options, "EUR")
	assert.False(t, byName["due_date"].Required)
}

func TestFormPromptNamesRequiredFields(t *testing.T) {
	form := ClassifyIntent("set up a sales order")
	require.NotNil(t, form)

	prompt := form.Prompt()
	assert.Contains(t, prompt, "sales order")
	assert.Contains(t, prompt, "Customer")
	assert.Contains(t, prompt, "Order number")
	assert.Contains(t, prompt, "Amount")
	assert.NotContains(t, prompt, "Currency", "optional fields stay out of the required list")
}
