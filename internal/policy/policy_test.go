package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgermate-backend/internal/models"
)

func TestDefaultPolicyBlocksViewerWrites(t *testing.T) {
	engine, err := New(context.Background(), DefaultModule)
	require.NoError(t, err)

	cases := []struct {
		function string
		role     string
		want     string
	}{
		{"list_customers", models.UserRoleViewer, DecisionAllow},
		{"search_customers", models.UserRoleViewer, DecisionAllow},
		{"get_invoice", models.UserRoleViewer, DecisionAllow},
		{"create_customer", models.UserRoleViewer, DecisionBlock},
		{"update_customer", models.UserRoleViewer, DecisionBlock},
		{"mark_invoice_paid", models.UserRoleViewer, DecisionBlock},
		{"create_invoice", models.UserRoleMember, DecisionAllow},
		{"update_order_status", models.UserRoleAdmin, DecisionAllow},
	}

	for _, tc := range cases {
		got := engine.Decide(context.Background(), Input{
			Function: tc.function,
			Registry: "accounting",
			Role:     tc.role,
		})
		assert.Equal(t, tc.want, got, "%s as %s", tc.function, tc.role)
	}
}

func TestCustomModuleOverridesDefault(t *testing.T) {
	module := `
package assistant_tools

default decision = "allow"

decision = "block" {
	input.function == "search_help_articles"
}
`
	engine, err := New(context.Background(), module)
	require.NoError(t, err)

	assert.Equal(t, DecisionBlock, engine.Decide(context.Background(), Input{
		Function: "search_help_articles",
		Role:     models.UserRoleAdmin,
	}))
	assert.Equal(t, DecisionAllow, engine.Decide(context.Background(), Input{
		Function: "create_customer",
		Role:     models.UserRoleViewer,
	}))
}

func TestNewRejectsBrokenModule(t *testing.T) {
	_, err := New(context.Background(), "package assistant_tools\n\ndecision {")
	require.Error(t, err)
}

func TestUndefinedDecisionDegradesToAllow(t *testing.T) {
	// No default rule and no matching rule body leaves the decision
	// undefined; the engine treats that as allow.
	module := `
package assistant_tools

decision = "block" {
	input.function == "never_called"
}
`
	engine, err := New(context.Background(), module)
	require.NoError(t, err)

	got := engine.Decide(context.Background(), Input{Function: "list_customers", Role: models.UserRoleMember})
	assert.Equal(t, DecisionAllow, got)
}
