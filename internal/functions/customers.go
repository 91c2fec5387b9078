package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ledgermate-backend/internal/models"
	"ledgermate-backend/internal/schema"
	"ledgermate-backend/internal/store"
)

// clampReadLimit bounds a requested row limit to [1, MaxReadRows], applying
// the default when the model did not ask for one.
func clampReadLimit(requested int) int {
	if requested <= 0 {
		return defaultReadRows
	}
	if requested > MaxReadRows {
		return MaxReadRows
	}
	return requested
}

type customerDelta struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
	City  *string `json:"city,omitempty"`
}

func newCustomerDelta(c *models.Customer) customerDelta {
	return customerDelta{
		ID:    c.ID.String(),
		Name:  c.Name,
		Email: c.Email,
		Phone: c.Phone,
		City:  c.City,
	}
}

func describeCustomer(c *models.Customer) string {
	parts := []string{c.Name}
	if c.Email != nil && *c.Email != "" {
		parts = append(parts, "email "+*c.Email)
	}
	if c.City != nil && *c.City != "" {
		parts = append(parts, "city "+*c.City)
	}
	parts = append(parts, "id "+c.ID.String())
	return strings.Join(parts, ", ")
}

func formatCustomerList(customers []models.Customer) string {
	if len(customers) == 0 {
		return "No customers found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d customer(s):\n", len(customers))
	for i := range customers {
		fmt.Fprintf(&b, "- %s\n", describeCustomer(&customers[i]))
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewCustomerRegistry builds the customer module's function registry.
func NewCustomerRegistry(st store.Store) (*Registry, error) {
	return NewRegistry("customers", []Function{
		{
			Definition: Definition{
				Name:        "list_customers",
				Description: "List the organization's customers, alphabetically by name.",
				Parameters: schema.Object(map[string]*schema.Schema{
					"limit": schema.Integer("Maximum number of customers to return."),
				}),
			},
			Handler: func(ctx context.Context, orgID uuid.UUID, args json.RawMessage) (Result, error) {
				var params struct {
					Limit int `json:"limit"`
				}
				if err := json.Unmarshal(args, &params); err != nil {
					return Result{}, fmt.Errorf("failed to decode arguments: %w", err)
				}
				customers, err := st.ListCustomers(ctx, orgID, clampReadLimit(params.Limit))
				if err != nil {
					return Result{}, err
				}
				return Result{Success: true, Message: formatCustomerList(customers)}, nil
			},
		},
		{
			Definition: Definition{
				Name:        "search_customers",
				Description: "Search customers by name, case-insensitively.",
				Parameters: schema.Object(map[string]*schema.Schema{
					"query": schema.String("Name or name fragment to search for."),
					"limit": schema.Integer("Maximum number of customers to return."),
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
				customers, err := st.SearchCustomers(ctx, orgID, params.Query, clampReadLimit(params.Limit))
				if err != nil {
					return Result{}, err
				}
				return Result{Success: true, Message: formatCustomerList(customers)}, nil
			},
		},
		{
			Definition: Definition{
				Name:        "create_customer",
				Description: "Create a new customer record.",
				Parameters: schema.Object(map[string]*schema.Schema{
					"name":  schema.String("Customer name."),
					"email": schema.String("Contact email address."),
					"phone": schema.String("Contact phone number."),
					"city":  schema.String("City of the customer."),
				}, "name"),
			},
			Handler: func(ctx context.Context, orgID uuid.UUID, args json.RawMessage) (Result, error) {
				var params struct {
					Name  string  `json:"name"`
					Email *string `json:"email"`
					Phone *string `json:"phone"`
					City  *string `json:"city"`
				}
				if err := json.Unmarshal(args, &params); err != nil {
					return Result{}, fmt.Errorf("failed to decode arguments: %w", err)
				}
				if strings.TrimSpace(params.Name) == "" {
					return Result{Success: false, Message: "customer name must not be empty"}, nil
				}
				customer, err := st.CreateCustomer(ctx, store.CreateCustomerParams{
					OrganizationID: orgID,
					Name:           strings.TrimSpace(params.Name),
					Email:          params.Email,
					Phone:          params.Phone,
					City:           params.City,
				})
				if err != nil {
					return Result{}, err
				}
				delta, err := json.Marshal(newCustomerDelta(customer))
				if err != nil {
					return Result{}, fmt.Errorf("failed to marshal customer delta: %w", err)
				}
				return Result{
					Success:    true,
					Message:    fmt.Sprintf("Created customer %q (id %s).", customer.Name, customer.ID),
					EntityType: "customer",
					EntityID:   customer.ID.String(),
					Delta:      delta,
				}, nil
			},
		},
		{
			Definition: Definition{
				Name:        "update_customer",
				Description: "Update fields of an existing customer. Only provided fields change.",
				Parameters: schema.Object(map[string]*schema.Schema{
					"customer_id": schema.String("ID of the customer to update."),
					"name":        schema.String("New customer name."),
					"email":       schema.String("New contact email address."),
					"phone":       schema.String("New contact phone number."),
					"city":        schema.String("New city."),
				}, "customer_id"),
			},
			Handler: func(ctx context.Context, orgID uuid.UUID, args json.RawMessage) (Result, error) {
				var params struct {
					CustomerID string  `json:"customer_id"`
					Name       *string `json:"name"`
					Email      *string `json:"email"`
					Phone      *string `json:"phone"`
					City       *string `json:"city"`
				}
				if err := json.Unmarshal(args, &params); err != nil {
					return Result{}, fmt.Errorf("failed to decode arguments: %w", err)
				}
				customerID, err := uuid.Parse(params.CustomerID)
				if err != nil {
					return Result{Success: false, Message: fmt.Sprintf("%q is not a valid customer id", params.CustomerID)}, nil
				}
				if params.Name == nil && params.Email == nil && params.Phone == nil && params.City == nil {
					return Result{Success: false, Message: "no fields to update were provided"}, nil
				}
				customer, err := st.UpdateCustomer(ctx, store.UpdateCustomerParams{
					ID:             customerID,
					OrganizationID: orgID,
					Name:           params.Name,
					Email:          params.Email,
					Phone:          params.Phone,
					City:           params.City,
				})
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return Result{Success: false, Message: "customer not found"}, nil
					}
					return Result{}, err
				}
				delta, err := json.Marshal(newCustomerDelta(customer))
				if err != nil {
					return Result{}, fmt.Errorf("failed to marshal customer delta: %w", err)
				}
				return Result{
					Success:    true,
					Message:    fmt.Sprintf("Updated customer %q (id %s).", customer.Name, customer.ID),
					EntityType: "customer",
					EntityID:   customer.ID.String(),
					Delta:      delta,
				}, nil
			},
		},
	})
}
