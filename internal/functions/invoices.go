package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ledgermate-backend/internal/models"
	"ledgermate-backend/internal/schema"
	"ledgermate-backend/internal/store"
)

const dateLayout = "2006-01-02"

func formatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, currency)
}

type invoiceDelta struct {
	ID            string  `json:"id"`
	CustomerID    string  `json:"customer_id"`
	InvoiceNumber string  `json:"invoice_number"`
	Status        string  `json:"status"`
	TotalCents    int64   `json:"total_cents"`
	Currency      string  `json:"currency"`
	IssueDate     string  `json:"issue_date"`
	DueDate       *string `json:"due_date,omitempty"`
}

func newInvoiceDelta(inv *models.Invoice) invoiceDelta {
	d := invoiceDelta{
		ID:            inv.ID.String(),
		CustomerID:    inv.CustomerID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		Status:        inv.Status,
		TotalCents:    inv.TotalCents,
		Currency:      inv.Currency,
		IssueDate:     inv.IssueDate.Format(dateLayout),
	}
	if inv.DueDate != nil {
		due := inv.DueDate.Format(dateLayout)
		d.DueDate = &due
	}
	return d
}

func describeInvoice(inv *models.Invoice) string {
	desc := fmt.Sprintf("%s: %s, status %s, issued %s",
		inv.InvoiceNumber,
		formatAmount(inv.TotalCents, inv.Currency),
		inv.Status,
		inv.IssueDate.Format(dateLayout),
	)
	if inv.DueDate != nil {
		desc += ", due " + inv.DueDate.Format(dateLayout)
	}
	return desc
}

func formatInvoiceList(invoices []models.Invoice) string {
	if len(invoices) == 0 {
		return "No invoices found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d invoice(s):\n", len(invoices))
	for i := range invoices {
		fmt.Fprintf(&b, "- %s\n", describeInvoice(&invoices[i]))
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewInvoiceRegistry builds the invoicing module's function registry.
func NewInvoiceRegistry(st store.Store) (*Registry, error) {
	return NewRegistry("invoices", []Function{
		{
			Definition: Definition{
				Name:        "list_invoices",
				Description: "List the organization's invoices, newest first.",
				Parameters: schema.Object(map[string]*schema.Schema{
					"status":      schema.StringEnum("Only return invoices with this status.", models.InvoiceStatusDraft, models.InvoiceStatusSent, models.InvoiceStatusPaid),
					"customer_id": schema.String("Only return invoices of this customer."),
					"limit":       schema.Integer("Maximum number of invoices to return."),
				}),
			},
			Handler: func(ctx context.Context, orgID uuid.UUID, args json.RawMessage) (Result, error) {
				var params struct {
					Status     *string `json:"status"`
					CustomerID *string `json:"customer_id"`
					Limit      int     `json:"limit"`
				}
				if err := json.Unmarshal(args, &params); err != nil {
					return Result{}, fmt.Errorf("failed to decode arguments: %w", err)
				}
				listParams := store.ListInvoicesParams{
					OrganizationID: orgID,
					Status:         params.Status,
					Limit:          clampReadLimit(params.Limit),
				}
				if params.CustomerID != nil && *params.CustomerID != "" {
					customerID, err := uuid.Parse(*params.CustomerID)
					if err != nil {
						return Result{Success: false, Message: fmt.Sprintf("%q is not a valid customer id", *params.CustomerID)}, nil
					}
					listParams.CustomerID = &customerID
				}
				invoices, err := st.ListInvoices(ctx, listParams)
				if err != nil {
					return Result{}, err
				}
				return Result{Success: true, Message: formatInvoiceList(invoices)}, nil
			},
		},
		{
			Definition: Definition{
				Name:        "get_invoice",
				Description: "Look up a single invoice by its invoice number.",
				Parameters: schema.Object(map[string]*schema.Schema{
					"invoice_number": schema.String("Invoice number, e.g. INV-2026-0042."),
				}, "invoice_number"),
			},
			Handler: func(ctx context.Context, orgID uuid.UUID, args json.RawMessage) (Result, error) {
				var params struct {
					InvoiceNumber string `json:"invoice_number"`
				}
				if err := json.Unmarshal(args, &params); err != nil {
					return Result{}, fmt.Errorf("failed to decode arguments: %w", err)
				}
				inv, err := st.GetInvoiceByNumber(ctx, params.InvoiceNumber, orgID)
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return Result{Success: false, Message: fmt.Sprintf("invoice %q not found", params.InvoiceNumber)}, nil
					}
					return Result{}, err
				}
				return Result{
					Success:    true,
					Message:    describeInvoice(inv),
					EntityType: "invoice",
					EntityID:   inv.ID.String(),
				}, nil
			},
		},
		{
			Definition: Definition{
				Name:        "create_invoice",
				Description: "Create a new draft invoice for a customer. Amounts are given in cents.",
				Parameters: schema.Object(map[string]*schema.Schema{
					"customer_id":    schema.String("ID of the customer to invoice."),
					"invoice_number": schema.String("Invoice number, unique within the organization."),
					"total_cents":    schema.Integer("Invoice total in cents, e.g. 12050 for 120.50."),
					"currency":       schema.String("ISO currency code, defaults to EUR."),
					"due_date":       schema.String("Due date in YYYY-MM-DD format."),
				}, "customer_id", "invoice_number", "total_cents"),
			},
			Handler: func(ctx context.Context, orgID uuid.UUID, args json.RawMessage) (Result, error) {
				var params struct {
					CustomerID    string  `json:"customer_id"`
					InvoiceNumber string  `json:"invoice_number"`
					TotalCents    int64   `json:"total_cents"`
					Currency      *string `json:"currency"`
					DueDate       *string `json:"due_date"`
				}
				if err := json.Unmarshal(args, &params); err != nil {
					return Result{}, fmt.Errorf("failed to decode arguments: %w", err)
				}
				customerID, err := uuid.Parse(params.CustomerID)
				if err != nil {
					return Result{Success: false, Message: fmt.Sprintf("%q is not a valid customer id", params.CustomerID)}, nil
				}
				if _, err := st.GetCustomerByID(ctx, customerID, orgID); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return Result{Success: false, Message: "customer not found"}, nil
					}
					return Result{}, err
				}

				createParams := store.CreateInvoiceParams{
					OrganizationID: orgID,
					CustomerID:     customerID,
					InvoiceNumber:  params.InvoiceNumber,
					Status:         models.InvoiceStatusDraft,
					TotalCents:     params.TotalCents,
					Currency:       "EUR",
					IssueDate:      time.Now().UTC(),
				}
				if params.Currency != nil && *params.Currency != "" {
					createParams.Currency = strings.ToUpper(*params.Currency)
				}
				if params.DueDate != nil && *params.DueDate != "" {
					due, err := time.Parse(dateLayout, *params.DueDate)
					if err != nil {
						return Result{Success: false, Message: fmt.Sprintf("%q is not a valid due date, expected YYYY-MM-DD", *params.DueDate)}, nil
					}
					createParams.DueDate = &due
				}

				inv, err := st.CreateInvoice(ctx, createParams)
				if err != nil {
					if errors.Is(err, store.ErrDuplicate) {
						return Result{Success: false, Message: fmt.Sprintf("invoice number %q is already taken", params.InvoiceNumber)}, nil
					}
					return Result{}, err
				}
				delta, err := json.Marshal(newInvoiceDelta(inv))
				if err != nil {
					return Result{}, fmt.Errorf("failed to marshal invoice delta: %w", err)
				}
				return Result{
					Success:    true,
					Message:    fmt.Sprintf("Created draft invoice %s over %s.", inv.InvoiceNumber, formatAmount(inv.TotalCents, inv.Currency)),
					EntityType: "invoice",
					EntityID:   inv.ID.String(),
					Delta:      delta,
				}, nil
			},
		},
		{
			Definition: Definition{
				Name:        "mark_invoice_paid",
				Description: "Mark an invoice as paid, identified by its invoice number.",
				Parameters: schema.Object(map[string]*schema.Schema{
					"invoice_number": schema.String("Invoice number of the invoice to mark paid."),
				}, "invoice_number"),
			},
			Handler: func(ctx context.Context, orgID uuid.UUID, args json.RawMessage) (Result, error) {
				var params struct {
					InvoiceNumber string `json:"invoice_number"`
				}
				if err := json.Unmarshal(args, &params); err != nil {
					return Result{}, fmt.Errorf("failed to decode arguments: %w", err)
				}
				inv, err := st.GetInvoiceByNumber(ctx, params.InvoiceNumber, orgID)
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return Result{Success: false, Message: fmt.Sprintf("invoice %q not found", params.InvoiceNumber)}, nil
					}
					return Result{}, err
				}
				if inv.Status == models.InvoiceStatusPaid {
					return Result{Success: false, Message: fmt.Sprintf("invoice %s is already paid", inv.InvoiceNumber)}, nil
				}
				updated, err := st.UpdateInvoiceStatus(ctx, inv.ID, orgID, models.InvoiceStatusPaid)
				if err != nil {
					return Result{}, err
				}
				delta, err := json.Marshal(newInvoiceDelta(updated))
				if err != nil {
					return Result{}, fmt.Errorf("failed to marshal invoice delta: %w", err)
				}
				return Result{
					Success:    true,
					Message:    fmt.Sprintf("Marked invoice %s (%s) as paid.", updated.InvoiceNumber, formatAmount(updated.TotalCents, updated.Currency)),
					EntityType: "invoice",
					EntityID:   updated.ID.String(),
					Delta:      delta,
				}, nil
			},
		},
	})
}
