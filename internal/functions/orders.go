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

type salesOrderDelta struct {
	ID          string `json:"id"`
	CustomerID  string `json:"customer_id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	TotalCents  int64  `json:"total_cents"`
	Currency    string `json:"currency"`
	OrderDate   string `json:"order_date"`
}

func newSalesOrderDelta(so *models.SalesOrder) salesOrderDelta {
	return salesOrderDelta{
		ID:          so.ID.String(),
		CustomerID:  so.CustomerID.String(),
		OrderNumber: so.OrderNumber,
		Status:      so.Status,
		TotalCents:  so.TotalCents,
		Currency:    so.Currency,
		OrderDate:   so.OrderDate.Format(dateLayout),
	}
}

func describeSalesOrder(so *models.SalesOrder) string {
	return fmt.Sprintf("%s: %s, status %s, ordered %s",
		so.OrderNumber,
		formatAmount(so.TotalCents, so.Currency),
		so.Status,
		so.OrderDate.Format(dateLayout),
	)
}

func formatSalesOrderList(orders []models.SalesOrder) string {
	if len(orders) == 0 {
		return "No sales orders found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d sales order(s):\n", len(orders))
	for i := range orders {
		fmt.Fprintf(&b, "- %s\n", describeSalesOrder(&orders[i]))
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewSalesOrderRegistry builds the sales order module's function registry.
func NewSalesOrderRegistry(st store.Store) (*Registry, error) {
	return NewRegistry("sales_orders", []Function{
		{
			Definition: Definition{
				Name:        "list_sales_orders",
				Description: "List the organization's sales orders, newest first.",
				Parameters: schema.Object(map[string]*schema.Schema{
					"status": schema.StringEnum("Only return orders with this status.", models.OrderStatusOpen, models.OrderStatusConfirmed, models.OrderStatusFulfilled),
					"limit":  schema.Integer("Maximum number of orders to return."),
				}),
			},
			Handler: func(ctx context.Context, orgID uuid.UUID, args json.RawMessage) (Result, error) {
				var params struct {
					Status *string `json:"status"`
					Limit  int    `json:"limit"`
				}
				if err := json.Unmarshal(args, &params); err != nil {
					return Result{}, fmt.Errorf("failed to decode arguments: %w", err)
				}
				orders, err := st.ListSalesOrders(ctx, store.ListSalesOrdersParams{
					OrganizationID: orgID,
					Status:         params.Status,
					Limit:          clampReadLimit(params.Limit),
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Success: true, Message: formatSalesOrderList(orders)}, nil
			},
		},
		{
			Definition: Definition{
				Name:        "create_sales_order",
				Description: "Create a new sales order for a customer. Amounts are given in cents.",
				Parameters: schema.Object(map[string]*schema.Schema{
					"customer_id":  schema.String("ID of the ordering customer."),
					"order_number": schema.String("Order number, unique within the organization."),
					"total_cents":  schema.Integer("Order total in cents, e.g. 9900 for 99.00."),
					"currency":     schema.String("ISO currency code, defaults to EUR."),
				}, "customer_id", "order_number", "total_cents"),
			},
			Handler: func(ctx context.Context, orgID uuid.UUID, args json.RawMessage) (Result, error) {
				var params struct {
					CustomerID  string  `json:"customer_id"`
					OrderNumber string  `json:"order_number"`
					TotalCents  int64   `json:"total_cents"`
					Currency    *string `json:"currency"`
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

				createParams := store.CreateSalesOrderParams{
					OrganizationID: orgID,
					CustomerID:     customerID,
					OrderNumber:    params.OrderNumber,
					Status:         models.OrderStatusOpen,
					TotalCents:     params.TotalCents,
					Currency:       "EUR",
					OrderDate:      time.Now().UTC(),
				}
				if params.Currency != nil && *params.Currency != "" {
					createParams.Currency = strings.ToUpper(*params.Currency)
				}

				so, err := st.CreateSalesOrder(ctx, createParams)
				if err != nil {
					if errors.Is(err, store.ErrDuplicate) {
						return Result{Success: false, Message: fmt.Sprintf("order number %q is already taken", params.OrderNumber)}, nil
					}
					return Result{}, err
				}
				delta, err := json.Marshal(newSalesOrderDelta(so))
				if err != nil {
					return Result{}, fmt.Errorf("failed to marshal sales order delta: %w", err)
				}
				return Result{
					Success:    true,
					Message:    fmt.Sprintf("Created sales order %s over %s.", so.OrderNumber, formatAmount(so.TotalCents, so.Currency)),
					EntityType: "sales_order",
					EntityID:   so.ID.String(),
					Delta:      delta,
				}, nil
			},
		},
		{
			Definition: Definition{
				Name:        "update_order_status",
				Description: "Change the status of a sales order, identified by its order number.",
				Parameters: schema.Object(map[string]*schema.Schema{
					"order_number": schema.String("Order number of the sales order."),
					"status":       schema.StringEnum("New order status.", models.OrderStatusOpen, models.OrderStatusConfirmed, models.OrderStatusFulfilled),
				}, "order_number", "status"),
			},
			Handler: func(ctx context.Context, orgID uuid.UUID, args json.RawMessage) (Result, error) {
				var params struct {
					OrderNumber string `json:"order_number"`
					Status      string `json:"status"`
				}
				if err := json.Unmarshal(args, &params); err != nil {
					return Result{}, fmt.Errorf("failed to decode arguments: %w", err)
				}
				so, err := st.GetSalesOrderByNumber(ctx, params.OrderNumber, orgID)
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return Result{Success: false, Message: fmt.Sprintf("sales order %q not found", params.OrderNumber)}, nil
					}
					return Result{}, err
				}
				updated, err := st.UpdateSalesOrderStatus(ctx, so.ID, orgID, params.Status)
				if err != nil {
					return Result{}, err
				}
				delta, err := json.Marshal(newSalesOrderDelta(updated))
				if err != nil {
					return Result{}, fmt.Errorf("failed to marshal sales order delta: %w", err)
				}
				return Result{
					Success:    true,
					Message:    fmt.Sprintf("Sales order %s is now %s.", updated.OrderNumber, updated.Status),
					EntityType: "sales_order",
					EntityID:   updated.ID.String(),
					Delta:      delta,
				}, nil
			},
		},
	})
}
