package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"ledgermate-backend/internal/models"
	"ledgermate-backend/internal/store"
)

// --- Customer methods ---

const customerColumns = `id, organization_id, name, email, phone, city, created_at, updated_at`

func scanCustomer(row pgx.Row) (*models.Customer, error) {
	var c models.Customer
	err := row.Scan(
		&c.ID,
		&c.OrganizationID,
		&c.Name,
		&c.Email,
		&c.Phone,
		&c.City,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCustomers returns the org's customers ordered by name.
func (s *PostgresStore) ListCustomers(ctx context.Context, orgID uuid.UUID, limit int) ([]models.Customer, error) {
	query := `
		SELECT ` + customerColumns + `
		FROM customers
		WHERE organization_id = $1
		ORDER BY name ASC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("database error listing customers: %w", err)
	}
	defer rows.Close()

	customers := []models.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("database error scanning customer: %w", err)
		}
		customers = append(customers, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error after listing customers: %w", err)
	}
	return customers, nil
}

// SearchCustomers returns the org's customers whose name contains the query,
// case-insensitively, ordered by name.
func (s *PostgresStore) SearchCustomers(ctx context.Context, orgID uuid.UUID, query string, limit int) ([]models.Customer, error) {
	sql := `
		SELECT ` + customerColumns + `
		FROM customers
		WHERE organization_id = $1 AND name ILIKE '%' || $2 || '%'
		ORDER BY name ASC
		LIMIT $3`

	rows, err := s.db.Query(ctx, sql, orgID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("database error searching customers: %w", err)
	}
	defer rows.Close()

	customers := []models.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("database error scanning customer: %w", err)
		}
		customers = append(customers, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error after searching customers: %w", err)
	}
	return customers, nil
}

// GetCustomerByID retrieves a customer ensuring it belongs to the org.
func (s *PostgresStore) GetCustomerByID(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.Customer, error) {
	query := `
		SELECT ` + customerColumns + `
		FROM customers
		WHERE id = $1 AND organization_id = $2`

	c, err := scanCustomer(s.db.QueryRow(ctx, query, id, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching customer: %w", err)
	}
	return c, nil
}

// CreateCustomer inserts a new customer record.
func (s *PostgresStore) CreateCustomer(ctx context.Context, arg store.CreateCustomerParams) (*models.Customer, error) {
	query := `
		INSERT INTO customers (organization_id, name, email, phone, city)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + customerColumns

	c, err := scanCustomer(s.db.QueryRow(ctx, query,
		arg.OrganizationID,
		arg.Name,
		arg.Email,
		arg.Phone,
		arg.City,
	))
	if err != nil {
		return nil, fmt.Errorf("database error creating customer: %w", err)
	}
	return c, nil
}

// UpdateCustomer applies a partial update to a customer. Nil fields are left
// untouched. Returns store.ErrNotFound if the customer does not exist or
// belongs to another org.
func (s *PostgresStore) UpdateCustomer(ctx context.Context, arg store.UpdateCustomerParams) (*models.Customer, error) {
	setClauses := []string{}
	args := []any{}
	argID := 1

	addClause := func(column string, value any) {
		setClauses = append(setClauses, column+" = $"+strconv.Itoa(argID))
		args = append(args, value)
		argID++
	}

	if arg.Name != nil {
		addClause("name", *arg.Name)
	}
	if arg.Email != nil {
		addClause("email", *arg.Email)
	}
	if arg.Phone != nil {
		addClause("phone", *arg.Phone)
	}
	if arg.City != nil {
		addClause("city", *arg.City)
	}
	if len(setClauses) == 0 {
		return nil, fmt.Errorf("no fields provided for customer update")
	}
	setClauses = append(setClauses, "updated_at = NOW()")

	query := "UPDATE customers SET "
	for i, clause := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += " WHERE id = $" + strconv.Itoa(argID) + " AND organization_id = $" + strconv.Itoa(argID+1)
	query += " RETURNING " + customerColumns
	args = append(args, arg.ID, arg.OrganizationID)

	c, err := scanCustomer(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error updating customer: %w", err)
	}
	return c, nil
}

// --- Invoice methods ---

const invoiceColumns = `id, organization_id, customer_id, invoice_number, status, total_cents, currency, issue_date, due_date, created_at, updated_at`

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	var inv models.Invoice
	err := row.Scan(
		&inv.ID,
		&inv.OrganizationID,
		&inv.CustomerID,
		&inv.InvoiceNumber,
		&inv.Status,
		&inv.TotalCents,
		&inv.Currency,
		&inv.IssueDate,
		&inv.DueDate,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListInvoices returns the org's invoices, newest first, optionally filtered
// by status and customer.
func (s *PostgresStore) ListInvoices(ctx context.Context, arg store.ListInvoicesParams) ([]models.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE organization_id = $1`

	args := []any{arg.OrganizationID}
	argID := 2
	if arg.Status != nil && *arg.Status != "" {
		query += " AND status = $" + strconv.Itoa(argID)
		args = append(args, *arg.Status)
		argID++
	}
	if arg.CustomerID != nil {
		query += " AND customer_id = $" + strconv.Itoa(argID)
		args = append(args, *arg.CustomerID)
		argID++
	}
	query += " ORDER BY issue_date DESC, created_at DESC LIMIT $" + strconv.Itoa(argID)
	args = append(args, arg.Limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database error listing invoices: %w", err)
	}
	defer rows.Close()

	invoices := []models.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("database error scanning invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error after listing invoices: %w", err)
	}
	return invoices, nil
}

// GetInvoiceByNumber retrieves an invoice by its human-facing number within the org.
func (s *PostgresStore) GetInvoiceByNumber(ctx context.Context, invoiceNumber string, orgID uuid.UUID) (*models.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE invoice_number = $1 AND organization_id = $2`

	inv, err := scanInvoice(s.db.QueryRow(ctx, query, invoiceNumber, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching invoice: %w", err)
	}
	return inv, nil
}

// CreateInvoice inserts a new invoice record. The invoice number must be
// unique within the org.
func (s *PostgresStore) CreateInvoice(ctx context.Context, arg store.CreateInvoiceParams) (*models.Invoice, error) {
	query := `
		INSERT INTO invoices (organization_id, customer_id, invoice_number, status, total_cents, currency, issue_date, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + invoiceColumns

	inv, err := scanInvoice(s.db.QueryRow(ctx, query,
		arg.OrganizationID,
		arg.CustomerID,
		arg.InvoiceNumber,
		arg.Status,
		arg.TotalCents,
		arg.Currency,
		arg.IssueDate,
		arg.DueDate,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("invoice number %s: %w", arg.InvoiceNumber, store.ErrDuplicate)
		}
		return nil, fmt.Errorf("database error creating invoice: %w", err)
	}
	return inv, nil
}

// UpdateInvoiceStatus sets the status of an invoice within the org.
func (s *PostgresStore) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, orgID uuid.UUID, status string) (*models.Invoice, error) {
	query := `
		UPDATE invoices
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND organization_id = $3
		RETURNING ` + invoiceColumns

	inv, err := scanInvoice(s.db.QueryRow(ctx, query, status, id, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error updating invoice status: %w", err)
	}
	return inv, nil
}

// --- Sales order methods ---

const salesOrderColumns = `id, organization_id, customer_id, order_number, status, total_cents, currency, order_date, created_at, updated_at`

func scanSalesOrder(row pgx.Row) (*models.SalesOrder, error) {
	var so models.SalesOrder
	err := row.Scan(
		&so.ID,
		&so.OrganizationID,
		&so.CustomerID,
		&so.OrderNumber,
		&so.Status,
		&so.TotalCents,
		&so.Currency,
		&so.OrderDate,
		&so.CreatedAt,
		&so.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &so, nil
}

// ListSalesOrders returns the org's sales orders, newest first, optionally
// filtered by status.
func (s *PostgresStore) ListSalesOrders(ctx context.Context, arg store.ListSalesOrdersParams) ([]models.SalesOrder, error) {
	query := `
		SELECT ` + salesOrderColumns + `
		FROM sales_orders
		WHERE organization_id = $1`

	args := []any{arg.OrganizationID}
	argID := 2
	if arg.Status != nil && *arg.Status != "" {
		query += " AND status = $" + strconv.Itoa(argID)
		args = append(args, *arg.Status)
		argID++
	}
	query += " ORDER BY order_date DESC, created_at DESC LIMIT $" + strconv.Itoa(argID)
	args = append(args, arg.Limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database error listing sales orders: %w", err)
	}
	defer rows.Close()

	orders := []models.SalesOrder{}
	for rows.Next() {
		so, err := scanSalesOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("database error scanning sales order: %w", err)
		}
		orders = append(orders, *so)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error after listing sales orders: %w", err)
	}
	return orders, nil
}

// GetSalesOrderByNumber retrieves a sales order by its human-facing number within the org.
func (s *PostgresStore) GetSalesOrderByNumber(ctx context.Context, orderNumber string, orgID uuid.UUID) (*models.SalesOrder, error) {
	query := `
		SELECT ` + salesOrderColumns + `
		FROM sales_orders
		WHERE order_number = $1 AND organization_id = $2`

	so, err := scanSalesOrder(s.db.QueryRow(ctx, query, orderNumber, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching sales order: %w", err)
	}
	return so, nil
}

// CreateSalesOrder inserts a new sales order record. The order number must be
// unique within the org.
func (s *PostgresStore) CreateSalesOrder(ctx context.Context, arg store.CreateSalesOrderParams) (*models.SalesOrder, error) {
	query := `
		INSERT INTO sales_orders (organization_id, customer_id, order_number, status, total_cents, currency, order_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + salesOrderColumns

	so, err := scanSalesOrder(s.db.QueryRow(ctx, query,
		arg.OrganizationID,
		arg.CustomerID,
		arg.OrderNumber,
		arg.Status,
		arg.TotalCents,
		arg.Currency,
		arg.OrderDate,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("order number %s: %w", arg.OrderNumber, store.ErrDuplicate)
		}
		return nil, fmt.Errorf("database error creating sales order: %w", err)
	}
	return so, nil
}

// UpdateSalesOrderStatus sets the status of a sales order within the org.
func (s *PostgresStore) UpdateSalesOrderStatus(ctx context.Context, id uuid.UUID, orgID uuid.UUID, status string) (*models.SalesOrder, error) {
	query := `
		UPDATE sales_orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND organization_id = $3
		RETURNING ` + salesOrderColumns

	so, err := scanSalesOrder(s.db.QueryRow(ctx, query, status, id, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error updating sales order status: %w", err)
	}
	return so, nil
}
