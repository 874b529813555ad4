package api

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

const (
	ensureSupplierSQL = `INSERT INTO suppliers (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`

	insertSupplierSQL = `INSERT INTO suppliers (name, contact_info, address) VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`

	selectSuppliersSQL = `SELECT id, name, contact_info, address, created_at, updated_at FROM suppliers ORDER BY name LIMIT $1`

	insertInvoiceSQL = `INSERT INTO invoices (invoice_number, supplier_name, invoice_type, category, invoice_date, amount_before_tax, tax_amount, total_amount, notes, status) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id, created_at, updated_at`

	invoiceColumns = `id, invoice_number, supplier_name, invoice_type, category, invoice_date::text, amount_before_tax, tax_amount, total_amount, notes, file_path, status, created_at, updated_at`

	selectInvoicesSQL = `SELECT ` + invoiceColumns + ` FROM invoices ORDER BY invoice_date DESC, id DESC LIMIT $1`

	selectInvoicesByStatusSQL = `SELECT ` + invoiceColumns + ` FROM invoices WHERE status = $2 ORDER BY invoice_date DESC, id DESC LIMIT $1`

	selectInvoiceSQL = `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	updateInvoiceFileSQL = `UPDATE invoices SET file_path = $1 WHERE id = $2`

	insertPurchaseOrderSQL = `INSERT INTO purchase_orders (order_number, supplier_name, description, amount, status, order_date, delivery_date, notes) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at, updated_at`

	purchaseOrderColumns = `id, order_number, supplier_name, description, amount, status, order_date::text, delivery_date::text, notes, file_path, created_at, updated_at`

	selectPurchaseOrdersSQL = `SELECT ` + purchaseOrderColumns + ` FROM purchase_orders ORDER BY order_date DESC, id DESC LIMIT $1`

	selectPurchaseOrdersByStatusSQL = `SELECT ` + purchaseOrderColumns + ` FROM purchase_orders WHERE status = $2 ORDER BY order_date DESC, id DESC LIMIT $1`

	selectPurchaseOrderSQL = `SELECT ` + purchaseOrderColumns + ` FROM purchase_orders WHERE id = $1`

	updatePurchaseOrderFileSQL = `UPDATE purchase_orders SET file_path = $1 WHERE id = $2`

	insertPaymentSQL = `INSERT INTO payments (supplier_name, payment_date, amount, payment_method, reference_number, notes) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`

	selectPaymentsSQL = `SELECT id, supplier_name, payment_date::text, amount, payment_method, reference_number, notes, created_at FROM payments ORDER BY payment_date DESC, id DESC LIMIT $1`
)

type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row scanner) (*Invoice, error) {
	var inv Invoice
	if err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.SupplierName, &inv.InvoiceType, &inv.Category, &inv.InvoiceDate, &inv.AmountBeforeTax, &inv.TaxAmount, &inv.TotalAmount, &inv.Notes, &inv.FilePath, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	return &inv, nil
}

func scanPurchaseOrder(row scanner) (*PurchaseOrder, error) {
	var po PurchaseOrder
	if err := row.Scan(&po.ID, &po.OrderNumber, &po.SupplierName, &po.Description, &po.Amount, &po.Status, &po.OrderDate, &po.DeliveryDate, &po.Notes, &po.FilePath, &po.CreatedAt, &po.UpdatedAt); err != nil {
		return nil, err
	}
	return &po, nil
}

// ensureSupplier creates the supplier if it does not exist. A concurrent insert of the same name is not an error.
func ensureSupplier(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	res, err := tx.ExecContext(ctx, ensureSupplierSQL, name)
	if err != nil {
		return false, errors.Wrapf(err, "error creating supplier %s", name)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func queryList[T any](ctx context.Context, db *sql.DB, scan func(scanner) (*T, error), query string, args ...any) ([]*T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make([]*T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func queryOne[T any](ctx context.Context, db *sql.DB, scan func(scanner) (*T, error), query string, args ...any) (*T, error) {
	v, err := scan(db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

func scanSupplier(row scanner) (*Supplier, error) {
	var s Supplier
	if err := row.Scan(&s.ID, &s.Name, &s.ContactInfo, &s.Address, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanPayment(row scanner) (*Payment, error) {
	var p Payment
	if err := row.Scan(&p.ID, &p.SupplierName, &p.PaymentDate, &p.Amount, &p.PaymentMethod, &p.ReferenceNumber, &p.Notes, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
