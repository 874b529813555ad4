package schema

import (
	"strings"

	"github.com/shopmonkeyus/procure/internal/util"
)

const (
	Suppliers      = "suppliers"
	Invoices       = "invoices"
	PurchaseOrders = "purchase_orders"
	Payments       = "payments"

	// UpdatedAtFunction is the only trigger function considered safe everywhere.
	UpdatedAtFunction = "update_updated_at_column"

	// InvoiceDateFunction rejects invoices dated more than one day in the future.
	InvoiceDateFunction = "validate_invoice_date"
	InvoiceDateTrigger  = "validate_invoice_date_trigger"
)

var (
	InvoiceStatuses       = []string{"pending", "paid", "cancelled", "overdue"}
	PurchaseOrderStatuses = []string{"pending", "approved", "completed", "cancelled"}

	// UpdatedAtTables are the tables carrying the updated_at bookkeeping trigger.
	UpdatedAtTables = []string{Suppliers, Invoices, PurchaseOrders}
)

func ptr(s string) *string {
	return &s
}

func id(table string) Column {
	return Column{Table: table, Name: "id", DataType: "SERIAL", PrimaryKey: true}
}

func timestamp(table string, name string) Column {
	return Column{Table: table, Name: name, DataType: "TIMESTAMP", Default: ptr("CURRENT_TIMESTAMP")}
}

func text(table string, name string) Column {
	return Column{Table: table, Name: name, DataType: "TEXT"}
}

func money(table string, name string) Column {
	return Column{Table: table, Name: name, DataType: "DECIMAL(15,2)", NotNull: true, Default: ptr("0")}
}

func statusCheck(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = util.QuoteLiteral(v)
	}
	return "status IN (" + strings.Join(quoted, ", ") + ")"
}

// UpdatedAtFunctionSpec returns the bookkeeping function that touches updated_at. It never raises.
func UpdatedAtFunctionSpec() Function {
	return Function{
		Name: UpdatedAtFunction,
		Body: `BEGIN
    NEW.updated_at = CURRENT_TIMESTAMP;
    RETURN NEW;
END;`,
	}
}

// UpdatedAtTrigger returns the BEFORE UPDATE binding of the bookkeeping function on table.
func UpdatedAtTrigger(table string) Trigger {
	return Trigger{
		Name:     "update_" + table + "_updated_at",
		Table:    table,
		Timing:   Before,
		Events:   []TriggerEvent{Update},
		Function: UpdatedAtFunction,
	}
}

// InvoiceDateFunctionSpec returns the date validation function. It must only be bound to invoices.
func InvoiceDateFunctionSpec() Function {
	return Function{
		Name: InvoiceDateFunction,
		Body: `BEGIN
    IF NEW.invoice_date > CURRENT_DATE + INTERVAL '1 day' THEN
        RAISE EXCEPTION 'invoice_date % cannot be more than one day in the future', NEW.invoice_date;
    END IF;
    RETURN NEW;
END;`,
	}
}

// InvoiceDateTriggerSpec binds the date validation to invoices only.
func InvoiceDateTriggerSpec() Trigger {
	return Trigger{
		Name:     InvoiceDateTrigger,
		Table:    Invoices,
		Timing:   Before,
		Events:   []TriggerEvent{Insert, Update},
		Function: InvoiceDateFunction,
	}
}

// ERPCatalog returns the tables, indexes, functions and triggers of the invoicing database.
func ERPCatalog() *Catalog {
	c := &Catalog{
		Tables: []Table{
			{
				Name: Suppliers,
				Columns: []Column{
					id(Suppliers),
					{Table: Suppliers, Name: "name", DataType: "VARCHAR(255)", NotNull: true, Unique: true},
					text(Suppliers, "contact_info"),
					text(Suppliers, "address"),
					timestamp(Suppliers, "created_at"),
					timestamp(Suppliers, "updated_at"),
				},
			},
			{
				Name: Invoices,
				Columns: []Column{
					id(Invoices),
					{Table: Invoices, Name: "invoice_number", DataType: "VARCHAR(100)", NotNull: true, Unique: true},
					{Table: Invoices, Name: "supplier_name", DataType: "VARCHAR(255)", NotNull: true},
					{Table: Invoices, Name: "invoice_type", DataType: "VARCHAR(100)", NotNull: true},
					{Table: Invoices, Name: "category", DataType: "VARCHAR(100)", NotNull: true},
					{Table: Invoices, Name: "invoice_date", DataType: "DATE", NotNull: true},
					money(Invoices, "amount_before_tax"),
					money(Invoices, "tax_amount"),
					money(Invoices, "total_amount"),
					text(Invoices, "notes"),
					{Table: Invoices, Name: "file_path", DataType: "VARCHAR(500)"},
					{Table: Invoices, Name: "status", DataType: "VARCHAR(50)", Default: ptr("'pending'"), Check: statusCheck(InvoiceStatuses)},
					timestamp(Invoices, "created_at"),
					timestamp(Invoices, "updated_at"),
				},
			},
			{
				Name: PurchaseOrders,
				Columns: []Column{
					id(PurchaseOrders),
					{Table: PurchaseOrders, Name: "order_number", DataType: "VARCHAR(100)", NotNull: true, Unique: true},
					{Table: PurchaseOrders, Name: "supplier_name", DataType: "VARCHAR(255)", NotNull: true},
					text(PurchaseOrders, "description"),
					money(PurchaseOrders, "amount"),
					{Table: PurchaseOrders, Name: "status", DataType: "VARCHAR(50)", Default: ptr("'pending'"), Check: statusCheck(PurchaseOrderStatuses)},
					{Table: PurchaseOrders, Name: "order_date", DataType: "DATE", NotNull: true},
					{Table: PurchaseOrders, Name: "delivery_date", DataType: "DATE"},
					text(PurchaseOrders, "notes"),
					{Table: PurchaseOrders, Name: "file_path", DataType: "VARCHAR(500)"},
					timestamp(PurchaseOrders, "created_at"),
					timestamp(PurchaseOrders, "updated_at"),
				},
			},
			{
				Name: Payments,
				Columns: []Column{
					id(Payments),
					{Table: Payments, Name: "supplier_name", DataType: "VARCHAR(255)", NotNull: true},
					{Table: Payments, Name: "payment_date", DataType: "DATE", NotNull: true},
					{Table: Payments, Name: "amount", DataType: "DECIMAL(15,2)", NotNull: true, Check: "amount > 0"},
					{Table: Payments, Name: "payment_method", DataType: "VARCHAR(100)"},
					{Table: Payments, Name: "reference_number", DataType: "VARCHAR(100)"},
					text(Payments, "notes"),
					timestamp(Payments, "created_at"),
				},
			},
		},
		Indexes: []Index{
			{Table: Invoices, Columns: []string{"supplier_name"}},
			{Table: Invoices, Columns: []string{"status"}},
			{Table: Invoices, Columns: []string{"invoice_date"}},
			{Table: PurchaseOrders, Columns: []string{"supplier_name"}},
			{Table: PurchaseOrders, Columns: []string{"status"}},
			{Table: PurchaseOrders, Columns: []string{"order_date"}},
			{Table: Payments, Columns: []string{"supplier_name"}},
		},
		Functions: []Function{UpdatedAtFunctionSpec()},
	}
	for _, table := range UpdatedAtTables {
		c.Triggers = append(c.Triggers, UpdatedAtTrigger(table))
	}
	return c
}

// WithInvoiceDateValidation adds the invoice date validation function and binds it to invoices.
func (c *Catalog) WithInvoiceDateValidation() *Catalog {
	c.Functions = append(c.Functions, InvoiceDateFunctionSpec())
	c.Triggers = append(c.Triggers, InvoiceDateTriggerSpec())
	return c
}
