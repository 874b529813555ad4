package api

import (
	"math"
	"strconv"
	"time"
)

type Supplier struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ContactInfo *string   `json:"contact_info"`
	Address     *string   `json:"address"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Invoice struct {
	ID              int64     `json:"id"`
	InvoiceNumber   string    `json:"invoice_number"`
	SupplierName    string    `json:"supplier_name"`
	InvoiceType     string    `json:"invoice_type"`
	Category        string    `json:"category"`
	InvoiceDate     string    `json:"invoice_date"`
	AmountBeforeTax float64   `json:"amount_before_tax"`
	TaxAmount       float64   `json:"tax_amount"`
	TotalAmount     float64   `json:"total_amount"`
	Notes           *string   `json:"notes"`
	FilePath        *string   `json:"file_path"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type PurchaseOrder struct {
	ID           int64     `json:"id"`
	OrderNumber  string    `json:"order_number"`
	SupplierName string    `json:"supplier_name"`
	Description  *string   `json:"description"`
	Amount       float64   `json:"amount"`
	Status       string    `json:"status"`
	OrderDate    string    `json:"order_date"`
	DeliveryDate *string   `json:"delivery_date"`
	Notes        *string   `json:"notes"`
	FilePath     *string   `json:"file_path"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Payment struct {
	ID              int64     `json:"id"`
	SupplierName    string    `json:"supplier_name"`
	PaymentDate     string    `json:"payment_date"`
	Amount          float64   `json:"amount"`
	PaymentMethod   *string   `json:"payment_method"`
	ReferenceNumber *string   `json:"reference_number"`
	Notes           *string   `json:"notes"`
	CreatedAt       time.Time `json:"created_at"`
}

// Attachment is the result of an upload.
type Attachment struct {
	ID       int64  `json:"id"`
	FilePath string `json:"file_path"`
	Size     int64  `json:"size"`
}

// round rounds to cents.
func round(v float64) float64 {
	return math.Round(v*100) / 100
}

// decimal formats v for a DECIMAL(15,2) column.
func decimal(v float64) string {
	return strconv.FormatFloat(round(v), 'f', 2, 64)
}
