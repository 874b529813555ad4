package api

import (
	"database/sql"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/procure/internal/database"
)

type createInvoiceRequest struct {
	InvoiceNumber   string  `json:"invoice_number"`
	SupplierName    string  `json:"supplier_name"`
	InvoiceType     string  `json:"invoice_type"`
	Category        string  `json:"category"`
	InvoiceDate     string  `json:"invoice_date"`
	AmountBeforeTax float64 `json:"amount_before_tax"`
	TaxAmount       float64 `json:"tax_amount"`
	Notes           *string `json:"notes"`
	Status          string  `json:"status"`
}

func (a *API) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	n, err := limit(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var invoices []*Invoice
	if status := r.URL.Query().Get("status"); status != "" {
		invoices, err = queryList(r.Context(), a.db.DB, scanInvoice, selectInvoicesByStatusSQL, n, status)
	} else {
		invoices, err = queryList(r.Context(), a.db.DB, scanInvoice, selectInvoicesSQL, n)
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	sendSuccess(w, http.StatusOK, "", invoices)
}

func (a *API) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	invoice, err := queryOne(r.Context(), a.db.DB, scanInvoice, selectInvoiceSQL, id)
	if err != nil {
		a.fail(w, r, errors.Wrapf(err, "invoice %d", id))
		return
	}
	sendSuccess(w, http.StatusOK, "", invoice)
}

// handleCreateInvoice creates the supplier if needed and the invoice in one transaction.
func (a *API) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := a.validator.Decode(InvoiceSchema, r.Body, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Status == "" {
		req.Status = "pending"
	}
	invoice := Invoice{
		InvoiceNumber:   req.InvoiceNumber,
		SupplierName:    req.SupplierName,
		InvoiceType:     req.InvoiceType,
		Category:        req.Category,
		InvoiceDate:     req.InvoiceDate,
		AmountBeforeTax: round(req.AmountBeforeTax),
		TaxAmount:       round(req.TaxAmount),
		TotalAmount:     round(req.AmountBeforeTax + req.TaxAmount),
		Notes:           req.Notes,
		Status:          req.Status,
	}
	var created bool
	err := a.db.WithTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		if created, err = ensureSupplier(r.Context(), tx, invoice.SupplierName); err != nil {
			return err
		}
		row := tx.QueryRowContext(r.Context(), insertInvoiceSQL,
			invoice.InvoiceNumber,
			invoice.SupplierName,
			invoice.InvoiceType,
			invoice.Category,
			invoice.InvoiceDate,
			decimal(invoice.AmountBeforeTax),
			decimal(invoice.TaxAmount),
			decimal(invoice.TotalAmount),
			invoice.Notes,
			invoice.Status,
		)
		if err := row.Scan(&invoice.ID, &invoice.CreatedAt, &invoice.UpdatedAt); err != nil {
			if database.IsUniqueViolation(err) {
				return duplicate("invoice number", invoice.InvoiceNumber)
			}
			return err
		}
		return nil
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if created {
		a.logger.Info("created supplier %s for invoice %s", invoice.SupplierName, invoice.InvoiceNumber)
	}
	a.logger.Debug("created invoice %s (%d)", invoice.InvoiceNumber, invoice.ID)
	sendSuccess(w, http.StatusCreated, "invoice created", invoice)
}
