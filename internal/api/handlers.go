package api

import (
	"context"
	"net/http"
	"time"

	"github.com/shopmonkeyus/procure/internal/database"
)

const healthTimeout = 2 * time.Second

type createSupplierRequest struct {
	Name        string  `json:"name"`
	ContactInfo *string `json:"contact_info"`
	Address     *string `json:"address"`
}

type createPaymentRequest struct {
	SupplierName    string  `json:"supplier_name"`
	PaymentDate     string  `json:"payment_date"`
	Amount          float64 `json:"amount"`
	PaymentMethod   *string `json:"payment_method"`
	ReferenceNumber *string `json:"reference_number"`
	Notes           *string `json:"notes"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := a.db.Ping(ctx); err != nil {
		a.logger.Warn("health check failed: %s", err)
		sendError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	sendSuccess(w, http.StatusOK, "ok", map[string]string{"database": "ok", "version": a.version})
}

func (a *API) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	n, err := limit(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	suppliers, err := queryList(r.Context(), a.db.DB, scanSupplier, selectSuppliersSQL, n)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	sendSuccess(w, http.StatusOK, "", suppliers)
}

func (a *API) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req createSupplierRequest
	if err := a.validator.Decode(SupplierSchema, r.Body, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	supplier := Supplier{Name: req.Name, ContactInfo: req.ContactInfo, Address: req.Address}
	err := a.db.QueryRowContext(r.Context(), insertSupplierSQL, supplier.Name, supplier.ContactInfo, supplier.Address).
		Scan(&supplier.ID, &supplier.CreatedAt, &supplier.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			err = duplicate("supplier", supplier.Name)
		}
		a.fail(w, r, err)
		return
	}
	sendSuccess(w, http.StatusCreated, "supplier created", supplier)
}

func (a *API) handleListPayments(w http.ResponseWriter, r *http.Request) {
	n, err := limit(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	payments, err := queryList(r.Context(), a.db.DB, scanPayment, selectPaymentsSQL, n)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	sendSuccess(w, http.StatusOK, "", payments)
}

func (a *API) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := a.validator.Decode(PaymentSchema, r.Body, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	payment := Payment{
		SupplierName:    req.SupplierName,
		PaymentDate:     req.PaymentDate,
		Amount:          round(req.Amount),
		PaymentMethod:   req.PaymentMethod,
		ReferenceNumber: req.ReferenceNumber,
		Notes:           req.Notes,
	}
	err := a.db.QueryRowContext(r.Context(), insertPaymentSQL,
		payment.SupplierName,
		payment.PaymentDate,
		decimal(payment.Amount),
		payment.PaymentMethod,
		payment.ReferenceNumber,
		payment.Notes,
	).Scan(&payment.ID, &payment.CreatedAt)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	sendSuccess(w, http.StatusCreated, "payment created", payment)
}
