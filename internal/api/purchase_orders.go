package api

import (
	"database/sql"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/procure/internal/database"
)

type createPurchaseOrderRequest struct {
	OrderNumber  string  `json:"order_number"`
	SupplierName string  `json:"supplier_name"`
	Description  *string `json:"description"`
	Amount       float64 `json:"amount"`
	Status       string  `json:"status"`
	OrderDate    string  `json:"order_date"`
	DeliveryDate *string `json:"delivery_date"`
	Notes        *string `json:"notes"`
}

func (a *API) handleListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	n, err := limit(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var orders []*PurchaseOrder
	if status := r.URL.Query().Get("status"); status != "" {
		orders, err = queryList(r.Context(), a.db.DB, scanPurchaseOrder, selectPurchaseOrdersByStatusSQL, n, status)
	} else {
		orders, err = queryList(r.Context(), a.db.DB, scanPurchaseOrder, selectPurchaseOrdersSQL, n)
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	sendSuccess(w, http.StatusOK, "", orders)
}

func (a *API) handleGetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	order, err := queryOne(r.Context(), a.db.DB, scanPurchaseOrder, selectPurchaseOrderSQL, id)
	if err != nil {
		a.fail(w, r, errors.Wrapf(err, "purchase order %d", id))
		return
	}
	sendSuccess(w, http.StatusOK, "", order)
}

func (a *API) handleCreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req createPurchaseOrderRequest
	if err := a.validator.Decode(PurchaseOrderSchema, r.Body, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Status == "" {
		req.Status = "pending"
	}
	order := PurchaseOrder{
		OrderNumber:  req.OrderNumber,
		SupplierName: req.SupplierName,
		Description:  req.Description,
		Amount:       round(req.Amount),
		Status:       req.Status,
		OrderDate:    req.OrderDate,
		DeliveryDate: req.DeliveryDate,
		Notes:        req.Notes,
	}
	err := a.db.WithTx(r.Context(), func(tx *sql.Tx) error {
		if _, err := ensureSupplier(r.Context(), tx, order.SupplierName); err != nil {
			return err
		}
		row := tx.QueryRowContext(r.Context(), insertPurchaseOrderSQL,
			order.OrderNumber,
			order.SupplierName,
			order.Description,
			decimal(order.Amount),
			order.Status,
			order.OrderDate,
			order.DeliveryDate,
			order.Notes,
		)
		if err := row.Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
			if database.IsUniqueViolation(err) {
				return duplicate("order number", order.OrderNumber)
			}
			return err
		}
		return nil
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.logger.Debug("created purchase order %s (%d)", order.OrderNumber, order.ID)
	sendSuccess(w, http.StatusCreated, "purchase order created", order)
}
