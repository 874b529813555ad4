package api

import (
	"encoding/json"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSupplier(t *testing.T) {
	a := newTestAPI(t)
	now := time.Now()
	a.mock.ExpectQuery(regexp.QuoteMeta(insertSupplierSQL)).WithArgs("Acme", "sales@acme.test", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))
	w, resp := a.do(t, "POST", "/api/suppliers", `{"name":"Acme","contact_info":"sales@acme.test"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	var supplier Supplier
	require.NoError(t, json.Unmarshal(resp.Data, &supplier))
	assert.Equal(t, int64(7), supplier.ID)
	assert.Equal(t, "Acme", supplier.Name)
	assert.NoError(t, a.mock.ExpectationsWereMet())
}

func TestCreateSupplierDuplicate(t *testing.T) {
	a := newTestAPI(t)
	a.mock.ExpectQuery(regexp.QuoteMeta(insertSupplierSQL)).WillReturnError(&pq.Error{Code: "23505"})
	w, resp := a.do(t, "POST", "/api/suppliers", `{"name":"Acme"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate supplier: Acme", resp.Message)
	assert.NoError(t, a.mock.ExpectationsWereMet())
}

func TestListSuppliers(t *testing.T) {
	a := newTestAPI(t)
	now := time.Now()
	a.mock.ExpectQuery(regexp.QuoteMeta(selectSuppliersSQL)).WithArgs(MaxLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "contact_info", "address", "created_at", "updated_at"}).
			AddRow(1, "Acme", nil, nil, now, now).
			AddRow(2, "Globex", "info@globex.test", "1 Main St", now, now))
	w, resp := a.do(t, "GET", "/api/suppliers?limit=5000", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var suppliers []Supplier
	require.NoError(t, json.Unmarshal(resp.Data, &suppliers))
	require.Len(t, suppliers, 2)
	assert.Nil(t, suppliers[0].ContactInfo)
	assert.Equal(t, "1 Main St", *suppliers[1].Address)
	assert.NoError(t, a.mock.ExpectationsWereMet())
}

func TestCreatePurchaseOrderCreatesSupplier(t *testing.T) {
	a := newTestAPI(t)
	now := time.Now()
	a.mock.ExpectBegin()
	expectSupplier(a.mock, "Initech", true)
	a.mock.ExpectQuery(regexp.QuoteMeta(insertPurchaseOrderSQL)).
		WithArgs("PO-100", "Initech", sqlmock.AnyArg(), "250.50", "approved", "2024-03-01", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(4, now, now))
	a.mock.ExpectCommit()
	w, resp := a.do(t, "POST", "/api/purchase-orders", `{"order_number":"PO-100","supplier_name":"Initech","amount":250.5,"status":"approved","order_date":"2024-03-01"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	var order PurchaseOrder
	require.NoError(t, json.Unmarshal(resp.Data, &order))
	assert.Equal(t, int64(4), order.ID)
	assert.Equal(t, 250.5, order.Amount)
	assert.NoError(t, a.mock.ExpectationsWereMet())
}

func TestCreatePurchaseOrderDuplicate(t *testing.T) {
	a := newTestAPI(t)
	a.mock.ExpectBegin()
	expectSupplier(a.mock, "Initech", false)
	a.mock.ExpectQuery(regexp.QuoteMeta(insertPurchaseOrderSQL)).WillReturnError(&pq.Error{Code: "23505"})
	a.mock.ExpectRollback()
	w, resp := a.do(t, "POST", "/api/purchase-orders", `{"order_number":"PO-100","supplier_name":"Initech","amount":1,"order_date":"2024-03-01"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate order number: PO-100", resp.Message)
	assert.NoError(t, a.mock.ExpectationsWereMet())
}

func TestGetPurchaseOrder(t *testing.T) {
	a := newTestAPI(t)
	now := time.Now()
	a.mock.ExpectQuery(regexp.QuoteMeta(selectPurchaseOrderSQL)).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_number", "supplier_name", "description", "amount", "status", "order_date", "delivery_date", "notes", "file_path", "created_at", "updated_at"}).
			AddRow(4, "PO-100", "Initech", nil, 250.5, "approved", "2024-03-01", "2024-03-15", nil, nil, now, now))
	w, resp := a.do(t, "GET", "/api/purchase-orders/4", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var order PurchaseOrder
	require.NoError(t, json.Unmarshal(resp.Data, &order))
	assert.Equal(t, "2024-03-15", *order.DeliveryDate)
	assert.NoError(t, a.mock.ExpectationsWereMet())
}

func TestCreatePayment(t *testing.T) {
	a := newTestAPI(t)
	now := time.Now()
	a.mock.ExpectQuery(regexp.QuoteMeta(insertPaymentSQL)).
		WithArgs("Acme", "2024-01-20", "115.00", "transfer", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(9, now))
	w, resp := a.do(t, "POST", "/api/payments", `{"supplier_name":"Acme","payment_date":"2024-01-20","amount":115,"payment_method":"transfer"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, resp.Success)
	assert.NoError(t, a.mock.ExpectationsWereMet())
}

func TestCreatePaymentRequiresPositiveAmount(t *testing.T) {
	a := newTestAPI(t)
	w, resp := a.do(t, "POST", "/api/payments", `{"supplier_name":"Acme","payment_date":"2024-01-20","amount":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, resp.Message, "amount")
	assert.NoError(t, a.mock.ExpectationsWereMet())
}

func TestCreatePaymentCheckViolation(t *testing.T) {
	a := newTestAPI(t)
	a.mock.ExpectQuery(regexp.QuoteMeta(insertPaymentSQL)).
		WillReturnError(&pq.Error{Code: "23514", Message: `new row for relation "payments" violates check constraint "payments_amount_check"`})
	w, resp := a.do(t, "POST", "/api/payments", `{"supplier_name":"Acme","payment_date":"2024-01-20","amount":0.001}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, resp.Message, "payments_amount_check")
	assert.NoError(t, a.mock.ExpectationsWereMet())
}
