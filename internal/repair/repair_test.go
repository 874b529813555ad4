package repair

import (
	"bytes"
	"context"
	"database/sql/driver"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopmonkeyus/go-common/logger"
	"github.com/shopmonkeyus/procure/internal/database"
	"github.com/shopmonkeyus/procure/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepairer(t *testing.T) (*Repairer, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	log := logger.NewTestLogger()
	return New(log, database.New(log, db)), mock
}

func triggerRows(keys ...schema.TriggerKey) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"event_object_table", "trigger_name"})
	for _, k := range keys {
		rows.AddRow(k.Table, k.Name)
	}
	return rows
}

func expectExec(mock sqlmock.Sqlmock, sql string) *sqlmock.ExpectedExec {
	return mock.ExpectExec("^" + regexp.QuoteMeta(sql) + "$")
}

func ok() driver.Result {
	return sqlmock.NewResult(0, 0)
}

func expectTolerant(mock sqlmock.Sqlmock, sql string) {
	expectExec(mock, "SAVEPOINT "+savepoint).WillReturnResult(ok())
	expectExec(mock, sql).WillReturnResult(ok())
	expectExec(mock, "RELEASE SAVEPOINT "+savepoint).WillReturnResult(ok())
}

func expectRecreate(mock sqlmock.Sqlmock, policy Policy) {
	for _, fn := range policy.safeFunctions() {
		expectExec(mock, fn.CreateSQL()).WillReturnResult(ok())
	}
	for _, tr := range policy.safeTriggers() {
		expectTolerant(mock, tr.DropSQL())
		expectExec(mock, tr.CreateSQL()).WillReturnResult(ok())
	}
}

func expectObsolete(mock sqlmock.Sqlmock, policy Policy) {
	for _, fn := range policy.ObsoleteFunctions {
		expectTolerant(mock, schema.DropFunctionSQL(fn))
	}
}

var (
	invoicesUpdatedAt = schema.TriggerKey{Table: "invoices", Name: "update_invoices_updated_at"}
	invoicesDate      = schema.TriggerKey{Table: "invoices", Name: "validate_invoice_date_trigger"}
	ordersDate        = schema.TriggerKey{Table: "purchase_orders", Name: "validate_invoice_date_trigger"}
	paymentsAudit     = schema.TriggerKey{Table: "payments", Name: "audit_trigger"}
	invoicesAudit     = schema.TriggerKey{Table: "invoices", Name: "audit_trigger"}
)

func TestRepairDropsUnknownTriggersAndKeepsAllowListed(t *testing.T) {
	r, mock := newRepairer(t)
	policy := DefaultPolicy()
	policy.Allow = []schema.TriggerKey{paymentsAudit}
	mock.ExpectBegin()
	mock.ExpectQuery("information_schema.triggers").WillReturnRows(triggerRows(invoicesUpdatedAt, invoicesDate, paymentsAudit, ordersDate))
	expectTolerant(mock, schema.DropTriggerSQL("invoices", "validate_invoice_date_trigger"))
	expectTolerant(mock, schema.DropTriggerSQL("purchase_orders", "validate_invoice_date_trigger"))
	expectObsolete(mock, policy)
	expectRecreate(mock, policy)
	mock.ExpectCommit()

	report, err := r.Repair(context.Background(), policy)
	require.NoError(t, err)
	assert.Equal(t, []schema.TriggerKey{invoicesDate, ordersDate}, report.DroppedTriggers)
	assert.Equal(t, []schema.TriggerKey{invoicesUpdatedAt, paymentsAudit}, report.KeptTriggers)
	assert.Equal(t, DefaultObsoleteFunctions, report.DroppedFunctions)
	assert.False(t, report.DryRun)

	var buf bytes.Buffer
	report.Format(&buf)
	assert.Contains(t, buf.String(), "[-] Removing the `purchase_orders.validate_invoice_date_trigger` trigger")
	assert.Contains(t, buf.String(), "[=] The `payments.audit_trigger` trigger is up to date")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepairAllowListIsKeyedByTable(t *testing.T) {
	r, mock := newRepairer(t)
	policy := DefaultPolicy()
	policy.ObsoleteFunctions = nil
	policy.Allow = []schema.TriggerKey{paymentsAudit}
	mock.ExpectBegin()
	mock.ExpectQuery("information_schema.triggers").WillReturnRows(triggerRows(invoicesAudit, paymentsAudit))
	expectTolerant(mock, schema.DropTriggerSQL("invoices", "audit_trigger"))
	expectRecreate(mock, policy)
	mock.ExpectCommit()

	report, err := r.Repair(context.Background(), policy)
	require.NoError(t, err)
	assert.Equal(t, []schema.TriggerKey{invoicesAudit}, report.DroppedTriggers)
	assert.Equal(t, []schema.TriggerKey{paymentsAudit}, report.KeptTriggers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepairToleratesMissingObjects(t *testing.T) {
	r, mock := newRepairer(t)
	policy := DefaultPolicy()
	policy.ObsoleteFunctions = []string{"validate_dates"}
	mock.ExpectBegin()
	mock.ExpectQuery("information_schema.triggers").WillReturnRows(triggerRows(ordersDate))
	expectExec(mock, "SAVEPOINT "+savepoint).WillReturnResult(ok())
	expectExec(mock, schema.DropTriggerSQL("purchase_orders", "validate_invoice_date_trigger")).WillReturnError(&pq.Error{Code: "42P01", Message: `relation "purchase_orders" does not exist`})
	expectExec(mock, "ROLLBACK TO SAVEPOINT "+savepoint).WillReturnResult(ok())
	expectObsolete(mock, policy)
	expectRecreate(mock, policy)
	mock.ExpectCommit()

	report, err := r.Repair(context.Background(), policy)
	require.NoError(t, err)
	assert.Len(t, report.DroppedTriggers, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepairUnexpectedErrorRollsBack(t *testing.T) {
	r, mock := newRepairer(t)
	policy := DefaultPolicy()
	mock.ExpectBegin()
	mock.ExpectQuery("information_schema.triggers").WillReturnRows(triggerRows(ordersDate))
	expectExec(mock, "SAVEPOINT "+savepoint).WillReturnResult(ok())
	expectExec(mock, schema.DropTriggerSQL("purchase_orders", "validate_invoice_date_trigger")).WillReturnError(&pq.Error{Code: "42501", Message: "must be owner of table purchase_orders"})
	mock.ExpectRollback()

	report, err := r.Repair(context.Background(), policy)
	assert.Nil(t, report)
	assert.ErrorContains(t, err, "error executing: DROP TRIGGER")
	assert.True(t, database.IsPermissionDenied(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepairCreateFailureRollsBack(t *testing.T) {
	r, mock := newRepairer(t)
	policy := DefaultPolicy()
	policy.ObsoleteFunctions = nil
	mock.ExpectBegin()
	mock.ExpectQuery("information_schema.triggers").WillReturnRows(triggerRows())
	expectExec(mock, schema.UpdatedAtFunctionSpec().CreateSQL()).WillReturnError(fmt.Errorf("syntax error"))
	mock.ExpectRollback()

	_, err := r.Repair(context.Background(), policy)
	assert.ErrorContains(t, err, "syntax error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepairBindsInvoiceDateValidationToInvoicesOnly(t *testing.T) {
	r, mock := newRepairer(t)
	policy := DefaultPolicy()
	policy.ObsoleteFunctions = []string{schema.InvoiceDateFunction}
	policy.BindInvoiceDateValidation = true
	mock.ExpectBegin()
	mock.ExpectQuery("information_schema.triggers").WillReturnRows(triggerRows(invoicesDate, ordersDate))
	expectTolerant(mock, schema.DropTriggerSQL("purchase_orders", "validate_invoice_date_trigger"))
	expectObsolete(mock, policy)
	expectRecreate(mock, policy)
	mock.ExpectCommit()

	report, err := r.Repair(context.Background(), policy)
	require.NoError(t, err)
	assert.Equal(t, []schema.TriggerKey{ordersDate}, report.DroppedTriggers)
	assert.Equal(t, []schema.TriggerKey{invoicesDate}, report.KeptTriggers)
	var created int
	for _, stmt := range report.Statements {
		if stmt == schema.InvoiceDateTriggerSpec().CreateSQL() {
			created++
		}
	}
	assert.Equal(t, 1, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanDoesNotExecute(t *testing.T) {
	r, mock := newRepairer(t)
	mock.ExpectQuery("information_schema.triggers").WillReturnRows(triggerRows(ordersDate))
	report, err := r.Plan(context.Background(), DefaultPolicy())
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, []schema.TriggerKey{ordersDate}, report.DroppedTriggers)
	assert.Equal(t, schema.DropTriggerSQL("purchase_orders", "validate_invoice_date_trigger"), report.Statements[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanRejectsKeepingTriggerOfObsoleteFunction(t *testing.T) {
	r, mock := newRepairer(t)
	policy := DefaultPolicy()
	policy.Allow = []schema.TriggerKey{invoicesDate}
	report, err := r.Plan(context.Background(), policy)
	assert.Nil(t, report)
	assert.ErrorContains(t, err, "dropped as obsolete")
	_, err = r.Repair(context.Background(), policy)
	assert.ErrorContains(t, err, "dropped as obsolete")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanRebindsEverySafeTable(t *testing.T) {
	r, mock := newRepairer(t)
	mock.ExpectQuery("information_schema.triggers").WillReturnRows(triggerRows(invoicesUpdatedAt))
	report, err := r.Plan(context.Background(), DefaultPolicy())
	require.NoError(t, err)
	for _, table := range schema.UpdatedAtTables {
		assert.Contains(t, report.Statements, schema.UpdatedAtTrigger(table).CreateSQL(), table)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}
