package reconciler

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
	"github.com/shopmonkeyus/go-common/logger"
	"github.com/shopmonkeyus/procure/internal/database"
	"github.com/shopmonkeyus/procure/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReconciler(t *testing.T) (*Reconciler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	log := logger.NewTestLogger()
	return New(log, database.New(log, db)), mock
}

func columnRows(c *schema.Catalog, skip ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"table_name", "column_name", "column_default", "is_nullable", "data_type"})
	for _, table := range c.Tables {
	next:
		for _, col := range table.Columns {
			for _, s := range skip {
				if s == table.Name+"."+col.Name {
					continue next
				}
			}
			rows.AddRow(table.Name, col.Name, nil, "YES", "text")
		}
	}
	return rows
}

func indexRows(c *schema.Catalog) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"indexname"})
	for _, idx := range c.Indexes {
		rows.AddRow(idx.IndexName())
	}
	return rows
}

func expectExec(mock sqlmock.Sqlmock, sql string) *sqlmock.ExpectedExec {
	return mock.ExpectExec("^" + regexp.QuoteMeta(sql) + "$")
}

func expectUnit(mock sqlmock.Sqlmock, sqls ...string) {
	expectExec(mock, "SAVEPOINT "+savepoint).WillReturnResult(sqlmock.NewResult(0, 0))
	for _, sql := range sqls {
		expectExec(mock, sql).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	expectExec(mock, "RELEASE SAVEPOINT "+savepoint).WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectTriggers(mock sqlmock.Sqlmock, c *schema.Catalog) {
	for _, fn := range c.Functions {
		expectUnit(mock, fn.CreateSQL())
	}
	for _, tr := range c.Triggers {
		expectUnit(mock, tr.DropSQL(), tr.CreateSQL())
	}
}

func TestReconcileEmptyDatabase(t *testing.T) {
	r, mock := newReconciler(t)
	c := schema.ERPCatalog()
	mock.ExpectBegin()
	mock.ExpectQuery("information_schema.columns").WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "column_default", "is_nullable", "data_type"}))
	mock.ExpectQuery("pg_indexes").WillReturnRows(sqlmock.NewRows([]string{"indexname"}))
	for _, table := range c.Tables {
		expectExec(mock, table.CreateSQL()).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	for _, idx := range c.Indexes {
		expectUnit(mock, idx.CreateSQL())
	}
	expectTriggers(mock, c)
	mock.ExpectCommit()

	result, err := r.Reconcile(context.Background(), c)
	require.NoError(t, err)
	assert.Len(t, result.Applied, len(c.Tables)+len(c.Indexes)+len(c.Functions)+2*len(c.Triggers))
	assert.Empty(t, result.Advisories)
	assert.Equal(t, c.Fingerprint(), result.Fingerprint)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileConformingDatabaseIsNoop(t *testing.T) {
	r, mock := newReconciler(t)
	c := schema.ERPCatalog()
	mock.ExpectBegin()
	mock.ExpectQuery("information_schema.columns").WillReturnRows(columnRows(c))
	mock.ExpectQuery("pg_indexes").WillReturnRows(indexRows(c))
	expectTriggers(mock, c)
	mock.ExpectCommit()

	result, err := r.Reconcile(context.Background(), c)
	require.NoError(t, err)
	for _, stmt := range result.Applied {
		assert.NotEqual(t, schema.TableKind, stmt.Kind, stmt.SQL)
		assert.NotEqual(t, schema.ColumnKind, stmt.Kind, stmt.SQL)
		assert.NotEqual(t, schema.IndexKind, stmt.Kind, stmt.SQL)
	}
	assert.Len(t, result.Skipped, len(c.Tables)+len(c.Indexes))
	assert.Empty(t, result.Advisories)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileAddsMissingColumnsOnly(t *testing.T) {
	r, mock := newReconciler(t)
	c := schema.ERPCatalog()
	mock.ExpectBegin()
	mock.ExpectQuery("information_schema.columns").WillReturnRows(columnRows(c, "invoices.file_path", "purchase_orders.file_path"))
	mock.ExpectQuery("pg_indexes").WillReturnRows(indexRows(c))
	expectExec(mock, `ALTER TABLE "invoices" ADD COLUMN IF NOT EXISTS "file_path" VARCHAR(500)`).WillReturnResult(sqlmock.NewResult(0, 0))
	expectExec(mock, `ALTER TABLE "purchase_orders" ADD COLUMN IF NOT EXISTS "file_path" VARCHAR(500)`).WillReturnResult(sqlmock.NewResult(0, 0))
	expectTriggers(mock, c)
	mock.ExpectCommit()

	result, err := r.Reconcile(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, schema.ColumnKind, result.Applied[0].Kind)
	assert.Equal(t, "invoices.file_path", result.Applied[0].Object)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileTableFailureIsFatal(t *testing.T) {
	r, mock := newReconciler(t)
	c := schema.ERPCatalog()
	mock.ExpectBegin()
	mock.ExpectQuery("information_schema.columns").WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "column_default", "is_nullable", "data_type"}))
	mock.ExpectQuery("pg_indexes").WillReturnRows(sqlmock.NewRows([]string{"indexname"}))
	expectExec(mock, c.Tables[0].CreateSQL()).WillReturnResult(sqlmock.NewResult(0, 0))
	expectExec(mock, c.Tables[1].CreateSQL()).WillReturnError(&pq.Error{Code: "42501", Message: "permission denied for schema public"})
	mock.ExpectRollback()

	result, err := r.Reconcile(context.Background(), c)
	assert.Nil(t, result)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, schema.TableKind, rerr.Kind)
	assert.Equal(t, "invoices", rerr.Object)
	assert.True(t, database.IsPermissionDenied(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileIndexFailureIsAdvisory(t *testing.T) {
	r, mock := newReconciler(t)
	c := schema.ERPCatalog()
	mock.ExpectBegin()
	mock.ExpectQuery("information_schema.columns").WillReturnRows(columnRows(c))
	mock.ExpectQuery("pg_indexes").WillReturnRows(sqlmock.NewRows([]string{"indexname"}))
	for i, idx := range c.Indexes {
		if i == 0 {
			expectExec(mock, "SAVEPOINT "+savepoint).WillReturnResult(sqlmock.NewResult(0, 0))
			expectExec(mock, idx.CreateSQL()).WillReturnError(fmt.Errorf("could not create unique index"))
			expectExec(mock, "ROLLBACK TO SAVEPOINT "+savepoint).WillReturnResult(sqlmock.NewResult(0, 0))
			continue
		}
		expectUnit(mock, idx.CreateSQL())
	}
	expectTriggers(mock, c)
	mock.ExpectCommit()

	result, err := r.Reconcile(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, result.Advisories, 1)
	assert.Equal(t, schema.IndexKind, result.Advisories[0].Kind)
	assert.Equal(t, c.Indexes[0].IndexName(), result.Advisories[0].Object)
	assert.Contains(t, result.Advisories[0].String(), "could not create unique index")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileTriggerFailureKeepsUnitTogether(t *testing.T) {
	r, mock := newReconciler(t)
	c := schema.ERPCatalog()
	mock.ExpectBegin()
	mock.ExpectQuery("information_schema.columns").WillReturnRows(columnRows(c))
	mock.ExpectQuery("pg_indexes").WillReturnRows(indexRows(c))
	for _, fn := range c.Functions {
		expectUnit(mock, fn.CreateSQL())
	}
	for i, tr := range c.Triggers {
		if i == 1 {
			expectExec(mock, "SAVEPOINT "+savepoint).WillReturnResult(sqlmock.NewResult(0, 0))
			expectExec(mock, tr.DropSQL()).WillReturnResult(sqlmock.NewResult(0, 0))
			expectExec(mock, tr.CreateSQL()).WillReturnError(&pq.Error{Code: "42710", Message: "trigger already exists"})
			expectExec(mock, "ROLLBACK TO SAVEPOINT "+savepoint).WillReturnResult(sqlmock.NewResult(0, 0))
			continue
		}
		expectUnit(mock, tr.DropSQL(), tr.CreateSQL())
	}
	mock.ExpectCommit()

	result, err := r.Reconcile(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, result.Advisories, 1)
	assert.Equal(t, schema.TriggerKind, result.Advisories[0].Kind)
	assert.Equal(t, c.Triggers[1].Key().String(), result.Advisories[0].Object)
	assert.True(t, database.IsDuplicateObject(result.Advisories[0].Err))
	assert.Equal(t, "duplicate object", result.Advisories[0].Cause())
	// the dropped half of the failed unit is rolled back and not reported as applied
	for _, stmt := range result.Applied {
		assert.NotEqual(t, c.Triggers[1].Key().String(), stmt.Object)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileSavepointFailureIsFatal(t *testing.T) {
	r, mock := newReconciler(t)
	c := schema.ERPCatalog()
	mock.ExpectBegin()
	mock.ExpectQuery("information_schema.columns").WillReturnRows(columnRows(c))
	mock.ExpectQuery("pg_indexes").WillReturnRows(indexRows(c))
	expectExec(mock, "SAVEPOINT "+savepoint).WillReturnError(fmt.Errorf("connection lost"))
	mock.ExpectRollback()

	_, err := r.Reconcile(context.Background(), c)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, schema.FunctionKind, rerr.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileInvalidCatalog(t *testing.T) {
	r, mock := newReconciler(t)
	c := &schema.Catalog{Tables: []schema.Table{{Name: "empty"}}}
	_, err := r.Reconcile(context.Background(), c)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "catalog", rerr.Object)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileRunsToCompletionWhenCancelled(t *testing.T) {
	r, mock := newReconciler(t)
	c := schema.ERPCatalog()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mock.ExpectBegin()
	mock.ExpectQuery("information_schema.columns").WillReturnRows(columnRows(c))
	mock.ExpectQuery("pg_indexes").WillReturnRows(indexRows(c))
	expectTriggers(mock, c)
	mock.ExpectCommit()
	_, err := r.Reconcile(ctx, c)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlan(t *testing.T) {
	r, mock := newReconciler(t)
	c := schema.ERPCatalog()
	mock.ExpectQuery("information_schema.columns").WillReturnRows(columnRows(c, "payments.notes"))
	mock.ExpectQuery("pg_indexes").WillReturnRows(indexRows(c))
	diff, stmts, err := r.Plan(context.Background(), c)
	require.NoError(t, err)
	assert.Len(t, diff.MissingColumns, 1)
	assert.Equal(t, `ALTER TABLE "payments" ADD COLUMN IF NOT EXISTS "notes" TEXT`, stmts[0].SQL)
	assert.Len(t, stmts, 1+len(c.Functions)+2*len(c.Triggers))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryCause(t *testing.T) {
	cases := map[string]error{
		"duplicate object":  &pq.Error{Code: "42P07"},
		"permission denied": &pq.Error{Code: "42501"},
		"undefined object":  &pq.Error{Code: "42883"},
		"error":             errors.New("connection reset"),
	}
	for cause, err := range cases {
		a := Advisory{Kind: schema.IndexKind, Object: "idx_invoices_status", Err: err}
		assert.Equal(t, cause, a.Cause(), err.Error())
	}
}
