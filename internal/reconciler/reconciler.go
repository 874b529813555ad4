package reconciler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/go-common/logger"
	"github.com/shopmonkeyus/procure/internal"
	"github.com/shopmonkeyus/procure/internal/database"
	"github.com/shopmonkeyus/procure/internal/schema"
)

const savepoint = "procure_advisory"

// Error is a fatal reconciliation failure. The transaction has been rolled back
// and the caller must not continue starting up.
type Error struct {
	Kind   schema.Kind
	Object string
	SQL    string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("unable to reconcile %s %s: %s", e.Kind, e.Object, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Advisory is a non-fatal failure creating an index, function or trigger.
type Advisory struct {
	Kind   schema.Kind `json:"kind"`
	Object string      `json:"object"`
	SQL    string      `json:"sql"`
	Err    error       `json:"-"`
}

// Cause classifies the failure for operators.
func (a Advisory) Cause() string {
	switch {
	case database.IsDuplicateObject(a.Err):
		return "duplicate object"
	case database.IsPermissionDenied(a.Err):
		return "permission denied"
	case database.IsUndefinedObject(a.Err):
		return "undefined object"
	}
	return "error"
}

func (a Advisory) String() string {
	return fmt.Sprintf("%s %s: %s", a.Kind, a.Object, a.Err)
}

// Result describes the outcome of a reconciliation.
type Result struct {
	Fingerprint string
	Applied     []schema.Statement
	Skipped     []string
	Advisories  []Advisory
	Started     time.Time
	Duration    time.Duration
}

// Reconciler brings the live database into conformance with a catalog.
type Reconciler struct {
	logger logger.Logger
	db     *database.DB
}

// New returns a reconciler using the given pool.
func New(logger logger.Logger, db *database.DB) *Reconciler {
	return &Reconciler{
		logger: logger.WithPrefix("[reconciler]"),
		db:     db,
	}
}

// unit is a group of statements that succeed or fail together behind one savepoint.
type unit []schema.Statement

func advisoryUnits(catalog *schema.Catalog, indexes map[string]bool, result *Result) []unit {
	res := make([]unit, 0)
	for _, idx := range catalog.Indexes {
		if indexes[idx.IndexName()] {
			result.Skipped = append(result.Skipped, idx.IndexName())
			continue
		}
		res = append(res, unit{{Kind: schema.IndexKind, Object: idx.IndexName(), SQL: idx.CreateSQL()}})
	}
	for _, fn := range catalog.Functions {
		res = append(res, unit{{Kind: schema.FunctionKind, Object: fn.Name, SQL: fn.CreateSQL()}})
	}
	for _, tr := range catalog.Triggers {
		key := tr.Key().String()
		res = append(res, unit{
			{Kind: schema.TriggerKind, Object: key, SQL: tr.DropSQL()},
			{Kind: schema.TriggerKind, Object: key, SQL: tr.CreateSQL()},
		})
	}
	return res
}

// Reconcile applies every missing table and column, then indexes, functions
// and triggers, inside one transaction. A table or column failure rolls back
// everything and returns an *Error. Index, function and trigger failures are
// returned in Result.Advisories and do not abort the run.
//
// Once started the transaction runs to completion even if ctx is cancelled.
func (r *Reconciler) Reconcile(ctx context.Context, catalog *schema.Catalog) (*Result, error) {
	started := time.Now()
	result := &Result{Started: started, Fingerprint: catalog.Fingerprint()}
	if err := catalog.Validate(); err != nil {
		return nil, &Error{Kind: schema.TableKind, Object: "catalog", Err: err}
	}
	ctx = context.WithoutCancel(ctx)
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		live, err := schema.LoadColumns(ctx, r.logger, tx)
		if err != nil {
			return &Error{Kind: schema.TableKind, Object: "information_schema", Err: err}
		}
		indexes, err := schema.ListIndexes(ctx, tx)
		if err != nil {
			return &Error{Kind: schema.IndexKind, Object: "pg_indexes", Err: err}
		}
		diff := schema.Compare(catalog, live)
		result.Skipped = append(result.Skipped, diff.Present...)
		for _, stmt := range diff.Statements() {
			r.logger.Trace("executing: %s", stmt.SQL)
			if _, err := tx.ExecContext(ctx, stmt.SQL); err != nil {
				r.logger.Error("error executing: %s. %s", stmt.SQL, err)
				return &Error{Kind: stmt.Kind, Object: stmt.Object, SQL: stmt.SQL, Err: err}
			}
			result.Applied = append(result.Applied, stmt)
		}
		for _, u := range advisoryUnits(catalog, indexes, result) {
			if err := r.runAdvisory(ctx, tx, u, result); err != nil {
				return err
			}
		}
		return nil
	})
	result.Duration = time.Since(started)
	internal.ReconcileDuration.Observe(result.Duration.Seconds())
	if err != nil {
		internal.ReconcileRuns.WithLabelValues("failed").Inc()
		var rerr *Error
		if errors.As(err, &rerr) {
			return nil, rerr
		}
		return nil, &Error{Kind: schema.TableKind, Object: "transaction", Err: err}
	}
	internal.ReconcileRuns.WithLabelValues("success").Inc()
	internal.ReconcileStatements.Add(float64(len(result.Applied)))
	for _, a := range result.Advisories {
		internal.AdvisoryFailures.WithLabelValues(a.Kind.String()).Inc()
	}
	r.logger.Info("reconciled %s in %v (applied: %d, skipped: %d, advisories: %d)", catalog, result.Duration, len(result.Applied), len(result.Skipped), len(result.Advisories))
	return result, nil
}

// runAdvisory runs a unit behind a savepoint. A failing statement rolls back
// to the savepoint so the enclosing transaction stays usable. Only a failure
// of the savepoint bookkeeping itself is returned.
func (r *Reconciler) runAdvisory(ctx context.Context, tx *sql.Tx, u unit, result *Result) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		return &Error{Kind: u[0].Kind, Object: u[0].Object, SQL: "SAVEPOINT", Err: err}
	}
	applied := make([]schema.Statement, 0, len(u))
	for _, stmt := range u {
		r.logger.Trace("executing: %s", stmt.SQL)
		if _, err := tx.ExecContext(ctx, stmt.SQL); err != nil {
			r.logger.Warn("advisory failure for %s %s: %s", stmt.Kind, stmt.Object, err)
			result.Advisories = append(result.Advisories, Advisory{Kind: stmt.Kind, Object: stmt.Object, SQL: stmt.SQL, Err: err})
			if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); err != nil {
				return &Error{Kind: stmt.Kind, Object: stmt.Object, SQL: "ROLLBACK TO SAVEPOINT", Err: err}
			}
			return nil
		}
		applied = append(applied, stmt)
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return &Error{Kind: u[0].Kind, Object: u[0].Object, SQL: "RELEASE SAVEPOINT", Err: err}
	}
	result.Applied = append(result.Applied, applied...)
	return nil
}

// Plan returns the statements Reconcile would execute without changing anything.
func (r *Reconciler) Plan(ctx context.Context, catalog *schema.Catalog) (*schema.Diff, []schema.Statement, error) {
	if err := catalog.Validate(); err != nil {
		return nil, nil, err
	}
	live, err := schema.LoadColumns(ctx, r.logger, r.db)
	if err != nil {
		return nil, nil, err
	}
	indexes, err := schema.ListIndexes(ctx, r.db)
	if err != nil {
		return nil, nil, err
	}
	diff := schema.Compare(catalog, live)
	stmts := diff.Statements()
	var discard Result
	for _, u := range advisoryUnits(catalog, indexes, &discard) {
		stmts = append(stmts, u...)
	}
	return diff, stmts, nil
}
