package auditor

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
	"github.com/shopmonkeyus/procure/internal/util"
)

// Parent is the table and unique key column that dependent rows refer to by value.
type Parent struct {
	Table string
	Key   string
}

// Dependent is a table and the column holding the informal reference to the parent key.
type Dependent struct {
	Table string
	Field string
}

func (d Dependent) String() string {
	return d.Table + "." + d.Field
}

// Suppliers is the parent of every supplier_name reference.
var Suppliers = Parent{Table: schema.Suppliers, Key: "name"}

// SupplierDependents are the tables referring to suppliers by name.
var SupplierDependents = []Dependent{
	{Table: schema.Invoices, Field: "supplier_name"},
	{Table: schema.PurchaseOrders, Field: "supplier_name"},
}

// Report is the outcome of an audit.
type Report struct {
	Orphans  map[string]int `json:"orphans" msgpack:"orphans"`
	Inserted []string       `json:"inserted" msgpack:"inserted"`
	Raced    []string       `json:"raced" msgpack:"raced"`
	Started  time.Time      `json:"started" msgpack:"started"`
	Duration time.Duration  `json:"duration" msgpack:"duration"`
}

// Changed returns true if the audit inserted any parent row.
func (r *Report) Changed() bool {
	return len(r.Inserted) > 0
}

func (r *Report) String() string {
	return fmt.Sprintf("orphans=%v inserted=%d raced=%d duration=%v", r.Orphans, len(r.Inserted), len(r.Raced), r.Duration)
}

// Auditor repairs orphaned references by synthesizing the missing parent rows.
// Dependent rows are never modified or deleted.
type Auditor struct {
	logger logger.Logger
	db     *database.DB
}

func New(logger logger.Logger, db *database.DB) *Auditor {
	return &Auditor{
		logger: logger.WithPrefix("[auditor]"),
		db:     db,
	}
}

func orphanSQL(parent Parent, dep Dependent) string {
	field := "d." + util.QuoteIdentifier(dep.Field)
	return fmt.Sprintf(`SELECT DISTINCT %[1]s FROM %[2]s d WHERE %[1]s IS NOT NULL AND %[1]s <> '' AND NOT EXISTS (SELECT 1 FROM %[3]s p WHERE p.%[4]s = %[1]s) ORDER BY 1`,
		field, util.QuoteIdentifier(dep.Table), util.QuoteIdentifier(parent.Table), util.QuoteIdentifier(parent.Key))
}

func insertSQL(parent Parent) string {
	key := util.QuoteIdentifier(parent.Key)
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1) ON CONFLICT (%s) DO NOTHING`, util.QuoteIdentifier(parent.Table), key, key)
}

func findOrphans(ctx context.Context, tx *sql.Tx, parent Parent, dep Dependent) ([]string, error) {
	rows, err := tx.QueryContext(ctx, orphanSQL(parent, dep))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to find orphans in %s", dep)
	}
	defer rows.Close()
	res := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "error reading db row")
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

// AuditAndRepair finds every dependent value without a parent row and inserts
// the parent row keyed by that value. Inserts tolerate a concurrent insert of
// the same key.
func (a *Auditor) AuditAndRepair(ctx context.Context, parent Parent, dependents []Dependent) (*Report, error) {
	report := &Report{
		Orphans: make(map[string]int),
		Started: time.Now(),
	}
	err := a.db.WithTx(ctx, func(tx *sql.Tx) error {
		seen := make(map[string]bool)
		missing := make([]string, 0)
		for _, dep := range dependents {
			names, err := findOrphans(ctx, tx, parent, dep)
			if err != nil {
				return err
			}
			report.Orphans[dep.String()] = len(names)
			if len(names) > 0 {
				a.logger.Warn("found %d %s values without a matching %s row", len(names), dep, parent.Table)
			}
			for _, name := range names {
				if !seen[name] {
					seen[name] = true
					missing = append(missing, name)
				}
			}
		}
		stmt := insertSQL(parent)
		for _, name := range missing {
			res, err := tx.ExecContext(ctx, stmt, name)
			if err != nil {
				return errors.Wrapf(err, "unable to insert %s %q", parent.Table, name)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return errors.Wrapf(err, "unable to read result of inserting %s %q", parent.Table, name)
			}
			if n > 0 {
				report.Inserted = append(report.Inserted, name)
				a.logger.Info("created missing %s row: %s", parent.Table, name)
			} else {
				report.Raced = append(report.Raced, name)
			}
		}
		return nil
	})
	report.Duration = time.Since(report.Started)
	if err != nil {
		return nil, err
	}
	internal.OrphansRepaired.Add(float64(len(report.Inserted)))
	a.logger.Debug("audit completed: %s", report)
	return report, nil
}
