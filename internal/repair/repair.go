package repair

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/go-common/logger"
	"github.com/shopmonkeyus/procure/internal"
	"github.com/shopmonkeyus/procure/internal/database"
	"github.com/shopmonkeyus/procure/internal/schema"
	"github.com/shopmonkeyus/procure/internal/util"
)

const savepoint = "procure_repair"

// Report is the outcome of a repair.
type Report struct {
	DroppedTriggers  []schema.TriggerKey `json:"droppedTriggers" msgpack:"droppedTriggers"`
	KeptTriggers     []schema.TriggerKey `json:"keptTriggers" msgpack:"keptTriggers"`
	DroppedFunctions []string            `json:"droppedFunctions" msgpack:"droppedFunctions"`
	Statements       []string            `json:"statements" msgpack:"statements"`
	DryRun           bool                `json:"dryRun" msgpack:"dryRun"`
	Duration         time.Duration       `json:"duration" msgpack:"duration"`
}

// Format writes a human readable summary of the report.
func (r *Report) Format(w io.Writer) {
	for _, key := range r.DroppedTriggers {
		schema.WriteRemovedHeader(w, key.String(), "trigger")
	}
	for _, fn := range r.DroppedFunctions {
		schema.WriteRemovedHeader(w, fn, "function")
	}
	for _, key := range r.KeptTriggers {
		schema.WriteUnchangedHeader(w, key.String(), "trigger")
	}
}

// Repairer removes every trigger outside the allow-list and recreates the safe set.
type Repairer struct {
	logger logger.Logger
	db     *database.DB
}

func New(logger logger.Logger, db *database.DB) *Repairer {
	return &Repairer{
		logger: logger.WithPrefix("[repair]"),
		db:     db,
	}
}

type step struct {
	sql string
	// tolerant steps ignore "does not exist" failures
	tolerant bool
}

func plan(policy Policy, live []schema.TriggerKey, report *Report) []step {
	allow := policy.AllowList()
	steps := make([]step, 0)
	for _, key := range live {
		if allow.Allowed(key) {
			report.KeptTriggers = append(report.KeptTriggers, key)
			continue
		}
		report.DroppedTriggers = append(report.DroppedTriggers, key)
		steps = append(steps, step{sql: schema.DropTriggerSQL(key.Table, key.Name), tolerant: true})
	}
	for _, fn := range policy.ObsoleteFunctions {
		report.DroppedFunctions = append(report.DroppedFunctions, fn)
		steps = append(steps, step{sql: schema.DropFunctionSQL(fn), tolerant: true})
	}
	for _, fn := range policy.safeFunctions() {
		steps = append(steps, step{sql: fn.CreateSQL()})
	}
	for _, tr := range policy.safeTriggers() {
		steps = append(steps, step{sql: tr.DropSQL(), tolerant: true})
		steps = append(steps, step{sql: tr.CreateSQL()})
	}
	for _, s := range steps {
		report.Statements = append(report.Statements, s.sql)
	}
	return steps
}

// Plan returns what Repair would do without changing anything.
func (r *Repairer) Plan(ctx context.Context, policy Policy) (*Report, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	live, err := schema.ListTriggers(ctx, r.db)
	if err != nil {
		return nil, err
	}
	report := &Report{DryRun: true}
	plan(policy, live, report)
	return report, nil
}

// Repair runs the whole repair in one transaction. Dropping an object that no
// longer exists is not an error; any other failure rolls everything back.
//
// Once started the transaction runs to completion even if ctx is cancelled.
func (r *Repairer) Repair(ctx context.Context, policy Policy) (*Report, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	started := time.Now()
	ctx = context.WithoutCancel(ctx)
	var report *Report
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		report = &Report{}
		live, err := schema.ListTriggers(ctx, tx)
		if err != nil {
			return err
		}
		for _, s := range plan(policy, live, report) {
			if err := r.exec(ctx, tx, s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	report.Duration = time.Since(started)
	internal.RepairDropped.WithLabelValues("trigger").Add(float64(len(report.DroppedTriggers)))
	internal.RepairDropped.WithLabelValues("function").Add(float64(len(report.DroppedFunctions)))
	r.logger.Info("repair completed in %v (dropped triggers: %d, dropped functions: %d, kept: %d)", report.Duration, len(report.DroppedTriggers), len(report.DroppedFunctions), len(report.KeptTriggers))
	return report, nil
}

func (r *Repairer) exec(ctx context.Context, tx *sql.Tx, s step) error {
	execute := util.SQLExecuter(ctx, r.logger, tx, false)
	if !s.tolerant {
		if err := execute(s.sql); err != nil {
			return errors.Wrapf(err, "error executing: %s", s.sql)
		}
		return nil
	}
	if err := execute("SAVEPOINT " + savepoint); err != nil {
		return errors.Wrap(err, "unable to create savepoint")
	}
	if err := execute(s.sql); err != nil {
		if !database.IsUndefinedObject(err) {
			return errors.Wrapf(err, "error executing: %s", s.sql)
		}
		r.logger.Debug("ignoring missing object: %s", database.ErrorMessage(err))
		if err := execute("ROLLBACK TO SAVEPOINT " + savepoint); err != nil {
			return errors.Wrap(err, "unable to rollback to savepoint")
		}
		return nil
	}
	if err := execute("RELEASE SAVEPOINT " + savepoint); err != nil {
		return errors.Wrap(err, "unable to release savepoint")
	}
	return nil
}

func (r *Report) String() string {
	return fmt.Sprintf("dropped triggers=%d dropped functions=%d kept=%d", len(r.DroppedTriggers), len(r.DroppedFunctions), len(r.KeptTriggers))
}
