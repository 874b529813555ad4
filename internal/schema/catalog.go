package schema

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/procure/internal/util"
)

// Catalog is the declarative target shape of the database.
type Catalog struct {
	Tables    []Table
	Indexes   []Index
	Functions []Function
	Triggers  []Trigger
}

// Table returns the named table or nil.
func (c *Catalog) Table(name string) *Table {
	for i := range c.Tables {
		if c.Tables[i].Name == name {
			return &c.Tables[i]
		}
	}
	return nil
}

// Validate checks that every index and trigger refers to objects declared in the catalog.
func (c *Catalog) Validate() error {
	tables := make(map[string]*Table)
	for i := range c.Tables {
		t := &c.Tables[i]
		if _, ok := tables[t.Name]; ok {
			return errors.Newf("duplicate table: %s", t.Name)
		}
		if len(t.Columns) == 0 {
			return errors.Newf("table %s has no columns", t.Name)
		}
		seen := make(map[string]bool)
		for _, col := range t.Columns {
			if col.Table != t.Name {
				return errors.Newf("column %s declared on %s belongs to %s", col.Name, t.Name, col.Table)
			}
			if seen[col.Name] {
				return errors.Newf("duplicate column: %s.%s", t.Name, col.Name)
			}
			seen[col.Name] = true
		}
		tables[t.Name] = t
	}
	for _, idx := range c.Indexes {
		t, ok := tables[idx.Table]
		if !ok {
			return errors.Newf("index %s refers to unknown table %s", idx.IndexName(), idx.Table)
		}
		for _, col := range idx.Columns {
			if t.Column(col) == nil {
				return errors.Newf("index %s refers to unknown column %s.%s", idx.IndexName(), idx.Table, col)
			}
		}
	}
	functions := make(map[string]bool)
	for _, fn := range c.Functions {
		functions[fn.Name] = true
	}
	triggers := make(map[TriggerKey]bool)
	for _, tr := range c.Triggers {
		if _, ok := tables[tr.Table]; !ok {
			return errors.Newf("trigger %s refers to unknown table %s", tr.Name, tr.Table)
		}
		if !functions[tr.Function] {
			return errors.Newf("trigger %s refers to unknown function %s", tr.Key(), tr.Function)
		}
		if triggers[tr.Key()] {
			return errors.Newf("duplicate trigger: %s", tr.Key())
		}
		triggers[tr.Key()] = true
	}
	return nil
}

// Fingerprint returns a stable hash of every statement the catalog would generate.
func (c *Catalog) Fingerprint() string {
	vals := make([]interface{}, 0)
	for _, stmt := range c.Statements() {
		vals = append(vals, stmt.SQL)
	}
	return util.Hash(vals...)
}

// Statements returns every statement needed to build the catalog from scratch, in execution order.
func (c *Catalog) Statements() []Statement {
	res := make([]Statement, 0)
	for _, t := range c.Tables {
		res = append(res, Statement{Kind: TableKind, Object: t.Name, SQL: t.CreateSQL()})
	}
	for _, idx := range c.Indexes {
		res = append(res, Statement{Kind: IndexKind, Object: idx.IndexName(), SQL: idx.CreateSQL()})
	}
	res = append(res, c.TriggerStatements()...)
	return res
}

// TriggerStatements returns the function and trigger statements. Functions are
// replaced in place and every trigger is dropped and recreated so that exactly
// one binding exists per (table, name).
func (c *Catalog) TriggerStatements() []Statement {
	res := make([]Statement, 0)
	for _, fn := range c.Functions {
		res = append(res, Statement{Kind: FunctionKind, Object: fn.Name, SQL: fn.CreateSQL()})
	}
	for _, tr := range c.Triggers {
		res = append(res, Statement{Kind: TriggerKind, Object: tr.Key().String(), SQL: tr.DropSQL()})
		res = append(res, Statement{Kind: TriggerKind, Object: tr.Key().String(), SQL: tr.CreateSQL()})
	}
	return res
}

func (c *Catalog) String() string {
	return fmt.Sprintf("catalog(tables=%d, indexes=%d, functions=%d, triggers=%d)", len(c.Tables), len(c.Indexes), len(c.Functions), len(c.Triggers))
}
