package schema

import (
	"fmt"
	"strings"

	"github.com/shopmonkeyus/procure/internal/util"
)

// Kind is the kind of catalog object.
type Kind int

const (
	TableKind Kind = iota
	ColumnKind
	IndexKind
	FunctionKind
	TriggerKind
)

func (k Kind) String() string {
	switch k {
	case TableKind:
		return "table"
	case ColumnKind:
		return "column"
	case IndexKind:
		return "index"
	case FunctionKind:
		return "function"
	case TriggerKind:
		return "trigger"
	}
	return "unknown"
}

// Advisory returns true if a failure creating this kind of object should not abort reconciliation.
func (k Kind) Advisory() bool {
	return k == IndexKind || k == FunctionKind || k == TriggerKind
}

type TriggerTiming string

const (
	Before TriggerTiming = "BEFORE"
	After  TriggerTiming = "AFTER"
)

type TriggerEvent string

const (
	Insert TriggerEvent = "INSERT"
	Update TriggerEvent = "UPDATE"
	Delete TriggerEvent = "DELETE"
)

// Column is a column definition. Columns are append only: once created they are never renamed, altered or dropped.
type Column struct {
	Table      string
	Name       string
	DataType   string
	NotNull    bool
	Default    *string
	Check      string
	Unique     bool
	PrimaryKey bool
}

// DefinitionSQL returns the full column definition used inside CREATE TABLE.
func (c Column) DefinitionSQL() string {
	var sql strings.Builder
	sql.WriteString(util.QuoteIdentifier(c.Name))
	sql.WriteString(" ")
	sql.WriteString(c.DataType)
	if c.PrimaryKey {
		sql.WriteString(" PRIMARY KEY")
	}
	if c.NotNull && !c.PrimaryKey {
		sql.WriteString(" NOT NULL")
	}
	if c.Unique && !c.PrimaryKey {
		sql.WriteString(" UNIQUE")
	}
	if c.Default != nil {
		sql.WriteString(" DEFAULT ")
		sql.WriteString(*c.Default)
	}
	if c.Check != "" {
		sql.WriteString(" CHECK (")
		sql.WriteString(c.Check)
		sql.WriteString(")")
	}
	return sql.String()
}

// AddSQL returns the statement that adds the column to an existing table. Only
// the type and default are applied; constraints are never retrofitted onto a
// table that may already hold rows violating them.
func (c Column) AddSQL() string {
	sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", util.QuoteIdentifier(c.Table), util.QuoteIdentifier(c.Name), c.DataType)
	if c.Default != nil {
		sql += " DEFAULT " + *c.Default
	}
	return sql
}

// Table is a table definition with its ordered columns.
type Table struct {
	Name    string
	Columns []Column
}

// Column returns the named column or nil.
func (t Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// CreateSQL returns an idempotent CREATE TABLE statement with full column definitions.
func (t Table) CreateSQL() string {
	var sql strings.Builder
	sql.WriteString("CREATE TABLE IF NOT EXISTS ")
	sql.WriteString(util.QuoteIdentifier(t.Name))
	sql.WriteString(" (\n")
	for i, column := range t.Columns {
		sql.WriteString(spacer)
		sql.WriteString(column.DefinitionSQL())
		if i+1 < len(t.Columns) {
			sql.WriteString(",")
		}
		sql.WriteString("\n")
	}
	sql.WriteString(")")
	return sql.String()
}

// Index is a secondary index.
type Index struct {
	Table   string
	Name    string
	Columns []string
	Unique  bool
}

// IndexName returns the explicit name or one derived from the table and columns.
func (i Index) IndexName() string {
	if i.Name != "" {
		return i.Name
	}
	return "idx_" + i.Table + "_" + strings.Join(i.Columns, "_")
}

func (i Index) CreateSQL() string {
	typeIndex := "INDEX"
	if i.Unique {
		typeIndex = "UNIQUE " + typeIndex
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)", typeIndex, util.QuoteIdentifier(i.IndexName()), util.QuoteIdentifier(i.Table), strings.Join(util.QuoteStringIdentifiers(i.Columns), ", "))
}

// Function is a plpgsql trigger function. It holds no state.
type Function struct {
	Name string
	Body string
}

func (f Function) CreateSQL() string {
	return fmt.Sprintf("CREATE OR REPLACE FUNCTION %s()\nRETURNS TRIGGER AS $$\n%s\n$$ LANGUAGE plpgsql", util.QuoteIdentifier(f.Name), strings.TrimSpace(f.Body))
}

func (f Function) DropSQL() string {
	return DropFunctionSQL(f.Name)
}

// DropFunctionSQL drops a trigger function by name along with anything depending on it.
func DropFunctionSQL(name string) string {
	return fmt.Sprintf("DROP FUNCTION IF EXISTS %s() CASCADE", util.QuoteIdentifier(name))
}

// Trigger binds a function to a table.
type Trigger struct {
	Name     string
	Table    string
	Timing   TriggerTiming
	Events   []TriggerEvent
	Function string
}

// Key returns the (table, name) pair that identifies the trigger.
func (t Trigger) Key() TriggerKey {
	return TriggerKey{Table: t.Table, Name: t.Name}
}

func (t Trigger) DropSQL() string {
	return DropTriggerSQL(t.Table, t.Name)
}

func (t Trigger) CreateSQL() string {
	events := make([]string, len(t.Events))
	for i, e := range t.Events {
		events[i] = string(e)
	}
	return fmt.Sprintf("CREATE TRIGGER %s %s %s ON %s FOR EACH ROW EXECUTE FUNCTION %s()", util.QuoteIdentifier(t.Name), t.Timing, strings.Join(events, " OR "), util.QuoteIdentifier(t.Table), util.QuoteIdentifier(t.Function))
}

// DropTriggerSQL drops a trigger from a table if it exists.
func DropTriggerSQL(table string, name string) string {
	return fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s CASCADE", util.QuoteIdentifier(name), util.QuoteIdentifier(table))
}

// TriggerKey identifies a trigger. Trigger names are only unique per table.
type TriggerKey struct {
	Table string `toml:"table" json:"table" msgpack:"table"`
	Name  string `toml:"name" json:"name" msgpack:"name"`
}

func (k TriggerKey) String() string {
	return k.Table + "." + k.Name
}

// Statement is a single DDL statement tagged with the object it creates.
type Statement struct {
	Kind   Kind
	Object string
	SQL    string
}

func (s Statement) String() string {
	return fmt.Sprintf("%s %s: %s", s.Kind, s.Object, s.SQL)
}
