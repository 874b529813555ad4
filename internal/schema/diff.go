package schema

import (
	"fmt"
	"io"
)

// Diff is the difference between a catalog and the live database. It only
// ever contains additions.
type Diff struct {
	MissingTables  []Table
	MissingColumns []Column
	Present        []string
}

// Compare computes what has to be added for live to satisfy the catalog.
func Compare(c *Catalog, live Live) *Diff {
	d := &Diff{}
	for _, table := range c.Tables {
		if !live.HasTable(table.Name) {
			d.MissingTables = append(d.MissingTables, table)
			continue
		}
		var missing bool
		for _, col := range table.Columns {
			if !live.HasColumn(table.Name, col.Name) {
				d.MissingColumns = append(d.MissingColumns, col)
				missing = true
			}
		}
		if !missing {
			d.Present = append(d.Present, table.Name)
		}
	}
	return d
}

// Empty returns true if no table or column is missing.
func (d *Diff) Empty() bool {
	return len(d.MissingTables) == 0 && len(d.MissingColumns) == 0
}

// Statements returns the structural statements for the diff: tables first, then columns.
func (d *Diff) Statements() []Statement {
	res := make([]Statement, 0, len(d.MissingTables)+len(d.MissingColumns))
	for _, table := range d.MissingTables {
		res = append(res, Statement{Kind: TableKind, Object: table.Name, SQL: table.CreateSQL()})
	}
	for _, col := range d.MissingColumns {
		res = append(res, Statement{Kind: ColumnKind, Object: col.Table + "." + col.Name, SQL: col.AddSQL()})
	}
	return res
}

// Format writes a human readable summary of the diff.
func (d *Diff) Format(w io.Writer) {
	for _, table := range d.MissingTables {
		WriteAddedHeader(w, table.Name, "table", fmt.Sprintf("(%d columns)", len(table.Columns)))
	}
	var current string
	for _, col := range d.MissingColumns {
		if col.Table != current {
			WriteChangeHeader(w, col.Table, "table")
			current = col.Table
		}
		WriteAddedLine(w, "column", col.Name, col.DataType)
	}
	for _, name := range d.Present {
		WriteUnchangedHeader(w, name, "table")
	}
}
