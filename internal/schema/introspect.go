package schema

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/go-common/logger"
	"github.com/shopmonkeyus/procure/internal/util"
)

// LiveColumn is a column as reported by information_schema.
type LiveColumn struct {
	Table      string
	Name       string
	Default    *string
	IsNullable bool
	DataType   string
}

// Live is the set of tables and columns present in the database.
type Live map[string]map[string]LiveColumn

// HasTable returns true if the table exists.
func (l Live) HasTable(table string) bool {
	_, ok := l[table]
	return ok
}

// HasColumn returns true if the column exists on the table.
func (l Live) HasColumn(table string, column string) bool {
	if cols, ok := l[table]; ok {
		_, ok := cols[column]
		return ok
	}
	return false
}

const columnsQuery = `SELECT
	c.table_name,
	c.column_name,
	c.column_default,
	c.is_nullable,
	c.data_type
FROM
	information_schema.columns c
WHERE
	c.table_schema = current_schema()
ORDER BY
	c.table_name, c.ordinal_position`

// LoadColumns loads every column of every table in the current schema.
func LoadColumns(ctx context.Context, logger logger.Logger, q util.Querier) (Live, error) {
	started := time.Now()
	rows, err := q.QueryContext(ctx, columnsQuery)
	if err != nil {
		return nil, errors.Wrap(err, "error fetching column metadata from the db")
	}
	defer rows.Close()
	res := make(Live)
	for rows.Next() {
		var tn, cn, isn, dt string
		var cd sql.NullString
		if err := rows.Scan(&tn, &cn, &cd, &isn, &dt); err != nil {
			return nil, errors.Wrap(err, "error reading db row")
		}
		var colDef *string
		if cd.Valid {
			colDef = &cd.String
		}
		if _, ok := res[tn]; !ok {
			res[tn] = make(map[string]LiveColumn)
		}
		res[tn][cn] = LiveColumn{
			Table:      tn,
			Name:       cn,
			Default:    colDef,
			IsNullable: isn == "YES",
			DataType:   dt,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading column metadata")
	}
	logger.Trace("loaded up schema in %v", time.Since(started))
	return res, nil
}

const triggersQuery = `SELECT DISTINCT
	t.event_object_table,
	t.trigger_name
FROM
	information_schema.triggers t
WHERE
	t.trigger_schema = current_schema()
ORDER BY
	t.event_object_table, t.trigger_name`

// ListTriggers returns the (table, name) pair of every user trigger in the current schema.
// Internal constraint triggers are not reported by information_schema.
func ListTriggers(ctx context.Context, q util.Querier) ([]TriggerKey, error) {
	rows, err := q.QueryContext(ctx, triggersQuery)
	if err != nil {
		return nil, errors.Wrap(err, "error fetching triggers from the db")
	}
	defer rows.Close()
	res := make([]TriggerKey, 0)
	for rows.Next() {
		var key TriggerKey
		if err := rows.Scan(&key.Table, &key.Name); err != nil {
			return nil, errors.Wrap(err, "error reading db row")
		}
		res = append(res, key)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading triggers")
	}
	return res, nil
}

const indexesQuery = `SELECT
	i.indexname
FROM
	pg_indexes i
WHERE
	i.schemaname = current_schema()`

// ListIndexes returns the names of every index in the current schema.
func ListIndexes(ctx context.Context, q util.Querier) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, indexesQuery)
	if err != nil {
		return nil, errors.Wrap(err, "error fetching indexes from the db")
	}
	defer rows.Close()
	res := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "error reading db row")
		}
		res[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading indexes")
	}
	return res, nil
}
