package util

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"
	"github.com/shopmonkeyus/go-common/logger"
)

// Execer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// QuoteIdentifier quotes an identifier with double quotes
func QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

// QuoteStringIdentifiers quotes a slice of identifiers with double quotes
func QuoteStringIdentifiers(vals []string) []string {
	res := make([]string, len(vals))
	for i, val := range vals {
		res[i] = QuoteIdentifier(val)
	}
	return res
}

// QuoteLiteral quotes a string literal with single quotes
func QuoteLiteral(val string) string {
	return pq.QuoteLiteral(val)
}

// SQLExecuter returns a wrapper around a SQL connection or transaction that can execute SQL statements or log them in dry-run mode
func SQLExecuter(ctx context.Context, log logger.Logger, db Execer, dryRun bool) func(sql string) error {
	return func(sql string) error {
		if dryRun {
			log.Info("[dry-run] %s", sql)
			return nil
		}
		log.Trace("executing: %s", strings.TrimRight(sql, "\n"))
		if _, err := db.ExecContext(ctx, sql); err != nil {
			return err
		}
		return nil
	}
}
