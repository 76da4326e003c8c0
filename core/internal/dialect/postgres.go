//nolint:errcheck
package dialect

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/dosco/fxquery/core/internal/qcode"
)

type PostgresDialect struct {
	GenericDialect
}

func (d *PostgresDialect) Name() string {
	return "postgres"
}

func (d *PostgresDialect) Capabilities() Capabilities {
	return Capabilities{
		FulltextScoring: true,
		Paging:          true,
	}
}

// Untyped nulls in a derived table resolve to text which cannot be
// compared with the id columns.
func (d *PostgresDialect) EmptyID() string {
	return "CAST(NULL AS BIGINT)"
}

func (d *PostgresDialect) EmptyVersion() string {
	return "CAST(NULL AS INTEGER)"
}

func (d *PostgresDialect) RenderLimit(ctx Context, start, max int) {
	if max < 0 {
		ctx.WriteString(` LIMIT ALL`)
	} else {
		ctx.WriteString(` LIMIT `)
		ctx.WriteString(strconv.Itoa(max))
	}
	if start != 0 {
		ctx.WriteString(` OFFSET `)
		ctx.WriteString(strconv.Itoa(start))
	}
}

func (d *PostgresDialect) FulltextPredicate(alias, text string) string {
	return "to_tsvector(" + prefix(alias) + "value) @@ plainto_tsquery(" + squote(text) + ")"
}

func (d *PostgresDialect) ScoreExpression(alias, text string) string {
	return "ts_rank(to_tsvector(" + prefix(alias) + "value), plainto_tsquery(" + squote(text) + "))"
}

func (d *PostgresDialect) DirectSelectMultivalued(e *qcode.PropertyEntry) bool {
	return directMultivalued(e)
}

func (d *PostgresDialect) MultivaluedConcat(column, orderBy string) string {
	return "string_agg(CAST(" + column + " AS TEXT), '" + MultivaluedSeparator + "' ORDER BY " + orderBy + ")"
}

func (d *PostgresDialect) PrepareConnection(ctx context.Context, conn *sql.Conn, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	return execAll(ctx, conn, []string{
		"SET statement_timeout = " + strconv.FormatInt(timeout.Milliseconds(), 10),
	})
}
