//nolint:errcheck
package dialect

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/pkg/errors"
)

// groupConcatMaxLen raises the GROUP_CONCAT result limit of a session
// so directly selected multi-valued properties are not truncated.
const groupConcatMaxLen = 1048576

type MySQLDialect struct {
	GenericDialect
}

func (d *MySQLDialect) Name() string {
	return "mysql"
}

func (d *MySQLDialect) Capabilities() Capabilities {
	return Capabilities{
		FulltextScoring: true,
		Paging:          true,
	}
}

func (d *MySQLDialect) RenderLimit(ctx Context, start, max int) {
	ctx.WriteString(` LIMIT `)
	if start != 0 {
		ctx.WriteString(strconv.Itoa(start))
		ctx.WriteString(`,`)
	}
	if max < 0 {
		ctx.WriteString(`18446744073709551610`)
	} else {
		ctx.WriteString(strconv.Itoa(max))
	}
}

func (d *MySQLDialect) FulltextPredicate(alias, text string) string {
	return "MATCH (" + prefix(alias) + "value) AGAINST (" + squote(text) + ")"
}

func (d *MySQLDialect) ScoreExpression(alias, text string) string {
	return d.FulltextPredicate(alias, text)
}

func (d *MySQLDialect) DirectSelectMultivalued(e *qcode.PropertyEntry) bool {
	return directMultivalued(e)
}

func (d *MySQLDialect) MultivaluedConcat(column, orderBy string) string {
	return "GROUP_CONCAT(" + column + " ORDER BY " + orderBy + " SEPARATOR '" + MultivaluedSeparator + "')"
}

func (d *MySQLDialect) PrepareConnection(ctx context.Context, conn *sql.Conn, timeout time.Duration) error {
	stmts := []string{
		"SET SESSION group_concat_max_len=" + strconv.Itoa(groupConcatMaxLen),
	}
	if timeout > 0 {
		stmts = append(stmts, "SET SESSION max_execution_time="+strconv.FormatInt(timeout.Milliseconds(), 10))
	}
	return execAll(ctx, conn, stmts)
}

func execAll(ctx context.Context, conn *sql.Conn, stmts []string) error {
	for _, s := range stmts {
		if _, err := conn.ExecContext(ctx, s); err != nil {
			return errors.Wrapf(err, "prepare connection: %s", s)
		}
	}
	return nil
}
