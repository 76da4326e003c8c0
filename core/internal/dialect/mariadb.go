package dialect

import (
	"context"
	"database/sql"
	"strconv"
	"time"
)

// MariaDBDialect embeds MySQLDialect. MariaDB names its statement
// timeout differently and expects it in seconds.
type MariaDBDialect struct {
	MySQLDialect
}

func (d *MariaDBDialect) Name() string {
	return "mariadb"
}

func (d *MariaDBDialect) PrepareConnection(ctx context.Context, conn *sql.Conn, timeout time.Duration) error {
	stmts := []string{
		"SET SESSION group_concat_max_len=" + strconv.Itoa(groupConcatMaxLen),
	}
	if timeout > 0 {
		stmts = append(stmts, "SET SESSION max_statement_time="+
			strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64))
	}
	return execAll(ctx, conn, stmts)
}
