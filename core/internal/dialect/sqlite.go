//nolint:errcheck
package dialect

import (
	"strconv"
)

// SQLiteDialect is the generic dialect with LIMIT/OFFSET paging.
type SQLiteDialect struct {
	GenericDialect
}

func (d *SQLiteDialect) Name() string {
	return "sqlite"
}

func (d *SQLiteDialect) Capabilities() Capabilities {
	return Capabilities{Paging: true}
}

func (d *SQLiteDialect) RenderLimit(ctx Context, start, max int) {
	ctx.WriteString(` LIMIT `)
	ctx.WriteString(strconv.Itoa(max))
	if start != 0 {
		ctx.WriteString(` OFFSET `)
		ctx.WriteString(strconv.Itoa(start))
	}
}
