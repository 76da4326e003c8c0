package psql

import (
	"strconv"
	"strings"
)

func (c *compilerContext) Write(s string) (int, error) {
	return c.w.WriteString(s)
}

func (c *compilerContext) WriteString(s string) (int, error) {
	return c.w.WriteString(s)
}

// and joins the non-empty predicates.
func and(preds ...string) string {
	var sb strings.Builder
	for _, p := range preds {
		if p == "" {
			continue
		}
		if sb.Len() != 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString(p)
	}
	return sb.String()
}

// columnAlias names the SQL column at a 0-based position.
func columnAlias(i int) string {
	return "c" + strconv.Itoa(i+1)
}

// identity is the predicate linking a detail row alias to a table of the
// filter view.
func identity(alias, idCol, verCol string) string {
	return alias + ".id=" + filterAlias + "." + idCol + " AND " + alias + ".ver=" + filterAlias + "." + verCol
}
