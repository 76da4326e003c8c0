package core

import (
	"context"
)

// execute runs a statement on its own connection and returns the raw
// rows. The first skip rows are dropped and at most limit rows are
// collected, a negative limit collects all rows.
func (e *engine) execute(c context.Context, query string, skip, limit int) (data [][]interface{}, err error) {
	if e.db == nil {
		return nil, execError(query, ErrNoDatabase)
	}

	c, span := e.spanStart(c, "Execute SQL")
	defer span.End()

	timeout := e.conf.queryTimeout()
	c, cancel := context.WithTimeout(c, timeout)
	defer cancel()

	conn, err := e.db.Conn(c)
	if err != nil {
		return nil, execError(query, err)
	}
	defer conn.Close() //nolint:errcheck

	if err = e.dialect().PrepareConnection(c, conn, timeout); err != nil {
		return nil, execError(query, err)
	}

	st, err := conn.PrepareContext(c, query)
	if err != nil {
		return nil, execError(query, err)
	}
	defer st.Close() //nolint:errcheck

	rows, err := st.QueryContext(c)
	if err != nil {
		return nil, execError(query, err)
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, execError(query, err)
	}

	for n := 0; rows.Next(); n++ {
		if n < skip {
			continue
		}
		if limit >= 0 && len(data) >= limit {
			break
		}

		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err = rows.Scan(ptrs...); err != nil {
			return nil, execError(query, err)
		}
		data = append(data, vals)
	}

	if err = rows.Err(); err != nil {
		return nil, execError(query, err)
	}
	return data, nil
}
