package core

import (
	"context"

	"github.com/dosco/fxquery/core/internal/fxsql"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

func (e *engine) search(c context.Context, q *SearchQuery, t *Ticket) (res *SearchResult, err error) {
	id := xid.New().String()
	log := e.log.With(zap.String("request_id", id))

	c, span := e.spanStart(c, "Execute Search")
	span.SetAttributesString(StringAttr{Name: "request.id", Value: id})
	defer func() {
		if err != nil {
			span.Error(err)
		}
		span.End()
	}()

	st, err := e.compileSearch(c, q, t)
	if err != nil {
		return nil, err
	}
	if e.conf.Debug {
		log.Debug("compiled search", zap.String("sql", st.sql))
	}

	// one row past the maximum marks the result truncated
	max := st.search.MaxRows
	limit := -1
	if max >= 0 {
		limit = max + 1
	}

	rows, err := e.execute(c, st.sql, 0, limit)
	if err != nil {
		log.Error("search failed", zap.Error(err))
		return nil, err
	}

	res = &SearchResult{
		entries: make([]SearchEntry, 0, len(rows)),
		counts:  make(map[int64]int),
		sql:     st.sql,
	}

	for i, row := range rows {
		if max >= 0 && i >= max {
			res.truncated = true
			break
		}
		if len(row) < len(fxsql.Columns) {
			return nil, errors.Wrapf(ErrInternal, "search row has %d columns", len(row))
		}

		var vals [4]int64
		for k := range vals {
			if row[k] == nil {
				continue
			}
			if vals[k], err = toInt64(row[k]); err != nil {
				return nil, errors.WithMessagef(err, "search column %s", fxsql.Columns[k])
			}
		}

		ent := SearchEntry{
			PK:        PK{ID: vals[0], Version: int(vals[1])},
			TypeID:    vals[2],
			CreatedBy: vals[3],
		}
		res.entries = append(res.entries, ent)
		res.counts[ent.TypeID]++
	}
	return res, nil
}
