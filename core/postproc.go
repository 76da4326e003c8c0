package core

import (
	"context"
	"strconv"

	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/pkg/errors"
)

// postProcess normalizes scores and replaces multi-valued placeholders
// by the values of the referenced content.
func (e *engine) postProcess(c context.Context, st *stmt, res *Result) error {
	c, span := e.spanStart(c, "Post Process")
	defer span.End()

	if !e.dialect().Capabilities().NormalizedFulltextScore {
		normalizeScores(st.sel.ScoreColumns(), res.rows)
	}

	cols := st.md.Columns()
	var mv []int
	for i, col := range cols {
		if col.Kind != qcode.KindColumnReference || col.Direct {
			continue
		}
		ref := st.sel.Columns[i].(*qcode.ColumnReference).Ref
		if ref.Entry.MultiValued {
			mv = append(mv, i)
		}
	}
	if len(mv) == 0 {
		return nil
	}

	if e.content == nil {
		return errors.Wrap(ErrInternal, "multi-valued columns need a content engine")
	}

	// content loaded once per instance for this result only
	loaded := make(map[qcode.PK]ContentRecord)

	for _, row := range res.rows {
		for _, i := range mv {
			if row[i] == nil {
				continue
			}
			pk, ok := row[i].(qcode.PK)
			if !ok {
				err := errors.Wrapf(ErrInternal, "column %s holds %T instead of a content reference",
					cols[i].Label, row[i])
				span.Error(err)
				return err
			}

			rec, ok := loaded[pk]
			if !ok {
				var err error
				if rec, err = e.content.Load(c, pk); err != nil {
					return errors.WithMessagef(err, "loading content %s", pk)
				}
				loaded[pk] = rec
			}

			ref := st.sel.Columns[i].(*qcode.ColumnReference).Ref
			vals, err := multiValues(rec, ref.Entry, st.sel.LanguageID)
			if err != nil {
				return err
			}
			row[i] = vals
		}
	}
	return nil
}

// multiValues collects the values at /ALIAS[1], /ALIAS[2], ... until
// the first missing index.
func multiValues(rec ContentRecord, e *qcode.PropertyEntry, lang int64) ([]interface{}, error) {
	a := e.BaseAssignment()
	if a == nil {
		return nil, errors.Wrap(ErrInternal, "multi-valued column without assignment")
	}

	vals := []interface{}{}
	xp := a.XPath()
	for n := 1; ; n++ {
		v, ok := rec.Value(xp+"["+strconv.Itoa(n)+"]", lang)
		if !ok {
			break
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// normalizeScores rescales scores to 0..1 by dividing through the
// highest score of the fetched rows. Scores are therefore relative to
// the page, not to the whole result.
func normalizeScores(cols []int, rows [][]interface{}) {
	for _, i := range cols {
		max := 0.0
		for _, row := range rows {
			if v, ok := row[i].(float64); ok && v > max {
				max = v
			}
		}
		if max <= 0 {
			continue
		}
		for _, row := range rows {
			if v, ok := row[i].(float64); ok {
				row[i] = min(1.0, v/max)
			}
		}
	}
}
