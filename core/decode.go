package core

import (
	"strconv"
	"strings"
	"time"

	"github.com/dosco/fxquery/core/internal/psql"
	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/dosco/fxquery/core/internal/sdata"
	"github.com/pkg/errors"
)

// field is one result column of one row as read from the database.
type field struct {
	rc   qcode.ResultColumn
	col  psql.Column
	vals []interface{}
	row  int
}

type decoder struct {
	sel *qcode.Select
	sep string
}

type decodeFunc func(d *decoder, f field) (interface{}, error)

var decoders = map[qcode.ColumnKind]decodeFunc{
	qcode.KindColumnReference: decodeProperty,
	qcode.KindColumnFunction:  decodeProperty,
	qcode.KindRowNumber:       decodeRowNumber,
	qcode.KindObjectPath:      decodeString,
	qcode.KindParentID:        decodeInt,
	qcode.KindScore:           decodeScore,
	qcode.KindTypeID:          decodeInt,
}

// decode maps the raw rows to the typed values of the result columns.
func (e *engine) decode(st *stmt, rows [][]interface{}) (*Result, error) {
	sel, cols := st.sel, st.md.Columns()
	if len(cols) != len(sel.Columns) {
		return nil, errors.Wrapf(ErrInternal, "%d result columns but %d decoders",
			len(sel.Columns), len(cols))
	}

	d := &decoder{sel: sel, sep: e.dialect().MultivaluedSeparator()}
	res := &Result{
		columns: make([]string, len(cols)),
		rows:    make([][]interface{}, 0, len(rows)),
	}
	for i, rc := range sel.Columns {
		res.columns[i] = rc.Label()
	}

	for n, raw := range rows {
		if len(raw) < st.md.Width() {
			return nil, errors.Wrapf(ErrInternal, "row has %d columns, expected %d", len(raw), st.md.Width())
		}

		row := make([]interface{}, len(cols))
		for i, col := range cols {
			fn, ok := decoders[col.Kind]
			if !ok {
				return nil, errors.Wrapf(ErrInternal, "no decoder for column %s", col.Label)
			}
			v, err := fn(d, field{
				rc:   sel.Columns[i],
				col:  col,
				vals: raw[col.Start : col.Start+col.Width],
				row:  n,
			})
			if err != nil {
				return nil, errors.WithMessagef(err, "column %s", col.Label)
			}
			row[i] = v
		}
		res.rows = append(res.rows, row)
	}
	return res, nil
}

func decodeRowNumber(d *decoder, f field) (interface{}, error) {
	return int64(d.sel.StartRow + f.row + 1), nil
}

func decodeString(d *decoder, f field) (interface{}, error) {
	if f.vals[0] == nil {
		return nil, nil
	}
	return toString(f.vals[0]), nil
}

func decodeInt(d *decoder, f field) (interface{}, error) {
	if f.vals[0] == nil {
		return nil, nil
	}
	return toInt64(f.vals[0])
}

func decodeScore(d *decoder, f field) (interface{}, error) {
	if f.vals[0] == nil {
		return float64(0), nil
	}
	return toFloat64(f.vals[0])
}

func decodeProperty(d *decoder, f field) (interface{}, error) {
	var ref *qcode.ColumnRef

	switch v := f.rc.(type) {
	case *qcode.ColumnReference:
		ref = v.Ref
	case *qcode.ColumnFunction:
		ref = v.Ref
	default:
		return nil, errors.Wrapf(ErrInternal, "unexpected property column %T", f.rc)
	}
	e := ref.Entry

	if e.MultiValued {
		if f.col.Direct {
			return splitValues(e, f.vals[0], d.sep)
		}
		// a placeholder, replaced by the post-processor
		if len(f.vals) != 2 {
			return nil, errors.Wrapf(ErrInternal, "multi-valued column %s has width %d", ref.Alias(), len(f.vals))
		}
		if f.vals[0] == nil {
			return nil, nil
		}
		id, err := toInt64(f.vals[0])
		if err != nil {
			return nil, err
		}
		ver, err := toInt64(f.vals[1])
		if err != nil {
			return nil, err
		}
		return qcode.PK{ID: id, Version: int(ver)}, nil
	}

	if len(f.vals) == 2 {
		return decodeRange(f.vals)
	}
	return decodeValue(e, f.vals[0])
}

// decodeValue converts a database value to the Go type of the data type.
func decodeValue(e *qcode.PropertyEntry, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	switch e.DataType {
	case sdata.DTString1024, sdata.DTText, sdata.DTHTML, sdata.DTSelectMany:
		return toString(v), nil

	case sdata.DTNumber, sdata.DTLargeNumber, sdata.DTSelectOne, sdata.DTBinary:
		return toInt64(v)

	case sdata.DTDouble, sdata.DTFloat:
		return toFloat64(v)

	case sdata.DTBoolean:
		return toBool(v)

	case sdata.DTDate, sdata.DTDateTime:
		if e.Table == sdata.TableContent && sdata.IsMillisColumn(e.FilterColumn) {
			ms, err := toInt64(v)
			if err != nil {
				return nil, err
			}
			return time.UnixMilli(ms).UTC(), nil
		}
		return toTime(v)

	case sdata.DTReference:
		id, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return qcode.PK{ID: id}, nil
	}
	return v, nil
}

func decodeRange(vals []interface{}) (interface{}, error) {
	if vals[0] == nil && vals[1] == nil {
		return nil, nil
	}
	var r DateRange
	var err error

	if vals[0] != nil {
		if r.From, err = toTime(vals[0]); err != nil {
			return nil, err
		}
	}
	if vals[1] != nil {
		if r.To, err = toTime(vals[1]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func splitValues(e *qcode.PropertyEntry, v interface{}, sep string) (interface{}, error) {
	if v == nil {
		return []interface{}{}, nil
	}
	s := toString(v)
	if s == "" {
		return []interface{}{}, nil
	}

	parts := strings.Split(s, sep)
	vals := make([]interface{}, len(parts))
	for i, p := range parts {
		val, err := decodeValue(e, p)
		if err != nil {
			return nil, err
		}
		vals[i] = val
	}
	return vals, nil
}

func toString(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	}
	return ""
}

func toInt64(v interface{}) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string, []byte:
		n, err := strconv.ParseInt(strings.TrimSpace(toString(v)), 10, 64)
		if err != nil {
			return 0, errors.Wrap(err, "integer value")
		}
		return n, nil
	}
	return 0, errors.Errorf("cannot convert %T to an integer", v)
}

func toFloat64(v interface{}) (float64, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string, []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(toString(v)), 64)
		if err != nil {
			return 0, errors.Wrap(err, "float value")
		}
		return f, nil
	}
	return 0, errors.Errorf("cannot convert %T to a float", v)
}

func toBool(v interface{}) (bool, error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case string, []byte:
		s := strings.ToLower(strings.TrimSpace(toString(v)))
		switch s {
		case "1", "t", "true":
			return true, nil
		case "0", "f", "false":
			return false, nil
		}
		return false, errors.Errorf("invalid boolean %q", s)
	}
	return false, errors.Errorf("cannot convert %T to a boolean", v)
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func toTime(v interface{}) (time.Time, error) {
	switch v := v.(type) {
	case time.Time:
		return v, nil
	case string, []byte:
		s := strings.TrimSpace(toString(v))
		for _, l := range timeLayouts {
			if t, err := time.Parse(l, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, errors.Errorf("invalid date %q", s)
	}
	return time.Time{}, errors.Errorf("cannot convert %T to a date", v)
}
