package qcode

import (
	"strconv"
	"strings"
	"time"

	"github.com/dosco/fxquery/core/internal/sdata"
	"github.com/pkg/errors"
)

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// checkComparator validates that the comparator can be used with the
// data type of the property.
func checkComparator(e *PropertyEntry, cmp Comparator, column string) error {
	dt := e.DataType

	if e.Table == sdata.TableVirtual {
		return invalidf("property %s cannot be used in conditions", column)
	}

	switch cmp {
	case CmpIsNull, CmpIsNotNull:
		if dt == sdata.DTBinary && cmp == CmpIsNull {
			return invalidf("comparator IS NULL is not supported for binary property %s", column)
		}
		return nil
	}

	switch dt {
	case sdata.DTBinary:
		return invalidf("binary property %s only supports IS NOT NULL", column)

	case sdata.DTSelectMany:
		if cmp != CmpEq && cmp != CmpNe {
			return invalidf("comparator %s is not supported for select-many property %s",
				strings.TrimSpace(cmp.SQL()), column)
		}

	case sdata.DTBoolean:
		if cmp != CmpEq && cmp != CmpNe {
			return invalidf("comparator %s is not supported for boolean property %s",
				strings.TrimSpace(cmp.SQL()), column)
		}
	}

	if (cmp == CmpLike || cmp == CmpNotLike) && !dt.IsText() {
		return invalidf("LIKE is not supported for %s property %s", dt, column)
	}
	return nil
}

// encodeLiteral renders a raw value as an SQL literal for the
// property's data type.
func (co *Compiler) encodeLiteral(e *PropertyEntry, raw string, upper bool) (string, error) {
	switch e.DataType {
	case sdata.DTString1024, sdata.DTText, sdata.DTHTML:
		if upper {
			raw = strings.ToUpper(raw)
		}
		return quote(raw), nil

	case sdata.DTNumber, sdata.DTLargeNumber:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return "", invalidf("invalid number %q", raw)
		}
		return strconv.FormatInt(v, 10), nil

	case sdata.DTDouble, sdata.DTFloat:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return "", invalidf("invalid decimal %q", raw)
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil

	case sdata.DTBoolean:
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return "", invalidf("invalid boolean %q", raw)
		}
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil

	case sdata.DTDate, sdata.DTDateRange:
		t, err := parseTime(raw)
		if err != nil {
			return "", err
		}
		return quote(t.Format("2006-01-02")), nil

	case sdata.DTDateTime, sdata.DTDateTimeRange:
		t, err := parseTime(raw)
		if err != nil {
			return "", err
		}
		if e.Table == sdata.TableContent && sdata.IsMillisColumn(e.FilterColumn) {
			return strconv.FormatInt(t.UnixMilli(), 10), nil
		}
		return quote(t.Format("2006-01-02 15:04:05")), nil

	case sdata.DTSelectOne:
		id, err := co.selectItemID(e, raw)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(id, 10), nil

	case sdata.DTSelectMany:
		var ids []string
		for _, v := range strings.Split(raw, ",") {
			id, err := co.selectItemID(e, v)
			if err != nil {
				return "", err
			}
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		return quote(strings.Join(ids, ",")), nil

	case sdata.DTReference:
		pk, err := ParsePK(raw)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(pk.ID, 10), nil
	}

	return "", invalidf("values of type %s cannot be compared", e.DataType)
}

func (co *Compiler) selectItemID(e *PropertyEntry, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return id, nil
	}
	if e.Property == nil {
		return 0, invalidf("invalid select item %q", raw)
	}
	it, err := co.s.SelectItemByData(e.Property.SelectList, raw)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidQuery, "%v", err)
	}
	return it.ID, nil
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, l := range dateTimeLayouts {
		if t, err := time.Parse(l, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalidf("invalid date %q", raw)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
