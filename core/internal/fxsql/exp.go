//nolint:errcheck
package fxsql

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/dosco/fxquery/core/internal/sdata"
	"github.com/pkg/errors"
)

// leafBuilder renders a condition as a subquery selecting (id, ver,
// lang). Legacy conditions restrict no table reference.
type leafBuilder struct {
	*compilerContext
}

func (lb *leafBuilder) Leaf(w *bytes.Buffer, c *qcode.Cond) ([]*qcode.SingleTable, error) {
	switch c.Kind {
	case qcode.CondTree:
		lb.renderTree(w, c)
		return nil, nil

	case qcode.CondContains:
		lb.renderContains(w, c)
		return nil, nil
	}

	if c.Column == nil {
		return nil, errors.Wrap(qcode.ErrInternal, "condition without column")
	}
	e := c.Column.Entry

	if c.Comparator == qcode.CmpIsNull && e.Table != sdata.TableContent {
		lb.renderMissing(w, c)
		return nil, nil
	}

	pred, err := predicate(filterColumn(c), c)
	if err != nil {
		return nil, err
	}

	switch e.Table {
	case sdata.TableContent:
		w.WriteString(`SELECT DISTINCT cd.id,cd.ver,` + lb.dialect.EmptyVersion() + ` lang FROM ` +
			sdata.TblContent + ` cd WHERE `)
		w.WriteString(and(pred, lb.contentFilter("cd")))

	case sdata.TableContentData:
		w.WriteString(`(SELECT DISTINCT cd.id,cd.ver,cd.lang FROM ` + sdata.TblContentData + ` cd WHERE `)
		w.WriteString(and(
			pred,
			lb.propertyFilter(e, "cd"),
			lb.dialect.VersionFilter("cd", lb.search.Version),
			lb.dialect.LanguageFilter("cd", lb.search.LanguageID)))

	case sdata.TableContentDataFlat:
		w.WriteString(`(SELECT DISTINCT cd.id,cd.ver,cd.lang FROM ` + e.TableName + ` cd WHERE `)
		w.WriteString(and(
			lb.dialect.AssignmentFilter(e.Table, "cd", e.Assignments),
			pred,
			lb.dialect.VersionFilter("cd", lb.search.Version),
			lb.dialect.LanguageFilter("cd", lb.search.LanguageID)))

	default:
		return nil, errors.Wrapf(qcode.ErrInvalidQuery, "property %s cannot be searched", c.Column.Alias())
	}

	w.WriteString(lb.subqueryLimit())
	w.WriteString(`)`)
	return nil, nil
}

// contentFilter holds the version, deactivated type and inactive
// mandator filters of an FX_CONTENT alias.
func (lb *leafBuilder) contentFilter(alias string) string {
	return and(
		lb.dialect.VersionFilter(alias, lb.search.Version),
		lb.dialect.DeactivatedTypeFilter(alias, lb.s.DeactivatedTypes()),
		lb.dialect.MandatorFilter(alias, lb.s.InactiveMandators()))
}

// propertyFilter restricts detail rows to the referenced assignments, or
// to every assignment of the property.
func (lb *leafBuilder) propertyFilter(e *qcode.PropertyEntry, alias string) string {
	if len(e.Assignments) != 0 {
		return lb.dialect.AssignmentFilter(e.Table, alias, e.Assignments)
	}
	if e.Property == nil {
		return ""
	}
	return alias + ".tprop=" + strconv.FormatInt(e.Property.ID, 10)
}

// renderMissing selects the instances without a detail row for the
// property. Assignment references only consider the assigned type.
func (lb *leafBuilder) renderMissing(w *bytes.Buffer, c *qcode.Cond) {
	e := c.Column.Entry

	col := "tprop"
	if e.Table == sdata.TableContentDataFlat {
		col = e.FilterColumn
	}

	w.WriteString(`(SELECT DISTINCT ct.id,ct.ver,` + lb.dialect.EmptyVersion() + ` lang FROM ` +
		sdata.TblContent + ` ct LEFT JOIN ` + e.TableName + ` da ON (`)
	w.WriteString(and(`ct.id=da.id`, `ct.ver=da.ver`, lb.propertyFilter(e, "da")))
	w.WriteString(`) WHERE `)

	var tdef string
	if a := e.BaseAssignment(); a != nil {
		tdef = `ct.tdef=` + strconv.FormatInt(a.TypeID, 10)
	}
	w.WriteString(and(`da.`+col+` IS NULL`, lb.contentFilter("ct"), tdef))
	w.WriteString(lb.subqueryLimit())
	w.WriteString(`)`)
}

func (lb *leafBuilder) renderContains(w *bytes.Buffer, c *qcode.Cond) {
	w.WriteString(`(SELECT DISTINCT ft.id,ft.ver,ft.lang FROM ` + sdata.TblFulltext + ` ft, ` +
		sdata.TblContent + ` cd WHERE `)
	w.WriteString(and(
		`cd.ver=ft.ver`,
		`cd.id=ft.id`,
		lb.dialect.FulltextPredicate("ft", c.Text),
		lb.dialect.LanguageFilter("ft", lb.search.LanguageID),
		lb.contentFilter("cd")))
	w.WriteString(lb.subqueryLimit())
	w.WriteString(`)`)
}

// renderTree selects the children of a folder. Searches over all
// versions look in both trees, as one parenthesized compound select
// with bare operands.
func (lb *leafBuilder) renderTree(w *bytes.Buffer, c *qcode.Cond) {
	w.WriteString(`(`)
	for i, n := range c.TreeNodes {
		if i != 0 {
			w.WriteString("\n UNION \n")
		}
		table, version := sdata.TblTree, qcode.VersionMax
		if n.Live {
			table, version = sdata.TblTreeLive, qcode.VersionLive
		}

		sub := `cd.id IN (SELECT tr.ref FROM ` + table + ` tr WHERE tr.lft>` +
			strconv.FormatInt(n.Left, 10) + ` AND tr.rgt<` + strconv.FormatInt(n.Right, 10) +
			` AND tr.ref IS NOT NULL`
		if c.Comparator == qcode.CmpDirectChildOf {
			sub += ` AND tr.depth=` + strconv.Itoa(n.Depth+1)
		}
		sub += `)`

		w.WriteString(`SELECT DISTINCT cd.id,cd.ver,` + lb.dialect.EmptyVersion() + ` lang FROM ` +
			sdata.TblContent + ` cd WHERE `)
		w.WriteString(and(
			sub,
			lb.dialect.MandatorFilter("cd", lb.s.InactiveMandators()),
			lb.dialect.DeactivatedTypeFilter("cd", lb.s.DeactivatedTypes()),
			lb.dialect.VersionFilter("cd", version)))
	}
	w.WriteString(`)`)
}

func filterColumn(c *qcode.Cond) string {
	e := c.Column.Entry
	col := "cd." + e.FilterColumn

	if !c.Upper {
		return col
	}
	if e.Table == sdata.TableContentData {
		if uc := e.DataType.UpperColumn(); uc != "" {
			return "cd." + uc
		}
	}
	return "UPPER(" + col + ")"
}

func predicate(col string, c *qcode.Cond) (string, error) {
	switch c.Kind {
	case qcode.CondCompare, qcode.CondLike:
		if len(c.Literals) != 1 {
			return "", errors.Wrapf(qcode.ErrInternal, "comparison with %d values", len(c.Literals))
		}
		return col + c.Comparator.SQL() + c.Literals[0], nil

	case qcode.CondIn:
		return col + c.Comparator.SQL() + "(" + strings.Join(c.Literals, ",") + ")", nil

	case qcode.CondNull:
		return col + c.Comparator.SQL(), nil
	}
	return "", errors.Wrapf(qcode.ErrInternal, "unexpected condition kind %d", c.Kind)
}
