//nolint:errcheck
package psql

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/dosco/fxquery/core/internal/sdata"
	"github.com/pkg/errors"
)

// leafBuilder renders a condition as a subquery selecting the (id,
// version) columns of the table it restricts. Columns of the other
// tables are filled with placeholders so all subqueries of a condition
// table have the same shape.
type leafBuilder struct {
	*compilerContext
	tables *visitor
}

func (lb *leafBuilder) Leaf(w *bytes.Buffer, c *qcode.Cond) ([]*qcode.SingleTable, error) {
	if c.Table == nil {
		return nil, errors.Wrap(qcode.ErrInternal, "condition without table")
	}
	alias, err := lb.tables.Alias(c.Table)
	if err != nil {
		return nil, err
	}

	w.WriteString(`(SELECT DISTINCT `)
	w.WriteString(lb.tables.SelectForSingleTable(c.Table, alias))
	w.WriteString(` FROM `)

	switch c.Kind {
	case qcode.CondContains:
		lb.renderContains(w, c, alias)
	case qcode.CondTree:
		lb.renderTree(w, c, alias)
	default:
		if err := lb.renderCompare(w, c, alias); err != nil {
			return nil, err
		}
	}

	w.WriteString(`)`)
	return []*qcode.SingleTable{c.Table}, nil
}

// contentFilter limits an alias of the main content table to the types
// of a table and the selected versions.
func (lb *leafBuilder) contentFilter(t *qcode.SingleTable, alias string) string {
	return and(
		lb.dialect.TypeFilter(alias+".tdef", t.TypeIDs()),
		lb.dialect.VersionFilter(alias, lb.sel.Version))
}

func (lb *leafBuilder) renderCompare(w *bytes.Buffer, c *qcode.Cond, alias string) error {
	e := c.Column.Entry

	if c.Comparator == qcode.CmpIsNull && e.Table != sdata.TableContent {
		lb.renderMissing(w, c, alias)
		return nil
	}

	w.WriteString(e.TableName + ` ` + alias + ` WHERE `)

	pred, err := predicate(filterColumn(c, alias), c)
	if err != nil {
		return err
	}

	if e.Table == sdata.TableContent {
		w.WriteString(and(pred, lb.contentFilter(c.Table, alias)))
		return nil
	}

	w.WriteString(and(
		pred,
		lb.dialect.AssignmentFilter(e.Table, alias, e.Assignments),
		lb.dialect.VersionFilter(alias, lb.sel.Version)))
	return nil
}

// renderMissing selects the instances without a value for a property.
func (lb *leafBuilder) renderMissing(w *bytes.Buffer, c *qcode.Cond, alias string) {
	e := c.Column.Entry
	d := alias + "_d"

	w.WriteString(sdata.TblContent + ` ` + alias + ` WHERE `)
	w.WriteString(and(
		lb.contentFilter(c.Table, alias),
		`NOT EXISTS (SELECT 1 FROM `+e.TableName+` `+d+` WHERE `+and(
			d+`.id=`+alias+`.id`,
			d+`.ver=`+alias+`.ver`,
			lb.dialect.AssignmentFilter(e.Table, d, e.Assignments))+`)`))
}

func (lb *leafBuilder) renderContains(w *bytes.Buffer, c *qcode.Cond, alias string) {
	ft := alias + "_ft"

	w.WriteString(sdata.TblFulltext + ` ` + ft + `, ` + sdata.TblContent + ` ` + alias + ` WHERE `)
	w.WriteString(and(
		ft+`.id=`+alias+`.id`,
		ft+`.ver=`+alias+`.ver`,
		lb.dialect.FulltextPredicate(ft, c.Text),
		lb.contentFilter(c.Table, alias)))
}

func (lb *leafBuilder) renderTree(w *bytes.Buffer, c *qcode.Cond, alias string) {
	w.WriteString(sdata.TblContent + ` ` + alias + ` WHERE `)
	w.WriteString(and(
		treeFilter(alias+".id", c),
		lb.contentFilter(c.Table, alias)))
}

// treeFilter restricts a content id column to the children of the
// resolved folders. Folders of both trees are OR-ed.
func treeFilter(column string, c *qcode.Cond) string {
	terms := make([]string, len(c.TreeNodes))

	for i, n := range c.TreeNodes {
		table := sdata.TblTree
		if n.Live {
			table = sdata.TblTreeLive
		}
		t := column + ` IN (SELECT tr.ref FROM ` + table + ` tr WHERE tr.lft>` +
			strconv.FormatInt(n.Left, 10) + ` AND tr.rgt<` + strconv.FormatInt(n.Right, 10) +
			` AND tr.ref IS NOT NULL`
		if c.Comparator == qcode.CmpDirectChildOf {
			t += ` AND tr.depth=` + strconv.Itoa(n.Depth+1)
		}
		terms[i] = t + `)`
	}

	if len(terms) == 1 {
		return terms[0]
	}
	return `(` + strings.Join(terms, ` OR `) + `)`
}

func filterColumn(c *qcode.Cond, alias string) string {
	e := c.Column.Entry
	col := alias + "." + e.FilterColumn

	if !c.Upper {
		return col
	}
	if e.Table == sdata.TableContentData {
		if uc := e.DataType.UpperColumn(); uc != "" {
			return alias + "." + uc
		}
	}
	return "UPPER(" + col + ")"
}

// predicate compares a column with the encoded literals of a condition.
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
