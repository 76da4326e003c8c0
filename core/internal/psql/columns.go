//nolint:errcheck
package psql

import (
	"strconv"

	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/dosco/fxquery/core/internal/sdata"
	"github.com/pkg/errors"
)

func (c *compilerContext) renderColumns() error {
	for i, rc := range c.sel.Columns {
		exprs, direct, err := c.columnSQL(rc)
		if err != nil {
			return err
		}

		col := Column{
			Kind:   rc.Kind(),
			Label:  rc.Label(),
			Start:  c.md.width,
			Width:  len(exprs),
			Direct: direct,
		}

		for k, e := range exprs {
			if i != 0 || k != 0 {
				c.w.WriteString(",\n")
			}
			c.w.WriteString(e)
			c.w.WriteString(` AS `)
			c.w.WriteString(columnAlias(c.md.width))
			c.md.width++
		}
		c.md.columns = append(c.md.columns, col)
	}
	return nil
}

func (c *compilerContext) columnSQL(rc qcode.ResultColumn) ([]string, bool, error) {
	switch v := rc.(type) {
	case *qcode.ColumnReference:
		return c.selectProperty(v.Ref)

	case *qcode.ColumnFunction:
		exprs, direct, err := c.selectProperty(v.Ref)
		if err != nil {
			return nil, false, err
		}
		if len(exprs) != 1 || v.Ref.Entry.MultiValued {
			return nil, false, errors.Wrapf(qcode.ErrInvalidQuery,
				"function cannot be applied to %s", v.Ref.Alias())
		}
		fn := "UPPER("
		if v.Func == qcode.FuncLower {
			fn = "LOWER("
		}
		return []string{fn + exprs[0] + ")"}, direct, nil

	case *qcode.RowNumber:
		// numbered by the decoder, the filter view may be paged
		return []string{"0"}, false, nil

	case *qcode.ObjectPath:
		return []string{"(SELECT tr.path FROM " + c.treeTable() + " tr WHERE tr.ref=" +
			filterAlias + "." + v.Table.IDColumn() + " ORDER BY tr.id" + c.dialect.LimitSubquery(1) + ")"}, false, nil

	case *qcode.ParentID:
		tt := c.treeTable()
		return []string{"(SELECT pr.ref FROM " + tt + " tr, " + tt + " pr WHERE tr.ref=" +
			filterAlias + "." + v.Table.IDColumn() + " AND pr.id=tr.parent ORDER BY tr.id" +
			c.dialect.LimitSubquery(1) + ")"}, false, nil

	case *qcode.Score:
		text, ok := c.sel.Contains[v.Table.Alias]
		if !ok || !c.dialect.Capabilities().FulltextScoring {
			return []string{"1"}, false, nil
		}
		return []string{"(SELECT MAX(" + c.dialect.ScoreExpression("sub", text) + ") FROM " +
			sdata.TblFulltext + " sub WHERE " + identity("sub", v.Table.IDColumn(), v.Table.VersionColumn()) +
			")"}, false, nil

	case *qcode.TypeID:
		return []string{"(SELECT sub.tdef FROM " + sdata.TblContent + " sub WHERE " +
			identity("sub", v.Table.IDColumn(), v.Table.VersionColumn()) + ")"}, false, nil
	}
	return nil, false, errors.Wrapf(qcode.ErrInternal, "unexpected result column %T", rc)
}

func (c *compilerContext) treeTable() string {
	if c.sel.Version == qcode.VersionLive {
		return sdata.TblTreeLive
	}
	return sdata.TblTree
}

// selectProperty returns the SQL columns selecting a property value.
// Multi-valued properties a dialect cannot aggregate select the content
// identity instead, the values are loaded after the query.
func (c *compilerContext) selectProperty(ref *qcode.ColumnRef) ([]string, bool, error) {
	t, e := ref.Table, ref.Entry
	idc, verc := t.IDColumn(), t.VersionColumn()
	where := identity("sub", idc, verc)

	switch e.Table {
	case sdata.TableContent:
		switch e.FilterColumn {
		case "id":
			return []string{filterAlias + "." + idc}, false, nil
		case "ver":
			return []string{filterAlias + "." + verc}, false, nil
		}
		return []string{"(SELECT sub." + e.FilterColumn + " FROM " + sdata.TblContent +
			" sub WHERE " + where + ")"}, false, nil

	case sdata.TableContentDataFlat:
		order := ""
		lang := ""
		if e.MultiLang {
			lang = c.dialect.LanguageFilter("sub", c.sel.LanguageID)
			order = " ORDER BY sub.lang DESC"
		}
		return []string{"(SELECT sub." + e.FilterColumn + " FROM " + e.TableName + " sub WHERE " +
			and(where, c.dialect.AssignmentFilter(e.Table, "sub", e.Assignments), lang) +
			order + c.dialect.LimitSubquery(1) + ")"}, false, nil

	case sdata.TableContentData:
		where = and(where,
			c.dialect.AssignmentFilter(e.Table, "sub", e.Assignments),
			c.languageFilter())

		if e.MultiValued {
			if !c.dialect.DirectSelectMultivalued(e) {
				return []string{filterAlias + "." + idc, filterAlias + "." + verc}, false, nil
			}
			return []string{"(SELECT " + c.dialect.MultivaluedConcat("sub."+e.FilterColumn, "sub.pos") +
				" FROM " + sdata.TblContentData + " sub WHERE " + where + ")"}, true, nil
		}

		exprs := make([]string, len(e.ReadColumns))
		for i, col := range e.ReadColumns {
			exprs[i] = "(SELECT sub." + col + " FROM " + sdata.TblContentData + " sub WHERE " + where +
				" ORDER BY sub.ismldef" + c.dialect.LimitSubquery(1) + ")"
		}
		return exprs, false, nil
	}

	return nil, false, errors.Wrapf(qcode.ErrInvalidQuery, "column %s cannot be selected", ref.Alias())
}

// languageFilter selects the value in the result language or the
// default language value.
func (c *compilerContext) languageFilter() string {
	return "(sub.lang=" + strconv.FormatInt(c.sel.LanguageID, 10) + " OR sub.ismldef=true)"
}
