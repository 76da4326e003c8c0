// Package cmisql parses the text form of CMIS queries. Identifiers
// containing a colon, like cmis:objectId, must be back-quoted.
//
//	SELECT a.caption, SCORE() FROM article a WHERE CONTAINS(a, 'text')
//	ORDER BY a.caption LIMIT 10 OFFSET 20
package cmisql

import (
	"strconv"
	"strings"

	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/pkg/errors"
	"github.com/xwb1989/sqlparser"
)

// Parse converts a CMIS SQL statement into a query.
func Parse(text string) (*qcode.Query, error) {
	stmt, err := sqlparser.Parse(text)
	if err != nil {
		return nil, errors.Wrap(qcode.ErrInvalidQuery, err.Error())
	}

	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, invalidf("only SELECT statements are supported")
	}
	if sel.Distinct != "" || len(sel.GroupBy) != 0 || sel.Having != nil {
		return nil, invalidf("DISTINCT, GROUP BY and HAVING are not supported")
	}

	q := &qcode.Query{}

	if err := parseFrom(q, sel.From); err != nil {
		return nil, err
	}
	if err := parseColumns(q, sel.SelectExprs); err != nil {
		return nil, err
	}

	if sel.Where != nil {
		if q.Where, err = parseWhere(sel.Where.Expr); err != nil {
			return nil, err
		}
	}

	for _, o := range sel.OrderBy {
		col, ok := o.Expr.(*sqlparser.ColName)
		if !ok {
			return nil, invalidf("order by %s is not a column", sqlparser.String(o.Expr))
		}
		q.OrderBy = append(q.OrderBy, qcode.Order{
			Table:  col.Qualifier.Name.String(),
			Column: col.Name.String(),
			Desc:   o.Direction == sqlparser.DescScr,
		})
	}

	if sel.Limit != nil {
		if q.Max, err = intValue(sel.Limit.Rowcount); err != nil {
			return nil, err
		}
		if sel.Limit.Offset != nil {
			if q.Start, err = intValue(sel.Limit.Offset); err != nil {
				return nil, err
			}
		}
	}
	return q, nil
}

func invalidf(format string, args ...interface{}) error {
	return errors.Wrapf(qcode.ErrInvalidQuery, format, args...)
}

func parseFrom(q *qcode.Query, from sqlparser.TableExprs) error {
	if len(from) != 1 {
		return invalidf("exactly one FROM clause is required")
	}
	return parseTableExpr(q, from[0])
}

func parseTableExpr(q *qcode.Query, te sqlparser.TableExpr) error {
	switch v := te.(type) {
	case *sqlparser.AliasedTableExpr:
		name, ok := v.Expr.(sqlparser.TableName)
		if !ok {
			return invalidf("subqueries are not supported")
		}
		if q.From.Type != "" {
			return invalidf("table %s must be joined", name.Name.String())
		}
		q.From.Type = name.Name.String()
		q.From.Alias = v.As.String()
		return nil

	case *sqlparser.ParenTableExpr:
		if len(v.Exprs) != 1 {
			return invalidf("exactly one table is required in parentheses")
		}
		return parseTableExpr(q, v.Exprs[0])

	case *sqlparser.JoinTableExpr:
		if v.Join != sqlparser.JoinStr {
			return invalidf("%s is not supported, use JOIN", strings.ToUpper(v.Join))
		}
		if err := parseTableExpr(q, v.LeftExpr); err != nil {
			return err
		}

		right, ok := v.RightExpr.(*sqlparser.AliasedTableExpr)
		if !ok {
			return invalidf("the right side of a join must be a table")
		}
		name, ok := right.Expr.(sqlparser.TableName)
		if !ok {
			return invalidf("subqueries are not supported")
		}

		on, ok := v.Condition.On.(*sqlparser.ComparisonExpr)
		if !ok || on.Operator != sqlparser.EqualStr {
			return invalidf("join condition must compare two columns with =")
		}
		left, lok := on.Left.(*sqlparser.ColName)
		rightCol, rok := on.Right.(*sqlparser.ColName)
		if !lok || !rok {
			return invalidf("join condition must compare two columns with =")
		}

		q.From.Joins = append(q.From.Joins, qcode.Join{
			Type:  name.Name.String(),
			Alias: right.As.String(),
			Left:  columnName(left),
			Right: columnName(rightCol),
		})
		return nil
	}
	return invalidf("unsupported table expression %s", sqlparser.String(te))
}

func columnName(c *sqlparser.ColName) qcode.ColumnName {
	return qcode.ColumnName{Table: c.Qualifier.Name.String(), Name: c.Name.String()}
}

func parseColumns(q *qcode.Query, exprs sqlparser.SelectExprs) error {
	for _, se := range exprs {
		ae, ok := se.(*sqlparser.AliasedExpr)
		if !ok {
			return invalidf("%s cannot be selected, name the columns", sqlparser.String(se))
		}
		col := qcode.Column{Alias: ae.As.String()}

		switch v := ae.Expr.(type) {
		case *sqlparser.ColName:
			col.Table = v.Qualifier.Name.String()
			col.Name = v.Name.String()

		case *sqlparser.FuncExpr:
			col.Func = strings.ToUpper(v.Name.String())
			args, err := funcArgs(v)
			if err != nil {
				return err
			}

			switch col.Func {
			case "SCORE", "ROW_NUMBER":
				if len(args) > 1 {
					return invalidf("%s takes at most one table", col.Func)
				}
				if len(args) == 1 {
					c, ok := args[0].(*sqlparser.ColName)
					if !ok {
						return invalidf("%s takes a table alias", col.Func)
					}
					col.Table = c.Name.String()
				}
			default:
				if len(args) != 1 {
					return invalidf("%s takes one column", col.Func)
				}
				c, ok := args[0].(*sqlparser.ColName)
				if !ok {
					return invalidf("%s takes a column", col.Func)
				}
				col.Table = c.Qualifier.Name.String()
				col.Name = c.Name.String()
			}

		default:
			return invalidf("%s cannot be selected", sqlparser.String(ae.Expr))
		}

		q.Select = append(q.Select, col)
	}
	return nil
}

func funcArgs(f *sqlparser.FuncExpr) ([]sqlparser.Expr, error) {
	args := make([]sqlparser.Expr, 0, len(f.Exprs))
	for _, se := range f.Exprs {
		ae, ok := se.(*sqlparser.AliasedExpr)
		if !ok {
			return nil, invalidf("invalid argument of %s", f.Name.String())
		}
		args = append(args, ae.Expr)
	}
	return args, nil
}

// parseWhere converts a boolean expression. Chains of the same
// connective are flattened into one brace.
func parseWhere(e sqlparser.Expr) (*qcode.Where, error) {
	switch v := e.(type) {
	case *sqlparser.ParenExpr:
		return parseWhere(v.Expr)

	case *sqlparser.AndExpr:
		return brace(v.Left, v.Right, true)

	case *sqlparser.OrExpr:
		return brace(v.Left, v.Right, false)

	case *sqlparser.ComparisonExpr:
		return parseComparison(v)

	case *sqlparser.IsExpr:
		w, err := operand(v.Expr)
		if err != nil {
			return nil, err
		}
		switch v.Operator {
		case sqlparser.IsNullStr, sqlparser.IsNotNullStr:
			w.Op = v.Operator
			return w, nil
		}
		return nil, invalidf("%s is not supported", strings.ToUpper(v.Operator))

	case *sqlparser.FuncExpr:
		return parsePredicateFunc(v)
	}
	return nil, invalidf("unsupported condition %s", sqlparser.String(e))
}

func brace(left, right sqlparser.Expr, and bool) (*qcode.Where, error) {
	w := &qcode.Where{}
	for _, e := range []sqlparser.Expr{left, right} {
		c, err := parseWhere(e)
		if err != nil {
			return nil, err
		}
		switch {
		case and && len(c.And) != 0:
			w.And = append(w.And, c.And...)
		case !and && len(c.Or) != 0:
			w.Or = append(w.Or, c.Or...)
		case and:
			w.And = append(w.And, c)
		default:
			w.Or = append(w.Or, c)
		}
	}
	return w, nil
}

func parseComparison(c *sqlparser.ComparisonExpr) (*qcode.Where, error) {
	w, err := operand(c.Left)
	if err != nil {
		return nil, err
	}
	if c.Escape != nil {
		return nil, invalidf("LIKE ... ESCAPE is not supported")
	}

	switch c.Operator {
	case sqlparser.EqualStr, sqlparser.NotEqualStr, sqlparser.LessThanStr, sqlparser.LessEqualStr,
		sqlparser.GreaterThanStr, sqlparser.GreaterEqualStr, sqlparser.LikeStr, sqlparser.NotLikeStr:
		w.Op = c.Operator
		if w.Value, err = literal(c.Right); err != nil {
			return nil, err
		}

	case sqlparser.InStr, sqlparser.NotInStr:
		w.Op = c.Operator
		tuple, ok := c.Right.(sqlparser.ValTuple)
		if !ok {
			return nil, invalidf("%s requires a list of values", strings.ToUpper(c.Operator))
		}
		for _, e := range tuple {
			v, err := literal(e)
			if err != nil {
				return nil, err
			}
			w.Values = append(w.Values, v)
		}

	default:
		return nil, invalidf("operator %s is not supported", c.Operator)
	}
	return w, nil
}

// operand returns the leaf condition of a column, optionally wrapped in
// UPPER.
func operand(e sqlparser.Expr) (*qcode.Where, error) {
	switch v := e.(type) {
	case *sqlparser.ColName:
		return &qcode.Where{Table: v.Qualifier.Name.String(), Column: v.Name.String()}, nil

	case *sqlparser.FuncExpr:
		args, err := funcArgs(v)
		if err != nil {
			return nil, err
		}
		if len(args) == 1 {
			if c, ok := args[0].(*sqlparser.ColName); ok {
				return &qcode.Where{
					Table:  c.Qualifier.Name.String(),
					Column: c.Name.String(),
					Func:   strings.ToUpper(v.Name.String()),
				}, nil
			}
		}
	}
	return nil, invalidf("%s must be a column", sqlparser.String(e))
}

// parsePredicateFunc handles CONTAINS, IN_FOLDER and IN_TREE with an
// optional leading table alias.
func parsePredicateFunc(f *sqlparser.FuncExpr) (*qcode.Where, error) {
	name := strings.ToUpper(f.Name.String())
	switch name {
	case "CONTAINS", "IN_FOLDER", "IN_TREE":
	default:
		return nil, invalidf("function %s cannot be used as a condition", name)
	}

	args, err := funcArgs(f)
	if err != nil {
		return nil, err
	}

	w := &qcode.Where{Op: name}
	switch len(args) {
	case 2:
		c, ok := args[0].(*sqlparser.ColName)
		if !ok {
			return nil, invalidf("%s takes a table alias as first argument", name)
		}
		w.Table = c.Name.String()
		args = args[1:]
	case 1:
	default:
		return nil, invalidf("%s takes one or two arguments", name)
	}

	if w.Value, err = literal(args[0]); err != nil {
		return nil, err
	}
	return w, nil
}

func literal(e sqlparser.Expr) (string, error) {
	switch v := e.(type) {
	case *sqlparser.SQLVal:
		switch v.Type {
		case sqlparser.StrVal, sqlparser.IntVal, sqlparser.FloatVal:
			return string(v.Val), nil
		}
	case sqlparser.BoolVal:
		return strconv.FormatBool(bool(v)), nil
	case *sqlparser.UnaryExpr:
		if v.Operator == sqlparser.UMinusStr {
			s, err := literal(v.Expr)
			if err != nil {
				return "", err
			}
			return "-" + s, nil
		}
	}
	return "", invalidf("%s is not a literal", sqlparser.String(e))
}

func intValue(e sqlparser.Expr) (int, error) {
	s, err := literal(e)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, invalidf("%s is not a row count", s)
	}
	return n, nil
}
