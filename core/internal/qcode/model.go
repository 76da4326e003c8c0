package qcode

import (
	"github.com/dosco/fxquery/core/internal/sdata"
)

type VersionFilter int

const (
	VersionMax VersionFilter = iota
	VersionLive
	VersionAll
)

func (v VersionFilter) String() string {
	switch v {
	case VersionLive:
		return "live"
	case VersionAll:
		return "all"
	}
	return "max"
}

// TableRef is a table of the FROM clause: a single content table or a
// join of two table references.
type TableRef interface {
	// SingleTables returns the content tables in FROM order.
	SingleTables() []*SingleTable
	tableRef()
}

// SingleTable selects content instances of a type and its subtypes.
type SingleTable struct {
	Alias    string
	Name     string
	BaseType *sdata.Type
	Types    []*sdata.Type
}

func (*SingleTable) tableRef() {}

func (t *SingleTable) SingleTables() []*SingleTable {
	return []*SingleTable{t}
}

// IDColumn is the id column of the table in the filter view.
func (t *SingleTable) IDColumn() string {
	return t.Alias + "_id"
}

// VersionColumn is the version column of the table in the filter view.
func (t *SingleTable) VersionColumn() string {
	return t.Alias + "_ver"
}

func (t *SingleTable) TypeIDs() []int64 {
	ids := make([]int64, len(t.Types))
	for i, ty := range t.Types {
		ids[i] = ty.ID
	}
	return ids
}

// JoinedTable is an inner join of two table references on two columns.
type JoinedTable struct {
	First        TableRef
	Second       TableRef
	FirstColumn  *ColumnRef
	SecondColumn *ColumnRef
}

func (*JoinedTable) tableRef() {}

func (t *JoinedTable) SingleTables() []*SingleTable {
	return append(t.First.SingleTables(), t.Second.SingleTables()...)
}

// PropertyEntry describes where and how a property value is stored.
type PropertyEntry struct {
	Table     sdata.TableType
	TableName string
	DataType  sdata.DataType

	// Property is nil for FX_CONTENT system columns
	Property *sdata.Property

	// Assignments holds the base assignment first and its derived
	// assignments after it. It is empty for system columns and for
	// property-wide references.
	Assignments []*sdata.Assignment

	ReadColumns  []string
	FilterColumn string
	MultiValued  bool
	MultiLang    bool
}

// BaseAssignment returns the first referenced assignment or nil.
func (e *PropertyEntry) BaseAssignment() *sdata.Assignment {
	if len(e.Assignments) == 0 {
		return nil
	}
	return e.Assignments[0]
}

func (e *PropertyEntry) AssignmentIDs() []int64 {
	ids := make([]int64, len(e.Assignments))
	for i, a := range e.Assignments {
		ids[i] = a.ID
	}
	return ids
}

// ColumnRef is a resolved property of a table.
type ColumnRef struct {
	Table *SingleTable
	Name  string
	Entry *PropertyEntry
}

// Alias returns the column label used in error messages.
func (c *ColumnRef) Alias() string {
	if c.Table == nil {
		return c.Name
	}
	return c.Table.Alias + "." + c.Name
}

// Exp is a node of the condition tree: a *Brace or a *Cond.
type Exp interface {
	exp()
}

type Connective int

const (
	OpAnd Connective = iota
	OpOr
)

func (c Connective) String() string {
	if c == OpOr {
		return "OR"
	}
	return "AND"
}

// Brace combines two or more conditions.
type Brace struct {
	Op       Connective
	Children []Exp
}

func (*Brace) exp() {}

type CondKind int

const (
	CondCompare CondKind = iota
	CondLike
	CondIn
	CondNull
	CondContains
	CondTree
)

type Comparator int

const (
	CmpEq Comparator = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
	CmpLike
	CmpNotLike
	CmpIn
	CmpNotIn
	CmpIsNull
	CmpIsNotNull
	CmpContains
	CmpChildOf
	CmpDirectChildOf
)

var comparatorSQL = []string{
	"=", "<>", "<", "<=", ">", ">=",
	" LIKE ", " NOT LIKE ", " IN ", " NOT IN ",
	" IS NULL", " IS NOT NULL",
	"", "", "",
}

// SQL returns the operator text as rendered between column and value.
func (c Comparator) SQL() string {
	return comparatorSQL[c]
}

// Cond is a leaf condition.
type Cond struct {
	Kind       CondKind
	Comparator Comparator

	// Table is the content table the condition restricts. It is nil
	// for legacy searches.
	Table *SingleTable

	// Column is nil for fulltext and tree conditions
	Column *ColumnRef

	// Literals holds SQL encoded values
	Literals []string

	// Upper compares against the upper-case column
	Upper bool

	// Text is the raw fulltext search text
	Text string

	TreeNodes []TreeNode
}

func (*Cond) exp() {}

// TreeNode is a resolved folder of the edit or live tree.
type TreeNode struct {
	ID    int64  `json:"id"`
	Ref   int64  `json:"ref"`
	Live  bool   `json:"live"`
	Left  int64  `json:"left"`
	Right int64  `json:"right"`
	Depth int    `json:"depth"`
	Path  string `json:"path"`
}

type ColumnKind int

const (
	KindColumnReference ColumnKind = iota
	KindRowNumber
	KindObjectPath
	KindParentID
	KindColumnFunction
	KindScore
	KindTypeID
)

// ResultColumn is a column of the result set.
type ResultColumn interface {
	Kind() ColumnKind
	Label() string
}

type ColumnReference struct {
	Ref   *ColumnRef
	Alias string
}

type RowNumber struct {
	Alias string
}

type ObjectPath struct {
	Table *SingleTable
	Alias string
}

type ParentID struct {
	Table *SingleTable
	Alias string
}

type Func int

const (
	FuncUpper Func = iota
	FuncLower
)

type ColumnFunction struct {
	Func  Func
	Ref   *ColumnRef
	Alias string
}

type Score struct {
	Table *SingleTable
	Alias string
}

type TypeID struct {
	Table *SingleTable
	Alias string
}

func (c *ColumnReference) Kind() ColumnKind { return KindColumnReference }
func (c *RowNumber) Kind() ColumnKind       { return KindRowNumber }
func (c *ObjectPath) Kind() ColumnKind      { return KindObjectPath }
func (c *ParentID) Kind() ColumnKind        { return KindParentID }
func (c *ColumnFunction) Kind() ColumnKind  { return KindColumnFunction }
func (c *Score) Kind() ColumnKind           { return KindScore }
func (c *TypeID) Kind() ColumnKind          { return KindTypeID }

func (c *ColumnReference) Label() string { return c.Alias }
func (c *RowNumber) Label() string       { return c.Alias }
func (c *ObjectPath) Label() string      { return c.Alias }
func (c *ParentID) Label() string        { return c.Alias }
func (c *ColumnFunction) Label() string  { return c.Alias }
func (c *Score) Label() string           { return c.Alias }
func (c *TypeID) Label() string          { return c.Alias }

type OrderBy struct {
	Column int
	Desc   bool
}

// Select is a resolved CMIS query.
type Select struct {
	From       TableRef
	Tables     []*SingleTable
	Filter     Exp
	Columns    []ResultColumn
	OrderBy    []OrderBy
	StartRow   int
	MaxRows    int
	Version    VersionFilter
	LanguageID int64
	Ticket     *Ticket

	// Contains holds the fulltext search text per table alias, used by
	// score columns.
	Contains map[string]string
}

// SelectAll is true for queries without conditions on a single table.
func (s *Select) SelectAll() bool {
	return s.Filter == nil && len(s.Tables) == 1
}

// UsesJoins is true when the FROM clause joins tables.
func (s *Select) UsesJoins() bool {
	_, ok := s.From.(*JoinedTable)
	return ok
}

// ScoreColumns returns the indices of all score columns.
func (s *Select) ScoreColumns() []int {
	var idx []int
	for i, c := range s.Columns {
		if c.Kind() == KindScore {
			idx = append(idx, i)
		}
	}
	return idx
}

// Search is a resolved legacy FxSQL search. A nil Filter selects all
// instances of the searched types.
type Search struct {
	// Types is empty when all types are searched
	Types      []*sdata.Type
	Filter     Exp
	MaxRows    int
	Version    VersionFilter
	LanguageID int64
	IgnoreCase bool
	Ticket     *Ticket
}
