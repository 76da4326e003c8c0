package qcode

// Query is the structured, backend agnostic form of a CMIS query. It is
// produced by the CMIS SQL parser or decoded from YAML/JSON.
type Query struct {
	Select   []Column `yaml:"select" json:"select"`
	From     From     `yaml:"from" json:"from"`
	Where    *Where   `yaml:"where,omitempty" json:"where,omitempty"`
	OrderBy  []Order  `yaml:"order_by,omitempty" json:"order_by,omitempty"`
	Start    int      `yaml:"start,omitempty" json:"start,omitempty"`
	Max      int      `yaml:"max,omitempty" json:"max,omitempty"`
	Version  string   `yaml:"version,omitempty" json:"version,omitempty"`
	Language string   `yaml:"language,omitempty" json:"language,omitempty"`
}

// Column is a selected property, virtual property or function.
type Column struct {
	Table string `yaml:"table,omitempty" json:"table,omitempty"`
	Name  string `yaml:"name,omitempty" json:"name,omitempty"`
	Alias string `yaml:"alias,omitempty" json:"alias,omitempty"`

	// One of SCORE, ROW_NUMBER, UPPER or LOWER
	Func string `yaml:"func,omitempty" json:"func,omitempty"`
}

type From struct {
	Type  string `yaml:"type" json:"type"`
	Alias string `yaml:"alias,omitempty" json:"alias,omitempty"`
	Joins []Join `yaml:"joins,omitempty" json:"joins,omitempty"`
}

type Join struct {
	Type  string     `yaml:"type" json:"type"`
	Alias string     `yaml:"alias,omitempty" json:"alias,omitempty"`
	Left  ColumnName `yaml:"left" json:"left"`
	Right ColumnName `yaml:"right" json:"right"`
}

type ColumnName struct {
	Table string `yaml:"table,omitempty" json:"table,omitempty"`
	Name  string `yaml:"name" json:"name"`
}

// Where is a node of the condition tree. Either And/Or or the
// leaf fields are set.
type Where struct {
	And []*Where `yaml:"and,omitempty" json:"and,omitempty"`
	Or  []*Where `yaml:"or,omitempty" json:"or,omitempty"`

	Table  string   `yaml:"table,omitempty" json:"table,omitempty"`
	Column string   `yaml:"column,omitempty" json:"column,omitempty"`
	Func   string   `yaml:"func,omitempty" json:"func,omitempty"`
	Op     string   `yaml:"op,omitempty" json:"op,omitempty"`
	Value  string   `yaml:"value,omitempty" json:"value,omitempty"`
	Values []string `yaml:"values,omitempty" json:"values,omitempty"`
}

func (w *Where) isBrace() bool {
	return len(w.And) != 0 || len(w.Or) != 0
}

type Order struct {
	Table  string `yaml:"table,omitempty" json:"table,omitempty"`
	Column string `yaml:"column" json:"column"`
	Desc   bool   `yaml:"desc,omitempty" json:"desc,omitempty"`
}

// SearchQuery is the legacy FxSQL search. Column names prefixed with
// '#' reference assignments, '*' is the fulltext index and everything
// else a property.
type SearchQuery struct {
	Types      []string `yaml:"types,omitempty" json:"types,omitempty"`
	Where      *Where   `yaml:"where" json:"where"`
	Max        int      `yaml:"max,omitempty" json:"max,omitempty"`
	Version    string   `yaml:"version,omitempty" json:"version,omitempty"`
	Language   string   `yaml:"language,omitempty" json:"language,omitempty"`
	IgnoreCase bool     `yaml:"ignore_case,omitempty" json:"ignore_case,omitempty"`
}
