package core

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/dosco/fxquery/core/internal/sdata"
	"github.com/pkg/errors"
)

// ContentEngine loads content instances.
type ContentEngine interface {
	Load(c context.Context, pk PK) (ContentRecord, error)
}

// ContentRecord holds the property values of one content version.
type ContentRecord interface {
	// Value returns the value at an XPath such as /KEYWORDS[2] in the
	// given language, falling back to the default language value.
	Value(xpath string, lang int64) (interface{}, bool)
}

var dataColumns = []string{
	"FTEXT1024", "FCLOB", "FINT", "FBIGINT", "FDOUBLE", "FFLOAT",
	"FBOOL", "FDATE1", "FDATE2", "FSELECT", "FREF", "FBLOB",
}

// SQLContentEngine reads content values from FX_CONTENT_DATA.
type SQLContentEngine struct {
	db     *sql.DB
	schema *sdata.Schema
	ph     sq.PlaceholderFormat
}

func NewSQLContentEngine(db *sql.DB, dbType string, schema *Schema) *SQLContentEngine {
	return &SQLContentEngine{db: db, schema: schema, ph: placeholders(dbType)}
}

func placeholders(dbType string) sq.PlaceholderFormat {
	switch strings.ToLower(dbType) {
	case "postgres", "postgresql":
		return sq.Dollar
	}
	return sq.Question
}

// Load reads all values of a content version.
func (ce *SQLContentEngine) Load(c context.Context, pk PK) (ContentRecord, error) {
	cols := append([]string{"assign", "xpath", "lang", "ismldef"}, dataColumns...)

	query, args, err := sq.Select(cols...).
		From(sdata.TblContentData).
		Where(sq.Eq{"id": pk.ID, "ver": pk.Version}).
		OrderBy("xpath", "lang").
		PlaceholderFormat(ce.ph).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := ce.db.QueryContext(c, query, args...)
	if err != nil {
		return nil, execError(query, err)
	}
	defer rows.Close() //nolint:errcheck

	rec := &Content{PK: pk, values: make(map[string][]langValue)}
	found := false

	for rows.Next() {
		found = true

		var (
			assign  int64
			xpath   string
			lang    int64
			ismldef bool
		)
		data := make([]interface{}, len(dataColumns))
		dest := []interface{}{&assign, &xpath, &lang, &ismldef}
		for i := range data {
			dest = append(dest, &data[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, execError(query, err)
		}

		v, err := ce.value(assign, data)
		if err != nil {
			return nil, errors.WithMessagef(err, "content %s %s", pk, xpath)
		}
		rec.add(xpath, langValue{lang: lang, def: ismldef, value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, execError(query, err)
	}
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "content %s", pk)
	}
	return rec, nil
}

// value picks the column holding the value of the assignment.
func (ce *SQLContentEngine) value(assign int64, data []interface{}) (interface{}, error) {
	a, err := ce.schema.Assignment(assign)
	if err != nil {
		return nil, err
	}
	dt := a.Property().DataType
	rc := dt.ReadColumns()

	idx := func(col string) int {
		for i, c := range dataColumns {
			if c == col {
				return i
			}
		}
		return -1
	}

	if len(rc) == 2 {
		return decodeRange([]interface{}{data[idx(rc[0])], data[idx(rc[1])]})
	}
	if len(rc) == 0 || idx(rc[0]) < 0 {
		return nil, errors.Errorf("no column for data type %s", dt)
	}
	return decodeValue(&qcode.PropertyEntry{Table: sdata.TableContentData, DataType: dt},
		data[idx(rc[0])])
}

type langValue struct {
	lang  int64
	def   bool
	value interface{}
}

// Content is a loaded content version.
type Content struct {
	PK     PK
	values map[string][]langValue
}

func NewContent(pk PK) *Content {
	return &Content{PK: pk, values: make(map[string][]langValue)}
}

// Set stores a value. Language independent values use language 0.
func (ct *Content) Set(xpath string, lang int64, value interface{}) {
	ct.add(xpath, langValue{lang: lang, value: value, def: lang == sdata.SystemLanguage})
}

func (ct *Content) add(xpath string, v langValue) {
	k := strings.ToUpper(xpath)
	ct.values[k] = append(ct.values[k], v)
}

func (ct *Content) Value(xpath string, lang int64) (interface{}, bool) {
	vals, ok := ct.values[strings.ToUpper(xpath)]
	if !ok || len(vals) == 0 {
		return nil, false
	}

	var def *langValue
	for i, v := range vals {
		if v.lang == lang {
			return v.value, true
		}
		if def == nil && (v.def || v.lang == sdata.SystemLanguage) {
			def = &vals[i]
		}
	}
	if def != nil {
		return def.value, true
	}
	return vals[0].value, true
}
