package sdata

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Storage tables of the content repository.
const (
	TblContent     = "FX_CONTENT"
	TblContentData = "FX_CONTENT_DATA"
	TblFulltext    = "FX_CONTENT_DATA_FT"
	TblContentACLs = "FX_CONTENT_ACLS"
	TblTree        = "FXS_TREE"
	TblTreeLive    = "FXS_TREE_LIVE"
	TblFlatStorage = "FX_FLAT_STORAGE"
)

// SystemLanguage is the language id of language independent values.
const SystemLanguage int64 = 0

type DataType int

const (
	DTString1024 DataType = iota
	DTText
	DTHTML
	DTNumber
	DTLargeNumber
	DTDouble
	DTFloat
	DTBoolean
	DTDate
	DTDateTime
	DTDateRange
	DTDateTimeRange
	DTSelectOne
	DTSelectMany
	DTReference
	DTBinary
)

var dataTypeNames = []string{
	"String1024",
	"Text",
	"HTML",
	"Number",
	"LargeNumber",
	"Double",
	"Float",
	"Boolean",
	"Date",
	"DateTime",
	"DateRange",
	"DateTimeRange",
	"SelectOne",
	"SelectMany",
	"Reference",
	"Binary",
}

func (dt DataType) String() string {
	if int(dt) < 0 || int(dt) >= len(dataTypeNames) {
		return "Unknown"
	}
	return dataTypeNames[dt]
}

// ParseDataType returns the data type with the given (case-insensitive) name.
func ParseDataType(name string) (DataType, error) {
	for i, n := range dataTypeNames {
		if strings.EqualFold(n, name) {
			return DataType(i), nil
		}
	}
	return 0, errors.Errorf("unknown data type: %s", name)
}

func (dt *DataType) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParseDataType(value.Value)
	if err != nil {
		return err
	}
	*dt = v
	return nil
}

func (dt DataType) MarshalYAML() (interface{}, error) {
	return dt.String(), nil
}

// IsText is true for data types compared as strings.
func (dt DataType) IsText() bool {
	switch dt {
	case DTString1024, DTText, DTHTML:
		return true
	}
	return false
}

// IsNumeric is true for integer and floating point data types.
func (dt DataType) IsNumeric() bool {
	switch dt {
	case DTNumber, DTLargeNumber, DTDouble, DTFloat:
		return true
	}
	return false
}

// ReadColumns returns the FX_CONTENT_DATA columns that hold a value of
// the data type. Range types use two columns.
func (dt DataType) ReadColumns() []string {
	switch dt {
	case DTString1024:
		return []string{"FTEXT1024"}
	case DTText, DTHTML:
		return []string{"FCLOB"}
	case DTNumber:
		return []string{"FINT"}
	case DTLargeNumber:
		return []string{"FBIGINT"}
	case DTDouble:
		return []string{"FDOUBLE"}
	case DTFloat:
		return []string{"FFLOAT"}
	case DTBoolean:
		return []string{"FBOOL"}
	case DTDate, DTDateTime:
		return []string{"FDATE1"}
	case DTDateRange, DTDateTimeRange:
		return []string{"FDATE1", "FDATE2"}
	case DTSelectOne:
		return []string{"FSELECT"}
	case DTSelectMany:
		return []string{"FTEXT1024"}
	case DTReference:
		return []string{"FREF"}
	case DTBinary:
		return []string{"FBLOB"}
	}
	return nil
}

// UpperColumn returns the upper-case shadow column used for
// case-insensitive comparisons, or the empty string.
func (dt DataType) UpperColumn() string {
	switch dt {
	case DTString1024:
		return "UFTEXT1024"
	case DTText, DTHTML:
		return "UFCLOB"
	}
	return ""
}

// TableType identifies where a property value is stored.
type TableType int

const (
	TableContent TableType = iota
	TableContentData
	TableContentDataFlat
	TableFulltext

	// TableVirtual entries are computed from other tables
	TableVirtual
)

func (t TableType) String() string {
	switch t {
	case TableContent:
		return "content"
	case TableContentData:
		return "content_data"
	case TableContentDataFlat:
		return "content_data_flat"
	case TableFulltext:
		return "fulltext"
	case TableVirtual:
		return "virtual"
	}
	return "unknown"
}

// TableName returns the storage table. Flat storage tables are named by
// their mapping so the empty string is returned for them.
func (t TableType) TableName() string {
	switch t {
	case TableContent:
		return TblContent
	case TableContentData:
		return TblContentData
	case TableFulltext:
		return TblFulltext
	}
	return ""
}

// HasFilterTable reports whether rows of the table can be selected by
// (id, version) and thus take part in joins.
func (t TableType) HasFilterTable() bool {
	return t != TableFulltext && t != TableVirtual
}

// mainColumn describes a property stored directly on FX_CONTENT.
type mainColumn struct {
	Column   string
	DataType DataType
}

var mainColumns = map[string]mainColumn{
	"ID":          {"id", DTNumber},
	"VERSION":     {"ver", DTNumber},
	"TYPEDEF":     {"tdef", DTNumber},
	"MANDATOR":    {"mandator", DTNumber},
	"ACL":         {"acl", DTNumber},
	"STEP":        {"step", DTNumber},
	"MAINLANG":    {"mainlang", DTNumber},
	"CREATED_BY":  {"created_by", DTNumber},
	"CREATED_AT":  {"created_at", DTDateTime},
	"MODIFIED_BY": {"modified_by", DTNumber},
	"MODIFIED_AT": {"modified_at", DTDateTime},
	"ISMAX_VER":   {"ismax_ver", DTBoolean},
	"ISLIVE_VER":  {"islive_ver", DTBoolean},
}

// MainTableColumn resolves a system property stored on FX_CONTENT.
func MainTableColumn(property string) (col string, dt DataType, ok bool) {
	mc, ok := mainColumns[strings.ToUpper(property)]
	return mc.Column, mc.DataType, ok
}

// IsMillisColumn is true for FX_CONTENT timestamps stored as epoch millis.
func IsMillisColumn(col string) bool {
	return col == "created_at" || col == "modified_at"
}
