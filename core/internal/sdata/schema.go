package sdata

import (
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when an environment object cannot be resolved.
var ErrNotFound = errors.New("not found")

type Type struct {
	ID       int64  `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	ParentID int64  `yaml:"parent" json:"parent"`
	ACL      int64  `yaml:"acl" json:"acl"`
	Folder   bool   `yaml:"folder" json:"folder"`

	// Deactivated types are excluded from legacy searches
	Deactivated bool `yaml:"deactivated" json:"deactivated"`

	WorkflowID int64 `yaml:"workflow" json:"workflow"`

	UseTypePermissions     bool `yaml:"use_type_permissions" json:"use_type_permissions"`
	UseInstancePermissions bool `yaml:"use_instance_permissions" json:"use_instance_permissions"`
	UseStepPermissions     bool `yaml:"use_step_permissions" json:"use_step_permissions"`
	UsePropertyPermissions bool `yaml:"use_property_permissions" json:"use_property_permissions"`
}

// UsePermissions is true when reading instances of the type requires
// any permission check besides the mandator.
func (t *Type) UsePermissions() bool {
	return t.UseTypePermissions || t.UseInstancePermissions || t.UseStepPermissions
}

type Property struct {
	ID         int64    `yaml:"id" json:"id"`
	Name       string   `yaml:"name" json:"name"`
	DataType   DataType `yaml:"data_type" json:"data_type"`
	MultiLang  bool     `yaml:"multi_lang" json:"multi_lang"`
	SelectList int64    `yaml:"select_list" json:"select_list"`
}

// FlatMapping places an assignment in a column of a flat storage table.
type FlatMapping struct {
	Storage string `yaml:"storage" json:"storage"`
	Column  string `yaml:"column" json:"column"`
	Level   int    `yaml:"level" json:"level"`

	// Assignments stored in group mode are additionally keyed by group
	GroupAssignmentID int64 `yaml:"group_assignment" json:"group_assignment"`
}

type Assignment struct {
	ID              int64        `yaml:"id" json:"id"`
	TypeID          int64        `yaml:"type" json:"type"`
	PropertyID      int64        `yaml:"property" json:"property"`
	Alias           string       `yaml:"alias" json:"alias"`
	BaseID          int64        `yaml:"base" json:"base"`
	MultiplicityMax int          `yaml:"multiplicity_max" json:"multiplicity_max"`
	ACL             int64        `yaml:"acl" json:"acl"`
	Flat            *FlatMapping `yaml:"flat" json:"flat"`

	prop *Property
}

// Property returns the assigned property. Only valid on assignments of
// a loaded schema.
func (a *Assignment) Property() *Property {
	return a.prop
}

func (a *Assignment) MultiValued() bool {
	return a.MultiplicityMax > 1
}

// XPath is the path of the first value of the assignment.
func (a *Assignment) XPath() string {
	return "/" + strings.ToUpper(a.Alias)
}

type Step struct {
	ID         int64 `yaml:"id" json:"id"`
	WorkflowID int64 `yaml:"workflow" json:"workflow"`
	ACL        int64 `yaml:"acl" json:"acl"`
}

type Mandator struct {
	ID     int64  `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	Active bool   `yaml:"active" json:"active"`
}

type Language struct {
	ID   int64  `yaml:"id" json:"id"`
	Code string `yaml:"code" json:"code"`
}

type SelectItem struct {
	ID     int64  `yaml:"id" json:"id"`
	ListID int64  `yaml:"list" json:"list"`
	Data   string `yaml:"data" json:"data"`
}

// Schema is the structure environment: types, properties, assignments,
// workflows, mandators and languages of one repository.
type Schema struct {
	Types       []Type       `yaml:"types" json:"types"`
	Properties  []Property   `yaml:"properties" json:"properties"`
	Assignments []Assignment `yaml:"assignments" json:"assignments"`
	Steps       []Step       `yaml:"steps" json:"steps"`
	Mandators   []Mandator   `yaml:"mandators" json:"mandators"`
	Languages   []Language   `yaml:"languages" json:"languages"`
	SelectItems []SelectItem `yaml:"select_items" json:"select_items"`

	types       map[int64]*Type
	typeNames   map[string]*Type
	props       map[int64]*Property
	propNames   map[string]*Property
	asgs        map[int64]*Assignment
	derived     map[int64][]*Assignment
	propAsgs    map[int64][]*Assignment
	subTypes    map[int64][]*Type
	steps       map[int64][]*Step
	langCodes   map[string]*Language
	selectItems map[int64][]*SelectItem
}

// LoadSchema reads a YAML environment description.
func LoadSchema(r io.Reader) (*Schema, error) {
	var s Schema

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&s); err != nil {
		return nil, errors.Wrap(err, "environment")
	}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Init builds the lookup indexes. It must be called on schemas
// constructed in code before they are used.
func (s *Schema) Init() error {
	s.types = make(map[int64]*Type, len(s.Types))
	s.typeNames = make(map[string]*Type, len(s.Types))
	s.props = make(map[int64]*Property, len(s.Properties))
	s.propNames = make(map[string]*Property, len(s.Properties))
	s.asgs = make(map[int64]*Assignment, len(s.Assignments))
	s.derived = make(map[int64][]*Assignment)
	s.propAsgs = make(map[int64][]*Assignment)
	s.subTypes = make(map[int64][]*Type)
	s.steps = make(map[int64][]*Step)
	s.langCodes = make(map[string]*Language)
	s.selectItems = make(map[int64][]*SelectItem)

	for i := range s.Types {
		t := &s.Types[i]
		if _, ok := s.types[t.ID]; ok {
			return errors.Errorf("environment: duplicate type id %d", t.ID)
		}
		s.types[t.ID] = t
		s.typeNames[strings.ToUpper(t.Name)] = t
	}

	for i := range s.Types {
		t := &s.Types[i]
		if t.ParentID == 0 {
			continue
		}
		if _, ok := s.types[t.ParentID]; !ok {
			return errors.Errorf("environment: type %s: unknown parent %d", t.Name, t.ParentID)
		}
		s.subTypes[t.ParentID] = append(s.subTypes[t.ParentID], t)
	}

	for i := range s.Properties {
		p := &s.Properties[i]
		s.props[p.ID] = p
		s.propNames[strings.ToUpper(p.Name)] = p
	}

	for i := range s.Assignments {
		a := &s.Assignments[i]
		p, ok := s.props[a.PropertyID]
		if !ok {
			return errors.Errorf("environment: assignment %d: unknown property %d", a.ID, a.PropertyID)
		}
		if _, ok := s.types[a.TypeID]; !ok {
			return errors.Errorf("environment: assignment %d: unknown type %d", a.ID, a.TypeID)
		}
		if a.Alias == "" {
			a.Alias = p.Name
		}
		if a.MultiplicityMax == 0 {
			a.MultiplicityMax = 1
		}
		a.prop = p
		s.asgs[a.ID] = a
		s.propAsgs[p.ID] = append(s.propAsgs[p.ID], a)
	}

	for i := range s.Assignments {
		a := &s.Assignments[i]
		if a.BaseID == 0 {
			continue
		}
		if _, ok := s.asgs[a.BaseID]; !ok {
			return errors.Errorf("environment: assignment %d: unknown base %d", a.ID, a.BaseID)
		}
		s.derived[a.BaseID] = append(s.derived[a.BaseID], a)
	}

	for i := range s.Steps {
		st := &s.Steps[i]
		s.steps[st.WorkflowID] = append(s.steps[st.WorkflowID], st)
	}

	for i := range s.Languages {
		l := &s.Languages[i]
		s.langCodes[strings.ToLower(l.Code)] = l
	}

	for i := range s.SelectItems {
		it := &s.SelectItems[i]
		s.selectItems[it.ListID] = append(s.selectItems[it.ListID], it)
	}
	return nil
}

func (s *Schema) Type(id int64) (*Type, error) {
	if t, ok := s.types[id]; ok {
		return t, nil
	}
	return nil, errors.Wrapf(ErrNotFound, "type id %d", id)
}

func (s *Schema) TypeByName(name string) (*Type, error) {
	if t, ok := s.typeNames[strings.ToUpper(name)]; ok {
		return t, nil
	}
	return nil, errors.Wrapf(ErrNotFound, "type %s", name)
}

// RootTypes returns all types without a parent ordered by id.
func (s *Schema) RootTypes() []*Type {
	var ts []*Type
	for i := range s.Types {
		if s.Types[i].ParentID == 0 {
			ts = append(ts, &s.Types[i])
		}
	}
	sortTypes(ts)
	return ts
}

// TypeTree returns the type and all types derived from it, ordered by id.
func (s *Schema) TypeTree(id int64) []*Type {
	t, ok := s.types[id]
	if !ok {
		return nil
	}
	ts := []*Type{t}
	for i := 0; i < len(ts); i++ {
		ts = append(ts, s.subTypes[ts[i].ID]...)
	}
	sortTypes(ts)
	return ts
}

// AllTypes returns every type of the environment ordered by id.
func (s *Schema) AllTypes() []*Type {
	ts := make([]*Type, 0, len(s.Types))
	for i := range s.Types {
		ts = append(ts, &s.Types[i])
	}
	sortTypes(ts)
	return ts
}

func sortTypes(ts []*Type) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
}

func (s *Schema) Property(name string) (*Property, error) {
	if p, ok := s.propNames[strings.ToUpper(name)]; ok {
		return p, nil
	}
	return nil, errors.Wrapf(ErrNotFound, "property %s", name)
}

func (s *Schema) PropertyByID(id int64) (*Property, error) {
	if p, ok := s.props[id]; ok {
		return p, nil
	}
	return nil, errors.Wrapf(ErrNotFound, "property id %d", id)
}

func (s *Schema) Assignment(id int64) (*Assignment, error) {
	if a, ok := s.asgs[id]; ok {
		return a, nil
	}
	return nil, errors.Wrapf(ErrNotFound, "assignment id %d", id)
}

// AssignmentByAlias finds the assignment of a type by its alias. The
// alias may be given as a path ("/CAPTION").
func (s *Schema) AssignmentByAlias(typeID int64, alias string) (*Assignment, error) {
	alias = strings.TrimPrefix(alias, "/")
	for i := range s.Assignments {
		a := &s.Assignments[i]
		if a.TypeID == typeID && strings.EqualFold(a.Alias, alias) {
			return a, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "assignment %s of type %d", alias, typeID)
}

// DerivedAssignments returns all assignments derived from the given one,
// directly or indirectly, ordered by id.
func (s *Schema) DerivedAssignments(id int64) []*Assignment {
	var res []*Assignment
	queue := []int64{id}
	for len(queue) != 0 {
		next := queue[0]
		queue = queue[1:]
		for _, a := range s.derived[next] {
			res = append(res, a)
			queue = append(queue, a.ID)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// PropertyAssignments returns the assignments of a property, ordered by id.
func (s *Schema) PropertyAssignments(propID int64) []*Assignment {
	res := append([]*Assignment(nil), s.propAsgs[propID]...)
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// WorkflowSteps returns the steps of a workflow.
func (s *Schema) WorkflowSteps(workflowID int64) []*Step {
	return s.steps[workflowID]
}

// InactiveMandators returns the ids of deactivated mandators.
func (s *Schema) InactiveMandators() []int64 {
	var ids []int64
	for _, m := range s.Mandators {
		if !m.Active {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// DeactivatedTypes returns the ids of deactivated types.
func (s *Schema) DeactivatedTypes() []int64 {
	var ids []int64
	for _, t := range s.AllTypes() {
		if t.Deactivated {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func (s *Schema) LanguageByCode(code string) (*Language, error) {
	if l, ok := s.langCodes[strings.ToLower(code)]; ok {
		return l, nil
	}
	return nil, errors.Wrapf(ErrNotFound, "language %s", code)
}

// SelectItemByData finds an item of a select list by its data value.
func (s *Schema) SelectItemByData(listID int64, data string) (*SelectItem, error) {
	for _, it := range s.selectItems[listID] {
		if strings.EqualFold(it.Data, data) {
			return it, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "select item %q in list %d", data, listID)
}
