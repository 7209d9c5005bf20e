package domain

import "strings"

// FieldKind is the storage type of an internal field. The upsert engine and the
// publish controller use it to pick a comparison.
type FieldKind string

const (
	FieldKindChar      FieldKind = "char"
	FieldKindText      FieldKind = "text"
	FieldKindHTML      FieldKind = "html"
	FieldKindBoolean   FieldKind = "boolean"
	FieldKindInteger   FieldKind = "integer"
	FieldKindFloat     FieldKind = "float"
	FieldKindMonetary  FieldKind = "monetary"
	FieldKindMany2One  FieldKind = "many2one"
	FieldKindMany2Many FieldKind = "many2many"
	FieldKindOne2Many  FieldKind = "one2many"
	FieldKindDate      FieldKind = "date"
	FieldKindDatetime  FieldKind = "datetime"
	FieldKindBinary    FieldKind = "binary"
	FieldKindSelection FieldKind = "selection"
)

// RuleKind identifies how a FieldMappingRule produces its value.
type RuleKind string

const (
	RuleDirect      RuleKind = "direct"
	RuleTransformed RuleKind = "transformed"
	RuleFixed       RuleKind = "fixed"
	RuleContext     RuleKind = "context"
)

// AppendPrefix marks transformer output that is concatenated onto an
// accumulator instead of overwriting it.
const AppendPrefix = "_append_"

// FieldMappingRule maps one external key onto one or more internal fields.
type FieldMappingRule struct {
	Key         string   `json:"key" yaml:"key"`
	Kind        RuleKind `json:"kind" yaml:"kind"`
	Field       string   `json:"field,omitempty" yaml:"field,omitempty"`
	Fields      []string `json:"fields,omitempty" yaml:"fields,omitempty"`
	Transformer string   `json:"transformer,omitempty" yaml:"transformer,omitempty"`
	Required    bool     `json:"required,omitempty" yaml:"required,omitempty"`
	// HasDefault distinguishes an explicit zero default from no default.
	HasDefault bool   `json:"hasDefault,omitempty" yaml:"hasDefault,omitempty"`
	Default    any    `json:"default,omitempty" yaml:"default,omitempty"`
	Value      any    `json:"value,omitempty" yaml:"value,omitempty"`
	Source     string `json:"source,omitempty" yaml:"source,omitempty"`
}

// Direct builds a direct rule.
func Direct(key, field string) FieldMappingRule {
	return FieldMappingRule{Key: key, Kind: RuleDirect, Field: field}
}

// Transformed builds a transformer rule targeting the listed fields.
func Transformed(key, transformer string, fields ...string) FieldMappingRule {
	return FieldMappingRule{Key: key, Kind: RuleTransformed, Transformer: transformer, Fields: fields}
}

// Fixed builds a rule that always writes value.
func Fixed(key, field string, value any) FieldMappingRule {
	return FieldMappingRule{Key: key, Kind: RuleFixed, Field: field, Value: value}
}

// FromContext builds a rule resolved from the processing environment.
func FromContext(key, field, source string) FieldMappingRule {
	return FieldMappingRule{Key: key, Kind: RuleContext, Field: field, Source: source}
}

// WithRequired returns a copy of the rule marked as required.
func (r FieldMappingRule) WithRequired() FieldMappingRule {
	r.Required = true
	return r
}

// WithDefault returns a copy of the rule carrying a default for present-but-null values.
func (r FieldMappingRule) WithDefault(value any) FieldMappingRule {
	r.HasDefault = true
	r.Default = value
	return r
}

// TargetFields lists every internal field the rule can write.
func (r FieldMappingRule) TargetFields() []string {
	if r.Field != "" {
		return []string{r.Field}
	}
	return append([]string(nil), r.Fields...)
}

// Internal reports whether the external key is engine-internal (never sent back out).
func (r FieldMappingRule) Internal() bool {
	return strings.HasPrefix(r.Key, "_")
}

// ExternalID maps an internal identifier field to its external dotted path.
type ExternalID struct {
	Field string `json:"field" yaml:"field"`
	Path  string `json:"path" yaml:"path"`
	// ChildScoped identifiers come from the child element when building children.
	ChildScoped bool `json:"childScoped,omitempty" yaml:"childScoped,omitempty"`
	// FlatFallback is read from the root of a flattened message when Path is absent.
	FlatFallback string `json:"flatFallback,omitempty" yaml:"flatFallback,omitempty"`
}

// Hierarchy describes parent/children structure within one entity type.
type Hierarchy struct {
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	ParentField string   `json:"parentField,omitempty" yaml:"parentField,omitempty"`
	ChildKeys   []string `json:"childKeys,omitempty" yaml:"childKeys,omitempty"`
}

// ReverseMapping maps an internal field back to an external key.
type ReverseMapping struct {
	Field       string `json:"field" yaml:"field"`
	Key         string `json:"key" yaml:"key"`
	Transformer string `json:"transformer,omitempty" yaml:"transformer,omitempty"`
}

// EntitySchema is the declarative sync configuration for one entity type.
type EntitySchema struct {
	Name            string               `json:"name" yaml:"name"`
	Collection      string               `json:"collection" yaml:"collection"`
	MessageType     string               `json:"messageType,omitempty" yaml:"messageType,omitempty"`
	IDFields        []string             `json:"idFields" yaml:"idFields"`
	PublishIDFields []string             `json:"publishIdFields,omitempty" yaml:"publishIdFields,omitempty"`
	ExternalIDs     []ExternalID         `json:"externalIds" yaml:"externalIds"`
	Fields          []FieldMappingRule   `json:"fields" yaml:"fields"`
	ChildFields     []FieldMappingRule   `json:"childFields,omitempty" yaml:"childFields,omitempty"`
	Hierarchy       Hierarchy            `json:"hierarchy" yaml:"hierarchy"`
	Reverse         []ReverseMapping     `json:"reverse,omitempty" yaml:"reverse,omitempty"`
	ReverseChild    []ReverseMapping     `json:"reverseChild,omitempty" yaml:"reverseChild,omitempty"`
	AlwaysInclude   []string             `json:"alwaysInclude,omitempty" yaml:"alwaysInclude,omitempty"`
	PostProcessors  []string             `json:"postProcessors,omitempty" yaml:"postProcessors,omitempty"`
	Validators      []string             `json:"validators,omitempty" yaml:"validators,omitempty"`
	Bidirectional   bool                 `json:"bidirectional" yaml:"bidirectional"`
	Topic           string               `json:"topic,omitempty" yaml:"topic,omitempty"`
	ExternalTable   string               `json:"externalTable,omitempty" yaml:"externalTable,omitempty"`
	DetectionKeys   []string             `json:"detectionKeys,omitempty" yaml:"detectionKeys,omitempty"`
	FieldKinds      map[string]FieldKind `json:"fieldKinds" yaml:"fieldKinds"`
	// ComponentsKey names the external key carrying sub-component lists, if any.
	ComponentsKey string `json:"componentsKey,omitempty" yaml:"componentsKey,omitempty"`
}

// KindOf returns the declared kind of an internal field.
func (es EntitySchema) KindOf(field string) (FieldKind, bool) {
	kind, ok := es.FieldKinds[field]
	return kind, ok
}

// EffectivePublishIDFields returns the identifiers that must be non-empty before publishing.
func (es EntitySchema) EffectivePublishIDFields() []string {
	if len(es.PublishIDFields) > 0 {
		return es.PublishIDFields
	}
	return es.IDFields
}

// ParentField returns the hierarchy parent link, if the schema is hierarchical.
func (es EntitySchema) ParentField() (string, bool) {
	if !es.Hierarchy.Enabled || es.Hierarchy.ParentField == "" {
		return "", false
	}
	return es.Hierarchy.ParentField, true
}

// IsIDField reports whether field is one of the identifying fields.
func (es EntitySchema) IsIDField(field string) bool {
	for _, id := range es.IDFields {
		if id == field {
			return true
		}
	}
	return false
}

// AlwaysIncludes reports whether key must be sent even when empty.
func (es EntitySchema) AlwaysIncludes(key string) bool {
	for _, k := range es.AlwaysInclude {
		if k == key {
			return true
		}
	}
	return false
}

// WithFields returns a copy of the schema with the forward rules replaced.
func (es EntitySchema) WithFields(rules []FieldMappingRule) EntitySchema {
	es.Fields = copyRules(rules)
	return es
}

// WithChildFields returns a copy of the schema with the child rules replaced.
func (es EntitySchema) WithChildFields(rules []FieldMappingRule) EntitySchema {
	es.ChildFields = copyRules(rules)
	return es
}

// WithValidators returns a copy of the schema with validators replaced.
func (es EntitySchema) WithValidators(names ...string) EntitySchema {
	es.Validators = append([]string(nil), names...)
	return es
}

// WithPostProcessors returns a copy of the schema with post-processors replaced.
func (es EntitySchema) WithPostProcessors(names ...string) EntitySchema {
	es.PostProcessors = append([]string(nil), names...)
	return es
}

func copyRules(rules []FieldMappingRule) []FieldMappingRule {
	if rules == nil {
		return nil
	}
	cloned := make([]FieldMappingRule, len(rules))
	copy(cloned, rules)
	return cloned
}
