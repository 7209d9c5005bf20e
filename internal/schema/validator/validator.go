package validator

import (
	"fmt"
	"strings"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/transformations"
)

// Extensions resolves the named extensions a schema refers to.
type Extensions interface {
	Transformer(name string) (transformations.Transformer, error)
	Validator(name string) (transformations.Validator, error)
	PostProcessor(name string) (transformations.PostProcessor, error)
	ContextSource(name string) (transformations.ContextSource, error)
}

var knownKinds = map[domain.FieldKind]struct{}{
	domain.FieldKindChar:      {},
	domain.FieldKindText:      {},
	domain.FieldKindHTML:      {},
	domain.FieldKindBoolean:   {},
	domain.FieldKindInteger:   {},
	domain.FieldKindFloat:     {},
	domain.FieldKindMonetary:  {},
	domain.FieldKindMany2One:  {},
	domain.FieldKindMany2Many: {},
	domain.FieldKindOne2Many:  {},
	domain.FieldKindDate:      {},
	domain.FieldKindDatetime:  {},
	domain.FieldKindBinary:    {},
	domain.FieldKindSelection: {},
}

// ValidateSchema checks that a schema is well formed and that every extension it
// names is registered.
func ValidateSchema(es domain.EntitySchema, ext Extensions) error {
	if strings.TrimSpace(es.Collection) == "" {
		return fmt.Errorf("schema %s has no collection", es.Name)
	}
	if len(es.IDFields) == 0 {
		return fmt.Errorf("schema %s declares no id fields", es.Name)
	}
	for _, field := range es.IDFields {
		if _, ok := es.KindOf(field); !ok {
			return fmt.Errorf("schema %s: id field %s has no kind", es.Name, field)
		}
	}
	for field, kind := range es.FieldKinds {
		if _, ok := knownKinds[kind]; !ok {
			return fmt.Errorf("schema %s: field %s has unknown kind %s", es.Name, field, kind)
		}
	}

	if err := validateRules(es.Name, es.Fields, ext); err != nil {
		return err
	}
	if err := validateRules(es.Name, es.ChildFields, ext); err != nil {
		return err
	}

	if es.Hierarchy.Enabled {
		if es.Hierarchy.ParentField == "" {
			return fmt.Errorf("schema %s: hierarchy enabled without parent field", es.Name)
		}
		if len(es.Hierarchy.ChildKeys) == 0 {
			return fmt.Errorf("schema %s: hierarchy enabled without child keys", es.Name)
		}
	}

	for _, name := range es.Validators {
		if _, err := ext.Validator(name); err != nil {
			return fmt.Errorf("schema %s: %w", es.Name, err)
		}
	}
	for _, name := range es.PostProcessors {
		if _, err := ext.PostProcessor(name); err != nil {
			return fmt.Errorf("schema %s: %w", es.Name, err)
		}
	}
	for _, mappings := range [][]domain.ReverseMapping{es.Reverse, es.ReverseChild} {
		for _, mapping := range mappings {
			if mapping.Field == "" || mapping.Key == "" {
				return fmt.Errorf("schema %s: reverse mapping needs field and key", es.Name)
			}
			if mapping.Transformer == "" {
				continue
			}
			if _, err := ext.Transformer(mapping.Transformer); err != nil {
				return fmt.Errorf("schema %s: %w", es.Name, err)
			}
		}
	}
	return nil
}

func validateRules(schemaName string, rules []domain.FieldMappingRule, ext Extensions) error {
	for _, rule := range rules {
		if strings.TrimSpace(rule.Key) == "" {
			return fmt.Errorf("schema %s: rule without key", schemaName)
		}
		switch rule.Kind {
		case domain.RuleDirect, domain.RuleFixed:
			if rule.Field == "" {
				return fmt.Errorf("schema %s: rule %s needs a field", schemaName, rule.Key)
			}
		case domain.RuleContext:
			if rule.Field == "" || rule.Source == "" {
				return fmt.Errorf("schema %s: context rule %s needs field and source", schemaName, rule.Key)
			}
			if _, err := ext.ContextSource(rule.Source); err != nil {
				return fmt.Errorf("schema %s: rule %s: %w", schemaName, rule.Key, err)
			}
		case domain.RuleTransformed:
			if len(rule.TargetFields()) == 0 {
				return fmt.Errorf("schema %s: transformed rule %s declares no fields", schemaName, rule.Key)
			}
			if _, err := ext.Transformer(rule.Transformer); err != nil {
				return fmt.Errorf("schema %s: rule %s: %w", schemaName, rule.Key, err)
			}
		default:
			return fmt.Errorf("schema %s: rule %s has unknown kind %q", schemaName, rule.Key, rule.Kind)
		}
	}
	return nil
}
