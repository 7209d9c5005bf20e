package schema

import (
	"bytes"
	"fmt"
	"os"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/schema/validator"

	"gopkg.in/yaml.v3"
)

type schemaFile struct {
	Schemas []domain.EntitySchema `yaml:"schemas"`
}

// LoadFile reads entity schemas from a YAML document of the form
// `schemas: [...]`.
func LoadFile(path string) ([]domain.EntitySchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	schemas, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
	}
	return schemas, nil
}

// Parse decodes a YAML schema document. Unknown keys are rejected.
func Parse(data []byte) ([]domain.EntitySchema, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var file schemaFile
	if err := decoder.Decode(&file); err != nil {
		return nil, err
	}
	if len(file.Schemas) == 0 {
		return nil, fmt.Errorf("no schemas declared")
	}
	for i := range file.Schemas {
		for j := range file.Schemas[i].Fields {
			normalizeRule(&file.Schemas[i].Fields[j])
		}
		for j := range file.Schemas[i].ChildFields {
			normalizeRule(&file.Schemas[i].ChildFields[j])
		}
	}
	return file.Schemas, nil
}

// normalizeRule fills the rule kind implied by the other keys so YAML authors
// can omit it.
func normalizeRule(rule *domain.FieldMappingRule) {
	if rule.Kind != "" {
		return
	}
	switch {
	case rule.Source != "":
		rule.Kind = domain.RuleContext
	case rule.Transformer != "":
		rule.Kind = domain.RuleTransformed
	case rule.Value != nil:
		rule.Kind = domain.RuleFixed
	default:
		rule.Kind = domain.RuleDirect
	}
	if rule.Default != nil {
		rule.HasDefault = true
	}
}

// Build returns a registry of the schemas in path, or of the built-ins when path
// is empty. Every schema is validated against ext.
func Build(path string, ext validator.Extensions) (*Registry, error) {
	schemas := Builtins()
	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		schemas = loaded
	}
	for _, es := range schemas {
		if err := validator.ValidateSchema(es, ext); err != nil {
			return nil, fmt.Errorf("invalid schema: %w", err)
		}
	}
	return NewRegistry(schemas...)
}
