package inbound

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/syncctx"
	"github.com/rpattn/entitysync/internal/transformations"
)

// Extensions resolves the named extensions used while mapping a message.
type Extensions interface {
	Transformer(name string) (transformations.Transformer, error)
	Validator(name string) (transformations.Validator, error)
	PostProcessor(name string) (transformations.PostProcessor, error)
	ContextSource(name string) (transformations.ContextSource, error)
}

// Processor turns decoded external messages into value sets.
type Processor struct {
	ext     Extensions
	records transformations.Records
	actor   syncctx.Actor
}

// NewProcessor wires a processor. actor is used when the context carries none.
func NewProcessor(ext Extensions, records transformations.Records, actor syncctx.Actor) *Processor {
	return &Processor{ext: ext, records: records, actor: actor}
}

// Process maps message onto es. Keys absent from the message never appear in
// the result; rules keyed with a leading underscore are not external keys and
// always run.
func (p *Processor) Process(ctx context.Context, es domain.EntitySchema, message map[string]any) (domain.ValueSet, error) {
	env := p.env(ctx, es, message)

	recordValidators, err := p.runMessageValidators(ctx, env, es, message)
	if err != nil {
		return domain.ValueSet{}, err
	}

	parent, err := p.buildValues(ctx, env, es.Fields, es.ExternalIDs, message, nil)
	if err != nil {
		return domain.ValueSet{}, err
	}
	vs := domain.ValueSet{Parent: parent}

	if es.Hierarchy.Enabled {
		for _, key := range es.Hierarchy.ChildKeys {
			items, _ := message[key].([]any)
			for index, item := range items {
				element, ok := item.(map[string]any)
				if !ok {
					return domain.ValueSet{}, fmt.Errorf("%w: %s[%d] is not an object", domain.ErrMalformedValue, key, index)
				}
				child, err := p.buildValues(ctx, env, es.ChildFields, es.ExternalIDs, message, element)
				if err != nil {
					return domain.ValueSet{}, fmt.Errorf("%s[%d]: %w", key, index, err)
				}
				if missing := missingChildIdentifier(es, child); missing != "" {
					log.Printf("[INBOUND] WARN: %s %s[%d] has no %s, skipping it", es.Name, key, index, missing)
					continue
				}
				vs.Children = append(vs.Children, child)
			}
		}
	}

	for _, name := range es.PostProcessors {
		processor, err := p.ext.PostProcessor(name)
		if err != nil {
			return domain.ValueSet{}, err
		}
		if err := processor.Process(ctx, env, &vs); err != nil {
			return domain.ValueSet{}, fmt.Errorf("post-processor %s: %w", name, err)
		}
	}

	for _, named := range recordValidators {
		if err := named.validator.Validate(ctx, env, message, vs.Parent); err != nil {
			return domain.ValueSet{}, fmt.Errorf("validator %s: %w", named.name, err)
		}
	}
	return vs, nil
}

func (p *Processor) env(ctx context.Context, es domain.EntitySchema, message map[string]any) transformations.Env {
	actor := p.actor
	if fromCtx, ok := syncctx.ActorFromContext(ctx); ok {
		actor = fromCtx
	}
	return transformations.Env{Records: p.records, Actor: actor, Schema: es, Message: message}
}

type namedValidator struct {
	name      string
	validator transformations.Validator
}

// runMessageValidators runs the validators that only need the raw message and
// returns the rest, in order, for after mapping.
func (p *Processor) runMessageValidators(ctx context.Context, env transformations.Env, es domain.EntitySchema, message map[string]any) ([]namedValidator, error) {
	var deferred []namedValidator
	for _, name := range es.Validators {
		validator, err := p.ext.Validator(name)
		if err != nil {
			return nil, err
		}
		if level, ok := validator.(transformations.MessageLevel); ok && level.MessageLevel() {
			if err := validator.Validate(ctx, env, message, nil); err != nil {
				return nil, fmt.Errorf("validator %s: %w", name, err)
			}
			continue
		}
		deferred = append(deferred, namedValidator{name: name, validator: validator})
	}
	return deferred, nil
}

// missingChildIdentifier names the first child-scoped identifier the child
// lacks. Without it the child's lookup would match its parent.
func missingChildIdentifier(es domain.EntitySchema, child domain.Values) string {
	for _, id := range es.ExternalIDs {
		if id.ChildScoped && domain.AsString(child[id.Field]) == "" {
			return id.Field
		}
	}
	return ""
}

// buildValues applies rules to the message, or to child when building a child.
func (p *Processor) buildValues(ctx context.Context, env transformations.Env, rules []domain.FieldMappingRule, ids []domain.ExternalID, message, child map[string]any) (domain.Values, error) {
	values := domain.Values{}
	source := message
	if child != nil {
		source = child
	}

	for _, rule := range rules {
		switch rule.Kind {
		case domain.RuleFixed:
			values[rule.Field] = rule.Value
			continue
		case domain.RuleContext:
			values[rule.Field] = p.resolveContext(ctx, env, rule)
			continue
		}

		raw, present := domain.LookupPath(source, rule.Key)
		if !present && !rule.Internal() {
			continue
		}
		if raw == nil && rule.HasDefault {
			raw = rule.Default
		}
		if rule.Required && isEmpty(raw) {
			return nil, fmt.Errorf("%w: Campo requerido faltante: %s", domain.ErrMissingRequiredField, rule.Key)
		}

		switch rule.Kind {
		case domain.RuleDirect:
			values[rule.Field] = raw
		case domain.RuleTransformed:
			if err := p.applyTransformer(ctx, env, rule, raw, values); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("rule %s has unknown kind %q", rule.Key, rule.Kind)
		}
	}

	for _, id := range ids {
		idSource := message
		if child != nil && id.ChildScoped {
			idSource = child
		}
		value, _ := domain.LookupPath(idSource, id.Path)
		if value == nil && child == nil && id.FlatFallback != "" {
			value = message[id.FlatFallback]
		}
		values[id.Field] = value
	}
	return values, nil
}

func (p *Processor) applyTransformer(ctx context.Context, env transformations.Env, rule domain.FieldMappingRule, raw any, values domain.Values) error {
	transformer, err := p.ext.Transformer(rule.Transformer)
	if err != nil {
		return err
	}
	out, err := transformer.Forward(ctx, env, raw)
	if err != nil {
		if domain.ErrorKind(err) == "internal" {
			return fmt.Errorf("%w: %s (%s): %v", domain.ErrTransformationFailure, rule.Transformer, rule.Key, err)
		}
		return fmt.Errorf("%s (%s): %w", rule.Transformer, rule.Key, err)
	}

	for key, value := range out {
		target, isAppend := strings.CutPrefix(key, domain.AppendPrefix)
		if !isAppend {
			values[key] = value
			continue
		}
		addition := domain.AsString(value)
		current := domain.AsString(values[target])
		if current == "" {
			values[target] = addition
			continue
		}
		values[target] = strings.TrimSpace(current + "\n" + addition)
	}
	return nil
}

func (p *Processor) resolveContext(ctx context.Context, env transformations.Env, rule domain.FieldMappingRule) any {
	source, err := p.ext.ContextSource(rule.Source)
	if err != nil {
		log.Printf("[TRANSFORM] ERROR: context field %s: %v", rule.Key, err)
		return nil
	}
	value, err := source.Resolve(ctx, env)
	if err != nil {
		log.Printf("[TRANSFORM] ERROR: context field %s: %v", rule.Key, err)
		return nil
	}
	return value
}

func isEmpty(value any) bool {
	if text, ok := value.(string); ok {
		return strings.TrimSpace(text) == ""
	}
	return value == nil
}
