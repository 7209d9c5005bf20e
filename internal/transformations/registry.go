package transformations

import (
	"context"
	"fmt"
	"sort"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/syncctx"
)

// Records is the subset of record storage the extensions use.
type Records interface {
	Search(ctx context.Context, collection string, criteria []domain.Criterion, opts domain.SearchOptions) ([]domain.Record, error)
	GetByID(ctx context.Context, collection string, id int64) (domain.Record, error)
	GetByIDs(ctx context.Context, collection string, ids []int64) ([]domain.Record, error)
	Create(ctx context.Context, collection string, values domain.Values) (domain.Record, error)
}

// Env is the processing environment handed to every extension.
type Env struct {
	Records Records
	Actor   syncctx.Actor
	Schema  domain.EntitySchema
	// Message is the full decoded inbound message. Nil on the outbound side.
	Message map[string]any
	// ParentID is set once the owning parent record is known.
	ParentID *int64
}

// Transformer converts one field in both directions.
type Transformer interface {
	// Forward maps an external value to one or more internal fields.
	Forward(ctx context.Context, env Env, value any) (domain.Values, error)
	// Reverse maps a stored value back. A map[string]any result fans out into
	// several external keys.
	Reverse(ctx context.Context, env Env, value any, record domain.Record) (any, error)
}

// Validator checks, and may enrich, a record's values.
type Validator interface {
	Validate(ctx context.Context, env Env, message map[string]any, values domain.Values) error
}

// MessageLevel is implemented by validators that only inspect the raw message
// and run before any mapping rule.
type MessageLevel interface {
	MessageLevel() bool
}

// PostProcessor performs cross-field work over a whole value set.
type PostProcessor interface {
	Process(ctx context.Context, env Env, vs *domain.ValueSet) error
}

// ContextSource resolves a value from the processing environment.
type ContextSource interface {
	Resolve(ctx context.Context, env Env) (any, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, env Env, message map[string]any, values domain.Values) error

func (f ValidatorFunc) Validate(ctx context.Context, env Env, message map[string]any, values domain.Values) error {
	return f(ctx, env, message, values)
}

// PostProcessorFunc adapts a function to PostProcessor.
type PostProcessorFunc func(ctx context.Context, env Env, vs *domain.ValueSet) error

func (f PostProcessorFunc) Process(ctx context.Context, env Env, vs *domain.ValueSet) error {
	return f(ctx, env, vs)
}

// ContextSourceFunc adapts a function to ContextSource.
type ContextSourceFunc func(ctx context.Context, env Env) (any, error)

func (f ContextSourceFunc) Resolve(ctx context.Context, env Env) (any, error) {
	return f(ctx, env)
}

// Registry holds every named extension. It is built once at startup and only
// read afterwards.
type Registry struct {
	transformers   map[string]Transformer
	validators     map[string]Validator
	postProcessors map[string]PostProcessor
	contextSources map[string]ContextSource
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		transformers:   map[string]Transformer{},
		validators:     map[string]Validator{},
		postProcessors: map[string]PostProcessor{},
		contextSources: map[string]ContextSource{},
	}
}

// RegisterTransformer adds a transformer. Names must be unique.
func (r *Registry) RegisterTransformer(name string, t Transformer) error {
	if _, exists := r.transformers[name]; exists {
		return fmt.Errorf("transformer %q already registered", name)
	}
	r.transformers[name] = t
	return nil
}

// RegisterValidator adds a validator. Names must be unique.
func (r *Registry) RegisterValidator(name string, v Validator) error {
	if _, exists := r.validators[name]; exists {
		return fmt.Errorf("validator %q already registered", name)
	}
	r.validators[name] = v
	return nil
}

// RegisterPostProcessor adds a post-processor. Names must be unique.
func (r *Registry) RegisterPostProcessor(name string, p PostProcessor) error {
	if _, exists := r.postProcessors[name]; exists {
		return fmt.Errorf("post-processor %q already registered", name)
	}
	r.postProcessors[name] = p
	return nil
}

// RegisterContextSource adds a context source. Names must be unique.
func (r *Registry) RegisterContextSource(name string, s ContextSource) error {
	if _, exists := r.contextSources[name]; exists {
		return fmt.Errorf("context source %q already registered", name)
	}
	r.contextSources[name] = s
	return nil
}

func (r *Registry) Transformer(name string) (Transformer, error) {
	t, ok := r.transformers[name]
	if !ok {
		return nil, fmt.Errorf("transformer %q: %w", name, domain.ErrUnknownExtension)
	}
	return t, nil
}

func (r *Registry) Validator(name string) (Validator, error) {
	v, ok := r.validators[name]
	if !ok {
		return nil, fmt.Errorf("validator %q: %w", name, domain.ErrUnknownExtension)
	}
	return v, nil
}

func (r *Registry) PostProcessor(name string) (PostProcessor, error) {
	p, ok := r.postProcessors[name]
	if !ok {
		return nil, fmt.Errorf("post-processor %q: %w", name, domain.ErrUnknownExtension)
	}
	return p, nil
}

func (r *Registry) ContextSource(name string) (ContextSource, error) {
	s, ok := r.contextSources[name]
	if !ok {
		return nil, fmt.Errorf("context source %q: %w", name, domain.ErrUnknownExtension)
	}
	return s, nil
}

// Names lists registered extension names per role, sorted.
func (r *Registry) Names() map[string][]string {
	return map[string][]string{
		"transformers":    sortedKeys(r.transformers),
		"validators":      sortedKeys(r.validators),
		"post_processors": sortedKeys(r.postProcessors),
		"context_sources": sortedKeys(r.contextSources),
	}
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Option configures the default registry.
type Option func(*options)

type options struct {
	images ImageStore
}

// WithImageStore enables image enrichment for url_to_image.
func WithImageStore(store ImageStore) Option {
	return func(o *options) {
		o.images = store
	}
}

// NewDefaultRegistry returns a registry with every built-in extension. The map
// literals reject duplicate names at compile time.
func NewDefaultRegistry(opts ...Option) *Registry {
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Registry{
		transformers: map[string]Transformer{
			"phone":                     phoneTransformer{},
			"country_state":             countryStateTransformer{},
			"estado_to_active":          estadoToActiveTransformer{},
			"cliente_principal":         clientePrincipalTransformer{},
			"spain_country":             spainCountryTransformer{},
			"country_code":              countryCodeTransformer{},
			"cargos":                    cargosTransformer{},
			"price":                     priceTransformer{},
			"quantity":                  quantityTransformer{},
			"vendedor":                  vendedorTransformer{},
			"ficticio_to_detailed_type": ficticioTransformer{},
			"grupo":                     categoryTransformer{field: "grupo_id", saleOkFromGroup: true},
			"subgrupo":                  categoryTransformer{field: "subgrupo_id"},
			"familia":                   categoryTransformer{field: "familia_id"},
			"unidad_medida_y_tamanno":   sizeUnitTransformer{},
			"url_to_image":              imageTransformer{store: cfg.images},
		},
		validators: map[string]Validator{
			"validate_cliente_principal_exists": ValidatorFunc(validateClientePrincipalExists),
			"validate_required_fields":          requiredFieldsValidator{},
			"validate_nif_format":               ValidatorFunc(validateNifFormat),
		},
		postProcessors: map[string]PostProcessor{
			"assign_email_from_children": PostProcessorFunc(assignEmailFromChildren),
			"merge_comments":             PostProcessorFunc(mergeComments),
			"set_parent_id_for_children": PostProcessorFunc(setParentIDForChildren),
			"normalize_phone_numbers":    PostProcessorFunc(normalizePhoneNumbers),
			"sync_product_bom":           PostProcessorFunc(syncProductBOM),
		},
		contextSources: map[string]ContextSource{
			"company_id": ContextSourceFunc(actorCompanyID),
			"user_login": ContextSourceFunc(actorLogin),
		},
	}
}
