package transformations

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rpattn/entitysync/internal/domain"
)

// validateClientePrincipalExists links a non-principal client to its principal
// record, which must already exist.
func validateClientePrincipalExists(ctx context.Context, env Env, message map[string]any, values domain.Values) error {
	if domain.Truthy(message["ClientePrincipal"]) {
		return nil
	}

	clienteExterno := values["cliente_externo"]
	parentField, ok := env.Schema.ParentField()
	if !ok {
		parentField = "parent_id"
	}

	found, err := env.Records.Search(ctx, env.Schema.Collection, []domain.Criterion{
		domain.Eq("cliente_externo", clienteExterno),
		domain.Eq(parentField, nil),
	}, domain.SearchOptions{Limit: 1})
	if err != nil {
		return fmt.Errorf("failed to look up principal client %v: %w", clienteExterno, err)
	}
	if len(found) == 0 {
		return fmt.Errorf("%w: Es necesario crear primero el cliente principal para el cliente %v",
			domain.ErrDependencyNotReady, clienteExterno)
	}

	values[parentField] = found[0].ID
	return nil
}

// requiredFieldsValidator rejects messages missing any required top-level key.
type requiredFieldsValidator struct{}

func (requiredFieldsValidator) MessageLevel() bool { return true }

func (requiredFieldsValidator) Validate(ctx context.Context, env Env, message map[string]any, values domain.Values) error {
	for _, rule := range env.Schema.Fields {
		if !rule.Required {
			continue
		}
		value, _ := domain.LookupPath(message, rule.Key)
		if value == nil {
			return fmt.Errorf("%w: Campo requerido faltante: %s", domain.ErrMissingRequiredField, rule.Key)
		}
		if text, isText := value.(string); isText && strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: Campo requerido faltante: %s", domain.ErrMissingRequiredField, rule.Key)
		}
	}
	return nil
}

func validateNifFormat(ctx context.Context, env Env, message map[string]any, values domain.Values) error {
	nif, _ := values["vat"].(string)
	if nif == "" {
		return nil
	}
	if length := utf8.RuneCountInString(nif); length < 8 || length > 10 {
		return fmt.Errorf("%w: Formato de NIF inválido: %s", domain.ErrMalformedValue, nif)
	}
	return nil
}
