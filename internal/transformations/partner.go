package transformations

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpattn/entitysync/internal/domain"
)

// phoneTransformer splits "a / b / c" into mobile, phone and extras.
type phoneTransformer struct{}

func (phoneTransformer) Forward(ctx context.Context, env Env, value any) (domain.Values, error) {
	mobile, phone, extra := splitPhoneNumbers(domain.AsString(value))
	out := domain.Values{"mobile": nilIfEmpty(mobile), "phone": nilIfEmpty(phone)}
	if extra != "" {
		out[domain.AppendPrefix+"comment"] = "[Teléfonos extra] " + extra
	}
	return out, nil
}

func (phoneTransformer) Reverse(ctx context.Context, env Env, value any, record domain.Record) (any, error) {
	mobile := record.String("mobile")
	phone := record.String("phone")
	switch {
	case mobile != "" && phone != "":
		return mobile + "/" + phone, nil
	case mobile != "":
		return mobile, nil
	case phone != "":
		return phone, nil
	}
	return nil, nil
}

func splitPhoneNumbers(raw string) (mobile, phone, extra string) {
	if strings.TrimSpace(raw) == "" {
		return "", "", ""
	}
	var extras []string
	for _, part := range strings.Split(raw, "/") {
		number := strings.TrimSpace(part)
		if number == "" {
			continue
		}
		isMobile := strings.HasPrefix(number, "6") || strings.HasPrefix(number, "7")
		switch {
		case isMobile && mobile == "":
			mobile = number
		case !isMobile && phone == "":
			phone = number
		default:
			extras = append(extras, number)
		}
	}
	return mobile, phone, strings.Join(extras, " / ")
}

// countryStateTransformer matches a province name against every known state.
type countryStateTransformer struct{}

func (countryStateTransformer) Forward(ctx context.Context, env Env, value any) (domain.Values, error) {
	name := domain.AsString(value)
	if name == "" {
		return domain.Values{"state_id": nil}, nil
	}
	if _, err := spainID(ctx, env); err != nil {
		return nil, err
	}

	states, err := env.Records.Search(ctx, StateCollection, nil, domain.SearchOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}
	for _, state := range states {
		if sameName(state.String("name"), name) {
			return domain.Values{"state_id": state.ID}, nil
		}
	}
	return domain.Values{"state_id": nil}, nil
}

func (countryStateTransformer) Reverse(ctx context.Context, env Env, value any, record domain.Record) (any, error) {
	id, ok := domain.AsInt64(value)
	if !ok || id == 0 {
		return nil, nil
	}
	state, err := env.Records.GetByID(ctx, StateCollection, id)
	if err != nil {
		return nil, nil
	}
	return strings.ToUpper(state.String("name")), nil
}

// estadoToActiveTransformer maps a status code to the active flag: negative is inactive.
type estadoToActiveTransformer struct{}

func (estadoToActiveTransformer) Forward(ctx context.Context, env Env, value any) (domain.Values, error) {
	if value == nil {
		return domain.Values{"active": true}, nil
	}
	status, ok := domain.AsFloat(value)
	if !ok {
		return nil, fmt.Errorf("%w: Estado %v is not numeric", domain.ErrMalformedValue, value)
	}
	return domain.Values{"active": status >= 0}, nil
}

func (estadoToActiveTransformer) Reverse(ctx context.Context, env Env, value any, record domain.Record) (any, error) {
	if record.Active() {
		return 9, nil
	}
	return -1, nil
}

// clientePrincipalTransformer maps the principal flag onto company and address type.
type clientePrincipalTransformer struct{}

func (clientePrincipalTransformer) Forward(ctx context.Context, env Env, value any) (domain.Values, error) {
	principal := domain.Truthy(value)
	addressType := "delivery"
	if principal {
		addressType = "invoice"
	}
	return domain.Values{"is_company": principal, "type": addressType}, nil
}

func (clientePrincipalTransformer) Reverse(ctx context.Context, env Env, value any, record domain.Record) (any, error) {
	return record.String("type") == "invoice", nil
}

// spainCountryTransformer always sets the country to Spain.
type spainCountryTransformer struct{}

func (spainCountryTransformer) Forward(ctx context.Context, env Env, value any) (domain.Values, error) {
	id, err := spainID(ctx, env)
	if err != nil {
		return nil, err
	}
	return domain.Values{"country_id": id}, nil
}

func (spainCountryTransformer) Reverse(ctx context.Context, env Env, value any, record domain.Record) (any, error) {
	return nil, nil
}

func spainID(ctx context.Context, env Env) (int64, error) {
	found, err := env.Records.Search(ctx, CountryCollection, []domain.Criterion{domain.Eq("code", "ES")}, domain.SearchOptions{Limit: 1})
	if err != nil {
		return 0, fmt.Errorf("failed to look up country ES: %w", err)
	}
	if len(found) == 0 {
		return 0, fmt.Errorf("%w: El país España no está configurado", domain.ErrTransformationFailure)
	}
	return found[0].ID, nil
}

// countryCodeTransformer resolves an ISO country code.
type countryCodeTransformer struct{}

func (countryCodeTransformer) Forward(ctx context.Context, env Env, value any) (domain.Values, error) {
	code := strings.ToUpper(domain.AsString(value))
	if code == "" {
		return domain.Values{"country_id": nil}, nil
	}
	found, err := env.Records.Search(ctx, CountryCollection, []domain.Criterion{domain.Eq("code", code)}, domain.SearchOptions{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to look up country %s: %w", code, err)
	}
	if len(found) == 0 {
		return domain.Values{"country_id": nil}, nil
	}
	return domain.Values{"country_id": found[0].ID}, nil
}

func (countryCodeTransformer) Reverse(ctx context.Context, env Env, value any, record domain.Record) (any, error) {
	id, ok := domain.AsInt64(value)
	if !ok || id == 0 {
		return nil, nil
	}
	country, err := env.Records.GetByID(ctx, CountryCollection, id)
	if err != nil {
		return nil, nil
	}
	return country.String("code"), nil
}

// cargoFunctions maps external job codes to job titles.
var cargoFunctions = map[int64]string{
	1:  "Gerente",
	2:  "Administración",
	3:  "Compras",
	4:  "Contabilidad",
	5:  "Comercial",
	10: "Recepción",
	14: "Esteticista",
	22: "Propietario",
	26: "Director técnico",
	28: "Peluquero",
}

// cargosTransformer maps a job code to its title.
type cargosTransformer struct{}

func (cargosTransformer) Forward(ctx context.Context, env Env, value any) (domain.Values, error) {
	code, ok := domain.AsInt64(value)
	if !ok {
		return domain.Values{"function": nil}, nil
	}
	function, known := cargoFunctions[code]
	if !known {
		return domain.Values{"function": nil}, nil
	}
	return domain.Values{"function": function}, nil
}

func (cargosTransformer) Reverse(ctx context.Context, env Env, value any, record domain.Record) (any, error) {
	function, ok := value.(string)
	if !ok || function == "" {
		return nil, nil
	}
	for code, name := range cargoFunctions {
		if name == function {
			return code, nil
		}
	}
	return nil, nil
}

// vendedorTransformer assigns the salesperson by the login carried in VendedorEmail.
type vendedorTransformer struct{}

func (vendedorTransformer) Forward(ctx context.Context, env Env, value any) (domain.Values, error) {
	out := domain.Values{"vendedor_externo": nilIfEmpty(domain.AsString(value))}
	email := domain.AsString(env.Message["VendedorEmail"])
	if email == "" {
		return out, nil
	}
	found, err := env.Records.Search(ctx, UserCollection,
		[]domain.Criterion{{Field: "login", Op: domain.OpIEq, Value: email}},
		domain.SearchOptions{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %s: %w", email, err)
	}
	if len(found) == 0 {
		out["user_id"] = nil
		return out, nil
	}
	out["user_id"] = found[0].ID
	return out, nil
}

func (vendedorTransformer) Reverse(ctx context.Context, env Env, value any, record domain.Record) (any, error) {
	out := map[string]any{"Vendedor": record.String("vendedor_externo"), "VendedorEmail": nil}
	id, ok := domain.AsInt64(record.Get("user_id"))
	if !ok || id == 0 {
		return out, nil
	}
	user, err := env.Records.GetByID(ctx, UserCollection, id)
	if err != nil {
		return out, nil
	}
	if login := user.String("login"); login != "" {
		out["VendedorEmail"] = login
	}
	return out, nil
}

func nilIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
