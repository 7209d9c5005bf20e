package transformations

import (
	"context"
	"errors"
	"testing"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/repository/memory"
	"github.com/rpattn/entitysync/internal/syncctx"
)

func partnerSchema() domain.EntitySchema {
	return domain.EntitySchema{
		Name:       "cliente",
		Collection: "res.partner",
		Hierarchy:  domain.Hierarchy{Enabled: true, ParentField: "parent_id", ChildKeys: []string{"PersonasContacto"}},
		Fields: []domain.FieldMappingRule{
			domain.Direct("Cliente", "cliente_externo").WithRequired(),
			domain.Direct("Nombre", "name"),
		},
	}
}

func TestClientePrincipalMustExistForBranches(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore()
	env := Env{Records: store, Schema: partnerSchema()}
	message := map[string]any{"Cliente": "C1", "ClientePrincipal": false}

	values := domain.Values{"cliente_externo": "C1"}
	err := validateClientePrincipalExists(ctx, env, message, values)
	if !errors.Is(err, domain.ErrDependencyNotReady) {
		t.Fatalf("expected dependency not ready, got %v", err)
	}

	principal := store.Seed("res.partner", domain.Values{"cliente_externo": "C1"})
	if err := validateClientePrincipalExists(ctx, env, message, values); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["parent_id"] != principal.ID {
		t.Fatalf("expected parent_id %d, got %v", principal.ID, values["parent_id"])
	}
}

func TestClientePrincipalSkipsPrincipals(t *testing.T) {
	env := Env{Records: memory.NewRecordStore(), Schema: partnerSchema()}
	values := domain.Values{"cliente_externo": "C1"}
	if err := validateClientePrincipalExists(context.Background(), env, map[string]any{"ClientePrincipal": true}, values); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values.Has("parent_id") {
		t.Fatalf("principal should not get a parent link")
	}
}

func TestRequiredFieldsValidator(t *testing.T) {
	env := Env{Schema: partnerSchema()}
	v := requiredFieldsValidator{}
	if !v.MessageLevel() {
		t.Fatalf("required fields validator must run on the raw message")
	}
	err := v.Validate(context.Background(), env, map[string]any{"Cliente": "  "}, nil)
	if !errors.Is(err, domain.ErrMissingRequiredField) {
		t.Fatalf("expected missing required field, got %v", err)
	}
	if err := v.Validate(context.Background(), env, map[string]any{"Cliente": "C1"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNifFormat(t *testing.T) {
	ctx := context.Background()
	if err := validateNifFormat(ctx, Env{}, nil, domain.Values{"vat": "B1234567"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := validateNifFormat(ctx, Env{}, nil, domain.Values{"vat": "123"}); !errors.Is(err, domain.ErrMalformedValue) {
		t.Fatalf("expected malformed value, got %v", err)
	}
}

func TestMergeCommentsFoldsAccumulator(t *testing.T) {
	vs := domain.NewValueSet()
	vs.Parent["comment"] = "cliente VIP"
	vs.Parent[appendComment] = "[Teléfonos extra] 611"

	if err := mergeComments(context.Background(), Env{}, &vs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := vs.Parent["comment"]; got != "cliente VIP\n[Teléfonos extra] 611" {
		t.Fatalf("unexpected comment %q", got)
	}
	if vs.Parent.Has(appendComment) {
		t.Fatalf("accumulator should be removed")
	}
}

func TestAssignEmailFromChildren(t *testing.T) {
	vs := domain.NewValueSet().
		WithChild(domain.Values{"email": ""}).
		WithChild(domain.Values{"email": "ana@example.com"})

	if err := assignEmailFromChildren(context.Background(), Env{}, &vs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vs.Parent["email"] != "ana@example.com" {
		t.Fatalf("expected first child email, got %v", vs.Parent["email"])
	}

	vs.Parent["email"] = "own@example.com"
	_ = assignEmailFromChildren(context.Background(), Env{}, &vs)
	if vs.Parent["email"] != "own@example.com" {
		t.Fatalf("parent email must not be replaced")
	}
}

func TestSetParentIDForChildren(t *testing.T) {
	parent := int64(42)
	vs := domain.NewValueSet().WithChild(domain.Values{"name": "Ana"})
	if err := setParentIDForChildren(context.Background(), Env{Schema: partnerSchema(), ParentID: &parent}, &vs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vs.Children[0]["parent_id"] != parent {
		t.Fatalf("expected parent_id 42, got %v", vs.Children[0]["parent_id"])
	}
}

func TestContextSourcesReadActor(t *testing.T) {
	env := Env{Actor: syncctx.Actor{Login: "admin", CompanyID: 3}}
	company, _ := actorCompanyID(context.Background(), env)
	login, _ := actorLogin(context.Background(), env)
	if company != int64(3) || login != "admin" {
		t.Fatalf("unexpected context values %v %v", company, login)
	}
}
