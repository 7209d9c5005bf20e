package domain

import "testing"

func TestLookupPath(t *testing.T) {
	message := map[string]any{
		"Cliente": "100",
		"Nombre":  nil,
		"PersonaContacto": map[string]any{
			"Id": "7",
		},
	}

	if value, ok := LookupPath(message, "Cliente"); !ok || value != "100" {
		t.Fatalf("expected Cliente=100, got %v (present=%t)", value, ok)
	}
	if value, ok := LookupPath(message, "Nombre"); !ok || value != nil {
		t.Fatalf("expected Nombre present and null, got %v (present=%t)", value, ok)
	}
	if _, ok := LookupPath(message, "Direccion"); ok {
		t.Fatalf("expected Direccion to be absent")
	}
	if value, ok := LookupPath(message, "PersonaContacto.Id"); !ok || value != "7" {
		t.Fatalf("expected nested id 7, got %v", value)
	}
	if _, ok := LookupPath(message, "Cliente.Id"); ok {
		t.Fatalf("expected path through scalar to be absent")
	}
}
