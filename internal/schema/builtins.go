package schema

import "github.com/rpattn/entitysync/internal/domain"

// DefaultTopic is the outbound topic shared by the built-in entities.
const DefaultTopic = "sincronizacion-tablas"

// Builtins returns the entity schemas shipped with the service.
func Builtins() []domain.EntitySchema {
	return []domain.EntitySchema{Cliente(), Producto()}
}

// Cliente describes customers with their contact people as children.
func Cliente() domain.EntitySchema {
	return domain.EntitySchema{
		Name:            "cliente",
		Collection:      "res.partner",
		MessageType:     "cliente",
		IDFields:        []string{"cliente_externo", "contacto_externo", "persona_contacto_externa"},
		PublishIDFields: []string{"cliente_externo", "contacto_externo"},
		ExternalIDs: []domain.ExternalID{
			{Field: "cliente_externo", Path: "Cliente"},
			{Field: "contacto_externo", Path: "Contacto"},
			{Field: "persona_contacto_externa", Path: "Id", ChildScoped: true, FlatFallback: "PersonaContacto"},
		},
		Fields: []domain.FieldMappingRule{
			domain.Direct("Nombre", "name").WithRequired().WithDefault("<Nombre cliente no proporcionado>"),
			domain.Direct("Direccion", "street"),
			domain.Direct("Nif", "vat"),
			domain.Direct("CodigoPostal", "zip"),
			domain.Direct("Poblacion", "city"),
			domain.Direct("Comentarios", "comment"),
			domain.Transformed("Telefono", "phone", "mobile", "phone", "comment"),
			domain.Transformed("Provincia", "country_state", "state_id"),
			domain.Transformed("Estado", "estado_to_active", "active"),
			domain.Transformed("ClientePrincipal", "cliente_principal", "is_company", "type"),
			domain.Direct("PersonaContacto", "persona_contacto_externa"),
			domain.Transformed("Vendedor", "vendedor", "user_id", "vendedor_externo"),
			domain.Transformed("_country", "spain_country", "country_id"),
			domain.FromContext("_company", "company_id", "company_id"),
		},
		ChildFields: []domain.FieldMappingRule{
			domain.Direct("Nombre", "name").WithRequired().WithDefault("<Nombre no proporcionado>"),
			domain.Direct("CorreoElectronico", "email"),
			domain.Transformed("Telefonos", "phone", "mobile", "phone"),
			domain.Transformed("Cargo", "cargos", "function"),
			domain.Direct("Comentarios", "comment"),
			domain.Fixed("_type", "type", "contact"),
			domain.FromContext("_company", "company_id", "company_id"),
			domain.Transformed("_country", "spain_country", "country_id"),
		},
		Hierarchy: domain.Hierarchy{
			Enabled:     true,
			ParentField: "parent_id",
			ChildKeys:   []string{"PersonasContacto"},
		},
		Reverse: []domain.ReverseMapping{
			{Field: "cliente_externo", Key: "Cliente"},
			{Field: "contacto_externo", Key: "Contacto"},
			{Field: "vendedor_externo", Key: "Vendedor"},
		},
		ReverseChild: []domain.ReverseMapping{
			{Field: "persona_contacto_externa", Key: "Id"},
		},
		AlwaysInclude:  []string{"ClientePrincipal"},
		PostProcessors: []string{"assign_email_from_children", "merge_comments"},
		Validators:     []string{"validate_cliente_principal_exists"},
		Bidirectional:  true,
		Topic:          DefaultTopic,
		ExternalTable:  "Clientes",
		DetectionKeys:  []string{"Cliente"},
		FieldKinds: map[string]domain.FieldKind{
			"cliente_externo":          domain.FieldKindChar,
			"contacto_externo":         domain.FieldKindChar,
			"persona_contacto_externa": domain.FieldKindChar,
			"name":                     domain.FieldKindChar,
			"street":                   domain.FieldKindChar,
			"vat":                      domain.FieldKindChar,
			"zip":                      domain.FieldKindChar,
			"city":                     domain.FieldKindChar,
			"comment":                  domain.FieldKindHTML,
			"mobile":                   domain.FieldKindChar,
			"phone":                    domain.FieldKindChar,
			"email":                    domain.FieldKindChar,
			"function":                 domain.FieldKindChar,
			"state_id":                 domain.FieldKindMany2One,
			"country_id":               domain.FieldKindMany2One,
			"company_id":               domain.FieldKindMany2One,
			"parent_id":                domain.FieldKindMany2One,
			"user_id":                  domain.FieldKindMany2One,
			"vendedor_externo":         domain.FieldKindChar,
			"active":                   domain.FieldKindBoolean,
			"is_company":               domain.FieldKindBoolean,
			"type":                     domain.FieldKindSelection,
		},
	}
}

// Producto describes products. Kits carry their components in ProductosKit.
func Producto() domain.EntitySchema {
	return domain.EntitySchema{
		Name:        "producto",
		Collection:  "product.template",
		MessageType: "producto",
		IDFields:    []string{"producto_externo"},
		ExternalIDs: []domain.ExternalID{
			{Field: "producto_externo", Path: "Producto"},
		},
		Fields: []domain.FieldMappingRule{
			domain.Direct("Producto", "default_code"),
			domain.Direct("Nombre", "name").WithRequired().WithDefault("<Nombre producto no proporcionado>"),
			domain.Direct("PrecioProfesional", "list_price").WithDefault(0.0),
			domain.Transformed("Tamanno", "unidad_medida_y_tamanno", "weight", "volume", "product_length", "uom_id", "uom_po_id"),
			domain.Direct("CodigoBarras", "barcode"),
			domain.Transformed("Estado", "estado_to_active", "active"),
			domain.Transformed("Ficticio", "ficticio_to_detailed_type", "detailed_type"),
			domain.Transformed("Grupo", "grupo", "grupo_id", "sale_ok"),
			domain.Transformed("Subgrupo", "subgrupo", "subgrupo_id"),
			domain.Transformed("Familia", "familia", "familia_id"),
			domain.Transformed("UrlFoto", "url_to_image", "image_1920", "url_imagen_actual"),
			domain.FromContext("_company", "company_id", "company_id"),
		},
		Reverse: []domain.ReverseMapping{
			{Field: "producto_externo", Key: "Producto"},
		},
		PostProcessors: []string{"sync_product_bom"},
		Bidirectional:  true,
		Topic:          DefaultTopic,
		ExternalTable:  "Productos",
		DetectionKeys:  []string{"Producto"},
		ComponentsKey:  "ProductosKit",
		FieldKinds: map[string]domain.FieldKind{
			"producto_externo":  domain.FieldKindChar,
			"default_code":      domain.FieldKindChar,
			"name":              domain.FieldKindChar,
			"list_price":        domain.FieldKindFloat,
			"barcode":           domain.FieldKindChar,
			"weight":            domain.FieldKindFloat,
			"volume":            domain.FieldKindFloat,
			"product_length":    domain.FieldKindFloat,
			"uom_id":            domain.FieldKindMany2One,
			"uom_po_id":         domain.FieldKindMany2One,
			"active":            domain.FieldKindBoolean,
			"detailed_type":     domain.FieldKindSelection,
			"grupo_id":          domain.FieldKindMany2One,
			"subgrupo_id":       domain.FieldKindMany2One,
			"familia_id":        domain.FieldKindMany2One,
			"sale_ok":           domain.FieldKindBoolean,
			"image_1920":        domain.FieldKindBinary,
			"url_imagen_actual": domain.FieldKindChar,
			"company_id":        domain.FieldKindMany2One,
		},
	}
}
