package transformations

// Reference collections read and written by the built-in extensions.
const (
	CountryCollection  = "res.country"
	StateCollection    = "res.country.state"
	UserCollection     = "res.users"
	CategoryCollection = "product.category"
	UoMCollection      = "uom.uom"
	ProductCollection  = "product.template"
	BOMCollection      = "mrp.bom"
)
