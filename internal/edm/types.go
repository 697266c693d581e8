package edm

// jsonSchemaTypes maps EDM primitive types to the JSON schema type used
// in tool argument schemas. Edm.Decimal and Edm.Int64 are exposed as
// strings so values survive the trip through a float64 JSON decoder.
var jsonSchemaTypes = map[string]string{
	"Edm.String":         "string",
	"Edm.Guid":           "string",
	"Edm.Binary":         "string",
	"Edm.Boolean":        "boolean",
	"Edm.Byte":           "integer",
	"Edm.SByte":          "integer",
	"Edm.Int16":          "integer",
	"Edm.Int32":          "integer",
	"Edm.Int64":          "string",
	"Edm.Decimal":        "string",
	"Edm.Single":         "number",
	"Edm.Double":         "number",
	"Edm.Float":          "number",
	"Edm.DateTime":       "string",
	"Edm.DateTimeOffset": "string",
	"Edm.Date":           "string",
	"Edm.Time":           "string",
}

// JSONSchemaType returns the JSON schema type for an EDM type,
// defaulting to string for anything unrecognized.
func JSONSchemaType(edmType string) string {
	if t, ok := jsonSchemaTypes[edmType]; ok {
		return t
	}
	return "string"
}

// IsNumericType reports whether an EDM type carries a numeric value,
// regardless of how the tool schema exposes it.
func IsNumericType(edmType string) bool {
	switch edmType {
	case "Edm.Byte", "Edm.SByte", "Edm.Int16", "Edm.Int32", "Edm.Int64",
		"Edm.Decimal", "Edm.Single", "Edm.Double", "Edm.Float":
		return true
	}
	return false
}

// IsStringType reports whether an EDM type is quoted in key literals.
func IsStringType(edmType string) bool {
	switch edmType {
	case "Edm.String", "Edm.Guid", "Edm.DateTime", "Edm.DateTimeOffset",
		"Edm.Date", "Edm.Time":
		return true
	}
	return false
}
