package normalize

import (
	"github.com/sapmcp/odata-bridge/internal/convert"
	"github.com/sapmcp/odata-bridge/internal/edm"
)

// PreparePayload coerces an inbound create/update body for the wire:
// undeclared properties are dropped, decimals become strings,
// canonical GUIDs are packed back to base64 and ISO dates return to
// the legacy format when the service expects it.
func PreparePayload(args map[string]interface{}, et *edm.EntityType, legacyDates bool) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for name, value := range args {
		prop, declared := propFor(et, name)
		if !declared {
			continue
		}
		out[name] = coerceValue(value, prop, legacyDates)
	}
	return out
}

func propFor(et *edm.EntityType, name string) (edm.Property, bool) {
	if et == nil {
		return edm.Property{}, false
	}
	return et.Property(name)
}

func coerceValue(value interface{}, prop edm.Property, legacyDates bool) interface{} {
	switch prop.Type {
	case "Edm.Decimal", "Edm.Int64":
		if _, isString := value.(string); !isString {
			return convert.DecimalString(value)
		}
		return value

	case "Edm.DateTime", "Edm.DateTimeOffset":
		if s, ok := value.(string); ok && legacyDates && convert.LooksLikeISODate(s) {
			return convert.ISOToLegacy(s)
		}
		return value
	}

	if edm.IsGUIDShaped(prop) {
		if s, ok := value.(string); ok && convert.IsCanonicalGUID(s) {
			return convert.GUIDToBase64(s)
		}
	}
	return value
}
