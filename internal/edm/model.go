// Package edm holds the parsed service metadata model. Values of these
// types are built once during startup and treated as immutable afterwards,
// so they may be shared freely across concurrent tool calls.
package edm

import (
	"strings"
	"time"
)

// Property is a single declared property of an entity type.
type Property struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // Edm.* type name
	Nullable    bool   `json:"nullable"`
	IsKey       bool   `json:"is_key"`
	MaxLength   int    `json:"max_length,omitempty"` // 0 when unspecified
	Description string `json:"description,omitempty"`
}

// EntityType describes an entity's shape.
type EntityType struct {
	Name          string     `json:"name"`
	Properties    []Property `json:"properties"`
	KeyNames      []string   `json:"key_properties"`
	NavigationProps []string `json:"navigation_properties,omitempty"`
}

// KeyProperties returns the key properties in declaration order.
func (et *EntityType) KeyProperties() []Property {
	keys := make([]Property, 0, len(et.KeyNames))
	for _, name := range et.KeyNames {
		if p, ok := et.Property(name); ok {
			keys = append(keys, p)
		}
	}
	return keys
}

// Property looks up a declared property by name.
func (et *EntityType) Property(name string) (Property, bool) {
	for _, p := range et.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// EntitySet is an exposed collection with its SAP capability flags.
// Absent capability annotations mean the operation is allowed, so the
// zero value is not useful; construct with DefaultCapabilities.
type EntitySet struct {
	Name        string `json:"name"`
	EntityType  string `json:"entity_type"`
	Creatable   bool   `json:"creatable"`
	Updatable   bool   `json:"updatable"`
	Deletable   bool   `json:"deletable"`
	Searchable  bool   `json:"searchable"`
	Pageable    bool   `json:"pageable"`
	Addressable bool   `json:"addressable"`
	Description string `json:"description,omitempty"`
}

// FunctionParameter is a declared function import parameter.
type FunctionParameter struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Mode     string `json:"mode,omitempty"`
}

// FunctionImport is a service operation.
type FunctionImport struct {
	Name       string              `json:"name"`
	HTTPMethod string              `json:"http_method"` // GET or POST
	ReturnType string              `json:"return_type,omitempty"`
	Parameters []FunctionParameter `json:"parameters"`
}

// ServiceMetadata is the complete parsed description of one service.
type ServiceMetadata struct {
	ServiceRoot     string                     `json:"service_root"`
	SchemaNamespace string                     `json:"schema_namespace,omitempty"`
	ContainerName   string                     `json:"container_name,omitempty"`
	EntityTypes     map[string]*EntityType     `json:"entity_types"`
	EntitySets      map[string]*EntitySet      `json:"entity_sets"`
	FunctionImports map[string]*FunctionImport `json:"function_imports"`
	FromFallback    bool                       `json:"from_fallback,omitempty"`
	ParsedAt        time.Time                  `json:"parsed_at"`
}

// TypeFor resolves the entity type backing a set, if known.
func (m *ServiceMetadata) TypeFor(set *EntitySet) *EntityType {
	return m.EntityTypes[set.EntityType]
}

// DefaultCapabilities returns a set with every capability allowed, the
// OData v2 meaning of an absent sap: annotation.
func DefaultCapabilities(name, entityType string) *EntitySet {
	return &EntitySet{
		Name:        name,
		EntityType:  entityType,
		Creatable:   true,
		Updatable:   true,
		Deletable:   true,
		Searchable:  true,
		Pageable:    true,
		Addressable: true,
	}
}

// guidNameFragments are the property-name markers that, combined with a
// 16-byte binary type, identify a field as a packed GUID. F and T cover
// graph-style from/to edge keys.
var guidNameFragments = []string{"ID", "GUID", "F", "T"}

// IsGUIDShaped reports whether a property holds GUID values: either a
// declared Edm.Guid, or a 16-byte Edm.Binary whose name suggests an
// identifier.
func IsGUIDShaped(p Property) bool {
	if p.Type == "Edm.Guid" {
		return true
	}
	if p.Type != "Edm.Binary" || p.MaxLength != 16 {
		return false
	}
	upper := strings.ToUpper(p.Name)
	for _, frag := range guidNameFragments {
		if strings.Contains(upper, frag) {
			return true
		}
	}
	return false
}
