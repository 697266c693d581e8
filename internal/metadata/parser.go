// Package metadata parses OData v2 $metadata documents into the edm
// model, with a service-document fallback for services that refuse to
// serve EDMX.
package metadata

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sapmcp/odata-bridge/internal/edm"
)

// EDMX document structure. Only the elements the bridge consumes are
// mapped; everything else is ignored by encoding/xml.
type edmxDocument struct {
	XMLName      xml.Name     `xml:"Edmx"`
	Version      string       `xml:"Version,attr"`
	DataServices dataServices `xml:"DataServices"`
}

type dataServices struct {
	Schemas []schema `xml:"Schema"`
}

type schema struct {
	Namespace   string            `xml:"Namespace,attr"`
	EntityTypes []entityTypeXML   `xml:"EntityType"`
	Containers  []entityContainer `xml:"EntityContainer"`
}

type entityTypeXML struct {
	Name          string           `xml:"Name,attr"`
	Keys          []keyElement     `xml:"Key"`
	Properties    []propertyXML    `xml:"Property"`
	NavProperties []navPropertyXML `xml:"NavigationProperty"`
}

type keyElement struct {
	PropertyRefs []propertyRef `xml:"PropertyRef"`
}

type propertyRef struct {
	Name string `xml:"Name,attr"`
}

type propertyXML struct {
	Name      string `xml:"Name,attr"`
	Type      string `xml:"Type,attr"`
	Nullable  string `xml:"Nullable,attr"`
	MaxLength string `xml:"MaxLength,attr"`
	Label     string `xml:"label,attr"`
}

type navPropertyXML struct {
	Name string `xml:"Name,attr"`
}

type entityContainer struct {
	Name            string              `xml:"Name,attr"`
	EntitySets      []entitySetXML      `xml:"EntitySet"`
	FunctionImports []functionImportXML `xml:"FunctionImport"`
}

type entitySetXML struct {
	Name        string `xml:"Name,attr"`
	EntityType  string `xml:"EntityType,attr"`
	Creatable   string `xml:"creatable,attr"`
	Updatable   string `xml:"updatable,attr"`
	Deletable   string `xml:"deletable,attr"`
	Searchable  string `xml:"searchable,attr"`
	Pageable    string `xml:"pageable,attr"`
	Addressable string `xml:"addressable,attr"`
	Label       string `xml:"label,attr"`
}

type functionImportXML struct {
	Name       string         `xml:"Name,attr"`
	HTTPMethod string         `xml:"HttpMethod,attr"`
	ReturnType string         `xml:"ReturnType,attr"`
	Parameters []parameterXML `xml:"Parameter"`
}

type parameterXML struct {
	Name     string `xml:"Name,attr"`
	Type     string `xml:"Type,attr"`
	Nullable string `xml:"Nullable,attr"`
	Mode     string `xml:"Mode,attr"`
}

// Parse converts a raw $metadata document into the service model.
// SAP capability attributes default to allowed when absent.
func Parse(raw []byte, serviceRoot string) (*edm.ServiceMetadata, error) {
	var doc edmxDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing EDMX: %w", err)
	}

	meta := &edm.ServiceMetadata{
		ServiceRoot:     strings.TrimSuffix(serviceRoot, "/"),
		EntityTypes:     make(map[string]*edm.EntityType),
		EntitySets:      make(map[string]*edm.EntitySet),
		FunctionImports: make(map[string]*edm.FunctionImport),
		ParsedAt:        time.Now(),
	}

	for _, s := range doc.DataServices.Schemas {
		if len(s.EntityTypes) > 0 && meta.SchemaNamespace == "" {
			meta.SchemaNamespace = s.Namespace
		}
		for _, et := range s.EntityTypes {
			parsed := parseEntityType(et)
			meta.EntityTypes[parsed.Name] = parsed
		}
		for _, c := range s.Containers {
			if meta.ContainerName == "" {
				meta.ContainerName = c.Name
			}
			for _, es := range c.EntitySets {
				parsed := parseEntitySet(es)
				meta.EntitySets[parsed.Name] = parsed
			}
			for _, fi := range c.FunctionImports {
				parsed := parseFunctionImport(fi)
				meta.FunctionImports[parsed.Name] = parsed
			}
		}
	}

	if len(meta.EntitySets) == 0 && len(meta.FunctionImports) == 0 {
		return nil, fmt.Errorf("metadata document contains no entity sets or function imports")
	}
	return meta, nil
}

func parseEntityType(raw entityTypeXML) *edm.EntityType {
	et := &edm.EntityType{Name: raw.Name}

	keySet := make(map[string]bool)
	for _, k := range raw.Keys {
		for _, ref := range k.PropertyRefs {
			keySet[ref.Name] = true
			et.KeyNames = append(et.KeyNames, ref.Name)
		}
	}

	for _, p := range raw.Properties {
		prop := edm.Property{
			Name:        p.Name,
			Type:        p.Type,
			Nullable:    p.Nullable != "false", // absent means nullable
			IsKey:       keySet[p.Name],
			Description: p.Label,
		}
		if p.MaxLength != "" && p.MaxLength != "Max" {
			if n, err := strconv.Atoi(p.MaxLength); err == nil {
				prop.MaxLength = n
			}
		}
		et.Properties = append(et.Properties, prop)
	}

	for _, np := range raw.NavProperties {
		et.NavigationProps = append(et.NavigationProps, np.Name)
	}
	return et
}

func parseEntitySet(raw entitySetXML) *edm.EntitySet {
	set := edm.DefaultCapabilities(raw.Name, stripNamespace(raw.EntityType))
	// An explicit "false" is the only thing that withdraws a capability.
	set.Creatable = raw.Creatable != "false"
	set.Updatable = raw.Updatable != "false"
	set.Deletable = raw.Deletable != "false"
	set.Searchable = raw.Searchable != "false"
	set.Pageable = raw.Pageable != "false"
	set.Addressable = raw.Addressable != "false"
	set.Description = raw.Label
	return set
}

func parseFunctionImport(raw functionImportXML) *edm.FunctionImport {
	fi := &edm.FunctionImport{
		Name:       raw.Name,
		HTTPMethod: raw.HTTPMethod,
		ReturnType: stripNamespace(raw.ReturnType),
	}
	if fi.HTTPMethod == "" {
		fi.HTTPMethod = "GET"
	}
	for _, p := range raw.Parameters {
		fi.Parameters = append(fi.Parameters, edm.FunctionParameter{
			Name:     p.Name,
			Type:     p.Type,
			Nullable: p.Nullable == "true", // parameters are required unless marked nullable
			Mode:     p.Mode,
		})
	}
	return fi
}

// stripNamespace removes a schema-qualified prefix, keeping collection
// wrappers intact: "NS.Product" -> "Product",
// "Collection(NS.Product)" -> "Collection(Product)".
func stripNamespace(typeName string) string {
	if inner, ok := strings.CutPrefix(typeName, "Collection("); ok {
		inner = strings.TrimSuffix(inner, ")")
		return "Collection(" + stripNamespace(inner) + ")"
	}
	if idx := strings.LastIndex(typeName, "."); idx >= 0 {
		return typeName[idx+1:]
	}
	return typeName
}

// serviceDocument is the JSON service document shape used as fallback.
type serviceDocument struct {
	D struct {
		EntitySets []string `json:"EntitySets"`
		Results    []struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"results"`
	} `json:"d"`
}

// ParseServiceDocument synthesizes a minimal service model from the
// JSON service document. Entity shapes are unknown, so each set gets a
// single string ID key and no write capabilities.
func ParseServiceDocument(raw []byte, serviceRoot string) (*edm.ServiceMetadata, error) {
	var doc serviceDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing service document: %w", err)
	}

	names := doc.D.EntitySets
	for _, r := range doc.D.Results {
		name := r.Name
		if name == "" {
			name = r.URL
		}
		if name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("service document lists no entity sets")
	}

	meta := &edm.ServiceMetadata{
		ServiceRoot:     strings.TrimSuffix(serviceRoot, "/"),
		EntityTypes:     make(map[string]*edm.EntityType),
		EntitySets:      make(map[string]*edm.EntitySet),
		FunctionImports: make(map[string]*edm.FunctionImport),
		FromFallback:    true,
		ParsedAt:        time.Now(),
	}

	for _, name := range names {
		typeName := name + "Type"
		meta.EntityTypes[typeName] = &edm.EntityType{
			Name: typeName,
			Properties: []edm.Property{
				{Name: "ID", Type: "Edm.String", Nullable: false, IsKey: true},
			},
			KeyNames: []string{"ID"},
		}
		set := edm.DefaultCapabilities(name, typeName)
		// Guessed shapes never get write tools.
		set.Creatable = false
		set.Updatable = false
		set.Deletable = false
		set.Searchable = false
		meta.EntitySets[name] = set
	}
	return meta, nil
}
