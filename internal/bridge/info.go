package bridge

import (
	"context"
	"fmt"
)

// handleInfo assembles the service overview: what is exposed, which
// operations survived gating, and any loaded hints verbatim.
func (b *Bridge) handleInfo(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	entitySets := make(map[string]interface{}, len(b.meta.EntitySets))
	for name, set := range b.meta.EntitySets {
		et := b.meta.TypeFor(set)
		entry := map[string]interface{}{
			"entity_type": set.EntityType,
			"capabilities": map[string]bool{
				"creatable":  set.Creatable,
				"updatable":  set.Updatable,
				"deletable":  set.Deletable,
				"searchable": set.Searchable,
				"pageable":   set.Pageable,
			},
		}
		if et != nil {
			entry["key_properties"] = et.KeyNames
			props := make([]map[string]interface{}, 0, len(et.Properties))
			for _, p := range et.Properties {
				props = append(props, map[string]interface{}{
					"name":     p.Name,
					"type":     p.Type,
					"nullable": p.Nullable,
					"is_key":   p.IsKey,
				})
			}
			entry["properties"] = props
		}
		entitySets[name] = entry
	}

	functions := make(map[string]interface{}, len(b.meta.FunctionImports))
	for name, fi := range b.meta.FunctionImports {
		params := make([]map[string]interface{}, 0, len(fi.Parameters))
		for _, p := range fi.Parameters {
			params = append(params, map[string]interface{}{
				"name":     p.Name,
				"type":     p.Type,
				"optional": p.Nullable,
			})
		}
		functions[name] = map[string]interface{}{
			"http_method": fi.HTTPMethod,
			"return_type": fi.ReturnType,
			"parameters":  params,
		}
	}

	info := map[string]interface{}{
		"service_url":      b.client.BaseURL(),
		"service_id":       b.serviceID,
		"odata_version":    "2.0",
		"entity_sets":      entitySets,
		"function_imports": functions,
		"tools":            b.server.ToolNames(),
	}
	if b.meta.FromFallback {
		info["notice"] = "Metadata document was unavailable; entity shapes were inferred from the service document and write operations are disabled."
	}
	if b.meta.SchemaNamespace != "" {
		info["schema_namespace"] = b.meta.SchemaNamespace
	}

	if b.hints != nil {
		if hint := b.hints.ForService(b.cfg.ServiceURL); hint != nil {
			info["implementation_hints"] = hint
		}
	}

	info["description"] = fmt.Sprintf(
		"OData v2 service with %d entity sets and %d function imports, exposed as MCP tools.",
		len(b.meta.EntitySets), len(b.meta.FunctionImports))
	return info, nil
}
