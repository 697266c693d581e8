package bridge

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sapmcp/odata-bridge/internal/convert"
	"github.com/sapmcp/odata-bridge/internal/edm"
	"github.com/sapmcp/odata-bridge/internal/mcp"
	"github.com/sapmcp/odata-bridge/internal/normalize"
	"github.com/sapmcp/odata-bridge/internal/odata"
)

func objectSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	if properties == nil {
		properties = map[string]interface{}{}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(jsonType, description string) map[string]interface{} {
	return map[string]interface{}{"type": jsonType, "description": description}
}

// queryOptionProps are the shared read-query arguments of filter tools.
func queryOptionProps() map[string]interface{} {
	return map[string]interface{}{
		"filter":    prop("string", "OData $filter expression, e.g. \"Price gt 20 and startswith(Name,'A')\""),
		"select":    prop("string", "Comma-separated property list for $select"),
		"expand":    prop("string", "Comma-separated navigation properties for $expand"),
		"orderby":   prop("string", "OData $orderby expression, e.g. \"Name desc\""),
		"top":       prop("integer", "Maximum number of entities to return ($top)"),
		"skip":      prop("integer", "Number of entities to skip ($skip)"),
		"skiptoken": prop("string", "Continuation token from a previous page ($skiptoken)"),
		"count":     prop("boolean", "Include the total match count ($inlinecount=allpages)"),
	}
}

func (b *Bridge) registerFilterTool(set *edm.EntitySet, et *edm.EntityType) {
	tool := mcp.Tool{
		Name:        b.namer.name("filter", set.Name),
		Description: fmt.Sprintf("List and filter entities from %s.", set.Name),
		InputSchema: objectSchema(queryOptionProps(), nil),
	}
	b.server.RegisterTool(tool, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return b.handleFilter(ctx, set, et, args)
	})
}

func (b *Bridge) registerCountTool(set *edm.EntitySet, et *edm.EntityType) {
	tool := mcp.Tool{
		Name:        b.namer.name("count", set.Name),
		Description: fmt.Sprintf("Count entities in %s, optionally filtered.", set.Name),
		InputSchema: objectSchema(map[string]interface{}{
			"filter": prop("string", "OData $filter expression restricting the count"),
		}, nil),
	}
	b.server.RegisterTool(tool, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		filter, _ := args["filter"].(string)
		n, err := b.client.Count(ctx, set.Name, filter)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"count": n}, nil
	})
}

func (b *Bridge) registerSearchTool(set *edm.EntitySet, et *edm.EntityType) {
	tool := mcp.Tool{
		Name:        b.namer.name("search", set.Name),
		Description: fmt.Sprintf("Full-text search across %s.", set.Name),
		InputSchema: objectSchema(map[string]interface{}{
			"search_term": prop("string", "Text to search for"),
			"top":         prop("integer", "Maximum number of entities to return"),
			"skip":        prop("integer", "Number of entities to skip"),
		}, []string{"search_term"}),
	}
	b.server.RegisterTool(tool, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		query := url.Values{}
		query.Set("$search", stringArg(args["search_term"]))
		if top, ok := intArg(args, "top"); ok {
			query.Set("$top", strconv.Itoa(top))
		}
		skip := 0
		if s, ok := intArg(args, "skip"); ok {
			skip = s
			query.Set("$skip", strconv.Itoa(s))
		}
		raw, err := b.client.List(ctx, set.Name, query)
		if err != nil {
			return nil, err
		}
		return normalize.Shape(raw, b.shapeOptions(et, query, skip)), nil
	})
}

func (b *Bridge) registerGetTool(set *edm.EntitySet, et *edm.EntityType) {
	properties := map[string]interface{}{
		"select": prop("string", "Comma-separated property list for $select"),
		"expand": prop("string", "Comma-separated navigation properties for $expand"),
	}
	required := keyArgSchema(et, properties)

	tool := mcp.Tool{
		Name:        b.namer.name("get", set.Name),
		Description: fmt.Sprintf("Retrieve a single entity from %s by key.", set.Name),
		InputSchema: objectSchema(properties, required),
	}
	b.server.RegisterTool(tool, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		predicate, err := b.keyPredicate(et, args)
		if err != nil {
			return nil, err
		}
		query := url.Values{}
		if sel, ok := args["select"].(string); ok && sel != "" {
			query.Set("$select", sel)
		}
		if exp, ok := args["expand"].(string); ok && exp != "" {
			query.Set("$expand", exp)
		}
		raw, err := b.client.Get(ctx, set.Name, predicate, query)
		if err != nil {
			return nil, err
		}
		return normalize.Shape(raw, b.shapeOptions(et, query, 0)), nil
	})
}

func (b *Bridge) registerCreateTool(set *edm.EntitySet, et *edm.EntityType) {
	properties := map[string]interface{}{}
	var required []string
	for _, p := range et.Properties {
		if p.IsKey {
			continue
		}
		properties[p.Name] = prop(edm.JSONSchemaType(p.Type), describeProp(p))
		if !p.Nullable {
			required = append(required, p.Name)
		}
	}

	tool := mcp.Tool{
		Name:        b.namer.name("create", set.Name),
		Description: fmt.Sprintf("Create a new entity in %s.", set.Name),
		InputSchema: objectSchema(properties, required),
	}
	b.server.RegisterTool(tool, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		payload := normalize.PreparePayload(args, et, b.cfg.LegacyDates)
		raw, err := b.client.Create(ctx, set.Name, payload)
		if err != nil {
			return nil, err
		}
		return normalize.Shape(raw, b.shapeOptions(et, url.Values{}, 0)), nil
	})
}

func (b *Bridge) registerUpdateTool(set *edm.EntitySet, et *edm.EntityType) {
	properties := map[string]interface{}{}
	required := keyArgSchema(et, properties)
	for _, p := range et.Properties {
		if p.IsKey {
			continue
		}
		properties[p.Name] = prop(edm.JSONSchemaType(p.Type), describeProp(p))
	}
	properties["_method"] = prop("string", "Force the HTTP method (PUT or MERGE); default is MERGE with a PUT retry on 405")

	tool := mcp.Tool{
		Name:        b.namer.name("update", set.Name),
		Description: fmt.Sprintf("Update an existing entity in %s (partial update).", set.Name),
		InputSchema: objectSchema(properties, required),
	}
	b.server.RegisterTool(tool, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		predicate, err := b.keyPredicate(et, args)
		if err != nil {
			return nil, err
		}
		changes := make(map[string]interface{})
		for name, value := range args {
			if p, ok := et.Property(name); ok && !p.IsKey {
				changes[name] = value
			}
		}
		if len(changes) == 0 {
			return nil, odata.Argumentf("no updatable properties supplied")
		}
		method, _ := args["_method"].(string)
		method = strings.ToUpper(strings.TrimSpace(method))
		if method != "" && method != "PUT" && method != "MERGE" {
			return nil, odata.Argumentf("_method must be PUT or MERGE, got %q", method)
		}
		payload := normalize.PreparePayload(changes, et, b.cfg.LegacyDates)
		raw, err := b.client.Update(ctx, set.Name, predicate, payload, method)
		if err != nil {
			return nil, err
		}
		return normalize.Shape(raw, b.shapeOptions(et, url.Values{}, 0)), nil
	})
}

func (b *Bridge) registerDeleteTool(set *edm.EntitySet, et *edm.EntityType) {
	properties := map[string]interface{}{}
	required := keyArgSchema(et, properties)

	tool := mcp.Tool{
		Name:        b.namer.name("delete", set.Name),
		Description: fmt.Sprintf("Delete an entity from %s by key.", set.Name),
		InputSchema: objectSchema(properties, required),
	}
	b.server.RegisterTool(tool, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		predicate, err := b.keyPredicate(et, args)
		if err != nil {
			return nil, err
		}
		return b.client.Delete(ctx, set.Name, predicate)
	})
}

func (b *Bridge) registerFunctionTool(fi *edm.FunctionImport) {
	properties := map[string]interface{}{}
	var required []string
	for _, p := range fi.Parameters {
		properties[p.Name] = prop(edm.JSONSchemaType(p.Type), fmt.Sprintf("%s parameter (%s)", p.Name, p.Type))
		if !p.Nullable {
			required = append(required, p.Name)
		}
	}

	desc := fmt.Sprintf("Invoke the %s function import (%s).", fi.Name, fi.HTTPMethod)
	if fi.ReturnType != "" {
		desc += " Returns " + fi.ReturnType + "."
	}
	tool := mcp.Tool{
		Name:        b.namer.name("", fi.Name),
		Description: desc,
		InputSchema: objectSchema(properties, required),
	}
	b.server.RegisterTool(tool, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		params := url.Values{}
		for _, p := range fi.Parameters {
			value, present := args[p.Name]
			if !present {
				continue
			}
			params.Set(p.Name, formatFunctionParam(p, value))
		}
		raw, err := b.client.CallFunction(ctx, fi, params)
		if err != nil {
			return nil, err
		}
		returnType := b.meta.EntityTypes[strings.TrimSuffix(strings.TrimPrefix(fi.ReturnType, "Collection("), ")")]
		return normalize.Shape(raw, b.shapeOptions(returnType, url.Values{}, 0)), nil
	})
}

// handleFilter runs the list query. Without an explicit select, all
// non-binary scalar properties are requested to keep payloads lean.
func (b *Bridge) handleFilter(ctx context.Context, set *edm.EntitySet, et *edm.EntityType, args map[string]interface{}) (interface{}, error) {
	query := url.Values{}
	if filter, ok := args["filter"].(string); ok && filter != "" {
		query.Set("$filter", filter)
	}
	if sel, ok := args["select"].(string); ok && sel != "" {
		query.Set("$select", sel)
	} else if defaults := defaultSelect(et); defaults != "" {
		query.Set("$select", defaults)
	}
	if exp, ok := args["expand"].(string); ok && exp != "" {
		query.Set("$expand", exp)
	}
	if orderby, ok := args["orderby"].(string); ok && orderby != "" {
		query.Set("$orderby", orderby)
	}
	if top, ok := intArg(args, "top"); ok {
		query.Set("$top", strconv.Itoa(top))
	}
	skip := 0
	if s, ok := intArg(args, "skip"); ok {
		skip = s
		query.Set("$skip", strconv.Itoa(s))
	}
	if token, ok := args["skiptoken"].(string); ok && token != "" {
		query.Set("$skiptoken", token)
	}
	if wantCount, ok := args["count"].(bool); ok && wantCount {
		query.Set("$inlinecount", "allpages")
	}

	raw, err := b.client.List(ctx, set.Name, query)
	if err != nil {
		return nil, err
	}
	return normalize.Shape(raw, b.shapeOptions(et, query, skip)), nil
}

func (b *Bridge) shapeOptions(et *edm.EntityType, query url.Values, skip int) normalize.Options {
	return normalize.Options{
		KeepMetadata:    b.cfg.ResponseMetadata,
		ConvertDates:    b.cfg.LegacyDates,
		GUIDProps:       normalize.GUIDPropsFor(et),
		MaxItems:        b.cfg.MaxItems,
		MaxResponseSize: b.cfg.MaxResponseSize,
		PaginationHints: b.cfg.PaginationHints,
		RequestedSkip:   skip,
		Query:           query,
	}
}

func (b *Bridge) keyPredicate(et *edm.EntityType, args map[string]interface{}) (string, error) {
	return odata.FormatKeyPredicate(et.KeyProperties(), args)
}

// keyArgSchema adds the key properties to a schema property map and
// returns them as the required list.
func keyArgSchema(et *edm.EntityType, properties map[string]interface{}) []string {
	var required []string
	for _, p := range et.KeyProperties() {
		properties[p.Name] = prop(edm.JSONSchemaType(p.Type), describeProp(p))
		required = append(required, p.Name)
	}
	return required
}

// defaultSelect lists every non-binary scalar property. Binary blobs
// blow up response sizes and navigation properties need $expand.
func defaultSelect(et *edm.EntityType) string {
	var names []string
	for _, p := range et.Properties {
		if p.Type == "Edm.Binary" && !edm.IsGUIDShaped(p) {
			continue
		}
		names = append(names, p.Name)
	}
	if len(names) == len(et.Properties) {
		// Nothing excluded; let the service send its default shape.
		return ""
	}
	return strings.Join(names, ",")
}

func describeProp(p edm.Property) string {
	desc := p.Type
	if p.IsKey {
		desc += ", key"
	}
	if !p.Nullable {
		desc += ", required"
	}
	if p.Description != "" {
		desc = p.Description + " (" + desc + ")"
	}
	return desc
}

func formatFunctionParam(p edm.FunctionParameter, value interface{}) string {
	switch v := value.(type) {
	case bool:
		return strconv.FormatBool(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		if p.Type == "Edm.String" {
			return "'" + strings.ReplaceAll(v, "'", "''") + "'"
		}
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// stringArg renders an argument as a string. The validator lets
// numeric values through for string-typed fields, so they are coerced
// rather than asserted.
func stringArg(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return convert.DecimalString(v)
}

func intArg(args map[string]interface{}, name string) (int, bool) {
	switch v := args[name].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}
