// Package normalize reshapes raw OData v2 responses into the flat,
// readable form the tools return: envelope unwrapped, noise stripped,
// wire encodings rewritten and hard size bounds applied.
package normalize

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sapmcp/odata-bridge/internal/convert"
	"github.com/sapmcp/odata-bridge/internal/edm"
)

// Options controls one shaping pass.
type Options struct {
	// KeepMetadata preserves __metadata/__deferred blocks.
	KeepMetadata bool
	// ConvertDates rewrites /Date(ms)/ values to ISO 8601.
	ConvertDates bool
	// GUIDProps names the properties whose base64 values are packed GUIDs.
	GUIDProps map[string]bool
	// MaxItems caps result arrays; 0 means unlimited.
	MaxItems int
	// MaxResponseSize caps the serialized result in bytes; 0 means unlimited.
	MaxResponseSize int
	// PaginationHints adds a pagination block with a suggested next call.
	PaginationHints bool
	// RequestedSkip is the $skip the caller asked for, used in hints.
	RequestedSkip int
	// Query carries the original options so the suggested call keeps them.
	Query url.Values
}

// GUIDPropsFor collects the GUID-shaped property names of an entity type.
func GUIDPropsFor(et *edm.EntityType) map[string]bool {
	if et == nil {
		return nil
	}
	props := make(map[string]bool)
	for _, p := range et.Properties {
		if edm.IsGUIDShaped(p) {
			props[p.Name] = true
		}
	}
	return props
}

// Shape unwraps and rewrites one response. Collections come back as
// {"results": [...], "total_count"?, "next_link"?, "pagination"?};
// single entities come back as the entity map itself.
func Shape(raw interface{}, opts Options) interface{} {
	payload, totalCount, nextLink, isCollection := unwrap(raw)
	payload = rewrite(payload, opts, "")

	if !isCollection {
		return applySizeBound(payload, opts)
	}

	items, _ := payload.([]interface{})
	truncated := false
	if opts.MaxItems > 0 && len(items) > opts.MaxItems {
		items = items[:opts.MaxItems]
		truncated = true
	}

	result := map[string]interface{}{"results": items}
	if totalCount != nil {
		result["total_count"] = *totalCount
	}
	if nextLink != "" {
		result["next_link"] = nextLink
	}
	if truncated {
		result["truncated"] = true
	}

	if opts.PaginationHints {
		result["pagination"] = paginationBlock(totalCount, nextLink, len(items), truncated, opts)
	}

	return applySizeBound(result, opts)
}

// unwrap peels the v2 envelope. Returns the inner payload, the
// __count value if present, the __next link and whether the payload
// is a collection.
func unwrap(raw interface{}) (interface{}, *int64, string, bool) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		if arr, ok := raw.([]interface{}); ok {
			return arr, nil, "", true
		}
		return raw, nil, "", false
	}

	inner := m
	if d, ok := m["d"].(map[string]interface{}); ok {
		inner = d
	} else if arr, ok := m["d"].([]interface{}); ok {
		// Some services place the array directly under d.
		return arr, nil, "", true
	}

	var totalCount *int64
	if c, ok := inner["__count"]; ok {
		if n, err := strconv.ParseInt(fmt.Sprintf("%v", c), 10, 64); err == nil {
			totalCount = &n
		}
	}
	nextLink, _ := inner["__next"].(string)

	if results, ok := inner["results"].([]interface{}); ok {
		return results, totalCount, nextLink, true
	}
	return inner, totalCount, nextLink, false
}

// rewrite walks the payload, dropping metadata blocks and converting
// wire encodings. The key parameter is the property name owning the
// value, used for GUID detection.
func rewrite(v interface{}, opts Options, key string) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			if !opts.KeepMetadata && (k == "__metadata" || k == "__deferred") {
				continue
			}
			// Deferred navigation stubs are a single __deferred child.
			if !opts.KeepMetadata {
				if child, ok := item.(map[string]interface{}); ok {
					if _, deferred := child["__deferred"]; deferred && len(child) == 1 {
						continue
					}
				}
			}
			out[k] = rewrite(item, opts, k)
		}
		return out

	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = rewrite(item, opts, key)
		}
		return out

	case string:
		if opts.ConvertDates && convert.IsLegacyDate(val) {
			return convert.LegacyToISO(val)
		}
		if opts.GUIDProps[key] && convert.IsBase64GUID(val) {
			return convert.Base64ToGUID(val)
		}
		return val

	default:
		return v
	}
}

func paginationBlock(totalCount *int64, nextLink string, returned int, truncated bool, opts Options) map[string]interface{} {
	block := map[string]interface{}{
		"returned": returned,
	}
	if totalCount != nil {
		block["total_count"] = *totalCount
	}

	hasMore := nextLink != "" || truncated
	if totalCount != nil && int64(opts.RequestedSkip+returned) < *totalCount {
		hasMore = true
	}
	block["has_more"] = hasMore

	if hasMore {
		block["suggested_next_call"] = suggestNextCall(nextLink, returned, opts)
	}
	return block
}

// suggestNextCall builds the argument map for the follow-up page,
// preferring the service-issued $skiptoken over a computed $skip.
func suggestNextCall(nextLink string, returned int, opts Options) map[string]interface{} {
	args := make(map[string]interface{})
	for _, opt := range []string{"$filter", "$select", "$expand", "$orderby", "$search", "$top"} {
		if v := opts.Query.Get(opt); v != "" {
			args[strings.TrimPrefix(opt, "$")] = v
		}
	}

	if nextLink != "" {
		if u, err := url.Parse(nextLink); err == nil {
			if token := u.Query().Get("$skiptoken"); token != "" {
				args["skiptoken"] = token
				return args
			}
		}
	}

	args["skip"] = opts.RequestedSkip + returned
	return args
}

// applySizeBound replaces oversized results with a short summary. A
// partial byte prefix of a JSON document is useless to a caller, so
// the whole thing is swapped out.
func applySizeBound(result interface{}, opts Options) interface{} {
	if opts.MaxResponseSize <= 0 {
		return result
	}
	serialized, err := json.Marshal(result)
	if err != nil || len(serialized) <= opts.MaxResponseSize {
		return result
	}

	itemCount := 1
	if m, ok := result.(map[string]interface{}); ok {
		if items, ok := m["results"].([]interface{}); ok {
			itemCount = len(items)
		}
	}
	return map[string]interface{}{
		"truncated":           true,
		"item_count":          itemCount,
		"original_size_bytes": len(serialized),
		"message": fmt.Sprintf(
			"Response of %d bytes exceeds the %d byte limit. Narrow the query with $select, $filter or $top.",
			len(serialized), opts.MaxResponseSize),
	}
}
