package bridge

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/sapmcp/odata-bridge/internal/config"
	"github.com/sapmcp/odata-bridge/internal/shorten"
)

// toolNameMaxLength is the hard cap; clients truncate or reject
// anything longer.
const toolNameMaxLength = 64

// shrinkTargetLength is what --tool-shrink aims for.
const shrinkTargetLength = 40

// shrinkServiceLength bounds the service part of the postfix under
// --tool-shrink.
const shrinkServiceLength = 8

var sapCatalogPattern = regexp.MustCompile(`(?i)/sap/opu/odata/(?:sap/)?([A-Za-z0-9_/]+?)(?:/|$)`)

// ServiceIdentifier derives a short, stable identifier for a service
// URL, used in the default tool postfix. SAP catalog paths yield the
// service name, *.svc endpoints keep the suffix visible, generic
// /odata/ paths yield the segment, and anything else falls back to
// the hostname.
func ServiceIdentifier(serviceURL string) string {
	u, err := url.Parse(serviceURL)
	if err != nil || u.Host == "" {
		return "service"
	}
	path := strings.TrimSuffix(u.Path, "/")

	if m := sapCatalogPattern.FindStringSubmatch(path); m != nil {
		id := m[1]
		if idx := strings.Index(id, "/"); idx > 0 {
			id = id[:idx]
		}
		return id
	}

	segments := strings.Split(path, "/")
	last := segments[len(segments)-1]
	if strings.HasSuffix(strings.ToLower(last), ".svc") {
		return last[:len(last)-len(".svc")] + "_svc"
	}

	for i, seg := range segments {
		if strings.EqualFold(seg, "odata") && i+1 < len(segments) && segments[i+1] != "" {
			return segments[i+1]
		}
	}

	host := u.Hostname()
	return strings.ReplaceAll(host, ".", "_")
}

// namer builds tool names under one naming policy.
type namer struct {
	prefix  string
	postfix string
	shrink  bool
}

// newNamer resolves the naming flags: an explicit prefix switches to
// prefix mode, an explicit postfix overrides the default
// _for_<service> form, --no-postfix drops decoration entirely.
func newNamer(cfg *config.Config, serviceID string) *namer {
	n := &namer{shrink: cfg.ToolShrink}
	switch {
	case cfg.ToolPrefix != "":
		n.prefix = strings.TrimSuffix(cfg.ToolPrefix, "_") + "_"
	case cfg.NoPostfix:
		// bare names
	case cfg.ToolPostfix != "":
		n.postfix = "_" + strings.TrimPrefix(cfg.ToolPostfix, "_")
	case cfg.ToolShrink:
		n.postfix = "_for_" + shorten.ServiceName(serviceID, shrinkServiceLength)
	default:
		n.postfix = "_for_" + serviceID
	}
	return n
}

// name assembles <op>_<target> with the configured decoration,
// shrinking stages applied until the result fits the cap.
func (n *namer) name(op, target string) string {
	if n.shrink {
		if verb, ok := shorten.OperationVerbs[op]; ok {
			op = verb
		}
		target = shorten.EntityName(target, 20)
	}

	full := n.assemble(op, target)
	if n.shrink && len(full) > shrinkTargetLength {
		target = shorten.EntityName(target, 12)
		full = n.assemble(op, target)
	}
	if len(full) > toolNameMaxLength {
		overflow := len(full) - toolNameMaxLength
		if len(target) > overflow+3 {
			target = target[:len(target)-overflow]
			full = n.assemble(op, target)
		} else {
			full = full[:toolNameMaxLength]
		}
	}
	return full
}

func (n *namer) assemble(op, target string) string {
	base := target
	if op != "" {
		base = op + "_" + target
	}
	return n.prefix + base + n.postfix
}
