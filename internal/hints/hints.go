// Package hints loads and merges service-specific guidance documents.
// Hints are advisory data surfaced through the info tool; nothing in
// the request path ever branches on them.
package hints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// FieldHint documents a quirk of a single field.
type FieldHint struct {
	Expected    string `json:"expected,omitempty"`
	Actual      string `json:"actual,omitempty"`
	Description string `json:"description,omitempty"`
	Workaround  string `json:"workaround,omitempty"`
}

// EntityHint documents quirks of one entity set.
type EntityHint struct {
	Description string               `json:"description,omitempty"`
	KnownIssues []string             `json:"known_issues,omitempty"`
	Workarounds []string             `json:"workarounds,omitempty"`
	FieldHints  map[string]FieldHint `json:"field_hints,omitempty"`
	Examples    []Example            `json:"examples,omitempty"`
}

// FunctionHint documents quirks of one function import.
type FunctionHint struct {
	Description string    `json:"description,omitempty"`
	Examples    []Example `json:"examples,omitempty"`
}

// Example is a worked invocation.
type Example struct {
	Description string                 `json:"description,omitempty"`
	Query       map[string]interface{} `json:"query,omitempty"`
	Note        string                 `json:"note,omitempty"`
}

// ServiceHint is one entry in a hint document.
type ServiceHint struct {
	Pattern       string                  `json:"pattern"`
	Priority      int                     `json:"priority"`
	ServiceType   string                  `json:"service_type,omitempty"`
	KnownIssues   []string                `json:"known_issues,omitempty"`
	Workarounds   []string                `json:"workarounds,omitempty"`
	FieldHints    map[string]FieldHint    `json:"field_hints,omitempty"`
	EntityHints   map[string]EntityHint   `json:"entity_hints,omitempty"`
	FunctionHints map[string]FunctionHint `json:"function_hints,omitempty"`
	Examples      []Example               `json:"examples,omitempty"`
	Notes         string                  `json:"notes,omitempty"`
	HintSource    string                  `json:"hint_source,omitempty"`
}

// Document is the top-level hint file shape.
type Document struct {
	Version string        `json:"version"`
	Hints   []ServiceHint `json:"hints"`
}

// cliPriority outranks any file-sourced hint.
const cliPriority = 1000

// Manager holds the loaded hints and answers merge queries.
type Manager struct {
	hints   []ServiceHint
	cliHint *ServiceHint
	source  string
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// LoadFile reads a hint document from an explicit path.
func (m *Manager) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading hints file: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parsing hints file %s: %w", path, err)
	}
	m.hints = doc.Hints
	m.source = path
	return nil
}

// LoadDefault looks for hints.json beside the binary, then in the
// working directory. Absence is not an error.
func (m *Manager) LoadDefault() error {
	var candidates []string
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "hints.json"))
	}
	candidates = append(candidates, "hints.json")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return m.LoadFile(path)
		}
	}
	return nil
}

// SetCLIHint installs a hint given on the command line. JSON input is
// parsed as a ServiceHint; anything else becomes a notes-only hint.
// Either way it applies to every service and wins every merge.
func (m *Manager) SetCLIHint(text string) {
	hint := ServiceHint{Pattern: "*", Priority: cliPriority, HintSource: "cli"}
	if err := json.Unmarshal([]byte(text), &hint); err != nil || hintIsEmpty(hint) {
		hint = ServiceHint{Pattern: "*", Priority: cliPriority, Notes: text, HintSource: "cli"}
	} else {
		hint.Pattern = "*"
		hint.Priority = cliPriority
		hint.HintSource = "cli"
	}
	m.cliHint = &hint
}

func hintIsEmpty(h ServiceHint) bool {
	return h.ServiceType == "" && len(h.KnownIssues) == 0 && len(h.Workarounds) == 0 &&
		len(h.FieldHints) == 0 && len(h.EntityHints) == 0 && len(h.FunctionHints) == 0 &&
		len(h.Examples) == 0 && h.Notes == ""
}

// ForService merges every hint whose pattern matches the service URL,
// lowest priority first so higher priorities win scalar keys. String
// slices concatenate with duplicates removed. Returns nil when
// nothing matches.
func (m *Manager) ForService(serviceURL string) *ServiceHint {
	var matched []ServiceHint
	for _, h := range m.hints {
		if MatchPattern(h.Pattern, serviceURL) {
			if h.HintSource == "" {
				h.HintSource = m.source
			}
			matched = append(matched, h)
		}
	}
	if m.cliHint != nil {
		matched = append(matched, *m.cliHint)
	}
	if len(matched) == 0 {
		return nil
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority < matched[j].Priority
	})

	merged := ServiceHint{Pattern: serviceURL}
	var sources []string
	for _, h := range matched {
		applyHint(&merged, h)
		if h.HintSource != "" {
			sources = append(sources, h.HintSource)
		}
	}
	merged.HintSource = strings.Join(dedupe(sources), ", ")
	merged.Priority = matched[len(matched)-1].Priority
	return &merged
}

func applyHint(dst *ServiceHint, src ServiceHint) {
	if src.ServiceType != "" {
		dst.ServiceType = src.ServiceType
	}
	if src.Notes != "" {
		dst.Notes = src.Notes
	}
	dst.KnownIssues = dedupe(append(dst.KnownIssues, src.KnownIssues...))
	dst.Workarounds = dedupe(append(dst.Workarounds, src.Workarounds...))
	dst.Examples = append(dst.Examples, src.Examples...)

	if len(src.FieldHints) > 0 {
		if dst.FieldHints == nil {
			dst.FieldHints = make(map[string]FieldHint)
		}
		for k, v := range src.FieldHints {
			dst.FieldHints[k] = v
		}
	}
	if len(src.EntityHints) > 0 {
		if dst.EntityHints == nil {
			dst.EntityHints = make(map[string]EntityHint)
		}
		for k, v := range src.EntityHints {
			dst.EntityHints[k] = v
		}
	}
	if len(src.FunctionHints) > 0 {
		if dst.FunctionHints == nil {
			dst.FunctionHints = make(map[string]FunctionHint)
		}
		for k, v := range src.FunctionHints {
			dst.FunctionHints[k] = v
		}
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// MatchPattern matches a URL against a glob with * and ? wildcards.
func MatchPattern(pattern, target string) bool {
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(target)
}
