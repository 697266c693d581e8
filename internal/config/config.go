// Package config carries the resolved runtime configuration: CLI
// flags merged over environment variables and the optional dotfile.
package config

import "strings"

// Config is the complete bridge configuration.
type Config struct {
	ServiceURL string `mapstructure:"service_url"`

	// Authentication. Basic credentials and cookies are mutually
	// exclusive; Cookies holds the parsed result of either cookie flag.
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	CookieFile   string `mapstructure:"cookie_file"`
	CookieString string `mapstructure:"cookie_string"`
	Cookies      map[string]string

	// Tool naming.
	ToolPrefix   string `mapstructure:"tool_prefix"`
	ToolPostfix  string `mapstructure:"tool_postfix"`
	NoPostfix    bool   `mapstructure:"no_postfix"`
	ToolShrink   bool   `mapstructure:"tool_shrink"`
	InfoToolName string `mapstructure:"info_tool_name"`
	SortTools    bool   `mapstructure:"sort_tools"`

	// Entity and function allowlists, comma-separated with wildcards.
	Entities  string `mapstructure:"entities"`
	Functions string `mapstructure:"functions"`

	// Operation gating.
	ReadOnly             bool   `mapstructure:"read_only"`
	ReadOnlyButFunctions bool   `mapstructure:"read_only_but_functions"`
	EnableOps            string `mapstructure:"enable"`
	DisableOps           string `mapstructure:"disable"`

	// Response shaping.
	PaginationHints  bool `mapstructure:"pagination_hints"`
	LegacyDates      bool `mapstructure:"legacy_dates"`
	VerboseErrors    bool `mapstructure:"verbose_errors"`
	ResponseMetadata bool `mapstructure:"response_metadata"`
	MaxResponseSize  int  `mapstructure:"max_response_size"`
	MaxItems         int  `mapstructure:"max_items"`

	// Hints.
	HintsFile string `mapstructure:"hints_file"`
	Hint      string `mapstructure:"hint"`

	// Diagnostics.
	Verbose  bool `mapstructure:"verbose"`
	Trace    bool `mapstructure:"trace"`
	TraceMCP bool `mapstructure:"trace_mcp"`

	// Transport.
	Transport         string `mapstructure:"transport"`
	HTTPAddr          string `mapstructure:"http_addr"`
	AllowExternalBind bool   `mapstructure:"i_am_security_expert_i_know_what_i_am_doing"`
}

// HasBasicAuth reports whether basic credentials were supplied.
func (c *Config) HasBasicAuth() bool {
	return c.Username != ""
}

// HasCookieAuth reports whether cookie material was supplied.
func (c *Config) HasCookieAuth() bool {
	return len(c.Cookies) > 0
}

// EntityFilter returns the entity allowlist patterns, nil when unset.
func (c *Config) EntityFilter() []string {
	return splitList(c.Entities)
}

// FunctionFilter returns the function allowlist patterns, nil when unset.
func (c *Config) FunctionFilter() []string {
	return splitList(c.Functions)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
