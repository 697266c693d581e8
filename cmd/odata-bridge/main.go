package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sapmcp/odata-bridge/internal/bridge"
	"github.com/sapmcp/odata-bridge/internal/config"
	"github.com/sapmcp/odata-bridge/internal/hints"
	"github.com/sapmcp/odata-bridge/internal/odata"
	"github.com/sapmcp/odata-bridge/internal/trace"
	"github.com/sapmcp/odata-bridge/internal/transport"
	"github.com/sapmcp/odata-bridge/internal/transport/httpsse"
	"github.com/sapmcp/odata-bridge/internal/transport/stdio"
)

var cfg *config.Config

var noLegacyDates bool

var rootCmd = &cobra.Command{
	Use:   "odata-bridge [service-url]",
	Short: "OData to MCP Bridge - expose OData v2 services as Model Context Protocol tools",
	Long: `OData to MCP Bridge - expose OData v2 services as Model Context Protocol tools.

The bridge reads the service $metadata document and generates one MCP tool per
permitted operation per entity set, plus tools for function imports.

Examples:
  odata-bridge https://services.odata.org/V2/Northwind/Northwind.svc/
  odata-bridge --service https://my-sap-host.com/sap/opu/odata/sap/SERVICE_NAME/
  odata-bridge --user admin --password secret https://my-service.com/odata/
  odata-bridge --cookie-file cookies.txt https://my-service.com/odata/`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBridge,
}

func init() {
	// A .env beside the binary is a convenience for local use.
	godotenv.Load()

	cfg = &config.Config{}

	rootCmd.Flags().StringVar(&cfg.ServiceURL, "service", "", "URL of the OData service (overrides positional argument and ODATA_URL env var)")

	// Authentication. Mutual exclusion is checked in runBridge.
	rootCmd.Flags().StringVarP(&cfg.Username, "user", "u", "", "Username for basic authentication (overrides ODATA_USERNAME env var)")
	rootCmd.Flags().StringVarP(&cfg.Password, "password", "p", "", "Password for basic authentication (overrides ODATA_PASSWORD env var)")
	rootCmd.Flags().StringVar(&cfg.CookieFile, "cookie-file", "", "Path to cookie file in Netscape format")
	rootCmd.Flags().StringVar(&cfg.CookieString, "cookie-string", "", "Cookie string (key1=val1; key2=val2)")

	// Tool naming.
	rootCmd.Flags().StringVar(&cfg.ToolPrefix, "tool-prefix", "", "Custom prefix for tool names (use with --no-postfix)")
	rootCmd.Flags().StringVar(&cfg.ToolPostfix, "tool-postfix", "", "Custom postfix for tool names (default: _for_<service_id>)")
	rootCmd.Flags().BoolVar(&cfg.NoPostfix, "no-postfix", false, "Drop the service postfix from tool names")
	rootCmd.Flags().BoolVar(&cfg.ToolShrink, "tool-shrink", false, "Use shortened tool names (crt_, upd_, del_, srch_, fltr_)")
	rootCmd.Flags().StringVar(&cfg.InfoToolName, "info-tool-name", "", "Custom name for the service info tool (default: "+bridge.DefaultInfoToolName+")")
	rootCmd.Flags().BoolVar(&cfg.SortTools, "sort-tools", true, "Sort tools alphabetically in tools/list")

	// Entity and function allowlists.
	rootCmd.Flags().StringVar(&cfg.Entities, "entities", "", "Comma-separated entity sets to expose, wildcards allowed (e.g. 'Products,Order*')")
	rootCmd.Flags().StringVar(&cfg.Functions, "functions", "", "Comma-separated function imports to expose, wildcards allowed (e.g. 'Get*')")

	// Operation gating.
	rootCmd.Flags().BoolVar(&cfg.ReadOnly, "read-only", false, "Hide all modifying operations (create, update, delete, and functions)")
	rootCmd.Flags().BoolVar(&cfg.ReadOnly, "ro", false, "Read-only mode (shorthand for --read-only)")
	rootCmd.Flags().BoolVar(&cfg.ReadOnlyButFunctions, "read-only-but-functions", false, "Read-only mode but allow function imports")
	rootCmd.Flags().BoolVar(&cfg.ReadOnlyButFunctions, "robf", false, "Read-only but functions (shorthand)")
	rootCmd.Flags().StringVar(&cfg.EnableOps, "enable", "", "Enable only these operation codes (C,S,F,G,U,D,A; R expands to S,F,G)")
	rootCmd.Flags().StringVar(&cfg.DisableOps, "disable", "", "Disable these operation codes (C,S,F,G,U,D,A; R expands to S,F,G)")

	// Response shaping.
	rootCmd.Flags().BoolVar(&cfg.PaginationHints, "pagination-hints", false, "Add suggested_next_call and has_more indicators to list responses")
	rootCmd.Flags().BoolVar(&cfg.LegacyDates, "legacy-dates", true, "Convert /Date(ms)/ timestamps to ISO 8601 (SAP compatibility)")
	rootCmd.Flags().BoolVar(&noLegacyDates, "no-legacy-dates", false, "Disable legacy date conversion")
	rootCmd.Flags().BoolVar(&cfg.VerboseErrors, "verbose-errors", false, "Include request context in upstream error messages")
	rootCmd.Flags().BoolVar(&cfg.ResponseMetadata, "response-metadata", false, "Keep __metadata blocks in entity responses")
	rootCmd.Flags().IntVar(&cfg.MaxResponseSize, "max-response-size", 5*1024*1024, "Maximum response size in bytes before summarization")
	rootCmd.Flags().IntVar(&cfg.MaxItems, "max-items", 100, "Maximum number of items in a list response")

	// Hints.
	rootCmd.Flags().StringVar(&cfg.HintsFile, "hints-file", "", "Path to hints JSON file (default: hints.json beside the binary)")
	rootCmd.Flags().StringVar(&cfg.Hint, "hint", "", "Direct hint JSON or text to inject into service info")

	// Diagnostics.
	rootCmd.Flags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output to stderr")
	rootCmd.Flags().BoolVar(&cfg.Trace, "trace", false, "Initialize the bridge, print all tools, then exit")
	rootCmd.Flags().BoolVar(&cfg.TraceMCP, "trace-mcp", false, "Log all MCP wire traffic to a trace file (credentials masked)")

	// Transport.
	rootCmd.Flags().StringVar(&cfg.Transport, "transport", "stdio", "Transport type: 'stdio' or 'http' (SSE)")
	rootCmd.Flags().StringVar(&cfg.HTTPAddr, "http-addr", "localhost:8080", "HTTP server address (used with --transport http)")
	rootCmd.Flags().BoolVar(&cfg.AllowExternalBind, "i-am-security-expert-i-know-what-i-am-doing", false, "Allow binding the HTTP transport to a non-localhost address")

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix("ODATA")
	viper.AutomaticEnv()
}

func runBridge(cmd *cobra.Command, args []string) error {
	if noLegacyDates {
		cfg.LegacyDates = false
	}

	if cfg.ReadOnly && cfg.ReadOnlyButFunctions {
		return fmt.Errorf("cannot use both --read-only and --read-only-but-functions")
	}
	if cfg.EnableOps != "" && cfg.DisableOps != "" {
		return fmt.Errorf("cannot use both --enable and --disable")
	}

	// Service URL priority: --service flag, positional argument, environment.
	if cfg.ServiceURL == "" && len(args) > 0 {
		cfg.ServiceURL = args[0]
	}
	if cfg.ServiceURL == "" {
		cfg.ServiceURL = viper.GetString("URL")
		if cfg.ServiceURL == "" {
			cfg.ServiceURL = viper.GetString("SERVICE_URL")
		}
	}
	if cfg.ServiceURL == "" {
		return fmt.Errorf("OData service URL not provided. Use --service, a positional argument, or the ODATA_URL environment variable")
	}

	if err := resolveAuth(cfg); err != nil {
		return err
	}

	hintMgr := hints.NewManager()
	if cfg.HintsFile != "" {
		if err := hintMgr.LoadFile(cfg.HintsFile); err != nil {
			return fmt.Errorf("loading hints file: %w", err)
		}
	} else if err := hintMgr.LoadDefault(); err != nil && cfg.Verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] No default hints file loaded: %v\n", err)
	}
	if cfg.Hint != "" {
		hintMgr.SetCLIHint(cfg.Hint)
	}

	client := odata.NewClient(odata.Options{
		ServiceURL:    cfg.ServiceURL,
		Username:      cfg.Username,
		Password:      cfg.Password,
		Cookies:       cfg.Cookies,
		Verbose:       cfg.Verbose,
		VerboseErrors: cfg.VerboseErrors,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := bridge.New(cfg, client, hintMgr)
	if err := b.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing bridge: %w", err)
	}

	if cfg.Trace {
		return printTraceInfo(b)
	}

	var tracer *trace.Logger
	if cfg.TraceMCP {
		var err error
		tracer, err = trace.NewLogger()
		if err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] Failed to create trace logger: %v\n", err)
		} else {
			defer tracer.Close()
			fmt.Fprintf(os.Stderr, "[TRACE] MCP trace logging enabled: %s\n", tracer.Path())
		}
	}

	var trans transport.Transport
	switch cfg.Transport {
	case "http", "sse":
		if !httpsse.IsLocalhostAddr(cfg.HTTPAddr) && !cfg.AllowExternalBind {
			return fmt.Errorf("refusing to bind HTTP transport to non-localhost address %q: the bridge forwards credentials and has no authentication of its own. Use --i-am-security-expert-i-know-what-i-am-doing to override", cfg.HTTPAddr)
		}
		if !httpsse.IsLocalhostAddr(cfg.HTTPAddr) {
			fmt.Fprintf(os.Stderr, "[WARNING] HTTP transport bound to non-localhost address %s. Anyone who can reach it can use the service with your credentials.\n", cfg.HTTPAddr)
		}
		if cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Starting HTTP/SSE transport on %s\n", cfg.HTTPAddr)
		}
		httpTrans := httpsse.New(cfg.HTTPAddr)
		httpTrans.SetTracer(tracer)
		trans = httpTrans
	case "stdio":
		if cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Using stdio transport\n")
		}
		stdioTrans := stdio.New()
		stdioTrans.SetTracer(tracer)
		trans = stdioTrans
	default:
		return fmt.Errorf("unknown transport %q (expected 'stdio' or 'http')", cfg.Transport)
	}

	if cfg.Verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] Bridge ready: %d tools registered for %s\n",
			len(b.Server().ToolNames()), cfg.ServiceURL)
	}

	err := trans.Serve(ctx, b.Server().Handle)
	if err != nil && ctx.Err() != nil {
		// Signal-driven shutdown is not a failure.
		fmt.Fprintf(os.Stderr, "\nShutting down.\n")
		return nil
	}
	return err
}

// resolveAuth enforces the single-method rule and falls back to the
// environment when no flag was given.
func resolveAuth(cfg *config.Config) error {
	methods := 0
	if cfg.Username != "" {
		methods++
	}
	if cfg.CookieFile != "" {
		methods++
	}
	if cfg.CookieString != "" {
		methods++
	}
	if methods > 1 {
		return fmt.Errorf("only one authentication method can be used at a time")
	}

	switch {
	case cfg.CookieFile != "":
		cookies, err := loadCookiesFromFile(cfg.CookieFile)
		if err != nil {
			return fmt.Errorf("loading cookie file: %w", err)
		}
		cfg.Cookies = cookies
		if cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] Loaded %d cookies from %s\n", len(cookies), cfg.CookieFile)
		}

	case cfg.CookieString != "":
		cookies := parseCookieString(cfg.CookieString)
		if len(cookies) == 0 {
			return fmt.Errorf("failed to parse cookie string")
		}
		cfg.Cookies = cookies

	default:
		if cfg.Username == "" {
			cfg.Username = viper.GetString("USER")
			if cfg.Username == "" {
				cfg.Username = viper.GetString("USERNAME")
			}
		}
		if cfg.Password == "" {
			cfg.Password = viper.GetString("PASS")
			if cfg.Password == "" {
				cfg.Password = viper.GetString("PASSWORD")
			}
		}
		if cfg.Username == "" {
			if envFile := viper.GetString("COOKIE_FILE"); envFile != "" {
				cookies, err := loadCookiesFromFile(envFile)
				if err != nil {
					return fmt.Errorf("loading cookie file from ODATA_COOKIE_FILE: %w", err)
				}
				cfg.Cookies = cookies
			} else if envString := viper.GetString("COOKIE_STRING"); envString != "" {
				cfg.Cookies = parseCookieString(envString)
			}
		}
	}

	if cfg.Verbose {
		switch {
		case cfg.HasBasicAuth():
			fmt.Fprintf(os.Stderr, "[VERBOSE] Using basic authentication for user: %s\n", cfg.Username)
		case cfg.HasCookieAuth():
			fmt.Fprintf(os.Stderr, "[VERBOSE] Using cookie authentication (%d cookies)\n", len(cfg.Cookies))
		default:
			fmt.Fprintf(os.Stderr, "[VERBOSE] No authentication configured. Attempting anonymous access.\n")
		}
	}
	return nil
}

// loadCookiesFromFile parses a Netscape cookie file. Browser exports
// prefix HttpOnly cookies with "#HttpOnly_", which is data rather
// than a comment. Simple key=value lines are accepted as a fallback.
func loadCookiesFromFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cookies := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "#HttpOnly_") {
			continue
		}
		line = strings.TrimPrefix(line, "#HttpOnly_")

		parts := strings.Split(line, "\t")
		if len(parts) >= 7 {
			// domain, flag, path, secure, expiration, name, value
			cookies[parts[5]] = parts[6]
		} else if strings.Contains(line, "=") {
			kv := strings.SplitN(line, "=", 2)
			cookies[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return cookies, scanner.Err()
}

func parseCookieString(s string) map[string]string {
	cookies := make(map[string]string)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if kv := strings.SplitN(part, "=", 2); len(kv) == 2 {
			cookies[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return cookies
}

// printTraceInfo dumps the generated tools and exits without serving.
func printTraceInfo(b *bridge.Bridge) error {
	meta := b.Metadata()
	info := map[string]interface{}{
		"service_url":      cfg.ServiceURL,
		"entity_sets":      len(meta.EntitySets),
		"function_imports": len(meta.FunctionImports),
		"tools":            b.Server().Tools(),
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding trace info: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
