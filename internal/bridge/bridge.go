// Package bridge projects a parsed OData service onto MCP tools: one
// tool per permitted operation per entity set, one per function
// import, plus the service info tool.
package bridge

import (
	"context"
	"fmt"
	"sort"

	"github.com/sapmcp/odata-bridge/internal/config"
	"github.com/sapmcp/odata-bridge/internal/edm"
	"github.com/sapmcp/odata-bridge/internal/hints"
	"github.com/sapmcp/odata-bridge/internal/mcp"
	"github.com/sapmcp/odata-bridge/internal/odata"
)

// ServerName and ServerVersion identify the bridge in initialize
// responses.
const (
	ServerName    = "odata-bridge"
	ServerVersion = "1.2.0"
)

// DefaultInfoToolName is used unless --info-tool-name overrides it.
// A readme alias is always registered alongside.
const DefaultInfoToolName = "odata_service_info"

// Bridge owns the projection. Metadata and the tool table are built
// once in Initialize and immutable afterwards.
type Bridge struct {
	cfg       *config.Config
	client    *odata.Client
	server    *mcp.Server
	meta      *edm.ServiceMetadata
	hints     *hints.Manager
	serviceID string
	namer     *namer
	allowed   config.OpSet
}

// New wires a bridge; Initialize must run before serving.
func New(cfg *config.Config, client *odata.Client, hintMgr *hints.Manager) *Bridge {
	serviceID := ServiceIdentifier(cfg.ServiceURL)
	return &Bridge{
		cfg:       cfg,
		client:    client,
		server:    mcp.NewServer(ServerName, ServerVersion, cfg.SortTools),
		hints:     hintMgr,
		serviceID: serviceID,
		namer:     newNamer(cfg, serviceID),
	}
}

// Server exposes the dispatcher for the transports.
func (b *Bridge) Server() *mcp.Server { return b.server }

// Metadata exposes the parsed service model; nil before Initialize.
func (b *Bridge) Metadata() *edm.ServiceMetadata { return b.meta }

// Initialize loads metadata and builds the tool table. A service
// whose metadata cannot be obtained at all is unusable, so the error
// is fatal.
func (b *Bridge) Initialize(ctx context.Context) error {
	meta, err := b.client.LoadMetadata(ctx)
	if err != nil {
		return err
	}
	b.meta = meta

	allowed, err := b.cfg.AllowedOps()
	if err != nil {
		return err
	}
	b.allowed = allowed

	b.registerInfoTools()
	b.registerEntityTools()
	b.registerFunctionTools()
	return nil
}

// registerEntityTools walks the entity sets alphabetically so
// unsorted tool lists are still deterministic.
func (b *Bridge) registerEntityTools() {
	entityFilter := b.cfg.EntityFilter()

	names := make([]string, 0, len(b.meta.EntitySets))
	for name := range b.meta.EntitySets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		set := b.meta.EntitySets[name]
		if !config.MatchAnyWildcard(entityFilter, name) {
			continue
		}
		et := b.meta.TypeFor(set)
		if et == nil {
			continue
		}

		if b.allowed[config.OpFilter] {
			b.registerFilterTool(set, et)
			b.registerCountTool(set, et)
		}
		if b.allowed[config.OpSearch] && set.Searchable {
			b.registerSearchTool(set, et)
		}
		if b.allowed[config.OpGet] {
			b.registerGetTool(set, et)
		}
		if b.allowed[config.OpCreate] && set.Creatable {
			b.registerCreateTool(set, et)
		}
		if b.allowed[config.OpUpdate] && set.Updatable {
			b.registerUpdateTool(set, et)
		}
		if b.allowed[config.OpDelete] && set.Deletable {
			b.registerDeleteTool(set, et)
		}
	}
}

func (b *Bridge) registerFunctionTools() {
	if !b.allowed[config.OpFunction] {
		return
	}
	functionFilter := b.cfg.FunctionFilter()

	names := make([]string, 0, len(b.meta.FunctionImports))
	for name := range b.meta.FunctionImports {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !config.MatchAnyWildcard(functionFilter, name) {
			continue
		}
		b.registerFunctionTool(b.meta.FunctionImports[name])
	}
}

func (b *Bridge) registerInfoTools() {
	infoName := b.cfg.InfoToolName
	if infoName == "" {
		infoName = DefaultInfoToolName
	}

	tool := mcp.Tool{
		Name: infoName,
		Description: fmt.Sprintf(
			"Describe the OData service at %s: entity sets, their operations, function imports and usage hints.",
			b.serviceID),
		InputSchema: objectSchema(nil, nil),
	}
	b.server.RegisterTool(tool, b.handleInfo)

	alias := tool
	alias.Name = "readme"
	b.server.RegisterTool(alias, b.handleInfo)
}
