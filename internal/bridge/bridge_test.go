package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sapmcp/odata-bridge/internal/config"
	"github.com/sapmcp/odata-bridge/internal/hints"
	"github.com/sapmcp/odata-bridge/internal/odata"
	"github.com/sapmcp/odata-bridge/internal/transport"
)

const testEDMX = `<?xml version="1.0" encoding="utf-8"?>
<edmx:Edmx Version="1.0" xmlns:edmx="http://schemas.microsoft.com/ado/2007/06/edmx"
           xmlns:sap="http://www.sap.com/Protocols/SAPData">
  <edmx:DataServices m:DataServiceVersion="2.0" xmlns:m="http://schemas.microsoft.com/ado/2007/08/dataservices/metadata">
    <Schema Namespace="NW" xmlns="http://schemas.microsoft.com/ado/2008/09/edm">
      <EntityType Name="Product">
        <Key><PropertyRef Name="ProductID"/></Key>
        <Property Name="ProductID" Type="Edm.Int32" Nullable="false"/>
        <Property Name="ProductName" Type="Edm.String" Nullable="false"/>
        <Property Name="UnitPrice" Type="Edm.Decimal"/>
      </EntityType>
      <EntityType Name="Program">
        <Key><PropertyRef Name="Name"/></Key>
        <Property Name="Name" Type="Edm.String" Nullable="false"/>
      </EntityType>
      <EntityContainer Name="C" m:IsDefaultEntityContainer="true">
        <EntitySet Name="Products" EntityType="NW.Product"/>
        <EntitySet Name="PROGRAMSet" EntityType="NW.Program"
                   sap:creatable="false" sap:updatable="false" sap:deletable="false"
                   sap:searchable="false" sap:addressable="false"/>
        <FunctionImport Name="Reseed" m:HttpMethod="POST"/>
      </EntityContainer>
    </Schema>
  </edmx:DataServices>
</edmx:Edmx>`

// newTestBridge serves metadata and data from a stub gateway and
// returns an initialized bridge.
func newTestBridge(t *testing.T, cfg *config.Config, data http.HandlerFunc) *Bridge {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/$metadata" {
			w.Header().Set("Content-Type", "application/xml")
			w.Write([]byte(testEDMX))
			return
		}
		if data != nil {
			data(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	cfg.ServiceURL = srv.URL
	client := odata.NewClient(odata.Options{ServiceURL: srv.URL})
	b := New(cfg, client, hints.NewManager())
	require.NoError(t, b.Initialize(context.Background()))
	return b
}

func testConfig() *config.Config {
	return &config.Config{
		SortTools:       true,
		LegacyDates:     true,
		MaxItems:        100,
		MaxResponseSize: 5 * 1024 * 1024,
	}
}

func TestProjectionRespectsCapabilities(t *testing.T) {
	b := newTestBridge(t, testConfig(), nil)
	joined := strings.Join(b.Server().ToolNames(), " ")

	// Products carries no restricting annotations.
	assert.Contains(t, joined, "filter_Products")
	assert.Contains(t, joined, "count_Products")
	assert.Contains(t, joined, "search_Products")
	assert.Contains(t, joined, "get_Products")
	assert.Contains(t, joined, "create_Products")
	assert.Contains(t, joined, "update_Products")
	assert.Contains(t, joined, "delete_Products")

	// PROGRAMSet withdraws writes and search; the get tool survives
	// even with addressability withdrawn.
	assert.Contains(t, joined, "filter_PROGRAMSet")
	assert.Contains(t, joined, "get_PROGRAMSet")
	assert.NotContains(t, joined, "create_PROGRAMSet")
	assert.NotContains(t, joined, "update_PROGRAMSet")
	assert.NotContains(t, joined, "delete_PROGRAMSet")
	assert.NotContains(t, joined, "search_PROGRAMSet")

	assert.Contains(t, joined, "Reseed")
	assert.Contains(t, joined, "odata_service_info")
	assert.Contains(t, joined, "readme")
}

func TestProjectionReadOnly(t *testing.T) {
	cfg := testConfig()
	cfg.ReadOnly = true
	b := newTestBridge(t, cfg, nil)
	joined := strings.Join(b.Server().ToolNames(), " ")

	assert.NotContains(t, joined, "create_")
	assert.NotContains(t, joined, "update_")
	assert.NotContains(t, joined, "delete_")
	assert.NotContains(t, joined, "Reseed")
	assert.Contains(t, joined, "filter_Products")
}

func TestProjectionReadOnlyButFunctions(t *testing.T) {
	cfg := testConfig()
	cfg.ReadOnlyButFunctions = true
	b := newTestBridge(t, cfg, nil)
	joined := strings.Join(b.Server().ToolNames(), " ")

	assert.NotContains(t, joined, "create_")
	assert.Contains(t, joined, "Reseed")
}

func TestProjectionEnableCodes(t *testing.T) {
	cfg := testConfig()
	cfg.EnableOps = "R"
	b := newTestBridge(t, cfg, nil)
	joined := strings.Join(b.Server().ToolNames(), " ")

	assert.Contains(t, joined, "filter_Products")
	assert.Contains(t, joined, "get_Products")
	assert.Contains(t, joined, "search_Products")
	assert.NotContains(t, joined, "create_")
	assert.NotContains(t, joined, "Reseed")
}

func TestProjectionEntityAllowlist(t *testing.T) {
	cfg := testConfig()
	cfg.Entities = "PROGRAM*"
	b := newTestBridge(t, cfg, nil)
	joined := strings.Join(b.Server().ToolNames(), " ")

	assert.Contains(t, joined, "filter_PROGRAMSet")
	assert.NotContains(t, joined, "filter_Products")
}

func TestToolNamesCarryServiceID(t *testing.T) {
	b := newTestBridge(t, testConfig(), nil)
	for _, name := range b.Server().ToolNames() {
		if name == "readme" || name == DefaultInfoToolName {
			continue
		}
		assert.True(t, strings.HasSuffix(name, "_for_"+b.serviceID), "%s missing postfix", name)
	}
}

func TestFilterCallEndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.MaxItems = 3
	cfg.PaginationHints = true

	b := newTestBridge(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/Products", r.URL.Path)
		assert.Equal(t, "UnitPrice gt 10", r.URL.Query().Get("$filter"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"d": map[string]interface{}{
				"results": []interface{}{
					map[string]interface{}{"ProductID": 1, "__metadata": map[string]interface{}{"uri": "x"}},
					map[string]interface{}{"ProductID": 2},
					map[string]interface{}{"ProductID": 3},
					map[string]interface{}{"ProductID": 4},
				},
			},
		})
	})

	resp := callTool(t, b, "filter_Products_for_"+b.serviceID,
		map[string]interface{}{"filter": "UnitPrice gt 10"})

	results := resp["results"].([]interface{})
	assert.Len(t, results, 3)
	assert.Equal(t, true, resp["truncated"])
	assert.NotContains(t, results[0].(map[string]interface{}), "__metadata")

	pagination := resp["pagination"].(map[string]interface{})
	next := pagination["suggested_next_call"].(map[string]interface{})
	assert.Equal(t, float64(3), next["skip"])
	assert.Equal(t, "UnitPrice gt 10", next["filter"])
}

func TestSearchCallSendsDollarSearch(t *testing.T) {
	var query url.Values
	b := newTestBridge(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"d": map[string]interface{}{"results": []interface{}{}},
		})
	})
	toolName := "search_Products_for_" + b.serviceID

	callTool(t, b, toolName, map[string]interface{}{"search_term": "chai"})
	assert.Equal(t, "chai", query.Get("$search"))
	assert.Empty(t, query.Get("search"))

	// Numeric terms pass validation and are coerced, never asserted.
	callTool(t, b, toolName, map[string]interface{}{"search_term": 42})
	assert.Equal(t, "42", query.Get("$search"))
}

func TestGetCallEncodesSlashKey(t *testing.T) {
	var requestedURI string
	b := newTestBridge(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		requestedURI = r.RequestURI
		json.NewEncoder(w).Encode(map[string]interface{}{
			"d": map[string]interface{}{"Name": "/IWFND/SUTIL_GW_CLIENT"},
		})
	})

	resp := callTool(t, b, "get_PROGRAMSet_for_"+b.serviceID,
		map[string]interface{}{"Name": "/IWFND/SUTIL_GW_CLIENT"})

	assert.Contains(t, requestedURI, "PROGRAMSet('%2FIWFND%2FSUTIL_GW_CLIENT')")
	assert.Equal(t, "/IWFND/SUTIL_GW_CLIENT", resp["Name"])
}

func TestToolCallRejectsUnknownArgument(t *testing.T) {
	b := newTestBridge(t, testConfig(), nil)

	params, err := json.Marshal(map[string]interface{}{
		"name":      "get_Products_for_" + b.serviceID,
		"arguments": map[string]interface{}{"ProductID": 1, "bogus": true},
	})
	require.NoError(t, err)
	resp := b.Server().Handle(context.Background(), &transport.Message{
		JSONRPC: "2.0", ID: json.RawMessage("7"), Method: "tools/call", Params: params,
	})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, transport.CodeInvalidParams, resp.Error.Code)
}

func TestInfoToolContent(t *testing.T) {
	b := newTestBridge(t, testConfig(), nil)
	resp := callTool(t, b, DefaultInfoToolName, map[string]interface{}{})

	assert.Equal(t, "2.0", resp["odata_version"])
	sets := resp["entity_sets"].(map[string]interface{})
	require.Contains(t, sets, "Products")
	caps := sets["PROGRAMSet"].(map[string]interface{})["capabilities"].(map[string]interface{})
	assert.Equal(t, false, caps["creatable"])
	assert.NotEmpty(t, resp["tools"])

	// The alias answers identically.
	alias := callTool(t, b, "readme", map[string]interface{}{})
	assert.Equal(t, resp["service_id"], alias["service_id"])
}

// callTool drives a full tools/call through the dispatcher and decodes
// the text content back into a map.
func callTool(t *testing.T, b *Bridge, name string, args map[string]interface{}) map[string]interface{} {
	t.Helper()
	params, err := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	require.NoError(t, err)

	resp := b.Server().Handle(context.Background(), &transport.Message{
		JSONRPC: "2.0",
		ID:      json.RawMessage("1"),
		Method:  "tools/call",
		Params:  params,
	})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error, "tool call failed: %+v", resp.Error)

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.NotEmpty(t, result.Content)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &decoded))
	return decoded
}
