package hints

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern string
		target  string
		want    bool
	}{
		{"*", "https://host/any", true},
		{"*Northwind*", "https://services.odata.org/V2/Northwind/Northwind.svc", true},
		{"*northwind*", "https://services.odata.org/V2/Northwind/Northwind.svc", true},
		{"*PERSONAL_DATA*", "https://sap/opu/odata/sap/PERSONAL_DATA_SRV/", true},
		{"*PERSONAL_DATA*", "https://sap/opu/odata/sap/OTHER_SRV/", false},
		{"https://host/v?/svc", "https://host/v2/svc", true},
		{"", "anything", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, MatchPattern(c.pattern, c.target), "%s vs %s", c.pattern, c.target)
	}
}

func TestForServicePriorityMerge(t *testing.T) {
	m := NewManager()
	m.hints = []ServiceHint{
		{
			Pattern:     "*",
			Priority:    1,
			ServiceType: "Generic",
			KnownIssues: []string{"shared issue"},
		},
		{
			Pattern:     "*Northwind*",
			Priority:    10,
			ServiceType: "Demo",
			KnownIssues: []string{"northwind issue", "shared issue"},
			Notes:       "demo service",
		},
	}

	merged := m.ForService("https://services.odata.org/V2/Northwind/Northwind.svc")
	require.NotNil(t, merged)
	// Higher priority wins scalar keys.
	assert.Equal(t, "Demo", merged.ServiceType)
	assert.Equal(t, "demo service", merged.Notes)
	// Arrays concatenate without duplicates.
	assert.Equal(t, []string{"shared issue", "northwind issue"}, merged.KnownIssues)
}

func TestForServiceNoMatch(t *testing.T) {
	m := NewManager()
	m.hints = []ServiceHint{{Pattern: "*SAP*", Priority: 1}}
	assert.Nil(t, m.ForService("https://other/service"))
}

func TestCLIHintJSON(t *testing.T) {
	m := NewManager()
	m.hints = []ServiceHint{{Pattern: "*", Priority: 50, ServiceType: "File"}}
	m.SetCLIHint(`{"service_type":"Override","known_issues":["cli issue"]}`)

	merged := m.ForService("https://any/service")
	require.NotNil(t, merged)
	assert.Equal(t, "Override", merged.ServiceType, "CLI hint outranks file hints")
	assert.Contains(t, merged.KnownIssues, "cli issue")
}

func TestCLIHintPlainText(t *testing.T) {
	m := NewManager()
	m.SetCLIHint("watch out for $expand on this service")

	merged := m.ForService("https://any/service")
	require.NotNil(t, merged)
	assert.Equal(t, "watch out for $expand on this service", merged.Notes)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hints.json")
	content := `{
		"version": "1.0",
		"hints": [
			{
				"pattern": "*Northwind*",
				"priority": 5,
				"entity_hints": {
					"Products": {"description": "read-only demo data"}
				},
				"field_hints": {
					"UnitPrice": {"expected": "number", "actual": "string"}
				}
			}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m := NewManager()
	require.NoError(t, m.LoadFile(path))

	merged := m.ForService("https://services.odata.org/V2/Northwind/Northwind.svc")
	require.NotNil(t, merged)
	assert.Equal(t, "read-only demo data", merged.EntityHints["Products"].Description)
	assert.Equal(t, "string", merged.FieldHints["UnitPrice"].Actual)
	assert.Contains(t, merged.HintSource, "hints.json")
}

func TestLoadFileMissing(t *testing.T) {
	m := NewManager()
	assert.Error(t, m.LoadFile("/nonexistent/hints.json"))
}
