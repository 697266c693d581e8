package odata

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sapmcp/odata-bridge/internal/edm"
)

func TestEncodeQueryNoPlus(t *testing.T) {
	q := url.Values{}
	q.Set("$filter", "ProductName eq 'Chai Tea' and UnitPrice gt 10")
	q.Set("$format", "json")
	encoded := EncodeQuery(q)
	assert.NotContains(t, encoded, "+")
	assert.Contains(t, encoded, "%20")
	assert.Contains(t, encoded, "%24format=json")
}

func stringKey(name string) []edm.Property {
	return []edm.Property{{Name: name, Type: "Edm.String", IsKey: true}}
}

func TestFormatKeyPredicateSingleString(t *testing.T) {
	pred, err := FormatKeyPredicate(stringKey("CustomerID"), map[string]interface{}{"CustomerID": "ALFKI"})
	require.NoError(t, err)
	assert.Equal(t, "('ALFKI')", pred)
}

func TestFormatKeyPredicateSlashEncoding(t *testing.T) {
	pred, err := FormatKeyPredicate(stringKey("PROGRAM"), map[string]interface{}{"PROGRAM": "/IWFND/SUTIL_GW_CLIENT"})
	require.NoError(t, err)
	assert.Equal(t, "('%2FIWFND%2FSUTIL_GW_CLIENT')", pred)
}

func TestFormatKeyPredicateQuoteDoubling(t *testing.T) {
	pred, err := FormatKeyPredicate(stringKey("Name"), map[string]interface{}{"Name": "O'Neil"})
	require.NoError(t, err)
	assert.Equal(t, "('O%27%27Neil')", pred)

	// Round trip: unescape and undouble recovers the original.
	inner, err := UnescapeKeyComponent("O%27%27Neil")
	require.NoError(t, err)
	assert.Equal(t, "O''Neil", inner)
}

func TestFormatKeyPredicateNumeric(t *testing.T) {
	keys := []edm.Property{{Name: "OrderID", Type: "Edm.Int32", IsKey: true}}
	pred, err := FormatKeyPredicate(keys, map[string]interface{}{"OrderID": float64(10248)})
	require.NoError(t, err)
	assert.Equal(t, "(10248)", pred)
}

func TestFormatKeyPredicateComposite(t *testing.T) {
	keys := []edm.Property{
		{Name: "OrderID", Type: "Edm.Int32", IsKey: true},
		{Name: "ProductID", Type: "Edm.Int32", IsKey: true},
	}
	pred, err := FormatKeyPredicate(keys, map[string]interface{}{
		"OrderID":   float64(10248),
		"ProductID": float64(11),
	})
	require.NoError(t, err)
	assert.Equal(t, "(OrderID=10248,ProductID=11)", pred)
}

func TestFormatKeyPredicateBoolean(t *testing.T) {
	keys := []edm.Property{{Name: "Active", Type: "Edm.Boolean", IsKey: true}}
	pred, err := FormatKeyPredicate(keys, map[string]interface{}{"Active": true})
	require.NoError(t, err)
	assert.Equal(t, "(true)", pred)
}

func TestFormatKeyPredicateGuid(t *testing.T) {
	keys := []edm.Property{{Name: "Uuid", Type: "Edm.Guid", IsKey: true}}
	pred, err := FormatKeyPredicate(keys, map[string]interface{}{"Uuid": "02490410-0004-1fd0-8be1-d0c2896be5c2"})
	require.NoError(t, err)
	assert.Equal(t, "(guid'02490410-0004-1fd0-8be1-d0c2896be5c2')", pred)
}

func TestFormatKeyPredicateBinaryGUID(t *testing.T) {
	keys := []edm.Property{{Name: "NodeID", Type: "Edm.Binary", MaxLength: 16, IsKey: true}}

	// Canonical GUID input becomes a hex literal.
	pred, err := FormatKeyPredicate(keys, map[string]interface{}{"NodeID": "02490410-0004-1fd0-8be1-d0c2896be5c2"})
	require.NoError(t, err)
	assert.Equal(t, "(X'0249041000041FD08BE1D0C2896BE5C2')", pred)

	// Base64 input lands on the same literal.
	pred2, err := FormatKeyPredicate(keys, map[string]interface{}{"NodeID": "AkkEEAAEH9CL4dDCiWvlwg=="})
	require.NoError(t, err)
	assert.Equal(t, pred, pred2)
}

func TestFormatKeyPredicateMissingKey(t *testing.T) {
	_, err := FormatKeyPredicate(stringKey("ID"), map[string]interface{}{})
	require.Error(t, err)
	var argErr *ArgumentError
	assert.ErrorAs(t, err, &argErr)
}
