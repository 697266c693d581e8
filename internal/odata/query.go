package odata

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sapmcp/odata-bridge/internal/convert"
	"github.com/sapmcp/odata-bridge/internal/edm"
)

// EncodeQuery renders query options with %20 for spaces. url.Values
// produces +, which many SAP gateways reject inside $filter.
func EncodeQuery(values url.Values) string {
	return strings.ReplaceAll(values.Encode(), "+", "%20")
}

// escapeKeyComponent percent-encodes every octet outside the
// unreserved set. Slashes embedded in SAP names (/IWFND/...) must
// arrive as %2F or the gateway treats them as path separators.
func escapeKeyComponent(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// UnescapeKeyComponent is the inverse of escapeKeyComponent.
func UnescapeKeyComponent(s string) (string, error) {
	return url.PathUnescape(s)
}

// FormatKeyPredicate builds the parenthesized key segment for an
// entity URL. Single keys render as ('v'), composite keys as
// (K1='v1',K2=2). String content has quotes doubled and is then
// percent-encoded.
func FormatKeyPredicate(keyProps []edm.Property, values map[string]interface{}) (string, error) {
	if len(keyProps) == 0 {
		return "", Argumentf("entity type has no key properties")
	}

	if len(keyProps) == 1 {
		p := keyProps[0]
		v, ok := values[p.Name]
		if !ok {
			return "", Argumentf("missing key property %q", p.Name)
		}
		lit, err := formatKeyLiteral(p, v)
		if err != nil {
			return "", err
		}
		return "(" + lit + ")", nil
	}

	parts := make([]string, 0, len(keyProps))
	for _, p := range keyProps {
		v, ok := values[p.Name]
		if !ok {
			return "", Argumentf("missing key property %q", p.Name)
		}
		lit, err := formatKeyLiteral(p, v)
		if err != nil {
			return "", err
		}
		parts = append(parts, p.Name+"="+lit)
	}
	return "(" + strings.Join(parts, ",") + ")", nil
}

func formatKeyLiteral(p edm.Property, v interface{}) (string, error) {
	switch p.Type {
	case "Edm.Boolean":
		switch b := v.(type) {
		case bool:
			return strconv.FormatBool(b), nil
		case string:
			return b, nil
		}
		return "", Argumentf("key %q: expected boolean, got %T", p.Name, v)

	case "Edm.Guid":
		s, ok := v.(string)
		if !ok {
			return "", Argumentf("key %q: expected GUID string, got %T", p.Name, v)
		}
		return "guid'" + escapeKeyComponent(s) + "'", nil

	case "Edm.Binary":
		s, ok := v.(string)
		if !ok {
			return "", Argumentf("key %q: expected string, got %T", p.Name, v)
		}
		raw, err := binaryKeyBytes(s)
		if err != nil {
			return "", Argumentf("key %q: %v", p.Name, err)
		}
		return "X'" + strings.ToUpper(hex.EncodeToString(raw)) + "'", nil
	}

	if edm.IsNumericType(p.Type) {
		switch n := v.(type) {
		case float64:
			return convert.DecimalString(n), nil
		case int:
			return strconv.Itoa(n), nil
		case int64:
			return strconv.FormatInt(n, 10), nil
		case string:
			return escapeKeyComponent(n), nil
		}
		return "", Argumentf("key %q: expected number, got %T", p.Name, v)
	}

	// String-ish types: quote, double embedded quotes, percent-encode.
	s := fmt.Sprintf("%v", v)
	s = strings.ReplaceAll(s, "'", "''")
	return "'" + escapeKeyComponent(s) + "'", nil
}

// binaryKeyBytes accepts a canonical GUID or base64 text and returns
// the raw bytes for an X'...' literal.
func binaryKeyBytes(s string) ([]byte, error) {
	if convert.IsCanonicalGUID(s) {
		return hex.DecodeString(strings.ReplaceAll(s, "-", ""))
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	return nil, fmt.Errorf("value is neither a GUID nor base64")
}
