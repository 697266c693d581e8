// Package convert rewrites wire-level OData v2 value encodings into
// forms that are pleasant to read and hand back: packed binary GUIDs,
// legacy /Date()/ timestamps and precision-sensitive decimals.
package convert

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// IsBase64GUID reports whether a string is the base64 encoding of
// exactly 16 bytes, the shape SAP uses for binary GUID values.
func IsBase64GUID(s string) bool {
	if len(s) != 24 {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	return err == nil && len(raw) == 16
}

// IsCanonicalGUID reports whether a string is a hyphenated 36-char GUID.
func IsCanonicalGUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// Base64ToGUID converts a base64-packed GUID to canonical lowercase
// hyphenated form. Anything that is not a 16-byte payload is returned
// unchanged.
func Base64ToGUID(s string) string {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) != 16 {
		return s
	}
	u, err := uuid.FromBytes(raw)
	if err != nil {
		return s
	}
	return u.String()
}

// GUIDToBase64 converts a canonical GUID back to its base64-packed
// wire form. Non-GUID input is returned unchanged.
func GUIDToBase64(s string) string {
	if len(s) != 36 {
		return s
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return s
	}
	return base64.StdEncoding.EncodeToString(u[:])
}
