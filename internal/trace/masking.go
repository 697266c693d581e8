// Copyright (c) 2024 OData MCP Contributors
// SPDX-License-Identifier: MIT

package trace

import (
	"fmt"
	"net/url"
	"strings"
)

// sensitiveKeys are matched case-insensitively against header and
// config keys before anything is logged.
var sensitiveKeys = []string{
	"password", "passwd", "pwd", "secret", "token", "authorization",
	"auth", "cookie", "session", "credential", "key",
}

// IsSensitiveKey reports whether a key's value must be masked.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// MaskPassword fully hides a password, keeping only its length hint.
func MaskPassword(password string) string {
	if password == "" {
		return ""
	}
	return fmt.Sprintf("***(%d chars)", len(password))
}

// MaskToken keeps the trailing 8 characters so rotations are visible
// in logs without exposing the whole token.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "***"
	}
	return "..." + token[len(token)-8:]
}

// MaskValue hides the middle of a value, preserving its shape.
func MaskValue(value string) string {
	if len(value) <= 4 {
		return "***"
	}
	return value[:2] + "***" + value[len(value)-2:]
}

// MaskURL strips userinfo and masks sensitive query parameters.
func MaskURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	q := u.Query()
	changed := false
	for key := range q {
		if IsSensitiveKey(key) {
			q.Set(key, "***")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// MaskHeader masks a header value when the name is sensitive.
func MaskHeader(name, value string) string {
	if IsSensitiveKey(name) {
		return MaskValue(value)
	}
	return value
}
