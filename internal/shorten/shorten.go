// Package shorten compresses entity and service names into compact
// tool-name components. Every stage is deterministic, and a name that
// is already short enough passes through untouched, so repeated
// application is a no-op.
package shorten

import (
	"regexp"
	"strings"
	"unicode"
)

// domainKeywords maps common business terms to their conventional
// abbreviations, preserving casing.
var domainKeywords = map[string]string{
	"SCREENING":      "Scrn",
	"ADDRESS":        "Addr",
	"INVESTIGATION":  "Inv",
	"BUSINESS":       "Biz",
	"CUSTOMER":       "Cust",
	"PRODUCT":        "Prod",
	"SERVICE":        "Svc",
	"MANAGEMENT":     "Mgmt",
	"INFORMATION":    "Info",
	"CONFIGURATION":  "Conf",
	"ADMINISTRATION": "Admin",
	"TRANSACTION":    "Txn",
	"DOCUMENT":       "Doc",
	"FINANCIAL":      "Fin",
	"ACCOUNTING":     "Acct",
	"ORGANIZATION":   "Org",
	"RELATIONSHIP":   "Rel",
	"COMMUNICATION":  "Comm",
	"ANALYTICS":      "Anly",
	"PURCHASE":       "Purch",
	"MATERIAL":       "Matl",
	"INVENTORY":      "Inv",
	"WAREHOUSE":      "Wh",
	"DISTRIBUTION":   "Dist",
	"MANUFACTURING":  "Mfg",
}

// genericWords carry little meaning and are dropped during filtering.
var genericWords = map[string]bool{
	"Type": true, "Info": true, "Data": true, "Set": true,
	"Collection": true, "Entity": true, "Object": true, "Item": true,
	"Record": true, "Entry": true, "View": true, "Model": true,
	"Base": true, "Core": true, "Root": true, "Node": true, "List": true,
	"Business": true, "System": true, "Master": true, "Standard": true,
	"Generic": true, "Common": true, "Basic": true, "General": true,
	"Default": true,
}

// OperationVerbs maps tool operation prefixes to their short forms.
var OperationVerbs = map[string]string{
	"create": "crt",
	"update": "upd",
	"delete": "del",
	"search": "srch",
	"filter": "fltr",
	"count":  "cnt",
}

var tokenSplit = regexp.MustCompile(`[_\-.\s:]+`)

// EntityName shortens an entity name toward target using progressive
// stages: pick the longest meaningful token, decompose CamelCase, drop
// generic words, substitute known abbreviations, then strip interior
// vowels as a last resort.
func EntityName(name string, target int) string {
	if len(name) <= target {
		return name
	}

	tokens := tokenize(name)
	longest := longestMeaningful(tokens)
	if longest != "" && len(longest) <= target {
		return longest
	}

	var words []string
	if longest != "" {
		words = splitCamelCase(longest)
	} else {
		for _, t := range tokens {
			words = append(words, splitCamelCase(t)...)
		}
	}
	words = filterGeneric(words)

	result := reduceWords(words, target)
	if len(result) > target {
		result = compressWord(result, target)
	}
	return result
}

// ServiceName shortens a service identifier for postfix use.
func ServiceName(name string, max int) string {
	cleaned := strings.TrimSuffix(strings.TrimSuffix(name, "_SRV"), "_srv")
	tokens := tokenize(cleaned)

	for _, t := range tokens {
		if abbrev, ok := domainKeywords[strings.ToUpper(t)]; ok {
			return truncate(strings.ToLower(abbrev), max)
		}
	}

	best := ""
	for _, t := range tokens {
		if genericWords[capitalize(t)] {
			continue
		}
		if len(t) > len(best) {
			best = t
		}
	}
	if best == "" && len(tokens) > 0 {
		for _, t := range tokens {
			if len(t) > len(best) {
				best = t
			}
		}
	}
	if best == "" {
		best = name
	}
	return truncate(strings.ToLower(best), max)
}

func tokenize(name string) []string {
	parts := tokenSplit.Split(name, -1)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func longestMeaningful(tokens []string) string {
	best := ""
	for _, t := range tokens {
		if len(t) <= 3 || isAllDigits(t) {
			continue
		}
		if len(t) > len(best) {
			best = t
		}
	}
	return best
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}

// splitCamelCase handles acronym runs: "XMLParser" -> ["XML", "Parser"].
func splitCamelCase(word string) []string {
	var parts []string
	runes := []rune(word)
	var current []rune

	for i, r := range runes {
		if i == 0 {
			current = append(current, r)
			continue
		}
		if unicode.IsUpper(r) {
			prevLower := unicode.IsLower(current[len(current)-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if len(current) > 0 && (prevLower || nextLower) {
				parts = append(parts, string(current))
				current = []rune{r}
				continue
			}
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		parts = append(parts, string(current))
	}
	return parts
}

func filterGeneric(words []string) []string {
	var kept []string
	for _, w := range words {
		if genericWords[w] {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 && len(words) > 0 {
		kept = words[:1]
	}
	return kept
}

func reduceWords(words []string, target int) string {
	if len(words) == 0 {
		return ""
	}

	full := strings.Join(words, "")
	if len(full) <= target {
		return full
	}

	abbreviated := make([]string, len(words))
	for i, w := range words {
		if abbrev, ok := domainKeywords[strings.ToUpper(w)]; ok {
			abbreviated[i] = abbrev
		} else {
			abbreviated[i] = w
		}
	}
	if joined := strings.Join(abbreviated, ""); len(joined) <= target {
		return joined
	}

	for n := len(words); n > 0; n-- {
		if joined := strings.Join(words[:n], ""); len(joined) <= target {
			return joined
		}
	}

	first := words[0]
	if abbrev, ok := domainKeywords[strings.ToUpper(first)]; ok {
		return truncate(abbrev, target)
	}
	if len(first) > 3 {
		if stripped := stripVowels(first); len(stripped) <= target {
			return stripped
		}
	}
	return truncate(first, target)
}

func compressWord(word string, target int) string {
	if len(word) <= target {
		return word
	}
	if len(word) > 3 {
		if stripped := stripVowels(word); len(stripped) <= target && len(stripped) >= 3 {
			return stripped
		}
	}
	return truncate(word, target)
}

// stripVowels removes interior vowels, always keeping the first and
// last characters.
func stripVowels(word string) string {
	if len(word) <= 3 {
		return word
	}
	var b strings.Builder
	b.WriteByte(word[0])
	for i := 1; i < len(word)-1; i++ {
		if !strings.ContainsRune("aeiouAEIOU", rune(word[i])) {
			b.WriteByte(word[i])
		}
	}
	b.WriteByte(word[len(word)-1])
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
