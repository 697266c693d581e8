package config

import (
	"fmt"
	"strings"
)

// Operation codes for tool gating. R is a pseudo-code expanding to the
// read group S, F and G.
const (
	OpCreate   = 'C'
	OpSearch   = 'S'
	OpFilter   = 'F'
	OpGet      = 'G'
	OpUpdate   = 'U'
	OpDelete   = 'D'
	OpFunction = 'A'
)

var allOps = []rune{OpCreate, OpSearch, OpFilter, OpGet, OpUpdate, OpDelete, OpFunction}

// OpSet is the set of permitted operation codes.
type OpSet map[rune]bool

// ParseOpSet parses a code string like "CSF" or "R,A". Separators are
// ignored, letters are case-insensitive, R expands to S|F|G.
func ParseOpSet(spec string) (OpSet, error) {
	set := make(OpSet)
	for _, r := range strings.ToUpper(spec) {
		switch r {
		case 'C', 'S', 'F', 'G', 'U', 'D', 'A':
			set[r] = true
		case 'R':
			set[OpSearch] = true
			set[OpFilter] = true
			set[OpGet] = true
		case ',', ' ', ';':
			// separators
		default:
			return nil, fmt.Errorf("unknown operation code %q (valid: C, S, F, G, U, D, A, R)", string(r))
		}
	}
	return set, nil
}

// AllowedOps resolves the gating flags into the final permitted set.
// Order: read-only modes first, then --disable subtraction or
// --enable intersection. --enable and --disable are mutually
// exclusive and validated by the CLI before this runs.
func (c *Config) AllowedOps() (OpSet, error) {
	set := make(OpSet, len(allOps))
	for _, op := range allOps {
		set[op] = true
	}

	if c.ReadOnly {
		delete(set, OpCreate)
		delete(set, OpUpdate)
		delete(set, OpDelete)
		delete(set, OpFunction)
	} else if c.ReadOnlyButFunctions {
		delete(set, OpCreate)
		delete(set, OpUpdate)
		delete(set, OpDelete)
	}

	if c.DisableOps != "" {
		disabled, err := ParseOpSet(c.DisableOps)
		if err != nil {
			return nil, err
		}
		for op := range disabled {
			delete(set, op)
		}
	}

	if c.EnableOps != "" {
		enabled, err := ParseOpSet(c.EnableOps)
		if err != nil {
			return nil, err
		}
		for op := range set {
			if !enabled[op] {
				delete(set, op)
			}
		}
	}

	return set, nil
}

// MatchWildcard matches a name against a pattern with * and ?
// placeholders. Used for the --entities/--functions allowlists.
func MatchWildcard(pattern, name string) bool {
	return matchRunes([]rune(pattern), []rune(name))
}

func matchRunes(pattern, name []rune) bool {
	if len(pattern) == 0 {
		return len(name) == 0
	}
	switch pattern[0] {
	case '*':
		for i := 0; i <= len(name); i++ {
			if matchRunes(pattern[1:], name[i:]) {
				return true
			}
		}
		return false
	case '?':
		return len(name) > 0 && matchRunes(pattern[1:], name[1:])
	default:
		return len(name) > 0 && pattern[0] == name[0] && matchRunes(pattern[1:], name[1:])
	}
}

// MatchAnyWildcard reports whether a name matches any of the patterns.
// An empty pattern list allows everything.
func MatchAnyWildcard(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if MatchWildcard(p, name) {
			return true
		}
	}
	return false
}
