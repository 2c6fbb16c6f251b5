package utils

import "strings"

// ParseScopeString splits a space-delimited scope string into an ordered,
// deduplicated slice. Order of first occurrence is preserved; blanks dropped.
func ParseScopeString(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// JoinScopes renders a scope slice back into canonical space-joined form.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ContainsScope reports whether the slice contains the given scope.
func ContainsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
