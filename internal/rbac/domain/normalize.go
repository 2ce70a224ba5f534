package domain

import "strings"

// NormalizeRoleName trims and lowercases a role name.
func NormalizeRoleName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeRoleNames normalizes names, dropping empties and duplicates while
// keeping first-seen order.
func NormalizeRoleNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		normalized := NormalizeRoleName(name)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

// NormalizePermissionCode trims and lowercases a permission code.
func NormalizePermissionCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
