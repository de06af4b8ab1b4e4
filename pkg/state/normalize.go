package state

import "strings"

// NormalizeGroupName canonicalizes a group name: surrounding whitespace is
// trimmed and the name is lower-cased. The "#" addressing prefix is not part
// of a group name.
func NormalizeGroupName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
