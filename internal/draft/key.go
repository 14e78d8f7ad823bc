// ABOUTME: Key construction for namespaced draft records
// ABOUTME: Joins non-empty parts under the shared draft prefix

package draft

import "strings"

// KeyPrefix starts every key built by Key.
const KeyPrefix = "draft"

// Key builds a namespaced draft key such as "draft:fuelman:42". Empty parts
// are skipped.
func Key(parts ...string) string {
	b := strings.Builder{}
	b.WriteString(KeyPrefix)
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}
