package artifact

import "strings"

// ItemKey joins identifiers into one item key, e.g. a run index and an
// encounter id.
func ItemKey(parts ...string) string {
	return strings.Join(parts, ":")
}
