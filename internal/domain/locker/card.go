package locker

import "strings"

const cardIDField = "card_id"

// NormalizeCardID strips the artifacts reader webhooks leave around the
// identifier: a leading "card_id=" form prefix, double quotes, whitespace.
func NormalizeCardID(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, cardIDField+"=", "")
	s = strings.ReplaceAll(s, `"`, "")
	return strings.TrimSpace(s)
}
