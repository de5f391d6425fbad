package segment

import (
	"regexp"
	"strings"
)

var (
	// unread counters such as "(3)" or "[12]"
	counterRegex = regexp.MustCompile(`[(\[]\d+[)\]]`)
	// unsaved-changes markers drawn by editors
	markerReplacer = strings.NewReplacer("●", " ", "*", " ", "•", " ")
)

// Normalize reduces a window title to the key used to decide whether two
// samples belong to the same activity.
func Normalize(title string) string {
	s := strings.ToLower(title)
	s = counterRegex.ReplaceAllString(s, " ")
	s = markerReplacer.Replace(s)

	return strings.Join(strings.Fields(s), " ")
}
