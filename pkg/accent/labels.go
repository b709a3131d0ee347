package accent

import (
	"strings"
	"unicode"
)

// DefaultDisplayNames maps CommonAccent labels to the names shown to users.
var DefaultDisplayNames = map[string]string{
	"african":        "African",
	"australia":      "Australian",
	"bermuda":        "Bermudian",
	"canada":         "Canadian",
	"england":        "English",
	"hongkong":       "Hong Kong",
	"indian":         "Indian",
	"ireland":        "Irish",
	"malaysia":       "Malaysian",
	"newzealand":     "New Zealand",
	"philippines":    "Filipino",
	"scotland":       "Scottish",
	"singapore":      "Singaporean",
	"southatlandtic": "South Atlantic",
	"us":             "American",
	"wales":          "Welsh",
}

// displayName resolves a label through overrides, then the defaults, and
// finally capitalises the raw label.
func displayName(label string, overrides map[string]string) string {
	key := strings.ToLower(label)
	if n, ok := overrides[key]; ok && n != "" {
		return n
	}
	if n, ok := DefaultDisplayNames[key]; ok {
		return n
	}
	return capitalize(strings.ReplaceAll(label, "_", " "))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
