// Package textutil holds rune-safe string helpers shared by the prompt and
// notification builders.
package textutil

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max < 0 {
		max = 0
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// Excerpt is Truncate with "..." appended when s was cut.
func Excerpt(s string, max int) string {
	t := Truncate(s, max)
	if len(t) < len(s) {
		return t + "..."
	}
	return t
}
