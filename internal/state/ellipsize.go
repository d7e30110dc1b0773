package state

// Ellipsize truncates s to max runes and appends an ellipsis marker when the
// body exceeds the limit. This is a display transform, never a storage one.
func Ellipsize(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
