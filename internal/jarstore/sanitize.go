package jarstore

import "strings"

const (
	defaultJarID = "default"
	maxJarIDLen  = 64
)

// SanitizeID maps a caller-supplied jar identifier to the safe filename alphabet
// [A-Za-z0-9._-]. Other characters become '_', the result is cut to 64 characters,
// and an empty identifier becomes "default". Distinct raw identifiers may collide.
func SanitizeID(raw string) string {
	var b strings.Builder
	b.Grow(min(len(raw), maxJarIDLen))

	for _, r := range raw {
		if b.Len() >= maxJarIDLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	if b.Len() == 0 {
		return defaultJarID
	}
	return b.String()
}
