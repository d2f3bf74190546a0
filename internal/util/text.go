package util

import "strings"

// SanitizePostgresText drops invalid UTF-8 and NUL bytes, which Postgres
// text columns reject.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// SanitizePostgresJSON removes escaped NUL characters from encoded JSON,
// which jsonb rejects.
func SanitizePostgresJSON(value string) string {
	if !strings.Contains(value, `\u0000`) {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		if value[i] == '\\' && i+1 < len(value) {
			if strings.HasPrefix(value[i:], `\u0000`) {
				i += len(`\u0000`) - 1
				continue
			}
			b.WriteByte(value[i])
			b.WriteByte(value[i+1])
			i++
			continue
		}
		b.WriteByte(value[i])
	}
	return b.String()
}
