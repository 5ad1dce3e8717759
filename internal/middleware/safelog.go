package middleware

import "strings"

// MaskID оставляет в логах тип id и первые символы: user-1a2b***.
func MaskID(s string) string {
	s = strings.TrimSpace(s)
	prefix, rest, ok := strings.Cut(s, "-")
	if !ok {
		prefix, rest = "", s
	} else {
		prefix += "-"
	}
	if len(rest) <= 4 {
		return prefix + "****"
	}
	return prefix + rest[:4] + "***"
}

// MaskSessionID — токен сессии в логах: только первые 4 символа.
func MaskSessionID(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "***"
}
