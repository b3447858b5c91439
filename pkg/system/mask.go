package system

import "strings"

// MaskEmail hides the local part of an address except its first character,
// keeping the domain for troubleshooting relay rejections.
func MaskEmail(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	at := strings.LastIndex(value, "@")
	if at <= 0 {
		return maskAll(value)
	}
	local, domain := value[:at], value[at+1:]
	runes := []rune(local)
	return string(runes[0]) + strings.Repeat("*", len(runes)-1) + "@" + domain
}

func maskAll(value string) string {
	return strings.Repeat("*", len([]rune(value)))
}
