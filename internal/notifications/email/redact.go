package email

import "strings"

// RedactAddress masks an address for logging, keeping only the first
// character of the local part: "owner@example.com" becomes "o***@example.com".
// Input without an "@" is masked entirely.
func RedactAddress(addr string) string {
	if addr == "" {
		return ""
	}
	local, domain, ok := strings.Cut(addr, "@")
	if !ok {
		return "***"
	}
	if local == "" {
		return "***@" + domain
	}
	return local[:1] + "***@" + domain
}
