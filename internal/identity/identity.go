package identity

import "strings"

// IsValid reports whether an identifier looks like a loose email address:
// non-empty, "@" separating a non-empty local part from a domain that
// contains a dot. This is a formatting gate only, not authentication.
func IsValid(identifier string) bool {
	at := strings.Index(identifier, "@")
	if at <= 0 {
		return false
	}
	domain := identifier[at+1:]
	if domain == "" || strings.Contains(domain, "@") {
		return false
	}
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}
