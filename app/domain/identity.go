package domain

import (
	"fmt"
	"strings"
)

// CanonicalLogin normalizes an email-shaped username into the form stored
// as a login key: lowercased, with dots stripped from the local part so
// common free-mail alias spellings resolve to the same credential row.
// "J.Doe@Example.com" and "jdoe@example.com" both canonicalize to
// "jdoe@example.com".
func CanonicalLogin(username string) (string, error) {
	lowered := strings.ToLower(username)
	local, domainPart, found := strings.Cut(lowered, "@")
	if !found || local == "" || domainPart == "" {
		return "", fmt.Errorf("username %q is not email-shaped", username)
	}
	return strings.ReplaceAll(local, ".", "") + "@" + domainPart, nil
}
