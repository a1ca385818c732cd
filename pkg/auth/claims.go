// Package auth verifies the account tokens issued by the storefront's login
// flow. Guests never carry a token.
package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the account token body. The account id doubles as the subject.
type Claims struct {
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is optional and case-insensitive. ok is false when no single token
// follows it.
func BearerToken(header string) (string, bool) {
	fields := strings.Fields(header)
	if len(fields) > 0 && strings.EqualFold(fields[0], "bearer") {
		fields = fields[1:]
	}
	if len(fields) != 1 {
		return "", false
	}
	return fields[0], true
}
