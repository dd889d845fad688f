package auth

// Scopes carried by API tokens
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
)

// TokenClaims identifies the caller of the API
type TokenClaims struct {
	Subject string   `json:"sub"`
	Scopes  []string `json:"scopes"`
}

// HasScope reports whether the token grants scope. A write token may also read.
func (c TokenClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope || (scope == ScopeRead && s == ScopeWrite) {
			return true
		}
	}
	return false
}

// AuthError is returned to API clients as {"error": Code, "message": Message}
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e AuthError) Error() string {
	return e.Message
}

// Common authentication errors
var (
	ErrInvalidToken = AuthError{Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	ErrTokenExpired = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrUnauthorized = AuthError{Code: "UNAUTHORIZED", Message: "unauthorized access"}
	ErrForbidden    = AuthError{Code: "FORBIDDEN", Message: "access forbidden"}
)
