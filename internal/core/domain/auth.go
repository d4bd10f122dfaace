package domain

// AuthContext identifies the API caller for a request
type AuthContext struct {
	Subject string   `json:"subject"`
	Scopes  []string `json:"scopes,omitempty"`
}

// HasScope checks whether the caller was granted scope.
// A token without scopes is granted everything.
func (a *AuthContext) HasScope(scope string) bool {
	if len(a.Scopes) == 0 {
		return true
	}
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// TokenClaims represents the JWT token payload
type TokenClaims struct {
	Subject   string   `json:"sub"`
	Scopes    []string `json:"scopes,omitempty"`
	IssuedAt  int64    `json:"iat"`
	ExpiresAt int64    `json:"exp"`
}

// API scopes
const (
	ScopeSave     = "save"
	ScopeServices = "services"
	ScopePosts    = "posts"
)

// IsValidScope reports whether scope is a known API scope
func IsValidScope(scope string) bool {
	switch scope {
	case ScopeSave, ScopeServices, ScopePosts:
		return true
	}
	return false
}
