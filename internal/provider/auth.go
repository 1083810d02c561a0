package provider

import (
	"context"
	"encoding/base64"
	"net/http"
)

// AuthKind enumerates the supported provider authentication variants
// (spec §4.2 "Auth"). none providers never authenticate; the rest
// materialize into HTTP headers.
type AuthKind string

const (
	AuthNone        AuthKind = "none"
	AuthAPIKey      AuthKind = "api_key"
	AuthBearerToken AuthKind = "bearer_token"
	AuthBasicAuth   AuthKind = "basic_auth"
	AuthOAuth2      AuthKind = "oauth2"
)

// Auth is a tagged-variant credential configuration. Only the fields
// relevant to Kind are populated.
type Auth struct {
	Kind AuthKind

	// api_key
	HeaderName string
	APIKey     string

	// bearer_token / oauth2
	Token string

	// basic_auth
	Username string
	Password string

	// oauth2 token refresh
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// ApplyHeaders materializes the credential into HTTP request headers.
func (a Auth) ApplyHeaders(h http.Header) {
	switch a.Kind {
	case AuthAPIKey:
		name := a.HeaderName
		if name == "" {
			name = "X-API-Key"
		}
		h.Set(name, a.APIKey)
	case AuthBearerToken, AuthOAuth2:
		h.Set("Authorization", "Bearer "+a.Token)
	case AuthBasicAuth:
		credentials := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
		h.Set("Authorization", "Basic "+credentials)
	case AuthNone:
		// no-op
	}
}

// authenticate reports whether the credential material is present and, for
// oauth2, whether a token refresh would be attempted. HTTPProvider's
// authenticate delegates to it.
func (a Auth) authenticate(ctx context.Context) bool {
	switch a.Kind {
	case AuthNone:
		return true
	case AuthAPIKey:
		return a.APIKey != ""
	case AuthBearerToken:
		return a.Token != ""
	case AuthBasicAuth:
		return a.Username != "" && a.Password != ""
	case AuthOAuth2:
		return a.ClientID != "" && a.ClientSecret != ""
	default:
		return false
	}
}
