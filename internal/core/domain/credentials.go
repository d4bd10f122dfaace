package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SecretPairSeparator joins the two halves of a composite credential
const SecretPairSeparator = ":"

// JoinSecretPair stores a two-part credential as a single opaque string
func JoinSecretPair(first, second string) string {
	return first + SecretPairSeparator + second
}

// SplitSecretPair splits a composite credential on the first separator.
// The second half may itself contain the separator.
func SplitSecretPair(secret string) (first, second string, ok bool) {
	first, second, ok = strings.Cut(secret, SecretPairSeparator)
	return first, second, ok
}

// OAuth2Credential is the secret stored for OAuth2 providers
type OAuth2Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	ClientSecret string    `json:"client_secret,omitempty"`
}

// IsExpired checks if the access token has expired
func (c *OAuth2Credential) IsExpired() bool {
	if c.Expiry.IsZero() {
		return false
	}
	return time.Now().After(c.Expiry)
}

// NeedsRefresh checks if tokens should be refreshed (within 5 min of expiry)
func (c *OAuth2Credential) NeedsRefresh() bool {
	if c.Expiry.IsZero() {
		return false
	}
	return time.Now().Add(5 * time.Minute).After(c.Expiry)
}

// Encode serialises the credential for the credential store
func (c *OAuth2Credential) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode oauth2 credential: %w", err)
	}
	return string(data), nil
}

// DecodeOAuth2Credential parses a stored OAuth2 secret
func DecodeOAuth2Credential(secret string) (*OAuth2Credential, error) {
	var c OAuth2Credential
	if err := json.Unmarshal([]byte(secret), &c); err != nil {
		return nil, fmt.Errorf("decode oauth2 credential: %w", err)
	}
	return &c, nil
}
