package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExpired indicates the auth token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the auth token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")

	// ErrNotConfigured indicates no service of the requested type is registered
	ErrNotConfigured = errors.New("service not configured")

	// ErrSetupRequired indicates the provider needs its own setup flow before it can authenticate
	ErrSetupRequired = errors.New("provider setup required")

	// ErrCredentialInvalid indicates the stored credential is missing, expired or rejected
	ErrCredentialInvalid = errors.New("credential invalid")

	// ErrRateLimited indicates the provider throttled the request; retryable
	ErrRateLimited = errors.New("rate limited")

	// ErrMalformedResponse indicates the provider response could not be decoded
	ErrMalformedResponse = errors.New("malformed response")

	// ErrProviderRejected indicates an application-level error reported inside a success response
	ErrProviderRejected = errors.New("provider rejected request")

	// ErrBadRequest indicates the provider refused the request parameters
	ErrBadRequest = errors.New("bad request")

	// ErrProviderUnavailable indicates the provider could not be reached or failed
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrSaveInProgress indicates another save is still running
	ErrSaveInProgress = errors.New("save already in progress")

	// ErrServiceDisabled indicates the configured service is switched off
	ErrServiceDisabled = errors.New("service disabled")
)

// ErrorKind is the stable tag carried by a failed SaveResult.
type ErrorKind string

const (
	ErrorKindNone                ErrorKind = ""
	ErrorKindNotConfigured       ErrorKind = "not_configured"
	ErrorKindSetupRequired       ErrorKind = "setup_required"
	ErrorKindCredentialInvalid   ErrorKind = "credential_invalid"
	ErrorKindRateLimited         ErrorKind = "rate_limited"
	ErrorKindMalformedResponse   ErrorKind = "malformed_response"
	ErrorKindProviderRejected    ErrorKind = "provider_rejected"
	ErrorKindBadRequest          ErrorKind = "bad_request"
	ErrorKindProviderUnavailable ErrorKind = "provider_unavailable"
	ErrorKindDisabled            ErrorKind = "disabled"
	ErrorKindInvalidInput        ErrorKind = "invalid_input"
	ErrorKindUnknown             ErrorKind = "unknown"
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrNotConfigured, ErrorKindNotConfigured},
	{ErrSetupRequired, ErrorKindSetupRequired},
	{ErrCredentialInvalid, ErrorKindCredentialInvalid},
	{ErrRateLimited, ErrorKindRateLimited},
	{ErrMalformedResponse, ErrorKindMalformedResponse},
	{ErrProviderRejected, ErrorKindProviderRejected},
	{ErrBadRequest, ErrorKindBadRequest},
	{ErrProviderUnavailable, ErrorKindProviderUnavailable},
	{ErrServiceDisabled, ErrorKindDisabled},
	{ErrInvalidInput, ErrorKindInvalidInput},
}

// ErrorKindOf maps an error onto the save-result taxonomy.
func ErrorKindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	for _, ek := range errorKinds {
		if errors.Is(err, ek.err) {
			return ek.kind
		}
	}
	return ErrorKindUnknown
}

// ProviderError is a failure reported by a read-later provider.
// Kind is one of the sentinel errors above so callers can use errors.Is.
type ProviderError struct {
	Provider   ProviderType
	Kind       error
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %v (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %v: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error {
	return e.Kind
}

// Retryable reports whether the caller may try the same request again later.
func (e *ProviderError) Retryable() bool {
	return errors.Is(e.Kind, ErrRateLimited) || errors.Is(e.Kind, ErrProviderUnavailable)
}

// UserMessage returns the text shown to the user for this failure.
func (e *ProviderError) UserMessage() string {
	name := e.Provider.DisplayName()
	switch {
	case errors.Is(e.Kind, ErrBadRequest):
		return fmt.Sprintf("%s could not save this link. Check that the URL is valid.", name)
	case errors.Is(e.Kind, ErrCredentialInvalid):
		return fmt.Sprintf("Your %s login has expired. Reconnect the account and try again.", name)
	case errors.Is(e.Kind, ErrRateLimited):
		if e.RetryAfter > 0 {
			return fmt.Sprintf("%s is busy. Try again in %s.", name, e.RetryAfter.Round(time.Second))
		}
		return fmt.Sprintf("%s is busy. Try again shortly.", name)
	case errors.Is(e.Kind, ErrProviderRejected):
		if e.Message != "" {
			return fmt.Sprintf("%s refused the link: %s", name, e.Message)
		}
		return fmt.Sprintf("%s refused the link.", name)
	case errors.Is(e.Kind, ErrMalformedResponse):
		return fmt.Sprintf("%s sent an unexpected response.", name)
	default:
		return fmt.Sprintf("Saving to %s failed. Try again later.", name)
	}
}

// NewProviderError builds a ProviderError.
func NewProviderError(provider ProviderType, kind error, status int, msg string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, StatusCode: status, Message: msg}
}

// UserMessage extracts a displayable message from any error in the save path.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.UserMessage()
	}
	switch {
	case errors.Is(err, ErrNotConfigured):
		return "This service is not connected."
	case errors.Is(err, ErrSetupRequired):
		return "Finish connecting this service before saving."
	case errors.Is(err, ErrCredentialInvalid):
		return "This service needs to be reconnected."
	case errors.Is(err, ErrServiceDisabled):
		return "This service is disabled."
	case errors.Is(err, ErrSaveInProgress):
		return "A save is already in progress."
	}
	return err.Error()
}
