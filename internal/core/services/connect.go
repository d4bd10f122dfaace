package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
	"github.com/custodia-labs/readlater/internal/core/ports/driving"
)

// Ensure connectService implements ConnectService
var _ driving.ConnectService = (*connectService)(nil)

// handshakeTTL bounds how long a pending setup flow stays valid.
const handshakeTTL = 10 * time.Minute

// ConnectServiceConfig holds configuration for the connect service.
type ConnectServiceConfig struct {
	// Saves receives every completed connection.
	Saves driving.SaveService

	// Handshakes stores pending approval flows.
	Handshakes driven.HandshakeStore

	// Provider setup flows.
	Pocket     driven.RequestTokenFlow
	Instapaper driven.PasswordExchange
	Readwise   driven.TokenVerifier
	Raindrop   driven.OAuth2Flow

	// BaseURL is the application base URL for provider callbacks.
	// Example: "https://app.example.com" or "http://localhost:8080"
	BaseURL string

	Logger *slog.Logger
}

// connectService implements the ConnectService interface.
type connectService struct {
	saves      driving.SaveService
	handshakes driven.HandshakeStore
	pocket     driven.RequestTokenFlow
	instapaper driven.PasswordExchange
	readwise   driven.TokenVerifier
	raindrop   driven.OAuth2Flow
	baseURL    string
	logger     *slog.Logger
}

// NewConnectService creates a new connect service.
func NewConnectService(cfg ConnectServiceConfig) driving.ConnectService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &connectService{
		saves:      cfg.Saves,
		handshakes: cfg.Handshakes,
		pocket:     cfg.Pocket,
		instapaper: cfg.Instapaper,
		readwise:   cfg.Readwise,
		raindrop:   cfg.Raindrop,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		logger:     logger,
	}
}

// BeginPocket obtains a request code for the consumer key and returns the
// URL where the user approves it.
func (s *connectService) BeginPocket(ctx context.Context, req driving.BeginPocketRequest) (*driving.AuthorizeResponse, error) {
	if req.ConsumerKey == "" {
		return nil, fmt.Errorf("%w: consumer key is required", domain.ErrInvalidInput)
	}

	state, err := generateRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = s.baseURL + "/api/v1/connect/pocket/callback?state=" + url.QueryEscape(state)
	}

	code, err := s.pocket.RequestCode(ctx, req.ConsumerKey, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("request pocket code: %w", err)
	}

	settings := req.Settings
	settings.ConsumerKey = req.ConsumerKey
	settings.RedirectURI = redirectURI

	expiresAt, err := s.saveHandshake(ctx, &driven.HandshakeState{
		State:        state,
		ProviderType: domain.ProviderTypePocket,
		RequestCode:  code,
		RedirectURI:  redirectURI,
		Settings:     settings,
	})
	if err != nil {
		return nil, err
	}

	return &driving.AuthorizeResponse{
		AuthorizationURL: s.pocket.AuthorizeURL(code, redirectURI),
		State:            state,
		ExpiresAt:        expiresAt.Format(time.RFC3339),
	}, nil
}

// CompletePocket exchanges the approved request code for an access token.
func (s *connectService) CompletePocket(ctx context.Context, state string) (*driving.ConnectResponse, error) {
	hs, err := s.consumeHandshake(ctx, state, domain.ProviderTypePocket)
	if err != nil {
		return nil, err
	}

	token, username, err := s.pocket.ExchangeCode(ctx, hs.Settings.ConsumerKey, hs.RequestCode)
	if err != nil {
		return nil, exchangeError(err)
	}

	settings := hs.Settings
	settings.Username = username
	return s.configure(ctx, domain.ProviderTypePocket, token, settings)
}

// ConnectInstapaper exchanges a username and password for a stored credential.
func (s *connectService) ConnectInstapaper(ctx context.Context, req driving.ConnectInstapaperRequest) (*driving.ConnectResponse, error) {
	if req.Username == "" {
		return nil, fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	}

	secret, err := s.instapaper.Login(ctx, req.Username, req.Password)
	if err != nil {
		return nil, fmt.Errorf("instapaper login: %w", err)
	}

	settings := req.Settings
	settings.Username = req.Username
	return s.configure(ctx, domain.ProviderTypeInstapaper, secret, settings)
}

// ConnectOmnivore stores the API key without a handshake. An empty key is
// stored as-is and leaves the service unauthenticated.
func (s *connectService) ConnectOmnivore(ctx context.Context, req driving.ConnectTokenRequest) (*driving.ConnectResponse, error) {
	return s.configure(ctx, domain.ProviderTypeOmnivore, strings.TrimSpace(req.Token), req.Settings)
}

// ConnectReadwise accepts the token only after the verification call succeeds.
func (s *connectService) ConnectReadwise(ctx context.Context, req driving.ConnectTokenRequest) (*driving.ConnectResponse, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", domain.ErrInvalidInput)
	}
	if err := s.readwise.VerifyToken(ctx, token); err != nil {
		return nil, fmt.Errorf("verify readwise token: %w", err)
	}
	return s.configure(ctx, domain.ProviderTypeReadwise, token, req.Settings)
}

// BeginRaindrop returns the OAuth2 authorization URL.
func (s *connectService) BeginRaindrop(ctx context.Context, req driving.BeginRaindropRequest) (*driving.AuthorizeResponse, error) {
	if req.ClientID == "" || req.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client id and secret are required", domain.ErrInvalidInput)
	}

	state, err := generateRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = s.baseURL + "/api/v1/connect/raindrop/callback"
	}

	settings := req.Settings
	settings.ClientID = req.ClientID
	settings.RedirectURI = redirectURI

	expiresAt, err := s.saveHandshake(ctx, &driven.HandshakeState{
		State:        state,
		ProviderType: domain.ProviderTypeRaindrop,
		ClientSecret: req.ClientSecret,
		RedirectURI:  redirectURI,
		Settings:     settings,
	})
	if err != nil {
		return nil, err
	}

	return &driving.AuthorizeResponse{
		AuthorizationURL: s.raindrop.AuthCodeURL(req.ClientID, redirectURI, state),
		State:            state,
		ExpiresAt:        expiresAt.Format(time.RFC3339),
	}, nil
}

// CompleteRaindrop validates state and exchanges the authorization code.
func (s *connectService) CompleteRaindrop(ctx context.Context, req driving.CallbackRequest) (*driving.ConnectResponse, error) {
	if req.Error != "" {
		return nil, &driving.ConnectError{
			Code:        req.Error,
			Description: req.ErrorDescription,
		}
	}

	hs, err := s.consumeHandshake(ctx, req.State, domain.ProviderTypeRaindrop)
	if err != nil {
		return nil, err
	}

	secret, err := s.raindrop.Exchange(ctx, hs.Settings.ClientID, hs.ClientSecret, hs.RedirectURI, req.Code)
	if err != nil {
		return nil, exchangeError(err)
	}

	return s.configure(ctx, domain.ProviderTypeRaindrop, secret, hs.Settings)
}

func (s *connectService) configure(ctx context.Context, provider domain.ProviderType, secret string, settings domain.ServiceSettings) (*driving.ConnectResponse, error) {
	summary, err := s.saves.ConfigureService(ctx, driving.ConfigureServiceRequest{
		ProviderType: provider,
		Credential:   secret,
		Settings:     settings,
	})
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Connected %s", provider.DisplayName())
	if settings.Username != "" {
		msg = fmt.Sprintf("Connected %s as %s", provider.DisplayName(), settings.Username)
	}
	s.logger.Info("connected service", "provider", provider, "config_id", summary.ID)

	return &driving.ConnectResponse{Service: summary, Message: msg}, nil
}

func (s *connectService) saveHandshake(ctx context.Context, hs *driven.HandshakeState) (time.Time, error) {
	now := time.Now()
	hs.CreatedAt = now
	hs.ExpiresAt = now.Add(handshakeTTL)
	if err := s.handshakes.Save(ctx, hs); err != nil {
		return time.Time{}, fmt.Errorf("save handshake state: %w", err)
	}
	return hs.ExpiresAt, nil
}

// consumeHandshake validates and consumes state (single-use).
func (s *connectService) consumeHandshake(ctx context.Context, state string, provider domain.ProviderType) (*driven.HandshakeState, error) {
	if state == "" {
		return nil, driving.ErrConnectInvalidState
	}
	hs, err := s.handshakes.GetAndDelete(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("get handshake state: %w", err)
	}
	if hs == nil || hs.ProviderType != provider {
		return nil, driving.ErrConnectInvalidState
	}
	return hs, nil
}

// exchangeError keeps taxonomy errors visible and wraps everything else.
func exchangeError(err error) error {
	if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrProviderUnavailable) {
		return err
	}
	return &driving.ConnectError{
		Code:        driving.ErrConnectExchangeFailed.Code,
		Description: err.Error(),
	}
}

// generateRandomString creates a cryptographically random hex string.
func generateRandomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes)[:length], nil
}
