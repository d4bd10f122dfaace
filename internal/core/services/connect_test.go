package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/readlater/internal/core/ports/driving"
)

type fakePocketFlow struct {
	requestedKey string
	redirectURI  string
	exchangeErr  error
}

func (f *fakePocketFlow) RequestCode(ctx context.Context, consumerKey, redirectURI string) (string, error) {
	f.requestedKey = consumerKey
	f.redirectURI = redirectURI
	return "req-code", nil
}

func (f *fakePocketFlow) AuthorizeURL(code, redirectURI string) string {
	return "https://pocket.test/auth/authorize?request_token=" + code
}

func (f *fakePocketFlow) ExchangeCode(ctx context.Context, consumerKey, code string) (string, string, error) {
	if f.exchangeErr != nil {
		return "", "", f.exchangeErr
	}
	if consumerKey != f.requestedKey || code != "req-code" {
		return "", "", errors.New("unexpected exchange")
	}
	return "pocket-access", "reader", nil
}

type fakePasswordExchange struct {
	err error
}

func (f *fakePasswordExchange) Login(ctx context.Context, username, password string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return domain.JoinSecretPair(username, password), nil
}

type fakeVerifier struct {
	err   error
	calls int
}

func (f *fakeVerifier) VerifyToken(ctx context.Context, token string) error {
	f.calls++
	return f.err
}

type fakeOAuth2Flow struct {
	gotSecret string
}

func (f *fakeOAuth2Flow) AuthCodeURL(clientID, redirectURI, state string) string {
	return "https://raindrop.test/oauth/authorize?client_id=" + clientID + "&state=" + state
}

func (f *fakeOAuth2Flow) Exchange(ctx context.Context, clientID, clientSecret, redirectURI, code string) (string, error) {
	f.gotSecret = clientSecret
	return `{"access_token":"a","refresh_token":"r"}`, nil
}

type connectFixture struct {
	saves      *SaveOrchestrator
	factory    *mocks.MockSaverFactory
	creds      *mocks.MockCredentialStore
	handshakes *mocks.MockHandshakeStore
	pocket     *fakePocketFlow
	instapaper *fakePasswordExchange
	readwise   *fakeVerifier
	raindrop   *fakeOAuth2Flow
	svc        driving.ConnectService
}

func newConnectFixture() *connectFixture {
	f := &connectFixture{
		factory:    mocks.NewMockSaverFactory(),
		creds:      mocks.NewMockCredentialStore(),
		handshakes: mocks.NewMockHandshakeStore(),
		pocket:     &fakePocketFlow{},
		instapaper: &fakePasswordExchange{},
		readwise:   &fakeVerifier{},
		raindrop:   &fakeOAuth2Flow{},
	}
	f.saves = NewSaveOrchestrator(SaveOrchestratorConfig{
		Store:   mocks.NewMockServiceConfigStore(),
		Creds:   f.creds,
		Factory: f.factory,
	})
	f.svc = NewConnectService(ConnectServiceConfig{
		Saves:      f.saves,
		Handshakes: f.handshakes,
		Pocket:     f.pocket,
		Instapaper: f.instapaper,
		Readwise:   f.readwise,
		Raindrop:   f.raindrop,
		BaseURL:    "http://localhost:8080/",
	})
	return f
}

func TestConnectService_PocketFlow(t *testing.T) {
	f := newConnectFixture()
	ctx := context.Background()

	auth, err := f.svc.BeginPocket(ctx, driving.BeginPocketRequest{ConsumerKey: "ck-1"})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if auth.State == "" || !strings.Contains(auth.AuthorizationURL, "req-code") {
		t.Errorf("unexpected authorize response %+v", auth)
	}
	if !strings.HasPrefix(f.pocket.redirectURI, "http://localhost:8080/api/v1/connect/pocket/callback?state=") {
		t.Errorf("unexpected redirect uri %q", f.pocket.redirectURI)
	}

	resp, err := f.svc.CompletePocket(ctx, auth.State)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Service.ProviderType != domain.ProviderTypePocket || resp.Service.Settings.ConsumerKey != "ck-1" {
		t.Errorf("unexpected service %+v", resp.Service)
	}
	if !strings.Contains(resp.Message, "reader") {
		t.Errorf("expected username in message, got %q", resp.Message)
	}
	secret, _ := f.creds.Get(ctx, domain.ProviderTypePocket, resp.Service.ID)
	if secret != "pocket-access" {
		t.Errorf("expected access token stored, got %q", secret)
	}

	// State is single-use
	if _, err := f.svc.CompletePocket(ctx, auth.State); !errors.Is(err, driving.ErrConnectInvalidState) {
		t.Errorf("expected invalid state on reuse, got %v", err)
	}
}

func TestConnectService_PocketRequiresConsumerKey(t *testing.T) {
	f := newConnectFixture()
	_, err := f.svc.BeginPocket(context.Background(), driving.BeginPocketRequest{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestConnectService_PocketExchangeFailure(t *testing.T) {
	f := newConnectFixture()
	f.pocket.exchangeErr = errors.New("user declined")

	auth, _ := f.svc.BeginPocket(context.Background(), driving.BeginPocketRequest{ConsumerKey: "ck"})
	_, err := f.svc.CompletePocket(context.Background(), auth.State)

	var connectErr *driving.ConnectError
	if !errors.As(err, &connectErr) || connectErr.Code != "exchange_failed" {
		t.Errorf("expected exchange_failed, got %v", err)
	}
	if len(f.saves.Snapshot().Services) != 0 {
		t.Error("no service should be configured")
	}
}

func TestConnectService_Instapaper(t *testing.T) {
	f := newConnectFixture()
	resp, err := f.svc.ConnectInstapaper(context.Background(), driving.ConnectInstapaperRequest{
		Username: "reader@example.com",
		Password: "p:w",
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	secret, _ := f.creds.Get(context.Background(), domain.ProviderTypeInstapaper, resp.Service.ID)
	user, pass, ok := domain.SplitSecretPair(secret)
	if !ok || user != "reader@example.com" || pass != "p:w" {
		t.Errorf("composite secret did not round-trip: %q", secret)
	}
}

func TestConnectService_InstapaperLoginFailure(t *testing.T) {
	f := newConnectFixture()
	f.instapaper.err = domain.NewProviderError(domain.ProviderTypeInstapaper, domain.ErrCredentialInvalid, 403, "")

	_, err := f.svc.ConnectInstapaper(context.Background(), driving.ConnectInstapaperRequest{Username: "u", Password: "bad"})
	if !errors.Is(err, domain.ErrCredentialInvalid) {
		t.Errorf("expected ErrCredentialInvalid, got %v", err)
	}
}

func TestConnectService_OmnivoreEmptyKey(t *testing.T) {
	f := newConnectFixture()
	ctx := context.Background()

	remote := 0
	f.factory.Configure = func(s *mocks.MockSaver) {
		hasKey := func() bool {
			secret, _ := f.creds.Get(ctx, s.ProviderType, s.ID)
			return strings.TrimSpace(secret) != ""
		}
		s.IsAuthenticatedFn = hasKey
		s.SaveFn = func(ctx context.Context, url, title string) (*domain.SaveReceipt, error) {
			if !hasKey() {
				return nil, domain.NewProviderError(domain.ProviderTypeOmnivore, domain.ErrCredentialInvalid, 0, "")
			}
			remote++
			return &domain.SaveReceipt{ItemID: "item-1"}, nil
		}
	}

	resp, err := f.svc.ConnectOmnivore(ctx, driving.ConnectTokenRequest{Token: "  "})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if resp.Service.ProviderType != domain.ProviderTypeOmnivore {
		t.Errorf("unexpected provider %s", resp.Service.ProviderType)
	}
	if resp.Service.Authenticated {
		t.Error("expected service without a key to be unauthenticated")
	}
	if !f.creds.Has(domain.ProviderTypeOmnivore, resp.Service.ID) {
		t.Error("expected empty key to be stored")
	}

	result, err := f.saves.Save(ctx, driving.SaveRequest{URL: "https://example.com", Provider: domain.ProviderTypeOmnivore})
	if !errors.Is(err, domain.ErrCredentialInvalid) {
		t.Errorf("expected ErrCredentialInvalid, got %v", err)
	}
	if result == nil || result.Success {
		t.Errorf("expected failed result, got %+v", result)
	}
	if remote != 0 {
		t.Errorf("expected no remote call, got %d", remote)
	}
}

func TestConnectService_ReadwiseVerification(t *testing.T) {
	f := newConnectFixture()

	f.readwise.err = &domain.ProviderError{Provider: domain.ProviderTypeReadwise, Kind: domain.ErrRateLimited, StatusCode: 429}
	_, err := f.svc.ConnectReadwise(context.Background(), driving.ConnectTokenRequest{Token: "tok"})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if len(f.saves.Snapshot().Services) != 0 {
		t.Error("unverified token must not be configured")
	}

	f.readwise.err = nil
	resp, err := f.svc.ConnectReadwise(context.Background(), driving.ConnectTokenRequest{Token: " tok "})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	secret, _ := f.creds.Get(context.Background(), domain.ProviderTypeReadwise, resp.Service.ID)
	if secret != "tok" {
		t.Errorf("expected trimmed token, got %q", secret)
	}

	if _, err := f.svc.ConnectReadwise(context.Background(), driving.ConnectTokenRequest{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestConnectService_RaindropFlow(t *testing.T) {
	f := newConnectFixture()
	ctx := context.Background()

	auth, err := f.svc.BeginRaindrop(ctx, driving.BeginRaindropRequest{ClientID: "cid", ClientSecret: "csecret"})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !strings.Contains(auth.AuthorizationURL, "state="+auth.State) {
		t.Errorf("expected state in url %q", auth.AuthorizationURL)
	}

	resp, err := f.svc.CompleteRaindrop(ctx, driving.CallbackRequest{Code: "code", State: auth.State})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if f.raindrop.gotSecret != "csecret" {
		t.Error("expected client secret from handshake state")
	}
	if resp.Service.Settings.ClientID != "cid" {
		t.Error("expected client id in settings")
	}
}

func TestConnectService_RaindropCallbackErrors(t *testing.T) {
	f := newConnectFixture()

	_, err := f.svc.CompleteRaindrop(context.Background(), driving.CallbackRequest{Error: "access_denied"})
	var connectErr *driving.ConnectError
	if !errors.As(err, &connectErr) || connectErr.Code != "access_denied" {
		t.Errorf("expected access_denied, got %v", err)
	}

	_, err = f.svc.CompleteRaindrop(context.Background(), driving.CallbackRequest{Code: "c", State: "unknown"})
	if !errors.Is(err, driving.ErrConnectInvalidState) {
		t.Errorf("expected invalid state, got %v", err)
	}
}

func TestConnectService_StateIsProviderBound(t *testing.T) {
	f := newConnectFixture()
	auth, _ := f.svc.BeginPocket(context.Background(), driving.BeginPocketRequest{ConsumerKey: "ck"})

	_, err := f.svc.CompleteRaindrop(context.Background(), driving.CallbackRequest{Code: "c", State: auth.State})
	if !errors.Is(err, driving.ErrConnectInvalidState) {
		t.Errorf("expected invalid state for wrong provider, got %v", err)
	}
}
