package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/figpins/bridge/model"
	"github.com/rs/zerolog"
)

const (
	defaultTokenURL       = "https://api.pinterest.com/v5/oauth/token"
	defaultRequestTimeout = 30 * time.Second

	// expiryBuffer is subtracted from the provider-stated expiry so tokens
	// are refreshed before they actually lapse mid-request.
	expiryBuffer = 5 * time.Minute
)

var (
	ErrExchangeFailed    = errors.New("authorization code exchange failed")
	ErrRefreshFailed     = errors.New("token refresh failed")
	ErrCredentialExpired = errors.New("credential expired and has no refresh token")
	ErrNotConfigured     = errors.New("provider app credentials are not configured")
)

type (
	// Manager exchanges, validates, and refreshes provider credentials on
	// behalf of callers. Credentials are never stored; the caller owns them.
	Manager struct {
		logger      zerolog.Logger
		clock       clock.Clock
		client      *http.Client
		tokenURL    string
		appID       string
		appSecret   string
		redirectURI string
	}

	Config struct {
		Logger      *zerolog.Logger
		Clock       clock.Clock
		HTTPClient  *http.Client
		TokenURL    string
		AppID       string
		AppSecret   string
		RedirectURI string
	}
)

func New(cfg Config) *Manager {
	m := &Manager{
		logger:      cfg.Logger.With().Str("component", "auth").Logger(),
		clock:       cfg.Clock,
		client:      cfg.HTTPClient,
		tokenURL:    cfg.TokenURL,
		appID:       cfg.AppID,
		appSecret:   cfg.AppSecret,
		redirectURI: cfg.RedirectURI,
	}
	if m.clock == nil {
		m.clock = clock.New()
	}
	if m.client == nil {
		m.client = &http.Client{Timeout: defaultRequestTimeout}
	}
	if m.tokenURL == "" {
		m.tokenURL = defaultTokenURL
	}
	return m
}

// ExchangeCode exchanges an authorization code for a token pair.
func (m *Manager) ExchangeCode(ctx context.Context, code string) (model.TokenResponse, error) {
	if m.appID == "" || m.appSecret == "" {
		return model.TokenResponse{}, errors.Join(ErrExchangeFailed, ErrNotConfigured)
	}
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {m.redirectURI},
	}
	tr, err := m.callTokenEndpoint(ctx, form)
	if err != nil {
		return model.TokenResponse{}, errors.Join(ErrExchangeFailed, err)
	}
	m.logger.Debug().Msg("authorization code exchanged")
	return tr, nil
}

// RefreshToken exchanges a refresh token for a new token pair.
func (m *Manager) RefreshToken(ctx context.Context, refreshToken string) (model.TokenResponse, error) {
	if m.appID == "" || m.appSecret == "" {
		return model.TokenResponse{}, errors.Join(ErrRefreshFailed, ErrNotConfigured)
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	tr, err := m.callTokenEndpoint(ctx, form)
	if err != nil {
		return model.TokenResponse{}, errors.Join(ErrRefreshFailed, err)
	}
	m.logger.Debug().Msg("token refreshed")
	return tr, nil
}

// Refresh returns a refreshed form of a short-lived pair credential.
// Callers must gate on Refreshable; this is never valid for opaque tokens.
func (m *Manager) Refresh(ctx context.Context, cred model.Credential) (model.Credential, error) {
	tr, err := m.RefreshToken(ctx, cred.RefreshToken)
	if err != nil {
		return model.Credential{}, err
	}
	return m.credentialFrom(tr), nil
}

// EnsureValid returns cred unchanged while it is still valid, refreshes it
// when it is within the expiry buffer and carries a refresh token, and fails
// with ErrCredentialExpired otherwise. A credential with no expiry is always
// considered valid; provider-side revocation surfaces later as a resolution
// failure, not here.
func (m *Manager) EnsureValid(ctx context.Context, cred model.Credential) (model.Credential, error) {
	if !cred.Expires() {
		return cred, nil
	}
	if m.clock.Now().Add(expiryBuffer).Before(cred.ExpiresAt) {
		return cred, nil
	}
	if !cred.Refreshable() {
		return model.Credential{}, ErrCredentialExpired
	}
	return m.Refresh(ctx, cred)
}

func (m *Manager) credentialFrom(tr model.TokenResponse) model.Credential {
	cred := model.Credential{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
	}
	if tr.ExpiresIn > 0 {
		cred.ExpiresAt = m.clock.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return cred
}

func (m *Manager) callTokenEndpoint(ctx context.Context, form url.Values) (model.TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return model.TokenResponse{}, err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(m.appID + ":" + m.appSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := m.client.Do(req)
	if err != nil {
		return model.TokenResponse{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.TokenResponse{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.TokenResponse{}, errors.New(providerDetail(body, resp.StatusCode))
	}

	var tr model.TokenResponse
	if err = json.Unmarshal(body, &tr); err != nil {
		return model.TokenResponse{}, err
	}
	return tr, nil
}

// providerDetail extracts the most specific error string the provider gives.
func providerDetail(body []byte, status int) string {
	var e struct {
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		switch {
		case e.ErrorDescription != "":
			return e.ErrorDescription
		case e.Error != "":
			return e.Error
		case e.Message != "":
			return e.Message
		}
	}
	return fmt.Sprintf("provider returned status %d", status)
}
