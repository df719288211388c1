// Package oauth implements the authorization code flow shared by OAuth
// capable integrations: login URLs, redirect processing and access tokens
// that refresh themselves and report the new token back to the caller.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"basegraph.app/booking/common/id"
	"basegraph.app/booking/internal/model"
)

var (
	ErrMissingState        = errors.New("missing or invalid state")
	ErrMissingCode         = errors.New("missing authorization code")
	ErrAccessDenied        = errors.New("authorization denied by user")
	ErrExchangeFailed      = errors.New("token exchange failed")
	ErrMissingRefreshToken = errors.New("token response has no refresh token")
	ErrMissingIDToken      = errors.New("token response has no id token")
	ErrMissingScopes       = errors.New("required scopes were not granted")
	ErrInvalidIDToken      = errors.New("id token verification failed")
)

// Status text keys for redirect failures, stable across releases.
var errorKeys = []struct {
	err error
	key string
}{
	{ErrMissingState, "oauth.missing_state"},
	{ErrMissingCode, "oauth.missing_code"},
	{ErrAccessDenied, "oauth.access_denied"},
	{ErrExchangeFailed, "oauth.exchange_failed"},
	{ErrMissingRefreshToken, "oauth.missing_refresh_token"},
	{ErrMissingIDToken, "oauth.missing_id_token"},
	{ErrMissingScopes, "oauth.missing_scopes"},
	{ErrInvalidIDToken, "oauth.invalid_id_token"},
}

// ErrorKey returns the status text key for a redirect error.
func ErrorKey(err error) string {
	for _, e := range errorKeys {
		if errors.Is(err, e.err) {
			return e.key
		}
	}
	return "oauth.failed"
}

// Result is the outcome of a redirect. Exactly one of Token and Err is set.
// AppID is zero when the state could not be parsed.
type Result struct {
	Token   *model.Token
	Err     error
	Account string
	ErrArgs []string
	AppID   int64
}

func failed(appID int64, err error, args ...string) Result {
	return Result{AppID: appID, Err: err, ErrArgs: args}
}

// IDVerifier verifies an identity token and returns the account it names.
type IDVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (string, error)
}

// Provider is the client side of one OAuth authorization server.
type Provider struct {
	typeName string
	config   *oauth2.Config
	verifier IDVerifier
}

// NewProvider builds a Provider. config.Scopes are requested on login and
// must all be granted for a redirect to succeed.
func NewProvider(typeName string, config *oauth2.Config, verifier IDVerifier) *Provider {
	return &Provider{typeName: typeName, config: config, verifier: verifier}
}

// RedirectURL derives the fixed redirect URI from the public base URL.
func RedirectURL(publicBaseURL string) string {
	return strings.TrimRight(publicBaseURL, "/") + "/oauth/redirect"
}

// LoginURL builds the authorization URL for appID. Offline access and a
// consent prompt are always requested so the provider issues a refresh token.
func (p *Provider) LoginURL(appID int64) string {
	return p.config.AuthCodeURL(id.Format(appID), oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ParseState extracts the app instance id carried in the state parameter.
func ParseState(query url.Values) (int64, error) {
	state := strings.TrimSpace(query.Get("state"))
	if state == "" {
		return 0, ErrMissingState
	}
	appID, err := id.Parse(state)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMissingState, err)
	}
	return appID, nil
}

// ProcessRedirect exchanges the authorization code in query for a token set.
// Every failure is reported in the Result.
func (p *Provider) ProcessRedirect(ctx context.Context, query url.Values) Result {
	appID, err := ParseState(query)
	if err != nil {
		return failed(0, err)
	}

	if e := query.Get("error"); e != "" {
		return failed(appID, ErrAccessDenied, e)
	}

	code := strings.TrimSpace(query.Get("code"))
	if code == "" {
		return failed(appID, ErrMissingCode)
	}

	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return failed(appID, fmt.Errorf("%w: %v", ErrExchangeFailed, err))
	}
	if tok.RefreshToken == "" {
		return failed(appID, ErrMissingRefreshToken)
	}

	rawIDToken, _ := tok.Extra("id_token").(string)
	if rawIDToken == "" {
		return failed(appID, ErrMissingIDToken)
	}

	granted, _ := tok.Extra("scope").(string)
	if missing := missingScopes(p.config.Scopes, granted); len(missing) > 0 {
		return failed(appID, ErrMissingScopes, strings.Join(missing, " "))
	}

	account, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return failed(appID, fmt.Errorf("%w: %v", ErrInvalidIDToken, err))
	}

	return Result{
		AppID:   appID,
		Account: account,
		Token: &model.Token{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			TokenType:    tok.TokenType,
			IDToken:      rawIDToken,
			Expiry:       tok.Expiry,
		},
	}
}

func missingScopes(required []string, granted string) []string {
	have := make(map[string]bool)
	for _, s := range strings.Fields(granted) {
		have[s] = true
	}

	var missing []string
	for _, s := range required {
		if !have[s] {
			missing = append(missing, s)
		}
	}
	return missing
}

// IsCredentialError reports whether err came from the token endpoint
// refusing the stored credentials, such as a revoked refresh token.
// Outages and rate limits of the endpoint are not credential errors.
func IsCredentialError(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	switch re.ErrorCode {
	case "invalid_grant", "invalid_client", "unauthorized_client":
		return true
	case "":
		if re.Response == nil {
			return false
		}
		return re.Response.StatusCode == http.StatusBadRequest || re.Response.StatusCode == http.StatusUnauthorized
	default:
		return false
	}
}
