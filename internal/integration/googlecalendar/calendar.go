// Package googlecalendar connects Google Calendar over OAuth. It reports
// busy times and writes booking events.
package googlecalendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"basegraph.app/booking/core/config"
	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/oauth"
)

const (
	TypeName = "google_calendar"

	DefaultAPIBase   = "https://www.googleapis.com/calendar/v3"
	DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"

	primaryCalendar = "primary"
	maxErrorBody    = 4 << 10
)

// Scopes requested on login. All of them must be granted.
var Scopes = []string{
	"openid",
	"email",
	"https://www.googleapis.com/auth/calendar.events",
}

// Status text keys.
const (
	KeyNotAuthorized      = "oauth.not_authorized"
	KeyCredentialsInvalid = "oauth.credentials_invalid"
	KeyForbidden          = "google_calendar.forbidden"
	KeyAPIError           = "google_calendar.api_error"
	KeyRateLimited        = "google_calendar.rate_limited"
)

var errNotAuthorized = errors.New("instance has no oauth token")

// Data is the instance data of a Google Calendar app.
type Data struct {
	CalendarID string `json:"calendar_id,omitempty" jsonschema:"description=Calendar to read and write; defaults to the primary calendar"`
}

type Options struct {
	OAuth     *oauth.Provider
	APIBase   string
	RevokeURL string
}

// NewOAuthProvider builds the Google OAuth client. It returns nil when no
// client is configured.
func NewOAuthProvider(ctx context.Context, cfg config.GoogleConfig, publicBaseURL string) *oauth.Provider {
	if !cfg.Enabled() {
		return nil
	}
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  oauth.RedirectURL(publicBaseURL),
		Scopes:       Scopes,
	}
	verifier := oauth.NewOIDCVerifier(ctx, oauth.GoogleIssuer, oauth.GoogleJWKSURL, cfg.ClientID)
	return oauth.NewProvider(TypeName, conf, verifier)
}

func Registration(opts Options) app.Registration {
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	if opts.RevokeURL == "" {
		opts.RevokeURL = DefaultRevokeURL
	}
	return app.Registration{
		TypeName: TypeName,
		Title:    "Google Calendar",
		Config:   Data{},
		Factory: func(svc app.Services) any {
			return &Calendar{svc: svc, opts: opts}
		},
	}
}

// Calendar is the object behind a google_calendar instance.
type Calendar struct {
	svc  app.Services
	opts Options
}

func (c *Calendar) LoginURL(_ context.Context, inst *model.AppInstance) (string, error) {
	if c.opts.OAuth == nil {
		return "", fmt.Errorf("%w: google oauth client", app.ErrMissingSecret)
	}
	return c.opts.OAuth.LoginURL(inst.ID), nil
}

func (c *Calendar) ProcessRedirect(ctx context.Context, query url.Values) oauth.Result {
	if c.opts.OAuth == nil {
		return oauth.Result{Err: fmt.Errorf("%w: google oauth client", app.ErrMissingSecret)}
	}
	return c.opts.OAuth.ProcessRedirect(c.withBaseClient(ctx), query)
}

func (c *Calendar) calendarID(inst *model.AppInstance) string {
	var data Data
	if len(inst.Data) > 0 {
		if err := json.Unmarshal(inst.Data, &data); err != nil {
			slog.Warn("ignoring malformed google calendar data", "app_id", inst.ID, "error", err)
		}
	}
	if data.CalendarID == "" {
		return primaryCalendar
	}
	return data.CalendarID
}

// withBaseClient makes oauth2 use the shared HTTP client for token calls.
func (c *Calendar) withBaseClient(ctx context.Context) context.Context {
	if c.svc.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.svc.HTTPClient)
}

// client returns an authorized client. Refreshed tokens are persisted on
// the instance; a failed save does not fail the call.
func (c *Calendar) client(ctx context.Context, inst *model.AppInstance) (*http.Client, error) {
	if c.opts.OAuth == nil {
		return nil, fmt.Errorf("%w: google oauth client", app.ErrMissingSecret)
	}
	if inst.Token == nil || inst.Token.RefreshToken == "" {
		return nil, app.NewStatusError(errNotAuthorized, KeyNotAuthorized)
	}

	appID := inst.ID
	onRefresh := func(tok model.Token) {
		if c.svc.Update == nil {
			return
		}
		if _, err := c.svc.Update(context.WithoutCancel(ctx), model.AppInstancePatch{Token: &tok}); err != nil {
			slog.ErrorContext(ctx, "failed to persist refreshed google token", "app_id", appID, "error", err)
		}
	}
	return c.opts.OAuth.Client(c.withBaseClient(ctx), *inst.Token, onRefresh), nil
}

// do sends one API request and decodes a JSON response into out.
func (c *Calendar) do(ctx context.Context, client *http.Client, method, path string, query url.Values, in, out any) (int, error) {
	endpoint := strings.TrimRight(c.opts.APIBase, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		if oauth.IsCredentialError(err) {
			return 0, app.NewStatusError(err, KeyCredentialsInvalid)
		}
		return 0, fmt.Errorf("calling google calendar: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := statusError(resp); err != nil {
		return resp.StatusCode, err
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding google calendar response: %w", err)
	}
	return resp.StatusCode, nil
}

func statusError(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err := fmt.Errorf("google calendar returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	status := fmt.Sprint(resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return app.NewStatusError(err, KeyCredentialsInvalid)
	case http.StatusForbidden:
		return app.NewStatusError(err, KeyForbidden)
	case http.StatusTooManyRequests:
		return app.NewStatusError(err, KeyRateLimited)
	default:
		return app.NewStatusError(err, KeyAPIError, status)
	}
}

// TearDown revokes the stored grant. A token the provider no longer knows
// counts as revoked.
func (c *Calendar) TearDown(ctx context.Context, inst *model.AppInstance) error {
	if inst.Token == nil || inst.Token.RefreshToken == "" {
		return nil
	}

	form := url.Values{"token": {inst.Token.RefreshToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.svc.Client().Do(req)
	if err != nil {
		return fmt.Errorf("revoking google token: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 500 {
		return fmt.Errorf("revoking google token: status %d", resp.StatusCode)
	}
	slog.InfoContext(ctx, "google grant revoked", "app_id", inst.ID, "status", resp.StatusCode)
	return nil
}
