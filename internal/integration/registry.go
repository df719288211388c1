// Package integration assembles the registry of every built-in app type.
package integration

import (
	"context"
	"log/slog"

	"basegraph.app/booking/core/config"
	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/integration/googlecalendar"
	"basegraph.app/booking/internal/integration/smsresponder"
	"basegraph.app/booking/internal/integration/smtpmail"
	"basegraph.app/booking/internal/integration/textbelt"
	"basegraph.app/booking/internal/integration/workinghours"
)

// Options overrides provider endpoints, mostly for tests.
type Options struct {
	GoogleAPIBase   string
	GoogleRevokeURL string
	TextbeltAPIBase string
	SMTPDial        smtpmail.DialFunc
}

// NewRegistry registers all built-in integrations. Google Calendar is
// registered even without OAuth credentials so existing rows still resolve;
// its login fails until credentials are configured.
func NewRegistry(ctx context.Context, cfg config.Config, opts Options) *app.Registry {
	google := googlecalendar.NewOAuthProvider(ctx, cfg.Google, cfg.Webhook.PublicBaseURL)
	if google == nil {
		slog.WarnContext(ctx, "google calendar oauth client not configured")
	}

	return app.NewRegistry(
		googlecalendar.Registration(googlecalendar.Options{
			OAuth:     google,
			APIBase:   opts.GoogleAPIBase,
			RevokeURL: opts.GoogleRevokeURL,
		}),
		textbelt.Registration(textbelt.Options{APIBase: opts.TextbeltAPIBase}),
		smtpmail.Registration(smtpmail.Options{Dial: opts.SMTPDial}),
		workinghours.Registration(),
		smsresponder.Registration(),
	)
}
