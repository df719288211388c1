package oauth

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"basegraph.app/booking/common/metrics"
	"basegraph.app/booking/internal/model"
)

// RefreshFunc receives a token after the client silently refreshed it. The
// refresh token of the stored set is carried over unchanged.
type RefreshFunc func(tok model.Token)

// Client returns an HTTP client authorized with stored. When the access
// token expires the client refreshes it and calls onRefresh before the
// request proceeds.
func (p *Provider) Client(ctx context.Context, stored model.Token, onRefresh RefreshFunc) *http.Client {
	return oauth2.NewClient(ctx, p.TokenSource(ctx, stored, onRefresh))
}

// TokenSource is the token source behind Client.
func (p *Provider) TokenSource(ctx context.Context, stored model.Token, onRefresh RefreshFunc) oauth2.TokenSource {
	initial := &oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		TokenType:    stored.TokenType,
		Expiry:       stored.Expiry,
	}
	return &notifyingSource{
		base:      p.config.TokenSource(ctx, initial),
		last:      stored.AccessToken,
		stored:    stored,
		typeName:  p.typeName,
		onRefresh: onRefresh,
	}
}

type notifyingSource struct {
	base      oauth2.TokenSource
	onRefresh RefreshFunc
	stored    model.Token
	last      string
	typeName  string
	mu        sync.Mutex
}

func (s *notifyingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		metrics.RecordTokenRefresh(s.typeName, "error")
		return nil, err
	}

	s.mu.Lock()
	refreshed := tok.AccessToken != s.last
	if refreshed {
		s.last = tok.AccessToken
	}
	s.mu.Unlock()

	if refreshed {
		metrics.RecordTokenRefresh(s.typeName, "success")
		if s.onRefresh != nil {
			s.onRefresh(model.Token{
				AccessToken:  tok.AccessToken,
				RefreshToken: s.stored.RefreshToken,
				TokenType:    tok.TokenType,
				IDToken:      s.stored.IDToken,
				Expiry:       tok.Expiry,
			})
		} else {
			slog.Warn("oauth token refreshed without a persistence callback", "type_name", s.typeName)
		}
	}
	return tok, nil
}
