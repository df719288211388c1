// Package webhook authenticates provider callbacks signed with a shared
// secret and decodes the correlation payload carried by outbound messages.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingHeaders = errors.New("missing webhook timestamp or signature")
	ErrBadSignature   = errors.New("webhook signature mismatch")
	ErrStaleTimestamp = errors.New("webhook timestamp outside tolerance")
	ErrReplayed       = errors.New("webhook already accepted")
)

// Sign returns the hex encoded HMAC-SHA256 of timestamp followed by body.
func Sign(secret []byte, timestamp string, body []byte) string {
	return hex.EncodeToString(mac(secret, timestamp, body))
}

func mac(secret []byte, timestamp string, body []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(timestamp))
	h.Write(body)
	return h.Sum(nil)
}

// Authenticator verifies signed callbacks. A zero Tolerance disables the
// timestamp window and a nil Guard disables replay detection.
type Authenticator struct {
	Guard     ReplayGuard
	Now       func() time.Time
	Tolerance time.Duration
}

// Verify checks signature against timestamp and body. Nothing is recorded
// unless the signature matches. A verified delivery holds its replay slot
// until Release; callers release it when they do not accept the delivery.
func (a Authenticator) Verify(ctx context.Context, secret []byte, timestamp, signature string, body []byte) error {
	timestamp = strings.TrimSpace(timestamp)
	signature = strings.TrimSpace(signature)
	if timestamp == "" || signature == "" {
		return ErrMissingHeaders
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return ErrBadSignature
	}
	if !hmac.Equal(mac(secret, timestamp, body), provided) {
		return ErrBadSignature
	}

	if a.Tolerance > 0 {
		sent, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return ErrStaleTimestamp
		}
		now := time.Now()
		if a.Now != nil {
			now = a.Now()
		}
		skew := now.Sub(time.Unix(sent, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > a.Tolerance {
			return ErrStaleTimestamp
		}
	}

	if a.Guard != nil {
		ttl := a.Tolerance
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		first, err := a.Guard.MarkSeen(ctx, replayKey(timestamp, signature), ttl)
		if err != nil {
			slog.WarnContext(ctx, "webhook replay guard unavailable", "error", err)
			return nil
		}
		if !first {
			return ErrReplayed
		}
	}
	return nil
}

// Release frees the replay slot taken by a verified delivery so that the
// sender's retry is accepted.
func (a Authenticator) Release(ctx context.Context, timestamp, signature string) {
	if a.Guard == nil {
		return
	}
	if err := a.Guard.Forget(ctx, replayKey(strings.TrimSpace(timestamp), strings.TrimSpace(signature))); err != nil {
		slog.WarnContext(ctx, "failed to release webhook replay slot", "error", err)
	}
}

func replayKey(timestamp, signature string) string {
	return timestamp + ":" + strings.ToLower(signature)
}
