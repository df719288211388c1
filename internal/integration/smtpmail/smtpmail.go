// Package smtpmail sends booking mail through an SMTP relay.
package smtpmail

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/queue"
)

const (
	TypeName = "smtp"

	SecurityStartTLS = "starttls"
	SecurityTLS      = "tls"
	SecurityNone     = "none"

	mask = "********"
)

// Status text keys.
const (
	KeyInvalidConfig = "smtp.invalid_config"
	KeyConnect       = "smtp.connect_failed"
	KeyAuth          = "smtp.auth_failed"
	KeyRejected      = "smtp.rejected"
)

// Data is the instance data of an SMTP app. Password is stored encrypted.
type Data struct {
	Host     string `json:"host" validate:"required,hostname|ip"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from" validate:"required,email"`
	Security string `json:"security" validate:"omitempty,oneof=starttls tls none" jsonschema:"enum=starttls,enum=tls,enum=none"`
	Port     int    `json:"port" validate:"required,min=1,max=65535"`
}

// DialFunc opens the transport connection to addr.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type Options struct {
	Dial DialFunc
	// InsecureSkipVerify disables certificate checks. Tests only.
	InsecureSkipVerify bool
}

func Registration(opts Options) app.Registration {
	if opts.Dial == nil {
		var d net.Dialer
		opts.Dial = d.DialContext
	}
	return app.Registration{
		TypeName: TypeName,
		Title:    "SMTP",
		Config:   Data{},
		Factory: func(svc app.Services) any {
			return &Mailer{svc: svc, opts: opts}
		},
	}
}

type Mailer struct {
	svc  app.Services
	opts Options
}

func decodeData(raw json.RawMessage) (Data, error) {
	var d Data
	if len(raw) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("decoding smtp data: %w", err)
	}
	if d.Security == "" {
		d.Security = SecurityStartTLS
	}
	return d, nil
}

func (m *Mailer) MaskData(inst *model.AppInstance) json.RawMessage {
	d, err := decodeData(inst.Data)
	if err != nil {
		return json.RawMessage("{}")
	}
	if d.Password != "" {
		d.Password = mask
	}
	raw, _ := json.Marshal(d)
	return raw
}

// Configure validates data and logs in to the server once. The password is
// returned encrypted; submitting the mask keeps the stored one.
func (m *Mailer) Configure(ctx context.Context, inst *model.AppInstance, raw json.RawMessage) (*app.ConfigureResult, error) {
	invalid := func(err error) error {
		return app.NewStatusError(fmt.Errorf("%w: %v", app.ErrInvalidConfig, err), KeyInvalidConfig)
	}

	d, err := decodeData(raw)
	if err != nil {
		return nil, invalid(err)
	}
	if d.Password == mask {
		stored, err := m.credentials(inst)
		if err != nil {
			return nil, invalid(err)
		}
		d.Password = stored.Password
	}
	if err := m.svc.Validator().StructCtx(ctx, d); err != nil {
		return nil, invalid(err)
	}
	if d.Password != "" && d.Username == "" {
		return nil, invalid(errors.New("password without username"))
	}

	client, err := m.connect(ctx, d)
	if err != nil {
		return nil, err
	}
	_ = client.Quit()

	if d.Password, err = m.svc.Cipher().Encrypt(d.Password); err != nil {
		return nil, fmt.Errorf("encrypting smtp password: %w", err)
	}
	out, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding smtp data: %w", err)
	}
	return &app.ConfigureResult{Data: out, Account: d.From}, nil
}

// credentials returns the instance data with the password decrypted.
func (m *Mailer) credentials(inst *model.AppInstance) (Data, error) {
	d, err := decodeData(inst.Data)
	if err != nil {
		return d, err
	}
	if d.Host == "" {
		return d, fmt.Errorf("%w: smtp host", app.ErrMissingSecret)
	}
	if d.Password, err = m.svc.Cipher().Decrypt(d.Password); err != nil {
		return d, fmt.Errorf("%w: %v", app.ErrMissingSecret, err)
	}
	return d, nil
}

// connect dials, secures and authenticates a session.
func (m *Mailer) connect(ctx context.Context, d Data) (*smtp.Client, error) {
	addr := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	tlsConfig := &tls.Config{ServerName: d.Host, InsecureSkipVerify: m.opts.InsecureSkipVerify} //nolint:gosec

	conn, err := m.opts.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, app.NewStatusError(err, KeyConnect, addr)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if d.Security == SecurityTLS {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, d.Host)
	if err != nil {
		_ = conn.Close()
		return nil, app.NewStatusError(err, KeyConnect, addr)
	}

	if d.Security == SecurityStartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			_ = client.Close()
			return nil, app.NewStatusError(errors.New("server does not offer STARTTLS"), KeyConnect, addr)
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, app.NewStatusError(err, KeyConnect, addr)
		}
	}

	if d.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", d.Username, d.Password, d.Host)); err != nil {
			_ = client.Close()
			return nil, app.NewStatusError(err, KeyAuth)
		}
	}
	return client, nil
}

// SendMail delivers msg and returns the generated Message-ID.
func (m *Mailer) SendMail(ctx context.Context, inst *model.AppInstance, msg model.MailMessage) (*model.MailResult, error) {
	d, err := m.credentials(inst)
	if err != nil {
		return nil, err
	}
	if len(msg.To) == 0 {
		return nil, app.NewStatusError(errors.New("no recipients"), KeyRejected)
	}
	if msg.From == "" {
		msg.From = d.From
	}

	messageID := newMessageID(msg.From)
	body, err := compose(msg, messageID)
	if err != nil {
		return nil, err
	}

	client, err := m.connect(ctx, d)
	if err != nil {
		return nil, err
	}
	defer client.Close() //nolint:errcheck

	if err := client.Mail(envelopeAddress(d.From)); err != nil {
		return nil, app.NewStatusError(err, KeyRejected)
	}
	for _, rcpt := range append(append([]string{}, msg.To...), msg.Cc...) {
		if err := client.Rcpt(envelopeAddress(rcpt)); err != nil {
			return nil, app.NewStatusError(err, KeyRejected, rcpt)
		}
	}

	w, err := client.Data()
	if err != nil {
		return nil, app.NewStatusError(err, KeyRejected)
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, app.NewStatusError(err, KeyRejected)
	}
	_ = client.Quit()

	if m.svc.Notifier != nil {
		n := queue.Notification{
			Kind:     queue.NotificationMailSent,
			AppID:    inst.ID,
			TypeName: TypeName,
			Payload:  map[string]any{"message_id": messageID, "to": msg.To},
		}
		if err := m.svc.Notifier.Enqueue(ctx, n); err != nil {
			slog.WarnContext(ctx, "failed to enqueue mail sent notification", "app_id", inst.ID, "error", err)
		}
	}
	return &model.MailResult{MessageID: messageID}, nil
}

// envelopeAddress strips a display name from addr.
func envelopeAddress(addr string) string {
	if i := strings.LastIndex(addr, "<"); i >= 0 {
		return strings.TrimSuffix(addr[i+1:], ">")
	}
	return strings.TrimSpace(addr)
}
