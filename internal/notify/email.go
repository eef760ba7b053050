package notify

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// SMTPConfig holds SMTP configuration for the email dispatcher.
type SMTPConfig struct {
	Host       string
	Port       int
	User       string
	Pass       string
	From       string
	AdminEmail string
}

// UserEmailLookup resolves a user id to an email address. The second return
// is false when the user has no deliverable address.
type UserEmailLookup func(ctx context.Context, userID string) (string, bool)

// EmailDispatcher delivers notifications over SMTP. Admin notifications go
// to the configured admin address; user notifications are resolved through
// the lookup, falling back to a log line when the user has no address.
type EmailDispatcher struct {
	cfg    SMTPConfig
	lookup UserEmailLookup
}

// NewEmailDispatcher returns a Dispatcher backed by SMTP. lookup may be nil,
// in which case user notifications are only logged.
func NewEmailDispatcher(cfg SMTPConfig, lookup UserEmailLookup) *EmailDispatcher {
	return &EmailDispatcher{cfg: cfg, lookup: lookup}
}

func (d *EmailDispatcher) SendAdminNotification(ctx context.Context, n AdminNotification) error {
	if d.cfg.AdminEmail == "" {
		log.Warn().Str("subject", n.Subject).Msg("notify: no admin email configured, dropping notification")
		return nil
	}

	body := n.Message
	if n.QueueID != "" {
		body += fmt.Sprintf("\n\nAction: %s\nQueue item: %s", n.Action, n.QueueID)
	}
	return d.send(d.cfg.AdminEmail, n.Subject, body)
}

func (d *EmailDispatcher) SendUserNotification(ctx context.Context, n UserNotification) error {
	if d.lookup == nil {
		log.Info().Str("user_id", n.UserID).Str("subject", n.Subject).Msg("notify: user notification (no email lookup)")
		return nil
	}
	to, ok := d.lookup(ctx, n.UserID)
	if !ok {
		log.Info().Str("user_id", n.UserID).Str("subject", n.Subject).Msg("notify: user has no email address")
		return nil
	}
	return d.send(to, n.Subject, n.Message)
}

// Ping verifies the SMTP endpoint accepts TCP connections. It sends no
// mail, so health probes can call it on every poll.
func (d *EmailDispatcher) Ping(ctx context.Context) error {
	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	return conn.Close()
}

// send delivers one plain-text message.
func (d *EmailDispatcher) send(to, subject, body string) error {
	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))

	// Extract domain from From address for Message-ID
	domain := d.cfg.Host
	if parts := strings.SplitN(d.cfg.From, "@", 2); len(parts) == 2 {
		domain = parts[1]
	}

	// Generate a random Message-ID
	randBytes := make([]byte, 16)
	rand.Read(randBytes)
	messageID := fmt.Sprintf("<%x.%d@%s>", randBytes, time.Now().UnixNano(), domain)

	msg := fmt.Sprintf("From: Moderation <%s>\r\nTo: %s\r\nSubject: %s\r\nDate: %s\r\nMessage-ID: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		d.cfg.From, to, subject, time.Now().UTC().Format(time.RFC1123Z), messageID, body)

	var auth smtp.Auth
	if d.cfg.User != "" {
		auth = smtp.PlainAuth("", d.cfg.User, d.cfg.Pass, d.cfg.Host)
	}

	if d.cfg.Port == 465 {
		return d.sendImplicitTLS(addr, auth, msg, to)
	}
	return d.sendSTARTTLS(addr, auth, msg, to)
}

// sendImplicitTLS connects over TLS directly (port 465).
func (d *EmailDispatcher) sendImplicitTLS(addr string, auth smtp.Auth, msg, to string) error {
	tlsConfig := &tls.Config{ServerName: d.cfg.Host}
	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("tls dial: %w", err)
	}

	client, err := smtp.NewClient(conn, d.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer client.Close()

	return d.sendWithClient(client, auth, msg, to)
}

// sendSTARTTLS connects in plaintext then upgrades via STARTTLS.
func (d *EmailDispatcher) sendSTARTTLS(addr string, auth smtp.Auth, msg, to string) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{ServerName: d.cfg.Host}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	return d.sendWithClient(client, auth, msg, to)
}

// sendWithClient performs the SMTP conversation on an established client.
func (d *EmailDispatcher) sendWithClient(client *smtp.Client, auth smtp.Auth, msg, to string) error {
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(d.cfg.From); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return client.Quit()
}
