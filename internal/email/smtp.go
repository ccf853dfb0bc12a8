// Package email sends reply notifications to public users over SMTP.
package email

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"
)

const sendTimeout = 30 * time.Second

const replySubject = "The cat charity replied to your message"

var replyBody = template.Must(template.New("reply").Funcs(template.FuncMap{"indent": indent}).Parse(
	`Hello {{.Username}},

A member of our team has replied to your message.

You wrote:

    {{indent .Question}}

Our reply:

    {{indent .Reply}}

You can read the whole conversation in your account.

- The Cat Charity Team
`))

// plaintextPorts are local relays (MailHog, a bare MTA) that may not offer
// STARTTLS. Any other port refuses to authenticate in the clear.
var plaintextPorts = map[int]bool{25: true, 1025: true}

type SMTPService struct {
	addr     string
	host     string
	port     int
	username string
	password string
	from     mail.Address
}

func NewSMTPService(host string, port int, username, password, from string) *SMTPService {
	sender := mail.Address{Address: from}
	if parsed, err := mail.ParseAddress(from); err == nil {
		sender = *parsed
	}
	return &SMTPService{
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     sender,
	}
}

type replyNotification struct {
	Username string
	Question string
	Reply    string
}

// SendReplyNotification tells a public user that staff answered their message.
func (s *SMTPService) SendReplyNotification(to, username, question, reply string) error {
	var body bytes.Buffer
	err := replyBody.Execute(&body, replyNotification{Username: username, Question: question, Reply: reply})
	if err != nil {
		return fmt.Errorf("rendering reply notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	return s.deliver(ctx, to, s.compose(to, replySubject, body.String(), time.Now()))
}

func indent(text string) string {
	return strings.ReplaceAll(strings.TrimSpace(text), "\n", "\n    ")
}

// compose renders an RFC 5322 message with CRLF line endings.
func (s *SMTPService) compose(to, subject, body string, now time.Time) []byte {
	headers := [][2]string{
		{"From", s.from.String()},
		{"To", (&mail.Address{Address: to}).String()},
		{"Subject", mime.QEncoding.Encode("utf-8", subject)},
		{"Date", now.Format(time.RFC1123Z)},
		{"Message-ID", s.messageID()},
		{"MIME-Version", "1.0"},
		{"Content-Type", `text/plain; charset="utf-8"`},
	}

	var b strings.Builder
	for _, h := range headers {
		b.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String())
}

func (s *SMTPService) messageID() string {
	domain := s.host
	if _, after, ok := strings.Cut(s.from.Address, "@"); ok {
		domain = after
	}
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return "<" + hex.EncodeToString(buf) + "@" + domain + ">"
}

func (s *SMTPService) deliver(ctx context.Context, to string, msg []byte) error {
	client, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(s.from.Address); err != nil {
		return fmt.Errorf("SMTP MAIL command: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT command: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA command: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		wc.Close()
		return fmt.Errorf("writing email body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	if err := client.Quit(); err != nil {
		slog.Warn("smtp QUIT command failed", "component", "email", "error", err)
	}
	return nil
}

// dial connects and completes STARTTLS and AUTH. The deadline of ctx bounds
// the whole conversation.
func (s *SMTPService) dial(ctx context.Context) (*smtp.Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating SMTP client: %w", err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS: %w", err)
		}
	} else if !plaintextPorts[s.port] {
		client.Close()
		return nil, fmt.Errorf("STARTTLS not available on port %d", s.port)
	}

	if s.username != "" && s.password != "" {
		if err := client.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
			client.Close()
			return nil, fmt.Errorf("SMTP authentication: %w", err)
		}
	}

	return client, nil
}
