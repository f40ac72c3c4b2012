package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// senderName appears in the From header of every registry notification.
const senderName = "Green Hydrogen Credit Registry"

// SMTPSender delivers registry notifications through an SMTP relay. Port 465
// is treated as implicit TLS; any other port goes through smtp.SendMail,
// which upgrades with STARTTLS when the relay offers it.
type SMTPSender struct {
	host        string
	addr        string
	from        string
	auth        smtp.Auth
	implicitTLS bool
}

// NewSMTPSender creates an SMTPSender. Auth is only attempted when a
// username is configured.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	s := &SMTPSender{
		host:        host,
		addr:        fmt.Sprintf("%s:%d", host, port),
		from:        from,
		implicitTLS: port == 465,
	}
	if username != "" {
		s.auth = smtp.PlainAuth("", username, password, host)
	}
	return s
}

// Send delivers a plain-text notification.
func (s *SMTPSender) Send(_ context.Context, to, subject, body string) error {
	msg := s.compose(to, subject, body, time.Now().UTC())
	if s.implicitTLS {
		return s.deliverTLS(to, msg)
	}
	return smtp.SendMail(s.addr, s.auth, s.from, []string{to}, msg)
}

// compose builds the RFC 5322 message with the registry's sender identity.
func (s *SMTPSender) compose(to, subject, body string, at time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", senderName, s.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", at.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// deliverTLS speaks the full SMTP dialogue over an already-encrypted
// connection, for relays that do not accept STARTTLS on 465.
func (s *SMTPSender) deliverTLS(to string, msg []byte) error {
	conn, err := tls.Dial("tcp", s.addr, &tls.Config{ServerName: s.host})
	if err != nil {
		return fmt.Errorf("dial smtp relay: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("smtp sender %s rejected: %w", s.from, err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp recipient %s rejected: %w", to, err)
	}
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		return fmt.Errorf("smtp write message: %w", err)
	}
	return wc.Close()
}
