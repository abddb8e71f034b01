package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const (
	smtpTimeout = 30 * time.Second
	// smtpsPort speaks TLS from the first byte instead of upgrading with STARTTLS.
	smtpsPort = 465
)

type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type sendMailFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email delivers notifications over SMTP with PLAIN auth.
type Email struct {
	opts     EmailOptions
	sendMail sendMailFunc
}

func NewEmail(opts EmailOptions) *Email {
	e := &Email{opts: opts}
	e.sendMail = e.deliver
	return e
}

func (e *Email) Name() string { return "email" }

func (e *Email) Notify(ctx context.Context, subject, body string) error {
	if e.opts.Host == "" || len(e.opts.To) == 0 {
		return fmt.Errorf("email configuration incomplete")
	}

	var auth smtp.Auth
	if e.opts.Username != "" {
		auth = smtp.PlainAuth("", e.opts.Username, e.opts.Password, e.opts.Host)
	}
	addr := net.JoinHostPort(e.opts.Host, strconv.Itoa(e.opts.Port))

	if err := e.sendMail(ctx, addr, auth, e.opts.From, e.opts.To, e.message(subject, body)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// deliver is smtp.SendMail bounded by ctx, with implicit TLS on port 465.
func (e *Email) deliver(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(smtpTimeout)
	}

	dialer := &net.Dialer{Deadline: deadline}
	var (
		conn net.Conn
		err  error
	)
	if e.opts.Port == smtpsPort {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: e.opts.Host}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, e.opts.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if e.opts.Port != smtpsPort {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: e.opts.Host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(auth); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
	}

	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (e *Email) message(subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.opts.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.opts.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
