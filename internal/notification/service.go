package notification

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/bher20/tarifmanager/internal/storage"
)

var ErrNotConfigured = errors.New("email not configured or disabled")

// Store is the part of storage the notifier needs.
type Store interface {
	GetEmailConfig(ctx context.Context) (*storage.EmailConfig, error)
	SaveEmailConfig(ctx context.Context, cfg storage.EmailConfig) error
}

type Service struct {
	storage Store
}

func NewService(s Store) *Service {
	return &Service{storage: s}
}

func (s *Service) GetConfig(ctx context.Context) (*storage.EmailConfig, error) {
	return s.storage.GetEmailConfig(ctx)
}

func (s *Service) SaveConfig(ctx context.Context, cfg storage.EmailConfig) error {
	switch cfg.Provider {
	case "smtp", "sendgrid":
	default:
		return fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	now := time.Now()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	return s.storage.SaveEmailConfig(ctx, cfg)
}

// Recipients splits the comma separated recipient list.
func Recipients(cfg *storage.EmailConfig) []string {
	var out []string
	for _, r := range strings.Split(cfg.Recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// SendEmail mails subject and body to every configured recipient.
func (s *Service) SendEmail(ctx context.Context, subject, body string) error {
	cfg, err := s.storage.GetEmailConfig(ctx)
	if err != nil {
		return err
	}
	if cfg == nil || !cfg.Enabled {
		return ErrNotConfigured
	}
	to := Recipients(cfg)
	if len(to) == 0 {
		return fmt.Errorf("%w: no recipients", ErrNotConfigured)
	}
	var errs []error
	for _, rcpt := range to {
		if err := send(cfg, rcpt, subject, body); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rcpt, err))
		}
	}
	return errors.Join(errs...)
}

// TestConfig sends a test message to to using cfg, without saving it.
func (s *Service) TestConfig(ctx context.Context, cfg storage.EmailConfig, to string) error {
	return send(&cfg, to, "Test Tarifmanager", "<p>Ceci est un e-mail de test envoyé par Tarifmanager.</p>")
}

// Transition is the content of a tariff change email.
type Transition struct {
	Schedule string
	From     string
	To       string
	Label    string
	Live     bool
	Next     string
	At       time.Time
}

// NotifyTransition mails a tariff change. A missing or disabled email
// configuration is not an error.
func (s *Service) NotifyTransition(ctx context.Context, t Transition) error {
	subject := fmt.Sprintf("[%s] %s", t.Schedule, t.Label)
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Le tarif est passé de <b>%s</b> à <b>%s</b> à %s.</p>", t.From, t.To, t.At.Format("15:04"))
	if t.Live {
		b.WriteString("<p>Source : compteur.</p>")
	}
	if t.Next != "" {
		fmt.Fprintf(&b, "<p>Prochain changement : %s.</p>", t.Next)
	}
	err := s.SendEmail(ctx, subject, b.String())
	if errors.Is(err, ErrNotConfigured) {
		log.Debug().Str("schedule", t.Schedule).Msg("notification: email disabled, skipping transition")
		return nil
	}
	return err
}

func send(cfg *storage.EmailConfig, to, subject, body string) error {
	switch cfg.Provider {
	case "smtp":
		return sendSMTP(cfg, to, subject, body)
	case "sendgrid":
		return sendSendgrid(cfg, to, subject, body)
	default:
		return fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

func smtpMessage(cfg *storage.EmailConfig, to, subject, body string) []byte {
	from := cfg.FromAddress
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress)
	}
	return []byte("From: " + from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=\"UTF-8\"\r\n" +
		"\r\n" +
		body + "\r\n")
}

func sendSMTP(cfg *storage.EmailConfig, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	msg := smtpMessage(cfg, to, subject, body)

	var c *smtp.Client
	switch cfg.Encryption {
	case "ssl":
		conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: cfg.Host})
		if err != nil {
			return err
		}
		if c, err = smtp.NewClient(conn, cfg.Host); err != nil {
			conn.Close()
			return err
		}
	case "tls":
		var err error
		if c, err = smtp.Dial(addr); err != nil {
			return err
		}
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
				c.Close()
				return err
			}
		}
	default:
		var auth smtp.Auth
		if cfg.Username != "" {
			auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		}
		return smtp.SendMail(addr, auth, cfg.FromAddress, []string{to}, msg)
	}
	defer c.Quit()

	if cfg.Username != "" && cfg.Password != "" {
		if err := c.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(cfg.FromAddress); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}

// sendSendgrid posts through the SendGrid v3 API. cfg.Host overrides the
// API host when set.
func sendSendgrid(cfg *storage.EmailConfig, to, subject, body string) error {
	from := mail.NewEmail(cfg.FromName, cfg.FromAddress)
	message := mail.NewSingleEmail(from, subject, mail.NewEmail("", to), stripTags(body), body)

	req := sendgrid.GetRequest(cfg.APIKey, "/v3/mail/send", cfg.Host)
	req.Method = rest.Post
	req.Body = mail.GetRequestBody(message)
	resp, err := sendgrid.MakeRequest(req)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func stripTags(html string) string {
	var b strings.Builder
	in := false
	for _, r := range html {
		switch {
		case r == '<':
			in = true
		case r == '>':
			in = false
		case !in:
			b.WriteRune(r)
		}
	}
	return b.String()
}
