// internal/infra/email/sender.go
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"partner_report_engine/internal/domain/notify"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"
)

var ErrNoRecipients = errors.New("email has no recipients")

type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	RatePerSec float64
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers notify messages over SMTP, throttled to RatePerSec.
type SMTPSender struct {
	from    string
	dialer  dialer
	limiter *rate.Limiter
	logger  *logrus.Entry
}

func NewSMTPSender(cfg Config, logger *logrus.Entry) *SMTPSender {
	return newSender(cfg, gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), logger)
}

func newSender(cfg Config, d dialer, logger *logrus.Entry) *SMTPSender {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	burst := int(cfg.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	return &SMTPSender{
		from:    cfg.From,
		dialer:  d,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
		logger:  logger.WithField("component", "smtp_sender"),
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg notify.Message) error {
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		return ErrNoRecipients
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("email rate limit wait: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email %q: %w", msg.Subject, err)
	}
	s.logger.WithFields(logrus.Fields{"to": to, "subject": msg.Subject}).Debug("Email sent")
	return nil
}

// LogSender only logs messages. It stands in when SMTP is not configured.
type LogSender struct {
	logger *logrus.Entry
}

func NewLogSender(logger *logrus.Entry) *LogSender {
	return &LogSender{logger: logger.WithField("component", "log_sender")}
}

func (s *LogSender) Send(_ context.Context, msg notify.Message) error {
	s.logger.WithFields(logrus.Fields{"to": msg.To, "subject": msg.Subject}).Info("Email delivery disabled, message logged only")
	return nil
}
