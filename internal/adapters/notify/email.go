package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/example/leasehold/internal/metrics"
	"github.com/example/leasehold/internal/ports/secondary"
)

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	SenderAddress      string
	SenderName         string
	InsecureSkipVerify bool
	RetryCount         int
	RetryBackoff       time.Duration
}

// Sender sends one message to a set of receivers.
type Sender interface {
	Send(ctx context.Context, receivers []string, subject, body string) error
	GetHost() string
}

type smtpSender struct {
	dialer        *gomail.Dialer
	senderAddress string
	senderName    string
	retryCount    int
	retryBackoff  time.Duration
	logger        *zap.Logger
}

// NewSMTPSender creates a gomail-backed Sender with exponential retry.
func NewSMTPSender(cfg EmailConfig, logger *zap.Logger) Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.InsecureSkipVerify {
		logger.Warn("InsecureSkipVerify is enabled for mail TLS connection", zap.String("host", cfg.Host))
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	senderAddr := cfg.SenderAddress
	if senderAddr == "" {
		senderAddr = "noreply@leasehold.local"
	}
	senderName := cfg.SenderName
	if senderName == "" {
		senderName = "Leasehold"
	}
	retryCount := cfg.RetryCount
	if retryCount <= 0 {
		retryCount = 3
	}
	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = 100 * time.Millisecond
	}

	logger.Info("mail sender initialized",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Int("retry_count", retryCount),
		zap.Duration("retry_backoff", retryBackoff))

	return &smtpSender{
		dialer:        d,
		senderAddress: senderAddr,
		senderName:    senderName,
		retryCount:    retryCount,
		retryBackoff:  retryBackoff,
		logger:        logger,
	}
}

func (s *smtpSender) Send(ctx context.Context, receivers []string, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.senderAddress, s.senderName)
	msg.SetHeader("To", receivers...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	var lastErr error
	backoff := s.retryBackoff

	for attempt := 0; attempt <= s.retryCount; attempt++ {
		err := s.dialer.DialAndSend(msg)
		if err == nil {
			metrics.MailSendSuccess.WithLabelValues(s.GetHost()).Inc()
			return nil
		}

		lastErr = err
		if attempt == s.retryCount {
			break
		}
		s.logger.Debug("mail send attempt failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			metrics.MailSendFailure.WithLabelValues(s.GetHost()).Inc()
			return fmt.Errorf("mail send aborted after %d attempts: %w", attempt+1, ctx.Err())
		}
		backoff = time.Duration(math.Min(float64(backoff)*2, float64(32*time.Second)))
	}

	metrics.MailSendFailure.WithLabelValues(s.GetHost()).Inc()
	return fmt.Errorf("mail send failed after %d attempts: %w", s.retryCount+1, lastErr)
}

func (s *smtpSender) GetHost() string {
	return s.dialer.Host
}

// EmailChannel sends escalation notifications by email.
type EmailChannel struct {
	sender Sender
}

// NewEmailChannel creates an email channel over sender.
func NewEmailChannel(sender Sender) *EmailChannel {
	return &EmailChannel{sender: sender}
}

// Name implements secondary.NotificationChannel.
func (c *EmailChannel) Name() string { return "email" }

// Deliver implements secondary.NotificationChannel.
func (c *EmailChannel) Deliver(ctx context.Context, recipient *secondary.UserRecord, n *secondary.Notification) error {
	if recipient.Email == "" {
		return ErrNotApplicable
	}
	return c.sender.Send(ctx, []string{recipient.Email}, n.Title, emailBody(recipient, n))
}

func emailBody(recipient *secondary.UserRecord, n *secondary.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n%s\n", recipient.Name, n.Message)
	if len(n.Metadata) > 0 {
		keys := make([]string, 0, len(n.Metadata))
		for k := range n.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, n.Metadata[k])
		}
	}
	return b.String()
}

// Ensure EmailChannel implements the interface
var _ secondary.NotificationChannel = (*EmailChannel)(nil)
