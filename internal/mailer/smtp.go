package mailer

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

const defaultSubmissionPort = 587

// SMTPConfig captures connection settings for the outbound mail transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Address returns the transport endpoint in host:port form.
func (configuration SMTPConfig) Address() string {
	port := configuration.Port
	if port <= 0 {
		port = defaultSubmissionPort
	}
	return net.JoinHostPort(strings.TrimSpace(configuration.Host), strconv.Itoa(port))
}

// SMTPMailer delivers envelopes over SMTP with opportunistic STARTTLS and
// PLAIN authentication when credentials are configured.
type SMTPMailer struct {
	logger        *zap.Logger
	configuration SMTPConfig
}

// NewSMTPMailer creates a mailer backed by the configured SMTP endpoint.
func NewSMTPMailer(logger *zap.Logger, configuration SMTPConfig) *SMTPMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPMailer{
		logger:        logger,
		configuration: configuration,
	}
}

// Send builds the message for the envelope and submits it in a single
// attempt. The context bounds the whole delivery; a cancelled context
// abandons the attempt and reports the context error.
func (mailer *SMTPMailer) Send(ctx context.Context, envelope Envelope) error {
	message, buildErr := BuildMessage(envelope)
	if buildErr != nil {
		return buildErr
	}

	var authClient sasl.Client
	if mailer.configuration.Username != "" {
		authClient = sasl.NewPlainClient("", mailer.configuration.Username, mailer.configuration.Password)
	}

	deliveryErrors := make(chan error, 1)
	go func() {
		deliveryErrors <- smtp.SendMail(
			mailer.configuration.Address(),
			authClient,
			envelope.Sender,
			[]string{envelope.Recipient},
			bytes.NewReader(message),
		)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("deliver mail: %w", ctx.Err())
	case sendErr := <-deliveryErrors:
		if sendErr != nil {
			mailer.logger.Warn("mail_delivery_failed", zap.Error(sendErr))
			return fmt.Errorf("deliver mail: %w", sendErr)
		}
	}

	mailer.logger.Debug("mail_delivered", zap.String("subject", envelope.Subject))
	return nil
}
