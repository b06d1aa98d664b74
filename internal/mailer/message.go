package mailer

import (
	"errors"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"strings"
)

const messageLineEnding = "\r\n"

var (
	errMissingSender    = errors.New("envelope sender is required")
	errMissingRecipient = errors.New("envelope recipient is required")
)

// BuildMessage renders an envelope into an RFC 5322 message with an HTML
// body encoded as quoted-printable UTF-8.
func BuildMessage(envelope Envelope) ([]byte, error) {
	if strings.TrimSpace(envelope.Sender) == "" {
		return nil, errMissingSender
	}
	if strings.TrimSpace(envelope.Recipient) == "" {
		return nil, errMissingRecipient
	}

	messageBuilder := &strings.Builder{}
	writeHeader(messageBuilder, "From", envelope.Sender)
	writeHeader(messageBuilder, "To", envelope.Recipient)
	if strings.TrimSpace(envelope.ReplyTo) != "" {
		writeHeader(messageBuilder, "Reply-To", envelope.ReplyTo)
	}
	writeHeader(messageBuilder, "Subject", mime.QEncoding.Encode("utf-8", envelope.Subject))
	writeHeader(messageBuilder, "MIME-Version", "1.0")
	writeHeader(messageBuilder, "Content-Type", `text/html; charset="utf-8"`)
	writeHeader(messageBuilder, "Content-Transfer-Encoding", "quoted-printable")
	messageBuilder.WriteString(messageLineEnding)

	bodyWriter := quotedprintable.NewWriter(messageBuilder)
	if _, writeErr := bodyWriter.Write([]byte(envelope.BodyHTML)); writeErr != nil {
		return nil, fmt.Errorf("encode message body: %w", writeErr)
	}
	if closeErr := bodyWriter.Close(); closeErr != nil {
		return nil, fmt.Errorf("finish message body: %w", closeErr)
	}

	return []byte(messageBuilder.String()), nil
}

func writeHeader(messageBuilder *strings.Builder, name string, value string) {
	messageBuilder.WriteString(name)
	messageBuilder.WriteString(": ")
	messageBuilder.WriteString(value)
	messageBuilder.WriteString(messageLineEnding)
}
