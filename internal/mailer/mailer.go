package mailer

import "context"

// Envelope describes one outbound transactional email. Envelopes are built
// after a verdict is accepted, handed to the transport, and discarded after
// the dispatch attempt.
type Envelope struct {
	Sender    string
	Recipient string
	Subject   string
	BodyHTML  string
	ReplyTo   string
}

// Mailer delivers an envelope to its recipient. Implementations hold no
// request-specific state between calls, so a single instance is shared
// process-wide.
type Mailer interface {
	Send(ctx context.Context, envelope Envelope) error
}
