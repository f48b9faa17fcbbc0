package mailer

import "context"

// Message is a rendered outbound email.
type Message struct {
	To      []Address
	Subject string
	Body    string
	HTML    bool
}

// Address is a named recipient.
type Address struct {
	Name  string
	Email string
}

// Sender delivers a single message. Implementations are best-effort:
// a failed send is reported but never retried by the sender itself.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
