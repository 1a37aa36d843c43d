package mailer

import "context"

// Email is a single outbound message handed to the delivery collaborator.
type Email struct {
	To            string `json:"to"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	AttachmentURL string `json:"attachment_url,omitempty"`
}

// Mailer abstracts the external email-sending collaborator. Its failures are
// independent of queue and broker correctness: callers treat a send error as
// best-effort (the notification record stays delivered=false) and never let
// it corrupt job state.
//
// Mocking this interface in tests gives full control over send behaviour
// without making real HTTP calls.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}
