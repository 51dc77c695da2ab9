// Package notify delivers workflow mail: "your turn" links while a
// session is collecting and the final document once it completes.
//
// Delivery is best-effort. The workflow enqueues messages and moves
// on; transport failures are logged at the queue boundary and never
// surface into the state machine.
package notify

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrEmptyRecipient = errors.New("message has no recipient")
	ErrQueueClosed    = errors.New("notification queue is closed")
)

// Attachment is an optional file carried by a message.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Message is one outbound notification.
type Message struct {
	To         string      `json:"to"`
	Subject    string      `json:"subject"`
	Body       string      `json:"body"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Validate checks the message is deliverable.
func (m *Message) Validate() error {
	if m.To == "" {
		return ErrEmptyRecipient
	}
	return nil
}

// Notifier sends a single message. Implementations must bound their
// own per-send time.
type Notifier interface {
	Send(ctx context.Context, m Message) error
}

// Queue decouples the workflow from the transport. Enqueue must be
// cheap and must not wait for delivery.
type Queue interface {
	Enqueue(ctx context.Context, m Message) error
}
