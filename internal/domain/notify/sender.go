// internal/domain/notify/sender.go
package notify

import "context"

// Message is one outgoing notification.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Sender defines the notification-delivery collaborator.
// Implementations carry their own timeouts.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
