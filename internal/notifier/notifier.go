// Package notifier provides message rendering and dispatching for owner
// notifications.
package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

// Message is a rendered notification ready for delivery.
type Message struct {
	To        string
	Subject   string
	PlainBody string
	HTMLBody  string
	Class     models.NotificationClass
}

// Transport is the interface for all outbound delivery channels.
type Transport interface {
	// Name returns the transport name (e.g., "email", "webhook").
	Name() string
	// Send delivers a rendered message to its recipient.
	Send(ctx context.Context, msg *Message) error
	// Close releases any resources.
	Close() error
}

// PermanentError marks a delivery failure that retrying cannot fix, such
// as a malformed address. The dispatcher fails these immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps an error as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether an error is marked non-retryable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
