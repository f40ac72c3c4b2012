// Package email delivers transactional notifications to participants:
// account welcome mail and retirement certificate delivery. Delivery is
// best-effort; ledger operations never fail on a mail error.
package email

import "context"

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}
