package notify

import (
	"context"
	"strings"
)

// Notifier is the outbound delivery contract the core depends on. Both
// operations are best-effort: delivery failures are logged at the boundary
// and never surfaced to the request path.
type Notifier interface {
	SendSMSCode(ctx context.Context, phoneNumber, code string) error
	SendEmailCode(ctx context.Context, email, code string) error
}

// MaskContact masks a contact value for logging (e.g. 09*******89).
func MaskContact(contact string) string {
	if len(contact) <= 4 {
		return "****"
	}
	return contact[:2] + strings.Repeat("*", len(contact)-4) + contact[len(contact)-2:]
}
