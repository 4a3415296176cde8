package notify

import (
	"context"
	"log"
)

// LogNotifier is the dev-mode sender: it logs that a code was issued without
// revealing the contact. The code itself is logged so local flows can be
// completed without a real SMS or SMTP setup.
type LogNotifier struct{}

func (LogNotifier) SendSMSCode(ctx context.Context, phoneNumber, code string) error {
	log.Printf("notify (dev): sms code %s for %s", code, MaskContact(phoneNumber))
	return nil
}

func (LogNotifier) SendEmailCode(ctx context.Context, email, code string) error {
	log.Printf("notify (dev): email code %s for %s", code, MaskContact(email))
	return nil
}

var _ Notifier = LogNotifier{}
