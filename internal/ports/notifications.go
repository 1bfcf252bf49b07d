package ports

import (
	"context"
	"io"
)

// MailMessage is a rendered notification ready for delivery.
type MailMessage struct {
	To       []string
	Subject  string
	HTMLBody string
	TextBody string
}

type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// ReceiptStore keeps payment receipts uploaded when a remise is paid.
// Save returns the stored path recorded on the remise.
type ReceiptStore interface {
	Save(ctx context.Context, name string, content io.Reader) (string, error)
	Delete(ctx context.Context, path string) error
}
