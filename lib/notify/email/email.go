package email

import (
	"context"
	"fmt"
	"net/smtp"
	"pricewatch/lib/notify"

	"github.com/jordan-wright/email"
)

// Sink delivers notifications over SMTP, destinations are email addresses.
// It is mainly useful as the operational alert channel.
type Sink struct {
	opts Options
}

type Options struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

func NewSink(opts Options) Sink {
	return Sink{opts: opts}
}

func (s Sink) Notify(ctx context.Context, destination string, event notify.Event) error {
	msg := email.NewEmail()
	msg.From = s.opts.From
	msg.To = []string{destination}
	msg.Subject = subjectFor(event)
	msg.Text = []byte(bodyFor(event))

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	err := msg.Send(addr, smtp.PlainAuth("", s.opts.Username, s.opts.Password, s.opts.Host))
	if err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}

func subjectFor(event notify.Event) string {
	switch event.Kind {
	case notify.PriceIncreased:
		return fmt.Sprintf("Price increased: %s", event.ItemName)
	case notify.PriceDecreased:
		return fmt.Sprintf("Price decreased: %s", event.ItemName)
	case notify.WentSoldOut:
		return fmt.Sprintf("Out of stock: %s", event.ItemName)
	case notify.BackInStock:
		return fmt.Sprintf("Back in stock: %s", event.ItemName)
	case notify.OperationalAlert:
		return "Price monitor: operational alert"
	}
	return "Price monitor notification"
}

func bodyFor(event notify.Event) string {
	if event.Kind == notify.OperationalAlert {
		return event.Reason
	}
	return fmt.Sprintf(
		"%s\nold price: %.2f TL\nnew price: %.2f TL\n%s\n",
		event.ItemName, event.OldPrice, event.NewPrice, event.Url,
	)
}
