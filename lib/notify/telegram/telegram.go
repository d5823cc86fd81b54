package telegram

import (
	"context"
	"fmt"
	"pricewatch/lib/notify"
	"pricewatch/lib/telemetry"
	"time"

	"github.com/go-resty/resty/v2"
)

// Sink delivers notifications through the telegram bot API. Destinations
// are chat ids.
type Sink struct {
	http  *resty.Client
	token string
}

type Options struct {
	Token string
	// defaults to the public bot API endpoint
	BaseUrl string
}

func NewSink(opts Options) *Sink {
	if opts.BaseUrl == "" {
		opts.BaseUrl = "https://api.telegram.org"
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.SetTimeout(time.Second * 10)

	telemetry.InstrumentResty(client, "notify/telegram/http")

	return &Sink{
		http:  client,
		token: opts.Token,
	}
}

func (s *Sink) Notify(ctx context.Context, destination string, event notify.Event) error {
	res, err := s.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id":                  destination,
			"text":                     formatMessage(event),
			"parse_mode":               "HTML",
			"disable_web_page_preview": true,
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", s.token))
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	if res.StatusCode() < 200 || res.StatusCode() > 299 {
		return fmt.Errorf("send telegram message: unexpected status code: %d", res.StatusCode())
	}
	return nil
}

func formatMessage(event notify.Event) string {
	switch event.Kind {
	case notify.PriceIncreased:
		return fmt.Sprintf(
			"🔴 <b>📈 Fiyat Yükseldi!</b>\n\n"+
				"<b>%s</b>\n"+
				"Eski Fiyat: <b>%.2f TL</b>\n"+
				"Yeni Fiyat: <b>%.2f TL</b>\n"+
				"Fark: <b>%+.2f TL (%%%+.1f)</b>\n\n"+
				"<a href=\"%s\">Ürüne Git</a>",
			event.ItemName, event.OldPrice, event.NewPrice,
			event.Delta, event.Percent, event.Url,
		)
	case notify.PriceDecreased:
		return fmt.Sprintf(
			"🟢 <b>📉 Fiyat Düştü!</b>\n\n"+
				"<b>%s</b>\n"+
				"Eski Fiyat: <b>%.2f TL</b>\n"+
				"Yeni Fiyat: <b>%.2f TL</b>\n"+
				"Fark: <b>%+.2f TL (%%%+.1f)</b>\n\n"+
				"<a href=\"%s\">Ürüne Git</a>",
			event.ItemName, event.OldPrice, event.NewPrice,
			event.Delta, event.Percent, event.Url,
		)
	case notify.WentSoldOut:
		return fmt.Sprintf(
			"⚠️ Ürün tükendi!\n\n"+
				"Ürün: %s\n"+
				"Önceki Fiyat: %.2f TL\n"+
				"Durum: Tükendi\n\n"+
				"<a href=\"%s\">Ürün Linki</a>",
			event.ItemName, event.OldPrice, event.Url,
		)
	case notify.BackInStock:
		return fmt.Sprintf(
			"🎉 Ürün tekrar stokta!\n\n"+
				"Ürün: %s\n"+
				"Güncel Fiyat: %.2f TL\n\n"+
				"<a href=\"%s\">Ürün Linki</a>",
			event.ItemName, event.NewPrice, event.Url,
		)
	case notify.OperationalAlert:
		return fmt.Sprintf("⚠️ Operasyonel uyarı: %s", event.Reason)
	}
	return event.Reason
}
