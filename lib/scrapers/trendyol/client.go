package trendyol

import (
	"context"
	"fmt"
	"pricewatch/lib/telemetry"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrapers/trendyol")

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// StatusError reports a non-2xx response from the product page.
type StatusError struct {
	Code int
}

func (e StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

type Client struct {
	http *resty.Client

	catalogHosts   map[string]bool
	shortLinkHosts map[string]bool
}

type ClientOptions struct {
	// identifying header sent on every outbound request,
	// defaults to DefaultUserAgent
	UserAgent string
	// defaults to 10 seconds
	Timeout time.Duration
	// hosts accepted as product pages, defaults to the trendyol
	// catalog domains
	CatalogHosts []string
	// hosts treated as shortened links to be resolved,
	// defaults to the trendyol short-link domains
	ShortLinkHosts []string
}

func NewClient(opts ClientOptions) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 10
	}
	if len(opts.CatalogHosts) == 0 {
		opts.CatalogHosts = DefaultCatalogHosts
	}
	if len(opts.ShortLinkHosts) == 0 {
		opts.ShortLinkHosts = DefaultShortLinkHosts
	}

	client := resty.New()
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", opts.UserAgent)
	client.SetTimeout(opts.Timeout)

	telemetry.InstrumentResty(client, "scrapers/trendyol/http")

	c := &Client{
		http:           client,
		catalogHosts:   map[string]bool{},
		shortLinkHosts: map[string]bool{},
	}
	for _, h := range opts.CatalogHosts {
		c.catalogHosts[h] = true
	}
	for _, h := range opts.ShortLinkHosts {
		c.shortLinkHosts[h] = true
	}
	return c
}

// Fetch performs a single GET of the product page. There is no retry here,
// a failed poll is simply skipped until the next cycle.
func (c *Client) Fetch(ctx context.Context, link string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "client:Fetch")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get(link)
	if err != nil {
		return nil, fmt.Errorf("fetch product page: %w", err)
	}
	if res.StatusCode() < 200 || res.StatusCode() > 299 {
		return nil, StatusError{Code: res.StatusCode()}
	}
	return res.Body(), nil
}
