package trendyol

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
)

// ErrNotRecognized is returned when a url does not belong to any of the
// configured catalog or short-link domains.
var ErrNotRecognized = errors.New("url does not belong to a known catalog domain")

var DefaultCatalogHosts = []string{
	"trendyol.com",
	"www.trendyol.com",
	"trendyol-milla.com",
	"www.trendyol-milla.com",
}

var DefaultShortLinkHosts = []string{
	"ty.gl",
	"tyml.gl",
}

func (c *Client) isCatalogHost(host string) bool {
	return c.catalogHosts[strings.ToLower(host)]
}

func (c *Client) isShortLinkHost(host string) bool {
	return c.shortLinkHosts[strings.ToLower(host)]
}

func (c *Client) isKnownHost(host string) bool {
	return c.isCatalogHost(host) || c.isShortLinkHost(host)
}

// Normalize validates a raw link against the configured domain allow-set and
// resolves short links to their final product url. A short link whose
// resolution fails over the network is returned unchanged, the subsequent
// fetch will produce a clearer error.
func (c *Client) Normalize(ctx context.Context, rawUrl string) (string, error) {
	ctx, span := tracer.Start(ctx, "client:Normalize")
	defer span.End()

	link, err := url.Parse(rawUrl)
	if err != nil {
		return "", ErrNotRecognized
	}
	if !c.isKnownHost(link.Host) {
		return "", ErrNotRecognized
	}
	if !c.isShortLinkHost(link.Host) {
		return rawUrl, nil
	}

	res, err := c.http.R().
		SetContext(ctx).
		Head(rawUrl)
	if err != nil {
		slog.WarnContext(ctx, "failed to resolve short link", "url", rawUrl, "err", err)
		return rawUrl, nil
	}

	resolved := res.RawResponse.Request.URL
	// a short link may resolve anywhere, so the allow-set is
	// checked again on the final location
	if !c.isKnownHost(resolved.Host) {
		return "", ErrNotRecognized
	}
	return resolved.String(), nil
}
