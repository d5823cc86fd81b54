package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"pricewatch/lib/itemstore"
	"pricewatch/lib/notify"
	"pricewatch/lib/pricehistory"
	"pricewatch/lib/scrapers/trendyol"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/tracker")

var ErrNotFound = itemstore.ErrNotFound

// ErrNotAllowed is returned for subscribers outside the configured
// allow-list, their requests are rejected and their items never polled.
var ErrNotAllowed = errors.New("subscriber is not allowed")

type Service struct {
	store     *itemstore.Store
	scraper   *trendyol.Client
	extractor trendyol.Extractor
	// nil disables history recording
	history *pricehistory.Store
	sink    notify.Sink
	// nil disables operational alerts, as does an empty admin destination
	alertSink notify.Sink
	admin     string

	allowed        map[string]bool
	interval       time.Duration
	tolerance      float64
	workers        int
	errorThreshold int
}

type Options struct {
	Store     *itemstore.Store
	Scraper   *trendyol.Client
	Extractor trendyol.Extractor
	// optional
	History *pricehistory.Store
	Sink    notify.Sink
	// sink for operational alerts, defaults to Sink
	AlertSink notify.Sink
	// optional admin destination for operational alerts
	Admin string

	AllowedSubscribers []string
	// defaults to 30 minutes
	Interval time.Duration
	// defaults to 0.01
	Tolerance float64
	// defaults to 4
	Workers int
	// defaults to 5
	ErrorThreshold int
}

func NewService(opts Options) *Service {
	if opts.Interval == 0 {
		opts.Interval = time.Minute * 30
	}
	if opts.Tolerance == 0 {
		opts.Tolerance = 0.01
	}
	if opts.Workers == 0 {
		opts.Workers = 4
	}
	if opts.ErrorThreshold == 0 {
		opts.ErrorThreshold = 5
	}
	if opts.AlertSink == nil {
		opts.AlertSink = opts.Sink
	}

	allowed := map[string]bool{}
	for _, subscriber := range opts.AllowedSubscribers {
		allowed[subscriber] = true
	}

	return &Service{
		store:          opts.Store,
		scraper:        opts.Scraper,
		extractor:      opts.Extractor,
		history:        opts.History,
		sink:           opts.Sink,
		alertSink:      opts.AlertSink,
		admin:          opts.Admin,
		allowed:        allowed,
		interval:       opts.Interval,
		tolerance:      opts.Tolerance,
		workers:        opts.Workers,
		errorThreshold: opts.ErrorThreshold,
	}
}

// Track normalizes and scrapes rawUrl, then starts watching it for the
// subscriber. Sold out products are trackable, they announce themselves
// once back in stock.
func (s *Service) Track(ctx context.Context, subscriber, rawUrl string) (itemstore.TrackedItem, error) {
	ctx, span := tracer.Start(ctx, "Track")
	defer span.End()
	span.SetAttributes(
		attribute.String("subscriber", subscriber),
		attribute.String("url", rawUrl),
	)

	if !s.allowed[subscriber] {
		return itemstore.TrackedItem{}, ErrNotAllowed
	}

	canonical, err := s.scraper.Normalize(ctx, rawUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "url not recognized")
		return itemstore.TrackedItem{}, err
	}

	page, err := s.scraper.Fetch(ctx, canonical)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return itemstore.TrackedItem{}, err
	}

	result := s.extractor.Extract(ctx, page)
	switch result.Kind {
	case trendyol.KindFailure:
		return itemstore.TrackedItem{}, fmt.Errorf("extract product info: %s", result.Reason)
	case trendyol.KindSoldOut:
		err := s.store.Add(subscriber, canonical, result.Name, 0)
		if err != nil {
			return itemstore.TrackedItem{}, err
		}
		s.recordHistory(ctx, subscriber, canonical, 0)
	case trendyol.KindSuccess:
		err := s.store.Add(subscriber, canonical, result.Name, result.Price)
		if err != nil {
			return itemstore.TrackedItem{}, err
		}
		s.recordHistory(ctx, subscriber, canonical, result.Price)
	}

	item, _ := s.store.Get(subscriber, canonical)
	slog.InfoContext(
		ctx, "tracking new product",
		"subscriber", subscriber,
		"url", canonical,
		"name", item.ProductName,
		"price", item.CurrentPrice,
	)
	return itemstore.TrackedItem{
		Subscriber: subscriber,
		Url:        canonical,
		Item:       item,
	}, nil
}

func (s *Service) Untrack(ctx context.Context, subscriber, canonicalUrl string) error {
	ctx, span := tracer.Start(ctx, "Untrack")
	defer span.End()

	if !s.allowed[subscriber] {
		return ErrNotAllowed
	}
	return s.store.Remove(subscriber, canonicalUrl)
}

func (s *Service) List(ctx context.Context, subscriber string) ([]itemstore.TrackedItem, error) {
	_, span := tracer.Start(ctx, "List")
	defer span.End()

	if !s.allowed[subscriber] {
		return nil, ErrNotAllowed
	}
	return s.store.List(subscriber), nil
}

func (s *Service) History(ctx context.Context, subscriber, canonicalUrl string) ([]pricehistory.Snapshot, error) {
	if !s.allowed[subscriber] {
		return nil, ErrNotAllowed
	}
	if s.history == nil {
		return nil, nil
	}
	return s.history.Pull(ctx, subscriber, canonicalUrl)
}

func (s *Service) recordHistory(ctx context.Context, subscriber, url string, price float64) {
	if s.history == nil {
		return
	}
	err := s.history.Push(ctx, subscriber, url, price, time.Now())
	if err != nil {
		slog.WarnContext(ctx, "failed to record price history", "url", url, "err", err)
	}
}

func withinTolerance(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}
