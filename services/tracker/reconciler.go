package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"pricewatch/lib/itemstore"
	"pricewatch/lib/notify"
	"pricewatch/lib/scrapers/trendyol"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("services/tracker")
var cycleCounter, _ = meter.Int64Counter(
	"reconcile_cycles_total",
	metric.WithDescription("The total amount of completed reconciliation cycles."),
)
var cycleErrorCounter, _ = meter.Int64Counter(
	"reconcile_errors_total",
	metric.WithDescription("The total amount of per-item poll and delivery failures."),
)

// Run drives reconciliation cycles until ctx is cancelled. Cycles never
// overlap, a cycle that outlives the interval simply delays the next one.
func (s *Service) Run(ctx context.Context) {
	slog.InfoContext(
		ctx, "reconciler started",
		"interval", s.interval,
		"workers", s.workers,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "reconciler stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

type pollJob struct {
	subscriber string
	url        string
	item       itemstore.Item
}

// runCycle polls every tracked item once against a single store snapshot.
// Items are independent, one failing item never aborts the rest.
func (s *Service) runCycle(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "runCycle")
	defer span.End()

	snapshot := s.store.Snapshot()

	var jobs []pollJob
	for subscriber, items := range snapshot {
		if !s.allowed[subscriber] {
			slog.WarnContext(ctx, "skipping items of disallowed subscriber", "subscriber", subscriber)
			continue
		}
		for url, item := range items {
			jobs = append(jobs, pollJob{
				subscriber: subscriber,
				url:        url,
				item:       item,
			})
		}
	}
	span.SetAttributes(attribute.Int("item_count", len(jobs)))

	if len(jobs) == 0 {
		slog.InfoContext(ctx, "no products to check")
		return
	}

	var errCount atomic.Int64
	sem := make(chan struct{}, s.workers)
	wg := sync.WaitGroup{}

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(job pollJob) {
			defer wg.Done()
			defer func() { <-sem }()

			err := s.pollItem(ctx, job)
			if err != nil {
				errCount.Add(1)
				slog.WarnContext(
					ctx, "poll failed",
					"subscriber", job.subscriber,
					"url", job.url,
					"err", err,
				)
			}
		}(job)
	}
	wg.Wait()

	if ctx.Err() != nil {
		// shutdown mid-cycle, remaining items are left for the next run
		return
	}

	cycleCounter.Add(ctx, 1)
	cycleErrorCounter.Add(ctx, errCount.Load())
	slog.InfoContext(ctx, "cycle complete", "items", len(jobs), "errors", errCount.Load())

	if int(errCount.Load()) > s.errorThreshold {
		s.alert(ctx, fmt.Sprintf(
			"%d of %d item polls failed in the last cycle, the catalog layout may have changed",
			errCount.Load(), len(jobs),
		))
	}
}

// alert emits one aggregate operational health message to the admin
// destination. Systemic trouble is reported once per cycle, not once per
// item.
func (s *Service) alert(ctx context.Context, reason string) {
	if s.admin == "" || s.alertSink == nil {
		return
	}
	err := s.alertSink.Notify(ctx, s.admin, notify.Event{
		Kind:   notify.OperationalAlert,
		Reason: reason,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to deliver operational alert", "err", err)
	}
}

// pollItem runs the fetch/extract/diff/persist sequence for one item.
// Any error it returns counts toward the cycle's aggregate error total.
func (s *Service) pollItem(ctx context.Context, job pollJob) error {
	ctx, span := tracer.Start(ctx, "pollItem")
	defer span.End()
	span.SetAttributes(
		attribute.String("subscriber", job.subscriber),
		attribute.String("url", job.url),
	)

	page, err := s.scraper.Fetch(ctx, job.url)
	if err != nil {
		// last-known-good state stays untouched on a failed poll
		return err
	}

	result := s.extractor.Extract(ctx, page)
	switch result.Kind {
	case trendyol.KindFailure:
		return fmt.Errorf("extract product info: %s", result.Reason)
	case trendyol.KindSoldOut:
		return s.applySoldOut(ctx, job)
	case trendyol.KindSuccess:
		return s.applySuccess(ctx, job, result)
	}
	return nil
}

func (s *Service) applySoldOut(ctx context.Context, job pollJob) error {
	if job.item.CurrentPrice <= 0 {
		// steady sold out state, already announced
		return nil
	}

	err := s.store.SetCurrentPrice(job.subscriber, job.url, 0)
	if errors.Is(err, itemstore.ErrNotFound) {
		// untracked while the poll was in flight, the removal wins
		return nil
	}
	if err != nil {
		return err
	}
	s.recordHistory(ctx, job.subscriber, job.url, 0)

	return s.sink.Notify(ctx, job.subscriber, notify.Event{
		Kind:     notify.WentSoldOut,
		ItemName: job.item.ProductName,
		Url:      job.url,
		OldPrice: job.item.CurrentPrice,
	})
}

func (s *Service) applySuccess(ctx context.Context, job pollJob, result trendyol.Result) error {
	if result.Name != "" && result.Name != job.item.ProductName {
		err := s.store.SetName(job.subscriber, job.url, result.Name)
		if err != nil && !errors.Is(err, itemstore.ErrNotFound) {
			slog.WarnContext(ctx, "failed to refresh product name", "url", job.url, "err", err)
		}
	}

	previous := job.item.CurrentPrice

	if previous == 0 && result.Price > 0 {
		err := s.store.SetCurrentPrice(job.subscriber, job.url, result.Price)
		if errors.Is(err, itemstore.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		s.recordHistory(ctx, job.subscriber, job.url, result.Price)

		return s.sink.Notify(ctx, job.subscriber, notify.Event{
			Kind:     notify.BackInStock,
			ItemName: result.Name,
			Url:      job.url,
			NewPrice: result.Price,
		})
	}

	if withinTolerance(result.Price, previous, s.tolerance) {
		return nil
	}

	err := s.store.SetCurrentPrice(job.subscriber, job.url, result.Price)
	if errors.Is(err, itemstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.recordHistory(ctx, job.subscriber, job.url, result.Price)

	delta := result.Price - previous
	kind := notify.PriceIncreased
	if delta < 0 {
		kind = notify.PriceDecreased
	}

	event := notify.Event{
		Kind:     kind,
		ItemName: result.Name,
		Url:      job.url,
		OldPrice: previous,
		NewPrice: result.Price,
		Delta:    delta,
	}
	if previous > 0 {
		event.Percent = delta / previous * 100
	}
	return s.sink.Notify(ctx, job.subscriber, event)
}
