package tracker

import (
	"context"
	"pricewatch/lib/notify"
	"pricewatch/lib/telemetry"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestCycleIdempotent(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:reconciler")
	defer cleanup()
	ctx := context.Background()

	site := newCatalog(t)
	site.set("/urun/widget-p-1", productPage("Widget", "199,90"))

	sink := &recordingSink{}
	service, store := setupService(t, site, sink, serviceParams{})

	_, err := service.Track(ctx, "chat-1", site.url("/urun/widget-p-1"))
	require.NoError(t, err)

	before := store.Snapshot()

	service.runCycle(ctx)
	service.runCycle(ctx)

	require.Empty(t, sink.take())
	if diff := cmp.Diff(before, store.Snapshot()); diff != "" {
		t.Fatalf("store changed across no-op cycles:\n%s", diff)
	}
}

func TestCyclePriceDrop(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:reconciler")
	defer cleanup()
	ctx := context.Background()

	site := newCatalog(t)
	site.set("/urun/widget-p-1", productPage("Widget", "199,90"))

	sink := &recordingSink{}
	service, store := setupService(t, site, sink, serviceParams{})

	_, err := service.Track(ctx, "chat-1", site.url("/urun/widget-p-1"))
	require.NoError(t, err)

	site.set("/urun/widget-p-1", productPage("Widget", "179,90"))
	service.runCycle(ctx)

	calls := sink.take()
	require.Len(t, calls, 1)
	require.Equal(t, "chat-1", calls[0].destination)
	require.Equal(t, notify.PriceDecreased, calls[0].event.Kind)
	require.Equal(t, "Widget", calls[0].event.ItemName)
	require.InDelta(t, 199.90, calls[0].event.OldPrice, 0.001)
	require.InDelta(t, 179.90, calls[0].event.NewPrice, 0.001)
	require.InDelta(t, -20.00, calls[0].event.Delta, 0.001)
	require.InDelta(t, -10.0, calls[0].event.Percent, 0.05)

	// the baseline survives, the live price moves
	item, ok := store.Get("chat-1", site.url("/urun/widget-p-1"))
	require.True(t, ok)
	require.InDelta(t, 199.90, item.InitialPrice, 0.001)
	require.InDelta(t, 179.90, item.CurrentPrice, 0.001)

	// the new price is the new steady state
	service.runCycle(ctx)
	require.Empty(t, sink.take())
}

func TestCyclePriceIncrease(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:reconciler")
	defer cleanup()
	ctx := context.Background()

	site := newCatalog(t)
	site.set("/urun/widget-p-1", productPage("Widget", "100,00"))

	sink := &recordingSink{}
	service, _ := setupService(t, site, sink, serviceParams{})

	_, err := service.Track(ctx, "chat-1", site.url("/urun/widget-p-1"))
	require.NoError(t, err)

	site.set("/urun/widget-p-1", productPage("Widget", "125,00"))
	service.runCycle(ctx)

	calls := sink.take()
	require.Len(t, calls, 1)
	require.Equal(t, notify.PriceIncreased, calls[0].event.Kind)
	require.InDelta(t, 25.00, calls[0].event.Delta, 0.001)
	require.InDelta(t, 25.0, calls[0].event.Percent, 0.05)
}

func TestCycleTolerance(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:reconciler")
	defer cleanup()
	ctx := context.Background()

	site := newCatalog(t)
	site.set("/urun/widget-p-1", productPage("Widget", "100,00"))

	sink := &recordingSink{}
	service, store := setupService(t, site, sink, serviceParams{})

	_, err := service.Track(ctx, "chat-1", site.url("/urun/widget-p-1"))
	require.NoError(t, err)

	// a wiggle below the tolerance is not a change
	site.set("/urun/widget-p-1", productPage("Widget", "100,005"))
	service.runCycle(ctx)
	require.Empty(t, sink.take())

	item, ok := store.Get("chat-1", site.url("/urun/widget-p-1"))
	require.True(t, ok)
	require.InDelta(t, 100.00, item.CurrentPrice, 0.001)

	// just past it is
	site.set("/urun/widget-p-1", productPage("Widget", "100,02"))
	service.runCycle(ctx)

	calls := sink.take()
	require.Len(t, calls, 1)
	require.Equal(t, notify.PriceIncreased, calls[0].event.Kind)
	require.InDelta(t, 0.02, calls[0].event.Delta, 0.001)
}

func TestCycleSoldOutTransition(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:reconciler")
	defer cleanup()
	ctx := context.Background()

	site := newCatalog(t)
	site.set("/urun/widget-p-1", productPage("Widget", "50,00"))

	sink := &recordingSink{}
	service, store := setupService(t, site, sink, serviceParams{})

	_, err := service.Track(ctx, "chat-1", site.url("/urun/widget-p-1"))
	require.NoError(t, err)

	site.set("/urun/widget-p-1", soldOutPage("Widget"))
	service.runCycle(ctx)

	calls := sink.take()
	require.Len(t, calls, 1)
	require.Equal(t, notify.WentSoldOut, calls[0].event.Kind)
	require.InDelta(t, 50.00, calls[0].event.OldPrice, 0.001)

	item, ok := store.Get("chat-1", site.url("/urun/widget-p-1"))
	require.True(t, ok)
	require.InDelta(t, 0, item.CurrentPrice, 0.001)

	// steady sold out state stays quiet
	service.runCycle(ctx)
	require.Empty(t, sink.take())
}

func TestCycleBackInStock(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:reconciler")
	defer cleanup()
	ctx := context.Background()

	site := newCatalog(t)
	site.set("/urun/widget-p-1", soldOutPage("Widget"))

	sink := &recordingSink{}
	service, store := setupService(t, site, sink, serviceParams{})

	_, err := service.Track(ctx, "chat-1", site.url("/urun/widget-p-1"))
	require.NoError(t, err)

	site.set("/urun/widget-p-1", productPage("Widget", "80,00"))
	service.runCycle(ctx)

	calls := sink.take()
	require.Len(t, calls, 1)
	require.Equal(t, notify.BackInStock, calls[0].event.Kind)
	require.InDelta(t, 80.00, calls[0].event.NewPrice, 0.001)

	item, ok := store.Get("chat-1", site.url("/urun/widget-p-1"))
	require.True(t, ok)
	require.InDelta(t, 80.00, item.CurrentPrice, 0.001)
}

func TestCycleNameRefresh(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:reconciler")
	defer cleanup()
	ctx := context.Background()

	site := newCatalog(t)
	site.set("/urun/widget-p-1", productPage("Widget", "50,00"))

	sink := &recordingSink{}
	service, store := setupService(t, site, sink, serviceParams{})

	_, err := service.Track(ctx, "chat-1", site.url("/urun/widget-p-1"))
	require.NoError(t, err)

	// listings get renamed, the stored name follows without a notification
	site.set("/urun/widget-p-1", productPage("Widget Pro", "50,00"))
	service.runCycle(ctx)
	require.Empty(t, sink.take())

	item, ok := store.Get("chat-1", site.url("/urun/widget-p-1"))
	require.True(t, ok)
	require.Equal(t, "Widget Pro", item.ProductName)
}

func TestCycleIsolatesFailingItems(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:reconciler")
	defer cleanup()
	ctx := context.Background()

	site := newCatalog(t)
	site.set("/urun/a-p-1", productPage("A", "10,00"))
	site.set("/urun/b-p-2", productPage("B", "20,00"))
	site.set("/urun/c-p-3", productPage("C", "30,00"))

	sink := &recordingSink{}
	service, store := setupService(t, site, sink, serviceParams{})

	for _, path := range []string{"/urun/a-p-1", "/urun/b-p-2", "/urun/c-p-3"} {
		_, err := service.Track(ctx, "chat-1", site.url(path))
		require.NoError(t, err)
	}

	site.remove("/urun/b-p-2")
	site.set("/urun/a-p-1", productPage("A", "15,00"))
	site.set("/urun/c-p-3", productPage("C", "25,00"))
	service.runCycle(ctx)

	calls := sink.take()
	require.Len(t, calls, 2)

	// the broken item keeps its last known state
	item, ok := store.Get("chat-1", site.url("/urun/b-p-2"))
	require.True(t, ok)
	require.InDelta(t, 20.00, item.CurrentPrice, 0.001)
}

func TestCycleUntrackWins(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:reconciler")
	defer cleanup()
	ctx := context.Background()

	site := newCatalog(t)
	sink := &recordingSink{}
	service, store := setupService(t, site, sink, serviceParams{})

	// an untrack that lands after the cycle's snapshot but before the
	// poll applies must win: no notification, no resurrected item
	t.Run("during a price change", func(t *testing.T) {
		site.hook(nil)
		site.set("/urun/widget-p-1", productPage("Widget", "50,00"))

		_, err := service.Track(ctx, "chat-1", site.url("/urun/widget-p-1"))
		require.NoError(t, err)

		site.set("/urun/widget-p-1", productPage("Widget", "40,00"))
		site.hook(func() {
			err := store.Remove("chat-1", site.url("/urun/widget-p-1"))
			require.NoError(t, err)
		})
		service.runCycle(ctx)

		require.Empty(t, sink.take())
		_, ok := store.Get("chat-1", site.url("/urun/widget-p-1"))
		require.False(t, ok)
	})

	t.Run("during a sold out transition", func(t *testing.T) {
		site.hook(nil)
		site.set("/urun/widget-p-1", productPage("Widget", "50,00"))

		_, err := service.Track(ctx, "chat-1", site.url("/urun/widget-p-1"))
		require.NoError(t, err)

		site.set("/urun/widget-p-1", soldOutPage("Widget"))
		site.hook(func() {
			err := store.Remove("chat-1", site.url("/urun/widget-p-1"))
			require.NoError(t, err)
		})
		service.runCycle(ctx)

		require.Empty(t, sink.take())
		_, ok := store.Get("chat-1", site.url("/urun/widget-p-1"))
		require.False(t, ok)
	})
}

func TestCycleOperationalAlert(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:reconciler")
	defer cleanup()
	ctx := context.Background()

	site := newCatalog(t)
	site.set("/urun/a-p-1", productPage("A", "10,00"))
	site.set("/urun/b-p-2", productPage("B", "20,00"))
	site.set("/urun/c-p-3", productPage("C", "30,00"))

	sink := &recordingSink{}
	alertSink := &recordingSink{}
	service, _ := setupService(t, site, sink, serviceParams{
		admin:          "admin-chat",
		alertSink:      alertSink,
		errorThreshold: 1,
	})

	for _, path := range []string{"/urun/a-p-1", "/urun/b-p-2", "/urun/c-p-3"} {
		_, err := service.Track(ctx, "chat-1", site.url(path))
		require.NoError(t, err)
	}

	site.remove("/urun/a-p-1")
	site.remove("/urun/b-p-2")
	site.remove("/urun/c-p-3")
	service.runCycle(ctx)

	require.Empty(t, sink.take())

	alerts := alertSink.take()
	require.Len(t, alerts, 1)
	require.Equal(t, "admin-chat", alerts[0].destination)
	require.Equal(t, notify.OperationalAlert, alerts[0].event.Kind)
	require.Contains(t, alerts[0].event.Reason, "3 of 3")
}

func TestCycleSkipsDisallowedSubscribers(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:reconciler")
	defer cleanup()
	ctx := context.Background()

	site := newCatalog(t)
	site.set("/urun/widget-p-1", productPage("Widget", "50,00"))

	sink := &recordingSink{}
	service, store := setupService(t, site, sink, serviceParams{})

	// leftover state from a subscriber that has since been removed from
	// the allow-list
	err := store.Add("stranger", site.url("/urun/widget-p-1"), "Widget", 50.00)
	require.NoError(t, err)

	site.set("/urun/widget-p-1", productPage("Widget", "40,00"))
	service.runCycle(ctx)

	require.Empty(t, sink.take())
	item, ok := store.Get("stranger", site.url("/urun/widget-p-1"))
	require.True(t, ok)
	require.InDelta(t, 50.00, item.CurrentPrice, 0.001)
}
