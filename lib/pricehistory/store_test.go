package pricehistory

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func TestStore(t *testing.T) {
	sqlite, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	_, err = sqlite.Exec(Schema)
	if err != nil {
		t.Fatal(err)
	}
	store := NewStore(sqlite)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	url := "https://www.trendyol.com/urun/a-p-1"

	snapshots, err := store.Pull(ctx, "chat", url)
	require.NoError(t, err)
	require.Len(t, snapshots, 0)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err = store.Push(ctx, "chat", url, 199.90, base)
	require.NoError(t, err)
	err = store.Push(ctx, "chat", url, 179.90, base.Add(time.Hour))
	require.NoError(t, err)
	// sold out observation
	err = store.Push(ctx, "chat", url, 0, base.Add(time.Hour*2))
	require.NoError(t, err)
	// another item's series stays separate
	err = store.Push(ctx, "chat", "https://www.trendyol.com/urun/b-p-2", 10, base)
	require.NoError(t, err)

	snapshots, err = store.Pull(ctx, "chat", url)
	require.NoError(t, err)
	require.Len(t, snapshots, 3)
	require.InDelta(t, 199.90, snapshots[0].Price, 0.001)
	require.InDelta(t, 179.90, snapshots[1].Price, 0.001)
	require.InDelta(t, 0, snapshots[2].Price, 0.001)
	require.Equal(t, base.Unix(), snapshots[0].Time.Unix())
}
