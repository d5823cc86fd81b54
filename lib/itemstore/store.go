package itemstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned by mutations targeting an item that is not
// currently tracked.
var ErrNotFound = errors.New("item is not tracked")

// Item is the persisted state of one tracked product. A CurrentPrice of 0
// is the sold out sentinel, real prices are always positive.
type Item struct {
	InitialPrice float64 `json:"initial_price"`
	CurrentPrice float64 `json:"current_price"`
	ProductName  string  `json:"product_name"`
}

// TrackedItem is an Item joined with its owning subscriber and canonical url.
type TrackedItem struct {
	Subscriber string
	Url        string
	Item
}

// Store is a file-backed mapping of subscriber -> canonical url -> Item.
// Every mutation rewrites the whole file, a failed write leaves the
// in-memory state untouched so the caller never observes an uncommitted
// change.
type Store struct {
	path string

	mu   sync.Mutex
	data map[string]map[string]Item
}

// Open loads the store at path. A missing or corrupt file yields an empty
// store rather than an error, losing the watch list beats refusing to start.
func Open(path string) *Store {
	s := &Store{
		path: path,
		data: map[string]map[string]Item{},
	}

	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s
	}
	if err != nil {
		slog.Warn("failed to read item store, starting empty", "path", path, "err", err)
		return s
	}
	err = json.Unmarshal(contents, &s.data)
	if err != nil {
		slog.Warn("item store is corrupt, starting empty", "path", path, "err", err)
		s.data = map[string]map[string]Item{}
	}
	return s
}

func clone(data map[string]map[string]Item) map[string]map[string]Item {
	out := make(map[string]map[string]Item, len(data))
	for subscriber, items := range data {
		inner := make(map[string]Item, len(items))
		for url, item := range items {
			inner[url] = item
		}
		out[subscriber] = inner
	}
	return out
}

func (s *Store) saveLocked(data map[string]map[string]Item) error {
	contents, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return err
	}

	tmp := fmt.Sprintf("%s.tmp", s.path)
	err = os.MkdirAll(filepath.Dir(s.path), 0755)
	if err != nil {
		return err
	}
	err = os.WriteFile(tmp, contents, 0644)
	if err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// mutate applies fn to a copy of the data, persists it, and only then
// swaps it in.
func (s *Store) mutate(fn func(data map[string]map[string]Item) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := clone(s.data)
	err := fn(next)
	if err != nil {
		return err
	}
	err = s.saveLocked(next)
	if err != nil {
		return fmt.Errorf("persist item store: %w", err)
	}
	s.data = next
	return nil
}

// Snapshot returns a deep copy of the full item set, consistent at a single
// point in time.
func (s *Store) Snapshot() map[string]map[string]Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.data)
}

func (s *Store) Get(subscriber, url string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.data[subscriber][url]
	return item, ok
}

// List returns the items tracked by one subscriber.
func (s *Store) List(subscriber string) []TrackedItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []TrackedItem
	for url, item := range s.data[subscriber] {
		out = append(out, TrackedItem{
			Subscriber: subscriber,
			Url:        url,
			Item:       item,
		})
	}
	return out
}

// Add starts tracking an item, setting both the initial and current price.
// Adding a url already tracked by the subscriber resets it.
func (s *Store) Add(subscriber, url, name string, price float64) error {
	return s.mutate(func(data map[string]map[string]Item) error {
		if data[subscriber] == nil {
			data[subscriber] = map[string]Item{}
		}
		data[subscriber][url] = Item{
			InitialPrice: price,
			CurrentPrice: price,
			ProductName:  name,
		}
		return nil
	})
}

// Remove stops tracking an item. The subscriber entry itself is dropped
// once its last item is removed.
func (s *Store) Remove(subscriber, url string) error {
	return s.mutate(func(data map[string]map[string]Item) error {
		items, ok := data[subscriber]
		if !ok {
			return ErrNotFound
		}
		_, ok = items[url]
		if !ok {
			return ErrNotFound
		}
		delete(items, url)
		if len(items) == 0 {
			delete(data, subscriber)
		}
		return nil
	})
}

// SetCurrentPrice updates the current price, leaving the initial price as
// the baseline it was created with.
func (s *Store) SetCurrentPrice(subscriber, url string, price float64) error {
	return s.mutate(func(data map[string]map[string]Item) error {
		item, ok := data[subscriber][url]
		if !ok {
			return ErrNotFound
		}
		item.CurrentPrice = price
		data[subscriber][url] = item
		return nil
	})
}

// SetName refreshes the display name from a successful poll.
func (s *Store) SetName(subscriber, url, name string) error {
	return s.mutate(func(data map[string]map[string]Item) error {
		item, ok := data[subscriber][url]
		if !ok {
			return ErrNotFound
		}
		item.ProductName = name
		data[subscriber][url] = item
		return nil
	})
}
