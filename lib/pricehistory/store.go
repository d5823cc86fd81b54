package pricehistory

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// Store keeps an append-only series of observed prices per tracked item.
// A price of 0 records a sold out observation.
type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

// Open opens (and initializes) a sqlite-backed store at path.
func Open(path string) (Store, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return Store{}, err
	}
	_, err = database.Exec(Schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return Store{}, err
	}
	return NewStore(database), nil
}

type Snapshot struct {
	Time  time.Time
	Price float64
}

func (s Store) Push(ctx context.Context, subscriber, url string, price float64, at time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO price_snapshot (subscriber, url, time, price) VALUES (?, ?, ?, ?)`,
		subscriber, url, at.Unix(), price,
	)
	return err
}

func (s Store) Pull(ctx context.Context, subscriber, url string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT time, price FROM price_snapshot WHERE subscriber = ? AND url = ? ORDER BY time ASC`,
		subscriber, url,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var unix int64
		var price float64
		err := rows.Scan(&unix, &price)
		if err != nil {
			return nil, err
		}
		out = append(out, Snapshot{
			Time:  time.Unix(unix, 0),
			Price: price,
		})
	}
	return out, rows.Err()
}
