package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/coastal-conditions/internal/cache"
	"github.com/i474232898/coastal-conditions/internal/geo"
	"github.com/i474232898/coastal-conditions/internal/tide"
	"github.com/i474232898/coastal-conditions/internal/weather"
)

// codec maps a payload type onto the columns of its table.
type codec[P any] struct {
	table     string
	keyColumn string
	columns   []string
	encode    func(rec cache.Record[P]) ([]any, error)
	// targets returns scan destinations for columns and a function that
	// builds the payload once they are filled.
	targets func() ([]any, func(key string) (P, error))
}

// Table is a cache.Store over one SQL table.
type Table[P any] struct {
	db    *DB
	codec codec[P]
}

// TideRecords returns the store for tide readings keyed by station id.
func (s *DB) TideRecords() *Table[tide.Reading] {
	return &Table[tide.Reading]{db: s, codec: tideCodec}
}

// WeatherRecords returns the store for weather conditions keyed by location.
func (s *DB) WeatherRecords() *Table[weather.Conditions] {
	return &Table[weather.Conditions]{db: s, codec: weatherCodec}
}

func (t *Table[P]) selectColumns() string {
	return t.codec.keyColumn + ", timestamp, " + strings.Join(t.codec.columns, ", ")
}

// Latest returns the newest record for key; ties go to the last inserted row.
func (t *Table[P]) Latest(ctx context.Context, key string) (cache.Record[P], error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? ORDER BY timestamp DESC, id DESC LIMIT 1`,
		t.selectColumns(), t.codec.table, t.codec.keyColumn)

	row := t.db.db.QueryRowContext(ctx, t.db.rebind(query), key)
	rec, err := t.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Record[P]{}, cache.ErrNotFound
	}
	if err != nil {
		return cache.Record[P]{}, fmt.Errorf("%s latest %q: %w", t.codec.table, key, err)
	}
	return rec, nil
}

// Append inserts rec and trims the key's history when a cap is configured.
func (t *Table[P]) Append(ctx context.Context, rec cache.Record[P]) error {
	values, err := t.codec.encode(rec)
	if err != nil {
		return fmt.Errorf("%s encode: %w", t.codec.table, err)
	}

	cols := append([]string{t.codec.keyColumn, "timestamp"}, t.codec.columns...)
	args := append([]any{rec.Key, rec.Timestamp.UnixNano()}, values...)
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		t.codec.table, strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))

	if _, err := t.db.db.ExecContext(ctx, t.db.rebind(query), args...); err != nil {
		return fmt.Errorf("%s insert: %w", t.codec.table, err)
	}

	if t.db.maxHistory > 0 {
		trim := fmt.Sprintf(`DELETE FROM %[1]s WHERE %[2]s = ? AND id NOT IN (
    SELECT id FROM %[1]s WHERE %[2]s = ? ORDER BY timestamp DESC, id DESC LIMIT ?
)`, t.codec.table, t.codec.keyColumn)
		if _, err := t.db.db.ExecContext(ctx, t.db.rebind(trim), rec.Key, rec.Key, t.db.maxHistory); err != nil {
			return fmt.Errorf("%s trim history: %w", t.codec.table, err)
		}
	}
	return nil
}

// EvictOlderThan deletes every row written before cutoff.
func (t *Table[P]) EvictOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE timestamp < ?`, t.codec.table)
	res, err := t.db.db.ExecContext(ctx, t.db.rebind(query), cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("%s evict: %w", t.codec.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s evict: %w", t.codec.table, err)
	}
	return n, nil
}

// LatestAll returns the newest record of every key, ordered by key.
func (t *Table[P]) LatestAll(ctx context.Context) ([]cache.Record[P], error) {
	query := fmt.Sprintf(`SELECT %[1]s FROM %[2]s r WHERE r.id = (
    SELECT i.id FROM %[2]s i WHERE i.%[3]s = r.%[3]s ORDER BY i.timestamp DESC, i.id DESC LIMIT 1
) ORDER BY r.%[3]s`, t.selectColumns(), t.codec.table, t.codec.keyColumn)

	rows, err := t.db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s latest all: %w", t.codec.table, err)
	}
	defer rows.Close()

	out := []cache.Record[P]{}
	for rows.Next() {
		rec, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s latest all: %w", t.codec.table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s latest all: %w", t.codec.table, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (t *Table[P]) scan(row rowScanner) (cache.Record[P], error) {
	var (
		key string
		ts  int64
	)
	dest, build := t.codec.targets()
	if err := row.Scan(append([]any{&key, &ts}, dest...)...); err != nil {
		return cache.Record[P]{}, err
	}

	payload, err := build(key)
	if err != nil {
		return cache.Record[P]{}, err
	}
	return cache.Record[P]{
		Key:       key,
		Payload:   payload,
		Timestamp: time.Unix(0, ts).UTC(),
	}, nil
}

var tideCodec = codec[tide.Reading]{
	table:     "tide_records",
	keyColumn: "station_id",
	columns:   []string{"station_name", "height", "status", "extremes"},
	encode: func(rec cache.Record[tide.Reading]) ([]any, error) {
		extremes, err := json.Marshal(rec.Payload.Extremes)
		if err != nil {
			return nil, err
		}
		return []any{rec.Payload.StationName, rec.Payload.Height, string(rec.Payload.Status), string(extremes)}, nil
	},
	targets: func() ([]any, func(string) (tide.Reading, error)) {
		var (
			r        tide.Reading
			status   string
			extremes string
		)
		dest := []any{&r.StationName, &r.Height, &status, &extremes}
		return dest, func(key string) (tide.Reading, error) {
			r.StationID = key
			r.Status = tide.Phase(status)
			if err := json.Unmarshal([]byte(extremes), &r.Extremes); err != nil {
				return tide.Reading{}, fmt.Errorf("decode extremes: %w", err)
			}
			return r, nil
		}
	},
}

var weatherCodec = codec[weather.Conditions]{
	table:     "weather_records",
	keyColumn: "location_key",
	columns:   []string{"latitude", "longitude", "wind_speed", "precipitation", "providers"},
	encode: func(rec cache.Record[weather.Conditions]) ([]any, error) {
		providers, err := json.Marshal(rec.Payload.Providers)
		if err != nil {
			return nil, err
		}
		c := rec.Payload
		return []any{c.Location.Latitude, c.Location.Longitude, c.WindSpeed, c.Precipitation, string(providers)}, nil
	},
	targets: func() ([]any, func(string) (weather.Conditions, error)) {
		var (
			c         weather.Conditions
			loc       geo.Coordinate
			providers string
		)
		dest := []any{&loc.Latitude, &loc.Longitude, &c.WindSpeed, &c.Precipitation, &providers}
		return dest, func(string) (weather.Conditions, error) {
			c.Location = loc
			if err := json.Unmarshal([]byte(providers), &c.Providers); err != nil {
				return weather.Conditions{}, fmt.Errorf("decode providers: %w", err)
			}
			return c, nil
		}
	},
}

var (
	_ cache.Store[tide.Reading]       = (*Table[tide.Reading])(nil)
	_ cache.Store[weather.Conditions] = (*Table[weather.Conditions])(nil)
	_ cache.Store[tide.Reading]       = (*MemoryStore[tide.Reading])(nil)
)
