package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/coastal-conditions/internal/cache"
	"github.com/i474232898/coastal-conditions/internal/geo"
	"github.com/i474232898/coastal-conditions/internal/tide"
	"github.com/i474232898/coastal-conditions/internal/weather"
)

func openSQLite(t *testing.T, maxHistory int) *DB {
	t.Helper()

	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "coastal.db"), maxHistory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// databases returns SQLite always and Postgres when TEST_DATABASE_URL is set.
func databases(t *testing.T) map[string]*DB {
	t.Helper()

	dbs := map[string]*DB{"sqlite": openSQLite(t, 0)}

	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		db, err := OpenPostgres(context.Background(), dsn, 0)
		require.NoError(t, err)
		_, err = db.db.Exec(`TRUNCATE tide_records, weather_records`)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		dbs["postgres"] = db
	}
	return dbs
}

func tideRecord(id string, height float64, at time.Time) cache.Record[tide.Reading] {
	return cache.Record[tide.Reading]{
		Key: id,
		Payload: tide.Reading{
			StationID:   id,
			StationName: "Station " + id,
			Height:      height,
			Status:      tide.PhaseRising,
			Extremes: tide.Extremes{
				High: []tide.Extreme{{Time: at.Add(3 * time.Hour), Height: 1.8}},
				Low:  []tide.Extreme{},
			},
		},
		Timestamp: at,
	}
}

func TestTideRecordsRoundTrip(t *testing.T) {
	for name, db := range databases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tbl := db.TideRecords()

			_, err := tbl.Latest(ctx, "9414290")
			assert.ErrorIs(t, err, cache.ErrNotFound)

			older := tideRecord("9414290", 0.5, base)
			newer := tideRecord("9414290", 0.9, base.Add(time.Hour))
			require.NoError(t, tbl.Append(ctx, newer))
			require.NoError(t, tbl.Append(ctx, older))

			got, err := tbl.Latest(ctx, "9414290")
			require.NoError(t, err)
			assert.Equal(t, newer, got)
		})
	}
}

func TestTideRecordsTieGoesToLastInsert(t *testing.T) {
	ctx := context.Background()
	tbl := openSQLite(t, 0).TideRecords()

	require.NoError(t, tbl.Append(ctx, tideRecord("a", 1, base)))
	require.NoError(t, tbl.Append(ctx, tideRecord("a", 2, base)))

	got, err := tbl.Latest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Payload.Height)
}

func TestEvictOlderThanSpansKeys(t *testing.T) {
	for name, db := range databases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tbl := db.TideRecords()

			require.NoError(t, tbl.Append(ctx, tideRecord("a", 1, base.Add(-25*time.Hour))))
			require.NoError(t, tbl.Append(ctx, tideRecord("b", 2, base.Add(-26*time.Hour))))
			require.NoError(t, tbl.Append(ctx, tideRecord("a", 3, base)))

			n, err := tbl.EvictOlderThan(ctx, base.Add(-cache.RetentionHorizon))
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			_, err = tbl.Latest(ctx, "b")
			assert.ErrorIs(t, err, cache.ErrNotFound)

			all, err := tbl.LatestAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, 3.0, all[0].Payload.Height)
		})
	}
}

func TestWeatherRecordsLatestAll(t *testing.T) {
	for name, db := range databases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tbl := db.WeatherRecords()

			all, err := tbl.LatestAll(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)

			loc := geo.Coordinate{Latitude: 37.6138, Longitude: -122.4869}
			manual := cache.Record[weather.Conditions]{
				Key:       loc.String(),
				Payload:   weather.Conditions{Location: loc, WindSpeed: 12, Precipitation: 0.5},
				Timestamp: base.Add(time.Minute),
			}
			fetched := cache.Record[weather.Conditions]{
				Key: "gh:9q8yy",
				Payload: weather.Conditions{
					Location:  geo.Coordinate{Latitude: 37.77, Longitude: -122.42},
					WindSpeed: 7,
					Providers: []weather.ProviderContribution{{ProviderName: "openmeteo", Timestamp: base}},
				},
				Timestamp: base,
			}

			require.NoError(t, tbl.Append(ctx, fetched))
			require.NoError(t, tbl.Append(ctx, cache.Record[weather.Conditions]{Key: loc.String(), Payload: weather.Conditions{Location: loc}, Timestamp: base}))
			require.NoError(t, tbl.Append(ctx, manual))

			all, err = tbl.LatestAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, []cache.Record[weather.Conditions]{manual, fetched}, all)
		})
	}
}

func TestMaxHistoryTrimsPerKey(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t, 2)
	tbl := db.TideRecords()

	for i := 0; i < 4; i++ {
		require.NoError(t, tbl.Append(ctx, tideRecord("a", float64(i), base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, tbl.Append(ctx, tideRecord("b", 9, base)))

	var count int
	require.NoError(t, db.db.QueryRow(`SELECT COUNT(*) FROM tide_records WHERE station_id = 'a'`).Scan(&count))
	assert.Equal(t, 2, count)

	got, err := tbl.Latest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Payload.Height)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "coastal.db")

	db, err := OpenSQLite(ctx, path, 0)
	require.NoError(t, err)
	require.NoError(t, db.TideRecords().Append(ctx, tideRecord("a", 1, base)))
	require.NoError(t, db.Close())

	db, err = OpenSQLite(ctx, path, 0)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "sqlite", db.Driver())
	_, err = db.TideRecords().Latest(ctx, "a")
	assert.NoError(t, err)

	var versions int
	require.NoError(t, db.db.QueryRow(`SELECT COUNT(*) FROM schema_versions`).Scan(&versions))
	assert.Equal(t, len(migrations), versions)
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: dialectPostgres}
	lite := &DB{dialect: dialectSQLite}

	q := `SELECT a FROM t WHERE b = ? AND c < ? LIMIT ?`
	assert.Equal(t, `SELECT a FROM t WHERE b = $1 AND c < $2 LIMIT $3`, pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}
