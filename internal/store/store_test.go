package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tempo/internal/domain"
)

type record struct {
	ID    string  `json:"id"`
	Price float64 `json:"price"`
}

// exerciseAdapter runs the behaviour every Adapter backend must share.
func exerciseAdapter(t *testing.T, a Adapter[*record]) {
	t.Helper()
	ctx := context.Background()

	if err := a.WaitForInit(ctx); err != nil {
		t.Fatalf("WaitForInit returned error: %v", err)
	}
	if err := a.WaitForInit(ctx); err != nil {
		t.Fatalf("second WaitForInit returned error: %v", err)
	}

	has, err := a.HasValue(ctx, "sma:AAPL")
	if err != nil || has {
		t.Fatalf("HasValue on empty store = %v, %v; want false, nil", has, err)
	}
	if _, err := a.ReadValue(ctx, "sma:AAPL"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ReadValue on empty store returned %v, want ErrNotFound", err)
	}

	// Writing the same record twice then reading yields that record.
	want := &record{ID: "abc", Price: 101.5}
	for i := 0; i < 2; i++ {
		if err := a.WriteValue(ctx, "sma:AAPL", want); err != nil {
			t.Fatalf("WriteValue #%d returned error: %v", i+1, err)
		}
	}
	got, err := a.ReadValue(ctx, "sma:AAPL")
	if err != nil {
		t.Fatalf("ReadValue returned error: %v", err)
	}
	if got == nil || *got != *want {
		t.Fatalf("ReadValue = %+v, want %+v", got, want)
	}

	// Overwrite replaces.
	if err := a.WriteValue(ctx, "sma:AAPL", &record{ID: "def", Price: 99}); err != nil {
		t.Fatalf("WriteValue returned error: %v", err)
	}
	got, _ = a.ReadValue(ctx, "sma:AAPL")
	if got == nil || got.ID != "def" {
		t.Fatalf("ReadValue after overwrite = %+v, want id def", got)
	}

	// Deleting twice does not fail and leaves a tombstone.
	for i := 0; i < 2; i++ {
		if err := a.DeleteValue(ctx, "sma:AAPL"); err != nil {
			t.Fatalf("DeleteValue #%d returned error: %v", i+1, err)
		}
	}
	has, err = a.HasValue(ctx, "sma:AAPL")
	if err != nil || !has {
		t.Fatalf("HasValue after delete = %v, %v; want tombstone", has, err)
	}
	got, err = a.ReadValue(ctx, "sma:AAPL")
	if err != nil {
		t.Fatalf("ReadValue of tombstone returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("ReadValue of tombstone = %+v, want nil", got)
	}

	// Keys are independent.
	if err := a.DeleteValue(ctx, "never:written"); err != nil {
		t.Fatalf("DeleteValue of unknown key returned error: %v", err)
	}
	if err := a.WriteValue(ctx, "other:MSFT", &record{ID: "x"}); err != nil {
		t.Fatalf("WriteValue returned error: %v", err)
	}
	got, _ = a.ReadValue(ctx, "sma:AAPL")
	if got != nil {
		t.Fatalf("writing another key changed sma:AAPL to %+v", got)
	}
}

func TestMemoryAdapter(t *testing.T) {
	exerciseAdapter(t, NewMemory[*record]())
}

func TestFileAdapter(t *testing.T) {
	dir := t.TempDir()
	exerciseAdapter(t, NewFile[*record](dir, EntitySignal))

	// Tombstones are explicit nulls on disk and no temp files are left.
	data, err := os.ReadFile(filepath.Join(dir, EntitySignal, "sma%3AAAPL.json"))
	if err != nil {
		t.Fatalf("reading record file: %v", err)
	}
	if strings.TrimSpace(string(data)) != "null" {
		t.Errorf("tombstone content = %q, want null", data)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, EntitySignal))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestFileAdapterKeysDoNotCollide(t *testing.T) {
	a := NewFile[*record](t.TempDir(), EntitySignal)
	ctx := context.Background()

	keys := []string{"a:b", "a_b", "a/b", "a%3Ab", "a\\b"}
	for _, k := range keys {
		if err := a.WriteValue(ctx, k, &record{ID: k}); err != nil {
			t.Fatalf("WriteValue(%q) returned error: %v", k, err)
		}
	}
	for _, k := range keys {
		got, err := a.ReadValue(ctx, k)
		if err != nil {
			t.Fatalf("ReadValue(%q) returned error: %v", k, err)
		}
		if got == nil || got.ID != k {
			t.Errorf("ReadValue(%q) = %+v, want the record written under that key", k, got)
		}
	}
	entries, _ := os.ReadDir(a.dir)
	if len(entries) != len(keys) {
		t.Errorf("store dir holds %d files, want %d", len(entries), len(keys))
	}
}

func TestFileAdapterSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := NewFile[*record](dir, EntitySignal)
	if err := first.WriteValue(ctx, "sma:AAPL", &record{ID: "persisted"}); err != nil {
		t.Fatalf("WriteValue returned error: %v", err)
	}

	second := NewFile[*record](dir, EntitySignal)
	if err := second.WaitForInit(ctx); err != nil {
		t.Fatalf("WaitForInit returned error: %v", err)
	}
	got, err := second.ReadValue(ctx, "sma:AAPL")
	if err != nil || got == nil || got.ID != "persisted" {
		t.Fatalf("ReadValue after reopen = %+v, %v; want persisted", got, err)
	}
}

func TestSQLiteAdapter(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "tempo.db"))
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	defer db.Close()

	exerciseAdapter(t, NewSQLite[*record](db, EntitySignal))

	// Entities sharing a database do not see each other's keys.
	risk := NewSQLite[*record](db, EntityRisk)
	if err := risk.WaitForInit(context.Background()); err != nil {
		t.Fatalf("WaitForInit returned error: %v", err)
	}
	has, err := risk.HasValue(context.Background(), "other:MSFT")
	if err != nil || has {
		t.Fatalf("HasValue across entities = %v, %v; want false", has, err)
	}
}

func TestPostgresAdapter(t *testing.T) {
	url := os.Getenv("TEMPO_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEMPO_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := NewPostgresPool(ctx, url, DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPostgresPool returned error: %v", err)
	}
	defer pool.Close()

	entity := "test_" + time.Now().Format("150405.000000")
	exerciseAdapter(t, NewPostgres[*record](pool, entity))
	_, _ = pool.Exec(ctx, `delete from kv_store where entity = $1`, entity)
}

func TestWithDefaultSSLMode(t *testing.T) {
	got := withDefaultSSLMode("postgres://u:p@localhost:5432/tempo")
	if !strings.Contains(got, "sslmode=prefer") {
		t.Errorf("withDefaultSSLMode = %q, want sslmode=prefer", got)
	}
	got = withDefaultSSLMode("postgres://localhost/tempo?sslmode=disable")
	if !strings.Contains(got, "sslmode=disable") || strings.Contains(got, "prefer") {
		t.Errorf("withDefaultSSLMode overrode explicit sslmode: %q", got)
	}
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	ts := time.Date(2024, 6, 15, 13, 45, 0, 0, time.UTC)
	got := ps.candlePath("btcusd", domain.OneMinute, ts)

	want := filepath.Join("/data", "candles", "BTCUSD", "1m", "2024-06-15.parquet")
	if got != want {
		t.Errorf("candlePath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestParquetStoreWriteReadCandles(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 23, 58, 0, 0, time.UTC)
	var candles []domain.Candle
	for i := 0; i < 4; i++ {
		p := 100 + float64(i)
		candles = append(candles, domain.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      p, High: p + 1, Low: p - 1, Close: p, Volume: 10,
		})
	}

	if err := ps.WriteCandles(ctx, "BTCUSD", domain.OneMinute, candles); err != nil {
		t.Fatalf("WriteCandles returned error: %v", err)
	}

	// Rewriting one candle replaces it rather than duplicating it.
	updated := candles[1]
	updated.Close = 500
	if err := ps.WriteCandles(ctx, "BTCUSD", domain.OneMinute, []domain.Candle{updated}); err != nil {
		t.Fatalf("WriteCandles returned error: %v", err)
	}

	got, err := ps.ReadCandles(ctx, "BTCUSD", domain.OneMinute, base, base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("ReadCandles returned error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("ReadCandles returned %d candles across the day boundary, want 4", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Fatalf("candles not sorted: %v then %v", got[i-1].Timestamp, got[i].Timestamp)
		}
	}
	if got[1].Close != 500 {
		t.Errorf("merged candle close = %v, want 500", got[1].Close)
	}

	sub, err := ps.ReadCandles(ctx, "BTCUSD", domain.OneMinute, base.Add(time.Minute), base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("ReadCandles returned error: %v", err)
	}
	if len(sub) != 2 {
		t.Errorf("bounded ReadCandles returned %d candles, want 2", len(sub))
	}

	none, err := ps.ReadCandles(ctx, "ETHUSD", domain.OneMinute, base, base.Add(time.Hour))
	if err != nil || len(none) != 0 {
		t.Errorf("ReadCandles for unknown symbol = %d candles, %v; want 0, nil", len(none), err)
	}
}

func TestParquetStoreConcurrentWrites(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	const writers, perWriter = 8, 20
	var wg sync.WaitGroup
	errs := make(chan error, writers*2)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			candles := make([]domain.Candle, 0, perWriter)
			for i := 0; i < perWriter; i++ {
				ts := day.Add(time.Duration(w*perWriter+i) * time.Minute)
				candles = append(candles, domain.Candle{Timestamp: ts, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1})
			}
			if err := ps.WriteCandles(ctx, "AAPL", domain.OneMinute, candles); err != nil {
				errs <- err
			}
			if _, err := ps.ReadCandles(ctx, "AAPL", domain.OneMinute, day, day.Add(24*time.Hour-time.Minute)); err != nil {
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent write or read failed: %v", err)
	}

	got, err := ps.ReadCandles(ctx, "AAPL", domain.OneMinute, day, day.Add(24*time.Hour-time.Minute))
	if err != nil {
		t.Fatalf("ReadCandles returned error: %v", err)
	}
	if len(got) != writers*perWriter {
		t.Errorf("ReadCandles returned %d candles, want %d", len(got), writers*perWriter)
	}
	entries, _ := os.ReadDir(filepath.Dir(ps.candlePath("AAPL", domain.OneMinute, day)))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}
