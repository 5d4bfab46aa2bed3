package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wahabsharif/premierspaces-app/backend/internal/db"
	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type testEnv struct {
	cache *Cache
	db    *db.DB
	clock *fakeClock
}

func newTestCache(t *testing.T, opts Options) *testEnv {
	t.Helper()
	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("db.Open() failed: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	stmts := db.NewStmtCache(database.DB)
	t.Cleanup(func() {
		stmts.Close()
		database.Close()
	})

	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	opts.Clock = clock.Now
	return &testEnv{cache: New(database, stmts, opts), db: database, clock: clock}
}

func (e *testEnv) rowCount(t *testing.T) int {
	t.Helper()
	var n int
	if err := e.db.QueryRow("SELECT COUNT(*) FROM cache_entries").Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}

// =====================================================
// Set / Get
// =====================================================

// TestSet_upsert verifies one row per key, created_at preserved and updated_at advanced.
func TestSet_upsert(t *testing.T) {
	ctx := context.Background()
	env := newTestCache(t, Options{})

	id1, err := env.cache.Set(ctx, "jobsCache_u1", []string{"a"})
	if err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	first, _ := env.cache.Get(ctx, "jobsCache_u1")

	env.clock.Advance(time.Minute)
	id2, err := env.cache.Set(ctx, "jobsCache_u1", []string{"b"})
	if err != nil {
		t.Fatalf("second Set() failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("Set() ids = %d, %d, want equal for upsert", id1, id2)
	}
	if env.rowCount(t) != 1 {
		t.Errorf("rows = %d, want 1", env.rowCount(t))
	}

	second, err := env.cache.Get(ctx, "jobsCache_u1")
	if err != nil || second == nil {
		t.Fatalf("Get() = %v, %v", second, err)
	}
	if second.CreatedAt != first.CreatedAt {
		t.Errorf("CreatedAt changed: %d -> %d", first.CreatedAt, second.CreatedAt)
	}
	if second.UpdatedAt <= first.UpdatedAt {
		t.Errorf("UpdatedAt did not advance: %d -> %d", first.UpdatedAt, second.UpdatedAt)
	}
	var got []string
	second.Decode(&got)
	if len(got) != 1 || got[0] != "b" {
		t.Errorf("value = %v, want [b]", got)
	}
}

// TestSet_defaultTTL verifies the 24h fallback and the never-expire sentinel.
func TestSet_defaultTTL(t *testing.T) {
	ctx := context.Background()
	env := newTestCache(t, Options{})
	now := env.clock.Now().UnixMilli()

	env.cache.Set(ctx, "default", 1)
	env.cache.Set(ctx, "never", 1, NeverExpires())
	env.cache.Set(ctx, "zero", 1, ExpiresIn(0))
	env.cache.Set(ctx, "short", 1, ExpiresIn(time.Second))

	tests := map[string]int64{
		"default": now + DefaultTTL.Milliseconds(),
		"never":   0,
		"zero":    0,
		"short":   now + 1000,
	}
	for key, want := range tests {
		e, err := env.cache.Get(ctx, key)
		if err != nil || e == nil {
			t.Fatalf("Get(%s) = %v, %v", key, e, err)
		}
		if e.ExpiresAt != want {
			t.Errorf("%s ExpiresAt = %d, want %d", key, e.ExpiresAt, want)
		}
	}
}

// TestGet_expiry verifies entries are visible through their expiry instant and hidden after.
func TestGet_expiry(t *testing.T) {
	ctx := context.Background()
	env := newTestCache(t, Options{})

	env.cache.Set(ctx, "ttl", "v", ExpiresIn(time.Minute))
	env.cache.Set(ctx, "forever", "v", NeverExpires())

	// Populate the memory layer
	if e, _ := env.cache.Get(ctx, "ttl"); e == nil {
		t.Fatal("Get() before expiry returned nil")
	}

	env.clock.Advance(time.Minute)
	if e, _ := env.cache.Get(ctx, "ttl"); e == nil {
		t.Error("Get() at the expiry instant should still return the entry")
	}

	env.clock.Advance(time.Millisecond)
	if e, _ := env.cache.Get(ctx, "ttl"); e != nil {
		t.Error("Get() after expiry should return nil even when held in memory")
	}

	env.clock.Advance(365 * 24 * time.Hour)
	if e, _ := env.cache.Get(ctx, "forever"); e == nil {
		t.Error("never-expiring entry should always be returned")
	}

	all, err := env.cache.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(all) != 1 || all[0].Key != "forever" {
		t.Errorf("GetAll() = %d entries, want only forever", len(all))
	}
}

// TestGet_missing verifies nil without error for unknown keys.
func TestGet_missing(t *testing.T) {
	env := newTestCache(t, Options{})
	e, err := env.cache.Get(context.Background(), "nope")
	if e != nil || err != nil {
		t.Errorf("Get(missing) = %v, %v, want nil, nil", e, err)
	}
}

// TestGet_legacyEnvelope verifies rows using the old payload key are unwrapped.
func TestGet_legacyEnvelope(t *testing.T) {
	ctx := context.Background()
	env := newTestCache(t, Options{})

	_, err := env.db.Exec(`INSERT INTO cache_entries (key, value, created_at, updated_at, expires_at)
		VALUES ('old', '{"payload": {"n": 3}}', 1, 1, 0)`)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	v, ok, err := GetValue[map[string]int](ctx, env.cache, "old")
	if err != nil || !ok || v["n"] != 3 {
		t.Errorf("GetValue(old) = %v, %v, %v", v, ok, err)
	}
}

// TestTypedValues verifies the typed helpers round trip.
func TestTypedValues(t *testing.T) {
	ctx := context.Background()
	env := newTestCache(t, Options{})

	type item struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	in := []item{{"1", "Plumbing"}, {"2", "Electrical"}}
	if _, err := SetValue(ctx, env.cache, "jobTypesCache_u1", in); err != nil {
		t.Fatalf("SetValue() failed: %v", err)
	}

	out, ok, err := GetValue[[]item](ctx, env.cache, "jobTypesCache_u1")
	if err != nil || !ok {
		t.Fatalf("GetValue() = %v, %v", ok, err)
	}
	if len(out) != 2 || out[1].Name != "Electrical" {
		t.Errorf("GetValue() = %+v", out)
	}

	var raw string
	env.db.QueryRow("SELECT value FROM cache_entries WHERE key = 'jobTypesCache_u1'").Scan(&raw)
	if raw[:9] != `{"value":` {
		t.Errorf("stored envelope = %s, want {\"value\":...}", raw)
	}

	_, ok, _ = GetValue[[]item](ctx, env.cache, "absent")
	if ok {
		t.Error("GetValue(absent) should report ok=false")
	}
}

// =====================================================
// Batch
// =====================================================

// TestSetBatch_chunks verifies batches larger than the chunk size persist fully.
func TestSetBatch_chunks(t *testing.T) {
	ctx := context.Background()
	env := newTestCache(t, Options{ChunkSize: 7})

	var entries []Entry
	for i := 0; i < 30; i++ {
		entries = append(entries, Entry{Key: "k" + string(rune('A'+i)), Value: i})
	}
	n, err := env.cache.SetBatch(ctx, entries)
	if err != nil {
		t.Fatalf("SetBatch() failed: %v", err)
	}
	if n != 30 || env.rowCount(t) != 30 {
		t.Errorf("SetBatch() = %d, rows = %d, want 30", n, env.rowCount(t))
	}
}

// TestSetBatch_allOrNothing verifies a failing item leaves the table unchanged.
func TestSetBatch_allOrNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestCache(t, Options{ChunkSize: 10})

	env.cache.Set(ctx, "existing", "before")

	var entries []Entry
	for i := 0; i < 25; i++ {
		entries = append(entries, Entry{Key: "batch" + string(rune('a'+i)), Value: i})
	}
	entries = append(entries, Entry{Key: "existing", Value: "after"})
	// Fails in the third chunk, after two chunks were written in the transaction
	entries[22].Value = make(chan int)

	n, err := env.cache.SetBatch(ctx, entries)
	if err == nil {
		t.Fatal("SetBatch() with an unserializable value should fail")
	}
	if n != 0 {
		t.Errorf("SetBatch() count = %d, want 0", n)
	}
	if env.rowCount(t) != 1 {
		t.Errorf("rows = %d, want 1 (unchanged)", env.rowCount(t))
	}
	v, _, _ := GetValue[string](ctx, env.cache, "existing")
	if v != "before" {
		t.Errorf("existing = %q, want before", v)
	}
}

// =====================================================
// Prefix / Delete
// =====================================================

// TestPrefixOperations verifies prefix reads skip expired rows while prefix deletes include them.
func TestPrefixOperations(t *testing.T) {
	ctx := context.Background()
	env := newTestCache(t, Options{})

	env.cache.Set(ctx, "jobsCache_u1", 1)
	env.cache.Set(ctx, "jobsCache_u2", 2, ExpiresIn(time.Second))
	env.cache.Set(ctx, "jobs_other", 3)
	env.cache.Set(ctx, "categoryCache_u1", 4)
	env.clock.Advance(2 * time.Second)

	got, err := env.cache.GetByPrefix(ctx, "jobsCache_")
	if err != nil {
		t.Fatalf("GetByPrefix() failed: %v", err)
	}
	if len(got) != 1 || got[0].Key != "jobsCache_u1" {
		t.Errorf("GetByPrefix() = %d entries", len(got))
	}

	keys, _ := env.cache.Keys(ctx, "jobsCache_")
	if len(keys) != 2 {
		t.Errorf("Keys() = %v, want expired keys included", keys)
	}

	n, err := env.cache.DeleteByPrefix(ctx, "jobsCache_")
	if err != nil || n != 2 {
		t.Errorf("DeleteByPrefix() = %d, %v, want 2", n, err)
	}
	if env.rowCount(t) != 2 {
		t.Errorf("rows = %d, want 2", env.rowCount(t))
	}
}

// TestPrefix_likeCharacters verifies wildcard characters in prefixes match literally.
func TestPrefix_likeCharacters(t *testing.T) {
	ctx := context.Background()
	env := newTestCache(t, Options{})

	env.cache.Set(ctx, "a_%x", 1)
	env.cache.Set(ctx, "abcx", 2)

	got, _ := env.cache.GetByPrefix(ctx, "a_%")
	if len(got) != 1 || got[0].Key != "a_%x" {
		t.Errorf("GetByPrefix(a_%%) = %d entries, want 1 literal match", len(got))
	}
}

// TestDelete verifies single and batch deletes report counts.
func TestDelete(t *testing.T) {
	ctx := context.Background()
	env := newTestCache(t, Options{ChunkSize: 2})

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		env.cache.Set(ctx, k, k)
	}
	env.cache.Get(ctx, "a")

	if n, _ := env.cache.Delete(ctx, "a"); n != 1 {
		t.Errorf("Delete(a) = %d, want 1", n)
	}
	if e, _ := env.cache.Get(ctx, "a"); e != nil {
		t.Error("deleted key should not be served from memory")
	}
	if n, _ := env.cache.Delete(ctx, "a"); n != 0 {
		t.Errorf("second Delete(a) = %d, want 0", n)
	}

	n, err := env.cache.DeleteBatch(ctx, []string{"b", "c", "d", "zz"})
	if err != nil || n != 3 {
		t.Errorf("DeleteBatch() = %d, %v, want 3", n, err)
	}

	if err := env.cache.Clear(ctx); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	if env.rowCount(t) != 0 {
		t.Errorf("rows after Clear = %d", env.rowCount(t))
	}
}

// =====================================================
// Cleanup / failures
// =====================================================

// TestCleanExpired verifies only rows with 0 < expires_at < now are removed.
func TestCleanExpired(t *testing.T) {
	ctx := context.Background()
	env := newTestCache(t, Options{})

	env.cache.Set(ctx, "old", 1, ExpiresIn(time.Second))
	env.cache.Set(ctx, "fresh", 1, ExpiresIn(time.Hour))
	env.cache.Set(ctx, "forever", 1, NeverExpires())
	env.clock.Advance(time.Minute)

	n, err := env.cache.CleanExpired(ctx)
	if err != nil {
		t.Fatalf("CleanExpired() failed: %v", err)
	}
	if n != 1 || env.rowCount(t) != 2 {
		t.Errorf("CleanExpired() = %d, rows = %d, want 1 and 2", n, env.rowCount(t))
	}
}

// TestCleanExpired_notReady verifies the sweep is a no-op on a closed database.
func TestCleanExpired_notReady(t *testing.T) {
	env := newTestCache(t, Options{})
	env.db.Close()

	n, err := env.cache.CleanExpired(context.Background())
	if n != 0 || err != nil {
		t.Errorf("CleanExpired() on closed DB = %d, %v, want 0, nil", n, err)
	}
}

// TestStorageError_notifies verifies failures are reported then returned.
func TestStorageError_notifies(t *testing.T) {
	var notified []string
	env := newTestCache(t, Options{
		Notifier: NotifierFunc(func(op string, err error) { notified = append(notified, op) }),
	})
	env.db.Close()

	_, err := env.cache.Set(context.Background(), "k", 1)
	if !apperrors.Is(err, apperrors.ErrStorage) {
		t.Errorf("Set() on closed DB error = %v, want STORAGE_ERROR", err)
	}
	if _, err := env.cache.GetAll(context.Background()); !apperrors.Is(err, apperrors.ErrStorage) {
		t.Errorf("GetAll() on closed DB error = %v, want STORAGE_ERROR", err)
	}
	if len(notified) != 2 || notified[0] != "set" {
		t.Errorf("notified = %v, want [set get_all]", notified)
	}
}

// TestSet_validation verifies bad input is rejected before storage.
func TestSet_validation(t *testing.T) {
	env := newTestCache(t, Options{})
	if _, err := env.cache.Set(context.Background(), "", 1); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Set(\"\") error = %v, want VALIDATION_ERROR", err)
	}
	if _, err := env.cache.Set(context.Background(), "k", func() {}); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Set(func) error = %v, want VALIDATION_ERROR", err)
	}
}

// TestKeyOwner tests user id extraction from per-user keys.
func TestKeyOwner(t *testing.T) {
	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{UserKey(PrefixJobs, "u1"), "u1", true},
		{UserKey(PrefixCategories, "42"), "42", true},
		{CostsKey("job_9", "u2"), "u2", true},
		{"costsCache_", "", false},
		{"jobsCache_", "", false},
		{"settings", "", false},
	}
	for _, tt := range tests {
		got, ok := KeyOwner(tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("KeyOwner(%q) = %q, %v; want %q, %v", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
}
