package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"dailybot/internal/storage"
	"dailybot/pkg/logx"
)

// memDocStore is an in-memory DocStore for store tests.
type memDocStore struct {
	mu     sync.Mutex
	body   []byte
	writes int
}

func (m *memDocStore) Read(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.body == nil {
		return nil, storage.ErrNoDocument
	}
	out := make([]byte, len(m.body))
	copy(out, m.body)
	return out, nil
}

func (m *memDocStore) Write(ctx context.Context, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.body = append([]byte(nil), body...)
	m.writes++
	return nil
}

func (m *memDocStore) Watch(ctx context.Context, onChange func()) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *memDocStore) Close() error { return nil }

func (m *memDocStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memDocStore) seed(t *testing.T, doc Document) {
	t.Helper()
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("seed marshal: %v", err)
	}
	m.mu.Lock()
	m.body = b
	m.mu.Unlock()
}

func newTestStore(t *testing.T, docs *memDocStore, now time.Time) *Store {
	t.Helper()
	s := NewStore(docs, BuiltIn(), logx.Nop())
	s.SetClock(func() time.Time { return now })
	return s
}

func TestStoreSeedsDefaultsOnFirstLoad(t *testing.T) {
	t.Parallel()
	docs := &memDocStore{}
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, docs, now)

	doc, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if doc.Timezone != "Asia/Makassar" || doc.DefaultVersion != "2024-05-wita" {
		t.Fatalf("unexpected seeded doc: %+v", doc)
	}
	if doc.UpdatedBy != UpdatedBySystem {
		t.Fatalf("UpdatedBy = %q, want system", doc.UpdatedBy)
	}
	if docs.writeCount() != 1 {
		t.Fatalf("writes = %d, want 1", docs.writeCount())
	}

	// Second load reads back without another write.
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if docs.writeCount() != 1 {
		t.Fatalf("writes after reload = %d, want 1", docs.writeCount())
	}
}

func TestStoreAutoUpgradePersistsOnce(t *testing.T) {
	t.Parallel()
	docs := &memDocStore{}
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, docs, now)

	stale := BuiltIn().document()
	stale.DefaultVersion = "2023-01-old"
	docs.seed(t, stale)

	doc, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if doc.DefaultVersion != "2024-05-wita" {
		t.Fatalf("version = %q, want upgraded", doc.DefaultVersion)
	}
	if docs.writeCount() != 1 {
		t.Fatalf("writes = %d, want 1 (upgrade persisted)", docs.writeCount())
	}
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if docs.writeCount() != 1 {
		t.Fatalf("upgrade must not repeat, writes = %d", docs.writeCount())
	}
}

func TestStoreOperatorEditSticksAcrossLoads(t *testing.T) {
	t.Parallel()
	docs := &memDocStore{}
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, docs, now)

	if _, err := s.SetDailyTimes(context.Background(), map[string]*string{"1": strp("09:15")}, "alice"); err != nil {
		t.Fatalf("SetDailyTimes error: %v", err)
	}

	doc, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := doc.DailyTimes["1"]; got == nil || *got != "09:15" {
		t.Fatalf("weekday 1 = %v, want 09:15 (edit must survive auto-upgrade check)", got)
	}
	if doc.UpdatedBy != "alice" {
		t.Fatalf("UpdatedBy = %q, want alice", doc.UpdatedBy)
	}
}

func TestStoreUpdateValidation(t *testing.T) {
	t.Parallel()
	docs := &memDocStore{}
	s := newTestStore(t, docs, time.Now())
	ctx := context.Background()

	tests := []struct {
		name  string
		patch Patch
	}{
		{"bad weekday key", Patch{DailyTimes: map[string]*string{"8": strp("10:00")}}},
		{"bad time", Patch{DailyTimes: map[string]*string{"1": strp("25:00")}}},
		{"bad timezone", Patch{Timezone: strp("Not/AZone")}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Update(ctx, tt.patch); !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
}

func TestStoreAddOverrideUpdatesInPlace(t *testing.T) {
	t.Parallel()
	docs := &memDocStore{}
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, docs, now)
	ctx := context.Background()

	doc, err := s.AddOverride(ctx, "2024-06-05", "11:00", "town hall", "")
	if err != nil {
		t.Fatalf("AddOverride error: %v", err)
	}
	if len(doc.ManualOverrides) != 1 {
		t.Fatalf("overrides = %d, want 1", len(doc.ManualOverrides))
	}
	first := doc.ManualOverrides[0]
	if first.CreatedBy != "admin" {
		t.Fatalf("CreatedBy = %q, want admin default", first.CreatedBy)
	}

	doc, err = s.AddOverride(ctx, "2024-06-05", "13:30", "", "bob")
	if err != nil {
		t.Fatalf("re-add error: %v", err)
	}
	if len(doc.ManualOverrides) != 1 {
		t.Fatalf("re-add must update in place, got %d entries", len(doc.ManualOverrides))
	}
	got := doc.ManualOverrides[0]
	if got.ID != first.ID || !got.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("identity must be preserved: %+v vs %+v", got, first)
	}
	if got.Time != "13:30" || got.Note != "town hall" || got.CreatedBy != "bob" {
		t.Fatalf("unexpected updated override: %+v", got)
	}
	if doc.UpdatedBy != "bob" {
		t.Fatalf("UpdatedBy = %q, want bob", doc.UpdatedBy)
	}
}

func TestStoreConsumeOverride(t *testing.T) {
	t.Parallel()
	docs := &memDocStore{}
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, docs, now)
	ctx := context.Background()

	if _, err := s.AddOverride(ctx, "2024-06-05", "11:00", "", "admin"); err != nil {
		t.Fatalf("AddOverride error: %v", err)
	}
	if err := s.ConsumeOverride(ctx, "2024-06-05"); err != nil {
		t.Fatalf("ConsumeOverride error: %v", err)
	}
	doc, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(doc.ManualOverrides) != 1 || !doc.ManualOverrides[0].Consumed() {
		t.Fatalf("override must be marked consumed: %+v", doc.ManualOverrides)
	}

	// Consuming a date with no active override is a no-op.
	writes := docs.writeCount()
	if err := s.ConsumeOverride(ctx, "2024-06-05"); err != nil {
		t.Fatalf("second consume error: %v", err)
	}
	if docs.writeCount() != writes {
		t.Fatalf("no-op consume must not write")
	}
}

func TestStorePruneOnLoad(t *testing.T) {
	t.Parallel()
	docs := &memDocStore{}
	loc := mkLoc(t, "Asia/Makassar")
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, loc)
	s := newTestStore(t, docs, now)

	seed := BuiltIn().document()
	seed.UpdatedBy = "alice" // block the auto-upgrade path
	seed.ManualOverrides = []Override{
		{ID: "stale", Date: "2024-06-01", Time: "10:00", CreatedAt: now, CreatedBy: "alice"},
		{ID: "live", Date: "2024-06-12", Time: "10:00", CreatedAt: now, CreatedBy: "alice"},
	}
	docs.seed(t, seed)

	doc, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(doc.ManualOverrides) != 1 || doc.ManualOverrides[0].ID != "live" {
		t.Fatalf("stale override must be pruned: %+v", doc.ManualOverrides)
	}
}

func TestStoreCompact(t *testing.T) {
	t.Parallel()
	docs := &memDocStore{}
	loc := mkLoc(t, "Asia/Makassar")
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, loc)
	s := newTestStore(t, docs, now)
	ctx := context.Background()

	// Nothing stored yet: nothing to compact.
	if n, err := s.Compact(ctx); err != nil || n != 0 {
		t.Fatalf("Compact on empty = (%d, %v), want (0, nil)", n, err)
	}

	seed := BuiltIn().document()
	seed.UpdatedBy = "alice"
	seed.ManualOverrides = []Override{
		{ID: "stale", Date: "2024-06-01", Time: "10:00", CreatedAt: now, CreatedBy: "alice"},
	}
	docs.seed(t, seed)

	n, err := s.Compact(ctx)
	if err != nil {
		t.Fatalf("Compact error: %v", err)
	}
	if n != 1 {
		t.Fatalf("Compact dropped %d, want 1", n)
	}
	doc, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(doc.ManualOverrides) != 0 {
		t.Fatalf("pruned override persisted back: %+v", doc.ManualOverrides)
	}
}
