package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dailybot/internal/storage"
	logx "dailybot/pkg/logx"
)

// Store provides load/mutate/save access to the schedule document over an
// atomic whole-document backend.
//
// Every mutation is a full read-modify-write cycle serialized by an
// in-process mutex; there is no cross-process concurrency token (spec'd out
// of scope), so exactly one process should own writes.
type Store struct {
	docs storage.DocStore
	def  Defaults
	log  logx.Logger
	now  func() time.Time

	mu sync.Mutex
}

// Patch carries partial mutation intent merged into a freshly loaded
// document. Nil fields are left untouched. DailyTimes entries are merged
// per-weekday: nil clears that weekday.
type Patch struct {
	Paused     *bool
	Timezone   *string
	DailyTimes map[string]*string
	Actor      string
}

func NewStore(docs storage.DocStore, def Defaults, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		docs: docs,
		def:  def.withFallback(),
		log:  log,
		now:  time.Now,
	}
}

// SetClock swaps the time source. Tests only; not safe once the store is
// shared across goroutines.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Load returns the current document: seeded with defaults on first use,
// sanitized, stale overrides pruned, and - for system-managed documents on
// stale defaults - transparently upgraded and re-persisted.
func (s *Store) Load(ctx context.Context) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) (Document, error) {
	raw, err := s.docs.Read(ctx)
	if errors.Is(err, storage.ErrNoDocument) {
		doc := s.def.document()
		doc, werr := s.writeLocked(ctx, doc)
		if werr != nil {
			return Document{}, fmt.Errorf("seed default schedule: %w", werr)
		}
		s.log.Info("seeded default schedule",
			logx.String("timezone", doc.Timezone),
			logx.String("version", doc.DefaultVersion))
		return doc, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("read schedule: %w", err)
	}

	doc, upgradeReason := sanitize(raw, s.def, s.now())

	// Prune before resolution ever sees the document. The pruned form is
	// persisted on the next write (or by the maintenance sweep).
	loc, _ := time.LoadLocation(doc.Timezone)
	if n := pruneOverrides(&doc, s.now(), loc); n > 0 {
		s.log.Debug("pruned stale overrides", logx.Int("dropped", n))
	}

	if upgradeReason != "" {
		doc, err = s.writeLocked(ctx, doc)
		if err != nil {
			return Document{}, fmt.Errorf("persist auto-upgrade: %w", err)
		}
		s.log.Info("schedule auto-upgraded to current defaults",
			logx.String("version", doc.DefaultVersion),
			logx.String("reason", upgradeReason))
	}
	return doc, nil
}

// writeLocked stamps lastUpdatedAt and replaces the whole document.
func (s *Store) writeLocked(ctx context.Context, doc Document) (Document, error) {
	doc.LastUpdatedAt = s.now()
	sort.SliceStable(doc.ManualOverrides, func(i, j int) bool {
		return doc.ManualOverrides[i].Date < doc.ManualOverrides[j].Date
	})
	if doc.ManualOverrides == nil {
		doc.ManualOverrides = []Override{}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Document{}, err
	}
	if err := s.docs.Write(ctx, append(b, '\n')); err != nil {
		return Document{}, fmt.Errorf("write schedule: %w", err)
	}
	return doc, nil
}

// Save normalizes the caller's full document (weekly rule coverage, override
// hygiene) and persists it whole. Writers are serialized by the store mutex,
// so the replace cannot interleave with another mutation.
func (s *Store) Save(ctx context.Context, doc Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.DailyTimes = normalizeDailyTimes(doc.DailyTimes)
	doc.ManualOverrides = sanitizeOverrides(doc.ManualOverrides, s.now())
	return s.writeLocked(ctx, doc)
}

// Update applies a partial mutation. All time strings are validated before
// anything is written.
func (s *Store) Update(ctx context.Context, p Patch) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked(ctx)
	if err != nil {
		return Document{}, err
	}

	if p.Paused != nil {
		doc.Paused = *p.Paused
	}
	if p.Timezone != nil {
		tz := *p.Timezone
		if _, err := time.LoadLocation(tz); err != nil || tz == "" {
			return Document{}, fmt.Errorf("%w: unknown timezone %q", ErrValidation, tz)
		}
		doc.Timezone = tz
	}
	for k, v := range p.DailyTimes {
		if !validWeekdayKey(k) {
			return Document{}, fmt.Errorf("%w: weekday %q must be 1..7", ErrValidation, k)
		}
		if v == nil || *v == "" {
			doc.DailyTimes[k] = nil
			continue
		}
		if !ValidTime(*v) {
			return Document{}, fmt.Errorf("%w: time for weekday %s must be HH:mm", ErrValidation, k)
		}
		t := *v
		doc.DailyTimes[k] = &t
	}
	if p.Actor != "" {
		doc.UpdatedBy = p.Actor
	}
	return s.writeLocked(ctx, doc)
}

// SetDailyTimes replaces the given weekday entries.
func (s *Store) SetDailyTimes(ctx context.Context, times map[string]*string, actor string) (Document, error) {
	return s.Update(ctx, Patch{DailyTimes: times, Actor: actor})
}

// SetPaused toggles the recurring rule.
func (s *Store) SetPaused(ctx context.Context, paused bool, actor string) (Document, error) {
	return s.Update(ctx, Patch{Paused: &paused, Actor: actor})
}

// AddOverride schedules (or updates) the one-off run for date. Re-adding a
// date updates the existing active record in place, preserving its identity
// and original creation time.
func (s *Store) AddOverride(ctx context.Context, date, hhmm, note, actor string) (Document, error) {
	if err := checkDate(date); err != nil {
		return Document{}, err
	}
	if err := checkTime(hhmm); err != nil {
		return Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked(ctx)
	if err != nil {
		return Document{}, err
	}

	loc, _ := time.LoadLocation(doc.Timezone)
	if _, err := dayInLocation(date, loc); err != nil {
		return Document{}, err
	}

	if actor == "" {
		actor = "admin"
	}
	if existing := doc.FindActiveOverride(date); existing != nil {
		existing.Time = hhmm
		if note != "" {
			existing.Note = note
		}
		existing.CreatedBy = actor
	} else {
		doc.ManualOverrides = append(doc.ManualOverrides, Override{
			ID:        uuid.NewString(),
			Date:      date,
			Time:      hhmm,
			Note:      note,
			CreatedAt: s.now(),
			CreatedBy: actor,
		})
	}
	doc.UpdatedBy = actor
	return s.writeLocked(ctx, doc)
}

// RemoveOverride deletes every override for date (consumed ones included).
func (s *Store) RemoveOverride(ctx context.Context, date string) (Document, error) {
	if err := checkDate(date); err != nil {
		return Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked(ctx)
	if err != nil {
		return Document{}, err
	}
	kept := doc.ManualOverrides[:0]
	for _, o := range doc.ManualOverrides {
		if o.Date != date {
			kept = append(kept, o)
		}
	}
	doc.ManualOverrides = kept
	return s.writeLocked(ctx, doc)
}

// ConsumeOverride marks the active override for date as fired. Missing
// overrides are a no-op (the run already happened; nothing to record).
func (s *Store) ConsumeOverride(ctx context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	ov := doc.FindActiveOverride(date)
	if ov == nil {
		return nil
	}
	t := s.now()
	ov.ConsumedAt = &t
	_, err = s.writeLocked(ctx, doc)
	return err
}

// Compact persists the pruned document when stale overrides were dropped.
// Used by the maintenance sweep to keep the stored file tidy.
func (s *Store) Compact(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.docs.Read(ctx)
	if errors.Is(err, storage.ErrNoDocument) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	doc, _ := sanitize(raw, s.def, s.now())
	loc, _ := time.LoadLocation(doc.Timezone)
	dropped := pruneOverrides(&doc, s.now(), loc)
	if dropped == 0 {
		return 0, nil
	}
	if _, err := s.writeLocked(ctx, doc); err != nil {
		return 0, err
	}
	return dropped, nil
}

func validWeekdayKey(k string) bool {
	return len(k) == 1 && k[0] >= '1' && k[0] <= '7'
}
