package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dailybot/internal/delivery"
	"dailybot/internal/schedule"
	"dailybot/pkg/logx"
)

type fakeStore struct {
	mu       sync.Mutex
	doc      schedule.Document
	loadErr  error
	loads    int
	consumed []string
}

func (f *fakeStore) Load(ctx context.Context) (schedule.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return schedule.Document{}, f.loadErr
	}
	return f.doc.Clone(), nil
}

func (f *fakeStore) ConsumeOverride(ctx context.Context, date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed = append(f.consumed, date)
	for i := range f.doc.ManualOverrides {
		if f.doc.ManualOverrides[i].Date == date {
			t := time.Now()
			f.doc.ManualOverrides[i].ConsumedAt = &t
		}
	}
	return nil
}

func (f *fakeStore) Compact(ctx context.Context) (int, error) { return 0, nil }

func (f *fakeStore) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func (f *fakeStore) consumedDates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.consumed...)
}

type fakeChannel struct {
	mu        sync.Mutex
	state     delivery.State
	stateErr  error
	sendErr   error
	sends     int
	report    delivery.Report
	probes    int
	connectAt int // probe number at which the channel comes up; 0 = as configured
}

func (f *fakeChannel) ConnectionState(ctx context.Context) (delivery.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if f.connectAt > 0 && f.probes >= f.connectAt {
		return delivery.StateConnected, nil
	}
	return f.state, f.stateErr
}

func (f *fakeChannel) SendAll(ctx context.Context) (delivery.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	return f.report, f.sendErr
}

func (f *fakeChannel) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

type fakeOracle struct{ workday bool }

func (f fakeOracle) IsWorkday(t time.Time) bool { return f.workday }

func strp(s string) *string { return &s }

// testDoc schedules Monday 2024-06-03 16:00 UTC.
func testDoc() schedule.Document {
	return schedule.Document{
		Timezone: "UTC",
		DailyTimes: map[string]*string{
			"1": strp("16:00"), "2": strp("16:00"), "3": strp("16:00"),
			"4": strp("16:00"), "5": strp("16:00"), "6": nil, "7": nil,
		},
		ManualOverrides: []schedule.Override{},
		DefaultVersion:  "v",
	}
}

func testConfig() Config {
	return Config{
		RetryInterval: 5 * time.Millisecond,
		MaxRetries:    3,
		IdleRecheck:   time.Hour,
		ErrorBackoff:  time.Hour,
		PostRunDelay:  time.Minute,
		SweepSpec:     "off",
	}
}

// clockBefore freezes time just ahead of the Monday slot so the armed timer
// fires almost immediately.
func clockBefore() func() time.Time {
	at := time.Date(2024, 6, 3, 15, 59, 59, int(999*time.Millisecond), time.UTC)
	return func() time.Time { return at }
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func lastRecord(s *Service) (RunRecord, bool) {
	h := s.History()
	if len(h) == 0 {
		return RunRecord{}, false
	}
	return h[len(h)-1], true
}

func TestSchedulerRunsAndReplans(t *testing.T) {
	t.Parallel()
	store := &fakeStore{doc: testDoc()}
	ch := &fakeChannel{state: delivery.StateConnected, report: delivery.Report{Success: 2, Total: 2}}
	s := New(testConfig(), store, fakeOracle{workday: true}, logx.Nop())
	s.SetClock(clockBefore())

	s.Start(context.Background(), ch)
	defer s.Stop()

	waitFor(t, "delivery run", func() bool { return ch.sendCount() == 1 })
	waitFor(t, "run record", func() bool {
		rec, ok := lastRecord(s)
		return ok && rec.Reason == ReasonCompleted
	})

	rec, _ := lastRecord(s)
	if rec.Success != 2 || rec.Total != 2 {
		t.Fatalf("record counts = %+v", rec)
	}
	want := time.Date(2024, 6, 3, 16, 0, 0, 0, time.UTC)
	if !rec.Target.Equal(want) {
		t.Fatalf("Target = %v, want %v", rec.Target, want)
	}

	// The loop re-planned past the fired slot: next target is Tuesday.
	waitFor(t, "re-plan", func() bool {
		snap := s.Snapshot()
		return snap.LastReason == ReasonCompleted
	})
	snap := s.Snapshot()
	wantNext := time.Date(2024, 6, 4, 16, 0, 0, 0, time.UTC)
	if !snap.NextTarget.Equal(wantNext) {
		t.Fatalf("NextTarget = %v, want %v", snap.NextTarget, wantNext)
	}
	if ch.sendCount() != 1 {
		t.Fatalf("slot fired twice")
	}
}

func TestSchedulerSkipsNonWorkday(t *testing.T) {
	t.Parallel()
	store := &fakeStore{doc: testDoc()}
	ch := &fakeChannel{state: delivery.StateConnected}
	s := New(testConfig(), store, fakeOracle{workday: false}, logx.Nop())
	s.SetClock(clockBefore())

	s.Start(context.Background(), ch)
	defer s.Stop()

	waitFor(t, "skip record", func() bool {
		rec, ok := lastRecord(s)
		return ok && rec.Reason == ReasonNonWorkday
	})
	if ch.sendCount() != 0 {
		t.Fatalf("non-workday run must not send")
	}
}

func TestSchedulerOverrideIgnoresWorkdayAndIsConsumed(t *testing.T) {
	t.Parallel()
	doc := testDoc()
	doc.Paused = true
	doc.ManualOverrides = []schedule.Override{{
		ID: "a", Date: "2024-06-03", Time: "16:00", CreatedBy: "admin",
	}}
	store := &fakeStore{doc: doc}
	ch := &fakeChannel{state: delivery.StateConnected, report: delivery.Report{Success: 1, Total: 1}}
	s := New(testConfig(), store, fakeOracle{workday: false}, logx.Nop())
	s.SetClock(clockBefore())

	s.Start(context.Background(), ch)
	defer s.Stop()

	waitFor(t, "override run", func() bool { return ch.sendCount() == 1 })
	waitFor(t, "consume", func() bool {
		d := store.consumedDates()
		return len(d) == 1 && d[0] == "2024-06-03"
	})
	rec, _ := lastRecord(s)
	if !rec.Override || rec.Reason != ReasonCompleted {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestSchedulerChannelUnavailable(t *testing.T) {
	t.Parallel()
	store := &fakeStore{doc: testDoc()}
	ch := &fakeChannel{state: delivery.StateDisconnected}
	s := New(testConfig(), store, fakeOracle{workday: true}, logx.Nop())
	s.SetClock(clockBefore())

	s.Start(context.Background(), ch)
	defer s.Stop()

	waitFor(t, "abandoned run", func() bool {
		rec, ok := lastRecord(s)
		return ok && rec.Reason == ReasonChannelUnavailable
	})
	if ch.sendCount() != 0 {
		t.Fatalf("disconnected channel must not send")
	}
	ch.mu.Lock()
	probes := ch.probes
	ch.mu.Unlock()
	if probes != 3 {
		t.Fatalf("probes = %d, want MaxRetries", probes)
	}
}

func TestSchedulerWaitsForConnectivity(t *testing.T) {
	t.Parallel()
	store := &fakeStore{doc: testDoc()}
	ch := &fakeChannel{state: delivery.StateDisconnected, connectAt: 2, report: delivery.Report{Success: 1, Total: 1}}
	s := New(testConfig(), store, fakeOracle{workday: true}, logx.Nop())
	s.SetClock(clockBefore())

	s.Start(context.Background(), ch)
	defer s.Stop()

	waitFor(t, "delayed run", func() bool { return ch.sendCount() == 1 })
	rec, _ := lastRecord(s)
	if rec.Reason != ReasonCompleted {
		t.Fatalf("Reason = %q, want completed", rec.Reason)
	}
}

func TestSchedulerSendFailureBacksOff(t *testing.T) {
	t.Parallel()
	store := &fakeStore{doc: testDoc()}
	ch := &fakeChannel{state: delivery.StateConnected, sendErr: errors.New("boom")}
	s := New(testConfig(), store, fakeOracle{workday: true}, logx.Nop())
	s.SetClock(clockBefore())

	s.Start(context.Background(), ch)
	defer s.Stop()

	waitFor(t, "error record", func() bool {
		rec, ok := lastRecord(s)
		return ok && rec.Reason == ReasonError
	})
	rec, _ := lastRecord(s)
	if rec.Error == "" {
		t.Fatalf("error record must carry the failure: %+v", rec)
	}
	// ErrorBackoff is an hour in this config, so exactly one attempt.
	if ch.sendCount() != 1 {
		t.Fatalf("sends = %d, want 1", ch.sendCount())
	}
}

func TestSchedulerStoreFailureRetries(t *testing.T) {
	t.Parallel()
	store := &fakeStore{loadErr: errors.New("storage down")}
	ch := &fakeChannel{state: delivery.StateConnected}
	s := New(testConfig(), store, fakeOracle{workday: true}, logx.Nop())

	s.Start(context.Background(), ch)
	defer s.Stop()

	waitFor(t, "planning retries", func() bool { return store.loadCount() >= 3 })
	if ch.sendCount() != 0 {
		t.Fatalf("no run must fire without a schedule")
	}
}

func TestSchedulerStartIdempotentStopSafe(t *testing.T) {
	t.Parallel()
	store := &fakeStore{doc: testDoc()}
	ch := &fakeChannel{state: delivery.StateConnected}
	s := New(testConfig(), store, fakeOracle{workday: true}, logx.Nop())

	s.Start(context.Background(), ch)
	s.Start(context.Background(), ch) // rebind only
	if !s.Snapshot().Running {
		t.Fatal("expected running after start")
	}

	s.Stop()
	if s.Snapshot().Running {
		t.Fatal("expected stopped")
	}
	s.Stop() // second stop is a no-op
	if got := s.State(); got != StateStopped {
		t.Fatalf("State = %s, want stopped", got)
	}
}

func TestSchedulerForceReschedule(t *testing.T) {
	t.Parallel()
	store := &fakeStore{doc: testDoc()}
	ch := &fakeChannel{state: delivery.StateConnected}
	s := New(testConfig(), store, fakeOracle{workday: true}, logx.Nop())
	// Freeze well before the slot so the armed timer never fires on its own.
	at := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return at })

	s.Start(context.Background(), ch)
	defer s.Stop()

	waitFor(t, "initial plan", func() bool { return store.loadCount() == 1 })

	s.ForceReschedule(ReasonExternalChange)
	waitFor(t, "re-plan after kick", func() bool { return store.loadCount() == 2 })

	snap := s.Snapshot()
	if snap.LastReason != ReasonExternalChange {
		t.Fatalf("LastReason = %q, want external-change", snap.LastReason)
	}
	if ch.sendCount() != 0 {
		t.Fatalf("kick must not trigger a send")
	}

	// ForceReschedule on a stopped scheduler is harmless.
	s.Stop()
	s.ForceReschedule(ReasonManual)
}
