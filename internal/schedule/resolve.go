package schedule

import (
	"fmt"
	"strconv"
	"time"
)

// lookaheadDays bounds the forward walk of the resolver. A schedule with no
// trigger inside the horizon resolves to Exhausted and is re-checked later.
const lookaheadDays = 21

// Kind tags a resolution outcome.
type Kind int

const (
	// KindTriggered carries a concrete next trigger instant.
	KindTriggered Kind = iota
	// KindIdle means the paused schedule has no future override.
	KindIdle
	// KindExhausted means the lookahead horizon passed without a trigger.
	KindExhausted
)

func (k Kind) String() string {
	switch k {
	case KindTriggered:
		return "triggered"
	case KindIdle:
		return "idle"
	default:
		return "exhausted"
	}
}

// Resolution is the resolver's transient result; it is never persisted.
type Resolution struct {
	Kind     Kind
	Target   time.Time
	Override *Override // non-nil when an override produced the target
}

// Resolve computes the next trigger strictly after ref.
//
// Paused documents only honor future unconsumed overrides. Active documents
// walk forward day by day (calendar days in the document's timezone, so DST
// shifts keep the intended wall-clock time): an active override owns its
// whole day - once its instant has passed, the walk moves to the next day
// without falling back to that day's weekday default.
func Resolve(doc Document, ref time.Time) (Resolution, error) {
	loc, err := time.LoadLocation(doc.Timezone)
	if err != nil {
		return Resolution{}, fmt.Errorf("schedule timezone %q: %w", doc.Timezone, err)
	}
	zref := ref.In(loc)

	if doc.Paused {
		return resolvePaused(doc, zref, loc), nil
	}

	y, m, d := zref.Date()
	for i := 0; i < lookaheadDays; i++ {
		day := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		dateKey := day.Format(dateLayout)

		if ov := doc.FindActiveOverride(dateKey); ov != nil {
			target := instantAt(day, ov.Time, loc)
			if target.After(zref) {
				return Resolution{Kind: KindTriggered, Target: target, Override: ov}, nil
			}
			// The override's moment already passed: its day is exhausted.
			continue
		}

		hhmm := doc.DailyTimes[strconv.Itoa(isoWeekday(day))]
		if hhmm == nil {
			continue
		}
		target := instantAt(day, *hhmm, loc)
		if target.After(zref) {
			return Resolution{Kind: KindTriggered, Target: target}, nil
		}
	}

	return Resolution{Kind: KindExhausted}, nil
}

// resolvePaused returns the earliest active override strictly after ref.
// Overrides are unique per date and kept sorted by date, so the first future
// one is the earliest.
func resolvePaused(doc Document, zref time.Time, loc *time.Location) Resolution {
	for i := range doc.ManualOverrides {
		ov := &doc.ManualOverrides[i]
		if ov.Consumed() {
			continue
		}
		day, err := dayInLocation(ov.Date, loc)
		if err != nil {
			continue
		}
		target := instantAt(day, ov.Time, loc)
		if target.After(zref) {
			return Resolution{Kind: KindTriggered, Target: target, Override: ov}
		}
	}
	return Resolution{Kind: KindIdle}
}
