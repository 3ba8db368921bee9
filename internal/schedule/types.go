package schedule

import "time"

// UpdatedBySystem marks a document that no operator has customized yet.
// Only such documents qualify for automatic default upgrades.
const UpdatedBySystem = "system"

// LegacyVersion is assigned to stored documents that predate version tags.
const LegacyVersion = "legacy"

// Document is the single persisted aggregate.
//
// DailyTimes maps ISO weekday numbers "1" (Monday) .. "7" (Sunday) to an
// HH:mm string, or nil for no run that weekday. Keys always cover exactly
// "1".."7" after sanitization.
type Document struct {
	Timezone        string             `json:"timezone"`
	DailyTimes      map[string]*string `json:"dailyTimes"`
	ManualOverrides []Override         `json:"manualOverrides"`
	Paused          bool               `json:"paused"`
	LastUpdatedAt   time.Time          `json:"lastUpdatedAt"`
	UpdatedBy       string             `json:"updatedBy"`
	DefaultVersion  string             `json:"defaultVersion"`
}

// Override is a one-off date/time that preempts the weekly rule for its date.
// It is active while ConsumedAt is nil. At most one active override exists
// per date.
type Override struct {
	ID         string     `json:"id"`
	Date       string     `json:"date"` // YYYY-MM-DD
	Time       string     `json:"time"` // HH:mm
	Note       string     `json:"note,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	CreatedBy  string     `json:"createdBy"`
	ConsumedAt *time.Time `json:"consumedAt,omitempty"`
}

// Consumed reports whether the override has already fired.
func (o Override) Consumed() bool { return o.ConsumedAt != nil }

// Clone returns a deep copy so callers can mutate without aliasing the
// store's document.
func (d Document) Clone() Document {
	cp := d
	cp.DailyTimes = make(map[string]*string, len(d.DailyTimes))
	for k, v := range d.DailyTimes {
		if v == nil {
			cp.DailyTimes[k] = nil
			continue
		}
		s := *v
		cp.DailyTimes[k] = &s
	}
	cp.ManualOverrides = make([]Override, len(d.ManualOverrides))
	for i, o := range d.ManualOverrides {
		if o.ConsumedAt != nil {
			t := *o.ConsumedAt
			o.ConsumedAt = &t
		}
		cp.ManualOverrides[i] = o
	}
	return cp
}

// FindActiveOverride returns the active (unconsumed) override for a date key,
// or nil.
func (d Document) FindActiveOverride(date string) *Override {
	for i := range d.ManualOverrides {
		o := &d.ManualOverrides[i]
		if o.Date == date && !o.Consumed() {
			return o
		}
	}
	return nil
}
