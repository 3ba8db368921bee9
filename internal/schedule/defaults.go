package schedule

import "time"

// Defaults describes the current built-in schedule values. Documents still
// managed by the system are kept in sync with these via the auto-upgrade in
// Store.Load.
type Defaults struct {
	Timezone   string
	DailyTimes map[string]*string
	Version    string
}

// BuiltIn returns the compiled-in defaults: Mon-Thu 16:00, Fri 16:30 WITA.
func BuiltIn() Defaults {
	t1600 := "16:00"
	t1630 := "16:30"
	return Defaults{
		Timezone: "Asia/Makassar",
		DailyTimes: map[string]*string{
			"1": &t1600,
			"2": &t1600,
			"3": &t1600,
			"4": &t1600,
			"5": &t1630,
			"6": nil,
			"7": nil,
		},
		Version: "2024-05-wita",
	}
}

// withFallback fills any missing field from the built-ins so a partial
// config override still yields a complete default set.
func (d Defaults) withFallback() Defaults {
	b := BuiltIn()
	if d.Timezone == "" {
		d.Timezone = b.Timezone
	}
	if _, err := time.LoadLocation(d.Timezone); err != nil {
		d.Timezone = b.Timezone
	}
	if len(d.DailyTimes) == 0 {
		d.DailyTimes = b.DailyTimes
	}
	d.DailyTimes = normalizeDailyTimes(d.DailyTimes)
	if d.Version == "" {
		d.Version = b.Version
	}
	return d
}

// document materializes a fresh system-managed document from the defaults.
func (d Defaults) document() Document {
	return Document{
		Timezone:        d.Timezone,
		DailyTimes:      copyDailyTimes(d.DailyTimes),
		ManualOverrides: []Override{},
		Paused:          false,
		UpdatedBy:       UpdatedBySystem,
		DefaultVersion:  d.Version,
	}
}

// normalizeDailyTimes returns a map covering exactly weekdays "1".."7",
// with entries that are missing or fail HH:mm validation set to nil.
func normalizeDailyTimes(in map[string]*string) map[string]*string {
	out := make(map[string]*string, 7)
	for _, k := range weekdayKeys {
		v, ok := in[k]
		if !ok || v == nil || !ValidTime(*v) {
			out[k] = nil
			continue
		}
		s := *v
		out[k] = &s
	}
	return out
}

func copyDailyTimes(in map[string]*string) map[string]*string {
	out := make(map[string]*string, len(in))
	for k, v := range in {
		if v == nil {
			out[k] = nil
			continue
		}
		s := *v
		out[k] = &s
	}
	return out
}

// dailyTimesMatch compares two weekly rules weekday-by-weekday.
func dailyTimesMatch(a, b map[string]*string) bool {
	na, nb := normalizeDailyTimes(a), normalizeDailyTimes(b)
	for _, k := range weekdayKeys {
		va, vb := na[k], nb[k]
		if (va == nil) != (vb == nil) {
			return false
		}
		if va != nil && *va != *vb {
			return false
		}
	}
	return true
}

var weekdayKeys = []string{"1", "2", "3", "4", "5", "6", "7"}

// Upgrade reasons recorded when a system-managed document is migrated.
const (
	upgradeVersionMismatch = "version-mismatch"
	upgradeLegacyTimes     = "legacy-times"
)

// autoUpgradeReason reports why doc qualifies for automatic migration to the
// current defaults, or "" when it does not. Operator-edited documents and
// documents carrying overrides never qualify.
func autoUpgradeReason(doc Document, def Defaults) string {
	managed := doc.UpdatedBy == "" || doc.UpdatedBy == UpdatedBySystem
	if !managed {
		return ""
	}
	if len(doc.ManualOverrides) > 0 {
		return ""
	}
	if doc.DefaultVersion != def.Version {
		return upgradeVersionMismatch
	}
	if !dailyTimesMatch(doc.DailyTimes, def.DailyTimes) {
		return upgradeLegacyTimes
	}
	return ""
}
