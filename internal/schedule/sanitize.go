package schedule

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// sanitize rebuilds a well-formed Document from raw stored bytes. It never
// trusts the stored shape: the file may have been hand-edited or written by
// an older release. Guarantees on the result:
//
//   - every top-level field present (missing ones filled from def)
//   - Timezone is a loadable IANA zone
//   - DailyTimes covers exactly weekdays "1".."7" (invalid entries nil)
//   - ManualOverrides is a slice sorted by date, entries with malformed
//     date/time dropped, missing IDs assigned, at most one entry per date
//   - DefaultVersion set (documents predating version tags get "legacy")
//
// The second return value is the auto-upgrade reason ("" when the document
// does not qualify); the caller persists upgraded documents.
func sanitize(raw []byte, def Defaults, now time.Time) (Document, string) {
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(raw, &fields)

	doc := Document{
		Timezone:        def.Timezone,
		DailyTimes:      copyDailyTimes(def.DailyTimes),
		ManualOverrides: []Override{},
		UpdatedBy:       UpdatedBySystem,
		DefaultVersion:  LegacyVersion,
	}

	if tz, ok := decodeString(fields["timezone"]); ok && tz != "" {
		if _, err := time.LoadLocation(tz); err == nil {
			doc.Timezone = tz
		}
	}

	var dt map[string]*string
	if b, ok := fields["dailyTimes"]; ok && json.Unmarshal(b, &dt) == nil && dt != nil {
		doc.DailyTimes = normalizeDailyTimes(dt)
	}

	var ovs []Override
	if b, ok := fields["manualOverrides"]; ok {
		_ = json.Unmarshal(b, &ovs)
	}
	doc.ManualOverrides = sanitizeOverrides(ovs, now)

	if b, ok := fields["paused"]; ok {
		_ = json.Unmarshal(b, &doc.Paused)
	}
	if b, ok := fields["lastUpdatedAt"]; ok {
		_ = json.Unmarshal(b, &doc.LastUpdatedAt)
	}
	if by, ok := decodeString(fields["updatedBy"]); ok && by != "" {
		doc.UpdatedBy = by
	}
	if v, ok := decodeString(fields["defaultVersion"]); ok && v != "" {
		doc.DefaultVersion = v
	}

	reason := autoUpgradeReason(doc, def)
	if reason != "" {
		doc.Timezone = def.Timezone
		doc.DailyTimes = copyDailyTimes(def.DailyTimes)
		doc.DefaultVersion = def.Version
		doc.UpdatedBy = UpdatedBySystem
	}
	return doc, reason
}

func sanitizeOverrides(in []Override, now time.Time) []Override {
	out := make([]Override, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, o := range in {
		if !ValidDate(o.Date) || !ValidTime(o.Time) {
			continue
		}
		// At most one active entry per date; keep the first.
		if !o.Consumed() && seen[o.Date] {
			continue
		}
		if !o.Consumed() {
			seen[o.Date] = true
		}
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
		if o.CreatedAt.IsZero() {
			o.CreatedAt = now
		}
		if o.CreatedBy == "" {
			o.CreatedBy = "unknown"
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func decodeString(b json.RawMessage) (string, bool) {
	if len(b) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return "", false
	}
	return s, true
}

// pruneOverrides drops overrides dated more than three days before ref, in
// the document's own timezone. Returns the number of entries removed.
func pruneOverrides(doc *Document, ref time.Time, loc *time.Location) int {
	keepThreshold := startOfDay(ref.In(loc).AddDate(0, 0, -3))
	kept := doc.ManualOverrides[:0]
	dropped := 0
	for _, o := range doc.ManualOverrides {
		day, err := dayInLocation(o.Date, loc)
		if err != nil || day.Before(keepThreshold) {
			dropped++
			continue
		}
		kept = append(kept, o)
	}
	doc.ManualOverrides = kept
	return dropped
}
