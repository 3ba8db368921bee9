// Package schedule owns the persisted schedule document and the next-run
// resolution algorithm.
//
// # Document
//
// A single JSON document describes the recurring weekly rule (per-ISO-weekday
// HH:mm times in an IANA timezone), a pause flag, and one-off manual
// overrides that preempt the weekly rule for their date. The document is
// read-modify-written as a whole on every mutation; Store serializes writers
// in-process.
//
// # Sanitization and auto-upgrade
//
// Every load sanitizes the stored shape (the file may be edited externally)
// and, for documents still managed by the system (updatedBy "system", no
// overrides), transparently migrates stale built-in defaults to the current
// default version. Any operator edit permanently opts the document out of
// automatic migration.
//
// # Resolution
//
// Resolve walks forward up to 21 calendar days in the document's timezone and
// returns an explicit tagged outcome: the next trigger instant (with the
// override that produced it, if any), or Idle/Exhausted when nothing is
// scheduled. Overrides strictly dominate the weekday default for their date
// and never fall back to it.
package schedule
