// Package storage persists the schedule document.
//
// It exposes an atomic whole-document read/write store plus a
// change-notification primitive (Watch) so the scheduler can react to
// external edits. Two drivers are available:
//   - "file": a JSON document file, watched with fsnotify
//   - "sqlite": a single-row SQLite table (optional build tag), watched by
//     polling a revision counter
package storage
