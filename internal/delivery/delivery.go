// Package delivery defines the capability interface the scheduler uses to
// reach its messaging transport, plus a rate-limited fan-out implementation
// over an abstract per-recipient transport.
package delivery

import "context"

// State is the channel's connection state. Anything but StateConnected is
// treated as "not ready" by the scheduler.
type State int

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	if s == StateConnected {
		return "connected"
	}
	return "disconnected"
}

// Report aggregates a bulk send. Per-recipient failures are not a
// channel-level error; callers read the counts.
type Report struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

// Channel is the narrow capability surface the scheduler consumes.
type Channel interface {
	// ConnectionState may fail (network probe). Failures are treated as
	// not connected by callers.
	ConnectionState(ctx context.Context) (State, error)
	// SendAll performs the bulk delivery run.
	SendAll(ctx context.Context) (Report, error)
}
