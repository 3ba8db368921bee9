package delivery

import (
	"context"

	logx "dailybot/pkg/logx"
)

// DryRunTransport is an always-connected transport that only logs sends.
// Useful for rehearsing a schedule before a real transport is wired in.
type DryRunTransport struct {
	log logx.Logger
}

func NewDryRunTransport(log logx.Logger) *DryRunTransport {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DryRunTransport{log: log}
}

func (t *DryRunTransport) Connected(ctx context.Context) (bool, error) {
	_ = ctx
	return true, nil
}

func (t *DryRunTransport) Send(ctx context.Context, to Recipient, message string) error {
	_ = ctx
	t.log.Info("dry-run send",
		logx.String("recipient", to.Name),
		logx.String("address", to.Address),
		logx.Int("len", len(message)))
	return nil
}
