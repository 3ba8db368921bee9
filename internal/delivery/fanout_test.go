package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"dailybot/pkg/logx"
)

type scriptedTransport struct {
	mu        sync.Mutex
	connected bool
	failFor   map[string]int // address -> remaining failures
	sent      []string
}

func (t *scriptedTransport) Connected(ctx context.Context) (bool, error) {
	return t.connected, nil
}

func (t *scriptedTransport) Send(ctx context.Context, to Recipient, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := t.failFor[to.Address]; n > 0 {
		t.failFor[to.Address] = n - 1
		return errors.New("send refused")
	}
	t.sent = append(t.sent, to.Address+": "+message)
	return nil
}

func testFanout(tr Transport, dir Directory, msg MessageSource) *Fanout {
	return NewFanout(FanoutConfig{RatePerSec: 1000, RetryMax: 1}, tr, dir, msg, logx.Nop())
}

func TestFanoutSendAll(t *testing.T) {
	t.Parallel()
	tr := &scriptedTransport{connected: true, failFor: map[string]int{}}
	dir := StaticDirectory{
		{Name: "Alice", Address: "a@x"},
		{Name: "", Address: "b@x"},
	}
	f := testFanout(tr, dir, TemplateMessage("hi {name}"))

	rep, err := f.SendAll(context.Background())
	if err != nil {
		t.Fatalf("SendAll error: %v", err)
	}
	if rep.Success != 2 || rep.Failed != 0 || rep.Total != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if tr.sent[0] != "a@x: hi Alice" {
		t.Fatalf("sent[0] = %q", tr.sent[0])
	}
	// Empty name falls back to the address in the template.
	if tr.sent[1] != "b@x: hi b@x" {
		t.Fatalf("sent[1] = %q", tr.sent[1])
	}
}

func TestFanoutRetriesThenCounts(t *testing.T) {
	t.Parallel()
	tr := &scriptedTransport{connected: true, failFor: map[string]int{
		"flaky@x": 1, // recovers on the retry
		"dead@x":  5, // exceeds the retry budget
	}}
	dir := StaticDirectory{
		{Name: "Flaky", Address: "flaky@x"},
		{Name: "Dead", Address: "dead@x"},
		{Name: "Fine", Address: "fine@x"},
	}
	f := testFanout(tr, dir, TemplateMessage("ping"))

	rep, err := f.SendAll(context.Background())
	if err != nil {
		t.Fatalf("SendAll error: %v", err)
	}
	if rep.Success != 2 || rep.Failed != 1 || rep.Total != 3 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestFanoutEmptyDirectory(t *testing.T) {
	t.Parallel()
	tr := &scriptedTransport{connected: true}
	f := testFanout(tr, StaticDirectory{}, TemplateMessage("ping"))

	rep, err := f.SendAll(context.Background())
	if err != nil {
		t.Fatalf("SendAll error: %v", err)
	}
	if rep.Total != 0 || rep.Success != 0 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestFanoutConnectionState(t *testing.T) {
	t.Parallel()
	tr := &scriptedTransport{connected: false}
	f := testFanout(tr, StaticDirectory{}, TemplateMessage(""))

	st, err := f.ConnectionState(context.Background())
	if err != nil {
		t.Fatalf("ConnectionState error: %v", err)
	}
	if st != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", st)
	}

	tr.connected = true
	st, _ = f.ConnectionState(context.Background())
	if st != StateConnected {
		t.Fatalf("state = %s, want connected", st)
	}
}
