package mqttbridge

import (
	"context"
	"sync"
	"testing"

	"github.com/konikvranik/cecbridge/internal/device"
	"github.com/konikvranik/cecbridge/internal/frame"
)

type fakeNetwork struct {
	mu    sync.Mutex
	sent  []frame.Frame
	polls []frame.LogicalAddress
	snaps map[frame.LogicalAddress]device.Snapshot
	ready bool
}

func (n *fakeNetwork) Send(ctx context.Context, f frame.Frame) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, f)
}

func (n *fakeNetwork) Poll(ctx context.Context, addr frame.LogicalAddress) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.polls = append(n.polls, addr)
	return true, nil
}

func (n *fakeNetwork) Snapshot(addr frame.LogicalAddress) (device.Snapshot, bool) {
	s, ok := n.snaps[addr]
	return s, ok
}

func (n *fakeNetwork) AdapterReady() bool { return n.ready }

var _ Network = (*fakeNetwork)(nil)

func TestHandleCommandInjectSendsFrame(t *testing.T) {
	fn := &fakeNetwork{}
	b := New(fn)
	b.prefix = "cecbridge"

	b.handleCommand("cecbridge/command/inject", []byte("1f:90:02"))

	fn.mu.Lock()
	defer fn.mu.Unlock()
	if len(fn.sent) != 1 {
		t.Fatalf("expected exactly 1 sent frame, got %d", len(fn.sent))
	}
	if frame.Render(fn.sent[0]) != "1f:90:02" {
		t.Fatalf("sent = %s, want 1f:90:02", frame.Render(fn.sent[0]))
	}
}

func TestHandleCommandInjectIgnoresMalformed(t *testing.T) {
	fn := &fakeNetwork{}
	b := New(fn)
	b.prefix = "cecbridge"

	b.handleCommand("cecbridge/command/inject", []byte("not-a-frame"))

	fn.mu.Lock()
	defer fn.mu.Unlock()
	if len(fn.sent) != 0 {
		t.Fatalf("expected no sent frames for malformed input, got %d", len(fn.sent))
	}
}

func TestHandleCommandPollPolls(t *testing.T) {
	fn := &fakeNetwork{}
	b := New(fn)
	b.prefix = "cecbridge"

	b.handleCommand("cecbridge/command/poll", []byte("4"))

	fn.mu.Lock()
	defer fn.mu.Unlock()
	if len(fn.polls) != 1 || fn.polls[0] != 4 {
		t.Fatalf("expected a poll of address 4, got %v", fn.polls)
	}
}

func TestHandleCommandPollRejectsOutOfRange(t *testing.T) {
	fn := &fakeNetwork{}
	b := New(fn)
	b.prefix = "cecbridge"

	b.handleCommand("cecbridge/command/poll", []byte("ff"))

	fn.mu.Lock()
	defer fn.mu.Unlock()
	if len(fn.polls) != 0 {
		t.Fatalf("expected no poll for out-of-range address, got %v", fn.polls)
	}
}

func TestPublishFrameNoopWithoutConnection(t *testing.T) {
	fn := &fakeNetwork{}
	b := New(fn)
	b.prefix = "cecbridge"

	f, _ := frame.Parse("1f:90:02")
	// Must not panic even though no MQTT client is connected.
	b.PublishFrame(f)
	b.PublishDeviceState(1)
}
