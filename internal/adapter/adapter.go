// Package adapter defines the transport-neutral CEC adapter capability
// surface shared by the native libcec adapter and the
// TCP-tunnel adapter.
package adapter

import (
	"context"
	"errors"

	"github.com/konikvranik/cecbridge/internal/frame"
)

// ErrNotInitialized is returned by any operation other than Init/Shutdown/
// LogicalAddress when the adapter has not been (successfully) initialized.
var ErrNotInitialized = errors.New("adapter: not initialized")

// InboundFunc receives a decoded text line for every frame the adapter
// observes on the bus/tunnel, with any echo marker already stripped.
type InboundFunc func(line string)

// Adapter is the minimal async capability surface an HDMI network (C5)
// drives. All operations besides LogicalAddress may block on I/O and
// should be called with a context carrying an appropriate deadline.
type Adapter interface {
	// Init acquires bus/tunnel access. Idempotent: calling Init again
	// after Shutdown must be allowed.
	Init(ctx context.Context) error

	// Poll reports whether addr is present on the bus.
	Poll(ctx context.Context, addr frame.LogicalAddress) (bool, error)

	// Transmit enqueues f for transmission. No acknowledgement.
	Transmit(ctx context.Context, f frame.Frame) error

	// StandbyAll broadcasts a standby command.
	StandbyAll(ctx context.Context) error

	// PowerOnAll broadcasts a power-on command.
	PowerOnAll(ctx context.Context) error

	// LogicalAddress returns the adapter's own source address. Safe to
	// call regardless of initialization state.
	LogicalAddress() frame.LogicalAddress

	// Shutdown releases the bus/tunnel, cancels in-flight polls, and
	// drops the inbound callback. Safe to call more than once.
	Shutdown(ctx context.Context) error

	// SetInboundCallback registers fn to be invoked for every received
	// frame. Must be called before Init to avoid missing early frames.
	SetInboundCallback(fn InboundFunc)
}
