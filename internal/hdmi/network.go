// Package hdmi implements the HDMI network: it owns the
// device set, drives the scan/watch loops, and routes inbound frames to
// devices or to an external command sink. Adapter initialization retries
// with a fixed backoff rather than failing the whole process, and device
// added/removed transitions are surfaced as callbacks rather than a
// channel fan-out.
package hdmi

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/konikvranik/cecbridge/internal/adapter"
	"github.com/konikvranik/cecbridge/internal/device"
	"github.com/konikvranik/cecbridge/internal/frame"
	"github.com/konikvranik/cecbridge/internal/physaddr"
)

// DefaultScanInterval is the bus-scan period when none is configured.
const DefaultScanInterval = 30 * time.Second

const stepInterval = 300 * time.Millisecond
const notInitializedRetry = 1 * time.Second

// maxAddress is the highest pollable logical address; 15 is broadcast.
const maxAddress = frame.LogicalAddress(14)

// Sinks are optional; a nil sink is simply not invoked.
type Sinks struct {
	OnCommand       func(f frame.Frame)
	OnDeviceAdded   func(addr frame.LogicalAddress)
	OnDeviceRemoved func(addr frame.LogicalAddress)
	OnInitialized   func()
}

// Network orchestrates the bus scan, owns the device set, and routes
// inbound frames.
type Network struct {
	adapter      adapter.Adapter
	scanInterval time.Duration
	updatePeriod time.Duration
	sinks        Sinks
	log          *log.Logger

	mu          sync.Mutex
	devices     map[frame.LogicalAddress]*device.Device
	running     bool
	initialized bool

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New constructs a network around adp. scanInterval/updatePeriod fall back
// to their package defaults when zero.
func New(adp adapter.Adapter, scanInterval, updatePeriod time.Duration, sinks Sinks) *Network {
	if scanInterval <= 0 {
		scanInterval = DefaultScanInterval
	}
	if updatePeriod <= 0 {
		updatePeriod = device.DefaultUpdatePeriod
	}
	return &Network{
		adapter:      adp,
		scanInterval: scanInterval,
		updatePeriod: updatePeriod,
		sinks:        sinks,
		log:          log.New(log.Writer(), "[hdmi] ", log.LstdFlags),
		devices:      make(map[frame.LogicalAddress]*device.Device),
		stopCh:       make(chan struct{}),
	}
}

// Devices returns the logical addresses currently present, ascending.
func (n *Network) Devices() []frame.LogicalAddress {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]frame.LogicalAddress, 0, len(n.devices))
	for addr := range n.devices {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot returns the current cached state for addr, if present.
func (n *Network) Snapshot(addr frame.LogicalAddress) (device.Snapshot, bool) {
	n.mu.Lock()
	d, ok := n.devices[addr]
	n.mu.Unlock()
	if !ok {
		return device.Snapshot{}, false
	}
	return d.Snapshot(), true
}

// Snapshots returns the current cached state for every known device.
func (n *Network) Snapshots() []device.Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]device.Snapshot, 0, len(n.devices))
	for _, d := range n.devices {
		out = append(out, d.Snapshot())
	}
	return out
}

// Watch runs the scan loop until ctx is cancelled or Shutdown is called.
// If the adapter is not initialized, it retries every second; otherwise it
// scans and sleeps scanInterval in stepInterval increments
func (n *Network) Watch(ctx context.Context) {
	n.mu.Lock()
	n.running = true
	n.mu.Unlock()

	n.adapter.SetInboundCallback(n.onFrame)

	for {
		if n.stopped() {
			return
		}

		if !n.isInitialized() {
			if err := n.adapter.Init(ctx); err != nil {
				n.log.Printf("adapter init failed: %v", err)
				if !n.sleepStep(ctx, notInitializedRetry) {
					return
				}
				continue
			}
			n.mu.Lock()
			n.initialized = true
			n.mu.Unlock()
			if n.sinks.OnInitialized != nil {
				n.sinks.OnInitialized()
			}
		}

		n.scan(ctx)

		if !n.sleepStep(ctx, n.scanInterval) {
			return
		}
	}
}

func (n *Network) isInitialized() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.initialized
}

// AdapterReady reports whether the adapter has completed Init and is
// being actively scanned. Used by the status API's health check.
func (n *Network) AdapterReady() bool {
	return n.isInitialized()
}

func (n *Network) stopped() bool {
	select {
	case <-n.stopCh:
		return true
	default:
		return false
	}
}

func (n *Network) sleepStep(ctx context.Context, total time.Duration) bool {
	elapsed := time.Duration(0)
	ticker := time.NewTicker(stepInterval)
	defer ticker.Stop()
	for elapsed < total {
		select {
		case <-n.stopCh:
			return false
		case <-ctx.Done():
			return false
		case <-ticker.C:
			elapsed += stepInterval
		}
	}
	return true
}

// scan polls addresses 0..14 in ascending order and reconciles the device
// set Not atomic with respect to inbound frames.
func (n *Network) scan(ctx context.Context) {
	for addr := frame.LogicalAddress(0); addr <= maxAddress; addr++ {
		present, err := n.adapter.Poll(ctx, addr)
		if err != nil {
			n.log.Printf("poll %d failed: %v", addr, err)
			n.mu.Lock()
			n.initialized = false
			n.mu.Unlock()
			return
		}

		n.mu.Lock()
		d, known := n.devices[addr]
		switch {
		case present && !known:
			newDev := device.New(addr, n, n.updatePeriod)
			n.devices[addr] = newDev
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				newDev.Run(ctx)
			}()
			n.mu.Unlock()
			if n.sinks.OnDeviceAdded != nil {
				n.sinks.OnDeviceAdded(addr)
			}
		case !present && known:
			delete(n.devices, addr)
			n.mu.Unlock()
			d.Stop()
			if n.sinks.OnDeviceRemoved != nil {
				n.sinks.OnDeviceRemoved(addr)
			}
		default:
			n.mu.Unlock()
		}
	}
}

// Send transmits f, substituting the adapter's own logical address for Src
// when Src is broadcast (15), which is how callers leave the source unset.
// A zero Src is address 0 (TV) and is sent as is.
func (n *Network) Send(ctx context.Context, f frame.Frame) {
	if f.Src == frame.AddressBroadcast {
		f.Src = n.adapter.LogicalAddress()
	}
	if err := n.adapter.Transmit(ctx, f); err != nil {
		n.log.Printf("transmit %s failed: %v", frame.Render(f), err)
	}
}

// ActiveSource broadcasts ACTIVE_SOURCE and SET_STREAM_PATH for pa.
func (n *Network) ActiveSource(ctx context.Context, pa physaddr.Address) {
	hi, lo := pa.Bytes()
	n.Send(ctx, frame.WithOpcode(frame.AddressBroadcast, frame.AddressBroadcast, frame.OpcodeActiveSource, hi, lo))
	n.Send(ctx, frame.WithOpcode(frame.AddressBroadcast, frame.AddressBroadcast, frame.OpcodeSetStreamPath, hi, lo))
}

// StandbyAll and PowerOnAll delegate to the adapter.
func (n *Network) StandbyAll(ctx context.Context) error  { return n.adapter.StandbyAll(ctx) }
func (n *Network) PowerOnAll(ctx context.Context) error  { return n.adapter.PowerOnAll(ctx) }

// Poll exposes a direct adapter poll for the TCP server's poll-request
// handling.
func (n *Network) Poll(ctx context.Context, addr frame.LogicalAddress) (bool, error) {
	return n.adapter.Poll(ctx, addr)
}

// AdapterLogicalAddress exposes the adapter's own source address, used by
// the TCP server to synthesize poll-reply headers.
func (n *Network) AdapterLogicalAddress() frame.LogicalAddress {
	return n.adapter.LogicalAddress()
}

// onFrame is the adapter's inbound callback: strip any echo
// marker, decode, and route. Broadcast frames (src==15) reach every
// device; others reach only the device whose address equals the frame's
// source. Unmatched frames are forwarded to OnCommand.
func (n *Network) onFrame(line string) {
	text := frame.StripMarker(line)
	f, err := frame.Parse(text)
	if err != nil {
		n.log.Printf("malformed frame %q: %v", text, err)
		return
	}

	matched := false
	n.mu.Lock()
	if f.Src == frame.AddressBroadcast {
		for _, d := range n.devices {
			if d.OnFrame(f) {
				matched = true
			}
		}
	} else if d, ok := n.devices[f.Src]; ok {
		matched = d.OnFrame(f)
	}
	n.mu.Unlock()

	if !matched && n.sinks.OnCommand != nil {
		n.sinks.OnCommand(f)
	}
}

// Shutdown marks the network not running, stops every device, and shuts
// down the adapter. Safe against double-call.
func (n *Network) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = false
	for _, d := range n.devices {
		d.Stop()
	}
	n.mu.Unlock()

	select {
	case <-n.stopCh:
	default:
		close(n.stopCh)
	}

	n.wg.Wait()
	return n.adapter.Shutdown(ctx)
}
