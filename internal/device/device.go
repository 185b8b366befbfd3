// Package device implements the per-logical-address HDMI device cache and
// its refresh loop: a network-owned, continuously refreshed cache fed by
// frames rather than on-demand synchronous library calls.
package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/konikvranik/cecbridge/internal/frame"
	"github.com/konikvranik/cecbridge/internal/physaddr"
)

// DefaultUpdatePeriod is the refresh-cycle interval when none is configured.
const DefaultUpdatePeriod = 30 * time.Second

// stepInterval is the cancellation-check granularity mandated
// so Stop is observed within ~300ms.
const stepInterval = 300 * time.Millisecond

// Sender is the subset of the HDMI network a device needs to emit frames;
// implemented by *hdmi.Network. Kept as a narrow interface so device does
// not import the network package.
type Sender interface {
	Send(ctx context.Context, f frame.Frame)
}

// Audio holds the device's audio status.
type Audio struct {
	Mute   bool
	Volume int // 0..100, or -1 when unknown
}

// Device is the cached state for one logical address, plus its
// independent refresh loop.
type Device struct {
	Address frame.LogicalAddress

	mu              sync.RWMutex
	osdName         string
	vendorID        uint32
	physicalAddress physaddr.Address
	deviceType      int // -1 when unknown
	powerStatus     uint8
	deckStatus      byte
	hasDeckStatus   bool
	audio           Audio

	fresh struct {
		power, osdName, vendor, physAddr, deck, audio bool
	}

	network      Sender
	updatePeriod time.Duration
	stopCh       chan struct{}
	stoppedCh    chan struct{}
	stopOnce     sync.Once
}

// New constructs a device for addr backed by network, with the given
// refresh period (DefaultUpdatePeriod if zero).
func New(addr frame.LogicalAddress, network Sender, updatePeriod time.Duration) *Device {
	if updatePeriod <= 0 {
		updatePeriod = DefaultUpdatePeriod
	}
	d := &Device{
		Address:      addr,
		deviceType:   -1,
		network:      network,
		updatePeriod: updatePeriod,
		stopCh:       make(chan struct{}),
		stoppedCh:    make(chan struct{}),
	}
	d.audio.Volume = -1
	return d
}

// OnFrame absorbs an inbound frame whose Src equals d.Address (or a
// broadcast frame routed here by the network). Returns true iff some field
// was updated — the network uses this to decide whether to forward the
// frame to its external command sink.
func (d *Device) OnFrame(f frame.Frame) bool {
	if f.Opcode == nil {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch *f.Opcode {
	case frame.OpcodeReportPowerStatus:
		if len(f.Operands) < 1 {
			return false
		}
		d.powerStatus = f.Operands[0]
		d.fresh.power = true
		return true

	case frame.OpcodeSetOSDName:
		d.osdName = decodeOSDName(f.Operands)
		d.fresh.osdName = true
		return true

	case frame.OpcodeDeviceVendorID:
		if len(f.Operands) < 3 {
			return false
		}
		d.vendorID = uint32(f.Operands[0])<<16 | uint32(f.Operands[1])<<8 | uint32(f.Operands[2])
		d.fresh.vendor = true
		return true

	case frame.OpcodeReportPhysicalAddress:
		if len(f.Operands) < 2 {
			return false
		}
		d.physicalAddress = physaddr.FromBytes(f.Operands[0], f.Operands[1])
		if len(f.Operands) >= 3 {
			d.deviceType = int(f.Operands[2])
		}
		d.fresh.physAddr = true
		return true

	case frame.OpcodeDeckStatus:
		if len(f.Operands) < 1 {
			return false
		}
		d.deckStatus = f.Operands[0]
		d.hasDeckStatus = true
		d.fresh.deck = true
		return true

	case frame.OpcodeReportAudioStatus:
		if len(f.Operands) < 1 {
			return false
		}
		b := f.Operands[0]
		if b == 0x7F {
			// "unknown" sentinel: leave volume unchanged, not fresh.
			d.audio.Mute = b&0x80 != 0
			return true
		}
		d.audio.Mute = b&0x80 != 0
		vol := int(b & 0x7F)
		if vol > 100 {
			vol = 100
		}
		d.audio.Volume = vol
		d.fresh.audio = true
		return true

	default:
		return false
	}
}

// decodeOSDName turns the SET_OSD_NAME operand bytes into an ASCII string.
// NUL padding bytes are dropped wherever they occur rather than treated as
// a terminator, so trailing NULs never truncate the name.
func decodeOSDName(operands []byte) string {
	b := make([]byte, 0, len(operands))
	for _, c := range operands {
		if c == 0 {
			continue
		}
		b = append(b, c)
	}
	return string(b)
}

// Snapshot is an immutable copy of a device's current state, safe to read
// without holding the device's lock (used by the status API, C9).
type Snapshot struct {
	Address         frame.LogicalAddress
	OSDName         string
	VendorID        uint32
	PhysicalAddress physaddr.Address
	DeviceType      int
	PowerStatus     uint8
	DeckStatus      byte
	HasDeckStatus   bool
	Audio           Audio
}

// Snapshot returns a copy of the device's current cached state.
func (d *Device) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Snapshot{
		Address:         d.Address,
		OSDName:         d.osdName,
		VendorID:        d.vendorID,
		PhysicalAddress: d.physicalAddress,
		DeviceType:      d.deviceType,
		PowerStatus:     d.powerStatus,
		DeckStatus:      d.deckStatus,
		HasDeckStatus:   d.hasDeckStatus,
		Audio:           d.audio,
	}
}

// IsOn reports whether the last known power status is "on" (0x00).
func (d *Device) IsOn() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.powerStatus == 0x00
}

// IsOff reports whether the last known power status is "standby" (0x01).
func (d *Device) IsOff() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.powerStatus == 0x01
}

// updateableRequests lists (request opcode, no operands) the refresh loop
// emits once per cycle
var updateableRequests = []frame.Opcode{
	frame.OpcodeGiveDevicePowerStatus,
	frame.OpcodeGiveOSDName,
	frame.OpcodeGiveDeviceVendorID,
	frame.OpcodeGivePhysicalAddress,
	frame.OpcodeGiveDeckStatus,
	frame.OpcodeGiveAudioStatus,
}

// Run is the device's refresh loop: a cooperative task that clears the
// fresh flags, emits one request frame per updateable property, then
// sleeps in stepInterval steps for updatePeriod, checking Stop on every
// step. Intended to run in its own goroutine, one per device.
func (d *Device) Run(ctx context.Context) {
	defer close(d.stoppedCh)

	for {
		d.clearFresh()
		for _, op := range updateableRequests {
			f := frame.WithOpcode(frame.AddressBroadcast, d.Address, op)
			// Src is left as broadcast; the network substitutes its own
			// logical address on Send
			d.network.Send(ctx, f)
		}

		if !d.sleepStep(ctx, d.updatePeriod) {
			return
		}
	}
}

func (d *Device) clearFresh() {
	d.mu.Lock()
	d.fresh.power = false
	d.fresh.osdName = false
	d.fresh.vendor = false
	d.fresh.physAddr = false
	d.fresh.deck = false
	d.fresh.audio = false
	d.mu.Unlock()
}

// sleepStep sleeps for total time in stepInterval increments, returning
// false if Stop or ctx cancellation was observed first.
func (d *Device) sleepStep(ctx context.Context, total time.Duration) bool {
	elapsed := time.Duration(0)
	ticker := time.NewTicker(stepInterval)
	defer ticker.Stop()

	for elapsed < total {
		select {
		case <-d.stopCh:
			return false
		case <-ctx.Done():
			return false
		case <-ticker.C:
			elapsed += stepInterval
		}
	}
	return true
}

// Stop signals the refresh loop to exit at its next step boundary. Clears
// no state
func (d *Device) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// Wait blocks until the refresh loop has exited.
func (d *Device) Wait() {
	<-d.stoppedCh
}

// control implements TurnOn/TurnOff/Toggle by sending a single
// USER_CONTROL_PRESSED key-press frame.
func (d *Device) control(ctx context.Context, key uint8) {
	f := frame.WithOpcode(frame.AddressBroadcast, d.Address, frame.OpcodeUserControlPressed, key)
	d.network.Send(ctx, f)
}

func (d *Device) TurnOn(ctx context.Context)  { d.control(ctx, frame.KeyPowerOn) }
func (d *Device) TurnOff(ctx context.Context) { d.control(ctx, frame.KeyPowerOff) }
func (d *Device) Toggle(ctx context.Context)  { d.control(ctx, frame.KeyPowerToggle) }

func (d *Device) String() string {
	s := d.Snapshot()
	return fmt.Sprintf("HDMI %d: vendor 0x%06x, %s (%s), power %d",
		s.Address, s.VendorID, s.OSDName, s.PhysicalAddress.Dotted(), s.PowerStatus)
}
