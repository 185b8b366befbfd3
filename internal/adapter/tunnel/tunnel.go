// Package tunnel implements the C7 TCP-tunnel adapter: an adapter.Adapter
// that relays frames over TCP to another instance of this bridge's C6
// server, using the same line grammar. Dials the peer with a fixed
// retry/backoff loop and reads lines with its own CR/LF-tolerant framing.
package tunnel

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/konikvranik/cecbridge/internal/adapter"
	"github.com/konikvranik/cecbridge/internal/frame"
)

const (
	dialRetries   = 5
	dialBackoff   = 3 * time.Second
	pollTimeout   = 5 * time.Second
	pollStep      = 100 * time.Millisecond
)

// Adapter is the C7 implementation. Its own logical address is always
// AddressBroadcast (0xF) since it has no real bus presence.
type Adapter struct {
	addr string
	log  *log.Logger

	mu       sync.Mutex
	conn     net.Conn
	cancel   context.CancelFunc
	inbound  adapter.InboundFunc

	pendingMu sync.Mutex
	pending   map[frame.LogicalAddress]int64
	token     int64
}

// New returns a tunnel adapter that will dial addr (host:port) on Init.
func New(addr string) *Adapter {
	return &Adapter{
		addr:    addr,
		log:     log.New(log.Writer(), "[adapter/tunnel] ", log.LstdFlags),
		pending: make(map[frame.LogicalAddress]int64),
	}
}

func (a *Adapter) SetInboundCallback(fn adapter.InboundFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inbound = fn
}

func (a *Adapter) LogicalAddress() frame.LogicalAddress {
	return frame.AddressBroadcast
}

// Init dials the peer, making up to dialRetries attempts with dialBackoff
// between them.
func (a *Adapter) Init(ctx context.Context) error {
	a.mu.Lock()
	if a.conn != nil {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	var conn net.Conn
	var err error
	for attempt := 1; attempt <= dialRetries; attempt++ {
		dialer := net.Dialer{}
		conn, err = dialer.DialContext(ctx, "tcp", a.addr)
		if err == nil {
			break
		}
		a.log.Printf("dial %s attempt %d/%d failed: %v", a.addr, attempt, dialRetries, err)
		if attempt < dialRetries {
			select {
			case <-time.After(dialBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err != nil {
		return fmt.Errorf("tunnel: failed to connect to %s after %d attempts: %w", a.addr, dialRetries, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.conn = conn
	a.cancel = cancel
	a.mu.Unlock()

	go a.readLoop(loopCtx, conn)
	return nil
}

func (a *Adapter) readLoop(ctx context.Context, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Split(scanLines)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		a.handleLine(line)
	}

	// EOF or read error: transition to uninitialized
	a.mu.Lock()
	if a.conn == conn {
		a.conn = nil
		a.cancel = nil
	}
	a.mu.Unlock()
	conn.Close()
}

func (a *Adapter) handleLine(rawLine string) {
	line := frame.StripMarker(rawLine)

	if len(line) == 2 {
		f, err := frame.Parse(line)
		if err == nil {
			a.pendingMu.Lock()
			if _, ok := a.pending[f.Src]; ok {
				delete(a.pending, f.Src)
			}
			a.pendingMu.Unlock()
			return
		}
	}

	a.log.Printf("%s%s", frame.MarkerOutbound, line)

	a.mu.Lock()
	fn := a.inbound
	a.mu.Unlock()
	if fn != nil {
		fn(line)
	}
}

// scanLines splits on \r, \n, or \r\n, unlike bufio.ScanLines which only
// understands \n (optionally preceded by \r).
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (a *Adapter) writeLine(ctx context.Context, text string) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return adapter.ErrNotInitialized
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(time.Time{})
	}
	_, err := conn.Write([]byte(text + "\r\n"))
	return err
}

func (a *Adapter) Transmit(ctx context.Context, f frame.Frame) error {
	return a.writeLine(ctx, frame.Render(f))
}

// Poll implements a two-phase poll protocol: send a poll frame, then wait
// up to pollTimeout (checking every pollStep) for the pending-set entry to
// be cleared by the reader.
func (a *Adapter) Poll(ctx context.Context, addr frame.LogicalAddress) (bool, error) {
	a.pendingMu.Lock()
	a.token++
	token := a.token
	a.pending[addr] = token
	a.pendingMu.Unlock()

	pollFrame := frame.Poll(a.LogicalAddress(), addr)
	if err := a.writeLine(ctx, frame.Render(pollFrame)); err != nil {
		a.pendingMu.Lock()
		delete(a.pending, addr)
		a.pendingMu.Unlock()
		return false, err
	}

	deadline := time.NewTimer(pollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollStep)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.pendingMu.Lock()
			cur, stillPending := a.pending[addr]
			a.pendingMu.Unlock()
			if !stillPending || cur != token {
				return true, nil
			}
		case <-deadline.C:
			a.pendingMu.Lock()
			delete(a.pending, addr)
			a.pendingMu.Unlock()
			return false, nil
		case <-ctx.Done():
			a.pendingMu.Lock()
			delete(a.pending, addr)
			a.pendingMu.Unlock()
			return false, ctx.Err()
		}
	}
}

func (a *Adapter) StandbyAll(ctx context.Context) error {
	return a.Transmit(ctx, frame.WithOpcode(a.LogicalAddress(), frame.AddressBroadcast, frame.OpcodeStandby))
}

// PowerOnAll sends a power-toggle key press followed by a key release.
func (a *Adapter) PowerOnAll(ctx context.Context) error {
	press := frame.WithOpcode(a.LogicalAddress(), frame.AddressBroadcast, frame.OpcodeUserControlPressed, frame.KeyPowerToggle)
	if err := a.Transmit(ctx, press); err != nil {
		return err
	}
	release := frame.WithOpcode(a.LogicalAddress(), frame.AddressBroadcast, frame.OpcodeUserControlReleased)
	return a.Transmit(ctx, release)
}

func (a *Adapter) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	conn := a.conn
	cancel := a.cancel
	a.conn = nil
	a.cancel = nil
	a.inbound = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
