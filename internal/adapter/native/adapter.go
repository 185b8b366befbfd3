package native

import (
	"context"
	"sync"

	"github.com/konikvranik/cecbridge/internal/adapter"
	"github.com/konikvranik/cecbridge/internal/frame"
)

// Adapter is the C3 native implementation: a cgo binding to libcec behind a
// single-worker dispatch queue, so blocking libcec calls are never issued
// concurrently with one another.
type Adapter struct {
	deviceName   string
	adapterPath  string
	mu           sync.Mutex
	conn         *connection
	queue        *adapter.WorkerQueue
	inboundFn    adapter.InboundFunc
	initialized  bool
}

// New returns a native adapter that will open deviceName against
// adapterPath (auto-detected when empty).
func New(deviceName, adapterPath string) *Adapter {
	return &Adapter{deviceName: deviceName, adapterPath: adapterPath}
}

func (a *Adapter) SetInboundCallback(fn adapter.InboundFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inboundFn = fn
}

func (a *Adapter) Init(ctx context.Context) error {
	a.mu.Lock()
	if a.initialized {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	queue := adapter.NewWorkerQueue()
	var conn *connection
	err := queue.Do(ctx, func() error {
		c, err := openConnection(a.deviceName)
		if err != nil {
			return err
		}
		if err := c.openAdapter(a.adapterPath); err != nil {
			c.close()
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		queue.Close()
		return err
	}

	a.mu.Lock()
	conn.onCommand = func(f frame.Frame) {
		a.mu.Lock()
		fn := a.inboundFn
		a.mu.Unlock()
		if fn != nil {
			fn(frame.Render(f))
		}
	}
	a.conn = conn
	a.queue = queue
	a.initialized = true
	a.mu.Unlock()

	return nil
}

func (a *Adapter) Poll(ctx context.Context, addr frame.LogicalAddress) (bool, error) {
	a.mu.Lock()
	conn, queue, ok := a.conn, a.queue, a.initialized
	a.mu.Unlock()
	if !ok {
		return false, adapter.ErrNotInitialized
	}

	var present bool
	err := queue.Do(ctx, func() error {
		present = conn.pollDevice(addr)
		return nil
	})
	return present, err
}

func (a *Adapter) Transmit(ctx context.Context, f frame.Frame) error {
	a.mu.Lock()
	conn, queue, ok := a.conn, a.queue, a.initialized
	a.mu.Unlock()
	if !ok {
		return adapter.ErrNotInitialized
	}
	return queue.Do(ctx, func() error {
		return conn.transmit(f)
	})
}

func (a *Adapter) StandbyAll(ctx context.Context) error {
	a.mu.Lock()
	conn, queue, ok := a.conn, a.queue, a.initialized
	a.mu.Unlock()
	if !ok {
		return adapter.ErrNotInitialized
	}
	return queue.Do(ctx, func() error {
		return conn.standbyAll()
	})
}

func (a *Adapter) PowerOnAll(ctx context.Context) error {
	a.mu.Lock()
	conn, queue, ok := a.conn, a.queue, a.initialized
	a.mu.Unlock()
	if !ok {
		return adapter.ErrNotInitialized
	}
	return queue.Do(ctx, func() error {
		return conn.powerOnAll()
	})
}

func (a *Adapter) LogicalAddress() frame.LogicalAddress {
	a.mu.Lock()
	conn, ok := a.conn, a.initialized
	a.mu.Unlock()
	if !ok {
		return frame.AddressBroadcast
	}
	return conn.logicalAddress()
}

func (a *Adapter) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	conn, queue, ok := a.conn, a.queue, a.initialized
	if !ok {
		a.mu.Unlock()
		return nil
	}
	a.conn = nil
	a.queue = nil
	a.initialized = false
	a.inboundFn = nil
	a.mu.Unlock()

	err := queue.Do(ctx, func() error {
		conn.close()
		return nil
	})
	queue.Close()
	return err
}

var _ adapter.Adapter = (*Adapter)(nil)
