// Package native implements the adapter.Adapter capability surface (C3) on
// top of libcec via cgo, calling directly into the C API rather than
// through a higher-level wrapper. It exposes only what this bridge needs:
// open/close, poll, transmit, standby/power-on broadcast, and the inbound
// command callback.
package native

/*
#cgo pkg-config: libcec
#include <libcec/cecc.h>
#include <stdlib.h>

extern void goNativeCommandCallback(void*, const cec_command*);
extern void goNativeLogCallback(void*, const cec_log_message*);

static ICECCallbacks* cecbridge_create_callbacks() {
    ICECCallbacks* callbacks = (ICECCallbacks*)malloc(sizeof(ICECCallbacks));
    callbacks->commandReceived = goNativeCommandCallback;
    callbacks->logMessage = goNativeLogCallback;
    return callbacks;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"unsafe"

	"github.com/konikvranik/cecbridge/internal/frame"
)

// connection wraps a single libcec_connection_t, scoped to what the
// adapter needs.
type connection struct {
	handle      C.libcec_connection_t
	deviceName  string
	onCommand   func(cmd frame.Frame)
	initialized bool
}

var (
	registry   = make(map[C.libcec_connection_t]*connection)
	registryMu sync.RWMutex
)

func openConnection(deviceName string) (*connection, error) {
	cConfig := C.libcec_configuration{}
	C.libcec_clear_configuration(&cConfig)

	cDeviceName := C.CString(deviceName)
	defer C.free(unsafe.Pointer(cDeviceName))
	C.strncpy(&cConfig.strDeviceName[0], cDeviceName, 13)

	cConfig.deviceTypes.types[0] = C.CEC_DEVICE_TYPE_PLAYBACK_DEVICE
	cConfig.iPhysicalAddress = 0xFFFF // auto-detect
	cConfig.clientVersion = C.LIBCEC_VERSION_CURRENT
	cConfig.callbacks = C.cecbridge_create_callbacks()

	handle := C.libcec_initialise(&cConfig)
	if handle == nil {
		return nil, errors.New("native: libcec_initialise failed")
	}

	conn := &connection{handle: handle, deviceName: deviceName}
	registryMu.Lock()
	registry[handle] = conn
	registryMu.Unlock()

	return conn, nil
}

// openAdapter opens the given adapter path, or the first adapter libcec
// finds when path is empty.
func (c *connection) openAdapter(path string) error {
	if path == "" {
		var adapters [1]C.cec_adapter
		n := C.libcec_find_adapters(c.handle, &adapters[0], 1, nil)
		if n <= 0 {
			return errors.New("native: no CEC adapters found")
		}
		path = C.GoString(&adapters[0].comm[0])
	}

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	if C.libcec_open(c.handle, cPath, 5000) == 0 {
		return fmt.Errorf("native: failed to open adapter %q", path)
	}
	c.initialized = true
	return nil
}

func (c *connection) close() {
	if !c.initialized {
		return
	}
	registryMu.Lock()
	delete(registry, c.handle)
	registryMu.Unlock()

	C.libcec_close(c.handle)
	C.libcec_destroy(c.handle)
	c.initialized = false
}

// pollDevice asks libcec whether address acknowledges a poll.
func (c *connection) pollDevice(addr frame.LogicalAddress) bool {
	return C.libcec_poll_device(c.handle, C.cec_logical_address(addr)) != 0
}

// transmit sends a fully-formed frame as a raw cec_command.
func (c *connection) transmit(f frame.Frame) error {
	cCmd := C.cec_command{}
	cCmd.initiator = C.cec_logical_address(f.Src)
	cCmd.destination = C.cec_logical_address(f.Dst)
	if f.Opcode != nil {
		cCmd.opcode = C.cec_opcode(*f.Opcode)
		cCmd.opcode_set = 1
	}
	cCmd.parameters.size = C.uint8_t(len(f.Operands))
	for i, b := range f.Operands {
		cCmd.parameters.data[i] = C.uint8_t(b)
	}

	if C.libcec_transmit(c.handle, &cCmd) == 0 {
		return fmt.Errorf("native: transmit %s failed", frame.Render(f))
	}
	return nil
}

func (c *connection) standbyAll() error {
	if C.libcec_standby_devices(c.handle, C.CECDEVICE_BROADCAST) == 0 {
		return errors.New("native: standby broadcast failed")
	}
	return nil
}

func (c *connection) powerOnAll() error {
	if C.libcec_power_on_devices(c.handle, C.CECDEVICE_BROADCAST) == 0 {
		return errors.New("native: power-on broadcast failed")
	}
	return nil
}

// logicalAddress returns the adapter's own primary logical address.
func (c *connection) logicalAddress() frame.LogicalAddress {
	addrs := C.libcec_get_logical_addresses(c.handle)
	return frame.LogicalAddress(addrs.primary)
}

//export goNativeCommandCallback
func goNativeCommandCallback(handlePtr unsafe.Pointer, commandPtr unsafe.Pointer) {
	registryMu.RLock()
	conn, ok := registry[C.libcec_connection_t(handlePtr)]
	registryMu.RUnlock()
	if !ok || conn.onCommand == nil {
		return
	}

	cCmd := (*C.cec_command)(commandPtr)
	f := frame.Frame{
		Src: frame.LogicalAddress(cCmd.initiator),
		Dst: frame.LogicalAddress(cCmd.destination),
	}
	if cCmd.opcode_set != 0 {
		op := frame.Opcode(cCmd.opcode)
		f.Opcode = &op
		for i := 0; i < int(cCmd.parameters.size); i++ {
			f.Operands = append(f.Operands, byte(cCmd.parameters.data[i]))
		}
	}
	conn.onCommand(f)
}

//export goNativeLogCallback
func goNativeLogCallback(handlePtr unsafe.Pointer, msgPtr unsafe.Pointer) {
	msg := (*C.cec_log_message)(msgPtr)
	if msg.level == C.CEC_LOG_TRAFFIC || msg.level == C.CEC_LOG_DEBUG {
		return
	}
	log.Printf("[libcec] %s", C.GoString(&msg.message[0]))
}
