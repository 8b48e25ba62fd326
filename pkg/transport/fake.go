package transport

import (
	"context"
	"sync"
)

// FakeCentral is an in-memory Central used by tests: the
// SessionSupervisor tests drive a simulated lock over it instead of a
// real BlueZ adapter.
type FakeCentral struct {
	mu      sync.Mutex
	Devices map[string]DeviceHandle // serial -> handle
	ScanErr error

	// OnConnect, if set, is called synchronously from Connect and lets
	// a test install a peer that reacts to writes (a simulated lock).
	OnConnect func(DeviceHandle, *FakeConnection)
}

// NewFakeCentral creates an empty FakeCentral.
func NewFakeCentral() *FakeCentral {
	return &FakeCentral{Devices: make(map[string]DeviceHandle)}
}

// AddDevice registers a discoverable device for ScanFor.
func (f *FakeCentral) AddDevice(handle DeviceHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Devices[handle.Serial] = handle
}

func (f *FakeCentral) ScanFor(ctx context.Context, serial string) (DeviceHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ScanErr != nil {
		return DeviceHandle{}, f.ScanErr
	}
	if d, ok := f.Devices[serial]; ok {
		return d, nil
	}
	return DeviceHandle{}, ErrScanTimeout
}

func (f *FakeCentral) Connect(ctx context.Context, device DeviceHandle) (Connection, error) {
	conn := &FakeConnection{}
	if f.OnConnect != nil {
		f.OnConnect(device, conn)
	}
	return conn, nil
}

// FakeConnection is an in-memory Connection. Tests set Peer to receive
// writes and use Deliver to simulate an inbound notification.
type FakeConnection struct {
	mu      sync.Mutex
	closed  bool
	handler FrameHandler

	// Peer, if set, is invoked synchronously for every Write so a test
	// can script a simulated lock's responses.
	Peer func(*FakeConnection, []byte)

	Written [][]byte
}

func (c *FakeConnection) RequestHighPriority(ctx context.Context) error {
	return nil
}

func (c *FakeConnection) SetupNotifications(ctx context.Context, handler FrameHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
	return nil
}

func (c *FakeConnection) Write(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.Written = append(c.Written, frame)
	peer := c.Peer
	c.mu.Unlock()
	if peer != nil {
		peer(c, frame)
	}
	return nil
}

func (c *FakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Deliver simulates an inbound notification/indication from the lock
// on the given characteristic.
func (c *FakeConnection) Deliver(ch Characteristic, body []byte) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(ch, body)
	}
}
