//go:build linux

package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	dbus "github.com/godbus/dbus/v5"
)

const (
	bluezService     = "org.bluez"
	adapterIface     = "org.bluez.Adapter1"
	deviceIface      = "org.bluez.Device1"
	gattServiceIface = "org.bluez.GattService1"
	gattCharIface    = "org.bluez.GattCharacteristic1"
	objManagerIface  = "org.freedesktop.DBus.ObjectManager"
	propsIface       = "org.freedesktop.DBus.Properties"
)

// ServiceUUID identifies the lock's primary GATT service. The four
// characteristics transport.Characteristic enumerates are located
// underneath it by their own fixed UUIDs.
type ServiceUUID string

// CharacteristicUUIDs maps the four logical characteristics this
// package uses to their GATT UUIDs on the lock.
type CharacteristicUUIDs struct {
	Send         string
	SecureNotify string
	LockIndicate string
	LockNotify   string
}

// BlueZCentral is the production Central backed by BlueZ over the
// system D-Bus, following the same connect-once/ObjectManager-scan
// shape as a classic BlueZ profile client: one shared *dbus.Conn,
// discovery by walking GetManagedObjects and then watching
// InterfacesAdded until the target shows up or ctx is done.
type BlueZCentral struct {
	Service ServiceUUID
	Chars   CharacteristicUUIDs

	mu  sync.Mutex
	bus *dbus.Conn
}

// NewBlueZCentral creates a Central for the given service and
// characteristic UUIDs. The system bus connection is established
// lazily on first use.
func NewBlueZCentral(service ServiceUUID, chars CharacteristicUUIDs) *BlueZCentral {
	return &BlueZCentral{Service: service, Chars: chars}
}

func (c *BlueZCentral) ensureBus() (*dbus.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bus != nil {
		return c.bus, nil
	}
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("transport: connect system bus: %w", err)
	}
	c.bus = bus
	return bus, nil
}

func (c *BlueZCentral) ScanFor(ctx context.Context, serial string) (DeviceHandle, error) {
	bus, err := c.ensureBus()
	if err != nil {
		return DeviceHandle{}, err
	}

	adapters, err := listAdapters(bus)
	if err != nil {
		return DeviceHandle{}, err
	}
	for _, ap := range adapters {
		if call := bus.Object(bluezService, ap).Call(adapterIface+".StartDiscovery", 0); call.Err != nil {
			return DeviceHandle{}, ErrScanThrottled
		}
		defer func(p dbus.ObjectPath) { _ = bus.Object(bluezService, p).Call(adapterIface+".StopDiscovery", 0).Err }(ap)
	}

	if handle, ok, err := c.matchExisting(bus, serial); err != nil {
		return DeviceHandle{}, err
	} else if ok {
		return handle, nil
	}

	sigCh := make(chan *dbus.Signal, 16)
	bus.Signal(sigCh)
	defer bus.RemoveSignal(sigCh)
	if err := bus.AddMatchSignal(
		dbus.WithMatchInterface(objManagerIface),
		dbus.WithMatchMember("InterfacesAdded"),
	); err != nil {
		return DeviceHandle{}, fmt.Errorf("transport: AddMatchSignal: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return DeviceHandle{}, ErrScanTimeout
		case sig := <-sigCh:
			if sig == nil || len(sig.Body) < 2 {
				continue
			}
			path, _ := sig.Body[0].(dbus.ObjectPath)
			ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
			if handle, ok := deviceMatchesSerial(path, ifaces, serial, c.Service); ok {
				return handle, nil
			}
		}
	}
}

func (c *BlueZCentral) matchExisting(bus *dbus.Conn, serial string) (DeviceHandle, bool, error) {
	obj := bus.Object(bluezService, dbus.ObjectPath("/"))
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if call := obj.Call(objManagerIface+".GetManagedObjects", 0); call.Err != nil {
		return DeviceHandle{}, false, fmt.Errorf("transport: GetManagedObjects: %w", call.Err)
	} else if err := call.Store(&objs); err != nil {
		return DeviceHandle{}, false, fmt.Errorf("transport: decode GetManagedObjects: %w", err)
	}
	for path, ifaces := range objs {
		if handle, ok := deviceMatchesSerial(path, ifaces, serial, c.Service); ok {
			return handle, true, nil
		}
	}
	return DeviceHandle{}, false, nil
}

// serialFromServiceUUID extracts the trailing 14-character serial from
// an advertised service UUID that is an instance of the lock's service
// template: everything but the last 14 characters of uuid must match
// service's own prefix, case-insensitively. A UUID that doesn't share
// that prefix, or isn't the same length as the template, belongs to
// some other advertised service and is not a match.
func serialFromServiceUUID(uuid string, service ServiceUUID) (string, bool) {
	tmpl := string(service)
	if len(uuid) != len(tmpl) || len(uuid) < 14 {
		return "", false
	}
	prefixLen := len(uuid) - 14
	if !strings.EqualFold(uuid[:prefixLen], tmpl[:prefixLen]) {
		return "", false
	}
	return uuid[prefixLen:], true
}

// deviceMatchesSerial reports whether ifaces (a BlueZ ObjectManager
// entry's interfaces, keyed by interface name) is the Device1 that
// advertises the lock's service with the given serial, and if so
// returns a DeviceHandle for it. It reads the device's advertised
// UUIDs property rather than its name, since BlueZ Device1.Name is
// operator-assigned and not part of the lock's discovery contract.
func deviceMatchesSerial(path dbus.ObjectPath, ifaces map[string]map[string]dbus.Variant, serial string, service ServiceUUID) (DeviceHandle, bool) {
	props, ok := ifaces[deviceIface]
	if !ok {
		return DeviceHandle{}, false
	}
	uuids, _ := props["UUIDs"].Value().([]string)
	for _, uuid := range uuids {
		got, ok := serialFromServiceUUID(uuid, service)
		if !ok {
			continue
		}
		if strings.EqualFold(got, serial) {
			return DeviceHandle{Serial: serial, Ref: string(path)}, true
		}
	}
	return DeviceHandle{}, false
}

func listAdapters(bus *dbus.Conn) ([]dbus.ObjectPath, error) {
	obj := bus.Object(bluezService, dbus.ObjectPath("/"))
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if call := obj.Call(objManagerIface+".GetManagedObjects", 0); call.Err != nil {
		return nil, fmt.Errorf("transport: GetManagedObjects: %w", call.Err)
	} else if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("transport: decode GetManagedObjects: %w", err)
	}
	var out []dbus.ObjectPath
	for path, ifaces := range objs {
		if _, ok := ifaces[adapterIface]; ok {
			out = append(out, path)
		}
	}
	return out, nil
}

func (c *BlueZCentral) Connect(ctx context.Context, device DeviceHandle) (Connection, error) {
	bus, err := c.ensureBus()
	if err != nil {
		return nil, err
	}
	devPath := dbus.ObjectPath(device.Ref)
	devObj := bus.Object(bluezService, devPath)
	if call := devObj.Call(deviceIface+".Connect", 0); call.Err != nil {
		return nil, fmt.Errorf("transport: %w: %v", ErrConnectFailed, call.Err)
	}

	chars, err := c.resolveCharacteristics(bus, devPath)
	if err != nil {
		return nil, err
	}
	return &blueZConnection{bus: bus, devPath: devPath, chars: chars}, nil
}

type resolvedChars struct {
	send, secureNotify, lockIndicate, lockNotify dbus.ObjectPath
}

func (c *BlueZCentral) resolveCharacteristics(bus *dbus.Conn, devPath dbus.ObjectPath) (resolvedChars, error) {
	obj := bus.Object(bluezService, dbus.ObjectPath("/"))
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if call := obj.Call(objManagerIface+".GetManagedObjects", 0); call.Err != nil {
		return resolvedChars{}, fmt.Errorf("transport: GetManagedObjects: %w", call.Err)
	} else if err := call.Store(&objs); err != nil {
		return resolvedChars{}, fmt.Errorf("transport: decode GetManagedObjects: %w", err)
	}

	var out resolvedChars
	found := map[string]bool{}
	for path, ifaces := range objs {
		props, ok := ifaces[gattCharIface]
		if !ok || !strings.HasPrefix(string(path), string(devPath)) {
			continue
		}
		uuid, _ := props["UUID"].Value().(string)
		switch {
		case strings.EqualFold(uuid, c.Chars.Send):
			out.send, found["send"] = path, true
		case strings.EqualFold(uuid, c.Chars.SecureNotify):
			out.secureNotify, found["secure"] = path, true
		case strings.EqualFold(uuid, c.Chars.LockIndicate):
			out.lockIndicate, found["indicate"] = path, true
		case strings.EqualFold(uuid, c.Chars.LockNotify):
			out.lockNotify, found["notify"] = path, true
		}
	}
	if !found["send"] || !found["secure"] || !found["indicate"] || !found["notify"] {
		return resolvedChars{}, ErrCharNotFound
	}
	return out, nil
}

type blueZConnection struct {
	bus     *dbus.Conn
	devPath dbus.ObjectPath
	chars   resolvedChars

	mu      sync.Mutex
	closed  bool
	sigCh   chan *dbus.Signal
	stopSig func()
	handler atomic.Pointer[FrameHandler]
}

func (c *blueZConnection) RequestHighPriority(ctx context.Context) error {
	call := c.bus.Object(bluezService, c.devPath).Call(propsIface+".Set", 0, deviceIface, "ConnectionInterval", dbus.MakeVariant(uint16(6)))
	if call.Err != nil {
		return nil // best-effort; not every adapter exposes this property.
	}
	return nil
}

func (c *blueZConnection) SetupNotifications(ctx context.Context, handler FrameHandler) error {
	c.handler.Store(&handler)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sigCh = make(chan *dbus.Signal, 32)
	c.bus.Signal(c.sigCh)
	if err := c.bus.AddMatchSignal(
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return fmt.Errorf("transport: AddMatchSignal: %w", err)
	}
	c.stopSig = func() {
		_ = c.bus.RemoveMatchSignal(dbus.WithMatchInterface(propsIface), dbus.WithMatchMember("PropertiesChanged"))
		c.bus.RemoveSignal(c.sigCh)
	}

	for _, path := range []dbus.ObjectPath{c.chars.secureNotify, c.chars.lockIndicate, c.chars.lockNotify} {
		if call := c.bus.Object(bluezService, path).Call(gattCharIface+".StartNotify", 0); call.Err != nil {
			return fmt.Errorf("transport: StartNotify(%s): %w", path, call.Err)
		}
	}

	go c.dispatchLoop()
	return nil
}

func (c *blueZConnection) dispatchLoop() {
	for sig := range c.sigCh {
		if sig == nil || sig.Name != propsIface+".PropertiesChanged" || len(sig.Body) < 2 {
			continue
		}
		path := sig.Path
		changed, _ := sig.Body[1].(map[string]dbus.Variant)
		v, ok := changed["Value"]
		if !ok {
			continue
		}
		body, ok := v.Value().([]byte)
		if !ok {
			continue
		}
		ch, ok := c.characteristicOf(path)
		if !ok {
			continue
		}
		if h := c.handler.Load(); h != nil {
			(*h)(ch, body)
		}
	}
}

func (c *blueZConnection) characteristicOf(path dbus.ObjectPath) (Characteristic, bool) {
	switch path {
	case c.chars.secureNotify:
		return CharSecureNotify, true
	case c.chars.lockIndicate:
		return CharLockIndicate, true
	case c.chars.lockNotify:
		return CharLockNotify, true
	default:
		return 0, false
	}
}

func (c *blueZConnection) Write(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	opts := map[string]dbus.Variant{"type": dbus.MakeVariant("command")}
	call := c.bus.Object(bluezService, c.chars.send).Call(gattCharIface+".WriteValue", 0, frame, opts)
	if call.Err != nil {
		return fmt.Errorf("transport: WriteValue: %w", call.Err)
	}
	return nil
}

func (c *blueZConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.stopSig != nil {
		c.stopSig()
	}
	_ = c.bus.Object(bluezService, c.devPath).Call(deviceIface+".Disconnect", 0).Err
	return nil
}
