// Package transport turns a driver.Platform into a set of logical devices: inputs and
// outputs sharing name and manufacturer are paired, every input is listened on and
// outputs are opened on first send.
package transport

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/gethiox/rc10r/internal/pkg/logger"
	"github.com/gethiox/rc10r/internal/pkg/midi"
	"github.com/gethiox/rc10r/internal/pkg/midi/driver"
	"github.com/gethiox/rc10r/internal/pkg/utils"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
	Error
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Device is a logical MIDI device. Either Input or Output may be nil, never both.
type Device struct {
	ID           string
	Name         string
	Manufacturer string
	Input        driver.In
	Output       driver.Out
}

func (d Device) String() string {
	return driver.Pair{Input: d.Input, Output: d.Output}.String()
}

type (
	MessageHandler func(deviceID string, msg midi.Event)
	StatusHandler  func(status Status, err error)
	DevicesHandler func(devices []Device)
)

type device struct {
	Device
	sendMutex sync.Mutex
}

type Transport struct {
	open driver.Opener

	mutex        sync.RWMutex
	platform     driver.Platform
	stopPlatform func()
	devices      []*device
	byID         map[string]*device
	stopListen   []func()
	scanMutex    sync.Mutex

	statusMutex sync.Mutex // serializes status notifications
	status      Status
	statusErr   error

	messageListeners *utils.Registry[MessageHandler]
	statusListeners  *utils.Registry[StatusHandler]
	deviceListeners  *utils.Registry[DevicesHandler]
}

func New(open driver.Opener) *Transport {
	return &Transport{
		open:             open,
		byID:             make(map[string]*device),
		messageListeners: utils.NewRegistry[MessageHandler](),
		statusListeners:  utils.NewRegistry[StatusHandler](),
		deviceListeners:  utils.NewRegistry[DevicesHandler](),
	}
}

// Initialize acquires the platform, watches it for port changes and performs the first scan.
// Returned errors wrap driver.ErrUnsupported or driver.ErrAccessDenied.
func (t *Transport) Initialize(sysex bool) error {
	t.mutex.RLock()
	initialized := t.platform != nil
	t.mutex.RUnlock()
	if initialized {
		t.Scan()
		return nil
	}

	t.setStatus(Connecting, nil)

	platform, err := t.open(sysex)
	if err != nil {
		if !errors.Is(err, driver.ErrUnsupported) && !errors.Is(err, driver.ErrAccessDenied) {
			err = fmt.Errorf("%v: %w", err, driver.ErrUnsupported)
		}
		log.Info(fmt.Sprintf("midi initialization failed: %v", err), logger.Error)
		t.setStatus(Error, err)
		return err
	}

	t.mutex.Lock()
	t.platform = platform
	t.stopPlatform = platform.OnStateChange(t.handleStateChange)
	t.mutex.Unlock()

	t.Scan()
	t.setStatus(Connected, nil)
	return nil
}

func (t *Transport) handleStateChange() {
	log.Info("midi port state changed, rescanning", logger.Debug)
	t.Scan()
}

// Scan rebuilds the whole device set from the platform port lists.
func (t *Transport) Scan() {
	t.scanMutex.Lock()
	defer t.scanMutex.Unlock()

	t.mutex.RLock()
	platform := t.platform
	t.mutex.RUnlock()
	if platform == nil {
		return
	}

	ins, err := platform.Inputs()
	if err != nil {
		log.Info(fmt.Sprintf("failed to list inputs: %v", err), logger.Warning)
	}
	outs, err := platform.Outputs()
	if err != nil {
		log.Info(fmt.Sprintf("failed to list outputs: %v", err), logger.Warning)
	}

	devices := pair(ins, outs)

	t.mutex.Lock()
	for _, stop := range t.stopListen {
		stop()
	}
	t.stopListen = nil
	closeStale(t.devices, devices)

	t.devices = devices
	t.byID = make(map[string]*device, len(devices))
	for _, d := range devices {
		t.byID[d.ID] = d
		if d.Input == nil {
			continue
		}
		id := d.ID
		stop, err := d.Input.Listen(func(msg []byte) {
			t.dispatch(id, msg)
		})
		if err != nil {
			log.Info(fmt.Sprintf("failed to listen on input: %v", err), zap.String("device_name", d.Name), logger.Warning)
			continue
		}
		t.stopListen = append(t.stopListen, stop)
	}
	t.mutex.Unlock()

	log.Info(fmt.Sprintf("midi scan finished, %d device(s)", len(devices)), logger.Debug)

	snapshot := t.Devices()
	for _, fn := range t.deviceListeners.Snapshot() {
		fn(snapshot)
	}
}

func portKey(p driver.Port) string {
	return p.Name() + "\x00" + p.Manufacturer()
}

// pair matches inputs and outputs by exact (name, manufacturer). Outputs without an input
// become output-only devices.
func pair(ins []driver.In, outs []driver.Out) []*device {
	var (
		devices = make([]*device, 0, len(ins)+len(outs))
		used    = make([]bool, len(outs))
	)

	for _, in := range ins {
		d := &device{Device: Device{
			ID:           in.ID(),
			Name:         in.Name(),
			Manufacturer: in.Manufacturer(),
			Input:        in,
		}}
		for i, out := range outs {
			if !used[i] && portKey(out) == portKey(in) {
				used[i] = true
				d.Output = out
				break
			}
		}
		devices = append(devices, d)
	}

	for i, out := range outs {
		if used[i] {
			continue
		}
		devices = append(devices, &device{Device: Device{
			ID:           out.ID(),
			Name:         out.Name(),
			Manufacturer: out.Manufacturer(),
			Output:       out,
		}})
	}
	return devices
}

// closeStale closes ports of old devices the platform no longer reports. Ports reused by
// the current scan stay open, listening on an open input only replaces the callback.
func closeStale(old, current []*device) {
	present := make(map[driver.Port]struct{})
	for _, d := range current {
		if d.Input != nil {
			present[d.Input] = struct{}{}
		}
		if d.Output != nil {
			present[d.Output] = struct{}{}
		}
	}
	for _, d := range old {
		for _, p := range []driver.Port{d.Input, d.Output} {
			if p == nil {
				continue
			}
			if _, ok := present[p]; !ok && p.IsOpen() {
				_ = p.Close()
			}
		}
	}
}

func (t *Transport) dispatch(deviceID string, msg []byte) {
	event := midi.Event(msg).Copy()
	for _, fn := range t.messageListeners.Snapshot() {
		fn(deviceID, event)
	}
}

// Send delivers msg to the output of given device. It returns false when the device is
// unknown, has no output or the send failed.
func (t *Transport) Send(deviceID string, msg midi.Event) bool {
	t.mutex.RLock()
	d, ok := t.byID[deviceID]
	t.mutex.RUnlock()

	if !ok || d.Output == nil {
		log.Info("send skipped, no output for device", zap.String("device_id", deviceID), logger.Debug)
		return false
	}

	d.sendMutex.Lock()
	defer d.sendMutex.Unlock()

	if !d.Output.IsOpen() {
		err := d.Output.Open()
		if err != nil {
			log.Info(fmt.Sprintf("failed to open output: %v", err), zap.String("device_name", d.Name), logger.Warning)
			return false
		}
	}

	err := d.Output.Send(msg)
	if err != nil {
		log.Info(fmt.Sprintf("send failed: %v", err), zap.String("device_name", d.Name), zap.String("message", msg.String()), logger.Warning)
		return false
	}
	log.Info(msg.String(), zap.String("device_name", d.Name), logger.Debug)
	return true
}

// Broadcast sends msg to every device having an output and reports per-device results.
func (t *Transport) Broadcast(msg midi.Event) map[string]bool {
	results := make(map[string]bool)
	for _, d := range t.Devices() {
		if d.Output == nil {
			continue
		}
		results[d.ID] = t.Send(d.ID, msg)
	}
	return results
}

func (t *Transport) Devices() []Device {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	devices := make([]Device, 0, len(t.devices))
	for _, d := range t.devices {
		devices = append(devices, d.Device)
	}
	return devices
}

func (t *Transport) Device(id string) (Device, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	d, ok := t.byID[id]
	if !ok {
		return Device{}, false
	}
	return d.Device, true
}

// FindDevicesByName returns devices whose name contains pattern, ignoring case.
func (t *Transport) FindDevicesByName(pattern string) []Device {
	pattern = strings.ToLower(pattern)

	var found []Device
	for _, d := range t.Devices() {
		if strings.Contains(strings.ToLower(d.Name), pattern) {
			found = append(found, d)
		}
	}
	return found
}

// FindDevicesByPattern returns devices whose name matches re.
func (t *Transport) FindDevicesByPattern(re *regexp.Regexp) []Device {
	var found []Device
	for _, d := range t.Devices() {
		if re.MatchString(d.Name) {
			found = append(found, d)
		}
	}
	return found
}

func (t *Transport) OnMessage(fn MessageHandler) (remove func()) {
	_, remove = t.messageListeners.Add(fn)
	return remove
}

// OnStatusChange registers fn and immediately calls it with the current status.
// fn must not change the transport status synchronously.
func (t *Transport) OnStatusChange(fn StatusHandler) (remove func()) {
	t.statusMutex.Lock()
	defer t.statusMutex.Unlock()

	_, remove = t.statusListeners.Add(fn)
	fn(t.status, t.statusErr)
	return remove
}

// OnDevicesChanged registers fn to be called after every scan.
func (t *Transport) OnDevicesChanged(fn DevicesHandler) (remove func()) {
	_, remove = t.deviceListeners.Add(fn)
	return remove
}

func (t *Transport) Status() Status {
	t.statusMutex.Lock()
	defer t.statusMutex.Unlock()
	return t.status
}

// Err returns the error attached to the current status, if any.
func (t *Transport) Err() error {
	t.statusMutex.Lock()
	defer t.statusMutex.Unlock()
	return t.statusErr
}

func (t *Transport) setStatus(status Status, err error) {
	t.statusMutex.Lock()
	if t.status != status {
		log.Info(fmt.Sprintf("midi status: %s -> %s", t.status, status), logger.Debug)
	}
	t.status = status
	t.statusErr = err
	t.statusMutex.Unlock()

	for _, fn := range t.statusListeners.Snapshot() {
		fn(status, err)
	}
}

// Destroy releases the platform and every listener. Current status listeners receive a
// final Disconnected status. Calling Destroy more than once is safe.
func (t *Transport) Destroy() {
	t.mutex.Lock()
	platform := t.platform
	if t.stopPlatform != nil {
		t.stopPlatform()
		t.stopPlatform = nil
	}
	for _, stop := range t.stopListen {
		stop()
	}
	t.stopListen = nil
	closeStale(t.devices, nil)
	t.devices = nil
	t.byID = make(map[string]*device)
	t.platform = nil
	t.mutex.Unlock()

	if platform != nil {
		err := platform.Close()
		if err != nil {
			log.Info(fmt.Sprintf("failed to close midi platform: %v", err), logger.Warning)
		}
	}

	t.setStatus(Disconnected, nil)

	t.messageListeners.Clear()
	t.statusListeners.Clear()
	t.deviceListeners.Clear()
}
