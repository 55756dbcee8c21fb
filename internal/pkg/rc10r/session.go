package rc10r

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gethiox/rc10r/internal/pkg/logger"
	"github.com/gethiox/rc10r/internal/pkg/midi"
	"github.com/gethiox/rc10r/internal/pkg/prefs"
	"github.com/gethiox/rc10r/internal/pkg/transport"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// Transport is the part of transport.Transport the session depends on.
type Transport interface {
	Initialize(sysex bool) error
	Send(deviceID string, msg midi.Event) bool
	Devices() []transport.Device
	Device(id string) (transport.Device, bool)
	OnMessage(fn transport.MessageHandler) func()
	OnStatusChange(fn transport.StatusHandler) func()
	OnDevicesChanged(fn transport.DevicesHandler) func()
	Destroy()
}

type SessionState int

const (
	Disconnected SessionState = iota
	Scanning
	Connected
)

func (s SessionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Scanning:
		return "scanning"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

type Settings struct {
	// DeviceName is the canonical port name of the pedal.
	DeviceName string
	// ClockSources are name or manufacturer fragments of devices whose beat clock is followed.
	ClockSources []string
	// Exclude lists port name fragments never picked by automatic discovery.
	Exclude []string
	// SettleDelay is waited after the transport connects, before discovery.
	SettleDelay      time.Duration
	BeatClockTimeout time.Duration
	// DrumNoteLength is the time between drum Note On and Note Off.
	DrumNoteLength time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		DeviceName:       DeviceName,
		ClockSources:     []string{"RC-10", "BOSS"},
		Exclude:          []string{"Midi Through", "Through Port"},
		SettleDelay:      100 * time.Millisecond,
		BeatClockTimeout: DefaultBeatClockTimeout,
		DrumNoteLength:   100 * time.Millisecond,
	}
}

type Option func(*Manager)

// WithClock replaces the wall clock, used by tests.
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) {
		m.clock = clk
	}
}

func WithSettings(s Settings) Option {
	return func(m *Manager) {
		m.settings = s
	}
}

type drumKey struct {
	deviceID string
	channel  int
	note     int
}

type drumRelease struct {
	timer *clock.Timer
	gen   uint64
}

// Manager owns the connection to one pedal.
type Manager struct {
	transport  Transport
	prefs      *prefs.Preferences
	clock      clock.Clock
	settings   Settings
	projection *Projection
	beatClock  *BeatClock

	mutex       sync.Mutex
	state       SessionState
	active      *transport.Device
	discovery   *clock.Timer
	drums       map[drumKey]drumRelease
	drumGen     uint64
	unsubscribe []func()
	destroyed   bool
}

func NewManager(t Transport, p *prefs.Preferences, opts ...Option) *Manager {
	m := &Manager{
		transport:  t,
		prefs:      p,
		clock:      clock.New(),
		settings:   DefaultSettings(),
		projection: NewProjection(),
		drums:      make(map[drumKey]drumRelease),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.prefs == nil {
		m.prefs = prefs.New(prefs.NewMemoryStore())
	}
	m.beatClock = NewBeatClock(m.clock, m.settings.BeatClockTimeout, m.syncBeatClock)
	return m
}

func (m *Manager) syncBeatClock() {
	m.projection.update(func(s *DeviceState) {
		s.BeatClock = m.beatClock.State()
	})
}

// Initialize subscribes to the transport and starts it. Discovery runs once the
// transport reports Connected and the settle delay has passed.
func (m *Manager) Initialize(sysex bool) error {
	m.mutex.Lock()
	m.destroyed = false
	m.mutex.Unlock()

	// a failed Initialize is retried by calling it again, subscriptions are kept from the first call
	m.mutex.Lock()
	if len(m.unsubscribe) == 0 {
		m.unsubscribe = []func(){
			m.transport.OnMessage(m.handleMessage),
			m.transport.OnDevicesChanged(m.handleDevicesChanged),
			m.transport.OnStatusChange(m.handleStatus),
		}
	}
	m.mutex.Unlock()

	return m.transport.Initialize(sysex)
}

func (m *Manager) State() SessionState {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.state
}

// ActiveDevice returns the connected pedal.
func (m *Manager) ActiveDevice() (transport.Device, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.active == nil {
		return transport.Device{}, false
	}
	return *m.active, true
}

func (m *Manager) activeID() (string, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.active == nil {
		return "", false
	}
	return m.active.ID, true
}

func (m *Manager) IsConnected() bool {
	_, ok := m.activeID()
	return ok
}

func (m *Manager) DeviceState() DeviceState {
	return m.projection.Snapshot()
}

func (m *Manager) AddObserver(fn func(DeviceState)) (remove func()) {
	return m.projection.AddObserver(fn)
}

// Devices lists every device the transport knows about.
func (m *Manager) Devices() []transport.Device {
	return m.transport.Devices()
}

func (m *Manager) handleStatus(status transport.Status, err error) {
	switch status {
	case transport.Connected:
		m.scheduleDiscovery()
	case transport.Disconnected:
		m.Disconnect()
	case transport.Error:
		log.Info(fmt.Sprintf("midi unavailable: %v", err), logger.Error)
		m.Disconnect()
	}
}

// handleDevicesChanged follows the active device across rescans and schedules
// rediscovery when it is gone or when nothing is connected.
func (m *Manager) handleDevicesChanged(devices []transport.Device) {
	m.mutex.Lock()
	if m.destroyed {
		m.mutex.Unlock()
		return
	}
	active := m.active
	m.mutex.Unlock()

	if active == nil {
		m.scheduleDiscovery()
		return
	}

	for _, d := range devices {
		if d.ID == active.ID && d.Name == active.Name {
			m.rebind(d)
			return
		}
	}
	for _, d := range devices {
		if d.Name == active.Name && d.Manufacturer == active.Manufacturer {
			log.Info("device moved", zap.String("device_name", d.Name), zap.String("device_id", d.ID), logger.Debug)
			m.rebind(d)
			return
		}
	}

	log.Info("Device disconnected", zap.String("device_name", active.Name), logger.Info)
	m.Disconnect()
	m.scheduleDiscovery()
}

func (m *Manager) rebind(d transport.Device) {
	m.mutex.Lock()
	if m.active != nil {
		m.active = &d
	}
	m.mutex.Unlock()
}

func (m *Manager) scheduleDiscovery() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.destroyed {
		return
	}
	if m.discovery != nil {
		m.discovery.Stop()
	}
	m.discovery = m.clock.AfterFunc(m.settings.SettleDelay, m.runDiscovery)
}

func (m *Manager) runDiscovery() {
	m.mutex.Lock()
	skip := m.destroyed || m.active != nil
	m.discovery = nil
	m.mutex.Unlock()
	if skip {
		return
	}
	m.ScanForDevice()
}

func (m *Manager) isClockSource(deviceID string) bool {
	d, ok := m.transport.Device(deviceID)
	if ok {
		name, manufacturer := strings.ToLower(d.Name), strings.ToLower(d.Manufacturer)
		for _, src := range m.settings.ClockSources {
			src = strings.ToLower(src)
			if src == "" {
				continue
			}
			if strings.Contains(name, src) || strings.Contains(manufacturer, src) {
				return true
			}
		}
	}
	id, active := m.activeID()
	return active && id == deviceID
}

func (m *Manager) handleMessage(deviceID string, msg midi.Event) {
	if len(msg) == 0 {
		return
	}

	if midi.IsRealtime(msg[0]) {
		if m.isClockSource(deviceID) {
			m.beatClock.Handle(msg[0])
		}
		return
	}

	if id, ok := m.activeID(); !ok || id != deviceID {
		return
	}

	cmd, ok := midi.Decode(msg)
	if !ok {
		log.Info(msg.String(), zap.String("device_id", deviceID), logger.Traffic)
		return
	}

	switch cmd.Type {
	case midi.ProgramChange:
		m.handleProgramChange(cmd)
	default:
		log.Info(msg.String(), zap.String("device_id", deviceID), logger.Traffic)
	}
}

func (m *Manager) handleProgramChange(cmd midi.Command) {
	switch cmd.Channel {
	case m.prefs.ControlChannel():
		if cmd.Program > MaxPatch {
			log.Info(fmt.Sprintf("ignoring patch change out of range: %d", cmd.Program), logger.Traffic)
			return
		}
		log.Info(fmt.Sprintf("patch changed on device: %d", cmd.Program+1), logger.Traffic)
		m.projection.update(func(s *DeviceState) {
			s.Patch.Current = cmd.Program
		})
	case RhythmChannel:
		log.Info(fmt.Sprintf("rhythm kit changed on device: %d", cmd.Program), logger.Traffic)
		m.projection.update(func(s *DeviceState) {
			s.Rhythm.Kit = cmd.Program
		})
	default:
		log.Info(fmt.Sprintf("program change on unused channel %d", cmd.Channel), logger.Traffic)
	}
}

// Disconnect forgets the active device and resets the projected state.
func (m *Manager) Disconnect() {
	m.mutex.Lock()
	m.active = nil
	m.state = Disconnected
	pending := m.takeDrumReleases()
	m.mutex.Unlock()

	m.flushDrums(pending)
	m.beatClock.Reset()
	m.projection.reset()
}

// Destroy unsubscribes from the transport, cancels timers and destroys the transport.
func (m *Manager) Destroy() {
	m.mutex.Lock()
	if m.destroyed {
		m.mutex.Unlock()
		return
	}
	m.destroyed = true
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	if m.discovery != nil {
		m.discovery.Stop()
		m.discovery = nil
	}
	m.mutex.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	m.Disconnect()
	m.transport.Destroy()
}
