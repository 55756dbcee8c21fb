package rc10r

import (
	"strings"

	"github.com/gethiox/rc10r/internal/pkg/logger"
	"github.com/gethiox/rc10r/internal/pkg/prefs"
	"github.com/gethiox/rc10r/internal/pkg/transport"
	"go.uber.org/zap"
)

type matcher struct {
	stage string
	match func(d transport.Device) bool
}

func (m *Manager) excluded(d transport.Device) bool {
	name := strings.ToLower(d.Name)
	for _, e := range m.settings.Exclude {
		if e != "" && strings.Contains(name, strings.ToLower(e)) {
			return true
		}
	}
	return false
}

// pick returns the first candidate having an output, or the first candidate at all.
func pick(candidates []transport.Device) (transport.Device, bool) {
	if len(candidates) == 0 {
		return transport.Device{}, false
	}
	for _, d := range candidates {
		if d.Output != nil {
			return d, true
		}
	}
	return candidates[0], true
}

func filter(devices []transport.Device, fn func(transport.Device) bool) []transport.Device {
	var out []transport.Device
	for _, d := range devices {
		if fn(d) {
			out = append(out, d)
		}
	}
	return out
}

func (m *Manager) preferred(devices []transport.Device) (transport.Device, bool) {
	rec, ok := m.prefs.PreferredDevice()
	if !ok {
		return transport.Device{}, false
	}
	d, ok := pick(filter(devices, func(d transport.Device) bool {
		return d.ID == rec.ID && d.Name == rec.Name
	}))
	if ok {
		return d, true
	}
	return pick(filter(devices, func(d transport.Device) bool {
		return d.Name == rec.Name
	}))
}

// ScanForDevice looks for the pedal among current devices: the stored preferred device
// first, then the canonical name, then looser name patterns. Automatic matches are never
// stored as preferred.
func (m *Manager) ScanForDevice() bool {
	m.mutex.Lock()
	if m.active == nil {
		m.state = Scanning
	}
	m.mutex.Unlock()

	devices := m.transport.Devices()

	if d, ok := m.preferred(devices); ok {
		log.Info("preferred device found", zap.String("device_name", d.Name), logger.Debug)
		return m.ConnectToDevice(d, false)
	}

	candidates := filter(devices, func(d transport.Device) bool { return !m.excluded(d) })
	for _, stage := range []matcher{
		{stage: "name", match: func(d transport.Device) bool {
			return m.settings.DeviceName != "" && strings.Contains(d.Name, m.settings.DeviceName)
		}},
		{stage: "model pattern", match: func(d transport.Device) bool {
			return modelPattern.MatchString(d.Name)
		}},
		{stage: "manufacturer pattern", match: func(d transport.Device) bool {
			return brandPattern.MatchString(d.Manufacturer + " " + d.Name)
		}},
	} {
		if d, ok := pick(filter(candidates, stage.match)); ok {
			log.Info("device matched", zap.String("device_name", d.Name), zap.String("stage", stage.stage), logger.Debug)
			return m.ConnectToDevice(d, false)
		}
	}

	m.mutex.Lock()
	if m.active == nil {
		m.state = Disconnected
	}
	m.mutex.Unlock()
	log.Info("no device found", zap.Int("devices", len(devices)), logger.Info)
	return false
}

// ConnectToDevice makes d the active device. Only manual selections are remembered
// as the preferred device.
func (m *Manager) ConnectToDevice(d transport.Device, manual bool) bool {
	if d.ID == "" {
		return false
	}

	m.mutex.Lock()
	if m.destroyed {
		m.mutex.Unlock()
		return false
	}
	previous := m.active
	m.active = &d
	m.state = Connected
	if m.discovery != nil {
		m.discovery.Stop()
		m.discovery = nil
	}
	m.mutex.Unlock()

	if previous != nil && previous.ID != d.ID {
		m.beatClock.Reset()
		m.projection.reset()
	}

	m.projection.update(func(s *DeviceState) {
		s.Connected = true
		s.DeviceName = d.Name
		s.Manufacturer = d.Manufacturer
	})

	if manual {
		err := m.prefs.SavePreferredDevice(prefs.DeviceRecord{ID: d.ID, Name: d.Name, Manufacturer: d.Manufacturer})
		if err != nil {
			log.Info("failed to save preferred device", zap.Error(err), logger.Warning)
		}
	}

	log.Info("Device connected", zap.String("device_name", d.Name), zap.String("device_id", d.ID), zap.Bool("manual", manual), logger.Info)
	return true
}

// ConnectByID connects to a device by its transport ID as a manual selection.
func (m *Manager) ConnectByID(id string) bool {
	d, ok := m.transport.Device(id)
	if !ok {
		return false
	}
	return m.ConnectToDevice(d, true)
}
