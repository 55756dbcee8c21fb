// Package config loads rc10r.config (ini) and the rhythm kit list (TOML).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-ini/ini"
)

const (
	DriverRtMidi = "rtmidi"
	DriverRaw    = "raw"
	DriverMock   = "mock"
)

type RC10R struct {
	DeviceName       string
	ClockSources     []string
	Exclude          []string
	SettleDelay      time.Duration
	BeatClockTimeout time.Duration
	DrumNoteLength   time.Duration
}

type MIDI struct {
	Driver        string
	SysEx         bool
	DiscoveryRate time.Duration
	VirtualPort   string
}

type Preferences struct {
	Path  string
	Watch bool
}

type Config struct {
	RC10R       RC10R
	MIDI        MIDI
	Preferences Preferences
}

func Default() Config {
	return Config{
		RC10R: RC10R{
			DeviceName:       "RC-10R",
			ClockSources:     []string{"RC-10", "BOSS"},
			Exclude:          []string{"Midi Through", "Through Port"},
			SettleDelay:      100 * time.Millisecond,
			BeatClockTimeout: 2000 * time.Millisecond,
			DrumNoteLength:   100 * time.Millisecond,
		},
		MIDI: MIDI{
			Driver:        DriverRtMidi,
			SysEx:         false,
			DiscoveryRate: time.Second,
		},
		Preferences: Preferences{
			Path:  "rc10r-config/preferences.yaml",
			Watch: true,
		},
	}
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read config: %w", err)
	}
	return Parse(data)
}

// Parse reads ini formatted config, missing keys keep their default values.
func Parse(data []byte) (Config, error) {
	cfg, err := ini.Load(data)
	if err != nil {
		return Config{}, fmt.Errorf("cannot parse config: %w", err)
	}

	c := Default()
	p := parser{}

	// [rc10r]
	rc := cfg.Section("rc10r")
	p.str(rc, "device_name", &c.RC10R.DeviceName)
	p.list(rc, "clock_sources", &c.RC10R.ClockSources)
	p.list(rc, "exclude", &c.RC10R.Exclude)
	p.millis(rc, "settle_delay", &c.RC10R.SettleDelay)
	p.millis(rc, "beat_clock_timeout", &c.RC10R.BeatClockTimeout)
	p.millis(rc, "drum_note_length", &c.RC10R.DrumNoteLength)

	// [midi]
	m := cfg.Section("midi")
	p.str(m, "driver", &c.MIDI.Driver)
	p.boolean(m, "sysex", &c.MIDI.SysEx)
	p.rate(m, "discovery_rate", &c.MIDI.DiscoveryRate)
	p.str(m, "virtual_port", &c.MIDI.VirtualPort)

	// [preferences]
	pr := cfg.Section("preferences")
	p.str(pr, "path", &c.Preferences.Path)
	p.boolean(pr, "watch", &c.Preferences.Watch)

	if p.err != nil {
		return Config{}, p.err
	}

	switch c.MIDI.Driver {
	case DriverRtMidi, DriverRaw, DriverMock:
	default:
		return Config{}, fmt.Errorf("unsupported midi driver: %q", c.MIDI.Driver)
	}
	if c.RC10R.BeatClockTimeout == 0 {
		return Config{}, fmt.Errorf("beat_clock_timeout must be greater than 0")
	}

	return c, nil
}

// parser keeps the first error, later calls become no-ops.
type parser struct {
	err error
}

func (p *parser) key(s *ini.Section, name string) (*ini.Key, bool) {
	if p.err != nil || !s.HasKey(name) {
		return nil, false
	}
	return s.Key(name), true
}

func (p *parser) str(s *ini.Section, name string, dst *string) {
	if k, ok := p.key(s, name); ok {
		*dst = strings.TrimSpace(k.String())
	}
}

func (p *parser) list(s *ini.Section, name string, dst *[]string) {
	k, ok := p.key(s, name)
	if !ok {
		return
	}
	var out []string
	for _, v := range k.Strings(",") {
		if v != "" {
			out = append(out, v)
		}
	}
	*dst = out
}

func (p *parser) boolean(s *ini.Section, name string, dst *bool) {
	k, ok := p.key(s, name)
	if !ok {
		return
	}
	b, err := k.Bool()
	if err != nil {
		p.err = fmt.Errorf("[%s] %s: %w", s.Name(), name, err)
		return
	}
	*dst = b
}

func (p *parser) integer(s *ini.Section, name string) (int, bool) {
	k, ok := p.key(s, name)
	if !ok {
		return 0, false
	}
	i, err := k.Int()
	if err != nil {
		p.err = fmt.Errorf("[%s] %s: %w", s.Name(), name, err)
		return 0, false
	}
	if i < 0 {
		p.err = fmt.Errorf("[%s] %s: negative value %d", s.Name(), name, i)
		return 0, false
	}
	return i, true
}

func (p *parser) millis(s *ini.Section, name string, dst *time.Duration) {
	if i, ok := p.integer(s, name); ok {
		*dst = time.Millisecond * time.Duration(i)
	}
}

// rate reads a frequency in Hz as the corresponding period.
func (p *parser) rate(s *ini.Section, name string, dst *time.Duration) {
	i, ok := p.integer(s, name)
	if !ok {
		return
	}
	if i == 0 {
		p.err = fmt.Errorf("[%s] %s: rate must be greater than 0", s.Name(), name)
		return
	}
	*dst = time.Second / time.Duration(i)
}
