package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	data := []byte(`
[rc10r]
device_name = RC-10R
clock_sources = RC-10, BOSS, Looper
exclude = Midi Through
settle_delay = 250
beat_clock_timeout = 1500
drum_note_length = 80

[midi]
driver = raw
sysex = true
discovery_rate = 4
virtual_port = rc10r

[preferences]
path = /tmp/prefs.yaml
watch = false
`)
	c, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "RC-10R", c.RC10R.DeviceName)
	assert.Equal(t, []string{"RC-10", "BOSS", "Looper"}, c.RC10R.ClockSources)
	assert.Equal(t, []string{"Midi Through"}, c.RC10R.Exclude)
	assert.Equal(t, 250*time.Millisecond, c.RC10R.SettleDelay)
	assert.Equal(t, 1500*time.Millisecond, c.RC10R.BeatClockTimeout)
	assert.Equal(t, 80*time.Millisecond, c.RC10R.DrumNoteLength)

	assert.Equal(t, DriverRaw, c.MIDI.Driver)
	assert.True(t, c.MIDI.SysEx)
	assert.Equal(t, 250*time.Millisecond, c.MIDI.DiscoveryRate)
	assert.Equal(t, "rc10r", c.MIDI.VirtualPort)

	assert.Equal(t, "/tmp/prefs.yaml", c.Preferences.Path)
	assert.False(t, c.Preferences.Watch)
}

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte("[midi]\nsysex = true\n"))
	require.NoError(t, err)

	expected := Default()
	expected.MIDI.SysEx = true
	assert.Equal(t, expected, c)
	assert.Equal(t, 2*time.Second, c.RC10R.BeatClockTimeout)
	assert.Equal(t, 100*time.Millisecond, c.RC10R.SettleDelay)
}

func TestParse_Errors(t *testing.T) {
	for _, tc := range []struct {
		name string
		data string
	}{
		{name: "bad int", data: "[rc10r]\nsettle_delay = soon\n"},
		{name: "negative", data: "[rc10r]\ndrum_note_length = -1\n"},
		{name: "zero rate", data: "[midi]\ndiscovery_rate = 0\n"},
		{name: "bad bool", data: "[midi]\nsysex = maybe\n"},
		{name: "unknown driver", data: "[midi]\ndriver = coreaudio\n"},
		{name: "zero timeout", data: "[rc10r]\nbeat_clock_timeout = 0\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rc10r.config")
	require.NoError(t, os.WriteFile(path, []byte("[rc10r]\ndevice_name = RC-10R MkII\n"), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "RC-10R MkII", c.RC10R.DeviceName)

	_, err = Load(filepath.Join(t.TempDir(), "missing.config"))
	assert.Error(t, err)
}
