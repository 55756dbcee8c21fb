package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gethiox/rc10r/internal/pkg/config"
	"github.com/gethiox/rc10r/internal/pkg/midi/driver/mock"
	"github.com/gethiox/rc10r/internal/pkg/prefs"
	"github.com/gethiox/rc10r/internal/pkg/rc10r"
	"github.com/gethiox/rc10r/internal/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type consoleFixture struct {
	console *console
	manager *rc10r.Manager
	prefs   *prefs.Preferences
	pedal   *mock.Output
	module  *mock.Output
	out     *bytes.Buffer
}

func newConsoleFixture(t *testing.T) *consoleFixture {
	t.Helper()

	platform := mock.New()
	_, pedal := platform.AddDevice("in-1", "out-1", "RC-10R", "Roland")
	_, module := platform.AddDevice("in-2", "out-2", "Drum Module", "ACME")

	p := prefs.New(prefs.NewMemoryStore())
	m := rc10r.NewManager(transport.New(platform.Opener()), p, rc10r.WithClock(clock.NewMock()))
	require.NoError(t, m.Initialize(false))
	t.Cleanup(m.Destroy)
	require.True(t, m.ScanForDevice())

	out := &bytes.Buffer{}
	return &consoleFixture{
		console: newConsole(m, p, config.DefaultKits(), newOverview(out, false, config.DefaultKits()), out),
		manager: m,
		prefs:   p,
		pedal:   pedal,
		module:  module,
		out:     out,
	}
}

func TestConsole_Commands(t *testing.T) {
	for _, tc := range []struct {
		command  string
		expected [][]byte
	}{
		{command: "track1 rec", expected: [][]byte{{0xB0, 10, 127}, {0xB0, 10, 0}}},
		{command: "track1 play", expected: [][]byte{{0xB0, 10, 64}, {0xB0, 10, 0}}},
		{command: "TRACK2 Stop", expected: [][]byte{{0xB0, 14, 127}, {0xB0, 14, 0}}},
		{command: "track2 undo", expected: [][]byte{{0xB0, 15, 127}, {0xB0, 15, 0}}},
		{command: "stopall", expected: [][]byte{{0xB0, 19, 127}, {0xB0, 19, 0}}},
		{command: "loop start", expected: [][]byte{{0xB0, 7, 127}, {0xB0, 7, 0}}},
		{command: "loop break", expected: [][]byte{{0xB0, 18, 127}, {0xB0, 18, 0}}},
		{command: "rhythm fill", expected: [][]byte{{0xB0, 3, 127}, {0xB0, 3, 0}}},
		{command: "patch 42", expected: [][]byte{{0xC0, 41}}},
		{command: "kit 5", expected: [][]byte{{0xC1, 5}}},
		{command: "drum C1", expected: [][]byte{{0x91, 36, 127}}},
		{command: "drum 38", expected: [][]byte{{0x91, 38, 127}}},
		{command: "tempo 90", expected: nil},
		{command: "   ", expected: nil},
	} {
		t.Run(tc.command, func(t *testing.T) {
			f := newConsoleFixture(t)
			require.NoError(t, f.console.Execute(tc.command))
			assert.Equal(t, tc.expected, f.pedal.Sent())
		})
	}
}

func TestConsole_Errors(t *testing.T) {
	f := newConsoleFixture(t)

	for _, tc := range []struct {
		command string
		usage   bool
	}{
		{command: "bogus"},
		{command: "track1", usage: true},
		{command: "track1 dance", usage: true},
		{command: "patch", usage: true},
		{command: "patch x", usage: true},
		{command: "patch 100"},
		{command: "kit 0"},
		{command: "sync later", usage: true},
		{command: "drum Q9"},
		{command: "connect nope"},
		{command: "shortcut 4"},
		{command: "channel 17"},
		{command: "stopall now", usage: true},
	} {
		t.Run(tc.command, func(t *testing.T) {
			err := f.console.Execute(tc.command)
			require.Error(t, err)
			assert.Equal(t, tc.usage, errors.Is(err, errUsage), err.Error())
		})
	}
	assert.Empty(t, f.pedal.Sent())
}

func TestConsole_Quit(t *testing.T) {
	f := newConsoleFixture(t)
	assert.ErrorIs(t, f.console.Execute("quit"), errQuit)
}

func TestConsole_Refused(t *testing.T) {
	f := newConsoleFixture(t)
	f.pedal.FailSend(true)
	assert.ErrorIs(t, f.console.Execute("loop stop"), errRefused)
}

func TestConsole_Tempo(t *testing.T) {
	f := newConsoleFixture(t)

	require.NoError(t, f.console.Execute("tempo 250"))
	assert.Equal(t, rc10r.MaxTempo, f.manager.DeviceState().Rhythm.Tempo)
	assert.Contains(t, f.out.String(), "tempo clamped to 200")
}

func TestConsole_Sync(t *testing.T) {
	f := newConsoleFixture(t)

	require.NoError(t, f.console.Execute("sync midi"))
	assert.Equal(t, rc10r.SyncMIDIClock, f.manager.DeviceState().SyncMode)
	require.NoError(t, f.console.Execute("sync auto"))
	assert.Equal(t, rc10r.SyncAuto, f.manager.DeviceState().SyncMode)
}

func TestConsole_Shortcuts(t *testing.T) {
	f := newConsoleFixture(t)

	require.NoError(t, f.console.Execute("shortcut set 1 12"))
	require.NoError(t, f.console.Execute("shortcuts"))
	assert.Contains(t, f.out.String(), "slot 1: patch 12")

	require.NoError(t, f.console.Execute("shortcut 1"))
	assert.Equal(t, [][]byte{{0xC0, 11}}, f.pedal.Sent())

	require.NoError(t, f.console.Execute("shortcut clear 1"))
	assert.Error(t, f.console.Execute("shortcut 1"))
	assert.Error(t, f.console.Execute("shortcut set 1 100"))
}

func TestConsole_ControlChannel(t *testing.T) {
	f := newConsoleFixture(t)

	require.NoError(t, f.console.Execute("channel"))
	assert.Contains(t, f.out.String(), "control channel: 1")

	require.NoError(t, f.console.Execute("channel 3"))
	require.NoError(t, f.console.Execute("patch 1"))
	assert.Equal(t, [][]byte{{0xC2, 0}}, f.pedal.Sent())
}

func TestConsole_SoundModule(t *testing.T) {
	f := newConsoleFixture(t)

	require.NoError(t, f.console.Execute("module in-2 11"))
	sm, ok := f.prefs.SoundModule()
	require.True(t, ok)
	assert.Equal(t, prefs.SoundModule{DeviceID: "in-2", DeviceName: "Drum Module", Channel: 11}, sm)

	require.NoError(t, f.console.Execute("kit 5"))
	require.NoError(t, f.console.Execute("drum 36"))
	assert.Equal(t, [][]byte{{0xCA, 4}, {0x9A, 36, 127}}, f.module.Sent())
	assert.Empty(t, f.pedal.Sent())

	require.NoError(t, f.console.Execute("module off"))
	_, ok = f.prefs.SoundModule()
	assert.False(t, ok)
	assert.Error(t, f.console.Execute("module in-9"))
}

func TestConsole_Connection(t *testing.T) {
	f := newConsoleFixture(t)

	require.NoError(t, f.console.Execute("devices"))
	assert.Contains(t, f.out.String(), "* in-1  RC-10R (Input/Output) Roland")
	assert.Contains(t, f.out.String(), "  in-2  Drum Module (Input/Output) ACME")

	require.NoError(t, f.console.Execute("disconnect"))
	assert.False(t, f.manager.IsConnected())

	require.NoError(t, f.console.Execute("connect in-2"))
	d, _ := f.manager.ActiveDevice()
	assert.Equal(t, "in-2", d.ID)
	rec, ok := f.prefs.PreferredDevice()
	require.True(t, ok)
	assert.Equal(t, "in-2", rec.ID)

	f.manager.Disconnect()
	require.NoError(t, f.console.Execute("scan"))
	d, _ = f.manager.ActiveDevice()
	assert.Equal(t, "in-2", d.ID, "preferred device")
}

func TestConsole_Status(t *testing.T) {
	f := newConsoleFixture(t)

	require.NoError(t, f.console.Execute("patch 42"))
	require.NoError(t, f.console.Execute("track1 rec"))
	require.NoError(t, f.console.Execute("status"))

	s := f.out.String()
	assert.Contains(t, s, "RC-10R")
	assert.Contains(t, s, "patch   42")
	assert.Contains(t, s, "Recording *")
	assert.Contains(t, s, "Studio Kit")
	assert.Contains(t, s, "no clock")

	f.out.Reset()
	f.manager.Disconnect()
	require.NoError(t, f.console.Execute("status"))
	assert.Contains(t, f.out.String(), "not connected")
}

func TestConsole_Help(t *testing.T) {
	f := newConsoleFixture(t)
	require.NoError(t, f.console.Execute("help"))

	for name := range f.console.commands {
		assert.Contains(t, f.out.String(), name)
	}
}

func TestConsole_Run(t *testing.T) {
	f := newConsoleFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.console.Run(ctx, strings.NewReader("loop start\nbogus\nquit\nloop stop\n"))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("console did not stop")
	}
	assert.Equal(t, [][]byte{{0xB0, 7, 127}, {0xB0, 7, 0}}, f.pedal.Sent())
	assert.Contains(t, f.out.String(), "unknown command \"bogus\"")
}
