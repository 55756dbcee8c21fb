package rc10r

import (
	"testing"
	"time"

	"github.com/gethiox/rc10r/internal/pkg/midi"
	"github.com/gethiox/rc10r/internal/pkg/prefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func momentary(cc, value int) [][]byte {
	return [][]byte{{0xB0, byte(cc), byte(value)}, {0xB0, byte(cc), 0}}
}

func TestManager_Commands(t *testing.T) {
	for _, tc := range []struct {
		name     string
		command  func(m *Manager) bool
		expected [][]byte
		check    func(t *testing.T, s DeviceState)
	}{
		{
			name:     "start track 1",
			command:  (*Manager).StartTrack1,
			expected: momentary(CCTrack1RecPlay, 127),
			check: func(t *testing.T, s DeviceState) {
				assert.Equal(t, TrackState{Status: Recording, HasContent: true}, s.Track1)
				assert.Equal(t, TrackState{}, s.Track2)
			},
		},
		{
			name:     "start track 2",
			command:  (*Manager).StartTrack2,
			expected: momentary(CCTrack2RecPlay, 127),
			check: func(t *testing.T, s DeviceState) {
				assert.Equal(t, TrackState{Status: Recording, HasContent: true}, s.Track2)
			},
		},
		{
			name:     "play track 1",
			command:  (*Manager).PlayTrack1,
			expected: momentary(CCTrack1RecPlay, 64),
			check: func(t *testing.T, s DeviceState) {
				assert.Equal(t, Playing, s.Track1.Status)
			},
		},
		{
			name:     "play track 2",
			command:  (*Manager).PlayTrack2,
			expected: momentary(CCTrack2RecPlay, 64),
			check: func(t *testing.T, s DeviceState) {
				assert.Equal(t, Playing, s.Track2.Status)
			},
		},
		{
			name:     "stop track 1",
			command:  (*Manager).StopTrack1,
			expected: momentary(CCTrack1Stop, 127),
			check: func(t *testing.T, s DeviceState) {
				assert.Equal(t, Stopped, s.Track1.Status)
			},
		},
		{
			name:     "stop track 2",
			command:  (*Manager).StopTrack2,
			expected: momentary(CCTrack2Stop, 127),
		},
		{name: "undo redo track 1", command: (*Manager).UndoRedoTrack1, expected: momentary(CCTrack1UndoRedo, 127)},
		{name: "undo redo track 2", command: (*Manager).UndoRedoTrack2, expected: momentary(CCTrack2UndoRedo, 127)},
		{name: "stop all", command: (*Manager).StopAllTracks, expected: momentary(CCAllStop, 127)},
		{name: "loop start", command: (*Manager).LoopStart, expected: momentary(CCLoopStart, 127)},
		{name: "loop stop", command: (*Manager).LoopStop, expected: momentary(CCLoopStop, 127)},
		{name: "loop undo redo", command: (*Manager).LoopUndoRedo, expected: momentary(CCLoopUndoRedo, 127)},
		{name: "loop break", command: (*Manager).LoopBreak, expected: momentary(CCLoopBreak, 127)},
		{
			name:     "start rhythm",
			command:  (*Manager).StartRhythm,
			expected: momentary(CCRhythmStart, 127),
			check: func(t *testing.T, s DeviceState) {
				assert.True(t, s.Rhythm.Playing)
			},
		},
		{
			name:     "stop rhythm",
			command:  (*Manager).StopRhythm,
			expected: momentary(CCRhythmStop, 127),
			check: func(t *testing.T, s DeviceState) {
				assert.False(t, s.Rhythm.Playing)
			},
		},
		{name: "rhythm division", command: (*Manager).RhythmDivision, expected: momentary(CCRhythmDivision, 127)},
		{name: "rhythm fill", command: (*Manager).RhythmFill, expected: momentary(CCRhythmFill, 127)},
		{name: "rhythm break", command: (*Manager).RhythmBreak, expected: momentary(CCRhythmBreak, 127)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f, _, out := connected(t)

			require.True(t, tc.command(f.manager))
			assert.Equal(t, tc.expected, out.Sent())
			if tc.check != nil {
				tc.check(t, f.manager.DeviceState())
			}
		})
	}
}

func TestManager_StopAllTracks(t *testing.T) {
	f, _, _ := connected(t)

	require.True(t, f.manager.StartTrack1())
	require.True(t, f.manager.PlayTrack2())
	require.True(t, f.manager.StopAllTracks())

	s := f.manager.DeviceState()
	assert.Equal(t, TrackState{Status: Stopped, HasContent: true}, s.Track1)
	assert.Equal(t, TrackState{Status: Stopped}, s.Track2)
}

func TestManager_CommandsUseControlChannel(t *testing.T) {
	f, _, out := connected(t)
	require.NoError(t, f.prefs.SetControlChannel(16))

	require.True(t, f.manager.LoopStart())
	require.True(t, f.manager.SetPatch(3))

	assert.Equal(t, [][]byte{
		{0xBF, CCLoopStart, 127},
		{0xBF, CCLoopStart, 0},
		{0xCF, 3},
	}, out.Sent())
}

func TestManager_SendCommand(t *testing.T) {
	f, _, out := connected(t)

	assert.True(t, f.manager.SendCommand(midi.Event{0xB0, 10, 127}))
	assert.True(t, f.manager.SendCommand(midi.Event{0xC0, 41}))
	assert.True(t, f.manager.SendCommand(midi.Event{0x91, 36, 127}))

	assert.Equal(t, [][]byte{
		{0xB0, 10, 127},
		{0xB0, 10, 0},
		{0xC0, 41},
		{0x91, 36, 127},
	}, out.Sent())
}

func TestManager_SendCommandFailure(t *testing.T) {
	f, _, out := connected(t)
	out.FailSend(true)

	assert.False(t, f.manager.StartTrack1())
	assert.Equal(t, TrackState{}, f.manager.DeviceState().Track1, "state untouched on failure")

	out.FailSend(false)
	assert.True(t, f.manager.StartTrack1())
}

func TestManager_CommandsWithoutDevice(t *testing.T) {
	f := newFixture(t, nil)

	assert.False(t, f.manager.StartTrack1())
	assert.False(t, f.manager.SetPatch(1))
	assert.False(t, f.manager.SetRhythmKit(1))
	assert.False(t, f.manager.PlayDrumSound(36))
	assert.Equal(t, DefaultState(), f.manager.DeviceState())
}

func TestManager_SetPatch(t *testing.T) {
	f, _, out := connected(t)

	require.True(t, f.manager.SetPatch(41))
	assert.Equal(t, [][]byte{{0xC0, 41}}, out.Sent())
	assert.Equal(t, 41, f.manager.DeviceState().Patch.Current)

	out.ClearSent()
	for _, p := range []int{-1, MaxPatch + 1, 127} {
		assert.False(t, f.manager.SetPatch(p), "patch %d", p)
	}
	assert.Empty(t, out.Sent())
	assert.Equal(t, 41, f.manager.DeviceState().Patch.Current)

	require.True(t, f.manager.SetPatch(0))
	require.True(t, f.manager.SetPatch(MaxPatch))
	assert.Equal(t, [][]byte{{0xC0, 0}, {0xC0, MaxPatch}}, out.Sent())
}

func TestManager_RecallShortcut(t *testing.T) {
	f, _, out := connected(t)
	require.NoError(t, f.prefs.SetShortcut(2, 15))

	assert.False(t, f.manager.RecallShortcut(1))
	require.True(t, f.manager.RecallShortcut(2))

	assert.Equal(t, [][]byte{{0xC0, 14}}, out.Sent())
	assert.Equal(t, 14, f.manager.DeviceState().Patch.Current)
}

func TestManager_SetRhythmKit(t *testing.T) {
	f, _, out := connected(t)

	require.True(t, f.manager.SetRhythmKit(5))
	assert.Equal(t, [][]byte{{0xC1, 5}}, out.Sent())
	assert.Equal(t, 5, f.manager.DeviceState().Rhythm.Kit)

	out.ClearSent()
	assert.False(t, f.manager.SetRhythmKit(0))
	assert.False(t, f.manager.SetRhythmKit(128))
	assert.Empty(t, out.Sent())
	assert.Equal(t, 5, f.manager.DeviceState().Rhythm.Kit)
}

func TestManager_SetRhythmKitSoundModule(t *testing.T) {
	f, _, pedal := connected(t)
	_, module := f.platform.AddDevice("in-sm", "out-sm", "Drum Module", "ACME")
	f.platform.TriggerStateChange()
	require.NoError(t, f.prefs.SetSoundModule(prefs.SoundModule{DeviceID: "in-sm", DeviceName: "Drum Module", Channel: 10}))

	require.True(t, f.manager.SetRhythmKit(5))
	assert.Equal(t, [][]byte{{0xC9, 4}}, module.Sent(), "0-based program on the module channel")
	assert.Empty(t, pedal.Sent())
	assert.Equal(t, 5, f.manager.DeviceState().Rhythm.Kit)
}

func TestManager_SetRhythmTempo(t *testing.T) {
	f, _, out := connected(t)

	for _, tc := range []struct{ bpm, expected int }{
		{bpm: 90, expected: 90},
		{bpm: 10, expected: MinTempo},
		{bpm: 500, expected: MaxTempo},
		{bpm: MinTempo, expected: MinTempo},
	} {
		assert.Equal(t, tc.expected, f.manager.SetRhythmTempo(tc.bpm))
		assert.Equal(t, tc.expected, f.manager.DeviceState().Rhythm.Tempo)
	}
	assert.Empty(t, out.Sent(), "tempo is local only")
}

func TestManager_SetSyncMode(t *testing.T) {
	f, _, out := connected(t)

	f.manager.SetSyncMode(SyncMIDIClock)
	assert.Equal(t, SyncMIDIClock, f.manager.DeviceState().SyncMode)
	assert.Empty(t, out.Sent())
}

func TestManager_PlayDrumSound(t *testing.T) {
	f, _, out := connected(t)

	require.True(t, f.manager.PlayDrumSound(36))
	assert.Equal(t, [][]byte{{0x91, 36, 127}}, out.Sent())
	assert.Equal(t, 1, f.manager.PendingDrumNotes())

	f.clock.Add(99 * time.Millisecond)
	assert.Len(t, out.Sent(), 1)

	f.clock.Add(time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(out.Sent()) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, []byte{0x81, 36, 0}, out.Sent()[1])
	assert.Zero(t, f.manager.PendingDrumNotes())
}

func TestManager_PlayDrumSoundRetrigger(t *testing.T) {
	f, _, out := connected(t)

	require.True(t, f.manager.PlayDrumSound(38))
	f.clock.Add(50 * time.Millisecond)
	require.True(t, f.manager.PlayDrumSound(38))
	f.clock.Add(50 * time.Millisecond)

	assert.Equal(t, [][]byte{{0x91, 38, 127}, {0x91, 38, 127}}, out.Sent())
	assert.Equal(t, 1, f.manager.PendingDrumNotes())

	f.clock.Add(50 * time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(out.Sent()) == 3
	}, time.Second, time.Millisecond)
	assert.Equal(t, []byte{0x81, 38, 0}, out.Sent()[2])
}

func TestManager_PlayDrumSoundSoundModule(t *testing.T) {
	f, _, pedal := connected(t)
	_, module := f.platform.AddDevice("in-sm", "out-sm", "Drum Module", "ACME")
	f.platform.TriggerStateChange()
	require.NoError(t, f.prefs.SetSoundModule(prefs.SoundModule{DeviceID: "in-sm", DeviceName: "Drum Module", Channel: 10}))

	require.True(t, f.manager.PlayDrumSound(42))
	assert.Equal(t, [][]byte{{0x99, 42, 127}}, module.Sent())
	assert.Empty(t, pedal.Sent())
}

func TestManager_DisconnectReleasesDrums(t *testing.T) {
	f, _, out := connected(t)

	require.True(t, f.manager.PlayDrumSound(36))
	require.True(t, f.manager.PlayDrumSound(42))
	f.manager.Disconnect()

	assert.Zero(t, f.manager.PendingDrumNotes())
	assert.ElementsMatch(t, [][]byte{
		{0x91, 36, 127},
		{0x91, 42, 127},
		{0x81, 36, 0},
		{0x81, 42, 0},
	}, out.Sent())
}
