package rc10r

import (
	"fmt"

	"github.com/gethiox/rc10r/internal/pkg/logger"
	"github.com/gethiox/rc10r/internal/pkg/midi"
	"github.com/gethiox/rc10r/internal/pkg/prefs"
	"go.uber.org/zap"
)

// SendCommand emulates a footswitch tap. Control Changes are sent twice: the press and
// a release with value 0, the release is sent even when the press failed. Other messages
// are sent once. The result is true only when every frame was sent.
func (m *Manager) SendCommand(msg midi.Event) bool {
	id, ok := m.activeID()
	if !ok {
		log.Info("command dropped, no device connected", zap.String("message", msg.String()), logger.Warning)
		return false
	}

	pressed := m.transport.Send(id, msg)

	release, momentary := msg.Release()
	if !momentary {
		log.Info(msg.String(), zap.Bool("ok", pressed), logger.Action)
		return pressed
	}

	released := m.transport.Send(id, release)
	log.Info(msg.String(), zap.Bool("ok", pressed && released), logger.Action)
	return pressed && released
}

// control sends a momentary Control Change on the control channel and applies mutate
// to the projection when the whole command succeeded.
func (m *Manager) control(cc, value int, mutate func(s *DeviceState)) bool {
	ok := m.SendCommand(midi.EncodeControlChange(cc, value, m.prefs.ControlChannel()))
	if ok && mutate != nil {
		m.projection.update(mutate)
	}
	return ok
}

func (m *Manager) startTrack(n, cc int) bool {
	return m.control(cc, PressValue, func(s *DeviceState) {
		t := s.track(n)
		t.Status = Recording
		t.HasContent = true
	})
}

func (m *Manager) trackStatus(n, cc, value int, status TrackStatus) bool {
	return m.control(cc, value, func(s *DeviceState) {
		s.track(n).Status = status
	})
}

func (m *Manager) StartTrack1() bool { return m.startTrack(1, CCTrack1RecPlay) }
func (m *Manager) StartTrack2() bool { return m.startTrack(2, CCTrack2RecPlay) }

func (m *Manager) PlayTrack1() bool { return m.trackStatus(1, CCTrack1RecPlay, PlayValue, Playing) }
func (m *Manager) PlayTrack2() bool { return m.trackStatus(2, CCTrack2RecPlay, PlayValue, Playing) }

func (m *Manager) StopTrack1() bool { return m.trackStatus(1, CCTrack1Stop, PressValue, Stopped) }
func (m *Manager) StopTrack2() bool { return m.trackStatus(2, CCTrack2Stop, PressValue, Stopped) }

func (m *Manager) UndoRedoTrack1() bool { return m.control(CCTrack1UndoRedo, PressValue, nil) }
func (m *Manager) UndoRedoTrack2() bool { return m.control(CCTrack2UndoRedo, PressValue, nil) }

func (m *Manager) StopAllTracks() bool {
	return m.control(CCAllStop, PressValue, func(s *DeviceState) {
		s.Track1.Status = Stopped
		s.Track2.Status = Stopped
	})
}

func (m *Manager) LoopStart() bool    { return m.control(CCLoopStart, PressValue, nil) }
func (m *Manager) LoopStop() bool     { return m.control(CCLoopStop, PressValue, nil) }
func (m *Manager) LoopUndoRedo() bool { return m.control(CCLoopUndoRedo, PressValue, nil) }
func (m *Manager) LoopBreak() bool    { return m.control(CCLoopBreak, PressValue, nil) }

func (m *Manager) StartRhythm() bool {
	return m.control(CCRhythmStart, PressValue, func(s *DeviceState) {
		s.Rhythm.Playing = true
	})
}

func (m *Manager) StopRhythm() bool {
	return m.control(CCRhythmStop, PressValue, func(s *DeviceState) {
		s.Rhythm.Playing = false
	})
}

func (m *Manager) RhythmDivision() bool { return m.control(CCRhythmDivision, PressValue, nil) }
func (m *Manager) RhythmFill() bool     { return m.control(CCRhythmFill, PressValue, nil) }
func (m *Manager) RhythmBreak() bool    { return m.control(CCRhythmBreak, PressValue, nil) }

// SetPatch selects patch 0-98 with a single Program Change.
func (m *Manager) SetPatch(patch int) bool {
	if patch < 0 || patch > MaxPatch {
		log.Info(fmt.Sprintf("patch out of range 0-%d: %d", MaxPatch, patch), logger.Warning)
		return false
	}
	ok := m.SendCommand(midi.EncodeProgramChange(patch, m.prefs.ControlChannel()))
	if ok {
		m.projection.update(func(s *DeviceState) {
			s.Patch.Current = patch
		})
	}
	return ok
}

// RecallShortcut selects the preset stored in a quick access slot.
func (m *Manager) RecallShortcut(slot int) bool {
	preset, ok := m.prefs.Shortcut(slot)
	if !ok {
		log.Info(fmt.Sprintf("shortcut slot %d is empty", slot), logger.Warning)
		return false
	}
	return m.SetPatch(preset - 1)
}

// drumTarget is the sound module when one is configured, the pedal otherwise.
func (m *Manager) drumTarget() (id string, channel int, ok bool) {
	if sm, ok := m.prefs.SoundModule(); ok {
		return m.soundModuleID(sm), sm.Channel, true
	}
	id, ok = m.activeID()
	return id, RhythmChannel, ok
}

// soundModuleID resolves the stored module to a present port. Port IDs are positional
// on some platforms, a stale ID is looked up again by the stored name.
func (m *Manager) soundModuleID(sm prefs.SoundModule) string {
	if d, ok := m.transport.Device(sm.DeviceID); ok && (sm.DeviceName == "" || d.Name == sm.DeviceName) {
		return d.ID
	}
	if sm.DeviceName == "" {
		return sm.DeviceID
	}
	for _, d := range m.transport.Devices() {
		if d.Name == sm.DeviceName {
			log.Info("sound module moved", zap.String("device_name", d.Name), zap.String("device_id", d.ID), logger.Debug)
			return d.ID
		}
	}
	return sm.DeviceID
}

// SetRhythmKit selects a drum kit by program number. With a sound module configured the
// change goes to the module using its 0-based program numbering.
func (m *Manager) SetRhythmKit(program int) bool {
	if program < MinKit || program > MaxKit {
		log.Info(fmt.Sprintf("kit out of range %d-%d: %d", MinKit, MaxKit, program), logger.Warning)
		return false
	}

	var ok bool
	if sm, module := m.prefs.SoundModule(); module {
		ok = m.transport.Send(m.soundModuleID(sm), midi.EncodeProgramChange(program-1, sm.Channel))
		log.Info(fmt.Sprintf("kit %d sent to sound module", program), zap.String("device_name", sm.DeviceName), zap.Bool("ok", ok), logger.Action)
	} else {
		ok = m.SendCommand(midi.EncodeProgramChange(program, RhythmChannel))
	}

	if ok {
		m.projection.update(func(s *DeviceState) {
			s.Rhythm.Kit = program
		})
	}
	return ok
}

// SetRhythmTempo records the tempo locally, nothing is sent. Returns the clamped value.
func (m *Manager) SetRhythmTempo(bpm int) int {
	if bpm < MinTempo {
		bpm = MinTempo
	}
	if bpm > MaxTempo {
		bpm = MaxTempo
	}
	m.projection.update(func(s *DeviceState) {
		s.Rhythm.Tempo = bpm
	})
	return bpm
}

// SetSyncMode records the sync mode chosen on the pedal, nothing is sent.
func (m *Manager) SetSyncMode(mode SyncMode) {
	m.projection.update(func(s *DeviceState) {
		s.SyncMode = mode
	})
}

// PlayDrumSound triggers a drum note. The Note Off follows after the configured note
// length, retriggering a sounding note postpones its release.
func (m *Manager) PlayDrumSound(note int) bool {
	id, channel, ok := m.drumTarget()
	if !ok {
		log.Info("drum sound dropped, no device", logger.Warning)
		return false
	}

	if !m.transport.Send(id, midi.EncodeNoteOn(note, DrumVelocity, channel)) {
		return false
	}
	log.Info(fmt.Sprintf("drum note %d", note), zap.String("device_id", id), logger.Action)

	key := drumKey{deviceID: id, channel: channel, note: note}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if prev, ok := m.drums[key]; ok {
		prev.timer.Stop()
	}
	m.drumGen++
	gen := m.drumGen
	m.drums[key] = drumRelease{
		gen: gen,
		timer: m.clock.AfterFunc(m.settings.DrumNoteLength, func() {
			m.releaseDrum(key, gen)
		}),
	}
	return true
}

func (m *Manager) releaseDrum(key drumKey, gen uint64) {
	m.mutex.Lock()
	r, ok := m.drums[key]
	if !ok || r.gen != gen {
		m.mutex.Unlock()
		return
	}
	delete(m.drums, key)
	m.mutex.Unlock()

	m.transport.Send(key.deviceID, midi.EncodeNoteOff(key.note, key.channel))
}

// takeDrumReleases stops every pending release timer, the caller holds the mutex.
func (m *Manager) takeDrumReleases() []drumKey {
	keys := make([]drumKey, 0, len(m.drums))
	for key, r := range m.drums {
		r.timer.Stop()
		keys = append(keys, key)
	}
	m.drums = make(map[drumKey]drumRelease)
	return keys
}

// flushDrums releases notes whose timers were cancelled.
func (m *Manager) flushDrums(keys []drumKey) {
	for _, key := range keys {
		m.transport.Send(key.deviceID, midi.EncodeNoteOff(key.note, key.channel))
	}
}

// PendingDrumNotes returns the number of drum notes waiting for their release.
func (m *Manager) PendingDrumNotes() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.drums)
}
