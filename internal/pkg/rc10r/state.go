package rc10r

import (
	"fmt"
	"time"
)

type TrackStatus int

const (
	Stopped TrackStatus = iota
	Recording
	Playing
	Overdubbing
)

func (s TrackStatus) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Recording:
		return "Recording"
	case Playing:
		return "Playing"
	case Overdubbing:
		return "Overdubbing"
	default:
		return fmt.Sprintf("TrackStatus(%d)", int(s))
	}
}

type TrackState struct {
	Status     TrackStatus
	HasContent bool
}

type RhythmState struct {
	Playing bool
	Kit     int // program number
	Tempo   int // BPM, 40-200
}

type PatchState struct {
	Current int // 0-98
}

type SyncMode int

const (
	SyncInternal SyncMode = iota
	SyncMIDIClock
	SyncAuto
)

func (m SyncMode) String() string {
	switch m {
	case SyncInternal:
		return "Internal"
	case SyncMIDIClock:
		return "MIDI Clock"
	case SyncAuto:
		return "Auto"
	default:
		return fmt.Sprintf("SyncMode(%d)", int(m))
	}
}

type BeatClockState struct {
	Receiving   bool
	IsPlaying   bool
	CurrentBeat int // 1-4
	PulseCount  int // 0-23
	LastPulse   time.Time
	Tempo       float64 // estimated BPM, 0 when unknown
}

// DeviceState is a snapshot of the pedal as far as this side knows it. Track, rhythm and
// sync fields are projected from commands sent, the pedal cannot be asked for them.
// It is a plain value, copies never share mutable memory.
type DeviceState struct {
	Connected    bool
	DeviceName   string
	Manufacturer string

	Track1 TrackState
	Track2 TrackState
	Rhythm RhythmState
	Patch  PatchState

	SyncMode  SyncMode
	BeatClock BeatClockState
}

func DefaultBeatClockState() BeatClockState {
	return BeatClockState{CurrentBeat: 1}
}

func DefaultState() DeviceState {
	return DeviceState{
		Rhythm: RhythmState{
			Kit:   MinKit,
			Tempo: DefaultTempo,
		},
		SyncMode:  SyncInternal,
		BeatClock: DefaultBeatClockState(),
	}
}

// Track returns the state of track 1 or 2.
func (s DeviceState) Track(n int) TrackState {
	if n == 2 {
		return s.Track2
	}
	return s.Track1
}

func (s *DeviceState) track(n int) *TrackState {
	if n == 2 {
		return &s.Track2
	}
	return &s.Track1
}
