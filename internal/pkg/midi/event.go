package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

const (
	// message types
	NoteOff               uint8 = 0b1000 << 4
	NoteOn                uint8 = 0b1001 << 4
	PolyphonicKeyPressure uint8 = 0b1010 << 4 // After-touch
	ControlChange         uint8 = 0b1011 << 4
	ProgramChange         uint8 = 0b1100 << 4
	ChannelPressure       uint8 = 0b1101 << 4 // After-touch
	PitchWheelChange      uint8 = 0b1110 << 4
	System                uint8 = 0b1111 << 4

	SysExStart uint8 = 0xF0
	SysExEnd   uint8 = 0xF7

	// system real-time, single byte messages
	TimingClock uint8 = 0xF8
	Start       uint8 = 0xFA
	Continue    uint8 = 0xFB
	Stop        uint8 = 0xFC

	MaxValue   = 127
	MinChannel = 1
	MaxChannel = 16
)

var pitches = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

func noteToString(note byte) string {
	return fmt.Sprintf("%-2s%2d", pitches[note%12], int(note/12)-2)
}

// IsRealtime reports whether b is a system real-time status byte.
func IsRealtime(b byte) bool {
	return b >= TimingClock
}

type Event []byte

// Copy returns an Event that does not share memory with e.
func (e Event) Copy() Event {
	c := make(Event, len(e))
	copy(c, e)
	return c
}

func (e Event) String() string {
	if len(e) == 0 {
		return "Warning: empty Midi event, it should be not emitted"
	}
	if e[0] >= System {
		return systemString(e)
	}
	if len(e) < 2 {
		return fmt.Sprintf("Truncated event: 0x%02x", e[0])
	}
	channel := e[0]&0b1111 + 1
	switch x := e[0] & 0b11110000; x {
	case NoteOff:
		return fmt.Sprintf("Note Off: %s (channel: %2d, velocity: %3d)", noteToString(e[1]), channel, dataByte(e, 2))
	case NoteOn:
		return fmt.Sprintf("Note On : %s (channel: %2d, velocity: %3d)", noteToString(e[1]), channel, dataByte(e, 2))
	case PolyphonicKeyPressure:
		return fmt.Sprintf("Polyphonic Key Pressure: %s (channel: %2d, pressure: %3d)", noteToString(e[1]), channel, dataByte(e, 2))
	case ControlChange:
		var value string
		if len(e) == 3 {
			value = fmt.Sprintf("%3d", e[2])
		} else {
			value = "---"
		}
		return fmt.Sprintf("Control Change: %3d, value: %s (channel: %2d)", e[1], value, channel)
	case ProgramChange:
		return fmt.Sprintf("Program Change: %3d (channel: %2d)", e[1], channel)
	case ChannelPressure:
		return fmt.Sprintf("Channel Pressure: %3d (channel: %2d)", e[1], channel)
	case PitchWheelChange:
		val := float64((int(dataByte(e, 2))<<7)+int(e[1])-8192) / 8192 // max value: 16383, middle value (no pitch change): 8192
		return fmt.Sprintf("Pitch Bend: %4.0f%% (channel: %2d)", val*100, channel)
	default:
		return unexpected(e)
	}
}

func systemString(e Event) string {
	switch e[0] {
	case TimingClock:
		return "Timing Clock"
	case Start:
		return "Start"
	case Continue:
		return "Continue"
	case Stop:
		return "Stop"
	case SysExStart:
		return fmt.Sprintf("SysEx: % X", []byte(e))
	}
	if s := gomidi.Message(e).String(); s != "" {
		return s
	}
	return unexpected(e)
}

func unexpected(e Event) string {
	msg := "Oof, unexpected event format: "
	for _, v := range e {
		msg += fmt.Sprintf("0x%02x ", v)
	}
	return msg
}

func dataByte(e Event, i int) byte {
	if i < len(e) {
		return e[i]
	}
	return 0
}

func clamp7(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > MaxValue {
		return MaxValue
	}
	return uint8(v)
}

// wireChannel converts a 1-based channel into the low status nibble.
func wireChannel(channel int) uint8 {
	return uint8(channel-1) & 0b1111
}

// EncodeControlChange builds [0xB0|ch, cc, value]. Value is clamped to 0..127.
func EncodeControlChange(cc, value, channel int) Event {
	return Event{ControlChange | wireChannel(channel), uint8(cc) & 0x7F, clamp7(value)}
}

// EncodeProgramChange builds [0xC0|ch, program]. Program is 0-based.
func EncodeProgramChange(program, channel int) Event {
	return Event{ProgramChange | wireChannel(channel), uint8(program) & 0x7F}
}

func EncodeNoteOn(note, velocity, channel int) Event {
	return Event{NoteOn | wireChannel(channel), uint8(note) & 0x7F, clamp7(velocity)}
}

func EncodeNoteOff(note, channel int) Event {
	return Event{NoteOff | wireChannel(channel), uint8(note) & 0x7F, 0}
}
