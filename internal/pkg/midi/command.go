package midi

// Command is a decoded message. Only the fields of the matching Type are set.
type Command struct {
	Type    uint8 // ControlChange, ProgramChange or SysExStart
	Channel int   // 1-based, 0 for SysEx

	Controller int
	Value      int

	Program int

	Data []byte // full SysEx message
}

// Decode maps a raw message onto a Command. Messages the pedal dialect does not carry
// are not an error, ok is simply false.
func Decode(e Event) (cmd Command, ok bool) {
	if len(e) < 2 {
		return Command{}, false
	}

	switch e[0] & 0b11110000 {
	case ControlChange:
		return Command{
			Type:       ControlChange,
			Channel:    int(e[0]&0b1111) + 1,
			Controller: int(e[1]),
			Value:      int(dataByte(e, 2)),
		}, true
	case ProgramChange:
		return Command{
			Type:    ProgramChange,
			Channel: int(e[0]&0b1111) + 1,
			Program: int(e[1]),
		}, true
	case System:
		return Command{Type: SysExStart, Data: []byte(e.Copy())}, true
	default:
		return Command{}, false
	}
}

// Release returns the release frame for a momentary command: the same message with its
// value byte forced to 0. ok is false for messages that are not 3-byte Control Changes.
func (e Event) Release() (Event, bool) {
	if len(e) != 3 || e[0]&0b11110000 != ControlChange {
		return nil, false
	}
	r := e.Copy()
	r[2] = 0
	return r, true
}
