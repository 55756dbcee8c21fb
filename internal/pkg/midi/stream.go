package midi

// Splitter cuts a raw MIDI byte stream into complete messages.
// It understands running status, real-time bytes interleaved anywhere in the stream
// and SysEx messages terminated with 0xF7. Incomplete SysEx interrupted by another
// status byte is discarded.
//
// Splitter is not safe for concurrent use, each input stream needs its own.
type Splitter struct {
	running byte
	buf     []byte
	need    int
	sysex   bool
}

const maxSysExLength = 4096

func dataLength(status byte) int {
	if status < System {
		switch status & 0b11110000 {
		case ProgramChange, ChannelPressure:
			return 1
		default:
			return 2
		}
	}
	switch status {
	case 0xF1, 0xF3: // MTC quarter frame, song select
		return 1
	case 0xF2: // song position pointer
		return 2
	default:
		return 0
	}
}

// Write feeds p into the splitter and calls emit for every completed message.
// Emitted events do not share memory with the splitter.
func (s *Splitter) Write(p []byte, emit func(Event)) {
	for _, b := range p {
		switch {
		case IsRealtime(b):
			emit(Event{b})

		case b == SysExStart:
			s.sysex = true
			s.running = 0
			s.buf = append(s.buf[:0], b)

		case b == SysExEnd:
			if s.sysex {
				s.buf = append(s.buf, b)
				emit(Event(s.buf).Copy())
			}
			s.sysex = false
			s.buf = s.buf[:0]

		case b&0x80 != 0:
			s.sysex = false
			s.buf = append(s.buf[:0], b)
			s.need = dataLength(b)
			if b < System {
				s.running = b
			} else {
				s.running = 0
			}
			if s.need == 0 {
				emit(Event(s.buf).Copy())
				s.buf = s.buf[:0]
			}

		case s.sysex:
			if len(s.buf) < maxSysExLength {
				s.buf = append(s.buf, b)
			}

		default:
			if len(s.buf) == 0 {
				if s.running == 0 {
					continue // stray data byte
				}
				s.buf = append(s.buf, s.running)
				s.need = dataLength(s.running)
			}
			s.buf = append(s.buf, b)
			if len(s.buf) == s.need+1 {
				emit(Event(s.buf).Copy())
				s.buf = s.buf[:0]
			}
		}
	}
}

// Reset drops any partially received message and the running status.
func (s *Splitter) Reset() {
	s.running = 0
	s.buf = s.buf[:0]
	s.sysex = false
	s.need = 0
}
