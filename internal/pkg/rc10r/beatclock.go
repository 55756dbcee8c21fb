package rc10r

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gethiox/rc10r/internal/pkg/logger"
	"github.com/gethiox/rc10r/internal/pkg/midi"
	"go.uber.org/zap"
)

const (
	PulsesPerQuarter = 24
	BeatsPerBar      = 4

	DefaultBeatClockTimeout = 2000 * time.Millisecond
)

// BeatClock follows MIDI real-time messages (clock, start, continue, stop).
// Reception is considered lost when no message arrives within the timeout.
type BeatClock struct {
	clock    clock.Clock
	timeout  time.Duration
	onChange func()

	mutex        sync.Mutex
	state        BeatClockState
	deadline     *clock.Timer
	generation   uint64
	quarterStart time.Time
}

// NewBeatClock creates an idle beat clock. onChange is called without any lock held
// after every state change.
func NewBeatClock(clk clock.Clock, timeout time.Duration, onChange func()) *BeatClock {
	if timeout <= 0 {
		timeout = DefaultBeatClockTimeout
	}
	if onChange == nil {
		onChange = func() {}
	}
	return &BeatClock{
		clock:    clk,
		timeout:  timeout,
		onChange: onChange,
		state:    DefaultBeatClockState(),
	}
}

func (b *BeatClock) State() BeatClockState {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

// Handle consumes a real-time status byte. It returns false for bytes the beat clock
// does not handle, those leave the state untouched.
func (b *BeatClock) Handle(status byte) bool {
	b.mutex.Lock()

	now := b.clock.Now()
	s := &b.state

	switch status {
	case midi.TimingClock:
		s.PulseCount = (s.PulseCount + 1) % PulsesPerQuarter
		if s.PulseCount == 0 {
			s.CurrentBeat = s.CurrentBeat%BeatsPerBar + 1
			b.estimateTempo(now)
		}
	case midi.Start:
		s.IsPlaying = true
		s.CurrentBeat = 1
		s.PulseCount = 0
		b.quarterStart = now
	case midi.Continue:
		s.IsPlaying = true
		b.quarterStart = time.Time{}
	case midi.Stop:
		s.IsPlaying = false
		b.quarterStart = time.Time{}
	default:
		b.mutex.Unlock()
		return false
	}

	s.Receiving = true
	s.LastPulse = now
	b.rearm()

	beat, playing := s.CurrentBeat, s.IsPlaying
	b.mutex.Unlock()

	if status != midi.TimingClock {
		log.Info(midi.Event{status}.String(), zap.Int("beat", beat), zap.Bool("playing", playing), logger.Clock)
	}
	b.onChange()
	return true
}

// estimateTempo measures the quarter note that has just completed.
func (b *BeatClock) estimateTempo(now time.Time) {
	if !b.quarterStart.IsZero() {
		elapsed := now.Sub(b.quarterStart)
		if elapsed > 0 {
			bpm := float64(time.Minute) / float64(elapsed)
			if bpm >= MinTempo && bpm <= MaxTempo {
				b.state.Tempo = math.Round(bpm*10) / 10
			}
		}
	}
	b.quarterStart = now
}

// rearm replaces the pending deadline, the caller holds the mutex.
func (b *BeatClock) rearm() {
	if b.deadline != nil {
		b.deadline.Stop()
	}
	b.generation++
	gen := b.generation
	b.deadline = b.clock.AfterFunc(b.timeout, func() {
		b.expire(gen)
	})
}

func (b *BeatClock) expire(gen uint64) {
	b.mutex.Lock()
	if gen != b.generation {
		// superseded by a newer message
		b.mutex.Unlock()
		return
	}
	b.deadline = nil
	b.state.Receiving = false
	b.state.IsPlaying = false
	b.state.Tempo = 0
	b.quarterStart = time.Time{}
	b.mutex.Unlock()

	log.Info("beat clock lost", logger.Clock)
	b.onChange()
}

// Reset cancels the pending deadline and returns to the idle state.
func (b *BeatClock) Reset() {
	b.mutex.Lock()
	if b.deadline != nil {
		b.deadline.Stop()
		b.deadline = nil
	}
	b.generation++
	b.state = DefaultBeatClockState()
	b.quarterStart = time.Time{}
	b.mutex.Unlock()
}
