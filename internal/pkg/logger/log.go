package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Messages carries JSON encoded log entries, one entry per slice.
// Entries are dropped when nobody drains the channel fast enough.
var Messages = make(chan []byte, 256)

const (
	ErrorLvl   = 0
	WarningLvl = 1
	InfoLvl    = 2
	ActionLvl  = 3 // commands sent to the pedal
	ClockLvl   = 4 // beat clock transitions
	TrafficLvl = 5 // inbound midi messages

	DebugLvl = 378
)

var (
	Error   = zap.Int("level", ErrorLvl)
	Warning = zap.Int("level", WarningLvl)
	Info    = zap.Int("level", InfoLvl)
	Action  = zap.Int("level", ActionLvl)
	Clock   = zap.Int("level", ClockLvl)
	Traffic = zap.Int("level", TrafficLvl)

	Debug = zap.Int("level", DebugLvl)
)

type chanWriter struct {
	sync.Mutex
	dropped uint64
	closed  bool
}

func (w *chanWriter) Write(p []byte) (n int, err error) {
	w.Lock()
	defer w.Unlock()
	if w.closed {
		w.dropped++
		return len(p), nil
	}
	var entry = make([]byte, len(p))
	copy(entry, p)
	select {
	case Messages <- entry:
	default:
		w.dropped++
	}
	return len(p), nil
}

func (w *chanWriter) Sync() error {
	return nil
}

var (
	once   sync.Once
	shared *zap.Logger
	writer = &chanWriter{}
)

// Close closes Messages. Entries logged afterwards are dropped.
func Close() {
	writer.Lock()
	defer writer.Unlock()
	if !writer.closed {
		writer.closed = true
		close(Messages)
	}
}

// Dropped returns the number of entries lost so far.
func Dropped() uint64 {
	writer.Lock()
	defer writer.Unlock()
	return writer.dropped
}

// GetLogger returns the process wide logger. Every call returns the same instance.
func GetLogger() *zap.Logger {
	once.Do(func() {
		cfg := zap.NewProductionEncoderConfig()
		cfg.SkipLineEnding = true
		cfg.EncodeTime = zapcore.EpochNanosTimeEncoder
		cfg.LevelKey = ""
		encoder := zapcore.NewJSONEncoder(cfg)

		shared = zap.New(
			zapcore.NewCore(encoder, zapcore.Lock(writer), zap.DebugLevel),
			zap.AddCaller(),
		)
	})
	return shared
}
