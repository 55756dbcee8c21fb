package logger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func drain() {
	for {
		select {
		case <-Messages:
		default:
			return
		}
	}
}

func TestGetLogger(t *testing.T) {
	drain()
	log := GetLogger()
	assert.Same(t, log, GetLogger())

	log.Info("device connected", zap.String("device_name", "RC-10R"), Action)

	var entry struct {
		Ts     int64  `json:"ts"`
		Caller string `json:"caller"`
		Msg    string `json:"msg"`
		Level  int    `json:"level"`
		Device string `json:"device_name"`
	}
	require.NoError(t, json.Unmarshal(<-Messages, &entry))

	assert.Equal(t, "device connected", entry.Msg)
	assert.Equal(t, ActionLvl, entry.Level)
	assert.Equal(t, "RC-10R", entry.Device)
	assert.Contains(t, entry.Caller, "log_test.go")
	assert.NotZero(t, entry.Ts)
}

func TestChanWriter_DropsWhenFull(t *testing.T) {
	drain()
	defer drain()

	w := &chanWriter{}
	for i := 0; i < cap(Messages)+10; i++ {
		n, err := w.Write([]byte("{}"))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}
	assert.Equal(t, uint64(10), w.dropped)
	assert.Len(t, Messages, cap(Messages))
}

func TestChanWriter_Closed(t *testing.T) {
	drain()

	w := &chanWriter{closed: true}
	_, err := w.Write([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), w.dropped)
	assert.Len(t, Messages, 0)
}

func TestChanWriter_CopiesEntry(t *testing.T) {
	drain()

	w := &chanWriter{}
	buf := []byte("abc")
	_, _ = w.Write(buf)
	buf[0] = 'x'

	assert.Equal(t, []byte("abc"), <-Messages)
}
