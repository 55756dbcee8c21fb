package prefs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "preferences.yaml")

	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, ok := s.Get(KeyControlChannel)
	assert.False(t, ok)

	require.NoError(t, s.Set(KeyControlChannel, "4"))
	require.NoError(t, s.Set(KeyPreferredDevice, `{"id":"in-1","name":"RC-10R","manufacturer":""}`))
	require.NoError(t, s.Remove("missing"))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	v, ok := reopened.Get(KeyControlChannel)
	assert.True(t, ok)
	assert.Equal(t, "4", v)

	rec, ok := New(reopened).PreferredDevice()
	assert.True(t, ok)
	assert.Equal(t, "RC-10R", rec.Name)

	require.NoError(t, reopened.Remove(KeyControlChannel))
	again, err := NewFileStore(path)
	require.NoError(t, err)
	_, ok = again.Get(KeyControlChannel)
	assert.False(t, ok)
}

func TestFileStore_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preferences.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- just\n- a list\n"), 0644))

	_, err := NewFileStore(path)
	assert.Error(t, err)
}

func TestFileStore_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preferences.yaml")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := s.Watch(ctx)

	// give the watcher a moment to register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("rc10r-midi-channel: \"7\"\n"), 0644))

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("change not detected")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range changes {
		}
	}()

	assert.Eventually(t, func() bool {
		return New(s).ControlChannel() == 7
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
