package rc10r

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjection_ObserverReplay(t *testing.T) {
	p := NewProjection()
	p.update(func(s *DeviceState) { s.Patch.Current = 5 })

	var got []DeviceState
	remove := p.AddObserver(func(s DeviceState) { got = append(got, s) })

	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Patch.Current)

	p.update(func(s *DeviceState) { s.Patch.Current = 6 })
	remove()
	p.update(func(s *DeviceState) { s.Patch.Current = 7 })

	require.Len(t, got, 2)
	assert.Equal(t, 6, got[1].Patch.Current)
	assert.Equal(t, 7, p.Snapshot().Patch.Current)
}

func TestProjection_SnapshotIsCopy(t *testing.T) {
	p := NewProjection()
	s := p.Snapshot()
	s.Rhythm.Kit = 99

	assert.Equal(t, MinKit, p.Snapshot().Rhythm.Kit)
}

func TestProjection_Reset(t *testing.T) {
	p := NewProjection()
	p.update(func(s *DeviceState) {
		s.Connected = true
		s.Track1 = TrackState{Status: Playing, HasContent: true}
	})

	p.reset()
	assert.Equal(t, DefaultState(), p.Snapshot())
}

func TestProjection_ObserversNeverGoBack(t *testing.T) {
	p := NewProjection()

	var (
		mutex sync.Mutex
		seen  []int
	)
	p.AddObserver(func(s DeviceState) {
		mutex.Lock()
		seen = append(seen, s.Patch.Current)
		mutex.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				p.update(func(s *DeviceState) { s.Patch.Current++ })
			}
		}()
	}
	wg.Wait()

	mutex.Lock()
	defer mutex.Unlock()
	for i := 1; i < len(seen); i++ {
		assert.Less(t, seen[i-1], seen[i])
	}
	assert.Equal(t, 400, seen[len(seen)-1])
	assert.Equal(t, 400, p.Snapshot().Patch.Current)
}

func TestDeviceState_Track(t *testing.T) {
	s := DefaultState()
	s.Track2.Status = Overdubbing

	assert.Equal(t, Stopped, s.Track(1).Status)
	assert.Equal(t, Overdubbing, s.Track(2).Status)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "Recording", Recording.String())
	assert.Equal(t, "Overdubbing", Overdubbing.String())
	assert.Equal(t, "TrackStatus(7)", TrackStatus(7).String())
	assert.Equal(t, "MIDI Clock", SyncMIDIClock.String())
	assert.Equal(t, "SyncMode(5)", SyncMode(5).String())
}

func TestProjection_ReentrantObserver(t *testing.T) {
	p := NewProjection()

	var seen []int
	p.AddObserver(func(s DeviceState) {
		seen = append(seen, s.Patch.Current)
		if s.Patch.Current == 1 {
			p.update(func(s *DeviceState) { s.Patch.Current = 2 })
			assert.Equal(t, []int{0, 1}, seen, "nested change waits for the running delivery")
		}
	})

	p.update(func(s *DeviceState) { s.Patch.Current = 1 })

	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestProjection_AddObserverFromObserver(t *testing.T) {
	p := NewProjection()

	var inner []int
	p.AddObserver(func(s DeviceState) {
		if s.Patch.Current == 3 && inner == nil {
			inner = []int{}
			p.AddObserver(func(s DeviceState) { inner = append(inner, s.Patch.Current) })
		}
	})

	p.update(func(s *DeviceState) { s.Patch.Current = 3 })
	assert.Equal(t, []int{3}, inner)

	p.update(func(s *DeviceState) { s.Patch.Current = 4 })
	assert.Equal(t, []int{3, 4}, inner)
}
