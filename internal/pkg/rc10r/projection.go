package rc10r

import (
	"sync"

	"github.com/gethiox/rc10r/internal/pkg/utils"
)

type observer struct {
	fn   func(DeviceState)
	seen uint64 // guarded by Projection.mutex
}

// Projection holds the current DeviceState and publishes a copy after every change.
//
// Observers are called without any lock held, one at a time, and may call back into the
// Manager. A change made from inside an observer is delivered after that observer returns.
type Projection struct {
	mutex      sync.Mutex
	state      DeviceState
	version    uint64
	delivering bool

	observers *utils.Registry[*observer]
}

func NewProjection() *Projection {
	return &Projection{
		state:     DefaultState(),
		version:   1,
		observers: utils.NewRegistry[*observer](),
	}
}

func (p *Projection) Snapshot() DeviceState {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.state
}

// AddObserver registers fn and calls it with the current snapshot. When a delivery is
// already running on another call stack, that delivery makes the first call instead.
func (p *Projection) AddObserver(fn func(DeviceState)) (remove func()) {
	_, remove = p.observers.Add(&observer{fn: fn})
	p.notify()
	return remove
}

func (p *Projection) update(mutate func(s *DeviceState)) {
	p.mutex.Lock()
	mutate(&p.state)
	p.version++
	p.mutex.Unlock()

	p.notify()
}

func (p *Projection) reset() {
	p.update(func(s *DeviceState) {
		*s = DefaultState()
	})
}

// notify delivers the newest snapshot to every observer that has not seen it yet.
// Only one caller delivers at a time, the others leave their change to it, so an observer
// never receives an older snapshot after a newer one.
func (p *Projection) notify() {
	p.mutex.Lock()
	if p.delivering {
		p.mutex.Unlock()
		return
	}
	p.delivering = true

	for {
		state, version := p.state, p.version
		var due []*observer
		for _, o := range p.observers.Snapshot() {
			if o.seen < version {
				o.seen = version
				due = append(due, o)
			}
		}
		if len(due) == 0 {
			p.delivering = false
			p.mutex.Unlock()
			return
		}
		p.mutex.Unlock()

		for _, o := range due {
			o.fn(state)
		}

		p.mutex.Lock()
	}
}
