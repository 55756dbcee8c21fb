// Package mock provides an in-memory MIDI platform for tests and dry runs.
package mock

import (
	"errors"
	"sync"

	"github.com/gethiox/rc10r/internal/pkg/midi/driver"
	"github.com/gethiox/rc10r/internal/pkg/utils"
)

var ErrSendFailed = errors.New("mock: send failed")

type port struct {
	mutex        sync.Mutex
	id           string
	name         string
	manufacturer string
	open         bool
	opens        int
}

func (p *port) ID() string           { return p.id }
func (p *port) Name() string         { return p.name }
func (p *port) Manufacturer() string { return p.manufacturer }

func (p *port) Open() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.open {
		p.opens++
	}
	p.open = true
	return nil
}

func (p *port) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.open = false
	return nil
}

func (p *port) IsOpen() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.open
}

// Opens returns how many times the port went from closed to open.
func (p *port) Opens() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.opens
}

type Input struct {
	port
	listeners *utils.Registry[func([]byte)]
}

func (in *Input) Listen(fn func(msg []byte)) (func(), error) {
	if err := in.Open(); err != nil {
		return nil, err
	}
	_, stop := in.listeners.Add(fn)
	return stop, nil
}

// Emit delivers msg to every listener synchronously.
func (in *Input) Emit(msg ...byte) {
	for _, fn := range in.listeners.Snapshot() {
		fn(msg)
	}
}

// Listeners returns the number of attached listeners.
func (in *Input) Listeners() int {
	return in.listeners.Len()
}

type Output struct {
	port
	sent [][]byte
	fail bool
}

func (out *Output) Send(msg []byte) error {
	out.mutex.Lock()
	defer out.mutex.Unlock()
	if out.fail {
		return ErrSendFailed
	}
	c := make([]byte, len(msg))
	copy(c, msg)
	out.sent = append(out.sent, c)
	return nil
}

// Sent returns a copy of every message sent so far.
func (out *Output) Sent() [][]byte {
	out.mutex.Lock()
	defer out.mutex.Unlock()
	return append([][]byte(nil), out.sent...)
}

func (out *Output) ClearSent() {
	out.mutex.Lock()
	defer out.mutex.Unlock()
	out.sent = nil
}

// FailSend makes every following Send return ErrSendFailed until called with false.
func (out *Output) FailSend(fail bool) {
	out.mutex.Lock()
	defer out.mutex.Unlock()
	out.fail = fail
}

type Platform struct {
	mutex     sync.Mutex
	inputs    []*Input
	outputs   []*Output
	listeners *utils.Registry[func()]
	closed    bool
	sysex     bool

	// OpenErr is returned by Opener instead of the platform when set.
	OpenErr error
}

func New() *Platform {
	return &Platform{
		listeners: utils.NewRegistry[func()](),
	}
}

func (p *Platform) Opener() driver.Opener {
	return func(sysex bool) (driver.Platform, error) {
		p.mutex.Lock()
		defer p.mutex.Unlock()
		if p.OpenErr != nil {
			return nil, p.OpenErr
		}
		p.closed = false
		p.sysex = sysex
		return p, nil
	}
}

func (p *Platform) AddInput(id, name, manufacturer string) *Input {
	in := &Input{
		port:      port{id: id, name: name, manufacturer: manufacturer},
		listeners: utils.NewRegistry[func([]byte)](),
	}
	p.mutex.Lock()
	p.inputs = append(p.inputs, in)
	p.mutex.Unlock()
	return in
}

func (p *Platform) AddOutput(id, name, manufacturer string) *Output {
	out := &Output{port: port{id: id, name: name, manufacturer: manufacturer}}
	p.mutex.Lock()
	p.outputs = append(p.outputs, out)
	p.mutex.Unlock()
	return out
}

// AddDevice adds an input and an output sharing name and manufacturer.
func (p *Platform) AddDevice(inID, outID, name, manufacturer string) (*Input, *Output) {
	return p.AddInput(inID, name, manufacturer), p.AddOutput(outID, name, manufacturer)
}

// Remove drops every port with given ID. Listeners are not notified, see TriggerStateChange.
func (p *Platform) Remove(id string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	inputs := p.inputs[:0]
	for _, in := range p.inputs {
		if in.id != id {
			inputs = append(inputs, in)
		}
	}
	p.inputs = inputs

	outputs := p.outputs[:0]
	for _, out := range p.outputs {
		if out.id != id {
			outputs = append(outputs, out)
		}
	}
	p.outputs = outputs
}

// TriggerStateChange calls every state change listener synchronously.
func (p *Platform) TriggerStateChange() {
	for _, fn := range p.listeners.Snapshot() {
		fn()
	}
}

func (p *Platform) Inputs() ([]driver.In, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	ports := make([]driver.In, 0, len(p.inputs))
	for _, in := range p.inputs {
		ports = append(ports, in)
	}
	return ports, nil
}

func (p *Platform) Outputs() ([]driver.Out, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	ports := make([]driver.Out, 0, len(p.outputs))
	for _, out := range p.outputs {
		ports = append(ports, out)
	}
	return ports, nil
}

func (p *Platform) OnStateChange(fn func()) func() {
	_, stop := p.listeners.Add(fn)
	return stop
}

// StateListeners returns the number of registered state change listeners.
func (p *Platform) StateListeners() int {
	return p.listeners.Len()
}

func (p *Platform) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.closed = true
	return nil
}

func (p *Platform) Closed() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.closed
}

// SysEx reports whether the last Opener call requested SysEx access.
func (p *Platform) SysEx() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.sysex
}
