package driver

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported means the platform has no usable MIDI subsystem.
	ErrUnsupported = errors.New("midi is not supported on this platform")
	// ErrAccessDenied means the platform refused access to the MIDI subsystem.
	ErrAccessDenied = errors.New("midi access denied")
)

type Port interface {
	// ID is an opaque identifier, stable for the lifetime of the port only.
	ID() string
	Name() string
	Manufacturer() string
	Open() error
	Close() error
	IsOpen() bool
}

type In interface {
	Port
	// Listen opens the port if needed and calls fn for every received message.
	// fn may be called from a driver goroutine, msg is only valid during the call.
	Listen(fn func(msg []byte)) (stop func(), err error)
}

type Out interface {
	Port
	Send(msg []byte) error
}

// Platform is an opened MIDI subsystem.
type Platform interface {
	Inputs() ([]In, error)
	Outputs() ([]Out, error)
	// OnStateChange registers fn to be called whenever ports appear, disappear or change.
	OnStateChange(fn func()) (stop func())
	Close() error
}

// Opener acquires a Platform. Failures wrap ErrUnsupported or ErrAccessDenied.
type Opener func(sysex bool) (Platform, error)

type Pair struct {
	// specific port may be nil if unavailable
	Input  In
	Output Out
}

func (p Pair) String() string {
	switch {
	case p.Input == nil && p.Output == nil:
		return "(no ports)"
	case p.Input == nil:
		return fmt.Sprintf("%s (Output only)", p.Output.Name())
	case p.Output == nil:
		return fmt.Sprintf("%s (Input only)", p.Input.Name())
	}

	inName, outName := p.Input.Name(), p.Output.Name()

	var commonPart string

	for i := 0; i < min(len(inName), len(outName)); i++ {
		inR, outR := inName[i], outName[i]

		if inR != outR {
			break
		}
		commonPart += string(inR)
	}
	return fmt.Sprintf("%s (Input/Output)", commonPart)
}
