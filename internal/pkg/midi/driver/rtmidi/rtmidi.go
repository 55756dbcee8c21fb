// Package rtmidi implements driver.Platform on top of gomidi's rtmidi driver
// (ALSA sequencer on Linux, CoreMIDI on macOS, WinMM on Windows).
package rtmidi

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gethiox/rc10r/internal/pkg/logger"
	"github.com/gethiox/rc10r/internal/pkg/midi/driver"
	"github.com/gethiox/rc10r/internal/pkg/utils"
	"go.uber.org/zap"

	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

var log = logger.GetLogger()

// scanTimeout guards port enumeration, CoreMIDI is known to hang occasionally.
const scanTimeout = 3 * time.Second

type Config struct {
	// PollRate is the hot-plug detection interval, rtmidi has no port change notifications.
	PollRate time.Duration
	// VirtualPort creates a virtual input/output pair with given name when not empty.
	VirtualPort string
}

type port struct {
	id   string
	port drivers.Port
}

func (p *port) ID() string           { return p.id }
func (p *port) Name() string         { return p.port.String() }
func (p *port) Manufacturer() string { return "" }
func (p *port) IsOpen() bool         { return p.port.IsOpen() }
func (p *port) Close() error         { return p.port.Close() }

func (p *port) Open() error {
	if p.port.IsOpen() {
		return nil
	}
	err := p.port.Open()
	if err != nil {
		return fmt.Errorf("failed to open port %q: %w", p.Name(), err)
	}
	return nil
}

type inPort struct {
	port
	in    drivers.In
	sysex bool
}

func (in *inPort) Listen(fn func(msg []byte)) (func(), error) {
	err := in.Open()
	if err != nil {
		return nil, err
	}

	stopFn, err := in.in.Listen(func(msg []byte, milliseconds int32) {
		fn(msg)
	}, drivers.ListenConfig{
		TimeCode:        true,
		ActiveSense:     false,
		SysEx:           in.sysex,
		SysExBufferSize: 0,
		OnErr: func(err error) {
			log.Info("input error", logger.Warning, zap.String("port", in.Name()), zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to listen on device: %w", err)
	}
	return stopFn, nil
}

type outPort struct {
	port
	out drivers.Out
}

func (out *outPort) Send(msg []byte) error {
	return out.out.Send(msg)
}

type Platform struct {
	drv   *rtmididrv.Driver
	sysex bool
	rate  time.Duration

	virtualIn  driver.In
	virtualOut driver.Out

	// port wrappers are reused across scans so an open port is not opened twice
	mutex sync.Mutex
	ins   map[string]*inPort
	outs  map[string]*outPort

	listeners *utils.Registry[func()]
	done      chan struct{}
	closeOnce sync.Once
}

// Opener returns a driver.Opener creating rtmidi platforms with given config.
func Opener(cfg Config) driver.Opener {
	return func(sysex bool) (driver.Platform, error) {
		return Open(cfg, sysex)
	}
}

func Open(cfg Config, sysex bool) (*Platform, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %v: %w", err, driver.ErrUnsupported)
	}

	p := &Platform{
		drv:       drv,
		sysex:     sysex,
		rate:      cfg.PollRate,
		listeners: utils.NewRegistry[func()](),
		done:      make(chan struct{}),
		ins:       make(map[string]*inPort),
		outs:      make(map[string]*outPort),
	}
	if p.rate <= 0 {
		p.rate = time.Second
	}

	if cfg.VirtualPort != "" {
		err = p.createVirtualPort(cfg.VirtualPort)
		if err != nil {
			_ = drv.Close()
			return nil, err
		}
	}

	go p.watch()
	return p, nil
}

func (p *Platform) createVirtualPort(name string) error {
	in, err := p.drv.OpenVirtualIn(name)
	if err != nil {
		return fmt.Errorf("failed to open virtual input: %w", err)
	}
	out, err := p.drv.OpenVirtualOut(name)
	if err != nil {
		_ = in.Close()
		return fmt.Errorf("failed to open virtual output: %w", err)
	}

	p.virtualIn = &inPort{port: port{id: "virtual-in", port: in}, in: in, sysex: p.sysex}
	p.virtualOut = &outPort{port: port{id: "virtual-out", port: out}, out: out}
	log.Info("virtual port created", logger.Info, zap.String("name", name))
	return nil
}

func portCacheKey(p drivers.Port) string {
	return fmt.Sprintf("%d\x00%s", p.Number(), p.String())
}

func (p *Platform) Inputs() ([]driver.In, error) {
	ins, err := p.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("failed to list inputs: %w", err)
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	cache := make(map[string]*inPort, len(ins))
	ports := make([]driver.In, 0, len(ins)+1)
	for _, in := range ins {
		key := portCacheKey(in)
		wrapped, ok := p.ins[key]
		if !ok {
			wrapped = &inPort{
				port:  port{id: fmt.Sprintf("in:%d", in.Number()), port: in},
				in:    in,
				sysex: p.sysex,
			}
		}
		cache[key] = wrapped
		ports = append(ports, wrapped)
	}
	p.ins = cache

	if p.virtualIn != nil {
		ports = append(ports, p.virtualIn)
	}
	return ports, nil
}

func (p *Platform) Outputs() ([]driver.Out, error) {
	outs, err := p.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("failed to list outputs: %w", err)
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	cache := make(map[string]*outPort, len(outs))
	ports := make([]driver.Out, 0, len(outs)+1)
	for _, out := range outs {
		key := portCacheKey(out)
		wrapped, ok := p.outs[key]
		if !ok {
			wrapped = &outPort{
				port: port{id: fmt.Sprintf("out:%d", out.Number()), port: out},
				out:  out,
			}
		}
		cache[key] = wrapped
		ports = append(ports, wrapped)
	}
	p.outs = cache

	if p.virtualOut != nil {
		ports = append(ports, p.virtualOut)
	}
	return ports, nil
}

func (p *Platform) OnStateChange(fn func()) func() {
	_, stop := p.listeners.Add(fn)
	return stop
}

func (p *Platform) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.listeners.Clear()
		err = p.drv.Close()
	})
	return err
}

// signature lists every port name, ok is false when enumeration did not finish in time.
func (p *Platform) signature() (string, bool) {
	type result struct {
		sig string
		err error
	}
	ch := make(chan result, 1)

	go func() {
		var b strings.Builder
		ins, err := p.drv.Ins()
		if err != nil {
			ch <- result{err: err}
			return
		}
		outs, err := p.drv.Outs()
		if err != nil {
			ch <- result{err: err}
			return
		}
		for _, in := range ins {
			fmt.Fprintf(&b, "i%d:%s;", in.Number(), in.String())
		}
		for _, out := range outs {
			fmt.Fprintf(&b, "o%d:%s;", out.Number(), out.String())
		}
		ch <- result{sig: b.String()}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			log.Info("port enumeration failed", logger.Warning, zap.Error(r.err))
			return "", false
		}
		return r.sig, true
	case <-time.After(scanTimeout):
		log.Info("port enumeration timed out", logger.Warning)
		return "", false
	}
}

func (p *Platform) watch() {
	ticker := time.NewTicker(p.rate)
	defer ticker.Stop()

	last, _ := p.signature()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			sig, ok := p.signature()
			if !ok || sig == last {
				continue
			}
			last = sig
			log.Info("midi ports changed", logger.Debug)
			for _, fn := range p.listeners.Snapshot() {
				fn()
			}
		}
	}
}
