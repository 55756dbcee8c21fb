// Package rawmidi implements driver.Platform on Linux ALSA raw MIDI character devices.
// Every /dev/snd/midiC<card>D<device> node is exposed as one input and one output port.
package rawmidi

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gethiox/rc10r/internal/pkg/logger"
	"github.com/gethiox/rc10r/internal/pkg/midi"
	"github.com/gethiox/rc10r/internal/pkg/midi/driver"
	"github.com/gethiox/rc10r/internal/pkg/utils"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

var nodeRegex = regexp.MustCompile(`^midiC(\d+)D(\d+)$`)

type Config struct {
	DevDir  string // default /dev/snd
	ProcDir string // default /proc/asound
}

func (c Config) withDefaults() Config {
	if c.DevDir == "" {
		c.DevDir = "/dev/snd"
	}
	if c.ProcDir == "" {
		c.ProcDir = "/proc/asound"
	}
	return c
}

type node struct {
	path   string
	card   int
	device int
}

func detectNodes(dir string) ([]node, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var nodes = make([]node, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := nodeRegex.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		card, _ := strconv.Atoi(match[1])
		device, _ := strconv.Atoi(match[2])
		nodes = append(nodes, node{
			path:   filepath.Join(dir, entry.Name()),
			card:   card,
			device: device,
		})
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].card != nodes[j].card {
			return nodes[i].card < nodes[j].card
		}
		return nodes[i].device < nodes[j].device
	})
	return nodes, nil
}

func readProc(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

type port struct {
	mutex sync.Mutex
	id    string
	path  string
	name  string
	flag  int
	file  *os.File
}

func (p *port) ID() string   { return p.id }
func (p *port) Name() string { return p.name }

// Manufacturer is not exposed by raw midi nodes.
func (p *port) Manufacturer() string { return "" }

func (p *port) Open() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.file != nil {
		return nil
	}
	f, err := os.OpenFile(p.path, p.flag|os.O_SYNC, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", p.path, err)
	}
	p.file = f
	return nil
}

func (p *port) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

func (p *port) IsOpen() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.file != nil
}

type inPort struct {
	port
}

func (in *inPort) Listen(fn func(msg []byte)) (func(), error) {
	err := in.Open()
	if err != nil {
		return nil, err
	}
	in.mutex.Lock()
	f := in.file
	in.mutex.Unlock()

	var stopped = make(chan struct{})

	go func() {
		var splitter midi.Splitter
		var buf = make([]byte, 256)
		for {
			n, err := f.Read(buf)
			if n > 0 {
				splitter.Write(buf[:n], func(e midi.Event) {
					select {
					case <-stopped:
					default:
						fn(e)
					}
				})
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
					log.Info("reading midi device failed", logger.Warning, zap.String("path", in.path), zap.Error(err))
				}
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopped)
		})
	}, nil
}

type outPort struct {
	port
}

func (out *outPort) Send(msg []byte) error {
	out.mutex.Lock()
	defer out.mutex.Unlock()
	if out.file == nil {
		return fmt.Errorf("port %s is not open", out.path)
	}
	_, err := out.file.Write(msg)
	return err
}

type Platform struct {
	cfg       Config
	watcher   *fsnotify.Watcher
	listeners *utils.Registry[func()]

	mutex  sync.Mutex
	ports  map[string]*portPair
	closed bool
}

type portPair struct {
	in  *inPort
	out *outPort
}

func Opener(cfg Config) driver.Opener {
	return func(sysex bool) (driver.Platform, error) {
		return Open(cfg)
	}
}

func Open(cfg Config) (*Platform, error) {
	cfg = cfg.withDefaults()

	_, err := detectNodes(cfg.DevDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%s: %w", cfg.DevDir, driver.ErrUnsupported)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%s: %w", cfg.DevDir, driver.ErrAccessDenied)
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", cfg.DevDir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	err = watcher.Add(cfg.DevDir)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", cfg.DevDir, err)
	}

	p := &Platform{
		cfg:       cfg,
		watcher:   watcher,
		listeners: utils.NewRegistry[func()](),
		ports:     make(map[string]*portPair),
	}
	go p.watch()
	return p, nil
}

func (p *Platform) watch() {
	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !nodeRegex.MatchString(filepath.Base(event.Name)) {
				continue
			}
			log.Info(fmt.Sprintf("midi device change detected: %s", event.Name), logger.Debug)
			for _, fn := range p.listeners.Snapshot() {
				fn()
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			log.Info("device watcher error", logger.Warning, zap.Error(err))
		}
	}
}

// refresh returns the port pairs of currently present nodes. Pairs of known nodes are
// reused so open files survive a rescan.
func (p *Platform) refresh() ([]*portPair, error) {
	nodes, err := detectNodes(p.cfg.DevDir)
	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	var (
		pairs = make([]*portPair, 0, len(nodes))
		seen  = make(map[string]struct{}, len(nodes))
	)
	for _, n := range nodes {
		seen[n.path] = struct{}{}
		pair, ok := p.ports[n.path]
		if !ok {
			name := p.describe(n)
			pair = &portPair{
				in:  &inPort{port{id: n.path + ":in", path: n.path, name: name, flag: os.O_RDONLY}},
				out: &outPort{port{id: n.path + ":out", path: n.path, name: name, flag: os.O_WRONLY}},
			}
			p.ports[n.path] = pair
		}
		pairs = append(pairs, pair)
	}
	for path, pair := range p.ports {
		if _, ok := seen[path]; !ok {
			_ = pair.in.Close()
			_ = pair.out.Close()
			delete(p.ports, path)
		}
	}
	return pairs, nil
}

// describe names a node after its sound card: the card name from /proc/asound/cards,
// falling back to the card id.
func (p *Platform) describe(n node) string {
	var name string
	for _, line := range strings.Split(readProc(filepath.Join(p.cfg.ProcDir, "cards")), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != strconv.Itoa(n.card) {
			continue
		}
		if i := strings.Index(line, "]: "); i >= 0 {
			parts := strings.SplitN(line[i+3:], " - ", 2)
			name = strings.TrimSpace(parts[len(parts)-1])
		}
		break
	}
	if name == "" {
		name = readProc(filepath.Join(p.cfg.ProcDir, fmt.Sprintf("card%d", n.card), "id"))
	}
	if name == "" {
		return fmt.Sprintf("hw:%d,%d", n.card, n.device)
	}
	if n.device > 0 {
		name = fmt.Sprintf("%s MIDI %d", name, n.device+1)
	}
	return name
}

func (p *Platform) Inputs() ([]driver.In, error) {
	pairs, err := p.refresh()
	if err != nil {
		return nil, err
	}
	ports := make([]driver.In, 0, len(pairs))
	for _, pair := range pairs {
		ports = append(ports, pair.in)
	}
	return ports, nil
}

func (p *Platform) Outputs() ([]driver.Out, error) {
	pairs, err := p.refresh()
	if err != nil {
		return nil, err
	}
	ports := make([]driver.Out, 0, len(pairs))
	for _, pair := range pairs {
		ports = append(ports, pair.out)
	}
	return ports, nil
}

func (p *Platform) OnStateChange(fn func()) func() {
	_, stop := p.listeners.Add(fn)
	return stop
}

func (p *Platform) Close() error {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return nil
	}
	p.closed = true
	for _, pair := range p.ports {
		_ = pair.in.Close()
		_ = pair.out.Close()
	}
	p.ports = make(map[string]*portPair)
	p.mutex.Unlock()

	p.listeners.Clear()
	return p.watcher.Close()
}
