package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/gethiox/rc10r/internal/pkg/config"
	"github.com/gethiox/rc10r/internal/pkg/logger"
	"github.com/gethiox/rc10r/internal/pkg/midi"
	"github.com/gethiox/rc10r/internal/pkg/prefs"
	"github.com/gethiox/rc10r/internal/pkg/rc10r"
	"github.com/gethiox/rc10r/internal/pkg/transport"
	"go.uber.org/zap"
)

var (
	errQuit    = errors.New("quit")
	errUsage   = errors.New("usage")
	errRefused = errors.New("command not delivered")
)

// console turns text commands into pedal operations.
type console struct {
	manager  *rc10r.Manager
	prefs    *prefs.Preferences
	kits     []config.Kit
	overview *overview
	out      io.Writer

	commands map[string]consoleCommand
}

type consoleCommand struct {
	usage string
	run   func(args []string) error
}

func newConsole(m *rc10r.Manager, p *prefs.Preferences, kits []config.Kit, o *overview, out io.Writer) *console {
	c := &console{manager: m, prefs: p, kits: kits, overview: o, out: out}

	c.commands = map[string]consoleCommand{
		"help":       {"help", c.help},
		"quit":       {"quit", func([]string) error { return errQuit }},
		"status":     {"status", c.status},
		"devices":    {"devices", c.devices},
		"connect":    {"connect <device id>", c.connect},
		"scan":       {"scan", c.scan},
		"disconnect": {"disconnect", c.disconnect},
		"track1":     {"track1 rec|play|stop|undo", c.track(1)},
		"track2":     {"track2 rec|play|stop|undo", c.track(2)},
		"stopall":    {"stopall", c.simple(m.StopAllTracks)},
		"loop":       {"loop start|stop|undo|break", c.loop},
		"rhythm":     {"rhythm start|stop|division|fill|break", c.rhythm},
		"patch":      {"patch <1-99>", c.patch},
		"kit":        {"kit <1-127>", c.kit},
		"kits":       {"kits", c.listKits},
		"tempo":      {"tempo <40-200>", c.tempo},
		"sync":       {"sync internal|midi|auto", c.sync},
		"drum":       {"drum <note number or name, e.g. 36 or C1>", c.drum},
		"shortcut":   {"shortcut <slot> | shortcut set <slot> <1-99> | shortcut clear <slot>", c.shortcut},
		"shortcuts":  {"shortcuts", c.listShortcuts},
		"channel":    {"channel [1-16]", c.channel},
		"module":     {"module <device id> [channel] | module off", c.module},
	}
	return c
}

func (c *console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// Execute runs a single command line. errQuit is returned for the quit command.
func (c *console) Execute(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	name := strings.ToLower(fields[0])
	cmd, ok := c.commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", name)
	}

	err := cmd.run(fields[1:])
	if errors.Is(err, errUsage) {
		return fmt.Errorf("%w: %s", errUsage, cmd.usage)
	}
	return err
}

// Run reads commands from r until EOF, quit or ctx cancellation.
func (c *console) Run(ctx context.Context, r io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			err := c.Execute(line)
			if errors.Is(err, errQuit) {
				return
			}
			if err != nil {
				c.printf("%v\n", err)
				log.Info("command failed", zap.String("message", line), zap.Error(err), logger.Debug)
			}
		}
	}
}

func result(ok bool) error {
	if !ok {
		return errRefused
	}
	return nil
}

func number(args []string, lo, hi int) (int, error) {
	if len(args) != 1 {
		return 0, errUsage
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, errUsage
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("value out of range %d-%d: %d", lo, hi, n)
	}
	return n, nil
}

func (c *console) simple(fn func() bool) func([]string) error {
	return func(args []string) error {
		if len(args) != 0 {
			return errUsage
		}
		return result(fn())
	}
}

func (c *console) dispatch(args []string, actions map[string]func() bool) error {
	if len(args) != 1 {
		return errUsage
	}
	fn, ok := actions[strings.ToLower(args[0])]
	if !ok {
		return errUsage
	}
	return result(fn())
}

func (c *console) help([]string) error {
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c.printf("  %s\n", c.commands[name].usage)
	}
	return nil
}

func (c *console) status([]string) error {
	c.printf("%s\n", c.overview.Render(c.manager.DeviceState()))
	return nil
}

func (c *console) devices([]string) error {
	active, _ := c.manager.ActiveDevice()
	c.printf("%s\n", c.overview.Devices(c.manager.Devices(), active.ID))
	return nil
}

func (c *console) connect(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if !c.manager.ConnectByID(args[0]) {
		return fmt.Errorf("no device with id %q", args[0])
	}
	return nil
}

func (c *console) scan([]string) error {
	if !c.manager.ScanForDevice() {
		return errors.New("no device found")
	}
	return nil
}

func (c *console) disconnect([]string) error {
	c.manager.Disconnect()
	return nil
}

func (c *console) track(n int) func([]string) error {
	m := c.manager
	actions := map[string]func() bool{
		"rec":  m.StartTrack1,
		"play": m.PlayTrack1,
		"stop": m.StopTrack1,
		"undo": m.UndoRedoTrack1,
	}
	if n == 2 {
		actions = map[string]func() bool{
			"rec":  m.StartTrack2,
			"play": m.PlayTrack2,
			"stop": m.StopTrack2,
			"undo": m.UndoRedoTrack2,
		}
	}
	return func(args []string) error {
		return c.dispatch(args, actions)
	}
}

func (c *console) loop(args []string) error {
	return c.dispatch(args, map[string]func() bool{
		"start": c.manager.LoopStart,
		"stop":  c.manager.LoopStop,
		"undo":  c.manager.LoopUndoRedo,
		"break": c.manager.LoopBreak,
	})
}

func (c *console) rhythm(args []string) error {
	return c.dispatch(args, map[string]func() bool{
		"start":    c.manager.StartRhythm,
		"stop":     c.manager.StopRhythm,
		"division": c.manager.RhythmDivision,
		"fill":     c.manager.RhythmFill,
		"break":    c.manager.RhythmBreak,
	})
}

// patch takes the number shown on the pedal display.
func (c *console) patch(args []string) error {
	n, err := number(args, 1, rc10r.MaxPatch+1)
	if err != nil {
		return err
	}
	return result(c.manager.SetPatch(n - 1))
}

func (c *console) kit(args []string) error {
	n, err := number(args, rc10r.MinKit, rc10r.MaxKit)
	if err != nil {
		return err
	}
	return result(c.manager.SetRhythmKit(n))
}

func (c *console) listKits([]string) error {
	for _, k := range c.kits {
		c.printf("  %3d  %s\n", k.Program, k.Name)
	}
	return nil
}

func (c *console) tempo(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return errUsage
	}
	bpm := c.manager.SetRhythmTempo(n)
	if bpm != n {
		c.printf("tempo clamped to %d\n", bpm)
	}
	return nil
}

func (c *console) sync(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	switch strings.ToLower(args[0]) {
	case "internal":
		c.manager.SetSyncMode(rc10r.SyncInternal)
	case "midi":
		c.manager.SetSyncMode(rc10r.SyncMIDIClock)
	case "auto":
		c.manager.SetSyncMode(rc10r.SyncAuto)
	default:
		return errUsage
	}
	return nil
}

func (c *console) drum(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	note, err := midi.ParseNote(args[0])
	if err != nil {
		return err
	}
	return result(c.manager.PlayDrumSound(int(note)))
}

func (c *console) shortcut(args []string) error {
	switch {
	case len(args) == 1:
		slot, err := number(args, 0, prefs.MaxShortcutSlot)
		if err != nil {
			return err
		}
		return result(c.manager.RecallShortcut(slot))
	case len(args) == 3 && args[0] == "set":
		slot, err := number(args[1:2], 0, prefs.MaxShortcutSlot)
		if err != nil {
			return err
		}
		preset, err := number(args[2:], prefs.MinPreset, prefs.MaxPreset)
		if err != nil {
			return err
		}
		return c.prefs.SetShortcut(slot, preset)
	case len(args) == 2 && args[0] == "clear":
		slot, err := number(args[1:], 0, prefs.MaxShortcutSlot)
		if err != nil {
			return err
		}
		return c.prefs.RemoveShortcut(slot)
	default:
		return errUsage
	}
}

func (c *console) listShortcuts([]string) error {
	shortcuts := c.prefs.Shortcuts()
	if len(shortcuts) == 0 {
		c.printf("no shortcuts\n")
	}
	for _, s := range shortcuts {
		c.printf("  slot %d: patch %02d\n", s.SlotIndex, s.PresetNumber)
	}
	return nil
}

func (c *console) channel(args []string) error {
	if len(args) == 0 {
		c.printf("control channel: %d\n", c.prefs.ControlChannel())
		return nil
	}
	ch, err := number(args, midi.MinChannel, midi.MaxChannel)
	if err != nil {
		return err
	}
	return c.prefs.SetControlChannel(ch)
}

func (c *console) module(args []string) error {
	switch {
	case len(args) == 1 && args[0] == "off":
		return c.prefs.ClearSoundModule()
	case len(args) == 1 || len(args) == 2:
		d, ok := deviceByID(c.manager, args[0])
		if !ok {
			return fmt.Errorf("no device with id %q", args[0])
		}
		sm := prefs.SoundModule{DeviceID: d.ID, DeviceName: d.Name}
		if len(args) == 2 {
			ch, err := number(args[1:], midi.MinChannel, midi.MaxChannel)
			if err != nil {
				return err
			}
			sm.Channel = ch
		}
		return c.prefs.SetSoundModule(sm)
	default:
		return errUsage
	}
}

func deviceByID(m *rc10r.Manager, id string) (transport.Device, bool) {
	for _, d := range m.Devices() {
		if d.ID == id {
			return d, true
		}
	}
	return transport.Device{}, false
}
