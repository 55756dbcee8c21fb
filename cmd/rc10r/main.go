package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/gethiox/rc10r/internal/pkg/config"
	"github.com/gethiox/rc10r/internal/pkg/logger"
	"github.com/gethiox/rc10r/internal/pkg/midi/driver"
	"github.com/gethiox/rc10r/internal/pkg/midi/driver/mock"
	"github.com/gethiox/rc10r/internal/pkg/midi/driver/rawmidi"
	"github.com/gethiox/rc10r/internal/pkg/midi/driver/rtmidi"
	"github.com/gethiox/rc10r/internal/pkg/prefs"
	"github.com/gethiox/rc10r/internal/pkg/rc10r"
	"github.com/gethiox/rc10r/internal/pkg/transport"
	"github.com/logrusorgru/aurora"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

var (
	nocolor  = flag.Bool("nocolor", false, "disable color")
	silent   = flag.Bool("silent", false, "no output logging")
	debug    = flag.Bool("debug", false, "print debug logs")
	watch    = flag.Bool("watch", false, "print the device state after every change")
	driverID = flag.String("driver", "", "midi driver overriding the config (rtmidi, raw, mock)")
	root     = flag.String("root", ".", "directory holding rc10r-config")
	logLevel = flag.Int("loglevel", 1,
		"logging level, each level enables additional information class (0-3, default: 1)\n"+
			"\navailable options:\n"+
			"0: general info (eg. device connection status)\n"+
			"1: commands sent to the pedal\n"+
			"2: beat clock transitions\n"+
			"3: incoming midi messages",
	)
)

// effectiveLogLevel maps the -loglevel flag onto logger levels, -debug shows everything.
func effectiveLogLevel(level int, debug bool) int {
	if debug {
		return logger.DebugLvl
	}
	return level + logger.InfoLvl
}

// newOpener returns the platform opener for configured driver.
func newOpener(cfg config.Config) driver.Opener {
	switch cfg.MIDI.Driver {
	case config.DriverRaw:
		return rawmidi.Opener(rawmidi.Config{})
	case config.DriverMock:
		platform := mock.New()
		platform.AddDevice("mock-in", "mock-out", cfg.RC10R.DeviceName, "BOSS")
		return platform.Opener()
	default:
		return rtmidi.Opener(rtmidi.Config{
			PollRate:    cfg.MIDI.DiscoveryRate,
			VirtualPort: cfg.MIDI.VirtualPort,
		})
	}
}

func settings(cfg config.Config) rc10r.Settings {
	return rc10r.Settings{
		DeviceName:       cfg.RC10R.DeviceName,
		ClockSources:     cfg.RC10R.ClockSources,
		Exclude:          cfg.RC10R.Exclude,
		SettleDelay:      cfg.RC10R.SettleDelay,
		BeatClockTimeout: cfg.RC10R.BeatClockTimeout,
		DrumNoteLength:   cfg.RC10R.DrumNoteLength,
	}
}

func loadConfig(root string) config.Config {
	err := createConfigDirectoryIfNeeded(root)
	if err != nil {
		log.Info(fmt.Sprintf("config directory: %v", err), logger.Warning)
	}

	path := filepath.Join(root, configDir, "rc10r.config")
	cfg, err := config.Load(path)
	if err != nil {
		log.Info(fmt.Sprintf("using default config: %v", err), zap.String("config", path), logger.Warning)
		cfg = config.Default()
	}
	if *driverID != "" {
		cfg.MIDI.Driver = *driverID
	}
	if cfg.Preferences.Path != "" && !filepath.IsAbs(cfg.Preferences.Path) {
		cfg.Preferences.Path = filepath.Join(root, cfg.Preferences.Path)
	}
	return cfg
}

func openPreferences(ctx context.Context, wg *sync.WaitGroup, cfg config.Config, m func() *rc10r.Manager) *prefs.Preferences {
	store, err := prefs.NewFileStore(cfg.Preferences.Path)
	if err != nil {
		log.Info(fmt.Sprintf("preferences not loaded, changes are not persisted: %v", err), logger.Warning)
		return prefs.New(prefs.NewMemoryStore())
	}

	if cfg.Preferences.Watch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range store.Watch(ctx) {
				log.Info("preferences reloaded", zap.String("config", cfg.Preferences.Path), logger.Info)
				if manager := m(); manager != nil && !manager.IsConnected() {
					manager.ScanForDevice()
				}
			}
		}()
	}
	return prefs.New(store)
}

func handleSigs(sigs <-chan os.Signal, cancel func()) {
	var counter int
	for sig := range sigs {
		if counter > 0 {
			fmt.Println("Dirty exit")
			os.Exit(1)
		}
		log.Info(fmt.Sprintf("signal received: %v", sig), logger.Debug)
		cancel()
		counter++
	}
}

func main() {
	flag.Parse()
	*logLevel = effectiveLogLevel(*logLevel, *debug)

	colors := colorEnabled(os.Stdout, *nocolor)

	logsDone := make(chan struct{})
	go func() {
		defer close(logsDone)
		if *silent {
			for range logger.Messages {
			}
			return
		}
		printLogs(os.Stderr, logger.Messages, aurora.NewAurora(colorEnabled(os.Stderr, *nocolor)), *logLevel)
	}()

	cfg := loadConfig(*root)
	log.Info(fmt.Sprintf("rc10r config: %+v", cfg), logger.Debug)
	kits := loadKits(*root)

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go handleSigs(sigs, cancel)

	wg := sync.WaitGroup{}

	var (
		managerMutex sync.Mutex
		manager      *rc10r.Manager
	)
	p := openPreferences(ctx, &wg, cfg, func() *rc10r.Manager {
		managerMutex.Lock()
		defer managerMutex.Unlock()
		return manager
	})

	managerMutex.Lock()
	manager = rc10r.NewManager(transport.New(newOpener(cfg)), p, rc10r.WithSettings(settings(cfg)))
	managerMutex.Unlock()

	view := newOverview(os.Stdout, colors, kits)
	if *watch {
		remove := manager.AddObserver(func(s rc10r.DeviceState) {
			fmt.Println(view.Render(s))
		})
		defer remove()
	}

	err := manager.Initialize(cfg.MIDI.SysEx)
	if err != nil {
		log.Info(fmt.Sprintf("MIDI is not available: %v", err), logger.Error)
	}

	fmt.Println("rc10r ready, type help for commands")
	newConsole(manager, p, kits, view, os.Stdout).Run(ctx, os.Stdin)

	cancel()
	manager.Destroy()
	signal.Stop(sigs)
	close(sigs)

	wg.Wait()
	logger.Close()
	<-logsDone
}
