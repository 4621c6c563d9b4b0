// dhe-worker listens for configured key combinations on every keyboard and
// runs the bound actions: translating the selection into a notification or
// a paste, and opening the GUI.
//
//	dhe-worker [-c path] [-init]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"dhe/internal/actions"
	"dhe/internal/clipboard"
	"dhe/internal/config"
	"dhe/internal/health"
	"dhe/internal/history"
	"dhe/internal/ipc"
	"dhe/internal/keyboard"
	"dhe/internal/logging"
	"dhe/internal/metrics"
	"dhe/internal/notify"
	"dhe/internal/translate"
)

// Version is set at build time.
var Version = "dev"

func main() {
	var (
		commandsFile string
		runStarters  bool
		showVersion  bool
	)
	flag.StringVar(&commandsFile, "commands-file", "", "path to the command file (default: $HOME/dhe_commands.toml)")
	flag.StringVar(&commandsFile, "c", "", "shorthand for -commands-file")
	flag.BoolVar(&runStarters, "init", false, "run bash-starter commands before listening")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("dhe-worker", Version)
		return
	}

	if err := run(commandsFile, runStarters); err != nil {
		fmt.Fprintf(os.Stderr, "dhe-worker: %v\n", err)
		os.Exit(1)
	}
}

func run(commandsFile string, runStarters bool) error {
	loader := config.NewLoader(commandsFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load %s: %w", loader.Path(), err)
	}
	defer loader.Close()

	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	checker := health.NewChecker()

	emulator, err := keyboard.NewEmulator(
		keyboard.WithVirtualName(cfg.Keyboard.VirtualName),
		keyboard.WithLogger(log),
	)
	var emitter *serialEmitter
	if err != nil {
		log.Warn("virtual keyboard unavailable, pasting is disabled", "error", err)
		checker.RegisterFunc("virtual-keyboard", false, health.Static(health.StatusUnhealthy, err.Error()))
		emitter = newSerialEmitter(nil, m)
	} else {
		defer emulator.Close()
		checker.RegisterFunc("virtual-keyboard", false, health.Static(health.StatusHealthy, cfg.Keyboard.VirtualName))
		emitter = newSerialEmitter(emulator, m)
	}

	deps := actions.Deps{
		Paster:  emitter,
		Spawner: actions.NewExecSpawner(logger.WithComponent("spawn").Logger),
		Logger:  logger.WithComponent("actions").Logger,
	}
	if clip, err := clipboard.New(clipboard.WithLogger(logger.WithComponent("clipboard").Logger)); err != nil {
		log.Warn("clipboard unavailable, translation is disabled", "error", err)
		checker.RegisterFunc("clipboard", false, health.Static(health.StatusUnhealthy, err.Error()))
	} else {
		log.Info("clipboard backend", "backend", clip.Backend())
		checker.RegisterFunc("clipboard", false, health.Static(health.StatusHealthy, clip.Backend()))
		deps.Clipboard = clip
	}
	if n, err := notify.New(notify.Config{}); err != nil {
		log.Warn("notifications unavailable", "error", err)
		checker.RegisterFunc("notifier", false, health.Static(health.StatusUnhealthy, err.Error()))
	} else {
		defer n.Close()
		checker.RegisterFunc("notifier", false, health.Static(health.StatusHealthy, "session bus"))
		deps.Notifier = n
	}
	tr, err := translate.New(translate.Config{
		Endpoint: cfg.Translate.Endpoint,
		Timeout:  cfg.Translate.Timeout.Std(),
		Logger:   logger.WithComponent("translate").Logger,
	})
	if err != nil {
		return err
	}
	deps.Translator = tr
	dispatcher := actions.NewDispatcher(deps, actions.SettingsFrom(cfg))

	var store historyStore
	if cfg.Daemon.History != "" {
		hs, err := history.Open(cfg.Daemon.History, cfg.Daemon.HistoryLimit)
		if err != nil {
			log.Warn("history unavailable", "path", cfg.Daemon.History, "error", err)
		} else {
			defer hs.Close()
			checker.RegisterFunc("history", false, health.ErrorCheck("database", hs.Ping))
			store = hs
		}
	}

	listenerLog := logger.WithComponent("keyboard").Logger
	worker, err := NewWorker(WorkerDeps{
		Logger:     logger.WithComponent("worker").Logger,
		Loader:     loader,
		Dispatcher: dispatcher,
		Emitter:    emitter,
		History:    store,
		Metrics:    m,
		Health:     checker,
		Version:    Version,
		Open: func(reference keyboard.Key) (*keyboard.Listener, error) {
			return keyboard.NewListener(
				keyboard.WithReferenceKey(reference),
				keyboard.WithLogger(listenerLog),
			)
		},
	}, cfg)
	if err != nil {
		return err
	}

	checker.RegisterFunc("keyboard", true, worker.CheckKeyboards)

	loader.OnChange(worker.OnConfigChange)
	if err := loader.Watch(); err != nil {
		log.Warn("configuration hot reload disabled", "error", err)
	}
	go logReloadErrors(ctx, loader, log)
	go reloadOnHangup(ctx, loader, log)

	if runStarters {
		starters := cfg.StarterCommands()
		log.Info("running starters", "count", len(starters))
		if err := actions.RunStarters(ctx, starters, cfg.Starter.Delay.Std(), deps.Spawner); err != nil {
			log.Error("starter failed", "error", err)
		}
	}

	serverCfg := ipc.DefaultServerConfig(cfg.Daemon.Socket)
	serverCfg.Logger = log
	server := ipc.NewServer(serverCfg, ipc.NewServiceHandler(worker))
	if err := server.Start(); err != nil {
		log.Warn("control socket disabled", "error", err)
	} else {
		defer server.Stop()
	}

	log.Info("worker started", "version", Version, "commands_file", loader.Path())
	err = worker.Run(ctx)
	if errors.Is(err, keyboard.ErrKeyboardNotFound) {
		return fmt.Errorf("%w; add the user to the input group or run as root", err)
	}
	if err != nil {
		return err
	}
	log.Info("worker stopped")
	return nil
}

func setupLogging(cfg *config.Config) (*logging.Logger, error) {
	lc, err := cfg.LoggingOptions()
	if err != nil {
		return nil, err
	}
	lc.Component = "dhe-worker"
	logger, err := logging.New(lc)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	logging.SetDefault(logger)
	return logger, nil
}

func logReloadErrors(ctx context.Context, loader *config.Loader, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-loader.Errors():
			if !ok {
				return
			}
			log.Error("configuration reload rejected, keeping previous configuration", "error", err)
		}
	}
}

func reloadOnHangup(ctx context.Context, loader *config.Loader, log *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if _, err := loader.Reload(); err != nil {
				log.Error("configuration reload rejected, keeping previous configuration", "error", err)
			}
		}
	}
}
