// pastad is the clipboard history daemon. It watches the system
// clipboard, classifies and stores what it sees, and replays entries on
// request over a local control socket. Use pastactl to talk to it.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"pastad/internal/config"
	"pastad/internal/daemon"
	"pastad/internal/logging"
	"pastad/internal/sensitive"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (default: platform config dir)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("pastad", daemon.Version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "pastad:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	loader := config.NewLoader(configPath, slog.Default())
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", loader.Path(), err)
	}

	logger, err := logging.Setup(cfg.Logging, sensitive.NewDetector())
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	logging.SetDefault(logger)

	d, err := daemon.New(cfg, logger, daemon.Options{})
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return err
	}
	defer d.Stop()

	loader.OnChange(func(next *config.Config) {
		if err := d.Reload(next); err != nil {
			logger.Error("apply reloaded config", "error", err)
		}
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config watch unavailable", "error", err)
	}
	defer loader.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case <-d.ShutdownRequested():
		logger.Info("shutdown requested over control socket")
	}
	return nil
}
