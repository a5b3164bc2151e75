// Package main provides the entry point for the authflow web host. The host signs browser
// users in through the identity provider configured in config.yaml.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/router-for-me/authflow/internal/api"
	"github.com/router-for-me/authflow/internal/config"
	"github.com/router-for-me/authflow/internal/logging"
	"github.com/router-for-me/authflow/internal/storage"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
}

func main() {
	fmt.Printf("authflow web host %s, Commit: %s, BuiltAt: %s\n", Version, Commit, BuildDate)

	if handleServiceCommand(os.Args[1:]) {
		return
	}

	var configPath string
	var envFile string
	var asService bool
	flag.StringVar(&configPath, "config", "config.yaml", "Configure file path")
	flag.StringVar(&envFile, "env-file", ".env", "Environment file loaded before the configuration")
	flag.BoolVar(&asService, "service", false, "Run under the Windows service manager")
	flag.Parse()

	if errLoad := godotenv.Load(envFile); errLoad != nil && !errors.Is(errLoad, os.ErrNotExist) {
		log.WithError(errLoad).Warn("failed to load .env file")
	}

	if asService {
		if err := runService(configPath); err != nil {
			log.Fatalf("service failed: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, configPath); err != nil {
		log.Errorf("web host stopped: %v", err)
		os.Exit(1)
	}
}

// serve runs the web host until ctx is cancelled.
func serve(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfigOptional(configPath, filepath.Base(configPath) == "config.yaml")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	warnings, err := config.ValidateConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, w := range warnings {
		log.Warn(w)
	}
	if err = logging.ConfigureLogOutput(cfg); err != nil {
		return fmt.Errorf("failed to configure log output: %w", err)
	}

	backend, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Type, err)
	}
	defer func() {
		if errClose := backend.Close(); errClose != nil {
			log.Warnf("failed to close store: %v", errClose)
		}
	}()
	log.Infof("fingerprint store: %s", backend.Kind())

	server, err := api.NewServer(cfg, backend)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		server.SweepSessions(gctx)
		return nil
	})
	g.Go(func() error {
		if _, errStat := os.Stat(configPath); errStat != nil {
			log.Debugf("config watcher disabled: %v", errStat)
			return nil
		}
		return config.Watch(gctx, configPath, server.UpdateConfig)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	if err = g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("web host stopped")
	return nil
}
