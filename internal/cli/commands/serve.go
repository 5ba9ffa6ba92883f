package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gridline-labs/gridboard/internal/config"
	"github.com/gridline-labs/gridboard/internal/dataset"
	"github.com/gridline-labs/gridboard/internal/manager"
	"github.com/gridline-labs/gridboard/internal/registry"
	"github.com/gridline-labs/gridboard/internal/render"
	"github.com/gridline-labs/gridboard/internal/repository"
	"github.com/gridline-labs/gridboard/internal/server"
	"github.com/gridline-labs/gridboard/internal/widgets"
)

// ConfigLoader resolves the effective configuration for a command.
type ConfigLoader func(cmd *cobra.Command) (*config.Config, error)

// NewServeCommand creates the serve command.
func NewServeCommand(load ConfigLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gridboard HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			repo, cleanup, err := buildRepository(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			reg := registry.New()
			if err := widgets.RegisterBuiltins(reg); err != nil {
				return err
			}
			if _, err := os.Stat(cfg.WidgetsDir); err == nil {
				n, err := reg.LoadManifestDir(cfg.WidgetsDir, logger)
				if err != nil {
					return err
				}
				logger.Info("widget manifests loaded", "dir", cfg.WidgetsDir, "count", n)
			}

			model := dataset.NewModel(dataset.ModelConfig{Logger: logger})
			mgr := manager.New(manager.Config{
				Registry: reg,
				Repo:     repo,
				Model:    model,
				Logger:   logger,
			})
			if repo != nil {
				if n, err := mgr.LoadFromRepository(cmd.Context()); err != nil {
					logger.Warn("failed to load persisted widgets", "error", err)
				} else if n > 0 {
					logger.Info("persisted widgets restored", "count", n)
				}
			}

			renderer := render.NewDualMode(render.Config{
				Registry: reg,
				Model:    model,
				Logger:   logger,
			})

			var watcher *registry.Watcher
			if cfg.WatchWidgets {
				watcher = registry.NewWatcher(registry.WatcherConfig{
					Registry: reg,
					Dir:      cfg.WidgetsDir,
					Logger:   logger,
				})
			}

			srv, err := server.New(server.Config{
				Addr:       cfg.ListenAddr,
				Manager:    mgr,
				Renderer:   renderer,
				Model:      model,
				SessionKey: cfg.SessionKey,
				Logger:     logger,
				Watcher:    watcher,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
}

// buildRepository constructs the configured persistence backend. The cleanup
// func closes whatever needs closing.
func buildRepository(cfg *config.Config, logger *slog.Logger) (repository.Repository, func(), error) {
	noop := func() {}
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return repository.NewKVRepository(repository.KVConfig{Logger: logger}), noop, nil

	case config.BackendFile:
		kv, err := repository.NewFileKV(cfg.DataDir)
		if err != nil {
			return nil, noop, err
		}
		return repository.NewKVRepository(repository.KVConfig{KV: kv, Logger: logger}), noop, nil

	case config.BackendSQLite:
		repo := repository.NewSQLiteRepository(repository.SQLiteConfig{
			Path:   cfg.DatabasePath,
			Logger: logger,
		})
		if err := repo.Open(); err != nil {
			return nil, noop, err
		}
		return repo, func() { _ = repo.Close() }, nil
	}
	return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}
