package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Oudwins/taskforge/forged/core"
	"github.com/Oudwins/taskforge/forged/server"
	"github.com/Oudwins/taskforge/internals/conf"
	"github.com/Oudwins/taskforge/internals/env"
	"github.com/Oudwins/taskforge/internals/metrics"
	"github.com/Oudwins/taskforge/internals/store"
	"github.com/Oudwins/taskforge/internals/version"
)

func newRootCmd() *cobra.Command {
	var dataDir string
	root := &cobra.Command{
		Use:           "forged",
		Short:         "Task forge daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(dataDir)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default $FORGE_DATA_DIR or ~/.forge)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := conf.GetConfig()
			s, err := store.Open(cmd.Context(), filepath.Join(config.Server.DataDir, core.DBFile))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return s.Close()
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version())
		},
	})
	return root
}

// loadConfig reads .env files before the environment is parsed, then the
// config file from the data dir.
func loadConfig(dataDir string) error {
	for _, path := range []string{".env", filepath.Join(resolveDataDir(dataDir), ".env")} {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	env.Reset()
	config, err := conf.Load(resolveDataDir(dataDir))
	if err != nil {
		return err
	}
	conf.SetConfig(config)
	return nil
}

func resolveDataDir(flag string) string {
	if flag != "" {
		return flag
	}
	if dir := os.Getenv("FORGE_DATA_DIR"); dir != "" {
		return dir
	}
	dir, err := conf.ExpandPath(conf.DefaultDataDir)
	if err != nil {
		return conf.DefaultDataDir
	}
	return dir
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	config := conf.GetConfig()
	if err := os.MkdirAll(config.Server.DataDir, 0o755); err != nil {
		return err
	}
	logger, logFile, err := core.InitLogger(config)
	if err != nil {
		return err
	}
	defer logFile.Close()

	metricsHandler, err := metrics.InitMeterProvider(ctx, "forged")
	if err != nil {
		return err
	}
	if err := metrics.Init(); err != nil {
		return err
	}

	c, err := core.New(ctx, config, logger, core.Options{})
	if err != nil {
		return err
	}
	defer c.Close()

	srv := server.New(c, metricsHandler, stop)
	logger.Info("forged starting", slog.String("version", config.Version), slog.String("data_dir", config.Server.DataDir))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, env.Get().LISTEN_ADDR)
	})
	g.Go(func() error {
		return c.Run(gctx)
	})
	err = g.Wait()
	logger.Info("forged stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
