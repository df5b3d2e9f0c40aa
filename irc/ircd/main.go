package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Kufat/inspircd/extension/persist"
	"github.com/Kufat/inspircd/irc/admind"
	"github.com/Kufat/inspircd/irc/config"
	"github.com/Kufat/inspircd/irc/link"
	"github.com/Kufat/inspircd/irc/server"
	"github.com/Kufat/inspircd/logger"
	"github.com/Kufat/inspircd/metrics"
	"github.com/Kufat/inspircd/modules"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// version is set by ldflags at build time
var version = "dev"

func main() {
	var configPath string
	var debug bool

	rootCmd := &cobra.Command{
		Use:     "ircd",
		Short:   "IRC server",
		Long:    `An IRC server with loadable feature modules and server-to-server links.`,
		Version: version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, debug)
		},
		SilenceUsage: true,
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file or URL (YAML, TOML or JSON)")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Init("ircd", debug || cfg.Debug)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []server.Option
	if cfg.Persistence.Driver != "" {
		store, err := persist.Open(cfg.Persistence.Driver, cfg.Persistence.DSN)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, server.WithStore(store))
	}

	srv := server.NewServer(cfg, opts...)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Stop()

	var loadErr error
	if err := srv.Do(ctx, func() {
		for _, m := range modules.FromConfig(cfg) {
			if loadErr = srv.LoadModule(m); loadErr != nil {
				return
			}
		}
	}); err != nil {
		return err
	}
	if loadErr != nil {
		return loadErr
	}

	links := link.NewManager(srv)
	defer links.Close()
	if addr := cfg.GetLinkListenAddress(); addr != "" {
		if err := links.Listen(addr); err != nil {
			return err
		}
	}
	links.ConnectToPeers(ctx)

	if cfg.Admin.Enabled {
		api := admind.New(srv, cfg.Admin.Token)
		go func() {
			if err := api.StartAdminServer(cfg.GetAdminListenAddress()); err != nil {
				log.Error().Err(err).Msg("admin API failed")
			}
		}()
		defer shutdown(api.Shutdown)
	}

	if cfg.Metrics.Enabled {
		metricsServer := &http.Server{
			Addr:              cfg.GetMetricsListenAddress(),
			Handler:           metrics.Router(cfg.Metrics.Path),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Str("addr", metricsServer.Addr).Msg("metrics listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer shutdown(metricsServer.Shutdown)
	}

	if configPath != "" && !isURL(configPath) {
		go func() {
			err := config.Watch(ctx, configPath, func() {
				srv.Post(func() {
					if err := srv.Rehash(""); err != nil {
						log.Error().Err(err).Msg("rehash failed, keeping the old configuration")
					}
				})
			})
			if err != nil {
				log.Warn().Err(err).Msg("not watching configuration file")
			}
		}()
	}

	log.Info().Str("version", version).Strs("modules", moduleNames(ctx, srv)).Msg("server is running")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping server")
	return nil
}

func shutdown(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn().Err(err).Msg("shutdown failed")
	}
}

func moduleNames(ctx context.Context, srv *server.Server) []string {
	var names []string
	if err := srv.Do(ctx, func() { names = srv.ModuleNames() }); err != nil {
		log.Debug().Err(err).Msg("failed to list modules")
	}
	return names
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
