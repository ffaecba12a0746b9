package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/plugctl/plugd/internal/config"
	"github.com/plugctl/plugd/internal/control"
	"github.com/plugctl/plugd/internal/launcher"
	"github.com/plugctl/plugd/internal/logging"
	"github.com/plugctl/plugd/internal/metrics"
	"github.com/plugctl/plugd/internal/registry"
	"github.com/plugctl/plugd/internal/server"
)

var (
	debug bool
	human bool
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the plugin supervisor daemon",
	Long:  `Start the plugd daemon: load boot plugins, scan the default plugin directory, and serve the runtime control channel.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := config.Initialize(); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize configuration")
		}
		cfg := config.Get()

		logging.InitLogger(debug || cfg.Log.Level == "debug", human || cfg.Log.Format == "human")

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		m := metrics.New()
		reg := registry.New()

		l, err := launcher.New(reg, cfg.Plugin.HandshakeTimeout, cfg.Plugin.Workers, m)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize plugin launcher")
		}
		defer l.Close()

		plane := control.New(reg, l, control.Options{
			DefaultDir:     cfg.Plugin.Dir,
			CohortTimeout:  cfg.Plugin.HandshakeTimeout,
			DeprecatedAPIs: cfg.Compat.DeprecatedAPIs,
			Metrics:        m,
		})
		l.SetSink(plane)
		go plane.Run(ctx)

		bootPlugins(reg, l, cfg)

		go func() {
			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort)
			if err := metrics.Serve(addr, m); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()

		srv, err := server.NewServer(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), plane)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize control server")
		}

		// Ensure the stop channel is closed only once.
		var stopOnce sync.Once
		stopChan := make(chan os.Signal, 1)
		signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-stopChan
			log.Info().Msgf("signal %v received, shutting down server", sig)

			stopOnce.Do(func() {
				if err := srv.Stop(); err != nil {
					log.Error().Err(err).Msg("failed to stop server")
				}
				cancel()
				close(stopChan)
			})
		}()

		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start control server")
		}

		// Block the main goroutine to keep the daemon running until a termination signal is received.
		<-stopChan

		log.Info().Msg("daemon stopped gracefully")
	},
}

// bootPlugins registers and starts the plugins configured for boot: the
// static (non-dynamic) list plus everything in the default plugin
// directory. Boot failures are logged, never fatal.
func bootPlugins(reg *registry.Registry, l *launcher.Launcher, cfg *config.Config) {
	for _, path := range cfg.Plugin.Static {
		rec, err := reg.Register(path, false)
		if err != nil {
			log.Warn().Str("plugin", path).Err(err).Msg("skipping duplicate static plugin")
			continue
		}
		if err := l.BeginDetached(rec); err != nil {
			log.Error().Str("plugin", path).Err(err).Msg("failed to start static plugin")
			reg.Remove(rec)
		}
	}

	recs, err := l.Discover(cfg.Plugin.Dir)
	if err != nil {
		log.Warn().Str("directory", cfg.Plugin.Dir).Err(err).Msg("default plugin directory not scanned")
		return
	}
	for _, rec := range recs {
		if err := l.BeginDetached(rec); err != nil {
			log.Error().Str("plugin", rec.Path()).Err(err).Msg("failed to start plugin")
			reg.Remove(rec)
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	serveCmd.Flags().BoolVar(&human, "human", false, "Enable human-readable logs")
}
