package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/flowmail/flowmail/internal/bridge"
	"github.com/flowmail/flowmail/internal/config"
	"github.com/flowmail/flowmail/internal/core"
	"github.com/flowmail/flowmail/internal/fixtures"
	"github.com/flowmail/flowmail/internal/logging"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the dependency core bridge server",
	Long: `Start the bridge server: a WebSocket endpoint the FlowMail front end
connects to for dependency graph events, plus the optional fixture
provider harness that turns a directory of JSON files into live data
providers for development.

Endpoints:
  /ws       WebSocket event stream and command channel
  /healthz  Liveness probe`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 0, "bridge server port")
	serveCmd.Flags().String("host", "", "bridge server host")
	serveCmd.Flags().Bool("fixtures", false, "enable the fixture provider harness")
	serveCmd.Flags().String("fixtures-dir", "", "fixture directory to watch")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("fixtures.enabled", serveCmd.Flags().Lookup("fixtures"))
	_ = viper.BindPFlag("fixtures.dir", serveCmd.Flags().Lookup("fixtures-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := core.New(logger)

	bridgeServer := bridge.NewServer(c, logger, cfg.Server.AllowedOrigins)
	bridgeServer.Start()
	defer bridgeServer.Shutdown(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", bridgeServer.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.Fixtures.Enabled {
		provider, err := fixtures.NewProvider(c, logger, cfg.Fixtures.Dir,
			time.Duration(cfg.Fixtures.DebounceMs)*time.Millisecond)
		if err != nil {
			return err
		}
		group.Go(func() error {
			logger.Info(groupCtx, "fixture provider watching", "dir", cfg.Fixtures.Dir)
			if err := provider.Start(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	group.Go(func() error {
		logger.Info(groupCtx, "bridge server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
