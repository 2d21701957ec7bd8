package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/G-grbz/argusSyS/api"
	"github.com/G-grbz/argusSyS/config"
	"github.com/G-grbz/argusSyS/controller"
	"github.com/G-grbz/argusSyS/procrun"
)

var (
	dataDir    string
	listen     string
	listenPort int
	appVersion = "0.2.0"
)

var rootCmd = &cobra.Command{
	Use:   "argus",
	Short: "argus - host telemetry collector with speedtest tracking",
	Long:  "Argus collects host metrics and orchestrates network speed tests for its dashboard clients.",
	Run:   run,
}

func init() {
	wd, _ := os.Getwd()
	rootCmd.Version = appVersion
	rootCmd.Flags().StringVar(&dataDir, "data-dir", wd, "Data directory (default: current directory)")
	rootCmd.Flags().StringVar(&listen, "listen", "all", "IP address to listen on (default: all)")
	rootCmd.Flags().IntVar(&listenPort, "listen-port", 8080, "Port to listen on (default: 8080)")
}

func run(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	setupLogging(cfg.Log)

	// CLI flags win over file/env config only when explicitly provided.
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if cmd.Flags().Changed("listen") || cmd.Flags().Changed("listen-port") {
		if listen != "" && listen != "all" {
			cfg.ListenAddr = fmt.Sprintf("%s:%d", listen, listenPort)
		} else {
			cfg.ListenAddr = fmt.Sprintf(":%d", listenPort)
		}
	}

	dataDirAbs, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("resolve data dir")
	}
	cfg.DataDir = dataDirAbs
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("ensure data dir")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ctrl := controller.New(procrun.RealExecutor{}, cfg.Speedtest)

	mux := http.NewServeMux()
	apiServer := api.NewServer(ctrl)
	apiServer.Register(mux)

	// Scheduler pump: Tick is non-blocking and cheap while a run is in
	// flight.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ctrl.Tick()
			}
		}
	}()

	if cfg.Speedtest.RunOnStart {
		ctrl.RunNow()
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	log.Info().Str("addr", cfg.ListenAddr).Str("data_dir", cfg.DataDir).Msg("listening")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown")
	}
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
