package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/TaskSwitcher/internal/activation"
	"github.com/bryanchriswhite/TaskSwitcher/internal/api"
	"github.com/bryanchriswhite/TaskSwitcher/internal/helper"
	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
	"github.com/bryanchriswhite/TaskSwitcher/internal/metrics"
	"github.com/bryanchriswhite/TaskSwitcher/internal/platform"
	"github.com/bryanchriswhite/TaskSwitcher/internal/relay"
	"github.com/bryanchriswhite/TaskSwitcher/internal/store"
	"github.com/bryanchriswhite/TaskSwitcher/internal/switcher"
	"github.com/bryanchriswhite/TaskSwitcher/internal/window"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the TaskSwitcher server",
	Long: `Start the TaskSwitcher HTTP API, the browser extension relay and
background window polling.

If the relay port is already taken the server keeps running without
browser tab support.`,
	Example: `  # Start server on default ports (8080 API, 9876 relay)
  taskswitcher serve

  # Start server on custom ports
  taskswitcher serve --port 9090 --relay-port 9877

  # Start with debug logging
  taskswitcher serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("serve")

	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("database", cfg.DatabasePath).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	hub := relay.NewHub(relay.Options{TabRequestTimeout: cfg.TabRequestTimeout, Metrics: m})
	relaySrv := relay.NewServer(hub, fmt.Sprintf("127.0.0.1:%d", cfg.RelayPort))

	var (
		tabRelay  activation.TabRelay
		tabSource api.TabSource
	)
	if err := relaySrv.Start(); err != nil {
		if !errors.Is(err, relay.ErrPortInUse) {
			return err
		}
		log.Warn().Msg("Running without browser tab support")
		relaySrv = nil
	} else {
		tabRelay = hub
		tabSource = hub
	}

	comps := platform.Build(cfg, m, helper.ExecRunner{})
	defer comps.Close()

	poller := window.NewPoller(comps.Engine, cfg.WindowPollInterval)
	dispatcher := activation.NewDispatcher(comps.Chain, tabRelay)

	server := api.NewServer(api.Deps{
		Windows:   comps.Engine,
		Stream:    poller,
		Tabs:      tabSource,
		Activator: dispatcher,
		Tasks:     st,
		Switcher:  switcher.New(st, dispatcher, comps.Engine),
		Config:    configMgr,
		Gatherer:  reg,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		poller.Start(gctx)
		<-gctx.Done()
		poller.Stop()
		return nil
	})
	g.Go(func() error {
		return server.Start(cfg.ServerPort)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var errs []error
		errs = append(errs, server.Shutdown(shutdownCtx))
		if relaySrv != nil {
			errs = append(errs, relaySrv.Shutdown(shutdownCtx))
		}
		hub.Stop()
		return errors.Join(errs...)
	})

	log.Info().
		Str("api", fmt.Sprintf("http://127.0.0.1:%d/api", cfg.ServerPort)).
		Str("relay", fmt.Sprintf("ws://127.0.0.1:%d", cfg.RelayPort)).
		Bool("relay_enabled", relaySrv != nil).
		Msg("TaskSwitcher is running, press Ctrl+C to stop")

	return g.Wait()
}
