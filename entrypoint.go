package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modulrcloud/chain-tracker/cache_engine"
	"github.com/modulrcloud/chain-tracker/databases"
	"github.com/modulrcloud/chain-tracker/datasource"
	"github.com/modulrcloud/chain-tracker/globals"
	"github.com/modulrcloud/chain-tracker/handlers"
	"github.com/modulrcloud/chain-tracker/http_pack"
	"github.com/modulrcloud/chain-tracker/telemetry"
	"github.com/modulrcloud/chain-tracker/threads"
	"github.com/modulrcloud/chain-tracker/utils"
	"github.com/modulrcloud/chain-tracker/websocket_pack"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func RunTracker() error {

	cfg := &globals.CONFIGURATION

	utils.SetLogLevel(cfg.LogLevel)

	source, err := datasource.New(cfg)
	if err != nil {
		return fmt.Errorf("build data source: %w", err)
	}

	if closer, ok := source.(io.Closer); ok {
		defer closer.Close()
	}

	history, err := databases.OpenMetricsHistory(cfg.MetricsHistorySize)
	if err != nil {
		return err
	}
	defer history.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	feed := websocket_pack.NewFeed()

	engine := cache_engine.New(source, cfg.EngineParams(),
		cache_engine.WithRecorder(history),
		cache_engine.WithListener(feed),
		cache_engine.WithCollector(telemetry.NewCollector(registry)),
	)

	handlers.SetTracker(engine, history, feed)

	utils.LogWithTime(fmt.Sprintf("Chain tracker v%s, source=%s", globals.TRACKER_VERSION, cfg.SourceKind), utils.GREEN_COLOR)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//_________________________ WARM UP THE CACHES _________________________

	if err := engine.Initialize(ctx); err != nil {
		utils.LogWithTime(fmt.Sprintf("Initial refresh failed, serving empty caches until the source answers: %v", err), utils.YELLOW_COLOR)
	}

	//_________________________ RUN OPTIONAL POLLER _________________________

	go threads.RefreshPollerThread(ctx, engine, time.Duration(cfg.RefreshIntervalMs)*time.Millisecond)

	//___________________ RUN SERVERS - WEBSOCKET AND HTTP __________________

	go websocket_pack.CreateWebsocketServer(feed)

	go http_pack.CreateHTTPServer(registry)

	<-ctx.Done()

	utils.LogWithTime("Shutting down", utils.YELLOW_COLOR)

	return nil
}
