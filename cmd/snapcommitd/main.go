// Command snapcommitd runs the gallery daemon: it watches a directory
// for snapshot PNGs, indexes them, and serves the browse API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snapcommit/snapcommit/internal/config"
	"github.com/snapcommit/snapcommit/internal/events"
	"github.com/snapcommit/snapcommit/internal/gallery"
	"github.com/snapcommit/snapcommit/internal/logger"
	"github.com/snapcommit/snapcommit/internal/pipeline"
)

func main() {
	var configPath = flag.String("config", "", "Path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "snapcommitd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	if err := config.Load(configPath); err != nil {
		return err
	}
	cfg := config.Get()
	logger.Configure(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := gallery.Open(cfg.Gallery)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	if err := bus.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		bus.Stop(stopCtx)
	}()

	bus.Publish(events.Event{Type: events.EventSystemStarted, Source: "daemon"})

	watcher := gallery.NewWatcher(store, bus, cfg.Gallery.WatchDir)
	if err := watcher.Start(ctx); err != nil {
		return err
	}

	server := gallery.NewServer(store, bus, cfg.Gallery)
	if proc, err := pipeline.FromConfig(ctx, cfg); err != nil {
		logger.Warn("processing of raw uploads disabled", "error", err)
	} else {
		server.Process = proc.Render
	}

	runErr := server.Run(ctx)

	// Same teardown whether the server exited cleanly or failed.
	stop()
	bus.Publish(events.Event{Type: events.EventSystemStopped, Source: "daemon"})
	<-watcher.Done()
	return runErr
}
