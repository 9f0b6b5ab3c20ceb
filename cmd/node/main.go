// Command node is the mako peer-pool binary: it loads settings from
// gocore's config store, wires a legacy.Server, and runs it until an
// interrupt or SIGTERM arrives, mirroring the shutdown sequencing in the
// teacher's top-level main.go.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/ordishs/gocore"
	"github.com/timgates42/mako/internal/settings"
	"github.com/timgates42/mako/internal/ulogger"
	"github.com/timgates42/mako/legacy"
)

const progname = "mako"

var version string
var commit string

func init() {
	gocore.SetInfo(progname, version, commit)
}

func main() {
	logger := ulogger.New(progname)

	stats := gocore.Config().Stats()
	logger.Infof("STATS\n%s\nVERSION\n-------\n%s (%s)\n\n", stats, version, commit)

	tSettings := settings.Load()

	srv := legacy.New(logger, tSettings, chainhash.Hash{}, 0)

	ctx := context.Background()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := srv.Init(ctx); err != nil {
		logger.Fatalf("legacy server init failed: %v", err)
	}
	if err := srv.Start(ctx); err != nil {
		logger.Fatalf("legacy server start failed: %v", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	<-interrupt
	logger.Infof("received shutdown signal")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Errorf("legacy server stop returned an error: %v", err)
		os.Exit(2)
	}
}
