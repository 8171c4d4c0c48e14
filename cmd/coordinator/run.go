/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

package main

import (
	"context"
	"log"

	"github.com/edgelesssys/dextmanager/coordinator/config"
	"github.com/edgelesssys/dextmanager/coordinator/core"
	"github.com/edgelesssys/dextmanager/coordinator/events"
	"github.com/edgelesssys/dextmanager/coordinator/server"
	"github.com/edgelesssys/dextmanager/coordinator/sysext"
	"github.com/edgelesssys/dextmanager/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Version is the coordinator version.
var Version = "0.0.0" // Don't touch! Automatically injected at build-time.

// GitCommit is the git commit hash.
var GitCommit = "0000000000000000000000000000000000000000" // Don't touch! Automatically injected at build-time.

func run(ctx context.Context, cfg *config.Config) {
	// Setup logging with Zap Logger
	// Development Logger shows a stacktrace for warnings & errors, Production Logger only for errors
	zapLogger, err := logging.New(logging.Options{
		DevMode: cfg.DevMode,
		Debug:   cfg.DebugLogging,
		File:    cfg.LogFile,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer zapLogger.Sync() // flushes buffer, if any

	zapLogger.Info("Starting coordinator", zap.String("version", Version), zap.String("commit", GitCommit))

	lock, err := lockDataDir(cfg.DataDir)
	if err != nil {
		zapLogger.Fatal("Cannot take ownership of data directory", zap.String("dataDir", cfg.DataDir), zap.Error(err))
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			zapLogger.Warn("Unlocking data directory failed", zap.Error(err))
		}
	}()

	// Create Prometheus resources and start the Prometheus server.
	eventlog := events.NewLog()
	var promRegistry *prometheus.Registry
	var promFactoryPtr *promauto.Factory
	if cfg.PromAddr != "" {
		promRegistry = prometheus.NewRegistry()
		promFactory := promauto.With(promRegistry)
		promFactoryPtr = &promFactory
		promFactory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dext",
			Name:      "version_info",
			Help:      "Version information of the coordinator.",
			ConstLabels: map[string]string{
				"version": Version,
				"commit":  GitCommit,
			},
		})
	}

	// callbacks of the extension-management service are delivered on the queue
	queueCtx, stopQueue := context.WithCancel(context.Background())
	queue := sysext.NewQueue()
	go queue.Run(queueCtx)

	manager, err := newManager(cfg, queue, zapLogger)
	if err != nil {
		zapLogger.Fatal("Cannot set up extension-management service", zap.Error(err))
	}
	defer func() {
		stopQueue()
		<-queue.Done()
		waitForManager(manager, managerWaitTimeout, zapLogger)
	}()

	// creating core
	zapLogger.Info("Creating the Core object")
	co, err := core.NewCore(cfg.BundleID, cfg.DriverName, manager, zapLogger.Named("core"), promFactoryPtr, eventlog)
	if err != nil {
		zapLogger.Fatal("Cannot create coordinator core", zap.Error(err))
	}

	group, ctx := errgroup.WithContext(ctx)
	if promRegistry != nil {
		group.Go(func() error {
			return server.RunPrometheusServer(ctx, cfg.PromAddr, zapLogger, promRegistry, eventlog)
		})
	}

	// start client server
	zapLogger.Info("Starting the client server")
	mux := server.CreateServeMux(co, promFactoryPtr)
	group.Go(func() error {
		return server.RunClientServer(ctx, mux, cfg.ClientAddr, zapLogger)
	})

	if cfg.ActivateOnStart {
		activateOnStart(ctx, co, zapLogger)
	}

	if err := group.Wait(); err != nil {
		zapLogger.Error("Error during execution", zap.Error(err))
		return
	}
	zapLogger.Info("Coordinator stopped", zap.String("status", co.StatusText()))
}
