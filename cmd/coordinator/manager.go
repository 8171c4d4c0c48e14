/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

package main

import (
	"fmt"
	"time"

	"github.com/edgelesssys/dextmanager/coordinator/config"
	"github.com/edgelesssys/dextmanager/coordinator/sysext"
	"go.uber.org/zap"
)

// managerWaitTimeout bounds how long shutdown waits for outstanding requests.
const managerWaitTimeout = 5 * time.Second

// newManager creates the extension-management service selected by cfg.
// Callbacks of the returned Manager are delivered on queue.
func newManager(cfg *config.Config, queue *sysext.Queue, log *zap.Logger) (sysext.Manager, error) {
	log = log.Named("sysext")
	switch cfg.Activator {
	case config.ActivatorPlatform:
		log.Info("Setting up platform extension-management service")
		return sysext.NewPlatformManager(cfg.HelperPath, queue, log)
	case config.ActivatorHelper:
		log.Info("Setting up extension helper", zap.String("path", cfg.HelperPath))
		return sysext.NewHelperManager(cfg.HelperPath, queue, log), nil
	case config.ActivatorSimulate:
		log.Info("Setting up simulated extension-management service",
			zap.String("scenario", cfg.SimulateScenario),
			zap.Duration("delay", cfg.SimulateDelay),
		)
		steps, err := sysext.ParseScenario(cfg.SimulateScenario, cfg.SimulateDelay)
		if err != nil {
			return nil, err
		}
		return sysext.NewSimulator(steps, queue, log), nil
	case config.ActivatorUnsupported:
		log.Info("Extension management disabled")
		return sysext.NewUnsupported("extension management is disabled by configuration"), nil
	default:
		return nil, fmt.Errorf("unknown activator %q", cfg.Activator)
	}
}

// waitForManager waits until the requests submitted to manager finished, or the timeout expired.
func waitForManager(manager sysext.Manager, timeout time.Duration, log *zap.Logger) {
	w, ok := manager.(interface{ Wait() })
	if !ok {
		return
	}

	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn("Extension requests still outstanding at shutdown", zap.Duration("timeout", timeout))
	}
}
