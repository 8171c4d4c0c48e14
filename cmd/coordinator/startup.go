/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edgelesssys/dextmanager/coordinator/constants"
	"github.com/edgelesssys/dextmanager/coordinator/core"
	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// errDataDirLocked is returned if another coordinator holds the lock of the data directory.
var errDataDirLocked = errors.New("another coordinator is running for this data directory")

// lockDataDir creates dir if needed and takes the coordinator's lock in it.
// Only one coordinator may own the activation of an extension for a data directory.
func lockDataDir(dir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	lock := flock.New(filepath.Join(dir, constants.LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking data directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", errDataDirLocked, dir)
	}
	return lock, nil
}

// activateOnStart submits an activation request right after startup.
// A failed submission is logged. The Core reports it as ActivationError.
func activateOnStart(ctx context.Context, co *core.Core, log *zap.Logger) {
	log.Info("Requesting activation on start")
	if err := co.RequestActivation(ctx); err != nil {
		log.Error("Activation on start failed", zap.Error(err))
	}
}
