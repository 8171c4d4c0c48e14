//go:build !darwin

/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

package sysext

import (
	"runtime"

	"go.uber.org/zap"
)

// NewPlatformManager returns the Manager for the running platform.
// Driver extensions are only available on macOS, every request submitted on this platform fails.
func NewPlatformManager(_ string, _ *Queue, log *zap.Logger) (Manager, error) {
	log.Warn("Driver extensions are only available on macOS", zap.String("os", runtime.GOOS))
	return NewUnsupported("driver extensions are only available on macOS, running on " + runtime.GOOS), nil
}
