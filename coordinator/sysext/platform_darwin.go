//go:build darwin

/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

package sysext

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// minMajorVersion is the first macOS release shipping AudioDriverKit.
const minMajorVersion = 12

// NewPlatformManager returns the Manager for the running platform.
// On macOS, requests are submitted through the helper at helperPath.
func NewPlatformManager(helperPath string, queue *Queue, log *zap.Logger) (Manager, error) {
	version, err := unix.Sysctl("kern.osproductversion")
	if err != nil {
		return nil, fmt.Errorf("reading macOS version: %w", err)
	}
	major, err := strconv.Atoi(strings.SplitN(version, ".", 2)[0])
	if err != nil {
		return nil, fmt.Errorf("parsing macOS version %q: %w", version, err)
	}
	if major < minMajorVersion {
		return NewUnsupported(fmt.Sprintf("macOS %s does not support driver extensions, need at least %d", version, minMajorVersion)), nil
	}
	if helperPath == "" {
		return nil, fmt.Errorf("no extension helper configured")
	}

	log.Info("Using extension helper", zap.String("macOS", version), zap.String("helper", helperPath))
	return NewHelperManager(helperPath, queue, log), nil
}
