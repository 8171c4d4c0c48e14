/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

// constants defines constant values used in the coordinator.
package constants

import (
	"path/filepath"
	"time"

	"github.com/edgelesssys/dextmanager/util"
)

const (
	// BundleID is the bundle identifier of the host application. The extension identifier is derived from it.
	BundleID = "DEXT_COORDINATOR_BUNDLE_ID"
	// DriverName is the driver name used in status messages.
	DriverName = "DEXT_COORDINATOR_DRIVER_NAME"
	// DriverNameDefault is the default driver name.
	DriverNameDefault = "SimpleAudioDriver"

	// ClientAddr is the coordinator's address for the HTTP-REST server to listen on.
	ClientAddr = "DEXT_COORDINATOR_CLIENT_ADDR"
	// ClientAddrDefault is the coordinator's default address for the HTTP-REST server to listen on.
	ClientAddrDefault = "localhost:4433"
	// PromAddr is the coordinator's address for the prometheus endpoint server to listen on.
	// The prometheus server is disabled if it is not set.
	PromAddr = "DEXT_COORDINATOR_PROMETHEUS_ADDR"

	// Activator selects the extension-management service.
	// One of "platform", "helper", "simulate" or "unsupported".
	Activator = "DEXT_COORDINATOR_ACTIVATOR"
	// ActivatorDefault is the default extension-management service.
	ActivatorDefault = "platform"
	// HelperPath is the path of the extension helper executable.
	HelperPath = "DEXT_COORDINATOR_HELPER_PATH"
	// SimulateScenario is the scenario replayed by the simulated extension-management service.
	SimulateScenario = "DEXT_COORDINATOR_SIMULATE_SCENARIO"
	// SimulateScenarioDefault is the default simulation scenario.
	SimulateScenarioDefault = "approve"
	// SimulateDelay is the delay before every simulated callback.
	SimulateDelay = "DEXT_COORDINATOR_SIMULATE_DELAY"
	// SimulateDelayDefault is the default delay before every simulated callback.
	SimulateDelayDefault = time.Second

	// DataDir is the coordinator's directory for its lock file.
	DataDir = "DEXT_COORDINATOR_DATA_DIR"
	// LockFileName is the name of the lock file in the data directory.
	LockFileName = "coordinator.lock"

	// ActivateOnStart submits an activation request right after startup.
	ActivateOnStart = "DEXT_COORDINATOR_ACTIVATE_ON_START"

	// DevMode enables more verbose logging.
	DevMode = "DEXT_COORDINATOR_DEV_MODE"
	// DebugLogging enables debug logs.
	DebugLogging = "DEXT_COORDINATOR_DEBUG_LOGGING"
	// LogFile is an optional path logs are additionally written to.
	LogFile = "DEXT_COORDINATOR_LOG_FILE"

	// ConfigFile is an optional YAML file with coordinator settings.
	// Environment variables take precedence over the file.
	ConfigFile = "DEXT_COORDINATOR_CONFIG_FILE"
)

// DataDirDefault returns the coordinator's default data directory.
func DataDirDefault() string { return filepath.Join(util.MustGetwd(), "dext-coordinator-data") }
