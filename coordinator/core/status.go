/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

package core

import "github.com/edgelesssys/dextmanager/coordinator/state"

// StatusText returns the status message shown to users for s.
func StatusText(s state.State, driverName string) string {
	switch s {
	case state.Unloaded:
		return driverName + " isn't loaded."
	case state.Activating:
		return "Activating " + driverName + ", please wait."
	case state.NeedsApproval:
		return "Please follow the prompt to approve " + driverName + "."
	case state.Activated:
		return driverName + " has been activated and is ready to use."
	default:
		return driverName + " has experienced an error during activation.\nPlease check the logs to find the error."
	}
}
