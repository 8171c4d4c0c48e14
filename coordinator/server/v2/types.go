/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

package v2

import "github.com/edgelesssys/dextmanager/coordinator/state"

// StatusResponse is the response to a status request.
// The same structure is sent for every update of a status stream.
type StatusResponse struct {
	// Code that matches the internal code of the current activation state.
	// One of:
	//  0: Unloaded
	//  1: Activating
	//  2: NeedsApproval
	//  3: Activated
	//  4: ActivationError
	Code int `json:"code"`
	// State is the name of the current activation state.
	// example: Activated
	State string `json:"state"`
	// Message is a human readable message describing the current activation state.
	// example: SimpleAudioDriver has been activated and is ready to use.
	Message string `json:"message"`
}

func newStatusResponse(s state.State, message string) StatusResponse {
	return StatusResponse{
		Code:    int(s),
		State:   s.String(),
		Message: message,
	}
}
