/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

// Package state defines the lifecycle of a driver extension activation request.
//
// The lifecycle is a pure transition function over a closed set of states and
// events. It has no side effects and no failure path: every (State, Event) pair
// maps to exactly one next State.
package state

// State is the sequence of states a driver extension activation may be in.
type State int

const (
	// Unloaded is the initial state. No activation has been requested yet.
	Unloaded State = iota
	// Activating means an activation request was submitted and is in progress.
	Activating
	// NeedsApproval means the OS is waiting for the user to approve the extension.
	NeedsApproval
	// Activated means the extension was activated and is ready to use.
	Activated
	// ActivationError means the activation failed or an unexpected event was observed.
	// Only a new activation request leaves this state.
	ActivationError
	// Max is the number of defined states. It is not a valid state.
	Max
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case Unloaded:
		return "Unloaded"
	case Activating:
		return "Activating"
	case NeedsApproval:
		return "NeedsApproval"
	case Activated:
		return "Activated"
	case ActivationError:
		return "ActivationError"
	default:
		return "Unknown"
	}
}

// Event is an activation event reported by the extension-management service.
type Event int

const (
	// ActivationStarted is applied whenever a fresh activation request is issued.
	ActivationStarted Event = iota
	// PromptForApproval is applied when the OS asks the user to approve the extension.
	PromptForApproval
	// ActivationFinished is applied when the service reports completion.
	ActivationFinished
	// ActivationFailed is applied when the service reports an error.
	ActivationFailed
)

// String returns the name of the event.
func (e Event) String() string {
	switch e {
	case ActivationStarted:
		return "ActivationStarted"
	case PromptForApproval:
		return "PromptForApproval"
	case ActivationFinished:
		return "ActivationFinished"
	case ActivationFailed:
		return "ActivationFailed"
	default:
		return "Unknown"
	}
}

// Events returns all defined events.
func Events() []Event {
	return []Event{ActivationStarted, PromptForApproval, ActivationFinished, ActivationFailed}
}

// States returns all defined states.
func States() []State {
	return []State{Unloaded, Activating, NeedsApproval, Activated, ActivationError}
}

// Transition returns the state that follows s when e is applied.
//
// ActivationStarted resets every state to Activating.
// ActivationError is sticky for every other event.
// Approval prompts and failures after a successful activation are treated as errors.
func Transition(s State, e Event) State {
	// a new request always restarts the lifecycle
	if e == ActivationStarted {
		return Activating
	}

	switch s {
	case Unloaded:
		return ActivationError

	case Activating, NeedsApproval:
		switch e {
		case PromptForApproval:
			return NeedsApproval
		case ActivationFinished:
			return Activated
		default:
			return ActivationError
		}

	case Activated:
		if e == ActivationFinished {
			return Activated
		}
		return ActivationError

	default:
		// ActivationError and anything outside the enum
		return ActivationError
	}
}
