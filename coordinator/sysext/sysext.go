/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

// Package sysext provides access to the OS extension-management service.
//
// Requests are submitted through a [Manager]. The service answers asynchronously
// by invoking the request's [Delegate] on a serial [Queue].
package sysext

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrUnsupported is returned when the extension-management service is not available on this platform.
var ErrUnsupported = errors.New("extension-management service not supported")

// Kind is the kind of a request.
type Kind int

const (
	// Activate requests installation and activation of an extension.
	Activate Kind = iota
	// Deactivate requests deactivation and removal of an extension.
	Deactivate
)

func (k Kind) String() string {
	switch k {
	case Activate:
		return "activate"
	case Deactivate:
		return "deactivate"
	default:
		return "unknown"
	}
}

// Request is a one-shot request tracked by the extension-management service until it finishes or fails.
type Request struct {
	ID         uuid.UUID
	Identifier string
	Kind       Kind
}

// NewRequest creates a new request for the extension with the given identifier.
func NewRequest(identifier string, kind Kind) Request {
	return Request{
		ID:         uuid.New(),
		Identifier: identifier,
		Kind:       kind,
	}
}

// Properties describes an installed or bundled extension.
type Properties struct {
	BundleIdentifier   string `json:"bundleIdentifier"`
	BundleVersion      string `json:"bundleVersion"`
	BundleShortVersion string `json:"bundleShortVersion"`
}

func (p Properties) String() string {
	return fmt.Sprintf("%s (%s/%s)", p.BundleIdentifier, p.BundleShortVersion, p.BundleVersion)
}

// ReplacementAction is the answer to a replacement decision.
type ReplacementAction int

const (
	// ActionCancel keeps the installed extension and cancels the request.
	ActionCancel ReplacementAction = iota
	// ActionReplace replaces the installed extension with the new one.
	ActionReplace
)

func (a ReplacementAction) String() string {
	if a == ActionReplace {
		return "replace"
	}
	return "cancel"
}

// Result is the result a finished request reports.
type Result int

const (
	// ResultCompleted means the request completed.
	ResultCompleted Result = iota
	// ResultWillCompleteAfterReboot means the request completes once the system reboots.
	ResultWillCompleteAfterReboot
)

func (r Result) String() string {
	switch r {
	case ResultCompleted:
		return "completed"
	case ResultWillCompleteAfterReboot:
		return "willCompleteAfterReboot"
	default:
		return "unknown"
	}
}

// ParseResult parses the string representation of a [Result].
func ParseResult(s string) (Result, error) {
	switch s {
	case "completed", "":
		return ResultCompleted, nil
	case "willCompleteAfterReboot":
		return ResultWillCompleteAfterReboot, nil
	default:
		return 0, fmt.Errorf("unknown request result %q", s)
	}
}

// Error codes reported by the extension-management service.
const (
	CodeUnknown                         = 1
	CodeMissingEntitlement              = 2
	CodeUnsupportedParentBundleLocation = 3
	CodeExtensionNotFound               = 4
	CodeExtensionMissingIdentifier      = 5
	CodeDuplicateExtensionIdentifier    = 6
	CodeUnknownExtensionCategory        = 7
	CodeCodeSignatureInvalid            = 8
	CodeValidationFailed                = 9
	CodeForbiddenBySystemPolicy         = 10
	CodeRequestCanceled                 = 11
	CodeRequestSuperseded               = 12
	CodeAuthorizationRequired           = 13
)

// Error is an error reported by the extension-management service.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("extension request failed with code %d", e.Code)
	}
	return fmt.Sprintf("extension request failed with code %d: %s", e.Code, e.Message)
}

// Hint returns advice for well-known error codes, or an empty string.
func (e *Error) Hint() string {
	switch e.Code {
	case CodeExtensionNotFound:
		return "the extension identifier used by the coordinator must match the bundle identifier of the driver extension"
	case CodeCodeSignatureInvalid:
		return "the driver extension is not signed correctly; during development sign to run locally"
	case CodeMissingEntitlement:
		return "the host application is missing the system extension install entitlement"
	case CodeUnsupportedParentBundleLocation:
		return "the host application must be located in /Applications"
	case CodeAuthorizationRequired:
		return "the request must be approved by an administrator"
	default:
		return ""
	}
}

// Delegate receives the callbacks of a request.
// Callbacks are invoked one at a time on the manager's delivery queue.
type Delegate interface {
	// ActionForReplacingExtension is called when the request would replace an installed extension.
	ActionForReplacingExtension(req Request, existing, ext Properties) ReplacementAction
	// RequestNeedsUserApproval is called when the user has to approve the extension.
	RequestNeedsUserApproval(req Request)
	// RequestDidFinish is called when the request completed.
	RequestDidFinish(req Request, result Result)
	// RequestDidFail is called when the request failed.
	RequestDidFail(req Request, err error)
}

// Manager submits requests to the extension-management service.
type Manager interface {
	// SubmitRequest submits req. The call returns once the request was handed to the service,
	// all further progress is reported to delegate.
	SubmitRequest(ctx context.Context, req Request, delegate Delegate) error
}
