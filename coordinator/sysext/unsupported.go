/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

package sysext

import (
	"context"
	"fmt"
)

// Unsupported is a Manager for platforms without an extension-management service.
type Unsupported struct {
	reason string
}

// NewUnsupported returns a new Unsupported manager.
func NewUnsupported(reason string) *Unsupported {
	return &Unsupported{reason: reason}
}

// SubmitRequest always fails with [ErrUnsupported].
func (u *Unsupported) SubmitRequest(_ context.Context, _ Request, _ Delegate) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, u.reason)
}
