/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

// Package core implements the activation coordinator.
//
// The Core owns the activation state of a single driver extension. It submits
// requests to the extension-management service and applies the service's
// callbacks to the state using [state.Transition].
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/edgelesssys/dextmanager/coordinator/constants"
	"github.com/edgelesssys/dextmanager/coordinator/events"
	"github.com/edgelesssys/dextmanager/coordinator/state"
	"github.com/edgelesssys/dextmanager/coordinator/sysext"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// ExtensionSuffix is appended to the host's bundle identifier to form the extension identifier.
const ExtensionSuffix = ".Driver"

// ErrNoBundleIdentifier is returned if the Core is created without a bundle identifier.
var ErrNoBundleIdentifier = errors.New("no bundle identifier")

// ExtensionIdentifier returns the identifier of the driver extension bundled with the host bundleID.
func ExtensionIdentifier(bundleID string) (string, error) {
	if bundleID == "" {
		return "", ErrNoBundleIdentifier
	}
	return bundleID + ExtensionSuffix, nil
}

// Status is the activation state together with its human readable message.
type Status struct {
	State   state.State
	Message string
}

// Core implements the core logic of the activation coordinator.
type Core struct {
	mux   sync.Mutex
	state state.State

	identifier string
	driverName string
	manager    sysext.Manager

	subscribers map[int]chan Status
	nextSubID   int

	eventlog *events.Log
	metrics  *CoreMetrics
	log      *zap.Logger
}

// NewCore creates and initializes a new Core object.
// The Core starts in the Unloaded state.
func NewCore(bundleID, driverName string, manager sysext.Manager, zapLogger *zap.Logger, promFactory *promauto.Factory, eventlog *events.Log) (*Core, error) {
	identifier, err := ExtensionIdentifier(bundleID)
	if err != nil {
		return nil, err
	}
	if driverName == "" {
		driverName = constants.DriverNameDefault
	}
	if eventlog == nil {
		eventlog = events.NewLog()
	}

	c := &Core{
		state:       state.Unloaded,
		identifier:  identifier,
		driverName:  driverName,
		manager:     manager,
		subscribers: make(map[int]chan Status),
		eventlog:    eventlog,
		metrics:     NewCoreMetrics(promFactory, "dext", ""),
		log:         zapLogger,
	}
	c.metrics.setState(state.Unloaded)
	zapLogger.Info("Core initialized", zap.String("extension", identifier))
	return c, nil
}

// Identifier returns the identifier of the managed driver extension.
func (c *Core) Identifier() string {
	return c.identifier
}

// RequestActivation submits an activation request for the driver extension.
//
// The state moves to Activating right away. Further progress is reported by the
// extension-management service through the Core's delegate callbacks.
// If the request cannot be submitted, the state moves to ActivationError and the error is returned.
func (c *Core) RequestActivation(ctx context.Context) error {
	req := sysext.NewRequest(c.identifier, sysext.Activate)
	c.log.Info("Requesting activation", zap.Stringer("request", req.ID), zap.String("extension", c.identifier))

	c.apply(state.ActivationStarted, req, "")
	err := c.manager.SubmitRequest(ctx, req, c)
	c.recordRequest(req, err)
	if err != nil {
		c.log.Error("Submitting activation request failed", zap.Stringer("request", req.ID), zap.Error(err))
		c.apply(state.ActivationFailed, req, err.Error())
		return fmt.Errorf("submitting activation request: %w", err)
	}
	return nil
}

// RequestDeactivation submits a deactivation request for the driver extension.
//
// Deactivation is not tracked by the activation state. The request's callbacks are only logged.
func (c *Core) RequestDeactivation(ctx context.Context) error {
	req := sysext.NewRequest(c.identifier, sysext.Deactivate)
	c.log.Info("Requesting deactivation", zap.Stringer("request", req.ID), zap.String("extension", c.identifier))

	err := c.manager.SubmitRequest(ctx, req, &deactivationDelegate{log: c.log.With(zap.Stringer("request", req.ID))})
	c.recordRequest(req, err)
	if err != nil {
		c.log.Error("Submitting deactivation request failed", zap.Stringer("request", req.ID), zap.Error(err))
		return fmt.Errorf("submitting deactivation request: %w", err)
	}
	return nil
}

// GetState returns the current activation state and its status message.
func (c *Core) GetState(_ context.Context) (state.State, string, error) {
	status := c.Status()
	return status.State, status.Message, nil
}

// Status returns the current activation state and its status message.
func (c *Core) Status() Status {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.statusLocked()
}

// StatusText returns the human readable message for the current activation state.
func (c *Core) StatusText() string {
	return c.Status().Message
}

// Subscribe returns a channel that receives the current status and every subsequent status change.
//
// A subscriber that falls behind only loses superseded values; the last value
// received is always the current status. The returned function cancels the
// subscription and closes the channel.
func (c *Core) Subscribe() (<-chan Status, func()) {
	c.mux.Lock()
	defer c.mux.Unlock()

	id := c.nextSubID
	c.nextSubID++
	ch := make(chan Status, 1)
	ch <- c.statusLocked()
	c.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mux.Lock()
			defer c.mux.Unlock()
			delete(c.subscribers, id)
			close(ch)
		})
	}
}

// apply applies ev to the activation state and publishes the new status.
func (c *Core) apply(ev state.Event, req sysext.Request, detail string) {
	c.mux.Lock()
	defer c.mux.Unlock()

	from := c.state
	to := state.Transition(from, ev)
	c.state = to

	c.log.Info("Applied activation event",
		zap.Stringer("request", req.ID),
		zap.Stringer("event", ev),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	c.metrics.observeEvent(ev, to)
	c.eventlog.Transition(events.TransitionEvent{
		RequestID: req.ID.String(),
		Event:     ev.String(),
		From:      from.String(),
		To:        to.String(),
		Detail:    detail,
	})
	c.publishLocked(c.statusLocked())
}

func (c *Core) recordRequest(req sysext.Request, err error) {
	ev := events.RequestEvent{
		RequestID:  req.ID.String(),
		Kind:       req.Kind.String(),
		Identifier: req.Identifier,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	c.eventlog.Request(ev)
	c.metrics.observeRequest(req.Kind, err)
}

func (c *Core) statusLocked() Status {
	return Status{State: c.state, Message: StatusText(c.state, c.driverName)}
}

// publishLocked hands status to every subscriber without blocking.
// A stale value still waiting in a subscriber's buffer is replaced.
func (c *Core) publishLocked(status Status) {
	for _, ch := range c.subscribers {
		select {
		case ch <- status:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		ch <- status
	}
}
