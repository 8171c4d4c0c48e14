/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

package sysext

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// Callback is the kind of a delegate callback.
type Callback int

const (
	// CallbackReplace asks the delegate for a replacement decision.
	CallbackReplace Callback = iota
	// CallbackNeedsApproval reports that user approval is required.
	CallbackNeedsApproval
	// CallbackFinished reports completion.
	CallbackFinished
	// CallbackFailed reports a failure.
	CallbackFailed
)

// Step is a single callback replayed by the [Simulator].
type Step struct {
	Callback Callback
	// Delay is waited before the callback is delivered.
	Delay time.Duration
	// Result is reported by CallbackFinished.
	Result Result
	// Err is reported by CallbackFailed.
	Err *Error
	// Existing and Extension are reported by CallbackReplace.
	Existing  Properties
	Extension Properties
}

// scenarios are the named step sequences understood by [ParseScenario].
var scenarios = map[string][]Step{
	"immediate": {
		{Callback: CallbackFinished, Result: ResultCompleted},
	},
	"approve": {
		{Callback: CallbackNeedsApproval},
		{Callback: CallbackFinished, Result: ResultCompleted},
	},
	"replace": {
		{
			Callback:  CallbackReplace,
			Existing:  Properties{BundleShortVersion: "1.0", BundleVersion: "1"},
			Extension: Properties{BundleShortVersion: "1.1", BundleVersion: "2"},
		},
		{Callback: CallbackFinished, Result: ResultCompleted},
	},
	"reboot": {
		{Callback: CallbackFinished, Result: ResultWillCompleteAfterReboot},
	},
	"fail": {
		{Callback: CallbackFailed, Err: &Error{Code: CodeCodeSignatureInvalid, Message: "code signature invalid"}},
	},
	"approve-fail": {
		{Callback: CallbackNeedsApproval},
		{Callback: CallbackFailed, Err: &Error{Code: CodeAuthorizationRequired, Message: "authorization required"}},
	},
}

// Scenarios returns the names of all known simulation scenarios.
func Scenarios() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseScenario returns the steps of the named scenario, each delayed by delay.
func ParseScenario(name string, delay time.Duration) ([]Step, error) {
	steps, ok := scenarios[name]
	if !ok {
		return nil, fmt.Errorf("unknown simulation scenario %q, expected one of %v", name, Scenarios())
	}
	out := make([]Step, len(steps))
	copy(out, steps)
	for i := range out {
		out[i].Delay = delay
	}
	return out, nil
}

// Simulator is a Manager replaying a fixed sequence of callbacks for every activation request.
// Deactivation requests finish immediately.
type Simulator struct {
	steps []Step
	queue *Queue
	clock clock.Clock
	wg    sync.WaitGroup
	log   *zap.Logger
}

// NewSimulator creates a new Simulator delivering callbacks on queue.
func NewSimulator(steps []Step, queue *Queue, log *zap.Logger) *Simulator {
	return &Simulator{
		steps: steps,
		queue: queue,
		clock: clock.RealClock{},
		log:   log,
	}
}

// SubmitRequest replays the simulator's steps for req.
func (s *Simulator) SubmitRequest(ctx context.Context, req Request, delegate Delegate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	steps := s.steps
	if req.Kind == Deactivate {
		steps = []Step{{Callback: CallbackFinished, Result: ResultCompleted}}
	}

	s.log.Info("Simulating extension request", zap.Stringer("request", req.ID), zap.Stringer("kind", req.Kind), zap.String("identifier", req.Identifier))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.replay(req, steps, delegate)
	}()
	return nil
}

// Wait blocks until all submitted requests finished.
func (s *Simulator) Wait() {
	s.wg.Wait()
}

func (s *Simulator) replay(req Request, steps []Step, delegate Delegate) {
	for _, step := range steps {
		if step.Delay > 0 {
			select {
			case <-s.clock.After(step.Delay):
			case <-s.queue.Done():
				return
			}
		}

		switch step.Callback {
		case CallbackReplace:
			existing, ext := step.Existing, step.Extension
			if existing.BundleIdentifier == "" {
				existing.BundleIdentifier = req.Identifier
			}
			if ext.BundleIdentifier == "" {
				ext.BundleIdentifier = req.Identifier
			}
			action, ok := askReplacement(s.queue, delegate, req, existing, ext)
			if !ok {
				return
			}
			if action != ActionReplace {
				canceled := &Error{Code: CodeRequestCanceled, Message: "replacement canceled"}
				s.queue.Dispatch(func() { delegate.RequestDidFail(req, canceled) })
				return
			}
		case CallbackNeedsApproval:
			s.queue.Dispatch(func() { delegate.RequestNeedsUserApproval(req) })
		case CallbackFinished:
			result := step.Result
			s.queue.Dispatch(func() { delegate.RequestDidFinish(req, result) })
			return
		case CallbackFailed:
			var err error = &Error{Code: CodeUnknown}
			if step.Err != nil {
				err = step.Err
			}
			s.queue.Dispatch(func() { delegate.RequestDidFail(req, err) })
			return
		}
	}
}
