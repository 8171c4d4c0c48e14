/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edgelesssys/dextmanager/coordinator/constants"
	"github.com/edgelesssys/dextmanager/coordinator/events"
	"github.com/edgelesssys/dextmanager/coordinator/state"
	"github.com/edgelesssys/dextmanager/coordinator/sysext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testBundleID = "com.example.apple-samplecode.SimpleAudio"

func TestExtensionIdentifier(t *testing.T) {
	assert := assert.New(t)

	id, err := ExtensionIdentifier(testBundleID)
	assert.NoError(err)
	assert.Equal(testBundleID+".Driver", id)

	_, err = ExtensionIdentifier("")
	assert.ErrorIs(err, ErrNoBundleIdentifier)
}

func TestNewCore(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	c, err := NewCore(testBundleID, "", &stubManager{}, zaptest.NewLogger(t), nil, nil)
	require.NoError(err)
	assert.Equal(testBundleID+".Driver", c.Identifier())

	s, msg, err := c.GetState(context.Background())
	assert.NoError(err)
	assert.Equal(state.Unloaded, s)
	assert.Equal("SimpleAudioDriver isn't loaded.", msg)

	_, err = NewCore("", "", &stubManager{}, zaptest.NewLogger(t), nil, nil)
	assert.ErrorIs(err, ErrNoBundleIdentifier)
}

func TestStatusText(t *testing.T) {
	assert := assert.New(t)

	want := map[state.State]string{
		state.Unloaded:        "SimpleAudioDriver isn't loaded.",
		state.Activating:      "Activating SimpleAudioDriver, please wait.",
		state.NeedsApproval:   "Please follow the prompt to approve SimpleAudioDriver.",
		state.Activated:       "SimpleAudioDriver has been activated and is ready to use.",
		state.ActivationError: "SimpleAudioDriver has experienced an error during activation.\nPlease check the logs to find the error.",
	}

	seen := make(map[string]struct{})
	for _, s := range state.States() {
		text := StatusText(s, constants.DriverNameDefault)
		assert.Equal(want[s], text, s.String())
		assert.NotEmpty(text)
		seen[text] = struct{}{}
	}
	assert.Len(seen, len(state.States()))

	assert.Equal("Activating MyDriver, please wait.", StatusText(state.Activating, "MyDriver"))
}

func TestActivation(t *testing.T) {
	testCases := map[string]struct {
		callbacks []func(d sysext.Delegate, req sysext.Request)
		wantState state.State
	}{
		"started": {
			wantState: state.Activating,
		},
		"approval": {
			callbacks: []func(sysext.Delegate, sysext.Request){needsApproval},
			wantState: state.NeedsApproval,
		},
		"approval and finish": {
			callbacks: []func(sysext.Delegate, sysext.Request){needsApproval, finished(sysext.ResultCompleted)},
			wantState: state.Activated,
		},
		"finish pending reboot": {
			callbacks: []func(sysext.Delegate, sysext.Request){finished(sysext.ResultWillCompleteAfterReboot)},
			wantState: state.Activated,
		},
		"redundant finish": {
			callbacks: []func(sysext.Delegate, sysext.Request){finished(sysext.ResultCompleted), finished(sysext.ResultCompleted)},
			wantState: state.Activated,
		},
		"failure": {
			callbacks: []func(sysext.Delegate, sysext.Request){failed(&sysext.Error{Code: sysext.CodeCodeSignatureInvalid})},
			wantState: state.ActivationError,
		},
		"failure with plain error": {
			callbacks: []func(sysext.Delegate, sysext.Request){failed(errors.New("boom"))},
			wantState: state.ActivationError,
		},
		"failure after activation": {
			callbacks: []func(sysext.Delegate, sysext.Request){finished(sysext.ResultCompleted), failed(errors.New("late"))},
			wantState: state.ActivationError,
		},
		"approval after activation": {
			callbacks: []func(sysext.Delegate, sysext.Request){finished(sysext.ResultCompleted), needsApproval},
			wantState: state.ActivationError,
		},
		"error is sticky": {
			callbacks: []func(sysext.Delegate, sysext.Request){failed(errors.New("boom")), needsApproval, finished(sysext.ResultCompleted)},
			wantState: state.ActivationError,
		},
		"replacement": {
			callbacks: []func(sysext.Delegate, sysext.Request){replace, finished(sysext.ResultCompleted)},
			wantState: state.Activated,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			manager := &stubManager{}
			c, err := NewCore(testBundleID, "", manager, zaptest.NewLogger(t), nil, nil)
			require.NoError(err)

			require.NoError(c.RequestActivation(context.Background()))
			require.Len(manager.requests, 1)
			req := manager.requests[0]
			assert.Equal(sysext.Activate, req.Kind)
			assert.Equal(c.Identifier(), req.Identifier)

			for _, cb := range tc.callbacks {
				cb(manager.delegates[0], req)
			}
			assert.Equal(tc.wantState, c.Status().State)
			assert.Equal(StatusText(tc.wantState, constants.DriverNameDefault), c.StatusText())
		})
	}
}

func TestReplacementDecision(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	manager := &stubManager{}
	c, err := NewCore(testBundleID, "", manager, zaptest.NewLogger(t), nil, nil)
	require.NoError(err)
	require.NoError(c.RequestActivation(context.Background()))

	// an already activated extension is replaced
	manager.delegates[0].RequestDidFinish(manager.requests[0], sysext.ResultCompleted)
	require.Equal(state.Activated, c.Status().State)

	action := manager.delegates[0].ActionForReplacingExtension(
		manager.requests[0],
		sysext.Properties{BundleIdentifier: c.Identifier(), BundleShortVersion: "2.0"},
		sysext.Properties{BundleIdentifier: c.Identifier(), BundleShortVersion: "1.0"},
	)
	assert.Equal(sysext.ActionReplace, action)
	assert.Equal(state.Activating, c.Status().State)
}

func TestRecoveryThroughNewActivation(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	manager := &stubManager{}
	c, err := NewCore(testBundleID, "", manager, zaptest.NewLogger(t), nil, nil)
	require.NoError(err)

	require.NoError(c.RequestActivation(context.Background()))
	manager.delegates[0].RequestDidFail(manager.requests[0], &sysext.Error{Code: sysext.CodeExtensionNotFound})
	assert.Equal(state.ActivationError, c.Status().State)

	require.NoError(c.RequestActivation(context.Background()))
	assert.Equal(state.Activating, c.Status().State)
	require.Len(manager.requests, 2)
	assert.NotEqual(manager.requests[0].ID, manager.requests[1].ID)
}

func TestSubmissionFailure(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	submitErr := errors.New("service unavailable")
	eventlog := events.NewLog()
	c, err := NewCore(testBundleID, "", &stubManager{err: submitErr}, zaptest.NewLogger(t), nil, eventlog)
	require.NoError(err)

	err = c.RequestActivation(context.Background())
	assert.ErrorIs(err, submitErr)
	assert.Equal(state.ActivationError, c.Status().State)

	var transitions []string
	for _, ev := range eventlog.Events() {
		if ev.Transition != nil {
			transitions = append(transitions, ev.Transition.To)
		}
	}
	assert.Equal([]string{"Activating", "ActivationError"}, transitions)
}

func TestDeactivation(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	manager := &stubManager{}
	c, err := NewCore(testBundleID, "", manager, zaptest.NewLogger(t), nil, nil)
	require.NoError(err)

	require.NoError(c.RequestActivation(context.Background()))
	manager.delegates[0].RequestDidFinish(manager.requests[0], sysext.ResultCompleted)
	require.Equal(state.Activated, c.Status().State)

	require.NoError(c.RequestDeactivation(context.Background()))
	assert.Equal(state.Activated, c.Status().State)
	require.Len(manager.requests, 2)
	assert.Equal(sysext.Deactivate, manager.requests[1].Kind)

	// deactivation callbacks are not fed into the activation state
	d := manager.delegates[1]
	assert.Equal(sysext.ActionCancel, d.ActionForReplacingExtension(manager.requests[1], sysext.Properties{}, sysext.Properties{}))
	d.RequestNeedsUserApproval(manager.requests[1])
	d.RequestDidFail(manager.requests[1], errors.New("failed"))
	d.RequestDidFinish(manager.requests[1], sysext.ResultCompleted)
	assert.Equal(state.Activated, c.Status().State)

	manager.err = errors.New("unavailable")
	assert.Error(c.RequestDeactivation(context.Background()))
	assert.Equal(state.Activated, c.Status().State)
}

func TestSubscribe(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	manager := &stubManager{}
	c, err := NewCore(testBundleID, "", manager, zaptest.NewLogger(t), nil, nil)
	require.NoError(err)

	updates, cancel := c.Subscribe()
	assert.Equal(state.Unloaded, receive(t, updates).State)

	require.NoError(c.RequestActivation(context.Background()))
	got := receive(t, updates)
	assert.Equal(state.Activating, got.State)
	assert.Equal(StatusText(state.Activating, constants.DriverNameDefault), got.Message)

	// a subscriber that does not keep up ends on the latest status
	manager.delegates[0].RequestNeedsUserApproval(manager.requests[0])
	manager.delegates[0].RequestDidFinish(manager.requests[0], sysext.ResultCompleted)
	assert.Equal(state.Activated, receive(t, updates).State)

	cancel()
	cancel()
	_, ok := <-updates
	assert.False(ok)

	// publishing without subscribers must not block
	manager.delegates[0].RequestDidFail(manager.requests[0], errors.New("late"))
	assert.Equal(state.ActivationError, c.Status().State)
}

func TestActivationWithSimulator(t *testing.T) {
	testCases := map[string]struct {
		scenario  string
		wantState state.State
		wantSeen  []state.State
	}{
		"approve": {
			scenario:  "approve",
			wantState: state.Activated,
		},
		"replace": {
			scenario:  "replace",
			wantState: state.Activated,
		},
		"fail": {
			scenario:  "fail",
			wantState: state.ActivationError,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			ctx, cancel := context.WithCancel(context.Background())
			queue := sysext.NewQueue()
			go queue.Run(ctx)
			defer func() {
				cancel()
				<-queue.Done()
			}()

			steps, err := sysext.ParseScenario(tc.scenario, 0)
			require.NoError(err)
			sim := sysext.NewSimulator(steps, queue, zaptest.NewLogger(t))
			defer sim.Wait()

			c, err := NewCore(testBundleID, "", sim, zaptest.NewLogger(t), nil, nil)
			require.NoError(err)
			updates, unsubscribe := c.Subscribe()
			defer unsubscribe()

			require.NoError(c.RequestActivation(ctx))
			for status := range updates {
				if status.State == tc.wantState {
					break
				}
			}
			assert.Equal(tc.wantState, c.Status().State)
		})
	}
}

func receive(t *testing.T, ch <-chan Status) Status {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for status update")
		return Status{}
	}
}

func needsApproval(d sysext.Delegate, req sysext.Request) {
	d.RequestNeedsUserApproval(req)
}

func replace(d sysext.Delegate, req sysext.Request) {
	d.ActionForReplacingExtension(req, sysext.Properties{}, sysext.Properties{})
}

func finished(result sysext.Result) func(sysext.Delegate, sysext.Request) {
	return func(d sysext.Delegate, req sysext.Request) {
		d.RequestDidFinish(req, result)
	}
}

func failed(err error) func(sysext.Delegate, sysext.Request) {
	return func(d sysext.Delegate, req sysext.Request) {
		d.RequestDidFail(req, err)
	}
}

// stubManager records submitted requests and their delegates.
type stubManager struct {
	requests  []sysext.Request
	delegates []sysext.Delegate
	err       error
}

func (s *stubManager) SubmitRequest(_ context.Context, req sysext.Request, delegate sysext.Delegate) error {
	if s.err != nil {
		return s.err
	}
	s.requests = append(s.requests, req)
	s.delegates = append(s.delegates, delegate)
	return nil
}
