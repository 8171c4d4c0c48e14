/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

package sysext

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/edgelesssys/dextmanager/internal/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Message types written by the extension helper.
const (
	messageReplace       = "replace"
	messageNeedsApproval = "needsApproval"
	messageFinished      = "finished"
	messageFailed        = "failed"
)

// helperMessage is a single line the extension helper writes to its stdout.
type helperMessage struct {
	Type      string      `json:"type"`
	Existing  *Properties `json:"existing,omitempty"`
	Extension *Properties `json:"extension,omitempty"`
	Result    string      `json:"result,omitempty"`
	Code      int         `json:"code,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// helperReply is written to the helper's stdin to answer a replacement decision.
type helperReply struct {
	Action string `json:"action"`
}

// HelperManager submits requests through a platform helper executable.
//
// The helper is started as `<path> activate|deactivate <identifier>`.
// It reports the request's progress as newline-delimited JSON on stdout
// and reads replacement decisions from stdin.
type HelperManager struct {
	path  string
	queue *Queue
	start startFunc
	wg    sync.WaitGroup
	log   *zap.Logger
}

// NewHelperManager creates a new HelperManager delivering callbacks on queue.
func NewHelperManager(path string, queue *Queue, log *zap.Logger) *HelperManager {
	return &HelperManager{
		path:  path,
		queue: queue,
		start: execStarter(log),
		log:   log,
	}
}

// SubmitRequest starts the helper for req.
// The helper runs to completion independent of ctx.
func (m *HelperManager) SubmitRequest(ctx context.Context, req Request, delegate Delegate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	proc, err := m.start(context.WithoutCancel(ctx), m.path, req.Kind.String(), req.Identifier)
	if err != nil {
		return fmt.Errorf("starting extension helper %q: %w", m.path, err)
	}

	m.log.Info("Submitted extension request", zap.Stringer("request", req.ID), zap.Stringer("kind", req.Kind), zap.String("identifier", req.Identifier))
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.serve(req, proc, delegate)
	}()
	return nil
}

// Wait blocks until all submitted requests finished.
func (m *HelperManager) Wait() {
	m.wg.Wait()
}

func (m *HelperManager) serve(req Request, proc helperProcess, delegate Delegate) {
	log := m.log.With(zap.Stringer("request", req.ID))

	done := false
	scanner := bufio.NewScanner(proc.Stdout())
	for !done && scanner.Scan() {
		var msg helperMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			log.Warn("Ignoring malformed helper message", zap.ByteString("message", scanner.Bytes()), zap.Error(err))
			continue
		}
		done = m.handle(req, msg, proc.Stdin(), delegate, log)
	}
	if err := scanner.Err(); err != nil {
		log.Warn("Reading helper output failed", zap.Error(err))
	}

	if err := proc.Stdin().Close(); err != nil {
		log.Debug("Closing helper input failed", zap.Error(err))
	}
	_, _ = io.Copy(io.Discard, proc.Stdout())
	waitErr := proc.Wait()
	if done {
		if waitErr != nil {
			log.Debug("Extension helper exited with error after reporting a result", zap.Error(waitErr))
		}
		return
	}

	failure := &Error{Code: CodeUnknown, Message: "extension helper exited without reporting a result"}
	if waitErr != nil {
		failure.Message = fmt.Sprintf("%s: %s", failure.Message, waitErr)
	}
	m.queue.Dispatch(func() { delegate.RequestDidFail(req, failure) })
}

// handle delivers a single helper message and reports whether the request reached a final result.
func (m *HelperManager) handle(req Request, msg helperMessage, stdin io.Writer, delegate Delegate, log *zap.Logger) bool {
	switch msg.Type {
	case messageReplace:
		var existing, ext Properties
		if msg.Existing != nil {
			existing = *msg.Existing
		}
		if msg.Extension != nil {
			ext = *msg.Extension
		}
		action, ok := askReplacement(m.queue, delegate, req, existing, ext)
		if !ok {
			log.Warn("Delivery queue stopped before replacement decision")
			return true
		}
		reply, err := json.Marshal(helperReply{Action: action.String()})
		if err != nil {
			log.Error("Encoding replacement decision failed", zap.Error(err))
			return false
		}
		if _, err := stdin.Write(append(reply, '\n')); err != nil {
			log.Error("Sending replacement decision to helper failed", zap.Error(err))
		}
		return false

	case messageNeedsApproval:
		m.queue.Dispatch(func() { delegate.RequestNeedsUserApproval(req) })
		return false

	case messageFinished:
		result, err := ParseResult(msg.Result)
		if err != nil {
			log.Warn("Unknown result reported by helper, assuming completion", zap.Error(err))
		}
		m.queue.Dispatch(func() { delegate.RequestDidFinish(req, result) })
		return true

	case messageFailed:
		code := msg.Code
		if code == 0 {
			code = CodeUnknown
		}
		failure := &Error{Code: code, Message: msg.Message}
		m.queue.Dispatch(func() { delegate.RequestDidFail(req, failure) })
		return true

	default:
		log.Warn("Ignoring unknown helper message", zap.String("type", msg.Type))
		return false
	}
}

type helperProcess interface {
	Stdout() io.Reader
	Stdin() io.WriteCloser
	Wait() error
}

type startFunc func(ctx context.Context, path string, args ...string) (helperProcess, error)

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }

func (p *execProcess) Wait() error { return p.cmd.Wait() }

// execStarter starts the helper as a child process. Its stderr is forwarded to log.
func execStarter(log *zap.Logger) startFunc {
	return func(ctx context.Context, path string, args ...string) (helperProcess, error) {
		cmd := exec.CommandContext(ctx, path, args...)
		cmd.Stderr = logging.NewWriter(log.Named("helper"), zapcore.InfoLevel)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
	}
}
