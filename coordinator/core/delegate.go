/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

package core

import (
	"errors"

	"github.com/edgelesssys/dextmanager/coordinator/state"
	"github.com/edgelesssys/dextmanager/coordinator/sysext"
	"go.uber.org/zap"
)

// ActionForReplacingExtension implements the sysext.Delegate interface.
// An installed extension is always replaced, versions are not compared.
func (c *Core) ActionForReplacingExtension(req sysext.Request, existing, ext sysext.Properties) sysext.ReplacementAction {
	c.log.Info("Replacing installed extension",
		zap.Stringer("request", req.ID),
		zap.Stringer("existing", existing),
		zap.Stringer("extension", ext),
	)
	c.apply(state.ActivationStarted, req, "replacing "+existing.String())
	return sysext.ActionReplace
}

// RequestNeedsUserApproval implements the sysext.Delegate interface.
func (c *Core) RequestNeedsUserApproval(req sysext.Request) {
	c.log.Info("Extension needs user approval", zap.Stringer("request", req.ID))
	c.apply(state.PromptForApproval, req, "")
}

// RequestDidFinish implements the sysext.Delegate interface.
// Every result is reported as a finished activation.
func (c *Core) RequestDidFinish(req sysext.Request, result sysext.Result) {
	c.log.Info("Extension request finished", zap.Stringer("request", req.ID), zap.Stringer("result", result))
	if result == sysext.ResultWillCompleteAfterReboot {
		// TODO: model a pending reboot state instead of reporting the extension as active.
		c.log.Warn("Activation completes after the next reboot, the extension is not active yet", zap.Stringer("request", req.ID))
	}
	c.apply(state.ActivationFinished, req, "result="+result.String())
}

// RequestDidFail implements the sysext.Delegate interface.
// The error is only logged, every failure leads to the same state.
func (c *Core) RequestDidFail(req sysext.Request, err error) {
	fields := []zap.Field{zap.Stringer("request", req.ID), zap.Error(err)}
	var sysErr *sysext.Error
	if errors.As(err, &sysErr) {
		fields = append(fields, zap.Int("code", sysErr.Code))
		if hint := sysErr.Hint(); hint != "" {
			fields = append(fields, zap.String("hint", hint))
		}
	}
	c.log.Error("Extension request failed", fields...)
	c.apply(state.ActivationFailed, req, err.Error())
}

// deactivationDelegate receives the callbacks of deactivation requests.
// Deactivation is not part of the activation lifecycle, so callbacks are only logged.
type deactivationDelegate struct {
	log *zap.Logger
}

func (d *deactivationDelegate) ActionForReplacingExtension(_ sysext.Request, existing, ext sysext.Properties) sysext.ReplacementAction {
	d.log.Warn("Unexpected replacement decision for deactivation request", zap.Stringer("existing", existing), zap.Stringer("extension", ext))
	return sysext.ActionCancel
}

func (d *deactivationDelegate) RequestNeedsUserApproval(_ sysext.Request) {
	d.log.Info("Deactivation needs user approval")
}

func (d *deactivationDelegate) RequestDidFinish(_ sysext.Request, result sysext.Result) {
	d.log.Info("Deactivation finished", zap.Stringer("result", result))
}

func (d *deactivationDelegate) RequestDidFail(_ sysext.Request, err error) {
	d.log.Error("Deactivation failed", zap.Error(err))
}
