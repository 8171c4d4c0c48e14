// Copyright (c) Edgeless Systems GmbH.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cmd

import (
	"errors"
	"fmt"

	"github.com/edgelesssys/dextmanager/cli/internal/rest"
	"github.com/spf13/cobra"
)

// NewWatchCmd returns the watch command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <IP:PORT>",
		Short: "Prints every change of the activation status",
		Long: `Prints every change of the activation status of the driver extension.

The first line shows the current status. Without --until-settled the command runs until it is interrupted.`,
		Args:         cobra.ExactArgs(1),
		RunE:         runWatch,
		SilenceUsage: true,
	}
	cmd.Flags().Bool("until-settled", false, "Exit once the extension is activated or the activation failed")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	untilSettled, err := cmd.Flags().GetBool("until-settled")
	if err != nil {
		return err
	}
	return watchStatus(cmd, rest.NewStreamClient(args[0]), untilSettled)
}

// watchStatus prints status updates of the coordinator.
// If untilSettled is set, it returns once the activation settled,
// with [ErrActivationFailed] if the activation failed.
func watchStatus(cmd *cobra.Command, client streamer, untilSettled bool) error {
	var last statusResponse
	err := client.Stream(cmd.Context(), rest.StatusStreamEndpoint, func(data []byte) error {
		status, err := parseStatus(data)
		if err != nil {
			return err
		}
		cmd.Println(status)
		last = status
		if untilSettled && status.settled() {
			return rest.ErrStopStream
		}
		return nil
	})
	if err != nil {
		// interrupted by the user
		if ctx := cmd.Context(); ctx != nil && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("watching status: %w", err)
	}

	if !untilSettled {
		return nil
	}
	switch last.State {
	case stateActivated:
		return nil
	case stateActivationError:
		return ErrActivationFailed
	default:
		return errors.New("status stream ended before the activation settled")
	}
}
