// Copyright (c) Edgeless Systems GmbH.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"
	"net/http"

	"github.com/edgelesssys/dextmanager/cli/internal/rest"
	"github.com/spf13/cobra"
)

// NewActivateCmd returns the activate command.
func NewActivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate <IP:PORT>",
		Short: "Requests activation of the driver extension",
		Long: `Requests activation of the driver extension managed by the coordinator.

The system may ask the user to approve the extension before it is activated.
Use --wait to block until the activation succeeded or failed.`,
		Example:      "dextctl activate localhost:4433 --wait",
		Args:         cobra.ExactArgs(1),
		RunE:         runActivate,
		SilenceUsage: true,
	}
	cmd.Flags().Bool("wait", false, "Wait until the activation succeeded or failed")
	return cmd
}

// NewDeactivateCmd returns the deactivate command.
func NewDeactivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "deactivate <IP:PORT>",
		Short:        "Requests deactivation of the driver extension",
		Long:         "Requests deactivation of the driver extension managed by the coordinator.",
		Args:         cobra.ExactArgs(1),
		RunE:         runDeactivate,
		SilenceUsage: true,
	}
	return cmd
}

func runActivate(cmd *cobra.Command, args []string) error {
	wait, err := cmd.Flags().GetBool("wait")
	if err != nil {
		return err
	}
	client, err := rest.NewClient(cmd, args[0])
	if err != nil {
		return err
	}

	var stream streamer
	if wait {
		stream = rest.NewStreamClient(args[0])
	}
	return cliActivate(cmd, client, stream)
}

func runDeactivate(cmd *cobra.Command, args []string) error {
	client, err := rest.NewClient(cmd, args[0])
	if err != nil {
		return err
	}
	return cliDeactivate(cmd, client)
}

// cliActivate requests activation of the driver extension.
// If stream is not nil, it waits until the activation settled.
func cliActivate(cmd *cobra.Command, client poster, stream streamer) error {
	resp, err := client.Post(cmd.Context(), rest.ActivateEndpoint, rest.ContentJSON, http.NoBody)
	if err != nil {
		return fmt.Errorf("requesting activation: %w", err)
	}
	status, err := parseStatus(resp)
	if err != nil {
		return err
	}
	cmd.Println("Activation requested")
	cmd.Println(status)

	if stream == nil {
		return nil
	}
	return watchStatus(cmd, stream, true)
}

// cliDeactivate requests deactivation of the driver extension.
func cliDeactivate(cmd *cobra.Command, client poster) error {
	if _, err := client.Post(cmd.Context(), rest.DeactivateEndpoint, rest.ContentJSON, http.NoBody); err != nil {
		return fmt.Errorf("requesting deactivation: %w", err)
	}
	cmd.Println("Deactivation requested")
	return nil
}
