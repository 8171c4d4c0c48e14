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
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const statusDesc = `
This command provides information about the driver extension managed by a running coordinator.
Information is obtained from the /api/v2/status endpoint of the coordinator's REST API.

The extension will be in one of these 5 states:
  0 Unloaded: No activation has been requested yet.
	Request one using [dextctl activate].

  1 Activating: An activation request was submitted and is being processed.

  2 NeedsApproval: The system waits for the user to approve the extension.
	Follow the system's prompt to approve it.

  3 Activated: The extension has been activated and is ready to use.

  4 ActivationError: The last activation failed.
	Check the coordinator's logs and request a new activation.
`

// NewStatusCmd returns the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "status <IP:PORT>",
		Short:        "Gives information about the activation status of the driver extension",
		Long:         statusDesc,
		Args:         cobra.ExactArgs(1),
		RunE:         runStatus,
		SilenceUsage: true,
	}
	addOutputFlags(cmd)
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := rest.NewClient(cmd, args[0])
	if err != nil {
		return err
	}
	flags, err := parseOutputFlags(cmd, afero.NewOsFs())
	if err != nil {
		return err
	}
	return cliStatus(cmd, client, flags)
}

// cliStatus requests the current activation status from the coordinator.
func cliStatus(cmd *cobra.Command, client getter, flags outputFlags) error {
	resp, err := client.Get(cmd.Context(), rest.StatusEndpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("getting status: %w", err)
	}
	status, err := parseStatus(resp)
	if err != nil {
		return err
	}
	return writeOutput(cmd, flags, status, status.String())
}
