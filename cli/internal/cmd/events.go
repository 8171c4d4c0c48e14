// Copyright (c) Edgeless Systems GmbH.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"
	"strings"

	"github.com/edgelesssys/dextmanager/cli/internal/rest"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

// NewEventsCmd returns the events command.
func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events <IP:PORT>",
		Short: "Prints the activation event log of the coordinator",
		Long: `Prints the activation event log of the coordinator.

The log is served by the coordinator's metrics server, so <IP:PORT> is the metrics address.`,
		Args:         cobra.ExactArgs(1),
		RunE:         runEvents,
		SilenceUsage: true,
	}
	cmd.Flags().Bool("raw", false, "Print the log as JSON")
	return cmd
}

func runEvents(cmd *cobra.Command, args []string) error {
	raw, err := cmd.Flags().GetBool("raw")
	if err != nil {
		return err
	}
	client, err := rest.NewClient(cmd, args[0])
	if err != nil {
		return err
	}
	return cliEvents(cmd, client, raw)
}

// cliEvents prints the event log of the coordinator, one event per line.
func cliEvents(cmd *cobra.Command, client rawGetter, raw bool) error {
	resp, err := client.GetRaw(cmd.Context(), rest.EventsEndpoint)
	if err != nil {
		return fmt.Errorf("getting events: %w", err)
	}
	if !gjson.ValidBytes(resp) {
		return fmt.Errorf("invalid event log: %q", resp)
	}
	if raw {
		cmd.Println(strings.TrimSpace(string(resp)))
		return nil
	}

	events := gjson.ParseBytes(resp)
	if len(events.Array()) == 0 {
		cmd.Println("No events")
		return nil
	}
	events.ForEach(func(_, event gjson.Result) bool {
		cmd.Println(formatEvent(event))
		return true
	})
	return nil
}

func formatEvent(event gjson.Result) string {
	line := event.Get("time").String()
	if t := event.Get("transition"); t.Exists() {
		line += fmt.Sprintf(" %s: %s -> %s", t.Get("event"), t.Get("from"), t.Get("to"))
		if id := t.Get("requestID").String(); id != "" {
			line += " request=" + id
		}
		if detail := t.Get("detail").String(); detail != "" {
			line += fmt.Sprintf(" (%s)", detail)
		}
	}
	if r := event.Get("request"); r.Exists() {
		line += fmt.Sprintf(" submitted %s %s request=%s", r.Get("kind"), r.Get("identifier"), r.Get("requestID"))
		if errMsg := r.Get("error").String(); errMsg != "" {
			line += fmt.Sprintf(" failed: %s", errMsg)
		}
	}
	return line
}
