// Copyright (c) Edgeless Systems GmbH.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package cmd implements the dextctl commands.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/edgelesssys/dextmanager/cli/internal/file"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Names of the activation states reported by the coordinator.
const (
	stateActivated       = "Activated"
	stateActivationError = "ActivationError"
)

// Output formats.
const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// ErrActivationFailed is returned if the coordinator reports an activation error.
var ErrActivationFailed = errors.New("activation failed")

type getter interface {
	Get(ctx context.Context, path string, body io.Reader) ([]byte, error)
}

type rawGetter interface {
	GetRaw(ctx context.Context, path string) ([]byte, error)
}

type poster interface {
	Post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error)
}

type streamer interface {
	Stream(ctx context.Context, path string, fn func(data []byte) error) error
}

type fileWriter interface {
	Write(data []byte) error
	Name() string
}

// statusResponse is the activation status reported by the coordinator.
type statusResponse struct {
	Code    int    `json:"code" yaml:"code"`
	State   string `json:"state" yaml:"state"`
	Message string `json:"message" yaml:"message"`
}

func (s statusResponse) String() string {
	return fmt.Sprintf("%d %s: %s", s.Code, s.State, s.Message)
}

// settled reports whether the activation reached a final state.
func (s statusResponse) settled() bool {
	return s.State == stateActivated || s.State == stateActivationError
}

// parseStatus parses the data of a status response.
func parseStatus(data []byte) (statusResponse, error) {
	if !gjson.ValidBytes(data) {
		return statusResponse{}, fmt.Errorf("invalid status response: %q", data)
	}
	fields := gjson.GetManyBytes(data, "code", "state", "message")
	if !fields[0].Exists() || !fields[1].Exists() {
		return statusResponse{}, fmt.Errorf("incomplete status response: %s", data)
	}
	return statusResponse{
		Code:    int(fields[0].Int()),
		State:   fields[1].String(),
		Message: fields[2].String(),
	}, nil
}

// outputFlags are the flags of commands that can save their output to a file.
type outputFlags struct {
	out    fileWriter
	format string
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "Save output to file instead of printing to stdout")
	cmd.Flags().String("format", "", "Format of the output file, one of json or yaml (default derived from the file extension)")
}

func parseOutputFlags(cmd *cobra.Command, fs afero.Fs) (outputFlags, error) {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return outputFlags{}, err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return outputFlags{}, err
	}

	flags := outputFlags{format: outputFormat(format, output)}
	if handler := file.New(output, fs); handler != nil {
		flags.out = handler
	}
	if flags.format != formatJSON && flags.format != formatYAML {
		return outputFlags{}, fmt.Errorf("unknown output format %q", format)
	}
	return flags, nil
}

// outputFormat returns format if set, or the format matching the extension of filename.
func outputFormat(format, filename string) string {
	if format != "" {
		return strings.ToLower(format)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

// encode marshals v in the given format.
func encode(v any, format string) ([]byte, error) {
	switch format {
	case formatYAML:
		return yaml.Marshal(v)
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// writeOutput writes v to flags.out, or prints text if no output file is set.
func writeOutput(cmd *cobra.Command, flags outputFlags, v any, text string) error {
	if flags.out == nil {
		cmd.Println(text)
		return nil
	}
	data, err := encode(v, flags.format)
	if err != nil {
		return err
	}
	if err := flags.out.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", flags.out.Name(), err)
	}
	cmd.Printf("Output written to %s\n", flags.out.Name())
	return nil
}
