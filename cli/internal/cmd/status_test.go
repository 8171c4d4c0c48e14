// Copyright (c) Edgeless Systems GmbH.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/edgelesssys/dextmanager/cli/internal/rest"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	marshalMsg := func(msg statusResponse) []byte {
		bytes, err := json.Marshal(msg)
		require.NoError(t, err)
		return bytes
	}

	testCases := map[string]struct {
		getter  *stubGetter
		out     *stubFileWriter
		wantOut string
		wantErr bool
	}{
		"unloaded": {
			getter: &stubGetter{
				response: marshalMsg(statusResponse{Code: 0, State: "Unloaded", Message: "No activation requested."}),
			},
			wantOut: "0 Unloaded: No activation requested.\n",
		},
		"needs approval": {
			getter: &stubGetter{
				response: marshalMsg(statusResponse{Code: 2, State: "NeedsApproval", Message: "Approve the extension."}),
			},
			wantOut: "2 NeedsApproval: Approve the extension.\n",
		},
		"activated": {
			getter: &stubGetter{
				response: marshalMsg(statusResponse{Code: 3, State: "Activated", Message: "Ready."}),
			},
			wantOut: "3 Activated: Ready.\n",
		},
		"written to file": {
			getter: &stubGetter{
				response: marshalMsg(statusResponse{Code: 4, State: "ActivationError", Message: "Failed."}),
			},
			out:     &stubFileWriter{},
			wantOut: "Output written to unit-test\n",
		},
		"get error": {
			getter: &stubGetter{
				err: errors.New("failed"),
			},
			wantErr: true,
		},
		"unmarshal error": {
			getter: &stubGetter{
				response: []byte("invalid"),
			},
			wantErr: true,
		},
		"write error": {
			getter: &stubGetter{
				response: marshalMsg(statusResponse{Code: 3, State: "Activated", Message: "Ready."}),
			},
			out:     &stubFileWriter{err: errors.New("failed")},
			wantErr: true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			cmd := &cobra.Command{}
			var out bytes.Buffer
			cmd.SetOut(&out)

			flags := outputFlags{format: formatJSON}
			if tc.out != nil {
				flags.out = tc.out
			}

			err := cliStatus(cmd, tc.getter, flags)
			assert.Equal(rest.StatusEndpoint, tc.getter.requestPath)
			if tc.wantErr {
				assert.Error(err)
				return
			}
			assert.NoError(err)
			assert.Equal(tc.wantOut, out.String())
			if tc.out != nil {
				assert.JSONEq(string(tc.getter.response), tc.out.out.String())
			}
		})
	}
}
