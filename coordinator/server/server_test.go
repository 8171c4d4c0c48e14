/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edgelesssys/dextmanager/coordinator/constants"
	"github.com/edgelesssys/dextmanager/coordinator/core"
	"github.com/edgelesssys/dextmanager/coordinator/events"
	"github.com/edgelesssys/dextmanager/coordinator/server/handler"
	v2 "github.com/edgelesssys/dextmanager/coordinator/server/v2"
	"github.com/edgelesssys/dextmanager/coordinator/state"
	"github.com/edgelesssys/dextmanager/coordinator/sysext"
	"github.com/edgelesssys/dextmanager/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestClientAPI(t *testing.T) {
	testCases := map[string]struct {
		method     string
		target     string
		submitErr  error
		wantCode   int
		wantStatus string
		wantState  state.State
	}{
		"get status": {
			method:     http.MethodGet,
			target:     "/api/v2/status",
			wantCode:   http.StatusOK,
			wantStatus: "success",
			wantState:  state.Unloaded,
		},
		"post status": {
			method:     http.MethodPost,
			target:     "/api/v2/status",
			wantCode:   http.StatusMethodNotAllowed,
			wantStatus: "error",
			wantState:  state.Unloaded,
		},
		"activate": {
			method:     http.MethodPost,
			target:     "/api/v2/activate",
			wantCode:   http.StatusOK,
			wantStatus: "success",
			wantState:  state.Activating,
		},
		"activate fails": {
			method:     http.MethodPost,
			target:     "/api/v2/activate",
			submitErr:  sysext.ErrUnsupported,
			wantCode:   http.StatusInternalServerError,
			wantStatus: "error",
			wantState:  state.ActivationError,
		},
		"get activate": {
			method:     http.MethodGet,
			target:     "/api/v2/activate",
			wantCode:   http.StatusMethodNotAllowed,
			wantStatus: "error",
			wantState:  state.Unloaded,
		},
		"deactivate": {
			method:     http.MethodPost,
			target:     "/api/v2/deactivate",
			wantCode:   http.StatusOK,
			wantStatus: "success",
			wantState:  state.Unloaded,
		},
		"deactivate fails": {
			method:     http.MethodPost,
			target:     "/api/v2/deactivate",
			submitErr:  errors.New("failed"),
			wantCode:   http.StatusInternalServerError,
			wantStatus: "error",
			wantState:  state.Unloaded,
		},
		"put deactivate": {
			method:     http.MethodPut,
			target:     "/api/v2/deactivate",
			wantCode:   http.StatusMethodNotAllowed,
			wantStatus: "error",
			wantState:  state.Unloaded,
		},
		"unknown path": {
			method:     http.MethodGet,
			target:     "/api/v1/status",
			wantCode:   http.StatusMethodNotAllowed,
			wantStatus: "error",
			wantState:  state.Unloaded,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			c := newTestCore(t, &stubManager{err: tc.submitErr})
			mux := CreateServeMux(c, nil)

			req := httptest.NewRequest(tc.method, tc.target, nil)
			resp := httptest.NewRecorder()
			mux.ServeHTTP(resp, req)

			assert.Equal(tc.wantCode, resp.Code)
			assert.Equal("application/json", resp.Header().Get("Content-Type"))

			var body struct {
				Status  string            `json:"status"`
				Data    v2.StatusResponse `json:"data"`
				Message string            `json:"message"`
			}
			require.NoError(json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(tc.wantStatus, body.Status)
			if tc.wantStatus == "success" {
				assert.Equal(int(tc.wantState), body.Data.Code)
				assert.Equal(tc.wantState.String(), body.Data.State)
				assert.Equal(core.StatusText(tc.wantState, constants.DriverNameDefault), body.Data.Message)
			}
			if tc.submitErr != nil {
				assert.Contains(body.Message, tc.submitErr.Error())
			}
			assert.Equal(tc.wantState, c.Status().State)
		})
	}
}

func TestStatusStream(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	manager := &stubManager{}
	c := newTestCore(t, manager)
	srv := httptest.NewServer(CreateServeMux(c, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v2/status/stream", nil)
	require.NoError(err)
	resp, err := srv.Client().Do(req)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal("text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	assert.Equal(state.Unloaded.String(), nextEvent(t, reader).State)

	require.NoError(c.RequestActivation(context.Background()))
	assert.Equal(state.Activating.String(), nextEvent(t, reader).State)

	manager.delegate.RequestNeedsUserApproval(manager.request)
	got := nextEvent(t, reader)
	assert.Equal(int(state.NeedsApproval), got.Code)
	assert.Equal(core.StatusText(state.NeedsApproval, constants.DriverNameDefault), got.Message)
}

func TestStatusStreamNoFlusher(t *testing.T) {
	assert := assert.New(t)

	server := v2.NewServer(newTestCore(t, &stubManager{}))
	w := &noFlushWriter{header: http.Header{}}
	server.StatusStreamGet(w, httptest.NewRequest(http.MethodGet, "/api/v2/status/stream", nil))
	assert.Equal(http.StatusInternalServerError, w.code)
}

func TestServe(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	socket, addr := util.MustGetLocalListenerAndAddr()

	c := newTestCore(t, &stubManager{})
	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- serve(ctx, socket, logRequests(CreateServeMux(c, nil), zaptest.NewLogger(t)), zaptest.NewLogger(t))
	}()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr + "/api/v2/status")
	require.NoError(err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(err)
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Contains(string(body), `"state":"Unloaded"`)

	// an open status stream does not block the shutdown
	streamResp, err := client.Get("http://" + addr + "/api/v2/status/stream")
	require.NoError(err)
	defer streamResp.Body.Close()

	cancel()
	select {
	case err := <-errChan:
		assert.NoError(err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestPrometheusMux(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	reg := prometheus.NewRegistry()
	eventlog := events.NewLog()
	eventlog.Transition(events.TransitionEvent{Event: "ActivationStarted", From: "Unloaded", To: "Activating"})
	mux := prometheusMux(reg, eventlog, zaptest.NewLogger(t))

	resp := httptest.NewRecorder()
	mux.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(http.StatusOK, resp.Code)
	assert.Contains(resp.Body.String(), "promhttp_metric_handler_requests_total")

	resp = httptest.NewRecorder()
	mux.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(http.StatusOK, resp.Code)
	var got []events.Event
	require.NoError(json.NewDecoder(resp.Body).Decode(&got))
	require.Len(got, 1)
	assert.Equal("Activating", got[0].Transition.To)
}

func TestWriteJSONError(t *testing.T) {
	assert := assert.New(t)

	resp := httptest.NewRecorder()
	handler.WriteJSONError(resp, "boom", http.StatusTeapot)
	assert.Equal(http.StatusTeapot, resp.Code)
	assert.JSONEq(`{"status":"error","data":null,"message":"boom"}`, resp.Body.String())
}

func nextEvent(t *testing.T, reader *bufio.Reader) v2.StatusResponse {
	t.Helper()
	require := require.New(t)

	var data string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(err)
		line = strings.TrimRight(line, "\n")
		if line == "" && data != "" {
			break
		}
		if after, ok := strings.CutPrefix(line, "data: "); ok {
			data = after
		}
	}

	var status v2.StatusResponse
	require.NoError(json.Unmarshal([]byte(data), &status))
	return status
}

func newTestCore(t *testing.T, manager sysext.Manager) *core.Core {
	t.Helper()
	c, err := core.NewCore("com.example.SimpleAudio", "", manager, zaptest.NewLogger(t), nil, nil)
	require.NoError(t, err)
	return c
}

// stubManager accepts requests and keeps the last delegate.
type stubManager struct {
	request  sysext.Request
	delegate sysext.Delegate
	err      error
}

func (s *stubManager) SubmitRequest(_ context.Context, req sysext.Request, delegate sysext.Delegate) error {
	if s.err != nil {
		return s.err
	}
	s.request = req
	s.delegate = delegate
	return nil
}

type noFlushWriter struct {
	header http.Header
	code   int
}

func (w *noFlushWriter) Header() http.Header {
	return w.header
}

func (w *noFlushWriter) Write(b []byte) (int, error) {
	return len(b), nil
}

func (w *noFlushWriter) WriteHeader(code int) {
	w.code = code
}
