// Copyright (c) Edgeless Systems GmbH.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package v2

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/edgelesssys/dextmanager/coordinator/server/handler"
)

// ClientAPIServer serves the coordinator's v2 REST API.
type ClientAPIServer struct {
	api handler.ClientAPI
}

// NewServer creates a new ClientAPIServer.
func NewServer(api handler.ClientAPI) *ClientAPIServer {
	return &ClientAPIServer{api: api}
}

// StatusGet retrieves the current activation status.
//
// swagger:route GET /api/v2/status status statusGet
//
// Get the current activation status of the driver extension.
//
//	Responses:
//	  200: StatusResponse
//	  500: ErrorResponse
func (s *ClientAPIServer) StatusGet(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, r)
}

// ActivatePost submits an activation request for the driver extension.
// The response contains the status right after submission.
//
// swagger:route POST /api/v2/activate activation activatePost
//
// Request activation of the driver extension.
// The system may ask the user to approve the extension before it is activated.
//
//	Responses:
//	  200: StatusResponse
//	  500: ErrorResponse
func (s *ClientAPIServer) ActivatePost(w http.ResponseWriter, r *http.Request) {
	if err := s.api.RequestActivation(r.Context()); err != nil {
		handler.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeStatus(w, r)
}

// DeactivatePost submits a deactivation request for the driver extension.
//
// swagger:route POST /api/v2/deactivate activation deactivatePost
//
// Request deactivation of the driver extension.
//
//	Responses:
//	  200: StatusResponse
//	  500: ErrorResponse
func (s *ClientAPIServer) DeactivatePost(w http.ResponseWriter, r *http.Request) {
	if err := s.api.RequestDeactivation(r.Context()); err != nil {
		handler.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeStatus(w, r)
}

// StatusStreamGet streams status updates as server-sent events.
// The first event carries the current status. The stream ends when the client disconnects.
func (s *ClientAPIServer) StatusStreamGet(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		handler.WriteJSONError(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	updates, cancel := s.api.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case status, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(newStatusResponse(status.State, status.Message))
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *ClientAPIServer) writeStatus(w http.ResponseWriter, r *http.Request) {
	code, message, err := s.api.GetState(r.Context())
	if err != nil {
		handler.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	handler.WriteJSON(w, newStatusResponse(code, message))
}
