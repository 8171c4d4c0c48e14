// Copyright (c) Edgeless Systems GmbH.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/edgelesssys/dextmanager/coordinator/core"
	"github.com/edgelesssys/dextmanager/coordinator/state"
)

// ClientAPI is the interface implementing the backend logic of the REST API.
type ClientAPI interface {
	GetState(context.Context) (state.State, string, error)
	RequestActivation(context.Context) error
	RequestDeactivation(context.Context) error
	Subscribe() (<-chan core.Status, func())
}

// GeneralResponse is a wrapper for all our REST API responses to follow the JSend style: https://github.com/omniti-labs/jsend
type GeneralResponse struct {
	Status  string      `json:"status"`
	Data    interface{} `json:"data"`
	Message string      `json:"message,omitempty"` // only used when status = "error"
}

// GetPost is a helper function to assign different handlers depending on the HTTP method.
func GetPost(getHandler, postHandler func(http.ResponseWriter, *http.Request)) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			getHandler(w, r)
		case http.MethodPost:
			postHandler(w, r)
		default:
			MethodNotAllowedHandler(w, r)
		}
	}
}

// WriteJSON writes a JSend response to the given http.ResponseWriter.
func WriteJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	dataToReturn := GeneralResponse{Status: "success", Data: v}
	if err := json.NewEncoder(w).Encode(dataToReturn); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// WriteJSONError writes a JSend error response to the given http.ResponseWriter.
func WriteJSONError(w http.ResponseWriter, errorString string, httpErrorCode int) {
	marshalledJSON, err := json.Marshal(GeneralResponse{Status: "error", Message: errorString})
	// Only fall back to non-JSON error when we cannot even marshal the error (which is pretty bad)
	if err != nil {
		http.Error(w, errorString, httpErrorCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(httpErrorCode)
	_, _ = w.Write(append(marshalledJSON, '\n'))
}

// MethodNotAllowedHandler returns a 405 Method Not Allowed error.
func MethodNotAllowedHandler(w http.ResponseWriter, _ *http.Request) {
	WriteJSONError(w, "", http.StatusMethodNotAllowed)
}
