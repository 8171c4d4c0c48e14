/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

// Package events implements a log of activation events.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// maxEvents is the number of events kept in the log. Older events are dropped.
const maxEvents = 1000

// TransitionEvent is logged whenever an event is applied to the activation state.
type TransitionEvent struct {
	RequestID string `json:"requestID,omitempty"`
	Event     string `json:"event"`
	From      string `json:"from"`
	To        string `json:"to"`
	Detail    string `json:"detail,omitempty"`
}

// RequestEvent is logged when a request is submitted to the extension-management service.
type RequestEvent struct {
	RequestID  string `json:"requestID"`
	Kind       string `json:"kind"`
	Identifier string `json:"identifier"`
	Error      string `json:"error,omitempty"`
}

// Event represents a single event in the event log.
type Event struct {
	Timestamp  time.Time        `json:"time"`
	Transition *TransitionEvent `json:"transition,omitempty"`
	Request    *RequestEvent    `json:"request,omitempty"`
}

// Log is a log of activation events.
type Log struct {
	mux    sync.Mutex
	events []Event
	clock  clock.PassiveClock
}

// NewLog creates a new log.
func NewLog() *Log {
	return NewLogWithClock(clock.RealClock{})
}

// NewLogWithClock creates a new log using the given clock for timestamps.
func NewLogWithClock(clock clock.PassiveClock) *Log {
	return &Log{clock: clock}
}

// Transition adds a transition event to the log.
func (l *Log) Transition(ev TransitionEvent) {
	l.add(Event{Transition: &ev})
}

// Request adds a request event to the log.
func (l *Log) Request(ev RequestEvent) {
	l.add(Event{Request: &ev})
}

// Events returns a copy of all logged events, oldest first.
func (l *Log) Events() []Event {
	l.mux.Lock()
	defer l.mux.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Handler returns a http.HandlerFunc which writes the log as JSON array.
// Failures to write the response are logged at debug level.
func (l *Log) Handler(log *zap.Logger) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(l.Events()); err != nil {
			log.Debug("Writing event log failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		}
	})
}

func (l *Log) add(ev Event) {
	l.mux.Lock()
	defer l.mux.Unlock()
	ev.Timestamp = l.clock.Now()
	if len(l.events) >= maxEvents {
		l.events = append(l.events[:0:0], l.events[len(l.events)-maxEvents+1:]...)
	}
	l.events = append(l.events, ev)
}
