// Copyright (c) Edgeless Systems GmbH.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package rest provides methods and functions to communicate
// with the activation coordinator using its REST API.
package rest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tidwall/gjson"
)

// Endpoints of the coordinator's REST API.
const (
	StatusEndpoint       = "api/v2/status"
	StatusStreamEndpoint = "api/v2/status/stream"
	ActivateEndpoint     = "api/v2/activate"
	DeactivateEndpoint   = "api/v2/deactivate"
	// EventsEndpoint is served by the coordinator's Prometheus server.
	EventsEndpoint = "events"
	ContentJSON    = "application/json"
)

const (
	messageField = "message"
	dataField    = "data"
	dataPrefix   = "data:"
)

// Flags are command line flags used to configure the REST client.
type Flags struct {
	Timeout time.Duration
}

// ParseFlags parses the command line flags used to configure the REST client.
func ParseFlags(flags *pflag.FlagSet) (Flags, error) {
	timeout, err := flags.GetDuration("timeout")
	if err != nil {
		return Flags{}, err
	}
	return Flags{Timeout: timeout}, nil
}

// Client is a REST client for the activation coordinator.
type Client struct {
	client *http.Client
	host   string
}

// NewClient creates and returns an http client using the flags of cmd.
func NewClient(cmd *cobra.Command, host string) (*Client, error) {
	flags, err := ParseFlags(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}
	return newClient(host, flags.Timeout), nil
}

// NewStreamClient creates and returns an http client for long running requests.
// Requests of the returned client never time out.
func NewStreamClient(host string) *Client {
	return newClient(host, 0)
}

func newClient(host string, timeout time.Duration) *Client {
	return &Client{
		client: &http.Client{Timeout: timeout},
		host:   host,
	}
}

// Get sends a GET request to the coordinator under the specified path.
// If body is non nil, it is sent as the request body.
// On success, the data field of the JSON response is returned.
func (c *Client) Get(ctx context.Context, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uri(path), body)
	if err != nil {
		return nil, err
	}
	return c.do(req, true)
}

// GetRaw sends a GET request to the coordinator under the specified path
// and returns the full response body.
func (c *Client) GetRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uri(path), http.NoBody)
	if err != nil {
		return nil, err
	}
	return c.do(req, false)
}

// Post sends a POST request to the coordinator under the specified path.
// Optionally, a body can be provided.
func (c *Client) Post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uri(path), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.do(req, true)
}

// Stream sends a GET request for a server-sent event stream under the specified path.
// fn is called with the data of every event. Stream returns when the stream ends,
// ctx is done, or fn returns an error. An [ErrStopStream] returned by fn is not reported.
func (c *Client) Stream(ctx context.Context, path string, fn func(data []byte) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uri(path), http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s %s", req.Method, req.URL.String(), resp.Status, gjson.GetBytes(respBody, messageField).String())
	}

	var data []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			if after, ok := strings.CutPrefix(line, dataPrefix); ok {
				data = append(data, strings.TrimPrefix(after, " "))
			}
			continue
		}
		// an empty line terminates the event
		if len(data) == 0 {
			continue
		}
		err := fn([]byte(strings.Join(data, "\n")))
		data = data[:0]
		if errors.Is(err, ErrStopStream) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}

// ErrStopStream can be returned by the callback of [Client.Stream] to end the stream without error.
var ErrStopStream = errors.New("stop stream")

func (c *Client) uri(path string) string {
	uri := url.URL{Scheme: "http", Host: c.host, Path: path}
	return uri.String()
}

func (c *Client) do(req *http.Request, extractData bool) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if !extractData {
			return respBody, nil
		}
		// return data field of JSON response
		data := gjson.GetBytes(respBody, dataField).String()
		return []byte(data), nil
	default:
		msg := gjson.GetBytes(respBody, messageField).String()
		return nil, fmt.Errorf("%s %s: %s %s", req.Method, req.URL.String(), resp.Status, msg)
	}
}
