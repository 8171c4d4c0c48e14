/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

// Package server contains the coordinator's HTTP-REST client API and the Prometheus endpoint.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/edgelesssys/dextmanager/coordinator/events"
	"github.com/edgelesssys/dextmanager/coordinator/server/handler"
	v2 "github.com/edgelesssys/dextmanager/coordinator/server/v2"
	"github.com/edgelesssys/dextmanager/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// CreateServeMux creates a mux that serves the client API.
func CreateServeMux(api handler.ClientAPI, promFactory *promauto.Factory) serveMux {
	serverV2 := v2.NewServer(api)
	var router serveMux
	if promFactory != nil {
		muxRouter := newPromServeMux(promFactory, "server", "client_api")
		muxRouter.setMethodNotAllowedHandler(handler.MethodNotAllowedHandler)
		router = muxRouter
	} else {
		muxRouter := plainServeMux{http.NewServeMux()}
		muxRouter.HandleFunc("/", handler.MethodNotAllowedHandler)
		router = muxRouter
	}

	v2Endpoint := "/api/v2"
	router.HandleFunc(v2Endpoint+"/status", handler.GetPost(serverV2.StatusGet, handler.MethodNotAllowedHandler))
	router.HandleStream(v2Endpoint+"/status/stream", http.HandlerFunc(handler.GetPost(serverV2.StatusStreamGet, handler.MethodNotAllowedHandler)))
	router.HandleFunc(v2Endpoint+"/activate", handler.GetPost(handler.MethodNotAllowedHandler, serverV2.ActivatePost))
	router.HandleFunc(v2Endpoint+"/deactivate", handler.GetPost(handler.MethodNotAllowedHandler, serverV2.DeactivatePost))
	return router
}

// RunClientServer runs a HTTP server serving mux until ctx is done.
func RunClientServer(ctx context.Context, mux http.Handler, address string, zapLogger *zap.Logger) error {
	socket, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	zapLogger.Info("Starting client http server", zap.String("address", socket.Addr().String()))
	return serve(ctx, socket, logRequests(mux, zapLogger), zapLogger)
}

// RunPrometheusServer runs a HTTP server handling the prometheus metrics endpoint
// and the activation event log until ctx is done.
func RunPrometheusServer(ctx context.Context, address string, zapLogger *zap.Logger, reg *prometheus.Registry, eventlog *events.Log) error {
	socket, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	zapLogger.Info("Starting prometheus /metrics endpoint", zap.String("address", socket.Addr().String()))
	return serve(ctx, socket, prometheusMux(reg, eventlog, zapLogger), zapLogger)
}

func prometheusMux(reg *prometheus.Registry, eventlog *events.Log, zapLogger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	mux.Handle("/events", eventlog.Handler(zapLogger))
	return mux
}

// serve serves handler on socket. Once ctx is done, the server is shut down
// and open status streams are closed.
func serve(ctx context.Context, socket net.Listener, handler http.Handler, zapLogger *zap.Logger) error {
	server := &http.Server{
		Handler:           handler,
		ErrorLog:          logging.NewWrapper(zapLogger),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(socket)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Warn("Server shutdown failed", zap.Error(err))
		return err
	}
	if err := <-errChan; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
