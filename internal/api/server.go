// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/chess-erdos/wcnserver/pkg/log"
)

// Serve runs the HTTP server on addr until ctx is cancelled, then
// drains in-flight requests (§5 "HTTP handlers inherit the server's
// shutdown signal; in-flight requests are allowed to complete").
func (a *RestApi) Serve(ctx context.Context, addr string) error {
	r := mux.NewRouter()
	a.MountRoutes(r)

	logged := handlers.CombinedLoggingHandler(log.InfoWriter, r)

	srv := &http.Server{
		Addr:         addr,
		Handler:      logged,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("api: listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
