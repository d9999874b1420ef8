// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api is the HTTP query service of §6: user lookup, chain
// expansion, the ingestion-cutoff marker, and static asset serving.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/chess-erdos/wcnserver/internal/store"
	"github.com/chess-erdos/wcnserver/internal/wcn"
	"github.com/chess-erdos/wcnserver/pkg/log"
)

// RestApi wires the store into a mux.Router. RepositoryMutex guards any
// handler that would otherwise race a concurrent compound read, even
// though the query path here is lock-free per §5 (kept for symmetry
// with future handlers that might need it, e.g. an admin reindex
// endpoint).
type RestApi struct {
	Store           *store.Store
	StaticFS        fs.FS
	RepositoryMutex sync.Mutex
}

// MountRoutes registers every endpoint of §6 onto r.
func (a *RestApi) MountRoutes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.StrictSlash(true)
	api.HandleFunc("/user/{id}", a.userHandler).Methods(http.MethodGet)
	api.HandleFunc("/chain/{id}/{erdos_number}/{path_index}", a.chainHandler).Methods(http.MethodGet)
	api.HandleFunc("/last_processed", a.lastProcessedHandler).Methods(http.MethodGet)

	if a.StaticFS != nil {
		r.PathPrefix("/assets/").Handler(cacheControl(oneYear, http.FileServer(http.FS(a.StaticFS))))
	}
	r.PathPrefix("/").HandlerFunc(a.indexHandler)
}

const (
	oneHour = "public, max-age=3600"
	oneMin  = "public, max-age=60"
	oneYear = "public, max-age=31536000, immutable"
)

func cacheControl(directive string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", directive)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, cacheDirective string, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if cacheDirective != "" {
		w.Header().Set("Cache-Control", cacheDirective)
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("api: encode response: %v", err)
	}
}

// userHandler implements GET /api/user/{id} (§6).
func (a *RestApi) userHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	u, ok, err := a.Store.Users().Get(strings.ToLower(id))
	if err != nil {
		log.Errorf("api.userHandler: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, oneHour, u)
}

// chainHandler implements GET /api/chain/{id}/{erdos_number}/{path_index}
// (§6), delegating the walk to wcn.Chain.
func (a *RestApi) chainHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	erdosNumber, err := strconv.ParseUint(vars["erdos_number"], 10, 32)
	if err != nil {
		http.Error(w, "malformed erdos_number", http.StatusBadRequest)
		return
	}

	pathIndex, ok := new(big.Int).SetString(vars["path_index"], 10)
	if !ok {
		http.Error(w, "malformed path_index", http.StatusBadRequest)
		return
	}

	chain, err := wcn.Chain(a.Store, id, uint32(erdosNumber), pathIndex)
	switch {
	case err == wcn.ErrNotEnumerable:
		http.Error(w, "not found", http.StatusNotFound)
		return
	case err != nil:
		log.Errorf("api.chainHandler: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, oneHour, chain)
}

// lastProcessedHandler implements GET /api/last_processed (§6). The
// stored identifier is typically an archive URL with a sortable date
// suffix; only the date portion is surfaced to the front page, the way
// the original's http.rs slices the last 15..8 bytes of the archive
// string.
func (a *RestApi) lastProcessedHandler(w http.ResponseWriter, r *http.Request) {
	meta, ok, err := a.Store.ServerMeta().Get(struct{}{})
	if err != nil {
		log.Errorf("api.lastProcessedHandler: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "no archive processed yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", oneMin)
	fmt.Fprint(w, shortArchiveLabel(meta.LastProcessedArchive))
}

func shortArchiveLabel(archive string) string {
	if len(archive) < 15 {
		return archive
	}
	return archive[len(archive)-15 : len(archive)-8]
}

// indexHandler is the SPA fallback of §6: a short cache directive, and
// the embedded index document if a static filesystem was configured.
func (a *RestApi) indexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", oneMin)
	if a.StaticFS == nil {
		http.NotFound(w, r)
		return
	}
	f, err := a.StaticFS.Open("index.html")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := io.Copy(w, f); err != nil {
		log.Errorf("api.indexHandler: %v", err)
	}
}
