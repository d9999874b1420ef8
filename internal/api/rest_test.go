// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/chess-erdos/wcnserver/internal/model"
	"github.com/chess-erdos/wcnserver/internal/store"
)

func newTestAPI(t *testing.T) (*RestApi, *mux.Router) {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	a := &RestApi{Store: s}
	r := mux.NewRouter()
	a.MountRoutes(r)
	return a, r
}

func TestUserHandlerFound(t *testing.T) {
	a, r := newTestAPI(t)
	require.NoError(t, a.Store.Users().Put("u1", model.User{
		ID: "U1",
		ErdosLinkMeta: []model.ErdosLinkMeta{
			{ErdosNumber: 1, LinkCount: 1, PathCount: big.NewInt(1)},
		},
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/user/U1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"U1"`)
}

func TestUserHandlerNotFound(t *testing.T) {
	_, r := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/user/nobody", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChainHandlerMalformedErdosNumber(t *testing.T) {
	_, r := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/chain/U1/abc/0", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChainHandlerNotEnumerable(t *testing.T) {
	_, r := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/chain/nobody/1/0", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLastProcessedHandlerBeforeAnyArchive(t *testing.T) {
	_, r := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/last_processed", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLastProcessedHandlerSlicesArchiveLabel(t *testing.T) {
	a, r := newTestAPI(t)
	require.NoError(t, a.Store.CommitArchiveDone("lichess_db_standard_rated_2024-01.pgn.zst"))

	req := httptest.NewRequest(http.MethodGet, "/api/last_processed", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2024-01", rec.Body.String())
}

func TestIndexHandlerFallsBackWithoutStaticFS(t *testing.T) {
	_, r := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/some/spa/route", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIndexHandlerServesEmbeddedIndex(t *testing.T) {
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	a := &RestApi{Store: s, StaticFS: fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>wcn</html>")},
	}}
	r := mux.NewRouter()
	a.MountRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/some/spa/route", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "<html>wcn</html>", rec.Body.String())
}
