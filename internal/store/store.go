// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store is the persistence adapter of §4.5: a thin wrapper over
// an embedded ordered key-value engine (badger), emulating the original
// column-family model as byte-prefixed key namespaces, with a single
// advisory mutex guarding the compound read-modify-write sequences the
// propagator needs.
package store

import (
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/chess-erdos/wcnserver/pkg/log"
)

// badgerCompression tunes the users family for variable-length records
// dominated by small strings and big integers, per §4.5/§6.
const badgerCompression = options.ZSTD

// Column family prefixes. Keys never cross a prefix boundary so a single
// flat badger keyspace behaves like four independent families.
var (
	cfUsers                = []byte("users/")
	cfErdosLinks           = []byte("erdos_links/")
	cfLastProcessedArchive = []byte("last_processed_archive")
	cfGameCheckpoint       = []byte("game_checkpoint")
)

// Store wraps a badger.DB with the compound-write mutex required by
// §4.5/§5: readers take point lookups lock-free, but any sequence that
// reads then writes more than one key must hold Mutex.
type Store struct {
	db    *badger.DB
	Mutex sync.Mutex
}

// Open opens (or creates) the store at path. Per §9 "Global state", the
// returned handle is meant to be opened once at process startup and
// passed explicitly to the ingestion and query workers, rather than
// reached for via ambient/package-level state — so Open intentionally
// returns a fresh handle instead of a process-wide singleton.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(badgerLogAdapter{}).
		WithCompression(badgerCompression)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store.Open(%q): %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a store backed by an ephemeral in-process badger
// instance, for tests that need a real store without touching disk.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerLogAdapter{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store.OpenInMemory: %w", err)
	}
	return &Store{db: db}, nil
}

// Close flushes and releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store.Close(): %w", err)
	}
	return nil
}

func namespacedKey(cf, key []byte) []byte {
	out := make([]byte, 0, len(cf)+len(key))
	out = append(out, cf...)
	out = append(out, key...)
	return out
}

// get reads a single namespaced key. Returns (nil, nil) on a missing key.
func (s *Store) get(cf, key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(namespacedKey(cf, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store.get: %w", err)
	}
	return value, nil
}

// put writes a single namespaced key, outside of any caller-held
// transaction. Used for the point writes that don't need the compound
// mutex (e.g. Collection.Put for a lazily created user row or the
// champion seed).
func (s *Store) put(cf, key, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(namespacedKey(cf, key), value)
	})
	if err != nil {
		return fmt.Errorf("store.put: %w", err)
	}
	return nil
}

func (s *Store) delete(cf, key []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(namespacedKey(cf, key))
	})
	if err != nil {
		return fmt.Errorf("store.delete: %w", err)
	}
	return nil
}

type badgerLogAdapter struct{}

func (badgerLogAdapter) Errorf(f string, v ...interface{})   { log.Errorf("badger: "+f, v...) }
func (badgerLogAdapter) Warningf(f string, v ...interface{}) { log.Warnf("badger: "+f, v...) }
func (badgerLogAdapter) Infof(f string, v ...interface{})    { log.Debugf("badger: "+f, v...) }
func (badgerLogAdapter) Debugf(f string, v ...interface{})   { log.Debugf("badger: "+f, v...) }
