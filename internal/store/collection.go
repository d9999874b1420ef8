// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Collection is a typed view over one column-family namespace, mirroring
// the rkyvdb `Collection` trait: a key type, a family prefix, and
// msgpack-encoded values (the original's rmp_serde equivalent).
type Collection[K any, V any] struct {
	s      *Store
	prefix []byte
	encKey func(K) []byte
}

func newCollection[K any, V any](s *Store, prefix []byte, encKey func(K) []byte) Collection[K, V] {
	return Collection[K, V]{s: s, prefix: prefix, encKey: encKey}
}

// Get fetches and decodes the value at key, returning (zero, false, nil)
// if absent.
func (c Collection[K, V]) Get(key K) (V, bool, error) {
	var zero V
	raw, err := c.s.get(c.prefix, c.encKey(key))
	if err != nil {
		return zero, false, err
	}
	if raw == nil {
		return zero, false, nil
	}
	var v V
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		return zero, false, fmt.Errorf("collection decode: %w", err)
	}
	return v, true, nil
}

// Put encodes and writes value at key directly, outside of any
// transaction. Callers performing a read-modify-write sequence must
// hold Store.Mutex and use Encode plus a batched transaction (see
// CommitGameUpdate) instead of Put for the write half.
func (c Collection[K, V]) Put(key K, value V) error {
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("collection encode: %w", err)
	}
	return c.s.put(c.prefix, c.encKey(key), raw)
}

// Delete removes key from the collection.
func (c Collection[K, V]) Delete(key K) error {
	return c.s.delete(c.prefix, c.encKey(key))
}

// NamespacedKey returns the fully namespaced key bytes, for callers that batch
// several collections' writes into one badger transaction.
func (c Collection[K, V]) NamespacedKey(key K) []byte {
	return namespacedKey(c.prefix, c.encKey(key))
}

// Encode msgpack-serializes value, for batched transaction writes.
func (c Collection[K, V]) Encode(value V) ([]byte, error) {
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("collection encode: %w", err)
	}
	return raw, nil
}

// Decode msgpack-deserializes raw into V.
func (c Collection[K, V]) Decode(raw []byte) (V, error) {
	var v V
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("collection decode: %w", err)
	}
	return v, nil
}
