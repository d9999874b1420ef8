// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"encoding/binary"
)

// ErdosLinkKey is the composite key (winner_id_lowercase, erdos_number,
// link_index) of §3. Ids are encoded length-prefixed so an id containing
// arbitrary bytes can never be confused with the fixed-width fields that
// follow it.
type ErdosLinkKey struct {
	WinnerID    string
	ErdosNumber uint32
	LinkIndex   uint32
}

func encodeErdosLinkKey(k ErdosLinkKey) []byte {
	id := []byte(k.WinnerID)
	out := make([]byte, 2+len(id)+4+4)
	binary.BigEndian.PutUint16(out[0:2], uint16(len(id)))
	copy(out[2:2+len(id)], id)
	binary.BigEndian.PutUint32(out[2+len(id):6+len(id)], k.ErdosNumber)
	binary.BigEndian.PutUint32(out[6+len(id):10+len(id)], k.LinkIndex)
	return out
}

func encodeUserKey(lowerID string) []byte {
	return []byte(lowerID)
}

// encodeUnitKey returns the sole key of a singleton record (ServerMetadata,
// GameCheckpoint).
func encodeUnitKey(struct{}) []byte {
	return []byte{}
}
