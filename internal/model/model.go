// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package model holds the domain types shared by the store, the
// propagator, the chain expander and the HTTP API: users, the witness
// links between them, and the two process-wide singleton records.
package model

import (
	"math/big"
	"strings"
	"time"
)

// ErdosNumberInf marks a user with no known WCN. Kept one below
// math.MaxUint32 so that loserWCN+1 never overflows during comparison.
const ErdosNumberInf = ^uint32(0) - 1

// TimeControlType is the rating bucket a game was played under.
type TimeControlType string

const (
	Blitz     TimeControlType = "Blitz"
	Rapid     TimeControlType = "Rapid"
	Classical TimeControlType = "Classical"
)

// TimeControl is the clock setting of a single game.
type TimeControl struct {
	GameType         TimeControlType `msgpack:"game_type" json:"game_type"`
	MainSeconds      uint32          `msgpack:"main_seconds" json:"main_seconds"`
	IncrementSeconds uint32          `msgpack:"increment_seconds" json:"increment_seconds"`
}

// Termination is the recognized reason a qualifying game ended.
type Termination string

const (
	TerminationCheckmate Termination = "Checkmate"
	TerminationResign    Termination = "Resign"
	TerminationTime      Termination = "Time"
)

// PlayerInfo is the frozen rating snapshot of a player in one game.
type PlayerInfo struct {
	Title        string `msgpack:"title" json:"title"`
	Rating       int32  `msgpack:"rating" json:"rating"`
	RatingChange int32  `msgpack:"rating_change" json:"rating_change"`
}

// ErdosLinkMeta is one entry in a user's WCN history, most-recent-first.
type ErdosLinkMeta struct {
	ErdosNumber uint32   `msgpack:"erdos_number" json:"erdos_number"`
	LinkCount   uint32   `msgpack:"link_count" json:"link_count"`
	PathCount   *big.Int `msgpack:"path_count" json:"path_count"`
}

// Clone returns a deep copy so callers can mutate PathCount in place
// without aliasing a value that may still be referenced by a cache.
func (m ErdosLinkMeta) Clone() ErdosLinkMeta {
	return ErdosLinkMeta{
		ErdosNumber: m.ErdosNumber,
		LinkCount:   m.LinkCount,
		PathCount:   new(big.Int).Set(m.PathCount),
	}
}

// User is keyed in the store by the lowercase form of ID.
type User struct {
	ID            string          `msgpack:"id" json:"id"`
	ErdosLinkMeta []ErdosLinkMeta `msgpack:"erdos_link_meta" json:"erdos_link_meta"`
}

// LowerID returns the case-folded primary key for u.
func (u *User) LowerID() string {
	return strings.ToLower(u.ID)
}

// Head returns the most recent (lowest WCN) meta entry, or nil if u has
// never won a qualifying game.
func (u *User) Head() *ErdosLinkMeta {
	if len(u.ErdosLinkMeta) == 0 {
		return nil
	}
	return &u.ErdosLinkMeta[0]
}

// WCN returns u's current WCN, or ErdosNumberInf if none.
func (u *User) WCN() uint32 {
	if h := u.Head(); h != nil {
		return h.ErdosNumber
	}
	return ErdosNumberInf
}

// ErdosLink is a single witness game, keyed by (winner_id_lowercase,
// erdos_number, link_index). It is written once and never mutated.
type ErdosLink struct {
	WinnerID       string      `msgpack:"winner_id" json:"winner_id"`
	ErdosNumber    uint32      `msgpack:"erdos_number" json:"erdos_number"`
	LinkIndex      uint32      `msgpack:"link_index" json:"link_index"`
	LoserID        string      `msgpack:"loser_id" json:"loser_id"`
	LoserLinkCount uint32      `msgpack:"loser_link_count" json:"loser_link_count"`
	LoserPathCount *big.Int    `msgpack:"loser_path_count" json:"loser_path_count"`
	Time           time.Time   `msgpack:"time" json:"time"`
	WinnerInfo     PlayerInfo  `msgpack:"winner_info" json:"winner_info"`
	LoserInfo      PlayerInfo  `msgpack:"loser_info" json:"loser_info"`
	GameID         string      `msgpack:"game_id" json:"game_id"`
	MoveCount      uint32      `msgpack:"move_count" json:"move_count"`
	WinnerIsWhite  bool        `msgpack:"winner_is_white" json:"winner_is_white"`
	TimeControl    TimeControl `msgpack:"time_control" json:"time_control"`
	Termination    Termination `msgpack:"termination" json:"termination"`
}

// ServerMetadata is the singleton recording ingestion progress across
// archives.
type ServerMetadata struct {
	LastProcessedArchive string `msgpack:"last_processed_archive"`
}

// GameCheckpoint is the singleton recording mid-archive resume state.
type GameCheckpoint struct {
	GameID string `msgpack:"game_id"`
}

// ErdosChainLink is one step of a materialized chain, as returned by the
// chain-expansion query.
type ErdosChainLink struct {
	Link       ErdosLink `msgpack:"link" json:"link"`
	LinkNumber uint32    `msgpack:"link_number" json:"link_number"`
	PathNumber *big.Int  `msgpack:"path_number" json:"path_number"`
}
