// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pgn implements the streaming game Visitor and header filter of
// §4.2: a fixed-size per-game state struct reused across an entire
// archive, dispatched against a bitmask of mandatory headers so that a
// single check at end-of-headers enforces completeness. Duplicate
// headers are not detected: a repeated key sets the same bit again and
// its later value replaces the earlier one.
//
// No Go package in the retrieval pack implements a streaming PGN
// Visitor contract (the original source delegates this to the Rust
// pgn_reader crate, itself out of scope per spec §1's "parsing of the
// game notation format itself is delegated to a streaming visitor
// library"); the Visitor contract below is modeled directly on that
// crate's callback surface and on the worker/filter shape of
// other_examples' pgn-extract-go processor.
package pgn

import (
	"strconv"
	"strings"
	"time"

	"github.com/chess-erdos/wcnserver/internal/model"
	"github.com/chess-erdos/wcnserver/pkg/log"
)

// WCNSource is the subset of the propagator's cache the fast-skip
// optimizations need: the current WCN of a display id, or
// model.ErdosNumberInf for "?" / unknown ids.
type WCNSource interface {
	CurrentWCN(displayID string) (uint32, error)
}

// header bitmask bits, in the exact order the original asserts them.
const (
	bitEvent = 1 << iota
	bitSite
	bitWhite
	bitWhiteTitle
	bitWhiteElo
	bitWhiteRatingDiff
	bitBlack
	bitBlackTitle
	bitBlackElo
	bitBlackRatingDiff
	bitResult
	bitUTCDate
	bitUTCTime
	bitTimeControl
	bitTermination
)

// mandatoryMask is every bit except the two optional Title bits.
const mandatoryMask = bitEvent | bitSite | bitWhite | bitWhiteElo | bitWhiteRatingDiff |
	bitBlack | bitBlackElo | bitBlackRatingDiff | bitResult | bitUTCDate | bitUTCTime |
	bitTimeControl | bitTermination

// colorInfo accumulates one side's header fields across a single game.
type colorInfo struct {
	id         string
	title      string
	elo        int32
	ratingDiff int32
}

// Filter is the reused per-game state machine of §4.2/§9 "Visitor as a
// state machine". BeginGame resets only the mutable fields below; the
// bitmask and fixed lookups are not heap-allocated per game.
type Filter struct {
	wcn         WCNSource
	onQualify   func(QualifyingGame) error
	counters    map[string]int
	fastForward string // checkpoint game_id; games <= this are skipped

	// per-game mutable state
	fields        uint32
	skip          bool
	white         colorInfo
	black         colorInfo
	result        string
	utcDate       string
	utcTime       string
	timeControl   string
	termination   string
	gameID        string
	eventKind     model.TimeControlType
	moveCount     uint32
	winnerIsWhite bool
	lastMoveMate  bool
}

// QualifyingGame mirrors wcn.QualifyingGame; pgn does not import wcn to
// avoid a cycle, so the ingest driver adapts between the two.
type QualifyingGame struct {
	GameID        string
	Time          time.Time
	WinnerID      string
	LoserID       string
	WinnerIsWhite bool
	WinnerInfo    model.PlayerInfo
	LoserInfo     model.PlayerInfo
	MoveCount     uint32
	TimeControl   model.TimeControl
	Termination   model.Termination
}

// NewFilter builds a Filter that consults wcn for fast-skip decisions
// and invokes onQualify for every game that survives the header filter
// and the move-count check. fastForwardGameID is the persisted
// GameCheckpoint, or "" to start from the beginning of the archive.
func NewFilter(wcn WCNSource, fastForwardGameID string, onQualify func(QualifyingGame) error) *Filter {
	return &Filter{
		wcn:         wcn,
		onQualify:   onQualify,
		counters:    make(map[string]int),
		fastForward: fastForwardGameID,
	}
}

// Counters returns the skip-reason tallies accumulated so far (§7
// "skips are counted, not logged at warn").
func (f *Filter) Counters() map[string]int {
	return f.counters
}

func (f *Filter) count(reason string) {
	f.counters[reason]++
}

// BeginGame resets the mutable per-game fields. Called by the driving
// tokenizer before the first header of a new game.
func (f *Filter) BeginGame() {
	f.fields = 0
	f.skip = false
	f.white = colorInfo{}
	f.black = colorInfo{}
	f.result = ""
	f.utcDate = ""
	f.utcTime = ""
	f.timeControl = ""
	f.termination = ""
	f.gameID = ""
	f.moveCount = 0
	f.winnerIsWhite = false
}

// Header dispatches one (key, value) header pair. Unknown keys (e.g.
// Site's game-id suffix aside) are ignored; a duplicate key is not
// rejected, and its value overwrites the one seen before.
func (f *Filter) Header(key, value string) {
	if f.skip {
		return
	}
	switch key {
	case "Event":
		f.fields |= bitEvent
		kind, ok := ratedQualifyingEventKind(value)
		if !ok {
			f.skip = true
			f.count("skip:event")
		}
		f.eventKind = kind
	case "Site":
		f.fields |= bitSite
		f.gameID = siteToGameID(value)
	case "White":
		f.fields |= bitWhite
		f.white.id = value
		if value == "?" {
			f.skip = true
			f.count("skip:white_unregistered")
		}
	case "WhiteTitle":
		f.fields |= bitWhiteTitle
		f.white.title = value
	case "WhiteElo":
		f.fields |= bitWhiteElo
		if n, ok := parseInt32(value); ok {
			f.white.elo = n
		} else {
			f.skip = true
			f.count("skip:white_elo")
		}
	case "WhiteRatingDiff":
		f.fields |= bitWhiteRatingDiff
		if n, ok := parseInt32(value); ok {
			f.white.ratingDiff = n
		} else {
			f.skip = true
			f.count("skip:white_rating_diff")
		}
	case "Black":
		f.fields |= bitBlack
		f.black.id = value
		if value == "?" {
			f.skip = true
			f.count("skip:black_unregistered")
		}
		f.afterBlack()
	case "BlackTitle":
		f.fields |= bitBlackTitle
		f.black.title = value
	case "BlackElo":
		f.fields |= bitBlackElo
		if n, ok := parseInt32(value); ok {
			f.black.elo = n
		} else {
			f.skip = true
			f.count("skip:black_elo")
		}
	case "BlackRatingDiff":
		f.fields |= bitBlackRatingDiff
		if n, ok := parseInt32(value); ok {
			f.black.ratingDiff = n
		} else {
			f.skip = true
			f.count("skip:black_rating_diff")
		}
	case "Result":
		f.fields |= bitResult
		f.result = value
		if value != "1-0" && value != "0-1" {
			f.skip = true
			f.count("skip:result")
		}
	case "UTCDate":
		f.fields |= bitUTCDate
		f.utcDate = value
	case "UTCTime":
		f.fields |= bitUTCTime
		f.utcTime = value
	case "TimeControl":
		f.fields |= bitTimeControl
		f.timeControl = value
	case "Termination":
		f.fields |= bitTermination
		f.termination = value
		if value != "Normal" && value != "Time forfeit" {
			f.skip = true
			f.count("skip:termination")
		}
	}
}

// afterBlack applies the "equal WCN" fast-skip of §4.2 right after
// Black is parsed, before White/Black Elo and rating-diff headers are
// even read.
func (f *Filter) afterBlack() {
	if f.skip {
		return
	}
	whiteWCN, err := f.wcn.CurrentWCN(f.white.id)
	if err != nil {
		log.Errorf("pgn: wcn lookup for %q: %v", f.white.id, err)
		return
	}
	blackWCN, err := f.wcn.CurrentWCN(f.black.id)
	if err != nil {
		log.Errorf("pgn: wcn lookup for %q: %v", f.black.id, err)
		return
	}
	if whiteWCN == blackWCN {
		f.skip = true
		f.count("skip:erdos_fast_tie")
	}
}

// EndHeaders performs the bitmask-exactness check and the second
// fast-skip (winner <= loser+1), and returns whether move scanning
// should be skipped entirely for this game.
func (f *Filter) EndHeaders() bool {
	if f.skip {
		return true
	}
	if missing := mandatoryMask &^ f.fields; missing != 0 {
		f.skip = true
		// The only mandatory headers ever legitimately absent here are
		// the rating-diff pair: every other header handler already set
		// skip on a malformed/missing value as it was parsed (§4.2), so
		// reaching end-of-headers still missing anything else would be
		// a header the filter never saw at all, per
		// process_archive.rs:294-324's assert/skip pairing.
		if missing&^(bitWhiteRatingDiff|bitBlackRatingDiff) == 0 {
			f.count("cheater: missing rating diff")
		} else {
			f.count("skip:incomplete_headers")
		}
		return true
	}
	if f.gameID != "" && f.fastForward != "" && f.gameID <= f.fastForward {
		f.skip = true
		f.count("skip:checkpoint_fast_forward")
		return true
	}

	f.winnerIsWhite = f.result == "1-0"
	winnerID, loserID := f.black.id, f.white.id
	if f.winnerIsWhite {
		winnerID, loserID = f.white.id, f.black.id
	}
	winnerWCN, err := f.wcn.CurrentWCN(winnerID)
	if err != nil {
		log.Errorf("pgn: wcn lookup for %q: %v", winnerID, err)
		return true
	}
	loserWCN, err := f.wcn.CurrentWCN(loserID)
	if err != nil {
		log.Errorf("pgn: wcn lookup for %q: %v", loserID, err)
		return true
	}
	target := loserWCN
	if target != model.ErdosNumberInf {
		target++
	}
	if winnerWCN <= target {
		f.skip = true
		f.count("skip:erdos_slow_no_improvement")
		return true
	}
	return false
}

// San counts one played half-move and remembers whether it delivered
// checkmate, the signal used to classify termination in EndGame. Only
// called when EndHeaders returned false.
func (f *Filter) San(token string) {
	f.moveCount++
	f.lastMoveMate = strings.HasSuffix(token, "#")
}

// BeginVariation always skips — only the mainline is scanned for move
// count, mirroring the original Visitor's unconditional Skip(true).
func (f *Filter) BeginVariation() bool {
	return true
}

// EndGame finishes the game: applies the <20-half-move cutoff, then
// (if the game still qualifies) hands a QualifyingGame to onQualify.
func (f *Filter) EndGame() error {
	if f.skip {
		return nil
	}
	if f.moveCount < 20 {
		f.count("skip:too_short")
		return nil
	}

	t, err := parseUTCDateTime(f.utcDate, f.utcTime)
	if err != nil {
		f.count("skip:bad_datetime")
		return nil
	}

	winner, loser := f.black, f.white
	winnerInfo := model.PlayerInfo{Title: f.black.title, Rating: f.black.elo, RatingChange: f.black.ratingDiff}
	loserInfo := model.PlayerInfo{Title: f.white.title, Rating: f.white.elo, RatingChange: f.white.ratingDiff}
	if f.winnerIsWhite {
		winner, loser = f.white, f.black
		winnerInfo, loserInfo = loserInfo, winnerInfo
	}

	main, inc, ok := parseTimeControl(f.timeControl)
	if !ok {
		f.count("skip:bad_timecontrol")
		return nil
	}

	f.count("qualified")
	game := QualifyingGame{
		GameID:        f.gameID,
		Time:          t,
		WinnerID:      winner.id,
		LoserID:       loser.id,
		WinnerIsWhite: f.winnerIsWhite,
		WinnerInfo:    winnerInfo,
		LoserInfo:     loserInfo,
		MoveCount:     f.moveCount,
		TimeControl:   model.TimeControl{GameType: f.eventKind, MainSeconds: main, IncrementSeconds: inc},
		Termination:   f.classifyTermination(),
	}
	return f.onQualify(game)
}

// classifyTermination maps the header's coarse Termination field plus
// the last move's checkmate suffix onto the ErdosLink vocabulary of §3
// ({Checkmate, Resign, Time}), distinct from the header's own
// {Normal, Time forfeit} filter predicate.
func (f *Filter) classifyTermination() model.Termination {
	if f.lastMoveMate {
		return model.TerminationCheckmate
	}
	if f.termination == "Time forfeit" {
		return model.TerminationTime
	}
	return model.TerminationResign
}

func ratedQualifyingEventKind(event string) (model.TimeControlType, bool) {
	const prefix = "Rated "
	if !strings.HasPrefix(event, prefix) {
		return "", false
	}
	rest := event[len(prefix):]
	for kind, prefix := range map[model.TimeControlType]string{
		model.Blitz:     "Blitz ",
		model.Rapid:     "Rapid ",
		model.Classical: "Classical ",
	} {
		if strings.HasPrefix(rest, prefix) {
			return kind, true
		}
	}
	return "", false
}

// parseTimeControl splits a PGN TimeControl header ("300+3") into its
// main/increment seconds.
func parseTimeControl(tc string) (uint32, uint32, bool) {
	parts := strings.SplitN(tc, "+", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	main, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, false
	}
	inc, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, false
	}
	return uint32(main), uint32(inc), true
}

// siteToGameID extracts the trailing path segment of a Site URL
// ("https://lichess.org/AbCdEfGh" -> "AbCdEfGh"), the game id used for
// checkpoint comparisons since ids within an archive are lexicographic
// in time.
func siteToGameID(site string) string {
	if i := strings.LastIndexByte(site, '/'); i >= 0 {
		return site[i+1:]
	}
	return site
}

func parseInt32(s string) (int32, bool) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(n), true
}

func parseUTCDateTime(date, timeStr string) (time.Time, error) {
	return time.Parse("2006.01.02 15:04:05", date+" "+timeStr)
}
