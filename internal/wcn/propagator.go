// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wcn implements the WCN propagator (§4.3) and the chain
// expander (§4.4): the two algorithms that make incremental,
// chronologically-ordered updates to the witness-chain store correct.
package wcn

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/chess-erdos/wcnserver/internal/model"
	"github.com/chess-erdos/wcnserver/internal/store"
	"github.com/chess-erdos/wcnserver/pkg/log"
)

// ChampionID is the fixed identifier seeded with WCN 0 at ingestion
// startup. It is a configured constant rather than derived at runtime,
// following the original source's util.rs.
const ChampionID = "DrNykterstein"

// unknownID is the header sentinel for an unregistered player.
const unknownID = "?"

// QualifyingGame is one game that has already passed the header filter
// of §4.2 and is ready for propagation.
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

// Propagator is the single ingestion worker's process-local view of the
// store: one mutable WCN cache plus the shared store handle. It is not
// safe for concurrent use — §5 mandates a single ingestion goroutine.
type Propagator struct {
	s     *store.Store
	cache map[string]uint32
}

// New seeds the cache with the two fixed identities: the unregistered
// sentinel (∞) and the champion (0), per §4.3 "Cache".
func New(s *store.Store) *Propagator {
	return &Propagator{
		s: s,
		cache: map[string]uint32{
			unknownID:                   model.ErdosNumberInf,
			strings.ToLower(ChampionID): 0,
		},
	}
}

// EnsureChampion materializes the champion's row with its fixed meta
// entry {0, 0, 1} if it does not already exist. Called once at
// ingestion startup before the first archive is processed.
func (p *Propagator) EnsureChampion() error {
	lowerID := strings.ToLower(ChampionID)
	u, ok, err := p.s.Users().Get(lowerID)
	if err != nil {
		return err
	}
	if ok && len(u.ErdosLinkMeta) > 0 {
		return nil
	}
	u = model.User{
		ID: ChampionID,
		ErdosLinkMeta: []model.ErdosLinkMeta{
			{ErdosNumber: 0, LinkCount: 0, PathCount: big.NewInt(1)},
		},
	}
	return p.s.Users().Put(lowerID, u)
}

// latestWCN returns the cached WCN for lowerID, loading and caching it
// from the store on a cache miss.
func (p *Propagator) latestWCN(lowerID string) (uint32, error) {
	if n, ok := p.cache[lowerID]; ok {
		return n, nil
	}
	u, ok, err := p.s.Users().Get(lowerID)
	if err != nil {
		return 0, err
	}
	n := model.ErdosNumberInf
	if ok {
		n = u.WCN()
	}
	p.cache[lowerID] = n
	return n, nil
}

// wcnAtTime computes loser_wcn_at_t (§4.3 step 2): the erdos_number of
// the most recent meta entry whose link time is strictly before t, or
// ∞ if none. The champion is always 0. Meta entries are scanned
// most-recent-first, and the first entry with a corresponding link
// older than t is the answer; a meta entry's "time" is the time of any
// of its links (all witness links at one WCN may postdate each other,
// but the *first* link written at that number is the earliest, so link
// index 0 is used as the representative).
func (p *Propagator) wcnAtTime(lowerID string, t time.Time) (uint32, error) {
	if lowerID == strings.ToLower(ChampionID) {
		return 0, nil
	}
	u, ok, err := p.s.Users().Get(lowerID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return model.ErdosNumberInf, nil
	}
	for _, m := range u.ErdosLinkMeta {
		link, found, err := p.s.LinkAt(lowerID, m.ErdosNumber, 0)
		if err != nil {
			return 0, err
		}
		if found && link.Time.Before(t) {
			return m.ErdosNumber, nil
		}
	}
	return model.ErdosNumberInf, nil
}

// Apply runs §4.3 end-to-end for one qualifying game: load winner/loser,
// compute loser_wcn_at_t and winner_wcn, decide, and commit. Callers
// must already have checked the §4.2 fast-skip conditions; Apply itself
// still re-derives the authoritative comparison since those are only
// optimizations.
func (p *Propagator) Apply(g QualifyingGame) error {
	p.s.Mutex.Lock()
	defer p.s.Mutex.Unlock()

	winnerLower := strings.ToLower(g.WinnerID)
	loserLower := strings.ToLower(g.LoserID)

	loserWCNAtT, err := p.wcnAtTime(loserLower, g.Time)
	if err != nil {
		return fmt.Errorf("wcn.Apply: load loser wcn-at-time: %w", err)
	}

	winner, ok, err := p.s.Users().Get(winnerLower)
	if err != nil {
		return fmt.Errorf("wcn.Apply: load winner: %w", err)
	}
	if !ok {
		winner = model.User{ID: g.WinnerID}
	}
	winnerWCN := winner.WCN()

	loser, ok, err := p.s.Users().Get(loserLower)
	if err != nil {
		return fmt.Errorf("wcn.Apply: load loser: %w", err)
	}
	if !ok || loser.Head() == nil {
		return fmt.Errorf("wcn.Apply: loser %q has no WCN head at game %q: %w", g.LoserID, g.GameID, ErrInvariant)
	}
	loserHead := *loser.Head()

	target := loserWCNAtT
	if target != model.ErdosNumberInf {
		target++
	}

	switch {
	case winnerWCN > target:
		return p.applyNewNumber(g, winner, loserHead, target)
	case winnerWCN == target:
		return p.applyAdditionalWitness(g, winner, loserHead, target)
	default:
		return fmt.Errorf("wcn.Apply: winner %q wcn=%d <= loser+1=%d at game %q: %w",
			g.WinnerID, winnerWCN, target, g.GameID, ErrInvariant)
	}
}

// ErrInvariant marks a game that should have been rejected by the
// header filter reaching Apply anyway. Per spec.md §7(d) this is not a
// retryable condition: callers must treat it as fatal to the ingestion
// worker rather than logging and continuing to the next archive.
var ErrInvariant = fmt.Errorf("invariant violation: should have been skipped by the header filter")

func (p *Propagator) applyNewNumber(g QualifyingGame, winner model.User, loserHead model.ErdosLinkMeta, n uint32) error {
	newMeta := model.ErdosLinkMeta{
		ErdosNumber: n,
		LinkCount:   1,
		PathCount:   new(big.Int).Set(loserHead.PathCount),
	}
	// The display id's casing is first-seen-wins (§9 open question iii):
	// winner.ID only needs setting here for a user with no prior row.
	if winner.ID == "" {
		winner.ID = g.WinnerID
	}
	winner.ErdosLinkMeta = append([]model.ErdosLinkMeta{newMeta}, winner.ErdosLinkMeta...)

	link := model.ErdosLink{
		WinnerID:       winner.LowerID(),
		ErdosNumber:    n,
		LinkIndex:      0,
		LoserID:        g.LoserID,
		LoserLinkCount: loserHead.LinkCount,
		LoserPathCount: new(big.Int).Set(loserHead.PathCount),
		Time:           g.Time,
		WinnerInfo:     g.WinnerInfo,
		LoserInfo:      g.LoserInfo,
		GameID:         g.GameID,
		MoveCount:      g.MoveCount,
		WinnerIsWhite:  g.WinnerIsWhite,
		TimeControl:    g.TimeControl,
		Termination:    g.Termination,
	}

	if err := p.s.CommitGameUpdate(link, winner, g.GameID); err != nil {
		return fmt.Errorf("wcn.applyNewNumber: %w", err)
	}
	p.cache[winner.LowerID()] = n
	log.Debugf("wcn: %s improved to WCN %d via game %s", g.WinnerID, n, g.GameID)
	return nil
}

func (p *Propagator) applyAdditionalWitness(g QualifyingGame, winner model.User, loserHead model.ErdosLinkMeta, n uint32) error {
	head := winner.Head()
	if head == nil || head.ErdosNumber != n {
		return fmt.Errorf("wcn.applyAdditionalWitness: winner head mismatch for %q: %w", g.WinnerID, ErrInvariant)
	}
	newLinkIndex := head.LinkCount
	head.LinkCount++
	head.PathCount = new(big.Int).Add(head.PathCount, loserHead.PathCount)

	link := model.ErdosLink{
		WinnerID:       winner.LowerID(),
		ErdosNumber:    n,
		LinkIndex:      newLinkIndex,
		LoserID:        g.LoserID,
		LoserLinkCount: loserHead.LinkCount,
		LoserPathCount: new(big.Int).Set(loserHead.PathCount),
		Time:           g.Time,
		WinnerInfo:     g.WinnerInfo,
		LoserInfo:      g.LoserInfo,
		GameID:         g.GameID,
		MoveCount:      g.MoveCount,
		WinnerIsWhite:  g.WinnerIsWhite,
		TimeControl:    g.TimeControl,
		Termination:    g.Termination,
	}

	if err := p.s.CommitGameUpdate(link, winner, g.GameID); err != nil {
		return fmt.Errorf("wcn.applyAdditionalWitness: %w", err)
	}
	p.cache[winner.LowerID()] = n
	log.Debugf("wcn: %s gains witness %d at WCN %d via game %s", g.WinnerID, newLinkIndex, n, g.GameID)
	return nil
}

// CurrentWCN exposes the in-memory cache to the header filter's
// fast-skip optimizations (§4.2), falling back to a store load on miss.
func (p *Propagator) CurrentWCN(displayID string) (uint32, error) {
	if displayID == unknownID {
		return model.ErdosNumberInf, nil
	}
	return p.latestWCN(strings.ToLower(displayID))
}
