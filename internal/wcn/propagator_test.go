// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wcn_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chess-erdos/wcnserver/internal/model"
	"github.com/chess-erdos/wcnserver/internal/store"
	"github.com/chess-erdos/wcnserver/internal/wcn"
)

func newPropagator(t *testing.T) (*store.Store, *wcn.Propagator) {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	p := wcn.New(s)
	require.NoError(t, p.EnsureChampion())
	return s, p
}

func game(gameID, winnerID, loserID string, when time.Time) wcn.QualifyingGame {
	return wcn.QualifyingGame{
		GameID:        gameID,
		Time:          when,
		WinnerID:      winnerID,
		LoserID:       loserID,
		WinnerIsWhite: false,
		MoveCount:     40,
		TimeControl:   model.TimeControl{GameType: model.Blitz, MainSeconds: 300, IncrementSeconds: 3},
		Termination:   model.TerminationResign,
	}
}

// Scenario 1: cold start, single game.
func TestScenario1ColdStartSingleGame(t *testing.T) {
	s, p := newPropagator(t)
	_, err := s.GetOrCreateUser("u1", "U1")
	require.NoError(t, err)

	require.NoError(t, p.Apply(game("g1", "U1", wcn.ChampionID, mustTime("2024-01-15T10:00:00Z"))))

	u1, ok, err := s.Users().Get("u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, u1.ErdosLinkMeta, 1)
	require.Equal(t, uint32(1), u1.ErdosLinkMeta[0].ErdosNumber)
	require.Equal(t, uint32(1), u1.ErdosLinkMeta[0].LinkCount)
	require.Equal(t, int64(1), u1.ErdosLinkMeta[0].PathCount.Int64())

	link, found, err := s.LinkAt("u1", 1, 0)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, wcn.ChampionID, link.LoserID)
}

// Scenario 2: second witness at the same number.
func TestScenario2SecondWitness(t *testing.T) {
	s, p := newPropagator(t)
	_, err := s.GetOrCreateUser("u1", "U1")
	require.NoError(t, err)

	require.NoError(t, p.Apply(game("g1", "U1", wcn.ChampionID, mustTime("2024-01-15T10:00:00Z"))))
	require.NoError(t, p.Apply(game("g2", "U1", wcn.ChampionID, mustTime("2024-02-10T10:00:00Z"))))

	u1, ok, err := s.Users().Get("u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, u1.ErdosLinkMeta, 1)
	require.Equal(t, uint32(2), u1.ErdosLinkMeta[0].LinkCount)
	require.Equal(t, int64(2), u1.ErdosLinkMeta[0].PathCount.Int64())

	_, found, err := s.LinkAt("u1", 1, 1)
	require.NoError(t, err)
	require.True(t, found)
}

// Scenario 3: second hop and path multiplication.
func TestScenario3SecondHopPathMultiplication(t *testing.T) {
	s, p := newPropagator(t)
	_, err := s.GetOrCreateUser("u1", "U1")
	require.NoError(t, err)
	_, err = s.GetOrCreateUser("u2", "U2")
	require.NoError(t, err)

	require.NoError(t, p.Apply(game("g1", "U1", wcn.ChampionID, mustTime("2024-01-15T10:00:00Z"))))
	require.NoError(t, p.Apply(game("g2", "U1", wcn.ChampionID, mustTime("2024-02-10T10:00:00Z"))))

	require.NoError(t, p.Apply(game("g3", "U2", "U1", mustTime("2024-03-01T10:00:00Z"))))
	u2, ok, err := s.Users().Get("u2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(2), u2.ErdosLinkMeta[0].ErdosNumber)
	require.Equal(t, uint32(1), u2.ErdosLinkMeta[0].LinkCount)
	require.Equal(t, int64(2), u2.ErdosLinkMeta[0].PathCount.Int64())

	require.NoError(t, p.Apply(game("g4", "U2", "U1", mustTime("2024-03-02T10:00:00Z"))))
	u2, ok, err = s.Users().Get("u2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(2), u2.ErdosLinkMeta[0].LinkCount)
	require.Equal(t, int64(4), u2.ErdosLinkMeta[0].PathCount.Int64())
}

// Scenario 4: a non-improving game must not produce a link, and Apply's
// invariant guard returns an error if it somehow reaches the propagator
// (the header filter is expected to have skipped it already).
func TestScenario4NonImprovingGameIsInvariantViolation(t *testing.T) {
	s, p := newPropagator(t)
	_, err := s.GetOrCreateUser("u1", "U1")
	require.NoError(t, err)
	_, err = s.GetOrCreateUser("u2", "U2")
	require.NoError(t, err)
	_, err = s.GetOrCreateUser("u3", "U3")
	require.NoError(t, err)

	require.NoError(t, p.Apply(game("g1", "U1", wcn.ChampionID, mustTime("2024-01-15T10:00:00Z"))))
	require.NoError(t, p.Apply(game("g2", "U2", "U1", mustTime("2024-02-01T10:00:00Z"))))
	require.NoError(t, p.Apply(game("g3", "U3", "U2", mustTime("2024-02-05T10:00:00Z"))))

	// U3 now holds WCN 3; U2 (WCN 2) beating U3 cannot improve anyone,
	// since U2 is already below U3+1 = 4, and must never reach Apply in
	// production (the header
	// filter's fast-skip would have caught it) — here it demonstrates
	// Apply's own invariant guard.
	err = p.Apply(game("g4", "U2", "U3", mustTime("2024-02-06T10:00:00Z")))
	require.Error(t, err)
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
