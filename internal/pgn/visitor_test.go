// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pgn_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chess-erdos/wcnserver/internal/model"
	"github.com/chess-erdos/wcnserver/internal/pgn"
)

// fakeWCN reports a fixed WCN per display id, defaulting to infinity.
type fakeWCN map[string]uint32

func (f fakeWCN) CurrentWCN(id string) (uint32, error) {
	if id == "?" {
		return model.ErdosNumberInf, nil
	}
	if n, ok := f[id]; ok {
		return n, nil
	}
	return model.ErdosNumberInf, nil
}

func pgnGame(headers map[string]string, moves string) string {
	var sb strings.Builder
	for _, k := range []string{
		"Event", "Site", "White", "WhiteElo", "WhiteRatingDiff",
		"Black", "BlackElo", "BlackRatingDiff", "Result",
		"UTCDate", "UTCTime", "TimeControl", "Termination",
	} {
		if v, ok := headers[k]; ok {
			sb.WriteString(`[` + k + ` "` + v + `"]` + "\n")
		}
	}
	sb.WriteString("\n")
	sb.WriteString(moves)
	sb.WriteString("\n\n")
	return sb.String()
}

func baseHeaders() map[string]string {
	return map[string]string{
		"Event":           "Rated Blitz game",
		"Site":            "https://lichess.org/abcd1234",
		"White":           "U1",
		"WhiteElo":        "1500",
		"WhiteRatingDiff": "5",
		"Black":           "DrNykterstein",
		"BlackElo":        "2800",
		"BlackRatingDiff": "-5",
		"Result":          "1-0",
		"UTCDate":         "2024.01.15",
		"UTCTime":         "10:00:00",
		"TimeControl":     "300+3",
		"Termination":     "Normal",
	}
}

// twentyHalfMoves builds "1. e4 e5 2. e4 e5 ... 10. e4 e5 0-1" — ten
// full moves, twenty half-moves. The trailing "0-1" only ends the
// movetext; the winner is taken from the Result header (baseHeaders
// has "1-0", a White win).
func twentyHalfMoves() string {
	var sb strings.Builder
	for i := 1; i <= 10; i++ {
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString(". e4 e5 ")
	}
	sb.WriteString("0-1")
	return sb.String()
}

func runOneGame(t *testing.T, headers map[string]string, moves string, wcnSrc fakeWCN, fastForward string) *pgn.QualifyingGame {
	t.Helper()
	var got *pgn.QualifyingGame
	filter := pgn.NewFilter(wcnSrc, fastForward, func(g pgn.QualifyingGame) error {
		gCopy := g
		got = &gCopy
		return nil
	})
	scanner := pgn.NewScanner(strings.NewReader(pgnGame(headers, moves)))
	err := scanner.ScanGame(filter)
	require.NoError(t, err)
	return got
}

func TestQualifyingGameAccepted(t *testing.T) {
	wcnSrc := fakeWCN{"DrNykterstein": 0}
	got := runOneGame(t, baseHeaders(), twentyHalfMoves(), wcnSrc, "")
	require.NotNil(t, got)
	require.Equal(t, "U1", got.WinnerID)
	require.Equal(t, "DrNykterstein", got.LoserID)
	require.Equal(t, uint32(20), got.MoveCount)
}

func TestNineteenHalfMovesRejected(t *testing.T) {
	wcnSrc := fakeWCN{"DrNykterstein": 0}
	moves := twentyHalfMoves()
	// Drop the last move token to bring the count to 19.
	moves = strings.TrimSuffix(strings.TrimSpace(moves), "0-1")
	fields := strings.Fields(moves)
	moves = strings.Join(fields[:len(fields)-1], " ") + " 0-1"

	got := runOneGame(t, baseHeaders(), moves, wcnSrc, "")
	require.Nil(t, got)
}

func TestDrawIsSkipped(t *testing.T) {
	h := baseHeaders()
	h["Result"] = "1/2-1/2"
	got := runOneGame(t, h, twentyHalfMoves(), fakeWCN{}, "")
	require.Nil(t, got)
}

func TestUnregisteredPlayerSkipped(t *testing.T) {
	h := baseHeaders()
	h["White"] = "?"
	got := runOneGame(t, h, twentyHalfMoves(), fakeWCN{}, "")
	require.Nil(t, got)
}

func TestMissingRatingDiffSkipped(t *testing.T) {
	h := baseHeaders()
	delete(h, "WhiteRatingDiff")
	got := runOneGame(t, h, twentyHalfMoves(), fakeWCN{"DrNykterstein": 0}, "")
	require.Nil(t, got)
}

func TestEqualWCNFastSkip(t *testing.T) {
	wcnSrc := fakeWCN{"U1": 5, "DrNykterstein": 5}
	got := runOneGame(t, baseHeaders(), twentyHalfMoves(), wcnSrc, "")
	require.Nil(t, got)
}

func TestNonImprovingSkip(t *testing.T) {
	// Winner (Black=DrNykterstein, WCN 0) beating a loser (White=U1,
	// WCN 3): the winner's WCN (0) is already <= loser+1 (4), so no
	// improvement is possible.
	h := baseHeaders()
	h["Result"] = "0-1"
	wcnSrc := fakeWCN{"U1": 3, "DrNykterstein": 0}
	got := runOneGame(t, h, twentyHalfMoves(), wcnSrc, "")
	require.Nil(t, got)
}

func TestCheckpointFastForwardSkipsOldGames(t *testing.T) {
	wcnSrc := fakeWCN{"DrNykterstein": 0}
	got := runOneGame(t, baseHeaders(), twentyHalfMoves(), wcnSrc, "zzzzzzzz")
	require.Nil(t, got)
}
