package wcn_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chess-erdos/wcnserver/internal/wcn"
)

// Scenario 6: after scenario 3's two U2-vs-U1 wins (path_count=4),
// GET /api/chain/U2/2/3 must return 2 entries: link (u2,2,1) with
// path_number=1, then link (u1,1,1) with path_number=0.
func TestScenario6ChainExpansion(t *testing.T) {
	s, p := newPropagator(t)
	_, err := s.GetOrCreateUser("u1", "U1")
	require.NoError(t, err)
	_, err = s.GetOrCreateUser("u2", "U2")
	require.NoError(t, err)

	require.NoError(t, p.Apply(game("g1", "U1", wcn.ChampionID, mustTime("2024-01-15T10:00:00Z"))))
	require.NoError(t, p.Apply(game("g2", "U1", wcn.ChampionID, mustTime("2024-02-10T10:00:00Z"))))
	require.NoError(t, p.Apply(game("g3", "U2", "U1", mustTime("2024-03-01T10:00:00Z"))))
	require.NoError(t, p.Apply(game("g4", "U2", "U1", mustTime("2024-03-02T10:00:00Z"))))

	chain, err := wcn.Chain(s, "U2", 2, big.NewInt(3))
	require.NoError(t, err)
	require.Len(t, chain, 2)

	require.Equal(t, uint32(1), chain[0].LinkNumber)
	require.Equal(t, int64(1), chain[0].PathNumber.Int64())
	require.Equal(t, "U1", chain[0].Link.LoserID)

	require.Equal(t, uint32(1), chain[1].LinkNumber)
	require.Equal(t, int64(0), chain[1].PathNumber.Int64())
	require.Equal(t, wcn.ChampionID, chain[1].Link.LoserID)
}

func TestChainPathIndexOutOfRangeIsNotEnumerable(t *testing.T) {
	s, p := newPropagator(t)
	_, err := s.GetOrCreateUser("u1", "U1")
	require.NoError(t, err)

	require.NoError(t, p.Apply(game("g1", "U1", wcn.ChampionID, mustTime("2024-01-15T10:00:00Z"))))

	_, err = wcn.Chain(s, "U1", 1, big.NewInt(1))
	require.ErrorIs(t, err, wcn.ErrNotEnumerable)

	_, err = wcn.Chain(s, "U1", 1, big.NewInt(0))
	require.NoError(t, err)
}
