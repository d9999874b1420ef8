// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wcn

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/chess-erdos/wcnserver/internal/model"
	"github.com/chess-erdos/wcnserver/internal/store"
	"github.com/chess-erdos/wcnserver/pkg/log"
)

// ErrNotEnumerable is returned when (id, erdosNumber, pathIndex) does not
// address a chain — the id has no such meta entry, or pathIndex is out
// of [0, path_count).
var ErrNotEnumerable = errors.New("wcn: chain not enumerable")

// Chain walks the algorithm of §4.4: given (userID, erdosNumber,
// pathIndex), it selects exactly one of the path_count distinct chains
// proving userID's WCN and returns its links from the winner side down
// to a link whose loser is the champion.
func Chain(s *store.Store, userID string, erdosNumber uint32, pathIndex *big.Int) ([]model.ErdosChainLink, error) {
	lowerID := strings.ToLower(userID)

	u, ok, err := s.Users().Get(lowerID)
	if err != nil {
		return nil, fmt.Errorf("wcn.Chain: %w", err)
	}
	if !ok {
		return nil, ErrNotEnumerable
	}
	var meta *model.ErdosLinkMeta
	for i := range u.ErdosLinkMeta {
		if u.ErdosLinkMeta[i].ErdosNumber == erdosNumber {
			meta = &u.ErdosLinkMeta[i]
			break
		}
	}
	if meta == nil {
		return nil, ErrNotEnumerable
	}
	if pathIndex.Sign() < 0 || pathIndex.Cmp(meta.PathCount) >= 0 {
		return nil, ErrNotEnumerable
	}

	remaining := new(big.Int).Set(pathIndex)
	currentUser := lowerID
	result := make([]model.ErdosChainLink, 0, erdosNumber)

	for n := erdosNumber; n >= 1; n-- {
		var i uint32
		for {
			link, found, err := s.LinkAt(currentUser, n, i)
			if !found {
				if err != nil {
					return nil, fmt.Errorf("wcn.Chain: %w", err)
				}
				return nil, ErrNotEnumerable
			}
			log.Debugf("wcn.Chain: user=%s n=%d i=%d remaining=%s loser_path_count=%s",
				currentUser, n, i, remaining.String(), link.LoserPathCount.String())
			if link.LoserPathCount.Cmp(remaining) <= 0 {
				remaining.Sub(remaining, link.LoserPathCount)
				i++
				continue
			}
			result = append(result, model.ErdosChainLink{
				Link:       link,
				LinkNumber: i,
				PathNumber: new(big.Int).Set(remaining),
			})
			currentUser = strings.ToLower(link.LoserID)
			break
		}
	}
	return result, nil
}

// FirstChain returns the lexicographically-first chain for (userID,
// erdosNumber) — the walk of Chain with pathIndex fixed at 0 — used by
// the summary path to produce one representative chain per meta entry.
func FirstChain(s *store.Store, userID string, erdosNumber uint32) ([]model.ErdosChainLink, error) {
	return Chain(s, userID, erdosNumber, big.NewInt(0))
}

// AllChainsSummary returns userID's current WCN together with one
// representative chain (FirstChain) for each of its meta entries, per
// §4.4 "summary path".
type ChainSummary struct {
	ID     string                            `json:"id"`
	WCN    uint32                            `json:"erdos_number"`
	Chains map[uint32][]model.ErdosChainLink `json:"chains"`
}

func AllChainsSummary(s *store.Store, userID string) (*ChainSummary, error) {
	lowerID := strings.ToLower(userID)
	u, ok, err := s.Users().Get(lowerID)
	if err != nil {
		return nil, fmt.Errorf("wcn.AllChainsSummary: %w", err)
	}
	if !ok {
		return nil, ErrNotEnumerable
	}
	summary := &ChainSummary{
		ID:     u.ID,
		WCN:    u.WCN(),
		Chains: make(map[uint32][]model.ErdosChainLink, len(u.ErdosLinkMeta)),
	}
	for _, m := range u.ErdosLinkMeta {
		if m.ErdosNumber == 0 {
			continue
		}
		chain, err := FirstChain(s, lowerID, m.ErdosNumber)
		if err != nil {
			return nil, err
		}
		summary.Chains[m.ErdosNumber] = chain
	}
	return summary, nil
}
