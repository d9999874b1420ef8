// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/chess-erdos/wcnserver/internal/model"
)

// Users returns the users column family, keyed by lowercase id.
func (s *Store) Users() Collection[string, model.User] {
	return newCollection[string, model.User](s, cfUsers, encodeUserKey)
}

// ErdosLinks returns the erdos_links column family, keyed by
// (winner_id_lowercase, erdos_number, link_index).
func (s *Store) ErdosLinks() Collection[ErdosLinkKey, model.ErdosLink] {
	return newCollection[ErdosLinkKey, model.ErdosLink](s, cfErdosLinks, encodeErdosLinkKey)
}

// ServerMeta returns the last_processed_archive singleton.
func (s *Store) ServerMeta() Collection[struct{}, model.ServerMetadata] {
	return newCollection[struct{}, model.ServerMetadata](s, cfLastProcessedArchive, encodeUnitKey)
}

// Checkpoint returns the game_checkpoint singleton.
func (s *Store) Checkpoint() Collection[struct{}, model.GameCheckpoint] {
	return newCollection[struct{}, model.GameCheckpoint](s, cfGameCheckpoint, encodeUnitKey)
}

// LinkAt loads the link at (winnerID, erdosNumber, linkIndex), for the
// chain expander's point lookups (lock-free per §4.5).
func (s *Store) LinkAt(winnerID string, erdosNumber, linkIndex uint32) (model.ErdosLink, bool, error) {
	return s.ErdosLinks().Get(ErdosLinkKey{WinnerID: winnerID, ErdosNumber: erdosNumber, LinkIndex: linkIndex})
}

// GetOrCreateUser loads the user at lowerID, creating and persisting an
// empty row lazily if absent — the "materialized the first time they
// appear in a header" lifecycle rule of §3.
func (s *Store) GetOrCreateUser(lowerID, displayID string) (model.User, error) {
	users := s.Users()
	u, ok, err := users.Get(lowerID)
	if err != nil {
		return model.User{}, err
	}
	if ok {
		return u, nil
	}
	u = model.User{ID: displayID}
	if err := users.Put(lowerID, u); err != nil {
		return model.User{}, fmt.Errorf("store.GetOrCreateUser: %w", err)
	}
	return u, nil
}

// CommitGameUpdate atomically writes the link row, the winner's updated
// user row, and the checkpoint in one badger transaction, in that order
// so a crash between them leaves only an orphan link (harmless, per
// §4.3/§4.5) rather than a meta entry pointing at a missing link.
//
// Callers must hold s.Mutex for the whole read-decide-write sequence;
// CommitGameUpdate only performs the write half.
func (s *Store) CommitGameUpdate(link model.ErdosLink, winner model.User, checkpointGameID string) error {
	links := s.ErdosLinks()
	users := s.Users()
	checkpoint := s.Checkpoint()

	linkKey := ErdosLinkKey{WinnerID: winner.LowerID(), ErdosNumber: link.ErdosNumber, LinkIndex: link.LinkIndex}
	linkRaw, err := links.Encode(link)
	if err != nil {
		return err
	}
	userRaw, err := users.Encode(winner)
	if err != nil {
		return err
	}
	checkpointRaw, err := checkpoint.Encode(model.GameCheckpoint{GameID: checkpointGameID})
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(links.NamespacedKey(linkKey), linkRaw); err != nil {
			return err
		}
		if err := txn.Set(users.NamespacedKey(winner.LowerID()), userRaw); err != nil {
			return err
		}
		return txn.Set(checkpoint.NamespacedKey(struct{}{}), checkpointRaw)
	})
	if err != nil {
		return fmt.Errorf("store.CommitGameUpdate: %w", err)
	}
	return nil
}

// CommitArchiveDone clears the checkpoint and overwrites the
// last-processed-archive marker in one transaction, the §4.1 per-archive
// commit point.
func (s *Store) CommitArchiveDone(archiveID string) error {
	checkpoint := s.Checkpoint()
	meta := s.ServerMeta()
	metaRaw, err := meta.Encode(model.ServerMetadata{LastProcessedArchive: archiveID})
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(checkpoint.NamespacedKey(struct{}{})); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(meta.NamespacedKey(struct{}{}), metaRaw)
	})
	if err != nil {
		return fmt.Errorf("store.CommitArchiveDone: %w", err)
	}
	return nil
}
