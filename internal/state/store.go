// Package state persists per-workspace session state between runs.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mlilback/rc2SwiftClient-sub000/pkg/models"
)

var bucketSessionState = []byte("session_state")

// Store keeps one models.SessionState per workspace in a bbolt file.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("state db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessionState)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func key(workspaceID int) []byte {
	return []byte(strconv.Itoa(workspaceID))
}

// Load returns the saved state, or models.NewSessionState if there is none.
func (s *Store) Load(workspaceID int) (models.SessionState, error) {
	state := models.NewSessionState()
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSessionState).Get(key(workspaceID))
		if len(raw) == 0 {
			return nil
		}
		var err error
		state, err = models.UnmarshalSessionState(raw)
		return err
	})
	if err != nil {
		return models.SessionState{}, fmt.Errorf("load state for workspace %d: %w", workspaceID, err)
	}
	return state, nil
}

func (s *Store) Save(workspaceID int, state models.SessionState) error {
	raw, err := state.Marshal()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessionState).Put(key(workspaceID), raw)
	})
}

func (s *Store) Delete(workspaceID int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessionState).Delete(key(workspaceID))
	})
}

// Workspaces lists the workspace ids with saved state.
func (s *Store) Workspaces() ([]int, error) {
	var ids []int
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessionState).ForEach(func(k, _ []byte) error {
			id, err := strconv.Atoi(string(k))
			if err != nil {
				return nil
			}
			ids = append(ids, id)
			return nil
		})
	})
	sort.Ints(ids)
	return ids, err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
