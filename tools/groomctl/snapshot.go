package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
)

var dashboardsBucket = []byte("dashboards")

// snapshotStore keeps the last printed dashboard per identity in a local
// bolt file, so `dashboard --state` can show something before the live
// session has loaded.
type snapshotStore struct {
	db *bolt.DB
}

func openSnapshotStore(path string) (*snapshotStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state file: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dashboardsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &snapshotStore{db: db}, nil
}

func (s *snapshotStore) Close() error { return s.db.Close() }

// Load returns the stored snapshot for key, if any.
func (s *snapshotStore) Load(key string) (dashboardSnapshot, bool, error) {
	var (
		snap  dashboardSnapshot
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(dashboardsBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &snap)
	})
	return snap, found, err
}

// Save stores snap under key. The timestamp is ignored when comparing, so an
// unchanged dashboard does not rewrite the file on every tick.
func (s *snapshotStore) Save(key string, snap dashboardSnapshot) (bool, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return false, err
	}
	cmp := snap
	cmp.At = time.Time{}
	cmpData, _ := json.Marshal(cmp)

	written := false
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dashboardsBucket)
		if prev := b.Get([]byte(key)); prev != nil {
			var old dashboardSnapshot
			if json.Unmarshal(prev, &old) == nil {
				old.At = time.Time{}
				if oldData, _ := json.Marshal(old); bytes.Equal(oldData, cmpData) {
					return nil
				}
			}
		}
		written = true
		return b.Put([]byte(key), data)
	})
	return written, err
}

func snapshotKey(role, userID, businessID string) string {
	return role + ":" + userID + ":" + businessID
}
