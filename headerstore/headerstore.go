// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package headerstore provides persistent storage for block headers
// retrieved from an ElectrumX server, keyed by block height
package headerstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	// ErrHeaderNotFound is returned when no header exists for a height
	ErrHeaderNotFound = errors.New("header not found")

	// ErrClosed is returned when operating on a closed store
	ErrClosed = errors.New("header store closed")
)

// Bucket names for BoltDB
var (
	// bucketHeaders stores raw header payloads keyed by height
	bucketHeaders = []byte("headers")

	// bucketMetadata stores store-level metadata
	bucketMetadata = []byte("metadata")
)

// Metadata keys
var keyTipHeight = []byte("tip_height")

// Config holds header store configuration options
type Config struct {
	// Path is the file path for the store database
	Path string

	// NoSync disables fsync after each write (faster but less durable)
	NoSync bool

	// OpenTimeout bounds how long to wait for the database file lock
	OpenTimeout time.Duration
}

// DefaultConfig returns the default header store configuration
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		NoSync:      false,
		OpenTimeout: 5 * time.Second,
	}
}

// Store is a bbolt-backed block header store
type Store struct {
	mutex  sync.Mutex
	db     *bolt.DB
	closed bool
}

// Open opens (creating if necessary) a header store at the configured path
func Open(cfg Config) (*Store, error) {
	db, err := bolt.Open(
		cfg.Path,
		0o600,
		&bolt.Options{Timeout: cfg.OpenTimeout},
	)
	if err != nil {
		return nil, fmt.Errorf("open header store: %w", err)
	}
	db.NoSync = cfg.NoSync
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketHeaders); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMetadata)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init header store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database. Safe to call multiple times
func (s *Store) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// PutHeader stores the raw header payload for a height, advancing the tip if
// the height is beyond it
func (s *Store) PutHeader(height uint64, raw []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketHeaders).Put(heightKey(height), raw); err != nil {
			return err
		}
		meta := tx.Bucket(bucketMetadata)
		if tip := meta.Get(keyTipHeight); tip != nil {
			if height <= binary.BigEndian.Uint64(tip) {
				return nil
			}
		}
		return meta.Put(keyTipHeight, heightKey(height))
	})
}

// GetHeader returns the raw header payload stored for a height
func (s *Store) GetHeader(height uint64) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(bucketHeaders).Get(heightKey(height))
		if val == nil {
			return ErrHeaderNotFound
		}
		raw = make([]byte, len(val))
		copy(raw, val)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// HasHeader returns true if a header is stored for the height
func (s *Store) HasHeader(height uint64) bool {
	raw, err := s.GetHeader(height)
	return err == nil && raw != nil
}

// TipHeight returns the highest stored header height
func (s *Store) TipHeight() (uint64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	var tip uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(bucketMetadata).Get(keyTipHeight)
		if val == nil {
			return ErrHeaderNotFound
		}
		tip = binary.BigEndian.Uint64(val)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return tip, nil
}

func heightKey(height uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, height)
	return key
}
