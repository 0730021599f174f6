// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package identitymap

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spoolease/bridge/pkg/log"
)

type state struct {
	LastSyncTime *time.Time         `json:"last_sync_time"`
	Mappings     map[string]Mapping `json:"mappings"`
}

// Store is a JSON-file-backed, concurrency-safe store of tag-id <-> server
// spool mappings. Unlike the single-threaded original, the coordinator's
// poll loop and event loop run as concurrent goroutines, so every access is
// guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	filePath string
	state    state
}

// New returns a Store backed by filePath. Call Load before first use.
func New(filePath string) *Store {
	return &Store{
		filePath: filePath,
		state:    state{Mappings: make(map[string]Mapping)},
	}
}

// Load reads mapping state from disk. A missing file starts fresh; a
// corrupt file is logged and discarded rather than treated as fatal, since
// the mapping can always be rebuilt from Server B's extra fields.
func (s *Store) Load() error {
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Infof("identitymap: no mapping file found at %s, starting fresh", s.filePath)
			return nil
		}
		return err
	}

	var loaded state
	if err := json.Unmarshal(raw, &loaded); err != nil {
		log.Errorf("identitymap: failed to parse mapping file %s: %s — starting fresh", s.filePath, err.Error())
		s.mu.Lock()
		s.state = state{Mappings: make(map[string]Mapping)}
		s.mu.Unlock()
		return nil
	}
	if loaded.Mappings == nil {
		loaded.Mappings = make(map[string]Mapping)
	}

	s.mu.Lock()
	s.state = loaded
	s.mu.Unlock()
	log.Infof("identitymap: loaded %d spool mappings from %s", len(loaded.Mappings), s.filePath)
	return nil
}

// Save writes mapping state to disk atomically: write to a temp file in the
// same directory, then rename over the target, so a crash mid-write never
// leaves a half-written mapping file.
func (s *Store) Save() error {
	s.mu.Lock()
	now := time.Now().UTC()
	s.state.LastSyncTime = &now
	data, err := json.MarshalIndent(s.state, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.filePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.filePath)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// GetByTagID returns the mapping for tagID, if any.
func (s *Store) GetByTagID(tagID string) (Mapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.state.Mappings[tagID]
	return m, ok
}

// GetByServerSpoolID returns the mapping for a given Server B spool ID, if any.
func (s *Store) GetByServerSpoolID(serverSpoolID int) (Mapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.state.Mappings {
		if m.ServerSpoolID == serverSpoolID {
			return m, true
		}
	}
	return Mapping{}, false
}

// Put inserts or replaces the mapping for m.TagID.
func (s *Store) Put(m Mapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Mappings[m.TagID] = m
}

// RemoveByTagID removes the mapping for tagID, if present.
func (s *Store) RemoveByTagID(tagID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.Mappings, tagID)
}

// RemoveByServerSpoolID removes every mapping pointing at serverSpoolID.
func (s *Store) RemoveByServerSpoolID(serverSpoolID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tagID, m := range s.state.Mappings {
		if m.ServerSpoolID == serverSpoolID {
			delete(s.state.Mappings, tagID)
		}
	}
}

// Len reports the number of mappings currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.Mappings)
}

// LastSyncTime returns the timestamp loaded from the file or recorded by
// the most recent Save, if any. Save records it before writing, so a Save
// whose write fails still updates it.
func (s *Store) LastSyncTime() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.LastSyncTime == nil {
		return time.Time{}, false
	}
	return *s.state.LastSyncTime, true
}

// RebuildFromServerSpools reconstructs mappings from Server B's spool
// records when the local mapping file has been lost. spools must already
// have their extra fields decoded by the server client. Returns the number
// of mappings recovered.
func (s *Store) RebuildFromServerSpools(spools []ServerSpool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	recovered := 0
	now := time.Now().UTC()
	for _, sp := range spools {
		if sp.TagID == "" {
			continue
		}
		s.state.Mappings[sp.TagID] = Mapping{
			TagID:             sp.TagID,
			DeviceSpoolID:     sp.DeviceSpoolID,
			ServerSpoolID:     sp.ServerSpoolID,
			ServerFilamentID:  sp.ServerFilamentID,
			LastKnownConsumed: sp.UsedWeight,
			CreatedAt:         now,
		}
		recovered++
	}
	if recovered > 0 {
		log.Infof("identitymap: rebuilt %d mappings from server extra fields", recovered)
	}
	return recovered
}
