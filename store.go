/*
Copyright © 2026 iknowur contributors
*/

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const storeFileName = "store.json"

// snapshot is the on-disk shape of the store.
type snapshot struct {
	Parties map[string]*Party `json:"parties"`
}

// Store owns every Party aggregate, keyed by id with a secondary lookup by
// join code. Mutations go through the aggregate's own lock; the store lock
// only guards the map itself.
//
// Persistence and change notification are fire-and-forget side effects: a
// buffered channel wakes a single writer goroutine, and failures are logged,
// never propagated. Clients reconcile by re-fetching, so a lost write or a
// lost notification costs latency, not correctness.
type Store struct {
	mu      sync.RWMutex
	parties map[string]*Party

	cfg   *Config
	path  string
	saves chan struct{}

	// notify fans a change out to sessions watching the party. Nil when no
	// notifier is wired (tests).
	notify func(partyID string)
}

func newStore(cfg *Config) *Store {
	s := &Store{
		parties: make(map[string]*Party),
		cfg:     cfg,
		path:    filepath.Join(cfg.dataDir, storeFileName),
		saves:   make(chan struct{}, 1),
	}

	s.load()
	go s.saver()

	return s
}

// load reads the snapshot file, treating a missing, corrupt, or shapeless
// file as an empty store rather than a fatal condition.
func (s *Store) load() {
	if err := os.MkdirAll(s.cfg.dataDir, 0o755); err != nil {
		logf(s.cfg, "STORE: Unable to create data dir %q: %v", s.cfg.dataDir, err)
		return
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logf(s.cfg, "STORE: Snapshot load failed: %v", err)
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		logf(s.cfg, "STORE: Snapshot corrupt, starting empty: %v", err)
		return
	}
	if snap.Parties == nil {
		return
	}

	s.parties = snap.Parties
	logf(s.cfg, "STORE: Loaded %d parties from %s", len(s.parties), s.path)
}

// saver is the single snapshot writer. Coalescing through a 1-buffered
// channel means a burst of mutations produces one write of the latest state.
func (s *Store) saver() {
	for range s.saves {
		if err := s.writeSnapshot(); err != nil {
			logf(s.cfg, "STORE: Snapshot write failed: %v", err)
		}
	}
}

// writeSnapshot marshals the full store and writes it via a temp-file
// rename. Every party lock is held during marshaling so a concurrent
// mutation can't tear an aggregate mid-encode.
func (s *Store) writeSnapshot() error {
	s.mu.RLock()
	for _, p := range s.parties {
		p.mu.Lock()
	}

	data, err := json.MarshalIndent(snapshot{Parties: s.parties}, "", "  ")

	for _, p := range s.parties {
		p.mu.Unlock()
	}
	s.mu.RUnlock()

	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, s.path)
}

// afterChange triggers the post-commit side effects for a mutated party:
// queue a snapshot write and notify watching sessions. Neither blocks and
// neither can fail the mutation.
func (s *Store) afterChange(partyID string) {
	select {
	case s.saves <- struct{}{}:
	default:
	}

	if s.notify != nil {
		s.notify(partyID)
	}
}

func (s *Store) get(partyID string) *Party {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.parties[partyID]
}

func (s *Store) byCode(code string) *Party {
	code = strings.ToUpper(strings.TrimSpace(code))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.parties {
		if p.Code == code {
			return p
		}
	}
	return nil
}

// add stores a new party under a join code guaranteed unique at insertion
// time. Code generation and insertion share one critical section so two
// concurrent creates can't race into the same code.
func (s *Store) add(p *Party) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		code := randomPartyCode()
		if !s.codeInUseLocked(code) {
			p.Code = code
			break
		}
	}

	s.parties[p.ID] = p
}

func (s *Store) codeInUseLocked(code string) bool {
	for _, p := range s.parties {
		if p.Code == code {
			return true
		}
	}
	return false
}

func (s *Store) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.parties)
}
