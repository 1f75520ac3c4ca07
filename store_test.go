package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSnapshotRoundTrip(t *testing.T) {
	cfg := &Config{dataDir: t.TempDir()}
	s := newStore(cfg)

	view, err := s.CreateParty("p1", "Alice")
	require.NoError(t, err)
	_, err = s.JoinParty(view.Code, "p2", "Bob")
	require.NoError(t, err)

	require.NoError(t, s.writeSnapshot())

	reloaded := newStore(cfg)
	require.Equal(t, 1, reloaded.count())

	p := reloaded.get(view.ID)
	require.NotNil(t, p)
	assert.Equal(t, view.Code, p.Code)
	assert.Equal(t, StageCollecting, p.Stage)
	assert.Len(t, p.Members, 2)
	assert.Equal(t, 0, p.Scores["p2"])
}

func TestStoreCorruptSnapshot(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, storeFileName), []byte("{not json"), 0o644))

	s := newStore(&Config{dataDir: dataDir})
	assert.Equal(t, 0, s.count())

	// The store must still be usable afterwards.
	_, err := s.CreateParty("p1", "Alice")
	require.NoError(t, err)
	assert.Equal(t, 1, s.count())
}

func TestStoreShapelessSnapshot(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, storeFileName), []byte(`{"something":"else"}`), 0o644))

	s := newStore(&Config{dataDir: dataDir})
	assert.Equal(t, 0, s.count())
}

func TestStoreMissingSnapshot(t *testing.T) {
	s := newStore(&Config{dataDir: t.TempDir()})
	assert.Equal(t, 0, s.count())
}

func TestStoreUniqueCodes(t *testing.T) {
	s := newStore(&Config{dataDir: t.TempDir()})

	codes := make(map[string]bool)
	for i := 0; i < 50; i++ {
		view, err := s.CreateParty("p1", "Alice")
		require.NoError(t, err)

		assert.False(t, codes[view.Code], "join code %s issued twice", view.Code)
		codes[view.Code] = true
	}
}

func TestStoreAfterChangeNotifies(t *testing.T) {
	s := newStore(&Config{dataDir: t.TempDir()})

	var notified []string
	s.notify = func(partyID string) {
		notified = append(notified, partyID)
	}

	view, err := s.CreateParty("p1", "Alice")
	require.NoError(t, err)
	_, err = s.JoinParty(view.Code, "p2", "Bob")
	require.NoError(t, err)

	require.Len(t, notified, 2)
	assert.Equal(t, view.ID, notified[0])
	assert.Equal(t, view.ID, notified[1])
}

func TestStoreAsyncPersist(t *testing.T) {
	cfg := &Config{dataDir: t.TempDir()}
	s := newStore(cfg)

	_, err := s.CreateParty("p1", "Alice")
	require.NoError(t, err)

	// The mutation queues a write; the saver goroutine lands it shortly.
	path := filepath.Join(cfg.dataDir, storeFileName)
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}
