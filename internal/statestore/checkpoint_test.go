package statestore

import (
	"context"
	"encoding/json"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/riptide-project/riptide/internal/config"
	"github.com/riptide-project/riptide/internal/types"
)

func testCheckpointConfig(t *testing.T, compress bool) config.StateStoreConfig {
	t.Helper()
	return config.StateStoreConfig{
		CheckpointDir:      t.TempDir(),
		CheckpointCompress: compress,
	}
}

func sampleEntries(t *testing.T) []*types.FrontierEntry {
	t.Helper()
	var entries []*types.FrontierEntry
	for _, raw := range []string{"https://example.com/a", "https://example.com/b", "https://other.com/c"} {
		req, err := types.NewCrawlRequest(raw)
		if err != nil {
			t.Fatal(err)
		}
		req.Depth = 2
		req.Priority = types.PriorityHigh
		entries = append(entries, &types.FrontierEntry{Request: req, Priority: req.Priority})
	}
	return entries
}

func TestCheckpointRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		m := NewCheckpointManager(testCheckpointConfig(t, compress))

		seen := []string{"https://example.com/a", "https://example.com/seen"}
		id, err := m.CreateCheckpoint(sampleEntries(t), seen, 42, 12345)
		if err != nil {
			t.Fatalf("compress=%v: create: %v", compress, err)
		}
		if !m.HasCheckpoint(id) {
			t.Fatal("checkpoint should exist after create")
		}

		entries, seenBack, pages, bytesUsed, err := m.RestoreFromCheckpoint(id)
		if err != nil {
			t.Fatalf("compress=%v: restore: %v", compress, err)
		}
		if len(entries) != 3 {
			t.Errorf("restored %d entries, want 3", len(entries))
		}
		if entries[0].Request.URL.String() != "https://example.com/a" {
			t.Errorf("first entry = %s", entries[0].Request.URL)
		}
		if entries[0].Request.Depth != 2 || entries[0].Request.Priority != types.PriorityHigh {
			t.Error("depth/priority not preserved")
		}
		if len(seenBack) != 2 || seenBack[1] != "https://example.com/seen" {
			t.Errorf("seen URLs = %v", seenBack)
		}
		if pages != 42 || bytesUsed != 12345 {
			t.Errorf("counters = %d/%d, want 42/12345", pages, bytesUsed)
		}
	}
}

func TestRestoreFailsOnCRCMismatch(t *testing.T) {
	cfg := testCheckpointConfig(t, false)
	m := NewCheckpointManager(cfg)

	id, err := m.CreateCheckpoint(sampleEntries(t), nil, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	// Corrupt the payload on disk while keeping the envelope valid JSON.
	path := filepath.Join(cfg.CheckpointDir, id+".checkpoint")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk onDiskCheckpoint
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatal(err)
	}
	if len(onDisk.Payload) == 0 {
		t.Fatal("empty payload")
	}
	onDisk.Payload[0] ^= 0xFF
	if crc32.ChecksumIEEE(onDisk.Payload) == onDisk.CRC32 {
		t.Fatal("corruption did not change the checksum")
	}
	corrupted, _ := json.Marshal(onDisk)
	if err := os.WriteFile(path, corrupted, 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, _, _, err = m.RestoreFromCheckpoint(id)
	if err == nil {
		t.Fatal("restore must fail on CRC mismatch")
	}
	if !strings.Contains(err.Error(), "CRC32") {
		t.Errorf("error %q should name the integrity failure", err)
	}
}

func TestRestoreMissingCheckpoint(t *testing.T) {
	m := NewCheckpointManager(testCheckpointConfig(t, false))
	if _, _, _, _, err := m.RestoreFromCheckpoint("no-such-id"); err == nil {
		t.Error("restoring a missing checkpoint must error")
	}
}

func TestDeleteCheckpoint(t *testing.T) {
	m := NewCheckpointManager(testCheckpointConfig(t, false))
	id, err := m.CreateCheckpoint(nil, nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteCheckpoint(id); err != nil {
		t.Fatal(err)
	}
	if m.HasCheckpoint(id) {
		t.Error("checkpoint should be gone")
	}
	// Deleting twice is not an error.
	if err := m.DeleteCheckpoint(id); err != nil {
		t.Errorf("double delete: %v", err)
	}
}

// --- sessions (in-memory path; Redis is exercised only when configured) ---

func TestSessionLifecycle(t *testing.T) {
	s := NewSessionStore(config.StateStoreConfig{SessionTTL: time.Minute})
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != types.SessionActive {
		t.Errorf("status = %v, want active", sess.Status)
	}

	got, ok := s.GetSession(ctx, sess.ID)
	if !ok {
		t.Fatal("created session should be retrievable")
	}
	if got.UserID != "user-1" {
		t.Errorf("user = %q", got.UserID)
	}

	if err := s.UpdateSessionData(ctx, sess.ID, map[string]string{"k": "v"}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetSession(ctx, sess.ID)
	if got.Data["k"] != "v" {
		t.Errorf("session update law violated: data[k] = %q, want v", got.Data["k"])
	}

	if err := s.TerminateSession(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.GetSession(ctx, sess.ID); ok {
		t.Error("terminated session must not be retrievable")
	}
}

func TestSessionExpiresOnAccess(t *testing.T) {
	s := NewSessionStore(config.StateStoreConfig{SessionTTL: time.Millisecond})
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok := s.GetSession(ctx, sess.ID); ok {
		t.Error("expired session must not be returned")
	}
}

func TestGetUnknownSession(t *testing.T) {
	s := NewSessionStore(config.StateStoreConfig{SessionTTL: time.Minute})
	if _, ok := s.GetSession(context.Background(), "missing"); ok {
		t.Error("unknown session id must miss")
	}
}
