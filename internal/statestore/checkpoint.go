package statestore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"

	"github.com/riptide-project/riptide/internal/config"
	"github.com/riptide-project/riptide/internal/types"
)

// checkpointFrontierEntry is the serializable shape of a FrontierEntry.
type checkpointFrontierEntry struct {
	URL       string `json:"url"`
	Depth     int    `json:"depth"`
	Priority  int    `json:"priority"`
	ParentURL string `json:"parent_url,omitempty"`
}

// checkpointPayload is the crawl state a Checkpoint snapshots.
type checkpointPayload struct {
	Timestamp time.Time                 `json:"timestamp"`
	Frontier  []checkpointFrontierEntry `json:"frontier"`
	SeenURLs  []string                  `json:"seen_urls"`
	PagesDone int64                     `json:"pages_done"`
	BytesUsed int64                     `json:"bytes_used"`
}

// onDiskCheckpoint is the file format: a CRC32 of the (possibly compressed)
// payload so a truncated or corrupted write is detected on restore rather
// than silently producing garbage state.
type onDiskCheckpoint struct {
	ID         string `json:"id"`
	CRC32      uint32 `json:"crc32"`
	Compressed bool   `json:"compressed"`
	Payload    []byte `json:"payload"`
}

// CheckpointManager saves and restores crawl state, checkpointing is
// best-effort and process-local: it survives a process restart on the same
// machine, not a distributed durability guarantee.
type CheckpointManager struct {
	dir      string
	compress bool
}

func NewCheckpointManager(cfg config.StateStoreConfig) *CheckpointManager {
	dir := cfg.CheckpointDir
	if dir == "" {
		dir = ".riptide_checkpoints"
	}
	return &CheckpointManager{dir: dir, compress: cfg.CheckpointCompress}
}

// CreateCheckpoint snapshots frontier/seen-URL/budget state to disk and
// returns the checkpoint id.
func (m *CheckpointManager) CreateCheckpoint(entries []*types.FrontierEntry, seenURLs []string, pagesDone, bytesUsed int64) (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("statestore: create checkpoint dir: %w", err)
	}

	payload := checkpointPayload{
		Timestamp: time.Now(),
		SeenURLs:  seenURLs,
		PagesDone: pagesDone,
		BytesUsed: bytesUsed,
	}
	for _, e := range entries {
		if e == nil || e.Request == nil || e.Request.URL == nil {
			continue
		}
		payload.Frontier = append(payload.Frontier, checkpointFrontierEntry{
			URL:       e.Request.URL.String(),
			Depth:     e.Request.Depth,
			Priority:  int(e.Request.Priority),
			ParentURL: e.Request.ParentURL,
		})
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("statestore: marshal checkpoint: %w", err)
	}

	compressed := false
	body := raw
	if m.compress {
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return "", fmt.Errorf("statestore: lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return "", fmt.Errorf("statestore: lz4 close: %w", err)
		}
		body = buf.Bytes()
		compressed = true
	}

	id := uuid.NewString()
	onDisk := onDiskCheckpoint{ID: id, CRC32: crc32.ChecksumIEEE(body), Compressed: compressed, Payload: body}

	wrapped, err := json.Marshal(onDisk)
	if err != nil {
		return "", fmt.Errorf("statestore: marshal checkpoint envelope: %w", err)
	}

	tmp := filepath.Join(m.dir, id+".tmp")
	final := filepath.Join(m.dir, id+".checkpoint")
	if err := os.WriteFile(tmp, wrapped, 0o644); err != nil {
		return "", fmt.Errorf("statestore: write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("statestore: rename checkpoint: %w", err)
	}
	return id, nil
}

// RestoreFromCheckpoint loads and verifies the checkpoint by id, returning
// the reconstructed frontier entries, seen-URL set, and budget counters.
// A CRC32 mismatch is reported as an error rather than returning partial
// state.
func (m *CheckpointManager) RestoreFromCheckpoint(id string) ([]*types.FrontierEntry, []string, int64, int64, error) {
	path := filepath.Join(m.dir, id+".checkpoint")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, 0, 0, fmt.Errorf("statestore: read checkpoint: %w", err)
	}

	var onDisk onDiskCheckpoint
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		return nil, nil, 0, 0, fmt.Errorf("statestore: decode checkpoint envelope: %w", err)
	}
	if crc32.ChecksumIEEE(onDisk.Payload) != onDisk.CRC32 {
		return nil, nil, 0, 0, fmt.Errorf("statestore: checkpoint %s failed CRC32 check, refusing to restore", id)
	}

	body := onDisk.Payload
	if onDisk.Compressed {
		r := lz4.NewReader(bytes.NewReader(onDisk.Payload))
		decompressed, err := io.ReadAll(r)
		if err != nil {
			return nil, nil, 0, 0, fmt.Errorf("statestore: lz4 decompress: %w", err)
		}
		body = decompressed
	}

	var payload checkpointPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, 0, 0, fmt.Errorf("statestore: decode checkpoint payload: %w", err)
	}

	entries := make([]*types.FrontierEntry, 0, len(payload.Frontier))
	for i, cf := range payload.Frontier {
		req, err := types.NewCrawlRequest(cf.URL)
		if err != nil {
			continue
		}
		req.Depth = cf.Depth
		req.Priority = types.Priority(cf.Priority)
		req.ParentURL = cf.ParentURL
		entries = append(entries, &types.FrontierEntry{Request: req, Priority: req.Priority, Sequence: uint64(i)})
	}

	return entries, payload.SeenURLs, payload.PagesDone, payload.BytesUsed, nil
}

// HasCheckpoint reports whether a checkpoint with the given id exists.
func (m *CheckpointManager) HasCheckpoint(id string) bool {
	_, err := os.Stat(filepath.Join(m.dir, id+".checkpoint"))
	return err == nil
}

// DeleteCheckpoint removes a checkpoint file.
func (m *CheckpointManager) DeleteCheckpoint(id string) error {
	err := os.Remove(filepath.Join(m.dir, id+".checkpoint"))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
