package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Checkpoint tracks the last processed block of one cursor.
type Checkpoint struct {
	LastProcessedBlock uint64 `json:"last_processed_block"`
	UpdatedAt          string `json:"updated_at"`
}

// FileCursor persists cursors to a JSON file. It backs dry runs that have no database.
type FileCursor struct {
	path string
	mu   sync.Mutex
}

func NewFileCursor(path string) *FileCursor {
	return &FileCursor{path: path}
}

func (c *FileCursor) LoadCursor(_ context.Context, name string) (uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	checkpoints, err := c.load()
	if err != nil {
		return 0, false, err
	}
	cp, ok := checkpoints[name]
	return cp.LastProcessedBlock, ok, nil
}

// AdvanceCursor records block for name unless a later block is already stored.
func (c *FileCursor) AdvanceCursor(_ context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("cursor name required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	checkpoints, err := c.load()
	if err != nil {
		return err
	}
	if cp, ok := checkpoints[name]; ok && cp.LastProcessedBlock >= block {
		return nil
	}
	checkpoints[name] = Checkpoint{
		LastProcessedBlock: block,
		UpdatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
	}
	return c.save(checkpoints)
}

func (c *FileCursor) load() (map[string]Checkpoint, error) {
	stat, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]Checkpoint), nil
		}
		return nil, fmt.Errorf("stat checkpoint: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("checkpoint path is a directory")
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	checkpoints := make(map[string]Checkpoint)
	if err := json.Unmarshal(data, &checkpoints); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return checkpoints, nil
}

func (c *FileCursor) save(checkpoints map[string]Checkpoint) error {
	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	data, err := json.Marshal(checkpoints)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}

	return nil
}
