package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mintExchange/internal/model"
)

// FailureLog appends dispatch failures to a JSONL file so they can be replayed.
type FailureLog struct {
	path string
	mu   sync.Mutex
}

func NewFailureLog(path string) *FailureLog {
	return &FailureLog{path: path}
}

// Record appends one failure as a JSON line.
func (s *FailureLog) Record(failure model.DispatchFailure) error {
	if s == nil || s.path == "" {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create failure dir: %w", err)
		}
	}

	line, err := json.Marshal(failure)
	if err != nil {
		return fmt.Errorf("marshal failure: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open failure log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write failure: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush failure log: %w", err)
	}
	return nil
}

// ReadFailures loads every failure recorded at path.
func ReadFailures(path string) ([]model.DispatchFailure, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open failure log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var out []model.DispatchFailure
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var failure model.DispatchFailure
		if err := json.Unmarshal(raw, &failure); err != nil {
			return nil, fmt.Errorf("parse failure line %d: %w", line, err)
		}
		out = append(out, failure)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan failure log: %w", err)
	}
	return out, nil
}
