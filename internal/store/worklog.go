package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const workflowFile = "workflow-log.json"

// WorkflowLog keeps a free-form list of workflow notes, newest first, in its
// own snapshot file next to the photo collection. It backs the /api/logs
// surface and shares nothing with the per-photo histories.
type WorkflowLog struct {
	mu   sync.Mutex
	path string
}

// NewWorkflowLog prepares the snapshot file inside dataDir.
func NewWorkflowLog(dataDir string) (*WorkflowLog, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	w := &WorkflowLog{path: filepath.Join(dataDir, workflowFile)}
	if _, err := os.Stat(w.path); errors.Is(err, os.ErrNotExist) {
		if err := w.writeAll([]string{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat workflow log: %w", err)
	}
	return w, nil
}

// List returns every line, newest first.
func (w *WorkflowLog) List() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.readAll()
}

// Append prepends a line so the most recent note always reads first, then
// returns the updated list.
func (w *WorkflowLog) Append(line string) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	lines, err := w.readAll()
	if err != nil {
		return nil, err
	}
	next := append([]string{line}, lines...)
	if err := w.writeAll(next); err != nil {
		return nil, err
	}
	return next, nil
}

// Clear discards every line.
func (w *WorkflowLog) Clear() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeAll([]string{})
}

func (w *WorkflowLog) readAll() ([]string, error) {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read workflow log: %w", err)
	}
	if len(raw) == 0 {
		return []string{}, nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("decode workflow log: %w", err)
	}
	return lines, nil
}

func (w *WorkflowLog) writeAll(lines []string) error {
	payload, err := json.MarshalIndent(lines, "", "  ")
	if err != nil {
		return fmt.Errorf("encode workflow log: %w", err)
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o640); err != nil {
		return fmt.Errorf("write workflow log: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("replace workflow log: %w", err)
	}
	return nil
}
