// File: internal/monitor/history.go

// Package monitor supervises the running service: periodic health probes,
// periodic log analysis, and bounded self-remediation cycles with an
// append-only history and a human-readable audit trail.
package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// History is the append-only record of evolution cycles. Records are never
// mutated after Append; the whole history is flushed to disk on every append
// so a crash loses at most the in-flight cycle.
type History struct {
	mu     sync.Mutex
	cycles []schemas.EvolutionCycle
	path   string
	logger *zap.Logger
}

// NewHistory loads any existing history from path. A missing file starts an
// empty history; an unreadable one is an error so records are never silently
// overwritten.
func NewHistory(path string, logger *zap.Logger) (*History, error) {
	h := &History{path: path, logger: logger.Named("history")}
	if path == "" {
		return h, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &h.cycles); err != nil {
		return nil, fmt.Errorf("parsing history %s: %w", path, err)
	}
	return h, nil
}

// Append records one completed cycle, assigning its sequence number, ID and
// timestamp, and persists the history. The stored record is returned.
func (h *History) Append(cycle schemas.EvolutionCycle) (schemas.EvolutionCycle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cycle.Cycle = len(h.cycles) + 1
	cycle.ID = uuid.NewString()
	cycle.Timestamp = time.Now().UTC()
	h.cycles = append(h.cycles, cycle)

	if err := h.persistLocked(); err != nil {
		return cycle, err
	}
	h.logger.Info("Cycle recorded",
		zap.Int("cycle", cycle.Cycle),
		zap.String("trigger", string(cycle.Trigger)),
		zap.String("result", string(cycle.Result)),
	)
	return cycle, nil
}

// Count returns the number of recorded cycles.
func (h *History) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.cycles)
}

// Cycles returns a copy of all records in append order.
func (h *History) Cycles() []schemas.EvolutionCycle {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]schemas.EvolutionCycle, len(h.cycles))
	copy(out, h.cycles)
	return out
}

func (h *History) persistLocked() error {
	if h.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(h.cycles, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}

	// Write-then-rename so a crash mid-write never corrupts the history.
	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, h.path)
}
