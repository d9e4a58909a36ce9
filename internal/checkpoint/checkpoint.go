// Package checkpoint persists ingestion progress so an interrupted run
// resumes without reprocessing or duplicating committed source units.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mfukata/kensho/internal/model"
)

// ErrCorrupt marks a checkpoint file that exists but cannot be parsed.
// Resumption state is ambiguous, so the run must not guess; an operator
// has to inspect or remove the file.
var ErrCorrupt = errors.New("checkpoint file is corrupt")

// Store reads and writes the single checkpoint file. Mutated only by the
// pipeline driver, one unit at a time.
type Store struct {
	path string
	cp   *model.IngestionCheckpoint
}

// NewStore creates a checkpoint store backed by the given file path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the persisted checkpoint, or a fresh one when no file
// exists. A present-but-unparseable file returns ErrCorrupt.
func (s *Store) Load() (*model.IngestionCheckpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.cp = model.NewCheckpoint()
			return s.cp, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp model.IngestionCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if cp.CompletedUnits == nil {
		cp.CompletedUnits = make(map[string]int)
	}
	if cp.FailedUnits == nil {
		cp.FailedUnits = make(map[string]string)
	}

	s.cp = &cp
	return s.cp, nil
}

// MarkCompleted records a fully committed unit. Idempotent: re-marking an
// already-completed unit is a no-op, since operators may re-run a unit
// deliberately.
func (s *Store) MarkCompleted(unitID string, recordCount int) {
	if s.cp == nil {
		s.cp = model.NewCheckpoint()
	}
	if _, done := s.cp.CompletedUnits[unitID]; done {
		return
	}
	s.cp.CompletedUnits[unitID] = recordCount
	s.cp.TotalCommittedRecords += recordCount
	delete(s.cp.FailedUnits, unitID)
	s.cp.TotalFailedUnits = len(s.cp.FailedUnits)
	s.cp.UpdatedAt = time.Now().UTC()
}

// RecordFailure notes a unit that failed permanently. Re-recording the
// same unit in a later run updates its message without counting it again.
func (s *Store) RecordFailure(unitID string, cause error) {
	if s.cp == nil {
		s.cp = model.NewCheckpoint()
	}
	s.cp.FailedUnits[unitID] = cause.Error()
	s.cp.TotalFailedUnits = len(s.cp.FailedUnits)
	s.cp.LastError = fmt.Sprintf("%s: %v", unitID, cause)
	s.cp.UpdatedAt = time.Now().UTC()
}

// Persist writes the checkpoint atomically: a temp file in the same
// directory is renamed over the target, so a crash mid-write never leaves
// a half-written file behind for the next Load.
func (s *Store) Persist() error {
	if s.cp == nil {
		return nil
	}

	data, err := json.MarshalIndent(s.cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}
