// Package progress persists run checkpoints. The latest checkpoint is a
// single JSON file overwritten atomically; every checkpoint is additionally
// appended to a JSONL history log for auditing token spend across runs.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/oukeidos/polysub/internal/files"
)

// Record is one durable snapshot of run progress. LastIndex is the end of
// the last fully-collected batch ("last attempted"); failed items inside
// that range are rediscovered by the missing-language scan, not by the
// checkpoint.
type Record struct {
	Languages         string    `json:"languages"`
	LastIndex         int       `json:"last_index"`
	Model             string    `json:"model"`
	TotalInputTokens  int       `json:"total_input_tokens"`
	TotalOutputTokens int       `json:"total_output_tokens"`
	RunID             string    `json:"run_id"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Store writes checkpoints and history for one run.
type Store struct {
	checkpointPath string
	historyPath    string
	runID          string
}

// NewStore creates a progress store. Each store gets a fresh run ID so
// history lines from different runs can be told apart.
func NewStore(checkpointPath, historyPath string) (*Store, error) {
	if checkpointPath == "" || historyPath == "" {
		return nil, fmt.Errorf("checkpoint and history paths are required")
	}
	return &Store{
		checkpointPath: checkpointPath,
		historyPath:    historyPath,
		runID:          uuid.NewString(),
	}, nil
}

// RunID returns the identifier stamped on this store's records.
func (s *Store) RunID() string {
	return s.runID
}

// WriteCheckpoint overwrites the latest checkpoint atomically.
func (s *Store) WriteCheckpoint(r Record) error {
	r.RunID = s.runID
	r.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return files.AtomicWrite(s.checkpointPath, data, 0600)
}

// AppendHistory appends the record to the unbounded history log.
func (s *Store) AppendHistory(r Record) error {
	r.RunID = s.runID
	r.UpdatedAt = time.Now().UTC()
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}
	return files.AppendLine(s.historyPath, line, 0600)
}

// LoadCheckpoint reads the latest checkpoint. The second return value is
// false when no checkpoint exists yet.
func (s *Store) LoadCheckpoint() (Record, bool, error) {
	data, err := os.ReadFile(s.checkpointPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, false, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	return r, true, nil
}
