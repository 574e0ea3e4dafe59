package forager

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/colonyops/forager/pkg/fsx"
)

// State is the advisory run snapshot persisted after each batch. The
// status command reads it; the orchestration loop never depends on it.
type State struct {
	Active         bool      `json:"active"`
	CurrentBatch   int       `json:"current_batch"`
	TotalBatches   int       `json:"total_batches"`
	ItemsProcessed int       `json:"items_processed"`
	ItemsCompleted int       `json:"items_completed"`
	ItemsFailed    int       `json:"items_failed"`
	StartedAt      time.Time `json:"started_at"`
	LastCheckpoint time.Time `json:"last_checkpoint"`
}

// StateFile persists run state as JSON at a fixed path.
type StateFile struct {
	path string
}

// NewStateFile creates a StateFile at path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Path returns the state file location.
func (f *StateFile) Path() string { return f.path }

// Save writes the state atomically.
func (f *StateFile) Save(s State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return fsx.WriteAtomic(f.path, data, 0o644)
}

// Load reads the persisted state. A missing file returns ErrNoState.
func (f *StateFile) Load() (State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, ErrNoState
		}
		return State{}, fmt.Errorf("read state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("parse state: %w", err)
	}
	return s, nil
}

// ErrNoState indicates no run has persisted state yet.
var ErrNoState = fmt.Errorf("no run state found")
