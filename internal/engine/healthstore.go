package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/masa-finance/resilient-engine/api/types"
)

const healthFileName = "handler_health.json"

// HealthStore persists the handler health map as a single JSON file under the
// data directory. There is no in-memory cache: the file is re-read at the
// start of every execution and re-written after every mutation, so a restart
// or a second reader always sees the latest persisted state.
type HealthStore struct {
	path string
}

func NewHealthStore(dataDir string) *HealthStore {
	return &HealthStore{
		path: filepath.Join(dataDir, healthFileName),
	}
}

// Path returns the location of the persisted state file.
func (hs *HealthStore) Path() string {
	return hs.path
}

// Load reads the persisted health state. A missing or unreadable file is a
// cold start: every handler is healthy, so an empty state is returned and the
// caller proceeds normally.
func (hs *HealthStore) Load() types.HealthState {
	data, err := os.ReadFile(hs.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.Warnf("Failed to read health state from %s: %v", hs.path, err)
		}
		return types.HealthState{}
	}

	state := types.HealthState{}
	if err := json.Unmarshal(data, &state); err != nil {
		logrus.Warnf("Corrupt health state in %s, starting fresh: %v", hs.path, err)
		return types.HealthState{}
	}
	return state
}

// Save persists the full health state, creating the data directory if needed.
// The file is written indented so operators can inspect it directly.
func (hs *HealthStore) Save(state types.HealthState) error {
	if err := os.MkdirAll(filepath.Dir(hs.path), 0o755); err != nil {
		return fmt.Errorf("error creating data directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshalling health state: %w", err)
	}

	if err := os.WriteFile(hs.path, data, 0o644); err != nil {
		return fmt.Errorf("error writing health state: %w", err)
	}
	return nil
}
