package provision

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// State persists the identifiers of applied resources between runs. It is
// a record, not the source of idempotence: resources tolerate existing
// infrastructure on their own.
type State struct {
	Resources map[string]ResourceRecord `json:"resources"`
	Outputs   map[string]string         `json:"outputs,omitempty"`
}

// ResourceRecord captures when a resource was last applied.
type ResourceRecord struct {
	AppliedAt time.Time `json:"applied_at"`
}

// LoadState reads the state file, returning an empty state when the file
// does not exist yet.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{Resources: make(map[string]ResourceRecord)}, nil
		}
		return nil, fmt.Errorf("reading state file %s: %w", path, err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("state file %s is corrupt: %w", path, err)
	}
	if s.Resources == nil {
		s.Resources = make(map[string]ResourceRecord)
	}
	return &s, nil
}

// Mark records a resource as applied.
func (s *State) Mark(id string) {
	s.Resources[id] = ResourceRecord{AppliedAt: time.Now().UTC()}
}

// Has reports whether a resource was applied by a previous run.
func (s *State) Has(id string) bool {
	_, ok := s.Resources[id]
	return ok
}

// Save writes the state file. Secret outputs are filtered out before the
// state ever reaches this point.
func (s *State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing state file %s: %w", path, err)
	}
	return nil
}
