package controller

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/G-grbz/argusSyS/model"
)

// loadState reads the persisted controller state. A missing or corrupt
// file yields defaults and ok=false; startup never fails on state.
func loadState(path string) (st model.PersistedState, ok bool) {
	if path == "" {
		return model.PersistedState{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.PersistedState{}, false
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return model.PersistedState{}, false
	}
	return st, true
}

// saveState writes the state document atomically via a temp file rename.
func saveState(path string, st model.PersistedState) error {
	if path == "" {
		return errors.New("no state file configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create state dir")
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "create temp state file")
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "encode state")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "close temp state file")
	}

	return errors.Wrap(os.Rename(tmp, path), "rename state file")
}
