package ml

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CheckpointStore persists a component's parameters, tagged by iteration.
type CheckpointStore interface {
	Save(component string, iteration int, params []*Param) error
}

// GobCheckpointStore writes one gob file per component and iteration:
// <Dir>/<component>.<iteration>.gob
type GobCheckpointStore struct {
	Dir string
}

type paramBlob struct {
	Name  string
	Value *Matrix
}

type checkpointData struct {
	Component string
	Iteration int
	Params    []paramBlob
}

func (s GobCheckpointStore) Path(component string, iteration int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s.%d.gob", component, iteration))
}

func (s GobCheckpointStore) Save(component string, iteration int, params []*Param) error {
	if s.Dir != "" {
		if err := os.MkdirAll(s.Dir, 0o755); err != nil {
			return err
		}
	}
	data := checkpointData{Component: component, Iteration: iteration}
	for _, p := range params {
		data.Params = append(data.Params, paramBlob{Name: p.Name, Value: p.Value})
	}
	return saveGob(s.Path(component, iteration), data)
}

// saveGob writes v to path. Encode and close errors are both reported.
func saveGob(path string, v any) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(file).Encode(v); err != nil {
		file.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return errors.Wrapf(file.Close(), "close %s", path)
}

// Load reads a checkpoint into params. Every shape is validated before any
// value is overwritten, so a mismatched file leaves params untouched.
func (s GobCheckpointStore) Load(component string, iteration int, params []*Param) error {
	path := s.Path(component, iteration)
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var loaded checkpointData
	if err := gob.NewDecoder(file).Decode(&loaded); err != nil {
		return errors.Wrapf(err, "failed to decode checkpoint %s", path)
	}

	// --- VALIDATION STEP ---
	if loaded.Component != component {
		return errors.Errorf("checkpoint %s holds component %q, want %q", path, loaded.Component, component)
	}
	if len(loaded.Params) != len(params) {
		return errors.Wrapf(ErrShapeMismatch, "architecture mismatch: %d parameters, checkpoint has %d",
			len(params), len(loaded.Params))
	}
	for i, p := range params {
		lp := loaded.Params[i]
		if lp.Name != p.Name {
			return errors.Errorf("parameter %d: expected %s, got %s", i, p.Name, lp.Name)
		}
		if lp.Value == nil || lp.Value.rows != p.Value.rows || lp.Value.cols != p.Value.cols {
			got := "nil"
			if lp.Value != nil {
				got = fmt.Sprintf("[%d, %d]", lp.Value.rows, lp.Value.cols)
			}
			return errors.Wrapf(ErrShapeMismatch, "%s: expected [%d, %d], got %s",
				p.Name, p.Value.rows, p.Value.cols, got)
		}
	}

	// --- APPLICATION STEP ---
	for i, p := range params {
		copy(p.Value.data, loaded.Params[i].Value.data)
	}
	return nil
}

// Latest returns the highest iteration saved for component, or -1.
func (s GobCheckpointStore) Latest(component string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, component+".*.gob"))
	if err != nil {
		return -1, err
	}
	latest := -1
	for _, m := range matches {
		tag := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), component+"."), ".gob")
		it, err := strconv.Atoi(tag)
		if err != nil {
			continue
		}
		if it > latest {
			latest = it
		}
	}
	return latest, nil
}
