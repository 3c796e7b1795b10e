package dsl

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tessera-flow/tessera/engine/internal/engine/graph"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

var (
	ErrEmptyDocument = errors.New("workflow definition is empty")
	ErrDecode        = errors.New("cannot decode workflow definition")
	ErrDuplicateID   = errors.New("duplicate workflow definition id")
)

var extensions = []string{".yaml", ".yml", ".json"}

// Parse decodes and validates a single workflow definition. Unknown fields
// are rejected so that misspelled keys do not silently disappear
func Parse(data []byte) (*api.WorkflowDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	def := doc.definition()
	if _, err := graph.Build(def); err != nil {
		return nil, err
	}
	return def, nil
}

// LoadFile reads and parses the definition stored at path
func LoadFile(path string) (*api.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// LoadDir parses every definition file in dir, in file name order. Two
// files declaring the same workflow id are rejected
func LoadDir(dir string) ([]*api.WorkflowDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var res []*api.WorkflowDefinition
	seen := map[api.WorkflowID]string{}
	for _, e := range entries {
		if e.IsDir() || !isDefinitionFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		def, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[def.ID]; ok {
			return nil, fmt.Errorf("%w: %s in %s and %s",
				ErrDuplicateID, def.ID, prev, path)
		}
		seen[def.ID] = path
		res = append(res, def)
	}
	return res, nil
}

// Marshal renders a definition as YAML
func Marshal(def *api.WorkflowDefinition) ([]byte, error) {
	return yaml.Marshal(def)
}

func isDefinitionFile(name string) bool {
	return slices.Contains(extensions, strings.ToLower(filepath.Ext(name)))
}
