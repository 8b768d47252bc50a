package persona

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/debatehub/types"
)

// File is the on-disk persona document.
//
//	personas:
//	  - id: facilitator
//	    name: Facilitator
//	    ...
type File struct {
	Personas []Persona `yaml:"personas"`
}

// Load parses a YAML persona document and builds a validated registry.
// Unknown fields are rejected.
func Load(r io.Reader) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read personas: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, types.NewError(types.ErrInvalidPersona, "persona document is empty")
		}
		return nil, types.NewError(types.ErrInvalidPersona, "malformed persona document").WithCause(err)
	}
	return NewRegistry(f.Personas...)
}

// LoadFile reads personas from path.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open persona file: %w", err)
	}
	defer f.Close()
	return Load(f)
}
