package wakeword

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Manifest maps persona keys to model files within the model
// directory. A default model backs personas whose own file is missing.
type Manifest struct {
	DefaultModel string            `yaml:"default_model"`
	Personas     map[string]string `yaml:"personas"`
}

// LoadManifest reads and parses the persona manifest at path.
func LoadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("%w: read manifest: %v", ErrModelLoad, err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: parse manifest %s: %v", ErrModelLoad, path, err)
	}
	if len(m.Personas) == 0 {
		return m, fmt.Errorf("%w: manifest %s declares no personas", ErrModelLoad, path)
	}
	return m, nil
}

// PersonaKeys returns the manifest's persona keys in sorted order.
func (m Manifest) PersonaKeys() []string {
	keys := make([]string, 0, len(m.Personas))
	for k := range m.Personas {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// resolveModels loads one model per persona, applying the fallback
// chain: persona file, then the manifest default model. Personas whose
// chain is exhausted are dropped. Resolution happens once at startup;
// the returned map is fixed for the process lifetime.
func resolveModels(dir string, m Manifest) (map[string]*Model, []error) {
	var errs []error
	models := make(map[string]*Model, len(m.Personas))

	var fallback *Model
	if m.DefaultModel != "" {
		def, err := LoadModel(filepath.Join(dir, m.DefaultModel))
		if err != nil {
			errs = append(errs, fmt.Errorf("default model: %w", err))
		} else {
			fallback = def
		}
	}

	for _, persona := range m.PersonaKeys() {
		file := m.Personas[persona]
		model, err := LoadModel(filepath.Join(dir, file))
		if err == nil {
			models[persona] = model
			continue
		}
		errs = append(errs, fmt.Errorf("persona %s: %w", persona, err))
		if fallback != nil {
			models[persona] = fallback
		}
	}
	return models, errs
}
