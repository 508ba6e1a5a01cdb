// Package catalog loads data source catalogs from YAML, validates them, and
// serves read-only field lookups from an atomically swapped registry.
package catalog

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/reportbuilder/model"
)

// Loader scans directories for YAML catalog files, parses them, and computes
// SHA-256 checksums.
type Loader struct{}

// NewLoader creates a new catalog Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadAll recursively scans directories for *.yaml and *.yml files and parses
// each into a CatalogDefinition.
func (l *Loader) LoadAll(directories []string) ([]model.CatalogDefinition, error) {
	var defs []model.CatalogDefinition

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			def, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			defs = append(defs, def)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return defs, nil
}

// LoadFile loads and parses a single YAML catalog file.
func (l *Loader) LoadFile(path string) (model.CatalogDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.CatalogDefinition{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var def model.CatalogDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return model.CatalogDefinition{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	def.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	def.SourceFile = path

	return def, nil
}
