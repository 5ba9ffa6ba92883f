package registry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadManifest parses one YAML manifest file into a definition. The render
// function is resolved from RendererName at registration time.
func LoadManifest(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if d.Version == "" {
		d.Version = "1.0.0"
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return &d, nil
}

// LoadManifestDir loads every *.yaml/*.yml manifest in a directory and
// registers it. Files that fail to parse are logged and skipped; the
// returned count is the number registered.
func (r *Registry) LoadManifestDir(dir string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read manifest directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	count := 0
	for _, name := range names {
		path := filepath.Join(dir, name)
		d, err := LoadManifest(path)
		if err != nil {
			logger.Warn("skipping widget manifest", "path", path, "error", err)
			continue
		}
		if err := r.Register(d); err != nil {
			logger.Warn("failed to register widget manifest", "path", path, "error", err)
			continue
		}
		logger.Info("widget definition registered", "type", d.Type, "version", d.Version, "source", name)
		count++
	}
	return count, nil
}
