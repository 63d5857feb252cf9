package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/opsai/opsflow/pkg/logger"
)

// FromYAML decodes and validates a single workflow definition.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode workflow definition: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDir registers every *.yaml definition found in dir. Files that fail to
// decode or validate abort the load so a broken definition never silently
// disappears from the catalog.
func LoadDir(ctx context.Context, store Store, dir string) ([]*Config, error) {
	log := logger.FromContext(ctx)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions dir: %w", err)
	}
	var loaded []*Config
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		cfg, err := FromYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		// File-sourced definitions are the live catalog.
		cfg.Active = true
		if _, err := store.Register(ctx, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		log.Info("registered workflow definition", "workflow", cfg.Name, "trigger", cfg.Trigger.Type)
		loaded = append(loaded, cfg)
	}
	return loaded, nil
}
