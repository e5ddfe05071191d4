// Package plugin extends the assistant's toolset with external tool
// servers. Each plugin is described by a YAML manifest and spoken to
// over the Model Context Protocol on stdio.
package plugin

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest describes one plugin server.
type Manifest struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	Disabled    bool              `yaml:"disabled"`
}

func (m Manifest) validate() error {
	if m.Command == "" {
		return fmt.Errorf("manifest %q: command is required", m.Name)
	}
	if strings.Contains(m.Name, ".") {
		return fmt.Errorf("manifest %q: name must not contain '.'", m.Name)
	}
	return nil
}

// LoadManifests reads every .yaml/.yml manifest in dir. Unparseable
// files are skipped with a warning so one bad manifest does not take
// down the rest.
func LoadManifests(dir string, logger *slog.Logger) ([]Manifest, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("plugins directory does not exist, skipping", "dir", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plugins dir: %w", err)
	}

	var manifests []Manifest
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read plugin manifest", "path", path, "err", err)
			continue
		}

		var m Manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			logger.Warn("cannot parse plugin manifest", "path", path, "err", err)
			continue
		}
		if m.Name == "" {
			m.Name = strings.TrimSuffix(name, filepath.Ext(name))
		}
		if err := m.validate(); err != nil {
			logger.Warn("invalid plugin manifest", "path", path, "err", err)
			continue
		}
		if m.Disabled {
			logger.Info("plugin disabled, skipping", "name", m.Name)
			continue
		}

		logger.Info("loaded plugin manifest", "name", m.Name, "path", path)
		manifests = append(manifests, m)
	}
	return manifests, nil
}
