// Package publish assembles a finished capture into a Listing and fans it
// out to the configured destination portals.
package publish

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Destination is one external portal a listing can be pushed to, declared
// in a YAML file of its own.
type Destination struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	APIKey  string `yaml:"apiKey"`
	Enabled bool   `yaml:"enabled"`
}

// LoadDestinations reads every *.yaml / *.yml file in dir, one destination
// per file. Files are processed in lexical filename order, which fixes the
// fan-out (and result) order. Disabled destinations are skipped.
func LoadDestinations(dir string) ([]Destination, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read destinations dir %s: %w", dir, err)
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

	var dests []Destination
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read destination %s: %w", name, err)
		}
		var d Destination
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("parse destination %s: %w", name, err)
		}
		if d.Name == "" || d.URL == "" {
			return nil, fmt.Errorf("destination %s: name and url are required", name)
		}
		if !d.Enabled {
			continue
		}
		dests = append(dests, d)
	}
	return dests, nil
}
