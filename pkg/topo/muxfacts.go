package topo

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MuxPort carries the mux simulator facts for one dual-ToR host port.
type MuxPort struct {
	SocIPv4 string `yaml:"soc_ipv4"`
}

// MuxFacts maps host interface index to its mux port facts. Only
// active-active ports need an entry.
type MuxFacts map[int]MuxPort

// LoadMuxFacts reads a mux facts YAML file. A missing path yields an empty
// map so topologies without active-active ports need no facts file.
func LoadMuxFacts(path string) (MuxFacts, error) {
	if path == "" {
		return MuxFacts{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mux facts: %w", err)
	}
	var m MuxFacts
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mux facts %s: %w", path, err)
	}
	if m == nil {
		m = MuxFacts{}
	}
	return m, nil
}
