package registry

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/carsync/pkg/types"
)

//go:embed topology.yaml
var defaultTopologyYAML []byte

// Topology is a declarative list of sync links.
type Topology struct {
	Links []TopologyLink `yaml:"links" json:"links"`
}

// TopologyLink declares one link of a Topology.
type TopologyLink struct {
	Source    string `yaml:"source" json:"source"`
	Target    string `yaml:"target" json:"target"`
	Kind      string `yaml:"kind" json:"kind"`
	Direction string `yaml:"direction" json:"direction"`
}

// DefaultTopology returns the built-in link set.
func DefaultTopology() (Topology, error) {
	return parseTopology(defaultTopologyYAML)
}

// ReadTopology decodes and validates a YAML topology document.
func ReadTopology(r io.Reader) (Topology, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Topology{}, fmt.Errorf("reading topology: %w", err)
	}
	return parseTopology(data)
}

// ReadTopologyFile decodes the topology stored at path.
func ReadTopologyFile(path string) (Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return Topology{}, fmt.Errorf("opening topology file: %w", err)
	}
	defer f.Close()
	return ReadTopology(f)
}

func parseTopology(data []byte) (Topology, error) {
	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Topology{}, fmt.Errorf("%w: topology: %v", types.ErrInvalidData, err)
	}
	for i, l := range t.Links {
		if l.Source == "" || l.Target == "" {
			return Topology{}, fmt.Errorf("%w: topology link %d has an empty endpoint", types.ErrInvalidData, i)
		}
		if _, err := types.ParseKind(l.Kind); err != nil {
			return Topology{}, fmt.Errorf("topology link %d: %w", i, err)
		}
		if _, err := types.ParseDirection(l.Direction); err != nil {
			return Topology{}, fmt.Errorf("topology link %d: %w", i, err)
		}
	}
	return t, nil
}

// Marshal renders the topology as YAML.
func (t Topology) Marshal() ([]byte, error) {
	return yaml.Marshal(t)
}
