package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kelhray/dispatch/pkg/models"
)

// AgentSeed describes one agent to register at startup, parsed from the
// agents.yaml seed file.
type AgentSeed struct {
	// Name is the agent's display name.
	Name string `yaml:"name"`
	// Capabilities lists what the agent can do.
	Capabilities []models.Capability `yaml:"capabilities"`
	// Config holds the agent's behavior settings.
	Config models.AgentConfig `yaml:"config"`
}

// seedFile is the on-disk shape of agents.yaml.
type seedFile struct {
	Agents []AgentSeed `yaml:"agents"`
}

// LoadAgentSeeds parses an agents.yaml seed file. A missing file is not an
// error; it returns an empty list so startup proceeds with no pre-registered
// agents.
func LoadAgentSeeds(path string) ([]AgentSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading agent seeds %s: %w", path, err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing agent seeds %s: %w", path, err)
	}

	for i, seed := range f.Agents {
		if seed.Name == "" {
			return nil, fmt.Errorf("agent seed %d: name is required", i)
		}
		if len(seed.Capabilities) == 0 {
			return nil, fmt.Errorf("agent seed %q: at least one capability is required", seed.Name)
		}
	}
	return f.Agents, nil
}
