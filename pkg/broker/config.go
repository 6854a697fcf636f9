package broker

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Transport tags for tool-server descriptors.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// ServerConfig describes one external tool server: a child process
// reached over stdio, or an HTTP endpoint.
type ServerConfig struct {
	Name      string `yaml:"name" json:"name" mapstructure:"name"`
	Transport string `yaml:"transport" json:"transport" mapstructure:"transport"`

	// Stdio transport.
	Command string            `yaml:"command,omitempty" json:"command,omitempty" mapstructure:"command"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty" mapstructure:"args"`
	Dir     string            `yaml:"dir,omitempty" json:"dir,omitempty" mapstructure:"dir"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty" mapstructure:"env"`

	// HTTP transport.
	URL     string            `yaml:"url,omitempty" json:"url,omitempty" mapstructure:"url"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty" mapstructure:"headers"`

	Description string `yaml:"description,omitempty" json:"description,omitempty" mapstructure:"description"`
}

// Validate checks the descriptor for the fields its transport needs.
func (c *ServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("tool server descriptor missing name")
	}
	switch c.Transport {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("tool server %q: stdio transport requires a command", c.Name)
		}
	case TransportHTTP:
		if c.URL == "" {
			return fmt.Errorf("tool server %q: http transport requires a url", c.Name)
		}
	default:
		return fmt.Errorf("tool server %q: unknown transport %q", c.Name, c.Transport)
	}
	return nil
}

// configFile is the sidecar document listing server descriptors.
type configFile struct {
	Servers []ServerConfig `yaml:"servers"`
}

// LoadConfig reads the tool-server sidecar document. A missing file
// means no external tools and is not an error.
func LoadConfig(path string) ([]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tool-server config: %w", err)
	}

	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tool-server config: %w", err)
	}

	for i := range cfg.Servers {
		if err := cfg.Servers[i].Validate(); err != nil {
			return nil, err
		}
	}
	return cfg.Servers, nil
}
