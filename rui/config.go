package rui

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// service environment, loaded once at startup
type ServiceConfig struct {
	Host          string    `yaml:"host"`
	WebSocketPort int       `yaml:"websocket_port"`
	WebRoot       string    `yaml:"web_root"`
	DocumentPath  string    `yaml:"document_path"`
	ChunkSize     ByteCount `yaml:"chunk_size"`
}

func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Host:          "localhost",
		WebSocketPort: 8100,
		WebRoot:       "webroot",
		DocumentPath:  "database",
		ChunkSize:     DefaultChunkSize,
	}
}

// LoadServiceConfig reads a yaml config over the defaults.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	config := DefaultServiceConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, config); err != nil {
		return nil, err
	}
	return config, nil
}

func (self *ServiceConfig) WebSocketUrl() string {
	return fmt.Sprintf("ws://%s:%d", self.Host, self.WebSocketPort)
}
