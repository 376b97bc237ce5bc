package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure for a BlinkDB node.
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Network NetworkConfig `yaml:"network"`
	Cache   CacheConfig   `yaml:"cache"`
	Reactor ReactorConfig `yaml:"reactor"`
	Logging LoggingConfig `yaml:"logging"`
}

// NodeConfig contains node-specific configuration.
type NodeConfig struct {
	ID      string `yaml:"id"`
	DataDir string `yaml:"data_dir"`
}

// NetworkConfig contains the RESP listener configuration.
type NetworkConfig struct {
	BindAddr string `yaml:"bind_addr"`
	Port     int    `yaml:"port"`
}

// CacheConfig contains the tiered cache configuration.
type CacheConfig struct {
	HotCapacity        int `yaml:"hot_capacity"`
	WarmCapacity       int `yaml:"warm_capacity"`
	PromotionThreshold int `yaml:"promotion_threshold"`
}

// ReactorConfig bounds the per-connection buffers the reactor maintains.
type ReactorConfig struct {
	MaxInputBuffer  int `yaml:"max_input_buffer"`
	MaxOutputBuffer int `yaml:"max_output_buffer"`
	MaxEvents       int `yaml:"max_events"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	EnableConsole bool   `yaml:"enable_console"`
	EnableFile    bool   `yaml:"enable_file"`
	LogFile       string `yaml:"log_file"`
	BufferSize    int    `yaml:"buffer_size"`
	LogDir        string `yaml:"log_dir"`
}

// Load reads and parses the configuration file. A missing file is not an
// error; the returned config falls back to defaults.
func Load(path string) (*Config, error) {
	config := &Config{
		Node: NodeConfig{
			ID:      "blinkdb-node-1",
			DataDir: "./blinkdb_data",
		},
		Network: NetworkConfig{
			BindAddr: "0.0.0.0",
			Port:     9001,
		},
		Cache: CacheConfig{
			HotCapacity:        1024,
			WarmCapacity:       4096,
			PromotionThreshold: 3,
		},
		Reactor: ReactorConfig{
			MaxInputBuffer:  16 * 1024 * 1024,
			MaxOutputBuffer: 16 * 1024 * 1024,
			MaxEvents:       1024,
		},
		Logging: LoggingConfig{
			Level:         "info",
			EnableConsole: true,
			EnableFile:    false,
			BufferSize:    1000,
			LogDir:        "logs",
		},
	}

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("configuration file %s not found, using defaults\n", path)
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks the invariants Load relies on before the server starts.
func (c *Config) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("node.id cannot be empty")
	}
	if c.Node.DataDir == "" {
		return fmt.Errorf("node.data_dir cannot be empty")
	}
	if c.Network.Port <= 0 || c.Network.Port > 65535 {
		return fmt.Errorf("network.port must be between 1 and 65535")
	}
	if c.Cache.HotCapacity < 0 {
		return fmt.Errorf("cache.hot_capacity cannot be negative")
	}
	if c.Cache.WarmCapacity < 0 {
		return fmt.Errorf("cache.warm_capacity cannot be negative")
	}
	if c.Cache.PromotionThreshold < 1 {
		return fmt.Errorf("cache.promotion_threshold must be >= 1")
	}
	return nil
}
