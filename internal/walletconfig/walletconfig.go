// Package walletconfig loads the wallet core's on-disk configuration: the
// node client options, gap-limit and output-consolidation policy, and
// per-account defaults. Shape and load/save semantics follow the teacher's
// internal/node config loader — a YAML file under the data directory,
// created with defaults on first run.
package walletconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
)

// FileName is the default config file name within a wallet's data directory.
const FileName = "config.yaml"

// GapLimit controls address-discovery scanning.
type GapLimit struct {
	Size uint32 `yaml:"size"`
}

// AccountOptions carries the output-consolidation settings that
// cmd/walletcored passes to the poller; the manager does not read them.
type AccountOptions struct {
	// OutputConsolidationThreshold is the per-address output count above
	// which the poller's consolidation sweep issues a self-transfer to
	// reduce fragmentation. Zero defers to the poller's own default.
	OutputConsolidationThreshold int `yaml:"output_consolidation_threshold"`

	// ConsolidationEnabled toggles automatic output consolidation during
	// poller ticks.
	ConsolidationEnabled bool `yaml:"consolidation_enabled"`
}

// Config is the full wallet core configuration.
type Config struct {
	ClientOptions model.ClientOptions `yaml:"client_options"`
	GapLimit      GapLimit            `yaml:"gap_limit"`
	AccountOptions AccountOptions     `yaml:"account_options"`
}

// DefaultConfig returns the configuration a freshly initialized wallet
// starts with.
func DefaultConfig() *Config {
	return &Config{
		ClientOptions: model.ClientOptions{
			NetworkID: "mainnet1",
		},
		GapLimit: GapLimit{Size: 20},
		AccountOptions: AccountOptions{
			OutputConsolidationThreshold: 100,
			ConsolidationEnabled:         true,
		},
	}
}

// Load reads dataDir/config.yaml, creating it with default values if it
// doesn't exist yet.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(expandPath(dataDir), FileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("walletconfig: create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("walletconfig: read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("walletconfig: parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path, creating its parent directory if
// necessary.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("walletconfig: create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("walletconfig: marshal config: %w", err)
	}

	header := []byte("# tangle-wallet-core configuration\n# generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("walletconfig: write config file: %w", err)
	}
	return nil
}

func expandPath(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
