package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"gopkg.in/yaml.v3"
)

// SolanaCLIConfig is the subset of the Solana CLI config file
// (~/.config/solana/cli/config.yml) that the loader tools honour.
type SolanaCLIConfig struct {
	JSONRPCURL   string `yaml:"json_rpc_url"`
	WebsocketURL string `yaml:"websocket_url"`
	KeypairPath  string `yaml:"keypair_path"`
	Commitment   string `yaml:"commitment"`
}

func DefaultSolanaCLIConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "solana", "cli", "config.yml"), nil
}

// LoadSolanaCLIConfig reads the config at path. A missing file yields an empty
// config so callers fall back to their own defaults.
func LoadSolanaCLIConfig(path string) (*SolanaCLIConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &SolanaCLIConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read solana config %s: %w", path, err)
	}
	var config SolanaCLIConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse solana config %s: %w", path, err)
	}
	if _, err := config.CommitmentType(); err != nil {
		return nil, err
	}
	return &config, nil
}

// CommitmentType maps the configured commitment to its RPC value, defaulting
// to confirmed.
func (c *SolanaCLIConfig) CommitmentType() (solanarpc.CommitmentType, error) {
	switch c.Commitment {
	case "":
		return solanarpc.CommitmentConfirmed, nil
	case string(solanarpc.CommitmentProcessed), string(solanarpc.CommitmentConfirmed), string(solanarpc.CommitmentFinalized):
		return solanarpc.CommitmentType(c.Commitment), nil
	default:
		return "", fmt.Errorf("invalid commitment %q", c.Commitment)
	}
}
