package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
)

const (
	EnvMainnetBeta = "mainnet-beta"
	EnvMainnet     = "mainnet"
	EnvTestnet     = "testnet"
	EnvDevnet      = "devnet"
	EnvLocalnet    = "localnet"
)

var ErrInvalidEnvironment = errors.New("invalid environment")

type NetworkConfig struct {
	Moniker   string
	RPCURL    string
	ProgramID solana.PublicKey
}

func NetworkConfigForEnv(env string) (*NetworkConfig, error) {
	var config *NetworkConfig
	switch env {
	case EnvMainnetBeta, EnvMainnet:
		config = &NetworkConfig{Moniker: EnvMainnetBeta, RPCURL: MainnetRPCURL}
	case EnvTestnet:
		config = &NetworkConfig{Moniker: EnvTestnet, RPCURL: TestnetRPCURL}
	case EnvDevnet:
		config = &NetworkConfig{Moniker: EnvDevnet, RPCURL: DevnetRPCURL}
	case EnvLocalnet:
		config = &NetworkConfig{Moniker: EnvLocalnet, RPCURL: LocalnetRPCURL}
	default:
		return nil, fmt.Errorf("%w %q, must be one of: %s, %s, %s, %s", ErrInvalidEnvironment, env, EnvMainnetBeta, EnvTestnet, EnvDevnet, EnvLocalnet)
	}
	config.ProgramID = solana.MustPublicKeyFromBase58(LoaderV4ProgramID)

	if rpcURL := os.Getenv(EnvVarRPCURL); rpcURL != "" {
		config.RPCURL = rpcURL
	}
	if programID := os.Getenv(EnvVarProgramID); programID != "" {
		pk, err := solana.PublicKeyFromBase58(programID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", EnvVarProgramID, err)
		}
		config.ProgramID = pk
	}
	return config, nil
}
