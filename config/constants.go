package config

const (
	// LoaderV4ProgramID is the built-in address of the loader on every cluster.
	LoaderV4ProgramID = "LoaderV411111111111111111111111111111111111"

	MainnetRPCURL  = "https://api.mainnet-beta.solana.com"
	TestnetRPCURL  = "https://api.testnet.solana.com"
	DevnetRPCURL   = "https://api.devnet.solana.com"
	LocalnetRPCURL = "http://127.0.0.1:8899"

	// Environment variables that override the network defaults.
	EnvVarRPCURL    = "LOADER_V4_RPC_URL"
	EnvVarProgramID = "LOADER_V4_PROGRAM_ID"
)
