package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/solana-program/loader-v4/config"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

func Run() ExitCode {
	// A missing .env is fine.
	_ = godotenv.Load()

	if err := NewRootCmd(os.Stdout).Execute(); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

func NewRootCmd(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "loader-v4",
		Short:        "Manage programs owned by the loader-v4 program.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}
	rootCmd.SetOut(out)

	flags := rootCmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "set debug logging level")
	flags.StringP("env", "e", config.EnvDevnet, "The network environment (mainnet-beta, testnet, devnet, localnet)")
	flags.StringP("config", "C", "", "Path to the Solana CLI config file (default ~/.config/solana/cli/config.yml)")
	flags.StringP("url", "u", "", "RPC URL, overrides --env and the Solana CLI config")
	flags.StringP("keypair", "k", "", "Authority keypair file or base58 secret key")

	rootCmd.AddCommand(programCommands(connectRPC)...)
	rootCmd.AddCommand(newSimCmd())
	return rootCmd
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

// settings are the global flags resolved against the environment and the
// Solana CLI config.
type settings struct {
	log         *slog.Logger
	rpcURL      string
	programID   solana.PublicKey
	commitment  solanarpc.CommitmentType
	keypairPath string
}

func loadSettings(cmd *cobra.Command) (*settings, error) {
	flags := cmd.Root().PersistentFlags()
	verbose, err := flags.GetBool("verbose")
	if err != nil {
		return nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	env, err := flags.GetString("env")
	if err != nil {
		return nil, fmt.Errorf("failed to get env flag: %w", err)
	}
	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	url, err := flags.GetString("url")
	if err != nil {
		return nil, fmt.Errorf("failed to get url flag: %w", err)
	}
	keypair, err := flags.GetString("keypair")
	if err != nil {
		return nil, fmt.Errorf("failed to get keypair flag: %w", err)
	}

	network, err := config.NetworkConfigForEnv(env)
	if err != nil {
		return nil, err
	}
	if configPath == "" {
		configPath, err = config.DefaultSolanaCLIConfigPath()
		if err != nil {
			return nil, err
		}
	}
	cliConfig, err := config.LoadSolanaCLIConfig(configPath)
	if err != nil {
		return nil, err
	}
	commitment, err := cliConfig.CommitmentType()
	if err != nil {
		return nil, err
	}

	if keypair == "" {
		keypair = cliConfig.KeypairPath
	}
	if keypair == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		keypair = filepath.Join(home, ".config", "solana", "id.json")
	}

	return &settings{
		log:         newLogger(cmd.ErrOrStderr(), verbose),
		rpcURL:      resolveRPCURL(url, os.Getenv(config.EnvVarRPCURL), cmd.Root().PersistentFlags().Changed("env"), cliConfig.JSONRPCURL, network.RPCURL),
		programID:   network.ProgramID,
		commitment:  commitment,
		keypairPath: keypair,
	}, nil
}

// resolveRPCURL picks the endpoint in order of precedence: the --url flag,
// the LOADER_V4_RPC_URL variable, an explicit --env, the Solana CLI config,
// and finally the default endpoint of the environment.
func resolveRPCURL(flagURL, envURL string, envChanged bool, cliConfigURL, networkURL string) string {
	switch {
	case flagURL != "":
		return flagURL
	case envURL != "":
		return envURL
	case envChanged || cliConfigURL == "":
		return networkURL
	default:
		return cliConfigURL
	}
}
