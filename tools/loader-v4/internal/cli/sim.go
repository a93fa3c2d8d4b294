package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/solana-program/loader-v4/smartcontract/bank"
	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/processor"
	"github.com/solana-program/loader-v4/smartcontract/sdk/go/loaderv4"
)

const defaultLedgerPath = "loader-v4-ledger.zst"

func newSimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run program commands against a local simulated ledger",
		Long: `Run program commands against a ledger snapshot on disk. Each command
loads the snapshot, executes its transactions in an in-process bank and
writes the snapshot back if they succeed. Program accounts must be funded
with "sim fund" before they are deployed.`,
	}
	flags := cmd.PersistentFlags()
	flags.String("ledger", defaultLedgerPath, "Path of the ledger snapshot, created if missing")
	flags.Uint64("slot", 0, "Advance the ledger clock to this slot before running (0 keeps the current slot)")
	flags.Bool("verify-elf", false, "Reject images that are not SBF ELF shared objects")
	flags.Bool("wall-clock", false, "Derive the slot from wall time elapsed since --genesis instead of the ledger clock")
	flags.String("genesis", "", "Genesis time of the wall clock (RFC3339)")

	cmd.AddCommand(programCommands(connectSim)...)
	cmd.AddCommand(newSimFundCmd(), newSimLoadCmd())
	return cmd
}

// openLedger restores the bank stored at the --ledger path.
func openLedger(cmd *cobra.Command, s *settings) (*bank.Bank, string, error) {
	path, err := cmd.Flags().GetString("ledger")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get ledger flag: %w", err)
	}
	slotFlag, err := cmd.Flags().GetUint64("slot")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get slot flag: %w", err)
	}
	verifyELF, err := cmd.Flags().GetBool("verify-elf")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get verify-elf flag: %w", err)
	}

	accounts := bank.NewMemoryDB()
	var slot uint64
	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.log.Debug("Creating new ledger", "path", path)
	case err != nil:
		return nil, "", fmt.Errorf("failed to open ledger: %w", err)
	default:
		accounts, slot, err = bank.ReadSnapshot(f)
		f.Close()
		if err != nil {
			return nil, "", fmt.Errorf("failed to read ledger %s: %w", path, err)
		}
	}
	clock, err := ledgerClock(cmd, slot, slotFlag)
	if err != nil {
		return nil, "", err
	}

	cfg := bank.Config{
		ProgramID: s.programID,
		Accounts:  accounts,
		Clock:     clock,
		Logger:    s.log,
	}
	if verifyELF {
		cfg.Verifier = bank.ELFVerifier{}
	}
	b, err := bank.New(cfg)
	if err != nil {
		return nil, "", err
	}
	s.log.Debug("Opened ledger", "path", path, "slot", clock.Slot(), "accounts", len(accounts.Keys()))
	return b, path, nil
}

// ledgerClock picks the clock of a ledger restored at slot. The slot never
// moves backwards, whichever clock drives it.
func ledgerClock(cmd *cobra.Command, slot, slotFlag uint64) (processor.Clock, error) {
	wall, err := cmd.Flags().GetBool("wall-clock")
	if err != nil {
		return nil, fmt.Errorf("failed to get wall-clock flag: %w", err)
	}
	if !wall {
		if slotFlag != 0 && slotFlag < slot {
			return nil, fmt.Errorf("ledger is at slot %d, cannot go back to slot %d", slot, slotFlag)
		}
		clock := bank.NewManualClock(slot)
		clock.Warp(slotFlag)
		return clock, nil
	}

	if slotFlag != 0 {
		return nil, errors.New("--slot cannot be combined with --wall-clock")
	}
	genesisFlag, err := cmd.Flags().GetString("genesis")
	if err != nil {
		return nil, fmt.Errorf("failed to get genesis flag: %w", err)
	}
	if genesisFlag == "" {
		return nil, errors.New("--genesis is required with --wall-clock")
	}
	genesis, err := time.Parse(time.RFC3339, genesisFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid genesis time %q: %w", genesisFlag, err)
	}
	clock := bank.NewWallClock(nil, genesis)
	if now := clock.Slot(); now < slot {
		return nil, fmt.Errorf("ledger is at slot %d, cannot go back to wall clock slot %d", slot, now)
	}
	return clock, nil
}

// saveLedger atomically replaces the snapshot at path.
func saveLedger(b *bank.Bank, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create ledger file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := b.Snapshot(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func connectSim(cmd *cobra.Command, needSigner bool) (*session, error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	signer, err := loadSigner(s, needSigner)
	if err != nil {
		return nil, err
	}
	b, path, err := openLedger(cmd, s)
	if err != nil {
		return nil, err
	}
	return &session{
		log: s.log,
		client: loaderv4.New(s.log, bank.NewLocalRPC(b), signer, s.programID,
			loaderv4.WithConfirmTimeout(5*time.Second)),
		commit:  func() error { return saveLedger(b, path) },
		release: b.Close,
	}, nil
}

func newSimFundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fund <account> <lamports>",
		Short: "Credit lamports to an account, creating it empty and owned by the loader",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parsePublicKey(args[0])
			if err != nil {
				return err
			}
			lamports, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid lamports %q: %w", args[1], err)
			}
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			b, path, err := openLedger(cmd, s)
			if err != nil {
				return err
			}
			defer b.Close()
			if err := b.Fund(key, lamports); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Funded %s with %d lamports\n", key, lamports)
			return saveLedger(b, path)
		},
	}
}

func newSimLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <program>",
		Short: "Show the image the runtime would execute for a program at the current slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parsePublicKey(args[0])
			if err != nil {
				return err
			}
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			b, path, err := openLedger(cmd, s)
			if err != nil {
				return err
			}
			defer b.Close()
			program, err := b.LoadProgram(key)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Program: %s\nStatus: %s\nEffective Slot: %d\nImage: %d bytes\n",
				program.Key, program.Status, program.EffectiveSlot(), len(program.Image))
			if program.NextVersion != nil {
				fmt.Fprintf(out, "Next Version: %s\n", program.NextVersion)
			}
			return saveLedger(b, path)
		},
	}
}
