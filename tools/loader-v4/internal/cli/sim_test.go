package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/solana-program/loader-v4/smartcontract/bank"
	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/processor"
	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/state"
)

type simHarness struct {
	dir       string
	ledger    string
	authority string
}

func newSimHarness(t *testing.T) *simHarness {
	t.Helper()
	dir := t.TempDir()
	return &simHarness{
		dir:       dir,
		ledger:    filepath.Join(dir, "ledger.zst"),
		authority: writeKeypair(t, dir, solana.NewWallet().PrivateKey),
	}
}

// run executes the CLI with the harness ledger, authority and an empty Solana
// CLI config so the host configuration never leaks in.
func (h *simHarness) run(t *testing.T, slot uint64, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(&out)
	cmd.SetErr(io.Discard)
	full := append([]string{
		"sim",
		"--ledger", h.ledger,
		"--slot", strconv.FormatUint(slot, 10),
		"--keypair", h.authority,
		"--config", filepath.Join(h.dir, "missing-config.yml"),
	}, args...)
	cmd.SetArgs(full)
	err := cmd.Execute()
	return out.String(), err
}

func (h *simHarness) restore(t *testing.T) (*bank.MemoryDB, uint64) {
	t.Helper()
	f, err := os.Open(h.ledger)
	require.NoError(t, err)
	defer f.Close()
	db, slot, err := bank.ReadSnapshot(f)
	require.NoError(t, err)
	return db, slot
}

func TestLoaderV4_CLI_SimLifecycle(t *testing.T) {
	t.Parallel()

	h := newSimHarness(t)
	programKey := solana.NewWallet().PrivateKey
	programPath := writeKeypair(t, h.dir, programKey)
	programPK := programKey.PublicKey().String()

	image := bytes.Repeat([]byte{0xab, 0xcd, 0xef}, 1000)
	imagePath := filepath.Join(h.dir, "program.so")
	require.NoError(t, os.WriteFile(imagePath, image, 0o600))

	required := processor.RequiredBalance(processor.DefaultRent, uint64(len(image)))
	out, err := h.run(t, 0, "fund", programPath, strconv.FormatUint(required, 10))
	require.NoError(t, err)
	require.Contains(t, out, "Funded "+programPK)

	out, err = h.run(t, 5, "deploy", imagePath, "--program", programPath)
	require.NoError(t, err)
	require.Contains(t, out, "Signature: ")

	out, err = h.run(t, 0, "show", programPK)
	require.NoError(t, err)
	require.Contains(t, out, state.StatusDeployed.String())
	require.Contains(t, out, "3000 bytes")

	_, err = h.run(t, 0, "load", programPK)
	require.ErrorIs(t, err, bank.ErrProgramNotVisible)
	out, err = h.run(t, 6, "load", programPK)
	require.NoError(t, err)
	require.Contains(t, out, "Image: 3000 bytes")

	_, err = h.run(t, 0, "retract", programPK)
	require.ErrorIs(t, err, processor.ErrCooldownActive)
	_, slot := h.restore(t)
	require.Equal(t, uint64(6), slot, "failed commands leave the ledger untouched")

	_, err = h.run(t, 5+state.DeploymentCooldownInSlots, "retract", programPK)
	require.NoError(t, err)

	_, err = h.run(t, 0, "close", programPK)
	require.NoError(t, err)

	_, err = h.run(t, 0, "show", programPK)
	require.Error(t, err)

	db, slot := h.restore(t)
	require.Equal(t, 5+state.DeploymentCooldownInSlots, slot)
	authority, err := loadKeypair(h.authority)
	require.NoError(t, err)
	refund, err := db.GetAccount(authority.PublicKey())
	require.NoError(t, err)
	require.NotNil(t, refund)
	require.Equal(t, required, refund.Lamports)
}

func TestLoaderV4_CLI_SimRejectsRewind(t *testing.T) {
	t.Parallel()

	h := newSimHarness(t)
	_, err := h.run(t, 10, "fund", solana.NewWallet().PublicKey().String(), "1")
	require.NoError(t, err)

	_, err = h.run(t, 9, "fund", solana.NewWallet().PublicKey().String(), "1")
	require.ErrorContains(t, err, "cannot go back")
}

func TestLoaderV4_CLI_DeployRequiresProgram(t *testing.T) {
	t.Parallel()

	h := newSimHarness(t)
	_, err := h.run(t, 0, "deploy", filepath.Join(h.dir, "program.so"))
	require.Error(t, err)
}

func TestLoaderV4_CLI_SimWallClock(t *testing.T) {
	t.Parallel()

	h := newSimHarness(t)
	genesis := time.Now().Add(-time.Hour).UTC()
	wall := []string{"--wall-clock", "--genesis", genesis.Format(time.RFC3339)}

	_, err := h.run(t, 0, "fund", solana.NewWallet().PublicKey().String(), "1", "--wall-clock")
	require.ErrorContains(t, err, "--genesis is required")
	_, err = h.run(t, 5, append([]string{"fund", solana.NewWallet().PublicKey().String(), "1"}, wall...)...)
	require.ErrorContains(t, err, "cannot be combined")

	_, err = h.run(t, 0, append([]string{"fund", solana.NewWallet().PublicKey().String(), "1"}, wall...)...)
	require.NoError(t, err)
	_, slot := h.restore(t)
	elapsed := uint64(time.Hour / bank.SlotDuration)
	require.GreaterOrEqual(t, slot, elapsed)
	require.Less(t, slot, elapsed+uint64(5*time.Minute/bank.SlotDuration))

	// A genesis in the future would move the ledger backwards.
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	_, err = h.run(t, 0, "fund", solana.NewWallet().PublicKey().String(), "1", "--wall-clock", "--genesis", future)
	require.ErrorContains(t, err, "cannot go back")
}

func TestLoaderV4_CLI_SimDeployFromSource(t *testing.T) {
	t.Parallel()

	h := newSimHarness(t)
	programKey, sourceKey := solana.NewWallet().PrivateKey, solana.NewWallet().PrivateKey
	programPath := writeKeypair(t, h.dir, programKey)
	sourcePath := writeKeypair(t, h.dir, sourceKey)
	programPK, sourcePK := programKey.PublicKey().String(), sourceKey.PublicKey().String()

	current := bytes.Repeat([]byte{0x11}, 2000)
	next := bytes.Repeat([]byte{0x22}, 800)
	currentPath, nextPath := filepath.Join(h.dir, "current.so"), filepath.Join(h.dir, "next.so")
	require.NoError(t, os.WriteFile(currentPath, current, 0o600))
	require.NoError(t, os.WriteFile(nextPath, next, 0o600))

	for path, size := range map[string]int{programPath: len(current), sourcePath: len(next)} {
		required := processor.RequiredBalance(processor.DefaultRent, uint64(size))
		_, err := h.run(t, 0, "fund", path, strconv.FormatUint(required, 10))
		require.NoError(t, err)
	}

	_, err := h.run(t, 1, "deploy", currentPath, "--program", programPath)
	require.NoError(t, err)
	out, err := h.run(t, 0, "upload", nextPath, "--program", sourcePath)
	require.NoError(t, err)
	require.Contains(t, out, "Uploaded 800 bytes to "+sourcePK)

	_, err = h.run(t, 0, "deploy", nextPath, "--program", programPK, "--source", sourcePK)
	require.ErrorContains(t, err, "cannot be given together")

	upgradeSlot := 1 + state.DeploymentCooldownInSlots
	out, err = h.run(t, upgradeSlot, "deploy", "--program", programPK, "--source", sourcePK)
	require.NoError(t, err)
	require.Contains(t, out, "Signature: ")

	db, _ := h.restore(t)
	program, err := db.GetAccount(programKey.PublicKey())
	require.NoError(t, err)
	require.NotNil(t, program)
	header, err := state.ReadHeader(program.Data)
	require.NoError(t, err)
	require.Equal(t, state.StatusDeployed, header.Status)
	require.Equal(t, upgradeSlot, header.Slot)
	require.Equal(t, next, state.Payload(program.Data))

	source, err := db.GetAccount(sourceKey.PublicKey())
	require.NoError(t, err)
	require.NotNil(t, source)
	require.Empty(t, source.Data)
}
