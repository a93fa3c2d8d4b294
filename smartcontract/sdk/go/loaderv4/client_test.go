package loaderv4_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/solana-program/loader-v4/smartcontract/bank"
	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/processor"
	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/state"
	"github.com/solana-program/loader-v4/smartcontract/sdk/go/loaderv4"
)

type clientHarness struct {
	bank  *bank.Bank
	clock *bank.ManualClock
	rpc   *bank.LocalRPC
}

func newClientHarness(t *testing.T) *clientHarness {
	t.Helper()
	clock := bank.NewManualClock(10)
	b, err := bank.New(bank.Config{ProgramID: loaderv4.ProgramID, Clock: clock})
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return &clientHarness{bank: b, clock: clock, rpc: bank.NewLocalRPC(b)}
}

func (h *clientHarness) client(signer solana.PrivateKey) *loaderv4.Client {
	return loaderv4.New(slog.Default(), h.rpc, &signer, loaderv4.ProgramID,
		loaderv4.WithConfirmTimeout(time.Second),
		loaderv4.WithBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }),
	)
}

// prefund gives a new program account exactly the balance an image of size
// bytes needs, so deploys never fall back to the system program.
func (h *clientHarness) prefund(t *testing.T, program solana.PublicKey, size int) {
	t.Helper()
	require.NoError(t, h.bank.Fund(program, processor.RequiredBalance(processor.DefaultRent, uint64(size))))
}

func image(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*7)
	}
	return b
}

func TestSDK_LoaderV4_Client_DeployLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newClientHarness(t)
	authority := solana.NewWallet().PrivateKey
	c := h.client(authority)

	programKey := solana.NewWallet().PrivateKey
	programPK := programKey.PublicKey()
	first := image(3000, 1)
	h.prefund(t, programPK, len(first))

	_, err := c.Deploy(ctx, loaderv4.DeployConfig{ProgramPK: programPK, Image: first})
	require.ErrorIs(t, err, loaderv4.ErrProgramKeyMissing)

	_, err = c.Deploy(ctx, loaderv4.DeployConfig{ProgramKey: &programKey, Image: first})
	require.NoError(t, err)

	info, err := c.GetProgramAccount(ctx, programPK)
	require.NoError(t, err)
	require.Equal(t, state.StatusDeployed, info.Status())
	require.Equal(t, uint64(10), info.Header.Slot)
	owner, ok := info.Header.Authority()
	require.True(t, ok)
	require.Equal(t, authority.PublicKey(), owner)
	require.Equal(t, first, info.Payload)

	h.clock.Advance(1)
	loaded, err := h.bank.LoadProgram(programPK)
	require.NoError(t, err)
	require.Equal(t, first, loaded.Image)

	_, err = c.Retract(ctx, programPK)
	require.ErrorIs(t, err, processor.ErrCooldownActive)

	// Upgrading after the cooldown retracts, shrinks and redeploys.
	h.clock.Warp(10 + state.DeploymentCooldownInSlots)
	second := image(1200, 9)
	_, err = c.Deploy(ctx, loaderv4.DeployConfig{ProgramPK: programPK, Image: second})
	require.NoError(t, err)

	info, err = c.GetProgramAccount(ctx, programPK)
	require.NoError(t, err)
	require.Equal(t, state.StatusDeployed, info.Status())
	require.Equal(t, second, info.Payload)
	require.Equal(t, processor.RequiredBalance(processor.DefaultRent, uint64(len(second))), info.Lamports)

	refund, err := h.bank.GetAccount(authority.PublicKey())
	require.NoError(t, err)
	require.NotNil(t, refund)
	require.Equal(t,
		processor.RequiredBalance(processor.DefaultRent, uint64(len(first)))-processor.RequiredBalance(processor.DefaultRent, uint64(len(second))),
		refund.Lamports)

	// Hand the program over and let the new authority finalize it.
	newAuthority := solana.NewWallet().PrivateKey
	_, err = c.TransferAuthority(ctx, programPK, newAuthority)
	require.NoError(t, err)
	_, err = c.Retract(ctx, programPK)
	require.ErrorIs(t, err, processor.ErrWrongAuthority)

	successor := h.client(newAuthority)
	_, err = successor.Finalize(ctx, programPK, solana.PublicKey{})
	require.NoError(t, err)

	info, err = successor.GetProgramAccount(ctx, programPK)
	require.NoError(t, err)
	require.Equal(t, state.StatusFinalized, info.Status())
	next, ok := info.Header.NextVersion()
	require.True(t, ok)
	require.Equal(t, programPK, next)

	_, err = successor.Deploy(ctx, loaderv4.DeployConfig{ProgramPK: programPK, Image: first})
	require.ErrorIs(t, err, loaderv4.ErrProgramFinalized)
}

func TestSDK_LoaderV4_Client_Close(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newClientHarness(t)
	authority := solana.NewWallet().PrivateKey
	c := h.client(authority)

	programKey := solana.NewWallet().PrivateKey
	programPK := programKey.PublicKey()
	img := image(500, 3)
	h.prefund(t, programPK, len(img))

	_, err := c.Deploy(ctx, loaderv4.DeployConfig{ProgramKey: &programKey, Image: img})
	require.NoError(t, err)

	_, err = c.Close(ctx, programPK, solana.PublicKey{})
	require.ErrorIs(t, err, processor.ErrNotRetracted)

	h.clock.Advance(state.DeploymentCooldownInSlots)
	_, err = c.Retract(ctx, programPK)
	require.NoError(t, err)

	destination := solana.NewWallet().PublicKey()
	_, err = c.Close(ctx, programPK, destination)
	require.NoError(t, err)

	_, err = c.GetProgramAccount(ctx, programPK)
	require.ErrorIs(t, err, loaderv4.ErrAccountNotFound)

	got, err := h.bank.GetAccount(destination)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, processor.RequiredBalance(processor.DefaultRent, uint64(len(img))), got.Lamports)
}

func TestSDK_LoaderV4_Client_GetProgramAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newClientHarness(t)
	c := h.client(solana.NewWallet().PrivateKey)

	_, err := c.GetProgramAccount(ctx, solana.NewWallet().PublicKey())
	require.ErrorIs(t, err, loaderv4.ErrAccountNotFound)

	funded := solana.NewWallet().PublicKey()
	require.NoError(t, h.bank.Fund(funded, 1))
	_, err = c.GetProgramAccount(ctx, funded)
	require.ErrorIs(t, err, loaderv4.ErrNotProgramAccount)
}

func TestSDK_LoaderV4_DeployConfig_Validate(t *testing.T) {
	t.Parallel()

	key := solana.NewWallet().PrivateKey
	other := solana.NewWallet().PublicKey()

	cfg := loaderv4.DeployConfig{ProgramKey: &key, Image: []byte{1}}
	require.NoError(t, cfg.Validate())
	require.Equal(t, key.PublicKey(), cfg.ProgramPK)

	require.Error(t, (&loaderv4.DeployConfig{ProgramKey: &key, ProgramPK: other, Image: []byte{1}}).Validate())
	require.Error(t, (&loaderv4.DeployConfig{Image: []byte{1}}).Validate())
	require.Error(t, (&loaderv4.DeployConfig{ProgramPK: other}).Validate())
}

func TestSDK_LoaderV4_Client_DeployFromSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newClientHarness(t)
	authority := solana.NewWallet().PrivateKey
	c := h.client(authority)

	programKey, sourceKey := solana.NewWallet().PrivateKey, solana.NewWallet().PrivateKey
	programPK, sourcePK := programKey.PublicKey(), sourceKey.PublicKey()
	current, next := image(4000, 2), image(1500, 5)
	h.prefund(t, programPK, len(current))
	h.prefund(t, sourcePK, len(next))

	_, err := c.Deploy(ctx, loaderv4.DeployConfig{ProgramKey: &programKey, Image: current})
	require.NoError(t, err)
	require.NoError(t, c.Upload(ctx, loaderv4.DeployConfig{ProgramKey: &sourceKey, Image: next}))

	staged, err := c.GetProgramAccount(ctx, sourcePK)
	require.NoError(t, err)
	require.Equal(t, state.StatusRetracted, staged.Status())
	require.Equal(t, next, staged.Payload)

	_, err = c.DeployFromSource(ctx, programPK, programPK)
	require.ErrorIs(t, err, loaderv4.ErrSourceNotStaged)
	_, err = c.DeployFromSource(ctx, sourcePK, programPK)
	require.ErrorIs(t, err, loaderv4.ErrSourceNotStaged)

	// The deployed program is retracted and replaced in one upgrade.
	upgradeSlot := 10 + state.DeploymentCooldownInSlots
	h.clock.Warp(upgradeSlot)
	_, err = c.DeployFromSource(ctx, programPK, sourcePK)
	require.NoError(t, err)

	info, err := c.GetProgramAccount(ctx, programPK)
	require.NoError(t, err)
	require.Equal(t, state.StatusDeployed, info.Status())
	require.Equal(t, upgradeSlot, info.Header.Slot)
	require.Equal(t, next, info.Payload)
	require.Equal(t, processor.RequiredBalance(processor.DefaultRent, uint64(len(next))), info.Lamports)

	// The source keeps its balance plus the program's surplus, and no data.
	source, err := h.bank.GetAccount(sourcePK)
	require.NoError(t, err)
	require.NotNil(t, source)
	require.Empty(t, source.Data)
	require.Equal(t, processor.RequiredBalance(processor.DefaultRent, uint64(len(current))), source.Lamports)

	h.clock.Advance(1)
	loaded, err := h.bank.LoadProgram(programPK)
	require.NoError(t, err)
	require.Equal(t, next, loaded.Image)
}
