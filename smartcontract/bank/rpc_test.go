package bank

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"

	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/processor"
	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/state"
)

func TestLoaderV4_LocalRPC(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tb := newTestBank(t)
	tb.clock.Warp(7)
	rpc := NewLocalRPC(tb.Bank)
	authority := tb.newSigner()
	program := tb.stage(t, authority, testImage(64))

	_, err := rpc.GetAccountInfo(ctx, solana.NewWallet().PublicKey())
	require.ErrorIs(t, err, solanarpc.ErrNotFound)

	blockhash, err := rpc.GetLatestBlockhash(ctx, solanarpc.CommitmentConfirmed)
	require.NoError(t, err)
	tx, err := solana.NewTransaction([]solana.Instruction{simpleIx(t, processor.OpDeploy, program, authority)},
		blockhash.Value.Blockhash, solana.TransactionPayer(authority))
	require.NoError(t, err)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		k := tb.signers[key]
		return &k
	})
	require.NoError(t, err)

	statuses, err := rpc.GetSignatureStatuses(ctx, true, tx.Signatures[0])
	require.NoError(t, err)
	require.Nil(t, statuses.Value[0])
	_, err = rpc.GetTransaction(ctx, tx.Signatures[0], nil)
	require.ErrorIs(t, err, solanarpc.ErrNotFound)

	sig, err := rpc.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{})
	require.NoError(t, err)
	require.Equal(t, tx.Signatures[0], sig)

	statuses, err = rpc.GetSignatureStatuses(ctx, true, sig)
	require.NoError(t, err)
	require.Equal(t, solanarpc.ConfirmationStatusFinalized, statuses.Value[0].ConfirmationStatus)
	require.Equal(t, uint64(7), statuses.Value[0].Slot)
	got, err := rpc.GetTransaction(ctx, sig, nil)
	require.NoError(t, err)
	require.NotNil(t, got.Meta)

	info, err := rpc.GetAccountInfo(ctx, program)
	require.NoError(t, err)
	require.Equal(t, loaderID, info.Value.Owner)
	header, err := state.ReadHeader(info.Value.Data.GetBinary())
	require.NoError(t, err)
	require.Equal(t, state.StatusDeployed, header.Status)
	require.Equal(t, uint64(7), header.Slot)

	rent, err := rpc.GetMinimumBalanceForRentExemption(ctx, 100, solanarpc.CommitmentConfirmed)
	require.NoError(t, err)
	require.Equal(t, processor.DefaultRent.MinimumBalance(100), rent)

	// A rejected transaction never lands.
	_, err = rpc.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{})
	require.ErrorIs(t, err, processor.ErrCooldownActive)
}
