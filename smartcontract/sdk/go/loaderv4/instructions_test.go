package loaderv4_test

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/processor"
	"github.com/solana-program/loader-v4/smartcontract/sdk/go/loaderv4"
)

func decode(t *testing.T, ix solana.Instruction) processor.Instruction {
	t.Helper()
	data, err := ix.Data()
	require.NoError(t, err)
	decoded, err := processor.DecodeInstruction(data)
	require.NoError(t, err)
	return decoded
}

func requireMeta(t *testing.T, meta *solana.AccountMeta, key solana.PublicKey, writable, signer bool) {
	t.Helper()
	require.Equal(t, key, meta.PublicKey)
	require.Equal(t, writable, meta.IsWritable, "writable flag of %s", key)
	require.Equal(t, signer, meta.IsSigner, "signer flag of %s", key)
}

func TestSDK_LoaderV4_BuildWriteInstruction(t *testing.T) {
	t.Parallel()

	program, authority := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	ix, err := loaderv4.BuildWriteInstruction(loaderv4.ProgramID, loaderv4.WriteInstructionConfig{
		ProgramPK:   program,
		AuthorityPK: authority,
		Offset:      1024,
		Bytes:       []byte{1, 2, 3},
	})
	require.NoError(t, err)
	require.Equal(t, loaderv4.ProgramID, ix.ProgramID())

	got := decode(t, ix)
	require.Equal(t, processor.OpWrite, got.Op)
	require.Equal(t, uint32(1024), got.Offset)
	require.Equal(t, []byte{1, 2, 3}, got.Bytes)

	accounts := ix.Accounts()
	require.Len(t, accounts, 2)
	requireMeta(t, accounts[0], program, true, false)
	requireMeta(t, accounts[1], authority, false, true)

	_, err = loaderv4.BuildWriteInstruction(loaderv4.ProgramID, loaderv4.WriteInstructionConfig{ProgramPK: program})
	require.Error(t, err)
}

func TestSDK_LoaderV4_BuildTruncateInstruction(t *testing.T) {
	t.Parallel()

	program, authority, dest := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	t.Run("initialize", func(t *testing.T) {
		t.Parallel()
		ix, err := loaderv4.BuildTruncateInstruction(loaderv4.ProgramID, loaderv4.TruncateInstructionConfig{
			ProgramPK:   program,
			AuthorityPK: authority,
			NewSize:     36,
			Initialize:  true,
		})
		require.NoError(t, err)
		got := decode(t, ix)
		require.Equal(t, processor.OpTruncate, got.Op)
		require.Equal(t, uint32(36), got.NewSize)
		accounts := ix.Accounts()
		require.Len(t, accounts, 2)
		requireMeta(t, accounts[0], program, true, true)
		requireMeta(t, accounts[1], authority, false, true)
	})

	t.Run("close with destination", func(t *testing.T) {
		t.Parallel()
		ix, err := loaderv4.BuildTruncateInstruction(loaderv4.ProgramID, loaderv4.TruncateInstructionConfig{
			ProgramPK:     program,
			AuthorityPK:   authority,
			DestinationPK: dest,
		})
		require.NoError(t, err)
		require.Equal(t, uint32(0), decode(t, ix).NewSize)
		accounts := ix.Accounts()
		require.Len(t, accounts, 3)
		requireMeta(t, accounts[0], program, true, false)
		requireMeta(t, accounts[2], dest, true, false)
	})

	t.Run("initialize to zero", func(t *testing.T) {
		t.Parallel()
		_, err := loaderv4.BuildTruncateInstruction(loaderv4.ProgramID, loaderv4.TruncateInstructionConfig{
			ProgramPK:   program,
			AuthorityPK: authority,
			Initialize:  true,
		})
		require.Error(t, err)
	})
}

func TestSDK_LoaderV4_BuildLifecycleInstructions(t *testing.T) {
	t.Parallel()

	program, authority, other := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	deploy, err := loaderv4.BuildDeployInstruction(loaderv4.ProgramID, loaderv4.DeployInstructionConfig{ProgramPK: program, AuthorityPK: authority})
	require.NoError(t, err)
	require.Equal(t, processor.OpDeploy, decode(t, deploy).Op)
	require.Len(t, deploy.Accounts(), 2)

	deployFrom, err := loaderv4.BuildDeployInstruction(loaderv4.ProgramID, loaderv4.DeployInstructionConfig{ProgramPK: program, AuthorityPK: authority, SourcePK: other})
	require.NoError(t, err)
	require.Len(t, deployFrom.Accounts(), 3)
	requireMeta(t, deployFrom.Accounts()[2], other, true, false)

	retract, err := loaderv4.BuildRetractInstruction(loaderv4.ProgramID, program, authority)
	require.NoError(t, err)
	require.Equal(t, processor.OpRetract, decode(t, retract).Op)
	requireMeta(t, retract.Accounts()[0], program, true, false)
	requireMeta(t, retract.Accounts()[1], authority, false, true)

	transfer, err := loaderv4.BuildTransferAuthorityInstruction(loaderv4.ProgramID, program, authority, other)
	require.NoError(t, err)
	require.Equal(t, processor.OpTransferAuthority, decode(t, transfer).Op)
	requireMeta(t, transfer.Accounts()[2], other, false, true)

	finalize, err := loaderv4.BuildFinalizeInstruction(loaderv4.ProgramID, program, authority, program)
	require.NoError(t, err)
	require.Equal(t, processor.OpFinalize, decode(t, finalize).Op)
	requireMeta(t, finalize.Accounts()[2], program, false, false)

	_, err = loaderv4.BuildFinalizeInstruction(loaderv4.ProgramID, program, authority, solana.PublicKey{})
	require.Error(t, err)
}

func TestSDK_LoaderV4_InstructionDataMatchesProcessorEncoding(t *testing.T) {
	t.Parallel()

	program, authority, other := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	build := func(ix solana.Instruction, err error) solana.Instruction {
		require.NoError(t, err)
		return ix
	}
	cases := []struct {
		name string
		ix   solana.Instruction
		want processor.Instruction
	}{
		{
			name: "write",
			ix: build(loaderv4.BuildWriteInstruction(loaderv4.ProgramID, loaderv4.WriteInstructionConfig{
				ProgramPK: program, AuthorityPK: authority, Offset: 0x01020304, Bytes: []byte("image"),
			})),
			want: processor.Instruction{Op: processor.OpWrite, Offset: 0x01020304, Bytes: []byte("image")},
		},
		{
			name: "write empty",
			ix: build(loaderv4.BuildWriteInstruction(loaderv4.ProgramID, loaderv4.WriteInstructionConfig{
				ProgramPK: program, AuthorityPK: authority, Offset: 7,
			})),
			want: processor.Instruction{Op: processor.OpWrite, Offset: 7},
		},
		{
			name: "truncate",
			ix: build(loaderv4.BuildTruncateInstruction(loaderv4.ProgramID, loaderv4.TruncateInstructionConfig{
				ProgramPK: program, AuthorityPK: authority, NewSize: 0xdeadbeef,
			})),
			want: processor.Instruction{Op: processor.OpTruncate, NewSize: 0xdeadbeef},
		},
		{
			name: "deploy",
			ix: build(loaderv4.BuildDeployInstruction(loaderv4.ProgramID, loaderv4.DeployInstructionConfig{
				ProgramPK: program, AuthorityPK: authority, SourcePK: other,
			})),
			want: processor.Instruction{Op: processor.OpDeploy},
		},
		{
			name: "retract",
			ix:   build(loaderv4.BuildRetractInstruction(loaderv4.ProgramID, program, authority)),
			want: processor.Instruction{Op: processor.OpRetract},
		},
		{
			name: "transfer authority",
			ix:   build(loaderv4.BuildTransferAuthorityInstruction(loaderv4.ProgramID, program, authority, other)),
			want: processor.Instruction{Op: processor.OpTransferAuthority},
		},
		{
			name: "finalize",
			ix:   build(loaderv4.BuildFinalizeInstruction(loaderv4.ProgramID, program, authority, program)),
			want: processor.Instruction{Op: processor.OpFinalize},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			want, err := tc.want.Encode()
			require.NoError(t, err)
			got, err := tc.ix.Data()
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}
}
