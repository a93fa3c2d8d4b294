package loaderv4

import (
	"github.com/gagliardetto/solana-go"

	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/processor"
	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/state"
)

// Represents the type of loader instruction
type LoaderV4InstructionType uint8

const (
	WriteInstructionIndex             = LoaderV4InstructionType(processor.OpWrite)
	TruncateInstructionIndex          = LoaderV4InstructionType(processor.OpTruncate)
	DeployInstructionIndex            = LoaderV4InstructionType(processor.OpDeploy)
	RetractInstructionIndex           = LoaderV4InstructionType(processor.OpRetract)
	TransferAuthorityInstructionIndex = LoaderV4InstructionType(processor.OpTransferAuthority)
	FinalizeInstructionIndex          = LoaderV4InstructionType(processor.OpFinalize)

	// MaxTransactionSize is the largest serialized transaction a validator
	// accepts.
	//
	// Messages transmitted to Solana validators must not exceed the IPv6 MTU size to ensure fast
	// and reliable network transmission of cluster info over UDP. Solana's networking stack uses a
	// conservative MTU size of 1280 bytes which, after accounting for headers, leaves 1232 bytes
	// for packet data like serialized transactions.
	// https://docs.anza.xyz/proposals/versioned-transactions#problem
	MaxTransactionSize = 1232

	HeaderSize = state.HeaderSize
)

// ProgramID is the address of the loader v4 program.
var ProgramID = solana.MustPublicKeyFromBase58("LoaderV411111111111111111111111111111111111")
