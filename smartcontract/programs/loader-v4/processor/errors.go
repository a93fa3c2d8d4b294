package processor

import (
	"errors"

	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/state"
)

// Errors returned by the loader. Every failure aborts the instruction; callers
// match them with errors.Is.
var (
	ErrWrongOwner             = errors.New("account not owned by loader")
	ErrBufferTooSmall         = state.ErrBufferTooSmall
	ErrNotWritable            = errors.New("account is not writable")
	ErrMissingSignature       = errors.New("missing required signature")
	ErrWrongAuthority         = errors.New("incorrect authority")
	ErrImmutable              = errors.New("program is finalized")
	ErrNotRetracted           = errors.New("program is not retracted")
	ErrNotDeployed            = errors.New("program is not deployed")
	ErrCooldownActive         = errors.New("program was deployed recently, cooldown still in effect")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrOutOfBounds            = errors.New("out of bounds")
	ErrNoChange               = errors.New("no change")
	ErrInvalidInstructionData = errors.New("invalid instruction data")
	ErrNotEnoughAccountKeys   = errors.New("not enough account keys")
	ErrInvalidProgram         = errors.New("program image rejected by verifier")
)

// InstructionErrorName returns the runtime InstructionError variant that the
// on-chain loader reports for err, or "" if err is not a loader error.
func InstructionErrorName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrWrongOwner):
		return "InvalidAccountOwner"
	case errors.Is(err, ErrBufferTooSmall), errors.Is(err, state.ErrInvalidStatus):
		return "AccountDataTooSmall"
	case errors.Is(err, ErrMissingSignature):
		return "MissingRequiredSignature"
	case errors.Is(err, ErrWrongAuthority):
		return "IncorrectAuthority"
	case errors.Is(err, ErrImmutable):
		return "Immutable"
	case errors.Is(err, ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, ErrInvalidInstructionData):
		return "InvalidInstructionData"
	case errors.Is(err, ErrNotEnoughAccountKeys):
		return "NotEnoughAccountKeys"
	case errors.Is(err, ErrOutOfBounds):
		return "AccountDataTooSmall"
	case errors.Is(err, ErrInvalidProgram):
		return "InvalidAccountData"
	case errors.Is(err, ErrNotWritable),
		errors.Is(err, ErrNotRetracted),
		errors.Is(err, ErrNotDeployed),
		errors.Is(err, ErrCooldownActive),
		errors.Is(err, ErrNoChange):
		return "InvalidArgument"
	default:
		return ""
	}
}
