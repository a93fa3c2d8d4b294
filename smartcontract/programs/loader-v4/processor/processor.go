// Package processor implements the loader-v4 program: the lifecycle state
// machine that governs when a program image stored in a loader-owned account
// may be written, resized, deployed, retracted, handed over or finalized.
//
// Handlers perform every check and all balance arithmetic before the first
// mutation, so a failed instruction leaves its accounts untouched.
package processor

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/state"
)

type Processor struct {
	programID solana.PublicKey
	verifier  Verifier
}

type Option func(*Processor)

// WithVerifier runs v on every image before it is deployed.
func WithVerifier(v Verifier) Option {
	return func(p *Processor) {
		p.verifier = v
	}
}

func New(programID solana.PublicKey, opts ...Option) *Processor {
	p := &Processor{programID: programID}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) ProgramID() solana.PublicKey {
	return p.programID
}

// Write copies bytes into the payload of a retracted program at offset.
//
// Accounts: [0 w] program, [1 s] authority.
func (p *Processor) Write(ic *InvokeContext, offset uint32, bytes []byte) error {
	program, authority, err := programAndAuthority(ic)
	if err != nil {
		return err
	}
	header, err := p.validate(ic, program, authority)
	if err != nil {
		return err
	}
	if header.Status != state.StatusRetracted {
		ic.log().Debug("Program is not retracted", "program", program.Key, "status", header.Status)
		return fmt.Errorf("%w: %s is %s", ErrNotRetracted, program.Key, header.Status)
	}

	start := uint64(state.HeaderSize) + uint64(offset)
	end := start + uint64(len(bytes))
	if end > uint64(len(program.Data)) {
		ic.log().Debug("Write out of bounds", "offset", offset, "len", len(bytes), "payload", state.PayloadLen(program.Data))
		return fmt.Errorf("%w: write of %d bytes at offset %d exceeds payload of %d bytes", ErrOutOfBounds, len(bytes), offset, state.PayloadLen(program.Data))
	}
	copy(program.Data[start:end], bytes)
	return nil
}

// Truncate resizes the payload of a program to newSize bytes. On an empty
// account it initializes the header with the signing authority. A newSize of
// zero closes the account. The balance is brought to exactly the required
// minimum; any surplus goes to the destination.
//
// Accounts: [0 w,s] program, [1 s] authority, [2 w, optional] destination.
func (p *Processor) Truncate(ic *InvokeContext, newSize uint32) error {
	program, authority, err := programAndAuthority(ic)
	if err != nil {
		return err
	}
	destination := ic.optionalAccount(2)

	initialize := newSize > 0 && len(program.Data) < state.HeaderSize
	if initialize {
		if err := p.validateUninitialized(ic, program, authority); err != nil {
			return err
		}
	} else {
		header, err := p.validate(ic, program, authority)
		if err != nil {
			return err
		}
		if header.Status != state.StatusRetracted {
			ic.log().Debug("Program is not retracted", "program", program.Key, "status", header.Status)
			return fmt.Errorf("%w: %s is %s", ErrNotRetracted, program.Key, header.Status)
		}
	}

	if newSize > 0 && state.HeaderSize+uint64(newSize) > MaxPermittedDataLength {
		return fmt.Errorf("%w: data length %d exceeds %d", ErrOutOfBounds, state.HeaderSize+uint64(newSize), MaxPermittedDataLength)
	}
	transfer, err := reconcile(program, RequiredBalance(ic.rent(), uint64(newSize)), destination)
	if err != nil {
		ic.log().Debug("Balance reconciliation failed", "program", program.Key, "error", err)
		return err
	}

	transfer.apply()
	if newSize == 0 {
		program.resize(0)
		return nil
	}
	program.resize(state.HeaderSize + int(newSize))
	if initialize {
		return state.WriteHeader(program.Data, state.NewHeader(0, state.StatusRetracted, authority.Key))
	}
	return nil
}

// Deploy makes a retracted program executable. With a source account the
// source's image replaces the program's and the source is closed.
//
// Accounts: [0 w] program, [1 s] authority, [2 w, optional] source.
func (p *Processor) Deploy(ic *InvokeContext) error {
	program, authority, err := programAndAuthority(ic)
	if err != nil {
		return err
	}
	source := ic.optionalAccount(2)
	if source == program || (source != nil && source.Key.Equals(program.Key)) {
		source = nil
	}

	header, err := p.validate(ic, program, authority)
	if err != nil {
		return err
	}
	now := ic.now()
	if header.Slot != 0 && cooldownActive(header.Slot, now) {
		ic.log().Debug("Program was deployed recently, cooldown still in effect", "program", program.Key, "slot", header.Slot, "now", now)
		return fmt.Errorf("%w: deployed at slot %d, now %d", ErrCooldownActive, header.Slot, now)
	}
	if header.Status != state.StatusRetracted {
		ic.log().Debug("Destination program is not retracted", "program", program.Key, "status", header.Status)
		return fmt.Errorf("%w: %s is %s", ErrNotRetracted, program.Key, header.Status)
	}

	image := state.Payload(program.Data)
	var transfer balanceTransfer
	if source != nil {
		sourceHeader, err := p.validate(ic, source, authority)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		if sourceHeader.Status != state.StatusRetracted {
			ic.log().Debug("Source program is not retracted", "source", source.Key, "status", sourceHeader.Status)
			return fmt.Errorf("%w: source %s is %s", ErrNotRetracted, source.Key, sourceHeader.Status)
		}
		required := requiredBalanceForLength(ic.rent(), uint64(len(source.Data)))
		switch {
		case program.Lamports < required:
			deficit := required - program.Lamports
			if source.Lamports < deficit {
				return fmt.Errorf("%w: source %s cannot cover %d lamports", ErrInsufficientFunds, source.Key, deficit)
			}
			transfer = balanceTransfer{from: source, to: program, amount: deficit}
		case program.Lamports > required:
			transfer = balanceTransfer{from: program, to: source, amount: program.Lamports - required}
		}
		image = state.Payload(source.Data)
	}

	if p.verifier != nil {
		if err := p.verifier.Verify(image); err != nil {
			ic.log().Debug("Program image failed verification", "program", program.Key, "error", err)
			return fmt.Errorf("%w: %w", ErrInvalidProgram, err)
		}
	}

	transfer.apply()
	if source != nil {
		program.resize(len(source.Data))
		copy(program.Data, source.Data)
		source.resize(0)
	}
	return state.WriteHeader(program.Data, state.NewHeader(now, state.StatusDeployed, header.RawKey()))
}

// Retract returns a deployed program to maintenance mode once the cooldown
// has elapsed. The transition slot is kept.
//
// Accounts: [0 w] program, [1 s] authority.
func (p *Processor) Retract(ic *InvokeContext) error {
	program, authority, err := programAndAuthority(ic)
	if err != nil {
		return err
	}
	header, err := p.validate(ic, program, authority)
	if err != nil {
		return err
	}
	now := ic.now()
	if cooldownActive(header.Slot, now) {
		ic.log().Debug("Program was deployed recently, cooldown still in effect", "program", program.Key, "slot", header.Slot, "now", now)
		return fmt.Errorf("%w: deployed at slot %d, now %d", ErrCooldownActive, header.Slot, now)
	}
	if header.Status != state.StatusDeployed {
		ic.log().Debug("Program is not deployed", "program", program.Key, "status", header.Status)
		return fmt.Errorf("%w: %s is %s", ErrNotDeployed, program.Key, header.Status)
	}
	return state.WriteHeader(program.Data, state.NewHeader(header.Slot, state.StatusRetracted, header.RawKey()))
}

// TransferAuthority hands the program over to a new authority, which must
// co-sign.
//
// Accounts: [0 w] program, [1 s] current authority, [2 s] new authority.
func (p *Processor) TransferAuthority(ic *InvokeContext) error {
	program, authority, err := programAndAuthority(ic)
	if err != nil {
		return err
	}
	newAuthority, err := ic.account(2)
	if err != nil {
		return err
	}
	header, err := p.validate(ic, program, authority)
	if err != nil {
		return err
	}
	if !newAuthority.IsSigner {
		ic.log().Debug("New authority did not sign", "authority", newAuthority.Key)
		return fmt.Errorf("%w: new authority %s", ErrMissingSignature, newAuthority.Key)
	}
	if header.RawKey().Equals(newAuthority.Key) {
		ic.log().Debug("No change", "authority", newAuthority.Key)
		return fmt.Errorf("%w: %s is already the authority", ErrNoChange, newAuthority.Key)
	}
	return state.WriteHeader(program.Data, header.WithAuthority(newAuthority.Key))
}

// Finalize makes a deployed program permanently immutable and records
// nextVersion as its successor. The successor must be a loader program under
// the same authority that is not itself finalized; it may be the program.
//
// Accounts: [0 w] program, [1 s] authority, [2] next version.
func (p *Processor) Finalize(ic *InvokeContext) error {
	program, authority, err := programAndAuthority(ic)
	if err != nil {
		return err
	}
	nextVersion, err := ic.account(2)
	if err != nil {
		return err
	}
	header, err := p.validate(ic, program, authority)
	if err != nil {
		return err
	}
	if header.Status != state.StatusDeployed {
		ic.log().Debug("Program must be deployed to be finalized", "program", program.Key, "status", header.Status)
		return fmt.Errorf("%w: %s is %s", ErrNotDeployed, program.Key, header.Status)
	}

	if !nextVersion.Owner.Equals(p.programID) {
		ic.log().Debug("Next version is not owned by loader", "next_version", nextVersion.Key)
		return fmt.Errorf("%w: next version %s", ErrWrongOwner, nextVersion.Key)
	}
	nextHeader, err := state.ReadHeader(nextVersion.Data)
	if err != nil {
		return fmt.Errorf("next version %s: %w", nextVersion.Key, err)
	}
	if !nextHeader.RawKey().Equals(header.RawKey()) {
		ic.log().Debug("Next version has a different authority", "next_version", nextVersion.Key)
		return fmt.Errorf("%w: next version %s has a different authority", ErrWrongAuthority, nextVersion.Key)
	}
	if nextHeader.Status == state.StatusFinalized {
		ic.log().Debug("Next version is finalized", "next_version", nextVersion.Key)
		return fmt.Errorf("%w: next version %s", ErrImmutable, nextVersion.Key)
	}
	return state.WriteHeader(program.Data, state.NewFinalizedHeader(header.Slot, nextVersion.Key))
}

func programAndAuthority(ic *InvokeContext) (*Account, *Account, error) {
	program, err := ic.account(0)
	if err != nil {
		return nil, nil, err
	}
	authority, err := ic.account(1)
	if err != nil {
		return nil, nil, err
	}
	return program, authority, nil
}
