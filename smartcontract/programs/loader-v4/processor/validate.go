package processor

import (
	"fmt"

	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/state"
)

// validate runs the checks shared by every operation on an
// initialized program account and returns its header. The order of the checks
// determines which error a caller sees and must not change.
func (p *Processor) validate(ic *InvokeContext, program, authority *Account) (state.Header, error) {
	log := ic.log()

	if !program.Owner.Equals(p.programID) {
		log.Debug("Program not owned by loader", "program", program.Key, "owner", program.Owner)
		return state.Header{}, fmt.Errorf("%w: %s", ErrWrongOwner, program.Key)
	}
	header, err := state.ReadHeader(program.Data)
	if err != nil {
		return state.Header{}, fmt.Errorf("program %s: %w", program.Key, err)
	}
	if !program.IsWritable {
		log.Debug("Program is not writeable", "program", program.Key)
		return state.Header{}, fmt.Errorf("%w: program %s", ErrNotWritable, program.Key)
	}
	if !authority.IsSigner {
		log.Debug("Authority did not sign", "authority", authority.Key)
		return state.Header{}, fmt.Errorf("%w: authority %s", ErrMissingSignature, authority.Key)
	}
	if !header.RawKey().Equals(authority.Key) {
		log.Debug("Incorrect authority provided", "authority", authority.Key)
		return state.Header{}, fmt.Errorf("%w: %s", ErrWrongAuthority, authority.Key)
	}
	if header.Status == state.StatusFinalized {
		log.Debug("Program is finalized", "program", program.Key)
		return state.Header{}, fmt.Errorf("%w: %s", ErrImmutable, program.Key)
	}
	return header, nil
}

// validateUninitialized covers the initializing truncate, where there
// is no header to check the authority against. Both the program and the new
// authority must sign.
func (p *Processor) validateUninitialized(ic *InvokeContext, program, authority *Account) error {
	log := ic.log()

	if !program.Owner.Equals(p.programID) {
		log.Debug("Program not owned by loader", "program", program.Key, "owner", program.Owner)
		return fmt.Errorf("%w: %s", ErrWrongOwner, program.Key)
	}
	if !program.IsWritable {
		log.Debug("Program is not writeable", "program", program.Key)
		return fmt.Errorf("%w: program %s", ErrNotWritable, program.Key)
	}
	if !program.IsSigner {
		log.Debug("Program did not sign", "program", program.Key)
		return fmt.Errorf("%w: program %s", ErrMissingSignature, program.Key)
	}
	if !authority.IsSigner {
		log.Debug("Authority did not sign", "authority", authority.Key)
		return fmt.Errorf("%w: authority %s", ErrMissingSignature, authority.Key)
	}
	return nil
}

// cooldownActive reports whether a transition at now is still blocked by the
// deployment cooldown that started at slot.
func cooldownActive(slot, now uint64) bool {
	end := slot + state.DeploymentCooldownInSlots
	if end < slot {
		return true
	}
	return end > now
}
