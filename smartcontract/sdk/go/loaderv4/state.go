package loaderv4

import (
	"errors"
	"fmt"

	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/state"
)

var ErrNotProgramAccount = errors.New("account is not a loader v4 program")

type ProgramAccount struct {
	Header  state.Header
	Payload []byte
}

// Status is a shorthand for Header.Status.
func (p *ProgramAccount) Status() state.Status {
	return p.Header.Status
}

func DeserializeProgramAccount(data []byte) (*ProgramAccount, error) {
	header, err := state.ReadHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotProgramAccount, err)
	}
	return &ProgramAccount{
		Header:  header,
		Payload: append([]byte(nil), state.Payload(data)...),
	}, nil
}
