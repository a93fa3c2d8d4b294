package bank

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
)

// emSBF is the machine type of SBPFv2+ programs; older programs use EM_BPF.
const emSBF elf.Machine = 263

var ErrInvalidELF = errors.New("invalid program ELF")

// ELFVerifier accepts images that parse as 64-bit little-endian shared objects
// for the BPF or SBF machine. It does not run the bytecode verifier.
type ELFVerifier struct{}

func (ELFVerifier) Verify(image []byte) error {
	if len(image) == 0 {
		return fmt.Errorf("%w: empty image", ErrInvalidELF)
	}
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidELF, err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 {
		return fmt.Errorf("%w: class %s", ErrInvalidELF, f.Class)
	}
	if f.Data != elf.ELFDATA2LSB {
		return fmt.Errorf("%w: data encoding %s", ErrInvalidELF, f.Data)
	}
	if f.Machine != elf.EM_BPF && f.Machine != emSBF {
		return fmt.Errorf("%w: machine %s", ErrInvalidELF, f.Machine)
	}
	if f.Type != elf.ET_DYN {
		return fmt.Errorf("%w: type %s", ErrInvalidELF, f.Type)
	}
	return nil
}
