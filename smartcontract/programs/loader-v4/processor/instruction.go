package processor

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// Opcode is the leading byte of every loader instruction.
type Opcode uint8

const (
	OpWrite Opcode = iota
	OpTruncate
	OpDeploy
	OpRetract
	OpTransferAuthority
	OpFinalize
)

func (o Opcode) String() string {
	switch o {
	case OpWrite:
		return "Write"
	case OpTruncate:
		return "Truncate"
	case OpDeploy:
		return "Deploy"
	case OpRetract:
		return "Retract"
	case OpTransferAuthority:
		return "TransferAuthority"
	case OpFinalize:
		return "Finalize"
	default:
		return fmt.Sprintf("Opcode(%d)", uint8(o))
	}
}

// Instruction is a decoded loader instruction. Offset and Bytes are set for
// Write, NewSize for Truncate.
type Instruction struct {
	Op      Opcode
	Offset  uint32
	Bytes   []byte
	NewSize uint32
}

// DecodeInstruction parses data. Trailing or missing bytes are rejected.
func DecodeInstruction(data []byte) (Instruction, error) {
	dec := bin.NewBinDecoder(data)
	op, err := dec.ReadUint8()
	if err != nil {
		return Instruction{}, fmt.Errorf("%w: missing opcode", ErrInvalidInstructionData)
	}

	ix := Instruction{Op: Opcode(op)}
	switch ix.Op {
	case OpWrite:
		if ix.Offset, err = dec.ReadUint32(bin.LE); err != nil {
			return Instruction{}, fmt.Errorf("%w: write offset: %w", ErrInvalidInstructionData, err)
		}
		if ix.Bytes, err = dec.ReadBytes(dec.Remaining()); err != nil {
			return Instruction{}, fmt.Errorf("%w: write bytes: %w", ErrInvalidInstructionData, err)
		}
	case OpTruncate:
		if dec.Remaining() != 4 {
			return Instruction{}, fmt.Errorf("%w: truncate takes 4 bytes, got %d", ErrInvalidInstructionData, dec.Remaining())
		}
		if ix.NewSize, err = dec.ReadUint32(bin.LE); err != nil {
			return Instruction{}, fmt.Errorf("%w: truncate size: %w", ErrInvalidInstructionData, err)
		}
	case OpDeploy, OpRetract, OpTransferAuthority, OpFinalize:
		if dec.Remaining() != 0 {
			return Instruction{}, fmt.Errorf("%w: %s takes no arguments, got %d bytes", ErrInvalidInstructionData, ix.Op, dec.Remaining())
		}
	default:
		return Instruction{}, fmt.Errorf("%w: unknown opcode %d", ErrInvalidInstructionData, op)
	}
	return ix, nil
}

// Encode serializes ix in the format DecodeInstruction accepts.
func (ix Instruction) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := bin.NewBinEncoder(&buf)
	if err := enc.WriteUint8(uint8(ix.Op)); err != nil {
		return nil, err
	}
	switch ix.Op {
	case OpWrite:
		if err := enc.WriteUint32(ix.Offset, bin.LE); err != nil {
			return nil, err
		}
		if err := enc.WriteBytes(ix.Bytes, false); err != nil {
			return nil, err
		}
	case OpTruncate:
		if err := enc.WriteUint32(ix.NewSize, bin.LE); err != nil {
			return nil, err
		}
	case OpDeploy, OpRetract, OpTransferAuthority, OpFinalize:
	default:
		return nil, fmt.Errorf("%w: unknown opcode %d", ErrInvalidInstructionData, uint8(ix.Op))
	}
	return buf.Bytes(), nil
}

// Process decodes data and runs the matching handler against ic.
func (p *Processor) Process(ic *InvokeContext, data []byte) error {
	ix, err := DecodeInstruction(data)
	if err != nil {
		ic.log().Debug("Invalid instruction data", "error", err)
		return err
	}
	ic.log().Debug("Processing instruction", "instruction", ix.Op)

	switch ix.Op {
	case OpWrite:
		return p.Write(ic, ix.Offset, ix.Bytes)
	case OpTruncate:
		return p.Truncate(ic, ix.NewSize)
	case OpDeploy:
		return p.Deploy(ic)
	case OpRetract:
		return p.Retract(ic)
	case OpTransferAuthority:
		return p.TransferAuthority(ic)
	case OpFinalize:
		return p.Finalize(ic)
	}
	return fmt.Errorf("%w: unknown opcode %d", ErrInvalidInstructionData, uint8(ix.Op))
}
