package loaderv4

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"
)

type WriteInstructionConfig struct {
	ProgramPK   solana.PublicKey
	AuthorityPK solana.PublicKey
	Offset      uint32
	Bytes       []byte
}

func (c *WriteInstructionConfig) Validate() error {
	if c.ProgramPK.IsZero() {
		return fmt.Errorf("program public key is required")
	}
	if c.AuthorityPK.IsZero() {
		return fmt.Errorf("authority public key is required")
	}
	return nil
}

// Builds the instruction that writes bytes into a retracted program.
func BuildWriteInstruction(programID solana.PublicKey, config WriteInstructionConfig) (solana.Instruction, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	// The bytes run to the end of the instruction and carry no length prefix.
	data, err := borsh.Serialize(struct {
		Discriminator uint8
		Offset        uint32
	}{
		Discriminator: uint8(WriteInstructionIndex),
		Offset:        config.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize args: %w", err)
	}
	data = append(data, config.Bytes...)

	return &solana.GenericInstruction{
		ProgID: programID,
		AccountValues: solana.AccountMetaSlice{
			solana.Meta(config.ProgramPK).WRITE(),
			solana.Meta(config.AuthorityPK).SIGNER(),
		},
		DataBytes: data,
	}, nil
}

type TruncateInstructionConfig struct {
	ProgramPK   solana.PublicKey
	AuthorityPK solana.PublicKey
	NewSize     uint32
	// Optional. Receives lamports freed by shrinking.
	DestinationPK solana.PublicKey
	// Set when the program account has no header yet. The program must then
	// sign.
	Initialize bool
}

func (c *TruncateInstructionConfig) Validate() error {
	if c.ProgramPK.IsZero() {
		return fmt.Errorf("program public key is required")
	}
	if c.AuthorityPK.IsZero() {
		return fmt.Errorf("authority public key is required")
	}
	if c.Initialize && c.NewSize == 0 {
		return fmt.Errorf("new size is required to initialize a program")
	}
	return nil
}

// Builds the instruction that resizes, initializes or closes a program.
func BuildTruncateInstruction(programID solana.PublicKey, config TruncateInstructionConfig) (solana.Instruction, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	data, err := borsh.Serialize(struct {
		Discriminator uint8
		NewSize       uint32
	}{
		Discriminator: uint8(TruncateInstructionIndex),
		NewSize:       config.NewSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize args: %w", err)
	}

	program := solana.Meta(config.ProgramPK).WRITE()
	if config.Initialize {
		program = program.SIGNER()
	}
	accounts := solana.AccountMetaSlice{
		program,
		solana.Meta(config.AuthorityPK).SIGNER(),
	}
	if !config.DestinationPK.IsZero() {
		accounts = append(accounts, solana.Meta(config.DestinationPK).WRITE())
	}

	return &solana.GenericInstruction{
		ProgID:        programID,
		AccountValues: accounts,
		DataBytes:     data,
	}, nil
}

type DeployInstructionConfig struct {
	ProgramPK   solana.PublicKey
	AuthorityPK solana.PublicKey
	// Optional. A retracted program whose image replaces the program's.
	SourcePK solana.PublicKey
}

func (c *DeployInstructionConfig) Validate() error {
	if c.ProgramPK.IsZero() {
		return fmt.Errorf("program public key is required")
	}
	if c.AuthorityPK.IsZero() {
		return fmt.Errorf("authority public key is required")
	}
	return nil
}

func BuildDeployInstruction(programID solana.PublicKey, config DeployInstructionConfig) (solana.Instruction, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	accounts := solana.AccountMetaSlice{
		solana.Meta(config.ProgramPK).WRITE(),
		solana.Meta(config.AuthorityPK).SIGNER(),
	}
	if !config.SourcePK.IsZero() {
		accounts = append(accounts, solana.Meta(config.SourcePK).WRITE())
	}
	return &solana.GenericInstruction{
		ProgID:        programID,
		AccountValues: accounts,
		DataBytes:     []byte{uint8(DeployInstructionIndex)},
	}, nil
}

func BuildRetractInstruction(programID, programPK, authorityPK solana.PublicKey) (solana.Instruction, error) {
	if programPK.IsZero() || authorityPK.IsZero() {
		return nil, fmt.Errorf("program and authority public keys are required")
	}
	return &solana.GenericInstruction{
		ProgID: programID,
		AccountValues: solana.AccountMetaSlice{
			solana.Meta(programPK).WRITE(),
			solana.Meta(authorityPK).SIGNER(),
		},
		DataBytes: []byte{uint8(RetractInstructionIndex)},
	}, nil
}

func BuildTransferAuthorityInstruction(programID, programPK, authorityPK, newAuthorityPK solana.PublicKey) (solana.Instruction, error) {
	if programPK.IsZero() || authorityPK.IsZero() || newAuthorityPK.IsZero() {
		return nil, fmt.Errorf("program, authority and new authority public keys are required")
	}
	return &solana.GenericInstruction{
		ProgID: programID,
		AccountValues: solana.AccountMetaSlice{
			solana.Meta(programPK).WRITE(),
			solana.Meta(authorityPK).SIGNER(),
			solana.Meta(newAuthorityPK).SIGNER(),
		},
		DataBytes: []byte{uint8(TransferAuthorityInstructionIndex)},
	}, nil
}

// Builds the instruction that finalizes a program. nextVersionPK may be the
// program itself.
func BuildFinalizeInstruction(programID, programPK, authorityPK, nextVersionPK solana.PublicKey) (solana.Instruction, error) {
	if programPK.IsZero() || authorityPK.IsZero() || nextVersionPK.IsZero() {
		return nil, fmt.Errorf("program, authority and next version public keys are required")
	}
	return &solana.GenericInstruction{
		ProgID: programID,
		AccountValues: solana.AccountMetaSlice{
			solana.Meta(programPK).WRITE(),
			solana.Meta(authorityPK).SIGNER(),
			solana.Meta(nextVersionPK),
		},
		DataBytes: []byte{uint8(FinalizeInstructionIndex)},
	}, nil
}
