package loaderv4

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	signatureSize = 64
	publicKeySize = 32

	// Fixed bytes of a legacy write transaction, excluding signatures and
	// account keys: the message header, the blockhash, the instruction count,
	// the program index, the two account indices with their count, a two byte
	// data length and the opcode and offset.
	writeTxFixedSize = 3 + 32 + 1 + 1 + 1 + 2 + 2 + 5
)

// MaxWriteChunkSize is the largest number of image bytes that fit in a single
// write transaction. The authority pays for the transaction unless
// separatePayer is set, which costs a signature and a key.
func MaxWriteChunkSize(separatePayer bool) int {
	signers, keys := 1, 3
	if separatePayer {
		signers, keys = 2, 4
	}
	overhead := 1 + signers*signatureSize + 1 + keys*publicKeySize + writeTxFixedSize
	return MaxTransactionSize - overhead
}

type DeploymentPlanConfig struct {
	ProgramPK   solana.PublicKey
	AuthorityPK solana.PublicKey
	Image       []byte

	// CurrentSize is the payload size of the program account today. Zero with
	// Initialize set means the account has no header yet.
	CurrentSize uint32
	Initialize  bool

	// Optional.
	DestinationPK solana.PublicKey
	ChunkSize     int
}

func (c *DeploymentPlanConfig) Validate() error {
	if c.ProgramPK.IsZero() {
		return fmt.Errorf("program public key is required")
	}
	if c.AuthorityPK.IsZero() {
		return fmt.Errorf("authority public key is required")
	}
	if len(c.Image) == 0 {
		return fmt.Errorf("image is required")
	}
	if uint64(len(c.Image)) > uint64(^uint32(0)) {
		return fmt.Errorf("image of %d bytes is too large", len(c.Image))
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = MaxWriteChunkSize(false)
	}
	if c.ChunkSize < 0 || c.ChunkSize > MaxWriteChunkSize(false) {
		return fmt.Errorf("chunk size must be between 1 and %d", MaxWriteChunkSize(false))
	}
	return nil
}

// DeploymentPlan is the instruction sequence that uploads an image into a
// retracted program and deploys it. Each instruction goes in its own
// transaction.
type DeploymentPlan struct {
	// Truncate is nil when the program already has the image's size.
	Truncate solana.Instruction
	Writes   []solana.Instruction
	Deploy   solana.Instruction
}

// Instructions returns the plan in execution order.
func (p *DeploymentPlan) Instructions() []solana.Instruction {
	out := make([]solana.Instruction, 0, len(p.Writes)+2)
	if p.Truncate != nil {
		out = append(out, p.Truncate)
	}
	out = append(out, p.Writes...)
	return append(out, p.Deploy)
}

func PlanDeployment(programID solana.PublicKey, config DeploymentPlanConfig) (*DeploymentPlan, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	size := uint32(len(config.Image))

	plan := &DeploymentPlan{}
	if config.Initialize || size != config.CurrentSize {
		ix, err := BuildTruncateInstruction(programID, TruncateInstructionConfig{
			ProgramPK:     config.ProgramPK,
			AuthorityPK:   config.AuthorityPK,
			NewSize:       size,
			DestinationPK: config.DestinationPK,
			Initialize:    config.Initialize,
		})
		if err != nil {
			return nil, err
		}
		plan.Truncate = ix
	}

	for off := 0; off < len(config.Image); off += config.ChunkSize {
		end := min(off+config.ChunkSize, len(config.Image))
		ix, err := BuildWriteInstruction(programID, WriteInstructionConfig{
			ProgramPK:   config.ProgramPK,
			AuthorityPK: config.AuthorityPK,
			Offset:      uint32(off),
			Bytes:       config.Image[off:end],
		})
		if err != nil {
			return nil, err
		}
		plan.Writes = append(plan.Writes, ix)
	}

	deploy, err := BuildDeployInstruction(programID, DeployInstructionConfig{
		ProgramPK:   config.ProgramPK,
		AuthorityPK: config.AuthorityPK,
	})
	if err != nil {
		return nil, err
	}
	plan.Deploy = deploy
	return plan, nil
}
