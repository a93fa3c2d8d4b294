package loaderv4

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/state"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrProgramFinalized  = errors.New("program is finalized")
	ErrProgramKeyMissing = errors.New("program keypair is required to create a program")
	ErrSourceNotStaged   = errors.New("source program is not retracted")
)

type Client struct {
	log       *slog.Logger
	rpc       RPCClient
	executor  *Executor
	programID solana.PublicKey
}

func New(log *slog.Logger, rpc RPCClient, signer *solana.PrivateKey, programID solana.PublicKey, opts ...ExecutorOption) *Client {
	return &Client{
		log:       log,
		rpc:       rpc,
		executor:  NewExecutor(log, rpc, signer, programID, opts...),
		programID: programID,
	}
}

func (c *Client) ProgramID() solana.PublicKey {
	return c.programID
}

func (c *Client) Signer() *solana.PrivateKey {
	return c.executor.signer
}

// ProgramAccountInfo is a program account together with its balance.
type ProgramAccountInfo struct {
	*ProgramAccount
	Key      solana.PublicKey
	Lamports uint64
}

func (c *Client) GetProgramAccount(ctx context.Context, programPK solana.PublicKey) (*ProgramAccountInfo, error) {
	info, err := c.getAccount(ctx, programPK)
	if err != nil {
		return nil, err
	}
	if !info.Owner.Equals(c.programID) {
		return nil, fmt.Errorf("%w: %s is owned by %s", ErrNotProgramAccount, programPK, info.Owner)
	}
	account, err := DeserializeProgramAccount(info.Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize account data: %w", err)
	}
	return &ProgramAccountInfo{ProgramAccount: account, Key: programPK, Lamports: info.Lamports}, nil
}

func (c *Client) getAccount(ctx context.Context, key solana.PublicKey) (*solanarpc.Account, error) {
	res, err := c.rpc.GetAccountInfo(ctx, key)
	if err != nil {
		if errors.Is(err, solanarpc.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account info: %w", err)
	}
	if res == nil || res.Value == nil {
		return nil, ErrAccountNotFound
	}
	return res.Value, nil
}

type DeployConfig struct {
	// ProgramKey signs the initialization of a new program. Upgrades of an
	// existing program only need ProgramPK.
	ProgramKey *solana.PrivateKey
	ProgramPK  solana.PublicKey
	Image      []byte
}

func (c *DeployConfig) Validate() error {
	if c.ProgramKey != nil {
		if !c.ProgramPK.IsZero() && !c.ProgramPK.Equals(c.ProgramKey.PublicKey()) {
			return fmt.Errorf("program key does not match program public key")
		}
		c.ProgramPK = c.ProgramKey.PublicKey()
	}
	if c.ProgramPK.IsZero() {
		return fmt.Errorf("program public key is required")
	}
	if len(c.Image) == 0 {
		return fmt.Errorf("image is required")
	}
	return nil
}

// Deploy uploads image into the program and deploys it. A missing account is
// created and funded by the signer; a deployed program is retracted first.
// It returns the signature of the deploy transaction.
func (c *Client) Deploy(ctx context.Context, config DeployConfig) (solana.Signature, error) {
	plan, err := c.upload(ctx, &config)
	if err != nil {
		return solana.Signature{}, err
	}
	sig, _, err := c.executor.ExecuteTransaction(ctx, []solana.Instruction{plan.Deploy})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to deploy: %w", err)
	}
	c.log.Info("Deployed program", "program", config.ProgramPK, "size", len(config.Image), "sig", sig)
	return sig, nil
}

// Upload writes image into the program like Deploy but leaves it retracted,
// staging it as the source of a later DeployFromSource.
func (c *Client) Upload(ctx context.Context, config DeployConfig) error {
	if _, err := c.upload(ctx, &config); err != nil {
		return err
	}
	c.log.Info("Uploaded program", "program", config.ProgramPK, "size", len(config.Image))
	return nil
}

func (c *Client) upload(ctx context.Context, config *DeployConfig) (*DeploymentPlan, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	if c.executor.signer == nil {
		return nil, ErrNoPrivateKey
	}
	authority := c.executor.signer.PublicKey()
	programPK := config.ProgramPK

	rent, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, uint64(HeaderSize+len(config.Image)), solanarpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to get rent: %w", err)
	}
	required := max(1, rent)

	var (
		setup       []solana.Instruction
		initialize  bool
		currentSize uint32
		balance     uint64
	)
	account, err := c.getAccount(ctx, programPK)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		setup = append(setup, system.NewCreateAccountInstruction(required, 0, c.programID, authority, programPK).Build())
		initialize = true
		balance = required
	case err != nil:
		return nil, err
	default:
		if !account.Owner.Equals(c.programID) {
			return nil, fmt.Errorf("%w: %s is owned by %s", ErrNotProgramAccount, programPK, account.Owner)
		}
		balance = account.Lamports
		data := account.Data.GetBinary()
		if len(data) < HeaderSize {
			initialize = true
			break
		}
		program, err := DeserializeProgramAccount(data)
		if err != nil {
			return nil, err
		}
		switch program.Status() {
		case state.StatusFinalized:
			return nil, fmt.Errorf("%w: %s", ErrProgramFinalized, programPK)
		case state.StatusDeployed:
			c.log.Info("Retracting deployed program before upgrade", "program", programPK)
			if _, err := c.Retract(ctx, programPK); err != nil {
				return nil, err
			}
		}
		currentSize = uint32(len(program.Payload))
	}
	if initialize && config.ProgramKey == nil {
		return nil, ErrProgramKeyMissing
	}
	if balance < required {
		setup = append(setup, system.NewTransferInstruction(required-balance, authority, programPK).Build())
	}

	plan, err := PlanDeployment(c.programID, DeploymentPlanConfig{
		ProgramPK:     programPK,
		AuthorityPK:   authority,
		Image:         config.Image,
		CurrentSize:   currentSize,
		Initialize:    initialize,
		DestinationPK: authority,
	})
	if err != nil {
		return nil, err
	}

	var extra []solana.PrivateKey
	if initialize {
		extra = append(extra, *config.ProgramKey)
	}
	if plan.Truncate != nil {
		setup = append(setup, plan.Truncate)
	}
	if len(setup) > 0 {
		if _, _, err := c.executor.ExecuteTransaction(ctx, setup, extra...); err != nil {
			return nil, fmt.Errorf("failed to prepare program account: %w", err)
		}
	}

	for i, ix := range plan.Writes {
		if _, _, err := c.executor.ExecuteTransaction(ctx, []solana.Instruction{ix}); err != nil {
			return nil, fmt.Errorf("failed to write chunk %d of %d: %w", i+1, len(plan.Writes), err)
		}
		c.log.Debug("--> Wrote chunk", "program", programPK, "chunk", i+1, "of", len(plan.Writes))
	}
	return plan, nil
}

// DeployFromSource replaces the image of programPK with the one staged in
// sourcePK and deploys it in a single transaction. The source must be a
// retracted program of the same authority; it is left with no data and any
// surplus balance. A deployed program is retracted first.
func (c *Client) DeployFromSource(ctx context.Context, programPK, sourcePK solana.PublicKey) (solana.Signature, error) {
	if c.executor.signer == nil {
		return solana.Signature{}, ErrNoPrivateKey
	}
	if programPK.Equals(sourcePK) {
		return solana.Signature{}, fmt.Errorf("%w: source is the program itself", ErrSourceNotStaged)
	}

	source, err := c.GetProgramAccount(ctx, sourcePK)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get source: %w", err)
	}
	if source.Status() != state.StatusRetracted {
		return solana.Signature{}, fmt.Errorf("%w: %s is %s", ErrSourceNotStaged, sourcePK, source.Status())
	}
	program, err := c.GetProgramAccount(ctx, programPK)
	if err != nil {
		return solana.Signature{}, err
	}
	switch program.Status() {
	case state.StatusFinalized:
		return solana.Signature{}, fmt.Errorf("%w: %s", ErrProgramFinalized, programPK)
	case state.StatusDeployed:
		c.log.Info("Retracting deployed program before upgrade", "program", programPK)
		if _, err := c.Retract(ctx, programPK); err != nil {
			return solana.Signature{}, err
		}
	}

	ix, err := BuildDeployInstruction(c.programID, DeployInstructionConfig{
		ProgramPK:   programPK,
		AuthorityPK: c.executor.signer.PublicKey(),
		SourcePK:    sourcePK,
	})
	if err != nil {
		return solana.Signature{}, err
	}
	sig, _, err := c.executor.ExecuteTransaction(ctx, []solana.Instruction{ix})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to deploy from source: %w", err)
	}
	c.log.Info("Deployed program from source", "program", programPK, "source", sourcePK, "size", len(source.Payload), "sig", sig)
	return sig, nil
}

func (c *Client) Retract(ctx context.Context, programPK solana.PublicKey) (solana.Signature, error) {
	if c.executor.signer == nil {
		return solana.Signature{}, ErrNoPrivateKey
	}
	ix, err := BuildRetractInstruction(c.programID, programPK, c.executor.signer.PublicKey())
	if err != nil {
		return solana.Signature{}, err
	}
	sig, _, err := c.executor.ExecuteTransaction(ctx, []solana.Instruction{ix})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to retract: %w", err)
	}
	return sig, nil
}

// TransferAuthority hands the program to newAuthority, which co-signs.
func (c *Client) TransferAuthority(ctx context.Context, programPK solana.PublicKey, newAuthority solana.PrivateKey) (solana.Signature, error) {
	if c.executor.signer == nil {
		return solana.Signature{}, ErrNoPrivateKey
	}
	ix, err := BuildTransferAuthorityInstruction(c.programID, programPK, c.executor.signer.PublicKey(), newAuthority.PublicKey())
	if err != nil {
		return solana.Signature{}, err
	}
	sig, _, err := c.executor.ExecuteTransaction(ctx, []solana.Instruction{ix}, newAuthority)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to transfer authority: %w", err)
	}
	return sig, nil
}

// Finalize makes the program immutable. A zero nextVersionPK names the program
// itself.
func (c *Client) Finalize(ctx context.Context, programPK, nextVersionPK solana.PublicKey) (solana.Signature, error) {
	if c.executor.signer == nil {
		return solana.Signature{}, ErrNoPrivateKey
	}
	if nextVersionPK.IsZero() {
		nextVersionPK = programPK
	}
	ix, err := BuildFinalizeInstruction(c.programID, programPK, c.executor.signer.PublicKey(), nextVersionPK)
	if err != nil {
		return solana.Signature{}, err
	}
	sig, _, err := c.executor.ExecuteTransaction(ctx, []solana.Instruction{ix})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to finalize: %w", err)
	}
	return sig, nil
}

// Close truncates a retracted program to zero and sends its balance to
// destination, or to the signer when destination is zero.
func (c *Client) Close(ctx context.Context, programPK, destination solana.PublicKey) (solana.Signature, error) {
	if c.executor.signer == nil {
		return solana.Signature{}, ErrNoPrivateKey
	}
	if destination.IsZero() {
		destination = c.executor.signer.PublicKey()
	}
	ix, err := BuildTruncateInstruction(c.programID, TruncateInstructionConfig{
		ProgramPK:     programPK,
		AuthorityPK:   c.executor.signer.PublicKey(),
		NewSize:       0,
		DestinationPK: destination,
	})
	if err != nil {
		return solana.Signature{}, err
	}
	sig, _, err := c.executor.ExecuteTransaction(ctx, []solana.Instruction{ix})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to close: %w", err)
	}
	return sig, nil
}
