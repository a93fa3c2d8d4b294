package loaderv4

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

var (
	ErrNoPrivateKey           = errors.New("no private key configured")
	ErrNoProgramID            = errors.New("no program ID configured")
	ErrInstructionFailed      = errors.New("instruction failed")
	ErrTransactionNotFinished = errors.New("transaction not confirmed yet")
)

type ExecutorRPCClient interface {
	GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*solanarpc.GetSignatureStatusesResult, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *solanarpc.GetTransactionOpts) (*solanarpc.GetTransactionResult, error)
}

// Executor signs, sends and confirms transactions. The configured signer pays
// for every transaction and is usually the program authority.
type Executor struct {
	log        *slog.Logger
	rpc        ExecutorRPCClient
	signer     *solana.PrivateKey
	programID  solana.PublicKey
	commitment solanarpc.CommitmentType
	timeout    time.Duration
	newBackOff func() backoff.BackOff
}

type ExecutorOption func(*Executor)

// WithCommitment sets the commitment the executor waits for.
func WithCommitment(commitment solanarpc.CommitmentType) ExecutorOption {
	return func(e *Executor) {
		e.commitment = commitment
	}
}

// WithConfirmTimeout bounds how long the executor waits for a transaction.
func WithConfirmTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = timeout
	}
}

func WithBackOff(newBackOff func() backoff.BackOff) ExecutorOption {
	return func(e *Executor) {
		e.newBackOff = newBackOff
	}
}

func NewExecutor(log *slog.Logger, rpc ExecutorRPCClient, signer *solana.PrivateKey, programID solana.PublicKey, opts ...ExecutorOption) *Executor {
	e := &Executor{
		log:        log,
		rpc:        rpc,
		signer:     signer,
		programID:  programID,
		commitment: solanarpc.CommitmentConfirmed,
		timeout:    90 * time.Second,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteTransaction sends instructions in one transaction signed by the
// executor's signer and any extra signers, and waits until it reaches the
// configured commitment.
func (e *Executor) ExecuteTransaction(ctx context.Context, instructions []solana.Instruction, extraSigners ...solana.PrivateKey) (solana.Signature, *solanarpc.GetTransactionResult, error) {
	if e.signer == nil {
		return solana.Signature{}, nil, ErrNoPrivateKey
	}
	if e.programID.IsZero() {
		return solana.Signature{}, nil, ErrNoProgramID
	}

	blockhashResult, err := e.rpc.GetLatestBlockhash(ctx, e.commitment)
	if err != nil {
		return solana.Signature{}, nil, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhashResult.Value.Blockhash,
		solana.TransactionPayer(e.signer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(e.signer.PublicKey()) {
			return e.signer
		}
		for i := range extraSigners {
			if key.Equals(extraSigners[i].PublicKey()) {
				return &extraSigners[i]
			}
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, nil, fmt.Errorf("failed to sign transaction (likely missing signer): %w", err)
	}
	if raw, err := tx.MarshalBinary(); err == nil && len(raw) > MaxTransactionSize {
		return solana.Signature{}, nil, fmt.Errorf("transaction is %d bytes, limit is %d", len(raw), MaxTransactionSize)
	}

	sig, err := e.rpc.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
		PreflightCommitment: e.commitment,
	})
	if err != nil {
		return solana.Signature{}, nil, fmt.Errorf("failed to send transaction: %w", rpcTransactionError(err))
	}
	e.log.Debug("--> Sent transaction", "sig", sig)

	res, err := e.waitForTransaction(ctx, sig)
	if err != nil {
		return sig, nil, err
	}
	return sig, res, nil
}

func (e *Executor) waitForTransaction(ctx context.Context, sig solana.Signature) (*solanarpc.GetTransactionResult, error) {
	start := time.Now()
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		resp, err := e.rpc.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return struct{}{}, err
		}
		if len(resp.Value) == 0 || resp.Value[0] == nil {
			return struct{}{}, ErrTransactionNotFinished
		}
		status := resp.Value[0]
		if status.Err != nil {
			return struct{}{}, backoff.Permanent(transactionError(status.Err))
		}
		if !reached(status.ConfirmationStatus, e.commitment) {
			return struct{}{}, ErrTransactionNotFinished
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(e.newBackOff()), backoff.WithMaxElapsedTime(e.timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to confirm transaction %s: %w", sig, err)
	}
	e.log.Debug("--> Transaction confirmed", "sig", sig, "duration", time.Since(start))

	tx, err := e.rpc.GetTransaction(ctx, sig, &solanarpc.GetTransactionOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: e.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if tx == nil || tx.Meta == nil {
		return nil, errors.New("transaction not found or missing metadata after confirmation")
	}
	if tx.Meta.Err != nil {
		return tx, transactionError(tx.Meta.Err)
	}
	return tx, nil
}

func reached(have solanarpc.ConfirmationStatusType, want solanarpc.CommitmentType) bool {
	switch want {
	case solanarpc.CommitmentFinalized:
		return have == solanarpc.ConfirmationStatusFinalized
	case solanarpc.CommitmentConfirmed:
		return have == solanarpc.ConfirmationStatusConfirmed || have == solanarpc.ConfirmationStatusFinalized
	default:
		return have != ""
	}
}

// InstructionError is a failed transaction as reported by the cluster.
type InstructionError struct {
	Index int
	// Name is the runtime error variant, e.g. "IncorrectAuthority".
	Name string
	Raw  any
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d failed: %s", e.Index, e.Name)
}

func (e *InstructionError) Unwrap() error {
	return ErrInstructionFailed
}

// transactionError converts the err field of a transaction status into an
// *InstructionError when it has the {"InstructionError": [index, detail]}
// shape.
func transactionError(raw any) error {
	errMap, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %v", ErrInstructionFailed, raw)
	}
	instructionError, ok := errMap["InstructionError"].([]any)
	if !ok || len(instructionError) < 2 {
		return fmt.Errorf("%w: %v", ErrInstructionFailed, raw)
	}

	var index int
	switch idx := instructionError[0].(type) {
	case json.Number:
		i, err := idx.Int64()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInstructionFailed, raw)
		}
		index = int(i)
	case float64:
		index = int(idx)
	default:
		return fmt.Errorf("%w: %v", ErrInstructionFailed, raw)
	}

	name := fmt.Sprint(instructionError[1])
	if detail, ok := instructionError[1].(map[string]any); ok {
		for k := range detail {
			name = k
		}
	}
	return &InstructionError{Index: index, Name: name, Raw: raw}
}

// rpcTransactionError extracts the transaction error carried by a preflight
// failure returned from sendTransaction.
func rpcTransactionError(err error) error {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}
	data, ok := rpcErr.Data.(map[string]any)
	if !ok {
		return err
	}
	if raw, ok := data["err"]; ok && raw != nil {
		return fmt.Errorf("%w: %w", err, transactionError(raw))
	}
	return err
}
