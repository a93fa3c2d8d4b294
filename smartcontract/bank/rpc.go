package bank

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

// LocalRPC answers the JSON-RPC calls a loader client makes from a bank in
// the same process. Transactions execute synchronously when sent, so a
// successful signature is immediately finalized.
type LocalRPC struct {
	bank *Bank

	mu     sync.Mutex
	landed map[solana.Signature]uint64
}

func NewLocalRPC(b *Bank) *LocalRPC {
	return &LocalRPC{bank: b, landed: make(map[solana.Signature]uint64)}
}

func (r *LocalRPC) GetLatestBlockhash(context.Context, solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error) {
	// Blockhashes are not checked by the bank; one per slot keeps signatures
	// of repeated instructions distinct across slots.
	slot := r.bank.cfg.Clock.Slot()
	var blockhash solana.Hash
	binary.LittleEndian.PutUint64(blockhash[:], slot)
	return &solanarpc.GetLatestBlockhashResult{
		Value: &solanarpc.LatestBlockhashResult{
			Blockhash:            blockhash,
			LastValidBlockHeight: slot + 150,
		},
	}, nil
}

func (r *LocalRPC) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, _ solanarpc.TransactionOpts) (solana.Signature, error) {
	if err := r.bank.ProcessTransaction(ctx, tx); err != nil {
		return solana.Signature{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.landed[tx.Signatures[0]] = r.bank.cfg.Clock.Slot()
	return tx.Signatures[0], nil
}

func (r *LocalRPC) GetSignatureStatuses(_ context.Context, _ bool, sigs ...solana.Signature) (*solanarpc.GetSignatureStatusesResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := &solanarpc.GetSignatureStatusesResult{Value: make([]*solanarpc.SignatureStatusesResult, len(sigs))}
	for i, sig := range sigs {
		slot, ok := r.landed[sig]
		if !ok {
			continue
		}
		res.Value[i] = &solanarpc.SignatureStatusesResult{
			Slot:               slot,
			ConfirmationStatus: solanarpc.ConfirmationStatusFinalized,
		}
	}
	return res, nil
}

func (r *LocalRPC) GetTransaction(_ context.Context, sig solana.Signature, _ *solanarpc.GetTransactionOpts) (*solanarpc.GetTransactionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.landed[sig]
	if !ok {
		return nil, solanarpc.ErrNotFound
	}
	return &solanarpc.GetTransactionResult{Slot: slot, Meta: &solanarpc.TransactionMeta{}}, nil
}

func (r *LocalRPC) GetAccountInfo(_ context.Context, key solana.PublicKey) (*solanarpc.GetAccountInfoResult, error) {
	account, err := r.bank.GetAccount(key)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, solanarpc.ErrNotFound
	}
	return &solanarpc.GetAccountInfoResult{
		Value: &solanarpc.Account{
			Lamports: account.Lamports,
			Owner:    account.Owner,
			Data:     solanarpc.DataBytesOrJSONFromBytes(account.Data),
		},
	}, nil
}

func (r *LocalRPC) GetMinimumBalanceForRentExemption(_ context.Context, dataSize uint64, _ solanarpc.CommitmentType) (uint64, error) {
	return r.bank.cfg.Rent.MinimumBalance(dataSize), nil
}
