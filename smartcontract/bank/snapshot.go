package bank

import (
	"errors"
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"
	"github.com/klauspost/compress/zstd"
	"github.com/near/borsh-go"

	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/processor"
)

const snapshotVersion uint8 = 1

var ErrInvalidSnapshot = errors.New("invalid snapshot")

type snapshotAccount struct {
	Key      solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

type snapshotFile struct {
	Version  uint8
	Slot     uint64
	Accounts []snapshotAccount
}

// Snapshot writes every committed account and the current slot to w as a
// zstd-compressed borsh document. Accounts are read under a shared lock, so
// the snapshot is consistent with respect to concurrent transactions.
func (b *Bank) Snapshot(w io.Writer) error {
	keys := b.cfg.Accounts.Keys()
	unlock := b.locker.Lock(nil, keys)
	defer unlock()

	file := snapshotFile{
		Version:  snapshotVersion,
		Slot:     b.cfg.Clock.Slot(),
		Accounts: make([]snapshotAccount, 0, len(keys)),
	}
	for _, key := range keys {
		account, err := b.cfg.Accounts.GetAccount(key)
		if err != nil {
			return fmt.Errorf("failed to get account %s: %w", key, err)
		}
		if account == nil {
			continue
		}
		file.Accounts = append(file.Accounts, snapshotAccount{
			Key:      account.Key,
			Owner:    account.Owner,
			Lamports: account.Lamports,
			Data:     account.Data,
		})
	}

	data, err := borsh.Serialize(file)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return enc.Close()
}

// ReadSnapshot loads a snapshot written by Snapshot into a new MemoryDB and
// returns the slot it was taken at.
func ReadSnapshot(r io.Reader) (*MemoryDB, uint64, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	var file snapshotFile
	if err := borsh.Deserialize(&file, data); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	if file.Version != snapshotVersion {
		return nil, 0, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, file.Version)
	}

	db := NewMemoryDB()
	for _, a := range file.Accounts {
		if err := db.SetAccount(&processor.Account{
			Key:      a.Key,
			Owner:    a.Owner,
			Lamports: a.Lamports,
			Data:     a.Data,
		}); err != nil {
			return nil, 0, err
		}
	}
	return db, file.Slot, nil
}
