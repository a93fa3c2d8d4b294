package bank

import (
	"slices"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/processor"
)

// AccountsDB stores committed account state. Implementations must not retain
// or hand out references to the accounts they are given.
type AccountsDB interface {
	// GetAccount returns nil, nil if the account does not exist.
	GetAccount(key solana.PublicKey) (*processor.Account, error)
	SetAccount(account *processor.Account) error
	DeleteAccount(key solana.PublicKey) error
	Keys() []solana.PublicKey
}

type MemoryDB struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]*processor.Account
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		accounts: make(map[solana.PublicKey]*processor.Account),
	}
}

func (db *MemoryDB) GetAccount(key solana.PublicKey) (*processor.Account, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	account, ok := db.accounts[key]
	if !ok {
		return nil, nil
	}
	return account.Clone(), nil
}

// SetAccount stores a copy of account with its instruction flags cleared.
func (db *MemoryDB) SetAccount(account *processor.Account) error {
	stored := account.Clone()
	stored.IsSigner = false
	stored.IsWritable = false

	db.mu.Lock()
	defer db.mu.Unlock()
	db.accounts[account.Key] = stored
	return nil
}

func (db *MemoryDB) DeleteAccount(key solana.PublicKey) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.accounts, key)
	return nil
}

// Keys returns every stored key in ascending byte order.
func (db *MemoryDB) Keys() []solana.PublicKey {
	db.mu.RLock()
	keys := make([]solana.PublicKey, 0, len(db.accounts))
	for key := range db.accounts {
		keys = append(keys, key)
	}
	db.mu.RUnlock()

	slices.SortFunc(keys, bytesCompare)
	return keys
}

var _ AccountsDB = (*MemoryDB)(nil)
