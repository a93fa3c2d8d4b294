package bank

import (
	"bytes"
	"slices"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Locker hands out per-account locks: exclusive for writable accounts, shared
// for read-only ones. Locks are always taken in ascending key order so two
// transactions over overlapping accounts cannot deadlock.
type Locker struct {
	mu    sync.Mutex
	locks map[solana.PublicKey]*sync.RWMutex
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[solana.PublicKey]*sync.RWMutex)}
}

func (l *Locker) lockFor(key solana.PublicKey) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.RWMutex{}
		l.locks[key] = m
	}
	return m
}

// Lock blocks until every account is locked and returns the function that
// releases them. A key listed in both sets is locked for writing.
func (l *Locker) Lock(writable, readonly []solana.PublicKey) (unlock func()) {
	mode := make(map[solana.PublicKey]bool, len(writable)+len(readonly))
	for _, key := range readonly {
		mode[key] = false
	}
	for _, key := range writable {
		mode[key] = true
	}
	keys := make([]solana.PublicKey, 0, len(mode))
	for key := range mode {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, bytesCompare)

	held := make([]func(), 0, len(keys))
	for _, key := range keys {
		m := l.lockFor(key)
		if mode[key] {
			m.Lock()
			held = append(held, m.Unlock)
		} else {
			m.RLock()
			held = append(held, m.RUnlock)
		}
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
}

func bytesCompare(a, b solana.PublicKey) int {
	return bytes.Compare(a[:], b[:])
}
