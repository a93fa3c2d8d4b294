package bank

import (
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestLoaderV4_Locker_WriterExcludesReaders(t *testing.T) {
	t.Parallel()

	l := NewLocker()
	key := solana.NewWallet().PublicKey()
	unlock := l.Lock([]solana.PublicKey{key}, nil)

	acquired := make(chan struct{})
	go func() {
		release := l.Lock(nil, []solana.PublicKey{key})
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("read lock acquired while write lock held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("read lock not acquired after write lock released")
	}
}

func TestLoaderV4_Locker_ReadersShare(t *testing.T) {
	t.Parallel()

	l := NewLocker()
	keys := []solana.PublicKey{solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()}
	first := l.Lock(nil, keys)
	second := l.Lock(nil, keys)
	second()
	first()

	// A key in both sets is write locked.
	unlock := l.Lock(keys[:1], keys)
	require.False(t, l.lockFor(keys[0]).TryRLock())
	require.True(t, l.lockFor(keys[1]).TryRLock())
	l.lockFor(keys[1]).RUnlock()
	unlock()
}

func TestLoaderV4_Locker_OppositeOrderDoesNotDeadlock(t *testing.T) {
	t.Parallel()

	l := NewLocker()
	a, b := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	var wg sync.WaitGroup
	for _, keys := range [][]solana.PublicKey{{a, b}, {b, a}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				l.Lock(keys, nil)()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("lockers deadlocked")
	}
}
