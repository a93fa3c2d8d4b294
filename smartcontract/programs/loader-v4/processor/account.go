package processor

import (
	"log/slog"

	"github.com/gagliardetto/solana-go"
)

// Account is an instruction account as seen by the loader. The same *Account
// appears at every position where a key is repeated.
type Account struct {
	Key        solana.PublicKey
	Owner      solana.PublicKey
	Lamports   uint64
	Data       []byte
	IsSigner   bool
	IsWritable bool
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return &clone
}

// resize sets the data length to n, zero-filling any growth.
func (a *Account) resize(n int) {
	if n <= cap(a.Data) {
		old := len(a.Data)
		a.Data = a.Data[:n]
		if n > old {
			clear(a.Data[old:n])
		}
		return
	}
	data := make([]byte, n)
	copy(data, a.Data)
	a.Data = data
}

// Clock reports the current slot.
type Clock interface {
	Slot() uint64
}

// Rent reports the minimum balance that exempts an account of the given total
// data length from rent.
type Rent interface {
	MinimumBalance(dataLen uint64) uint64
}

// Verifier checks that a program image is executable. It is supplied by the
// host; a nil Verifier accepts every image.
type Verifier interface {
	Verify(image []byte) error
}

// InvokeContext carries the accounts and host services of one instruction.
type InvokeContext struct {
	Accounts []*Account
	Clock    Clock
	Rent     Rent
	Log      *slog.Logger
}

func (ic *InvokeContext) account(i int) (*Account, error) {
	if i >= len(ic.Accounts) || ic.Accounts[i] == nil {
		return nil, ErrNotEnoughAccountKeys
	}
	return ic.Accounts[i], nil
}

// optionalAccount returns nil if the instruction did not supply position i.
func (ic *InvokeContext) optionalAccount(i int) *Account {
	if i >= len(ic.Accounts) {
		return nil
	}
	return ic.Accounts[i]
}

func (ic *InvokeContext) log() *slog.Logger {
	if ic.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return ic.Log
}

func (ic *InvokeContext) rent() Rent {
	if ic.Rent == nil {
		return DefaultRent
	}
	return ic.Rent
}

// now returns the current slot, or 0 when no clock is attached.
func (ic *InvokeContext) now() uint64 {
	if ic.Clock == nil {
		return 0
	}
	return ic.Clock.Slot()
}
