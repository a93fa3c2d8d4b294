package processor

import (
	"fmt"

	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/state"
)

const (
	// MaxPermittedDataLength is the largest account data length the runtime allows.
	MaxPermittedDataLength = 10 * 1024 * 1024

	DefaultLamportsPerByteYear  = 3480
	DefaultExemptionThreshold   = 2.0
	AccountStorageOverheadBytes = 128
)

// DefaultRent is the rent schedule used on mainnet.
var DefaultRent Rent = RentSchedule{
	LamportsPerByteYear: DefaultLamportsPerByteYear,
	ExemptionThreshold:  DefaultExemptionThreshold,
}

// RentSchedule computes rent exemption the way the runtime rent sysvar does.
type RentSchedule struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
}

func (r RentSchedule) MinimumBalance(dataLen uint64) uint64 {
	bytes := dataLen + AccountStorageOverheadBytes
	return uint64(float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold)
}

// RequiredBalance is the balance a program account with a payload of size
// bytes must hold. A closed account needs nothing; an open one needs at least
// one lamport so it is never garbage collected.
func RequiredBalance(rent Rent, size uint64) uint64 {
	if size == 0 {
		return 0
	}
	return requiredBalanceForLength(rent, state.HeaderSize+size)
}

// requiredBalanceForLength is RequiredBalance for a whole buffer, header
// included.
func requiredBalanceForLength(rent Rent, dataLen uint64) uint64 {
	if dataLen == 0 {
		return 0
	}
	return max(1, rent.MinimumBalance(dataLen))
}

// balanceTransfer is a planned lamport move. It is computed during validation
// and applied only once every check has passed.
type balanceTransfer struct {
	from, to *Account
	amount   uint64
}

func (t balanceTransfer) apply() {
	if t.amount == 0 {
		return
	}
	t.from.Lamports -= t.amount
	t.to.Lamports += t.amount
}

// reconcile plans the transfer that leaves account holding exactly required
// lamports, sending any surplus to destination.
func reconcile(account *Account, required uint64, destination *Account) (balanceTransfer, error) {
	switch {
	case account.Lamports < required:
		return balanceTransfer{}, fmt.Errorf("%w: %s has %d lamports, needs %d", ErrInsufficientFunds, account.Key, account.Lamports, required)
	case account.Lamports > required:
		if destination == nil {
			return balanceTransfer{}, fmt.Errorf("%w: a destination is required to receive %d surplus lamports", ErrNotWritable, account.Lamports-required)
		}
		if !destination.IsWritable {
			return balanceTransfer{}, fmt.Errorf("%w: destination %s", ErrNotWritable, destination.Key)
		}
		if destination == account || destination.Key.Equals(account.Key) {
			return balanceTransfer{}, fmt.Errorf("%w: destination %s is the program itself", ErrNotWritable, destination.Key)
		}
		if destination.Lamports+(account.Lamports-required) < destination.Lamports {
			return balanceTransfer{}, fmt.Errorf("%w: destination %s balance overflow", ErrOutOfBounds, destination.Key)
		}
		return balanceTransfer{from: account, to: destination, amount: account.Lamports - required}, nil
	default:
		return balanceTransfer{}, nil
	}
}
