// Package bank is an in-process host for the loader program. It verifies and
// executes transactions against an account store the way a validator would:
// accounts are locked for the duration of a transaction, every instruction is
// checked for lamport conservation, and a transaction commits all of its
// changes or none of them.
package bank

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/processor"
)

var (
	ErrSignatureVerification = errors.New("signature verification failed")
	ErrAddressLookupTables   = errors.New("address lookup tables are not supported")
	ErrUnsupportedProgram    = errors.New("unsupported program")
	ErrInvalidAccountIndex   = errors.New("invalid account index")
	ErrUnbalancedInstruction = errors.New("instruction changed the total lamport balance")
	ErrReadonlyModified      = errors.New("instruction modified a read-only account")
)

// InstructionError reports the instruction that aborted a transaction.
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d: %v", e.Index, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}

type Config struct {
	ProgramID solana.PublicKey

	// Optional.
	Accounts         AccountsDB
	Clock            processor.Clock
	Rent             processor.Rent
	Verifier         processor.Verifier
	Logger           *slog.Logger
	ProgramCacheSize int64
}

func (c *Config) Validate() error {
	if c.ProgramID.IsZero() {
		return errors.New("program id is required")
	}
	if c.Accounts == nil {
		c.Accounts = NewMemoryDB()
	}
	if c.Clock == nil {
		c.Clock = NewManualClock(0)
	}
	if c.Rent == nil {
		c.Rent = processor.DefaultRent
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.ProgramCacheSize <= 0 {
		c.ProgramCacheSize = 64 << 20
	}
	return nil
}

type Bank struct {
	log       *slog.Logger
	cfg       Config
	processor *processor.Processor
	locker    *Locker
	cache     *programCache
}

func New(cfg Config) (*Bank, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cache, err := newProgramCache(cfg.ProgramCacheSize)
	if err != nil {
		return nil, err
	}
	var opts []processor.Option
	if cfg.Verifier != nil {
		opts = append(opts, processor.WithVerifier(cfg.Verifier))
	}
	return &Bank{
		log:       cfg.Logger,
		cfg:       cfg,
		processor: processor.New(cfg.ProgramID, opts...),
		locker:    NewLocker(),
		cache:     cache,
	}, nil
}

func (b *Bank) ProgramID() solana.PublicKey { return b.cfg.ProgramID }
func (b *Bank) Clock() processor.Clock      { return b.cfg.Clock }
func (b *Bank) Accounts() AccountsDB        { return b.cfg.Accounts }

func (b *Bank) Close() {
	b.cache.close()
}

// GetAccount returns the committed state of key, or nil if it does not exist.
func (b *Bank) GetAccount(key solana.PublicKey) (*processor.Account, error) {
	unlock := b.locker.Lock(nil, []solana.PublicKey{key})
	defer unlock()
	return b.cfg.Accounts.GetAccount(key)
}

// Fund credits lamports to key. A new account is created empty and owned by
// the loader, ready to be initialized by a truncate.
func (b *Bank) Fund(key solana.PublicKey, lamports uint64) error {
	unlock := b.locker.Lock([]solana.PublicKey{key}, nil)
	defer unlock()

	account, err := b.cfg.Accounts.GetAccount(key)
	if err != nil {
		return fmt.Errorf("failed to get account %s: %w", key, err)
	}
	if account == nil {
		account = &processor.Account{Key: key, Owner: b.cfg.ProgramID}
	}
	if account.Lamports+lamports < account.Lamports {
		return fmt.Errorf("funding %s overflows its balance", key)
	}
	account.Lamports += lamports
	if err := b.cfg.Accounts.SetAccount(account); err != nil {
		return fmt.Errorf("failed to set account %s: %w", key, err)
	}
	b.cache.invalidate(key)
	return nil
}

// LoadProgram returns the executable image of a deployed or finalized program.
// An image becomes visible DelayVisibilitySlotOffset slots after the slot it
// was deployed in. The returned program is shared and must not be modified.
func (b *Bank) LoadProgram(key solana.PublicKey) (*LoadedProgram, error) {
	unlock := b.locker.Lock(nil, []solana.PublicKey{key})
	defer unlock()

	program, ok := b.cache.get(key)
	if !ok {
		account, err := b.cfg.Accounts.GetAccount(key)
		if err != nil {
			return nil, fmt.Errorf("failed to get account %s: %w", key, err)
		}
		if account == nil {
			return nil, fmt.Errorf("%w: %s", ErrProgramNotFound, key)
		}
		program, err = loadProgram(b.cfg.ProgramID, account)
		if err != nil {
			return nil, err
		}
		b.cache.set(program)
	}
	if now := b.cfg.Clock.Slot(); now < program.EffectiveSlot() {
		return nil, fmt.Errorf("%w: %s deployed at slot %d, now %d", ErrProgramNotVisible, key, program.Slot, now)
	}
	return program, nil
}

// ProcessTransaction verifies tx and executes its instructions in order. On
// any failure no account changes are committed.
func (b *Bank) ProcessTransaction(ctx context.Context, tx *solana.Transaction) (err error) {
	start := time.Now()
	defer func() {
		TransactionDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			TransactionsTotal.WithLabelValues("error").Inc()
		} else {
			TransactionsTotal.WithLabelValues("success").Inc()
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &tx.Message
	if len(msg.AddressTableLookups) > 0 {
		return ErrAddressLookupTables
	}
	if err := tx.VerifySignatures(); err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureVerification, err)
	}

	keys := msg.AccountKeys
	var writable, readonly []solana.PublicKey
	for i, key := range keys {
		if _, w := accountFlags(msg, i); w {
			writable = append(writable, key)
		} else {
			readonly = append(readonly, key)
		}
	}
	unlock := b.locker.Lock(writable, readonly)
	defer unlock()

	accounts := make([]*processor.Account, len(keys))
	for i, key := range keys {
		account, err := b.cfg.Accounts.GetAccount(key)
		if err != nil {
			return fmt.Errorf("failed to get account %s: %w", key, err)
		}
		if account == nil {
			account = &processor.Account{Key: key, Owner: solana.SystemProgramID}
		}
		account.IsSigner, account.IsWritable = accountFlags(msg, i)
		accounts[i] = account
	}

	// Every instruction in a transaction sees the same slot.
	clock := fixedSlot(b.cfg.Clock.Slot())
	for idx, ix := range msg.Instructions {
		if err := b.processInstruction(accounts, clock, ix); err != nil {
			b.log.Debug("Instruction failed", "index", idx, "error", err)
			return &InstructionError{Index: idx, Err: err}
		}
	}

	for i, account := range accounts {
		if !account.IsWritable {
			continue
		}
		if account.Lamports == 0 && len(account.Data) == 0 {
			err = b.cfg.Accounts.DeleteAccount(keys[i])
		} else {
			err = b.cfg.Accounts.SetAccount(account)
		}
		if err != nil {
			return fmt.Errorf("failed to commit account %s: %w", keys[i], err)
		}
		b.cache.invalidate(keys[i])
	}
	return nil
}

func (b *Bank) processInstruction(accounts []*processor.Account, clock processor.Clock, ix solana.CompiledInstruction) (err error) {
	label := "Unknown"
	if len(ix.Data) > 0 {
		label = processor.Opcode(ix.Data[0]).String()
	}
	defer func() {
		result := "success"
		if err != nil {
			result = processor.InstructionErrorName(err)
			if result == "" {
				result = "error"
			}
		}
		InstructionsTotal.WithLabelValues(label, result).Inc()
	}()

	if int(ix.ProgramIDIndex) >= len(accounts) {
		return fmt.Errorf("%w: program index %d", ErrInvalidAccountIndex, ix.ProgramIDIndex)
	}
	if programID := accounts[ix.ProgramIDIndex].Key; !programID.Equals(b.cfg.ProgramID) {
		return fmt.Errorf("%w: %s", ErrUnsupportedProgram, programID)
	}
	ixAccounts := make([]*processor.Account, len(ix.Accounts))
	for i, index := range ix.Accounts {
		if int(index) >= len(accounts) {
			return fmt.Errorf("%w: account index %d", ErrInvalidAccountIndex, index)
		}
		ixAccounts[i] = accounts[index]
	}

	before := snapshotAccounts(ixAccounts)
	ic := &processor.InvokeContext{
		Accounts: ixAccounts,
		Clock:    clock,
		Rent:     b.cfg.Rent,
		Log:      b.log,
	}
	if err := b.processor.Process(ic, ix.Data); err != nil {
		return err
	}
	return verifyAccountChanges(before)
}

type accountSnapshot struct {
	live  *processor.Account
	saved *processor.Account
}

// snapshotAccounts copies each distinct account once.
func snapshotAccounts(accounts []*processor.Account) []accountSnapshot {
	seen := make(map[*processor.Account]struct{}, len(accounts))
	out := make([]accountSnapshot, 0, len(accounts))
	for _, a := range accounts {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, accountSnapshot{live: a, saved: a.Clone()})
	}
	return out
}

func verifyAccountChanges(before []accountSnapshot) error {
	var pre, post uint64
	for _, s := range before {
		pre += s.saved.Lamports
		post += s.live.Lamports
		if s.live.IsWritable {
			continue
		}
		if s.live.Lamports != s.saved.Lamports ||
			!s.live.Owner.Equals(s.saved.Owner) ||
			!bytes.Equal(s.live.Data, s.saved.Data) {
			return fmt.Errorf("%w: %s", ErrReadonlyModified, s.live.Key)
		}
	}
	if pre != post {
		return fmt.Errorf("%w: %d before, %d after", ErrUnbalancedInstruction, pre, post)
	}
	return nil
}

// accountFlags derives the signer and writable flags of account i from the
// message header.
func accountFlags(msg *solana.Message, i int) (signer, writable bool) {
	h := msg.Header
	signed := int(h.NumRequiredSignatures)
	if i < signed {
		return true, i < signed-int(h.NumReadonlySignedAccounts)
	}
	return false, i < len(msg.AccountKeys)-int(h.NumReadonlyUnsignedAccounts)
}

type fixedSlot uint64

func (s fixedSlot) Slot() uint64 { return uint64(s) }
