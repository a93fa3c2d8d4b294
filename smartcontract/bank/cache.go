package bank

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"github.com/gagliardetto/solana-go"

	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/processor"
	"github.com/solana-program/loader-v4/smartcontract/programs/loader-v4/state"
)

var (
	ErrProgramNotFound   = errors.New("program not found")
	ErrProgramNotLoader  = errors.New("account is not a loader program")
	ErrProgramRetracted  = errors.New("program is retracted")
	ErrProgramNotVisible = errors.New("program was deployed in this slot and is not visible yet")
)

// LoadedProgram is an executable image as the runtime sees it.
type LoadedProgram struct {
	Key    solana.PublicKey
	Slot   uint64
	Status state.Status
	// NextVersion is set for finalized programs.
	NextVersion *solana.PublicKey
	Image       []byte
}

// EffectiveSlot is the first slot in which the image may be executed.
func (p *LoadedProgram) EffectiveSlot() uint64 {
	return p.Slot + state.DelayVisibilitySlotOffset
}

type programCache struct {
	cache *ristretto.Cache
}

func newProgramCache(maxCost int64) (*programCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create program cache: %w", err)
	}
	return &programCache{cache: cache}, nil
}

func (c *programCache) get(key solana.PublicKey) (*LoadedProgram, bool) {
	val, ok := c.cache.Get(key.String())
	if !ok {
		ProgramCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	ProgramCacheTotal.WithLabelValues("hit").Inc()
	return val.(*LoadedProgram), true
}

func (c *programCache) set(p *LoadedProgram) {
	c.cache.Set(p.Key.String(), p, int64(len(p.Image))+1)
	c.cache.Wait()
}

func (c *programCache) invalidate(key solana.PublicKey) {
	c.cache.Del(key.String())
}

func (c *programCache) close() {
	c.cache.Close()
}

// loadProgram builds the runtime view of a loader account.
func loadProgram(programID solana.PublicKey, account *processor.Account) (*LoadedProgram, error) {
	if !account.Owner.Equals(programID) {
		return nil, fmt.Errorf("%w: %s", ErrProgramNotLoader, account.Key)
	}
	header, err := state.ReadHeader(account.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProgramNotLoader, account.Key, err)
	}
	if header.Status == state.StatusRetracted {
		return nil, fmt.Errorf("%w: %s", ErrProgramRetracted, account.Key)
	}
	p := &LoadedProgram{
		Key:    account.Key,
		Slot:   header.Slot,
		Status: header.Status,
		Image:  append([]byte(nil), state.Payload(account.Data)...),
	}
	if next, ok := header.NextVersion(); ok {
		p.NextVersion = &next
	}
	return p, nil
}
