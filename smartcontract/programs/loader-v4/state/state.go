// Package state defines the fixed header that prefixes every loader v4 program
// account and the codec used to read and write it.
//
// Layout (little-endian):
//
//	0..8    slot of the last deploy, retract or initialization
//	8..40   authority, or the next version once finalized
//	40..48  status ordinal
//	48..    program payload
package state

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	// HeaderSize is the size of the serialized header, and the offset of the payload.
	HeaderSize = 48

	// DeploymentCooldownInSlots is the number of slots that must pass between
	// two deploy or retract transitions of the same program.
	DeploymentCooldownInSlots uint64 = 750

	// DelayVisibilitySlotOffset is the number of slots after a deployment
	// before the runtime treats the new payload as executable.
	DelayVisibilitySlotOffset uint64 = 1

	slotOffset   = 0
	keyOffset    = 8
	statusOffset = 40
)

var (
	ErrBufferTooSmall = errors.New("account data too small for header")
	ErrInvalidStatus  = errors.New("invalid status")
)

type Status uint64

const (
	// StatusRetracted is maintenance mode: the payload can be written and resized.
	StatusRetracted Status = iota
	// StatusDeployed means the payload is executable.
	StatusDeployed
	// StatusFinalized is like deployed but can never be changed again.
	StatusFinalized
)

func (s Status) String() string {
	switch s {
	case StatusRetracted:
		return "retracted"
	case StatusDeployed:
		return "deployed"
	case StatusFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("unknown(%d)", uint64(s))
	}
}

func (s Status) Valid() bool {
	return s <= StatusFinalized
}

// Header is the decoded account header. The 32-byte key field means the
// authority while the program is not finalized and the next version after.
type Header struct {
	Slot   uint64
	Status Status
	key    solana.PublicKey
}

func NewHeader(slot uint64, status Status, authority solana.PublicKey) Header {
	return Header{Slot: slot, Status: status, key: authority}
}

func NewFinalizedHeader(slot uint64, nextVersion solana.PublicKey) Header {
	return Header{Slot: slot, Status: StatusFinalized, key: nextVersion}
}

// Authority returns the key allowed to manage the program. It reports false
// for finalized programs, which have no authority.
func (h Header) Authority() (solana.PublicKey, bool) {
	if h.Status == StatusFinalized {
		return solana.PublicKey{}, false
	}
	return h.key, true
}

// NextVersion returns the successor of a finalized program.
func (h Header) NextVersion() (solana.PublicKey, bool) {
	if h.Status != StatusFinalized {
		return solana.PublicKey{}, false
	}
	return h.key, true
}

// RawKey returns the key field regardless of status.
func (h Header) RawKey() solana.PublicKey {
	return h.key
}

// WithAuthority returns a copy of h with the authority replaced.
func (h Header) WithAuthority(authority solana.PublicKey) Header {
	h.key = authority
	return h
}

func (h Header) String() string {
	if next, ok := h.NextVersion(); ok {
		return fmt.Sprintf("slot=%d status=%s next_version=%s", h.Slot, h.Status, next)
	}
	return fmt.Sprintf("slot=%d status=%s authority=%s", h.Slot, h.Status, h.key)
}

// ReadHeader decodes the header at the start of data.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: have %d bytes, need %d", ErrBufferTooSmall, len(data), HeaderSize)
	}

	dec := bin.NewBinDecoder(data[:HeaderSize])
	slot, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return Header{}, fmt.Errorf("failed to read slot: %w", err)
	}
	key, err := dec.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return Header{}, fmt.Errorf("failed to read key: %w", err)
	}
	status, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return Header{}, fmt.Errorf("failed to read status: %w", err)
	}
	if !Status(status).Valid() {
		return Header{}, fmt.Errorf("%w: %d", ErrInvalidStatus, status)
	}

	return Header{
		Slot:   slot,
		Status: Status(status),
		key:    solana.PublicKeyFromBytes(key),
	}, nil
}

// WriteHeader encodes h into the first HeaderSize bytes of data. It never
// resizes data.
func WriteHeader(data []byte, h Header) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrBufferTooSmall, len(data), HeaderSize)
	}
	if !h.Status.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidStatus, uint64(h.Status))
	}

	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	enc := bin.NewBinEncoder(&buf)
	if err := enc.WriteUint64(h.Slot, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteBytes(h.key[:], false); err != nil {
		return err
	}
	if err := enc.WriteUint64(uint64(h.Status), bin.LE); err != nil {
		return err
	}
	copy(data[:HeaderSize], buf.Bytes())
	return nil
}

// Payload returns the program bytes following the header, or nil when there is
// no header.
func Payload(data []byte) []byte {
	if len(data) < HeaderSize {
		return nil
	}
	return data[HeaderSize:]
}

func PayloadLen(data []byte) int {
	if len(data) < HeaderSize {
		return 0
	}
	return len(data) - HeaderSize
}

// Encode returns a fresh buffer holding h followed by payload.
func Encode(h Header, payload []byte) ([]byte, error) {
	data := make([]byte, HeaderSize+len(payload))
	if err := WriteHeader(data, h); err != nil {
		return nil, err
	}
	copy(data[HeaderSize:], payload)
	return data, nil
}
