package cli

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

var ErrInvalidKey = errors.New("invalid key")

// loadKeypair reads a Solana keygen JSON file, or decodes s as a base58
// encoded 64-byte secret key when no such file exists.
func loadKeypair(s string) (solana.PrivateKey, error) {
	if _, err := os.Stat(s); err == nil {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(s)
		if err != nil {
			return nil, fmt.Errorf("failed to read keypair %s: %w", s, err)
		}
		return key, nil
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is neither a keypair file nor a base58 secret key", ErrInvalidKey, s)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: secret key is %d bytes, want %d", ErrInvalidKey, len(raw), ed25519.PrivateKeySize)
	}
	derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !bytes.Equal(derived, raw) {
		return nil, fmt.Errorf("%w: public half does not match the secret key", ErrInvalidKey)
	}
	return solana.PrivateKey(raw), nil
}

// parsePublicKey accepts a base58 public key or anything loadKeypair accepts.
func parsePublicKey(s string) (solana.PublicKey, error) {
	if pk, err := solana.PublicKeyFromBase58(s); err == nil {
		return pk, nil
	}
	key, err := loadKeypair(s)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return key.PublicKey(), nil
}
