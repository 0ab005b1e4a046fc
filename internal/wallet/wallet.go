// Package wallet holds the ed25519 key that signs identity challenges.
package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"gm-dapp/internal/auth"
)

type Wallet struct {
	key ed25519.PrivateKey
}

func Generate() (*Wallet, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Wallet{key: priv}, nil
}

func FromKey(key ed25519.PrivateKey) *Wallet {
	return &Wallet{key: key}
}

func FromSeed(seed []byte) (*Wallet, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed length %d", len(seed))
	}
	return &Wallet{key: ed25519.NewKeyFromSeed(seed)}, nil
}

func (w *Wallet) Seed() []byte {
	return w.key.Seed()
}

// Address derives a 20-byte hex address from the public key.
func (w *Wallet) Address() string {
	return auth.Address(w.key.Public().(ed25519.PublicKey))
}

func (w *Wallet) PublicKey() string {
	return auth.EncodePublicKey(w.key.Public().(ed25519.PublicKey))
}

func (w *Wallet) Sign(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return auth.Sign(w.key, message), nil
}
