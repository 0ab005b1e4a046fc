package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"

	"github.com/99designs/keyring"
)

const (
	serviceName = "gm-dapp"
	seedKey     = "wallet-seed"
)

// ErrNoWallet is returned by Load when no seed has been stored.
var ErrNoWallet = errors.New("no wallet stored, run `gmctl wallet init`")

type StoreConfig struct {
	// Dir is used by the file backend.
	Dir string
	// Password unlocks the file backend.
	Password string
	// Backends restricts the keyring backends. Empty means the platform
	// defaults followed by the file backend.
	Backends []keyring.BackendType
}

type Store struct {
	ring keyring.Keyring
}

func OpenStore(cfg StoreConfig) (*Store, error) {
	backends := cfg.Backends
	if len(backends) == 0 {
		backends = []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		}
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "~/.config/gm-dapp/keys"
	}
	password := cfg.Password
	if password == "" {
		password = "gm-dapp-file-key"
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              serviceName,
		AllowedBackends:          backends,
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt(password),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

func (s *Store) Load() (*Wallet, error) {
	item, err := s.ring.Get(seedKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNoWallet
	}
	if err != nil {
		return nil, fmt.Errorf("reading wallet seed: %w", err)
	}
	seed, err := hex.DecodeString(string(item.Data))
	if err != nil {
		return nil, fmt.Errorf("decoding wallet seed: %w", err)
	}
	return FromSeed(seed)
}

func (s *Store) Save(w *Wallet) error {
	err := s.ring.Set(keyring.Item{
		Key:         seedKey,
		Data:        []byte(hex.EncodeToString(w.Seed())),
		Label:       "gm-dapp wallet seed",
		Description: "ed25519 seed used to sign identity challenges",
	})
	if err != nil {
		return fmt.Errorf("storing wallet seed: %w", err)
	}
	return nil
}

func (s *Store) Delete() error {
	if err := s.ring.Remove(seedKey); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting wallet seed: %w", err)
	}
	return nil
}
