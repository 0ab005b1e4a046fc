package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gm-dapp/internal/logger"
	"gm-dapp/internal/model"
	"gm-dapp/internal/statefile"
)

const identitiesVersion = 1

// Store keeps pending registration challenges and registered identities in
// memory. Identities can optionally be snapshotted to disk.
type Store struct {
	mu sync.RWMutex

	challengesByAccount map[string]model.Challenge
	identitiesByKey     map[string]model.IdentityRecord // account + "|" + publicKey

	snapshot *statefile.File
	log      *zap.Logger
}

type Options struct {
	IdentitiesFile string
}

func New() *Store {
	return NewWithOptions(Options{})
}

func NewWithOptions(opts Options) *Store {
	s := &Store{
		challengesByAccount: make(map[string]model.Challenge),
		identitiesByKey:     make(map[string]model.IdentityRecord),
		log:                 logger.WithModule("store"),
	}

	if opts.IdentitiesFile != "" {
		s.snapshot = statefile.New(opts.IdentitiesFile, identitiesVersion)
		if err := s.loadIdentities(); err != nil {
			s.log.Warn("identity snapshot load failed", zap.String("path", opts.IdentitiesFile), zap.Error(err))
		}
	}

	return s
}

func identityKey(account, publicKey string) string {
	return account + "|" + publicKey
}

func (s *Store) loadIdentities() error {
	var records []model.IdentityRecord
	ok, err := s.snapshot.Load(&records)
	if err != nil || !ok {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if rec.Account == "" || rec.PublicKey == "" || rec.IdentityKey == "" {
			continue
		}
		s.identitiesByKey[identityKey(rec.Account, rec.PublicKey)] = rec
	}
	return nil
}

func (s *Store) snapshotIdentitiesLocked() []model.IdentityRecord {
	result := make([]model.IdentityRecord, 0, len(s.identitiesByKey))
	for _, rec := range s.identitiesByKey {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].IdentityKey < result[j].IdentityKey })
	return result
}

func (s *Store) persistIdentities(records []model.IdentityRecord, nowMillis int64) {
	if s.snapshot == nil {
		return
	}
	if err := s.snapshot.Save(records, nowMillis); err != nil {
		s.log.Warn("identity snapshot save failed", zap.String("path", s.snapshot.Path), zap.Error(err))
	}
}

// IssueChallenge returns the account's pending challenge, or creates a new one
// when there is none or it has expired.
func (s *Store) IssueChallenge(account string, ttl time.Duration, nowMillis int64) model.Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.challengesByAccount[account]; ok && existing.ExpiresAt > nowMillis {
		return existing
	}

	ch := model.Challenge{
		Account:   account,
		Message:   challengeMessage(account, uuid.NewString(), nowMillis),
		CreatedAt: nowMillis,
		ExpiresAt: nowMillis + ttl.Milliseconds(),
	}
	s.challengesByAccount[account] = ch
	return ch
}

func challengeMessage(account, nonce string, nowMillis int64) string {
	issued := time.UnixMilli(nowMillis).UTC().Format(time.RFC3339)
	return fmt.Sprintf("gm-dapp wants you to register %s as a messaging identity.\n\nNonce: %s\nIssued At: %s", account, nonce, issued)
}

func (s *Store) PendingChallenge(account string, nowMillis int64) (model.Challenge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.challengesByAccount[account]
	if !ok || ch.ExpiresAt <= nowMillis {
		return model.Challenge{}, false
	}
	return ch, true
}

// ConsumeChallenge removes the challenge carrying message. It reports false
// when the challenge is missing, expired or already replaced.
func (s *Store) ConsumeChallenge(account, message string, nowMillis int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challengesByAccount[account]
	if !ok || ch.Message != message || ch.ExpiresAt <= nowMillis {
		return false
	}
	delete(s.challengesByAccount, account)
	return true
}

func (s *Store) PurgeExpiredChallenges(nowMillis int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for account, ch := range s.challengesByAccount {
		if ch.ExpiresAt <= nowMillis {
			delete(s.challengesByAccount, account)
			purged++
		}
	}
	return purged
}

// GetOrCreateIdentity returns the identity bound to (account, publicKey),
// creating it on first registration.
func (s *Store) GetOrCreateIdentity(account, publicKey string, nowMillis int64) (model.IdentityRecord, bool) {
	s.mu.Lock()

	key := identityKey(account, publicKey)
	if existing, ok := s.identitiesByKey[key]; ok {
		s.mu.Unlock()
		return existing, false
	}

	rec := model.IdentityRecord{
		Account:     account,
		PublicKey:   publicKey,
		IdentityKey: uuid.NewString(),
		CreatedAt:   nowMillis,
	}
	s.identitiesByKey[key] = rec
	snapshot := s.snapshotIdentitiesLocked()
	s.mu.Unlock()

	s.persistIdentities(snapshot, nowMillis)
	return rec, true
}

func (s *Store) GetIdentity(account, publicKey string) (model.IdentityRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.identitiesByKey[identityKey(account, publicKey)]
	return rec, ok
}
