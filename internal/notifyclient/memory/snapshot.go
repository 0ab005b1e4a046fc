package memory

import (
	"gm-dapp/internal/model"
	"gm-dapp/internal/notifyclient"
)

// Snapshot is the persistent form of a Service.
type Snapshot struct {
	Identities    map[string]IdentitySnapshot            `json:"identities"`
	Subscriptions map[string]map[string]model.Scope      `json:"subscriptions"`
	Inbox         map[string][]model.NotificationMessage `json:"inbox"`
	NextID        int64                                  `json:"nextId"`
}

type IdentitySnapshot struct {
	PublicKey   string `json:"publicKey"`
	IdentityKey string `json:"identityKey"`
}

// Export copies identities, subscriptions and inboxes. Pending challenges
// are not included.
func (s *Service) Export() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Identities:    make(map[string]IdentitySnapshot, len(s.identities)),
		Subscriptions: make(map[string]map[string]model.Scope, len(s.subs)),
		Inbox:         make(map[string][]model.NotificationMessage, len(s.inbox)),
		NextID:        s.nextID,
	}
	for account, id := range s.identities {
		snap.Identities[account] = IdentitySnapshot{PublicKey: id.publicKey, IdentityKey: id.identityKey}
	}
	for account, scopes := range s.subs {
		snap.Subscriptions[account] = copyScopes(scopes)
	}
	for account, msgs := range s.inbox {
		snap.Inbox[account] = append([]model.NotificationMessage(nil), msgs...)
	}
	return snap
}

// Import replaces the service state with snap.
func (s *Service) Import(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identities = make(map[string]identity, len(snap.Identities))
	for account, id := range snap.Identities {
		s.identities[account] = identity{publicKey: id.PublicKey, identityKey: id.IdentityKey}
	}
	s.subs = make(map[string]map[string]model.Scope, len(snap.Subscriptions))
	for account, scopes := range snap.Subscriptions {
		s.subs[account] = copyScopes(scopes)
	}
	s.inbox = make(map[string][]model.NotificationMessage, len(snap.Inbox))
	for account, msgs := range snap.Inbox {
		s.inbox[account] = append([]model.NotificationMessage(nil), msgs...)
		for _, m := range msgs {
			if m.ID > snap.NextID {
				snap.NextID = m.ID
			}
		}
	}
	s.nextID = snap.NextID
	s.challenges = make(map[string]notifyclient.Challenge)
}
