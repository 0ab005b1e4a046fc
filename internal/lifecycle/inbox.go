package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"gm-dapp/internal/logger"
	"gm-dapp/internal/model"
	"gm-dapp/internal/notifyclient"
)

const DefaultPageSize = 5

// Inbox reads the received messages of the registered identity.
type Inbox struct {
	client    notifyclient.Client
	registrar *Registrar
	log       *zap.Logger

	mu     sync.Mutex
	pagers []*Pager
}

func NewInbox(client notifyclient.Client, registrar *Registrar) *Inbox {
	return &Inbox{
		client:    client,
		registrar: registrar,
		log:       logger.WithModule("inbox"),
	}
}

// Pager opens a forward-only, newest-first listing. pageSize <= 0 uses
// DefaultPageSize.
func (in *Inbox) Pager(pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	p := &Pager{inbox: in, size: pageSize, hasMore: true}
	in.mu.Lock()
	in.pagers = append(in.pagers, p)
	in.mu.Unlock()
	return p
}

// Release stops tracking p. Released pagers no longer see deletes.
func (in *Inbox) Release(p *Pager) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i, q := range in.pagers {
		if q == p {
			in.pagers = append(in.pagers[:i], in.pagers[i+1:]...)
			return
		}
	}
}

// Reset rewinds every open pager. They stay tracked, so deletes keep
// reaching them after they are paged in again.
func (in *Inbox) Reset() {
	for _, p := range in.open() {
		p.Reset()
	}
}

func (in *Inbox) open() []*Pager {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]*Pager(nil), in.pagers...)
}

// Delete removes the message from every open pager before asking the remote
// service. When the remote delete fails, affected pagers are reloaded to their
// previous depth and the error is returned.
func (in *Inbox) Delete(ctx context.Context, id int64) error {
	ident, gen := in.registrar.snapshot()
	if !ident.Registered() {
		return fmt.Errorf("delete message: %w: identity not registered", ErrPreconditionFailed)
	}

	type removal struct {
		pager *Pager
		depth int
	}
	var removed []removal
	for _, p := range in.open() {
		if depth, ok := p.remove(gen, id); ok {
			removed = append(removed, removal{pager: p, depth: depth})
		}
	}

	err := in.client.DeleteMessage(ctx, ident.Account, id)
	if err == nil {
		return nil
	}
	in.log.Warn("delete failed, reloading", zap.String("account", ident.Account), zap.Int64("id", id), zap.Error(err))
	for _, r := range removed {
		if rerr := r.pager.reload(ctx, r.depth); rerr != nil {
			in.log.Warn("reload failed", zap.Error(rerr))
		}
	}
	return classify("delete message", err)
}

func (in *Inbox) MarkRead(ctx context.Context, ids []int64) error {
	ident, gen := in.registrar.snapshot()
	if !ident.Registered() {
		return fmt.Errorf("mark read: %w: identity not registered", ErrPreconditionFailed)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := in.client.MarkRead(ctx, ident.Account, ids); err != nil {
		return classify("mark read", err)
	}
	for _, p := range in.open() {
		p.markRead(gen, ids)
	}
	return nil
}

// Pager walks the inbox of one identity. It becomes stale when the identity
// changes and must be Reset before further use.
type Pager struct {
	inbox *Inbox
	size  int

	mu      sync.Mutex
	started bool
	gen     uint64
	account string
	items   []model.NotificationMessage
	cursor  int64
	hasMore bool
}

// Next fetches the following page. It returns an empty slice once the inbox
// is exhausted.
func (p *Pager) Next(ctx context.Context) ([]model.NotificationMessage, error) {
	ident, gen := p.inbox.registrar.snapshot()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started && p.gen != gen {
		return nil, fmt.Errorf("next page: %w: identity changed, reset the pager", ErrPreconditionFailed)
	}
	if !ident.Registered() {
		return nil, fmt.Errorf("next page: %w: identity not registered", ErrPreconditionFailed)
	}
	if !p.started {
		p.started = true
		p.gen = gen
		p.account = ident.Account
	}
	return p.fetchLocked(ctx)
}

func (p *Pager) fetchLocked(ctx context.Context) ([]model.NotificationMessage, error) {
	if !p.hasMore {
		return nil, nil
	}

	page, err := p.inbox.client.Messages(ctx, p.account, p.size, p.cursor)
	if err != nil {
		return nil, classify("next page", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("next page: %w", err)
	}

	msgs := append([]model.NotificationMessage(nil), page.Messages...)
	sortNewestFirst(msgs)

	seen := make(map[int64]bool, len(p.items))
	for _, m := range p.items {
		seen[m.ID] = true
	}
	fresh := msgs[:0]
	for _, m := range msgs {
		if !seen[m.ID] {
			fresh = append(fresh, m)
		}
	}
	p.items = append(p.items, fresh...)
	sortNewestFirst(p.items)

	if len(msgs) > 0 {
		p.cursor = msgs[len(msgs)-1].ID
	}
	p.hasMore = page.HasMore && len(msgs) > 0
	return append([]model.NotificationMessage(nil), fresh...), nil
}

// Items returns every loaded message, newest first.
func (p *Pager) Items() []model.NotificationMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.NotificationMessage(nil), p.items...)
}

func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Reset rewinds the pager; the next call to Next starts at the newest
// message of the current identity.
func (p *Pager) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}

func (p *Pager) resetLocked() {
	p.started = false
	p.gen = 0
	p.account = ""
	p.items = nil
	p.cursor = 0
	p.hasMore = true
}

// remove drops id from the loaded items and reports the depth held before.
func (p *Pager) remove(gen uint64, id int64) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.gen != gen {
		return 0, false
	}
	for i, m := range p.items {
		if m.ID == id {
			depth := len(p.items)
			p.items = append(p.items[:i], p.items[i+1:]...)
			return depth, true
		}
	}
	return 0, false
}

// reload refetches from the newest message until depth items are loaded or
// the inbox is exhausted.
func (p *Pager) reload(ctx context.Context, depth int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	gen, account := p.gen, p.account
	p.resetLocked()
	p.started, p.gen, p.account = true, gen, account
	for len(p.items) < depth && p.hasMore {
		if _, err := p.fetchLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pager) markRead(gen uint64, ids []int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return
	}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range p.items {
		if want[p.items[i].ID] {
			p.items[i].Read = true
		}
	}
}

func sortNewestFirst(msgs []model.NotificationMessage) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].ID > msgs[j].ID })
}
