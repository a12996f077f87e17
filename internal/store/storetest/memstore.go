// Package storetest provides an in-memory store.Store for tests.
// Transactions are serialized and see a private copy of the data, which is
// published only when the transaction function returns nil.
package storetest

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	userentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

type data struct {
	sessions map[string]*entity.Session
	users    map[int64]*userentity.User
	audit    []store.AuditEntry
	nextUser int64
}

func (d *data) clone() *data {
	c := &data{
		sessions: make(map[string]*entity.Session, len(d.sessions)),
		users:    make(map[int64]*userentity.User, len(d.users)),
		audit:    append([]store.AuditEntry(nil), d.audit...),
		nextUser: d.nextUser,
	}
	for k, v := range d.sessions {
		c.sessions[k] = v.Clone()
	}
	for k, v := range d.users {
		c.users[k] = v.Clone()
	}
	return c
}

// MemStore implements store.Store.
type MemStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	d    *data

	// FailCommit, when set, makes the next InTx fail after fn succeeded.
	FailCommit error
}

func New() *MemStore {
	return &MemStore{d: &data{
		sessions: map[string]*entity.Session{},
		users:    map[int64]*userentity.User{},
		nextUser: 1,
	}}
}

func (m *MemStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	work := m.d.clone()
	m.mu.RUnlock()

	if err := fn(ctx, &memTx{d: work}); err != nil {
		return err
	}
	if m.FailCommit != nil {
		err := m.FailCommit
		m.FailCommit = nil
		return err
	}
	m.mu.Lock()
	m.d = work
	m.mu.Unlock()
	return nil
}

// SeedUser stores u, assigning an id when zero. Returns the id.
func (m *MemStore) SeedUser(u *userentity.User) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		u.ID = m.d.nextUser
	}
	if u.ID >= m.d.nextUser {
		m.d.nextUser = u.ID + 1
	}
	if u.SessionVersion == 0 {
		u.SessionVersion = 1
	}
	m.d.users[u.ID] = u.Clone()
	return u.ID
}

// SeedSession stores s as-is.
func (m *MemStore) SeedSession(s *entity.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.sessions[s.ID] = s.Clone()
}

// Session returns a copy of the committed session, or nil.
func (m *MemStore) Session(id string) *entity.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.d.sessions[id]; ok {
		return s.Clone()
	}
	return nil
}

// Sessions returns copies of all committed sessions ordered by id.
func (m *MemStore) Sessions() []*entity.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*entity.Session, 0, len(m.d.sessions))
	for _, k := range sortedKeys(m.d.sessions) {
		out = append(out, m.d.sessions[k].Clone())
	}
	return out
}

// User returns a copy of the committed user, or nil.
func (m *MemStore) User(id int64) *userentity.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.d.users[id]; ok {
		return u.Clone()
	}
	return nil
}

// UserByEmail returns a copy of the committed user with email, or nil.
func (m *MemStore) UserByEmail(email string) *userentity.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.d.users {
		if u.Email == email {
			return u.Clone()
		}
	}
	return nil
}

// UserCount returns the number of committed users.
func (m *MemStore) UserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.d.users)
}

// Audit returns the committed audit entries.
func (m *MemStore) Audit() []store.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]store.AuditEntry(nil), m.d.audit...)
}

func sortedKeys(m map[string]*entity.Session) []string {
	keys := make([]string, 0, len(m))
	for k := range maps.Keys(m) {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type memTx struct{ d *data }

func (t *memTx) Sessions() store.SessionRepository { return memSessions{t.d} }
func (t *memTx) Users() store.UserRepository       { return memUsers{t.d} }
func (t *memTx) Audit() store.AuditLog             { return memAudit{t.d} }

type memSessions struct{ d *data }

func (r memSessions) GetByID(_ context.Context, id string) (*entity.Session, error) {
	if s, ok := r.d.sessions[id]; ok {
		return s.Clone(), nil
	}
	return nil, store.ErrNotFound
}

func (r memSessions) GetByNonceForUpdate(_ context.Context, nonce string) (*entity.Session, error) {
	for _, s := range r.d.sessions {
		if s.SsoNonce != nil && *s.SsoNonce == nonce {
			return s.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

func (r memSessions) Create(_ context.Context, s *entity.Session) error {
	if _, ok := r.d.sessions[s.ID]; ok {
		return store.ErrConflict
	}
	r.d.sessions[s.ID] = s.Clone()
	return nil
}

func (r memSessions) Update(_ context.Context, s *entity.Session) error {
	if _, ok := r.d.sessions[s.ID]; !ok {
		return store.ErrNotFound
	}
	r.d.sessions[s.ID] = s.Clone()
	return nil
}

func (r memSessions) Delete(_ context.Context, id string) error {
	delete(r.d.sessions, id)
	return nil
}

func (r memSessions) DeleteByUser(_ context.Context, userID int64) (int64, error) {
	var n int64
	for id, s := range r.d.sessions {
		if s.UserID != nil && *s.UserID == userID {
			delete(r.d.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r memSessions) DeleteLastUsedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, s := range r.d.sessions {
		if s.LastUsed.Before(cutoff) {
			delete(r.d.sessions, id)
			n++
		}
	}
	return n, nil
}

type memUsers struct{ d *data }

func (r memUsers) GetByID(_ context.Context, id int64) (*userentity.User, error) {
	if u, ok := r.d.users[id]; ok {
		return u.Clone(), nil
	}
	return nil, store.ErrNotFound
}

func (r memUsers) find(match func(*userentity.User) bool) (*userentity.User, error) {
	for _, u := range r.d.users {
		if match(u) {
			return u.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*userentity.User, error) {
	return r.find(func(u *userentity.User) bool { return u.Email == email })
}

func (r memUsers) GetLocalByEmail(_ context.Context, email string) (*userentity.User, error) {
	return r.find(func(u *userentity.User) bool { return u.Email == email && u.Local })
}

func (r memUsers) GetByUsername(_ context.Context, username string) (*userentity.User, error) {
	return r.find(func(u *userentity.User) bool { return u.Username == username })
}

func (r memUsers) Create(_ context.Context, u *userentity.User) (int64, error) {
	for _, existing := range r.d.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return 0, store.ErrConflict
		}
	}
	u.ID = r.d.nextUser
	r.d.nextUser++
	if u.SessionVersion == 0 {
		u.SessionVersion = 1
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	r.d.users[u.ID] = u.Clone()
	return u.ID, nil
}

func (r memUsers) Update(_ context.Context, u *userentity.User) error {
	if _, ok := r.d.users[u.ID]; !ok {
		return store.ErrNotFound
	}
	r.d.users[u.ID] = u.Clone()
	return nil
}

func (r memUsers) BumpSessionVersion(_ context.Context, id int64) (int64, error) {
	u, ok := r.d.users[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	u.SessionVersion++
	return u.SessionVersion, nil
}

type memAudit struct{ d *data }

func (a memAudit) Record(_ context.Context, e store.AuditEntry) error {
	a.d.audit = append(a.d.audit, e)
	return nil
}
