// Package memory provides in-process implementations of the account and
// market stores. It backs local development (no DATABASE_URL) and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/campusmart/campusmart-core/internal/domain/account"
	"github.com/campusmart/campusmart-core/internal/domain/market"
	"github.com/campusmart/campusmart-core/internal/domain/shared"
	"github.com/campusmart/campusmart-core/internal/infrastructure/persistence/docvalidate"
)

// Op names accepted by InjectError.
const (
	OpListUsers          = "ListUsers"
	OpGetUser            = "GetUser"
	OpUpdateProgress     = "UpdateProgress"
	OpDeleteIdentity     = "DeleteUserIdentity"
	OpDeleteProfile      = "DeleteUserProfileDocument"
	OpGetTransaction     = "GetTransaction"
	OpUpdateTransaction  = "UpdateTransaction"
	OpGetProduct         = "GetProduct"
	OpUpdateProductState = "UpdateProductStatus"
)

type fault struct {
	err       error
	remaining int // <0 means forever
}

// Store keeps users, identities, transactions and products in maps.
type Store struct {
	mu           sync.RWMutex
	users        map[string]account.UserRecord
	identities   map[string]struct{}
	transactions map[string]market.Transaction
	products     map[string]market.Product
	faults       map[string]*fault
	calls        map[string]int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:        make(map[string]account.UserRecord),
		identities:   make(map[string]struct{}),
		transactions: make(map[string]market.Transaction),
		products:     make(map[string]market.Product),
		faults:       make(map[string]*fault),
		calls:        make(map[string]int),
	}
}

var (
	_ account.LifecycleStore  = (*Store)(nil)
	_ market.TransactionStore = (*Store)(nil)
	_ market.ProductStore     = (*Store)(nil)
)

// ─────────────────────────────────────────────────────────────────────────────
// Seeding and fault injection
// ─────────────────────────────────────────────────────────────────────────────

// PutUser stores a user record together with its identity.
func (s *Store) PutUser(u account.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	s.identities[u.ID] = struct{}{}
}

// PutUserWithoutIdentity stores a record whose identity is already gone.
func (s *Store) PutUserWithoutIdentity(u account.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutTransaction stores a transaction.
func (s *Store) PutTransaction(t market.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[t.ID] = t
}

// PutProduct stores a product.
func (s *Store) PutProduct(p market.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// InjectError makes the next times calls of op for key fail with err.
// key is the document id, or "" to match any id. times < 0 fails forever.
func (s *Store) InjectError(op, key string, err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op+"/"+key] = &fault{err: err, remaining: times}
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

// HasUser reports whether a user record (profile document) exists.
func (s *Store) HasUser(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[id]
	return ok
}

// HasIdentity reports whether an identity exists.
func (s *Store) HasIdentity(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.identities[id]
	return ok
}

// must be called with mu held for writing.
func (s *Store) enter(op, key string) error {
	s.calls[op]++
	for _, k := range []string{op + "/" + key, op + "/"} {
		f, ok := s.faults[k]
		if !ok || f.remaining == 0 {
			continue
		}
		if f.remaining > 0 {
			f.remaining--
		}
		return f.err
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// account.LifecycleStore
// ─────────────────────────────────────────────────────────────────────────────

// ListUsers returns one page ordered by (created_at, id).
// Records are returned unvalidated so one malformed row does not hide its
// page; callers validate each record before acting on it.
func (s *Store) ListUsers(ctx context.Context, offset, limit int) ([]account.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 || limit <= 0 {
		return nil, shared.InvalidArgument("account", "ListUsers", "bad page offset=%d limit=%d", offset, limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListUsers, ""); err != nil {
		return nil, err
	}

	all := make([]account.UserRecord, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []account.UserRecord{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	page := make([]account.UserRecord, end-offset)
	copy(page, all[offset:end])
	return page, nil
}

// GetUser returns a copy of the record.
func (s *Store) GetUser(ctx context.Context, id string) (*account.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpGetUser, id); err != nil {
		return nil, err
	}

	u, ok := s.users[id]
	if !ok {
		return nil, shared.NewDomainError("account", "GetUser", shared.ErrNotFound, "no user "+id)
	}
	if err := docvalidate.Struct("account", "GetUser", u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateProgress writes level, xp and claim fields.
func (s *Store) UpdateProgress(ctx context.Context, id string, update account.ProgressUpdate) error {
	if err := docvalidate.Struct("account", "UpdateProgress", update); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpdateProgress, id); err != nil {
		return err
	}

	u, ok := s.users[id]
	if !ok {
		return shared.NewDomainError("account", "UpdateProgress", shared.ErrNotFound, "no user "+id)
	}
	update.Apply(&u)
	s.users[id] = u
	return nil
}

// DeleteUserIdentity removes the identity of userID.
func (s *Store) DeleteUserIdentity(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpDeleteIdentity, userID); err != nil {
		return err
	}

	if _, ok := s.identities[userID]; !ok {
		return shared.NewDomainError("account", "DeleteUserIdentity", shared.ErrNotFound, "no identity "+userID)
	}
	delete(s.identities, userID)
	return nil
}

// DeleteUserProfileDocument removes the profile document and with it the record.
func (s *Store) DeleteUserProfileDocument(ctx context.Context, profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpDeleteProfile, profileID); err != nil {
		return err
	}

	for id, u := range s.users {
		if u.ProfileDocumentID() == profileID {
			delete(s.users, id)
			return nil
		}
	}
	return shared.NewDomainError("account", "DeleteUserProfileDocument", shared.ErrNotFound, "no profile "+profileID)
}

// ─────────────────────────────────────────────────────────────────────────────
// market stores
// ─────────────────────────────────────────────────────────────────────────────

// GetTransaction returns a copy of the transaction.
func (s *Store) GetTransaction(ctx context.Context, id string) (*market.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpGetTransaction, id); err != nil {
		return nil, err
	}

	t, ok := s.transactions[id]
	if !ok {
		return nil, shared.NewDomainError("market", "GetTransaction", shared.ErrNotFound, "no transaction "+id)
	}
	if err := docvalidate.Struct("market", "GetTransaction", t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTransaction applies update only while the stored status equals expected.
func (s *Store) UpdateTransaction(ctx context.Context, id string, expected market.TransactionStatus, update market.SettlementUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpdateTransaction, id); err != nil {
		return err
	}

	t, ok := s.transactions[id]
	if !ok {
		return shared.NewDomainError("market", "UpdateTransaction", shared.ErrNotFound, "no transaction "+id)
	}
	if t.Status != expected {
		return shared.NewDomainError("market", "UpdateTransaction", shared.ErrConflict,
			"transaction "+id+" is no longer "+string(expected))
	}

	settled := update.SettledAt
	t.Status = update.Status
	t.CommissionRate = update.CommissionRate
	t.CommissionAmount = update.CommissionAmount
	t.NetSellerAmount = update.NetSellerAmount
	t.SettledAt = &settled
	s.transactions[id] = t
	return nil
}

// GetProduct returns a copy of the product.
func (s *Store) GetProduct(ctx context.Context, id string) (*market.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpGetProduct, id); err != nil {
		return nil, err
	}

	p, ok := s.products[id]
	if !ok {
		return nil, shared.NewDomainError("market", "GetProduct", shared.ErrNotFound, "no product "+id)
	}
	return &p, nil
}

// UpdateProductStatus sets the status of a product.
func (s *Store) UpdateProductStatus(ctx context.Context, id string, status market.ProductStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpdateProductState, id); err != nil {
		return err
	}

	p, ok := s.products[id]
	if !ok {
		return shared.NewDomainError("market", "UpdateProductStatus", shared.ErrNotFound, "no product "+id)
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	s.products[id] = p
	return nil
}
