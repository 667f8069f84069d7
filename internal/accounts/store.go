package accounts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/clock"
	"github.com/dmitrijs2005/linkledger/internal/codec"
	"github.com/dmitrijs2005/linkledger/internal/common"
	"github.com/dmitrijs2005/linkledger/internal/cryptox"
	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/money"
	"github.com/dmitrijs2005/linkledger/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/atomic"
)

// Persister durably stores the serialized table. *storage.ReplicaSet
// implements it.
type Persister interface {
	Store(ctx context.Context, payload []byte) error
	Load(ctx context.Context) ([]byte, error)
}

// MaxNameLength bounds account names.
const MaxNameLength = 64

// Store is the account table. A single RWMutex guards it: every mutation
// holds the write lock from validation through persistence, and rolls the
// in-memory change back if persistence fails.
type Store struct {
	hasher    *cryptox.Hasher
	persister Persister
	clock     clock.Clock
	logger    logging.Logger

	readOnly *atomic.Bool

	mu       sync.RWMutex
	accounts map[string]*Account
}

func NewStore(hasher *cryptox.Hasher, persister Persister, clk clock.Clock, logger logging.Logger) *Store {
	return &Store{
		hasher:    hasher,
		persister: persister,
		clock:     clk,
		logger:    logger.With("module", "accounts"),
		readOnly:  atomic.NewBool(false),
		accounts:  make(map[string]*Account),
	}
}

// ReadOnly reports whether the store refused to load corrupt state and now
// rejects every mutation.
func (s *Store) ReadOnly() bool { return s.readOnly.Load() }

// Load replaces the table with the persisted one. It reports whether a table
// was found. Integrity failures do not return an error: the store starts
// empty in read-only mode so that nothing overwrites the surviving replicas.
func (s *Store) Load(ctx context.Context) (bool, error) {
	payload, err := s.persister.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.logger.Info(ctx, "no persisted account table, starting empty")
		return false, nil
	case errors.Is(err, storage.ErrNoValidReplica):
		s.degrade(ctx, err)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("load account table: %w", err)
	}

	var t table
	if err := codec.Unmarshal(payload, &t); err != nil {
		s.degrade(ctx, err)
		return false, nil
	}
	if t.Version != tableVersion {
		s.degrade(ctx, fmt.Errorf("unsupported table version %d", t.Version))
		return false, nil
	}

	loaded := make(map[string]*Account, len(t.Accounts))
	for _, r := range t.Accounts {
		a, err := fromRecord(r)
		if err != nil {
			s.degrade(ctx, fmt.Errorf("account %q: %w", r.Name, err))
			return false, nil
		}
		loaded[a.Name] = a
	}

	s.mu.Lock()
	s.accounts = loaded
	s.mu.Unlock()

	s.logger.Info(ctx, "account table loaded", "accounts", len(loaded))
	return true, nil
}

func (s *Store) degrade(ctx context.Context, cause error) {
	s.readOnly.Store(true)
	s.logger.Error(ctx, "account table cannot be trusted, entering read-only mode", "error", cause)
}

// Persist writes the current table.
func (s *Store) Persist(ctx context.Context) error {
	if s.ReadOnly() {
		return common.ErrReadOnly
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistLocked(ctx)
}

func (s *Store) persistLocked(ctx context.Context) error {
	t := table{Version: tableVersion, Accounts: make([]record, 0, len(s.accounts))}
	for _, name := range s.sortedNamesLocked() {
		t.Accounts = append(t.Accounts, toRecord(s.accounts[name]))
	}
	payload, err := codec.Marshal(&t)
	if err != nil {
		return fmt.Errorf("encode account table: %w", err)
	}
	if err := s.persister.Store(ctx, payload); err != nil {
		s.logger.Error(ctx, "persisting account table failed", "error", err)
		return fmt.Errorf("persist account table: %w", err)
	}
	return nil
}

func (s *Store) sortedNamesLocked() []string {
	names := make([]string, 0, len(s.accounts))
	for n := range s.accounts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// mutate runs fn under the write lock and persists. fn returns an undo
// function that is applied if persistence fails.
func (s *Store) mutate(ctx context.Context, fn func() (undo func(), err error)) error {
	if s.ReadOnly() {
		return common.ErrReadOnly
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	undo, err := fn()
	if err != nil {
		return err
	}
	if err := s.persistLocked(ctx); err != nil {
		undo()
		// replicas that took the failed write must not keep it
		if rerr := s.persistLocked(ctx); rerr != nil {
			s.degrade(ctx, fmt.Errorf("restore after failed persist: %w", rerr))
		}
		return err
	}
	return nil
}

// Get returns a copy of the named account.
func (s *Store) Get(name string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[name]
	if !ok {
		return Account{}, common.ErrAccountNotFound
	}
	return a.clone(), nil
}

// Exists reports whether name is a known account.
func (s *Store) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[name]
	return ok
}

func validName(name string) error {
	if name == "" || len(name) > MaxNameLength {
		return common.Errorf(common.CodeInvalidRequest, "account name must be 1..%d bytes", MaxNameLength)
	}
	return nil
}

func validBalance(b decimal.Decimal) error {
	if b.IsNegative() || b.GreaterThan(money.Max) || !b.Equal(b.Truncate(money.Scale)) {
		return common.ErrInvalidAmount
	}
	return nil
}

// Create adds a new account.
func (s *Store) Create(ctx context.Context, name, credential string, balance decimal.Decimal) error {
	if err := validName(name); err != nil {
		return err
	}
	if credential == "" {
		return common.NewError(common.CodeInvalidRequest, "credential must not be empty")
	}
	if err := validBalance(balance); err != nil {
		return err
	}

	return s.mutate(ctx, func() (func(), error) {
		if _, ok := s.accounts[name]; ok {
			return nil, common.ErrAccountExists
		}
		s.accounts[name] = &Account{
			Name:       name,
			Credential: s.hasher.Hash(name, credential),
			Balance:    balance,
			CreatedAt:  s.clock.Now().UTC(),
		}
		return func() { delete(s.accounts, name) }, nil
	})
}

// SetBalance overwrites the balance.
func (s *Store) SetBalance(ctx context.Context, name string, amount decimal.Decimal) error {
	if err := validBalance(amount); err != nil {
		return err
	}
	return s.mutate(ctx, func() (func(), error) {
		a, ok := s.accounts[name]
		if !ok {
			return nil, common.ErrAccountNotFound
		}
		old := a.Balance
		a.Balance = amount
		return func() { a.Balance = old }, nil
	})
}

// SetLocked locks or unlocks the account. Locking records reason and time;
// unlocking clears both.
func (s *Store) SetLocked(ctx context.Context, name string, locked bool, reason string) error {
	return s.mutate(ctx, func() (func(), error) {
		a, ok := s.accounts[name]
		if !ok {
			return nil, common.ErrAccountNotFound
		}
		prev := *a
		a.Locked = locked
		if locked {
			a.LockReason = reason
			a.LockedAt = s.clock.Now().UTC()
		} else {
			a.LockReason = ""
			a.LockedAt = time.Time{}
		}
		return func() {
			a.Locked, a.LockReason, a.LockedAt = prev.Locked, prev.LockReason, prev.LockedAt
		}, nil
	})
}

// ResetCredential replaces the credential digest.
func (s *Store) ResetCredential(ctx context.Context, name, credential string) error {
	if credential == "" {
		return common.NewError(common.CodeInvalidRequest, "credential must not be empty")
	}
	return s.mutate(ctx, func() (func(), error) {
		a, ok := s.accounts[name]
		if !ok {
			return nil, common.ErrAccountNotFound
		}
		old := a.Credential
		a.Credential = s.hasher.Hash(name, credential)
		return func() { a.Credential = old }, nil
	})
}

// Delete removes the account.
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.mutate(ctx, func() (func(), error) {
		a, ok := s.accounts[name]
		if !ok {
			return nil, common.ErrAccountNotFound
		}
		delete(s.accounts, name)
		return func() { s.accounts[name] = a }, nil
	})
}

// List returns the public view sorted by name.
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.accounts))
	for _, n := range s.sortedNamesLocked() {
		out = append(out, Summary{Name: n, Online: s.accounts[n].Online})
	}
	return out
}

// Snapshot returns copies of every account sorted by name.
func (s *Store) Snapshot() []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Account, 0, len(s.accounts))
	for _, n := range s.sortedNamesLocked() {
		out = append(out, s.accounts[n].clone())
	}
	return out
}

// Authenticate checks name's credential. Unknown names and wrong
// credentials fail identically with common.ErrInvalidCredential.
func (s *Store) Authenticate(name, credential string) (Account, error) {
	s.mu.RLock()
	a, ok := s.accounts[name]
	var stored []byte
	if ok {
		stored = a.Credential
	}
	s.mu.RUnlock()

	if !ok {
		// keep the timing of unknown names close to known ones
		_ = s.hasher.Verify(name, credential, nil)
		return Account{}, common.ErrInvalidCredential
	}
	if !s.hasher.Verify(name, credential, stored) {
		return Account{}, common.ErrInvalidCredential
	}
	return s.Get(name)
}

// Transfer moves amount from one account to another and returns the
// sender's new balance. Checks run in this order: amount, distinct
// accounts, recipient exists, sender unlocked, recipient unlocked, funds.
func (s *Store) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() || validBalance(amount) != nil {
		return decimal.Zero, common.ErrInvalidAmount
	}
	if from == to {
		return decimal.Zero, common.NewError(common.CodeInvalidRequest, "cannot transfer to the same account")
	}

	var balance decimal.Decimal
	err := s.mutate(ctx, func() (func(), error) {
		src, ok := s.accounts[from]
		if !ok {
			return nil, common.ErrAccountNotFound
		}
		dst, ok := s.accounts[to]
		if !ok {
			return nil, common.ErrRecipientNotFound
		}
		if src.Locked {
			return nil, common.Locked(common.CodeAccountLocked, src.LockReason, src.LockedAt)
		}
		if dst.Locked {
			return nil, common.Locked(common.CodeRecipientLocked, dst.LockReason, dst.LockedAt)
		}
		if src.Balance.LessThan(amount) {
			return nil, common.ErrInsufficientFunds
		}
		credited := dst.Balance.Add(amount)
		if credited.GreaterThan(money.Max) {
			return nil, common.NewError(common.CodeInvalidAmount, "recipient balance would exceed the limit")
		}

		srcPrev, dstPrev := *src, *dst
		now := s.clock.Now().UTC()

		src.Balance = src.Balance.Sub(amount)
		dst.Balance = credited
		src.TransactionCount++
		dst.TransactionCount++
		src.LastActivity = now
		balance = src.Balance

		return func() {
			src.Balance, src.TransactionCount, src.LastActivity = srcPrev.Balance, srcPrev.TransactionCount, srcPrev.LastActivity
			dst.Balance, dst.TransactionCount = dstPrev.Balance, dstPrev.TransactionCount
		}, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// MarkOnline updates runtime presence. relay is recorded as the relay hint
// when going online. A locked account cannot go online. It is not persisted
// on its own.
func (s *Store) MarkOnline(name string, online bool, relay string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[name]
	if !ok {
		return common.ErrAccountNotFound
	}
	if online && a.Locked {
		return common.Locked(common.CodeAccountLocked, a.LockReason, a.LockedAt)
	}
	a.Online = online
	if online {
		a.RelayHint = relay
		a.LastActivity = s.clock.Now().UTC()
	}
	return nil
}

// Touch records activity without persisting.
func (s *Store) Touch(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[name]; ok {
		a.LastActivity = s.clock.Now().UTC()
	}
}
