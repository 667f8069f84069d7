package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/linkledger/internal/accounts"
	"github.com/dmitrijs2005/linkledger/internal/audit"
	"github.com/dmitrijs2005/linkledger/internal/common"
	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/money"
	"github.com/dmitrijs2005/linkledger/internal/server/auth"
	"github.com/dmitrijs2005/linkledger/internal/sessions"
	"github.com/dmitrijs2005/linkledger/internal/wire"
	"github.com/shopspring/decimal"
)

// Actor is an authorized administrator.
type Actor struct {
	Name string
}

// AdminService performs administrative account operations. Each one requires
// an Actor obtained from Authorize and leaves an audit entry whether or not
// it succeeded.
type AdminService struct {
	store     *accounts.Store
	sessions  *sessions.Manager
	audit     audit.Recorder
	notifier  Notifier
	jwtSecret []byte
	logger    logging.Logger
}

func NewAdminService(store *accounts.Store, sm *sessions.Manager, rec audit.Recorder, n Notifier, jwtSecret []byte, l logging.Logger) *AdminService {
	if rec == nil {
		rec = audit.Discard
	}
	if n == nil {
		n = NopNotifier{}
	}
	return &AdminService{
		store:     store,
		sessions:  sm,
		audit:     rec,
		notifier:  n,
		jwtSecret: jwtSecret,
		logger:    l.With("module", "admin"),
	}
}

// Authorize resolves an admin token into an Actor.
func (s *AdminService) Authorize(token string) (Actor, error) {
	if token == "" {
		return Actor{}, common.ErrUnauthorized
	}
	name, err := auth.GetAdminFromToken(token, s.jwtSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return Actor{}, common.NewError(common.CodeUnauthorized, "admin token expired")
		}
		return Actor{}, common.ErrUnauthorized
	}
	return Actor{Name: name}, nil
}

func (s *AdminService) record(ctx context.Context, actor Actor, command, account, amount string, err error) {
	e := audit.Entry{
		Actor:   actor.Name,
		Command: command,
		Account: account,
		Amount:  amount,
		Outcome: outcome(err),
	}
	if aerr := s.audit.Record(e); aerr != nil {
		s.logger.Error(ctx, "audit write failed", "error", aerr)
	}
	if err != nil {
		s.logger.Warn(ctx, "admin action failed", "actor", actor.Name, "command", command, "account", account, "code", common.CodeOf(err))
		return
	}
	s.logger.Info(ctx, "admin action", "actor", actor.Name, "command", command, "account", account)
}

// Create opens a new account.
func (s *AdminService) Create(ctx context.Context, actor Actor, name, password string, balance decimal.Decimal) error {
	err := s.store.Create(ctx, name, password, balance)
	s.record(ctx, actor, wire.CmdAdminCreate, name, money.Format(balance), err)
	return err
}

// Delete removes the account and ends its session.
func (s *AdminService) Delete(ctx context.Context, actor Actor, name string) error {
	err := s.store.Delete(ctx, name)
	s.record(ctx, actor, wire.CmdAdminDelete, name, "", err)
	if err != nil {
		return err
	}
	s.sessions.Invalidate(name)
	s.notifier.Notify(ctx, wire.EventAccountDeleted, name, nil)
	return nil
}

// SetBalance overwrites the balance.
func (s *AdminService) SetBalance(ctx context.Context, actor Actor, name string, amount decimal.Decimal) error {
	err := s.store.SetBalance(ctx, name, amount)
	s.record(ctx, actor, wire.CmdAdminSetBalance, name, money.Format(amount), err)
	if err != nil {
		return err
	}
	s.notifier.Notify(ctx, wire.EventBalanceChanged, name, []string{wire.KindClient, wire.KindManager})
	return nil
}

// Lock locks the account, ends its session and takes it offline.
func (s *AdminService) Lock(ctx context.Context, actor Actor, name, reason string) error {
	err := s.store.SetLocked(ctx, name, true, reason)
	s.record(ctx, actor, wire.CmdAdminLock, name, "", err)
	if err != nil {
		return err
	}
	s.sessions.Invalidate(name)
	_ = s.store.MarkOnline(name, false, "")
	s.notifier.Notify(ctx, wire.EventAccountLocked, name, nil)
	return nil
}

// Unlock clears the lock.
func (s *AdminService) Unlock(ctx context.Context, actor Actor, name string) error {
	err := s.store.SetLocked(ctx, name, false, "")
	s.record(ctx, actor, wire.CmdAdminUnlock, name, "", err)
	return err
}

// ResetCredential replaces the credential and ends the current session.
func (s *AdminService) ResetCredential(ctx context.Context, actor Actor, name, password string) error {
	err := s.store.ResetCredential(ctx, name, password)
	s.record(ctx, actor, wire.CmdAdminResetCredential, name, "", err)
	if err != nil {
		return err
	}
	if s.sessions.Invalidate(name) {
		_ = s.store.MarkOnline(name, false, "")
	}
	return nil
}

// List returns the full administrative view sorted by name.
func (s *AdminService) List(ctx context.Context, actor Actor) []accounts.Account {
	s.record(ctx, actor, wire.CmdAdminList, "", "", nil)
	return s.store.Snapshot()
}

// Detail converts an account into its administrative wire view.
func Detail(a accounts.Account) wire.AccountDetail {
	d := wire.AccountDetail{
		Name:             a.Name,
		Balance:          money.Format(a.Balance),
		Locked:           a.Locked,
		LockReason:       a.LockReason,
		CreatedAt:        a.CreatedAt.UnixMilli(),
		TransactionCount: a.TransactionCount,
		RelayHint:        a.RelayHint,
		Online:           a.Online,
	}
	if !a.LockedAt.IsZero() {
		d.LockedAt = a.LockedAt.UnixMilli()
	}
	if !a.LastActivity.IsZero() {
		d.LastActivity = a.LastActivity.UnixMilli()
	}
	return d
}
