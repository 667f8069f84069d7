package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/linkledger/internal/accounts"
	"github.com/dmitrijs2005/linkledger/internal/audit"
	"github.com/dmitrijs2005/linkledger/internal/common"
	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/money"
	"github.com/dmitrijs2005/linkledger/internal/sessions"
	"github.com/dmitrijs2005/linkledger/internal/wire"
	"github.com/shopspring/decimal"
)

// BankService handles the commands an account holder may issue:
// - Login / Logout: open and close the single session of an account
// - Balance: read the balance of an authenticated, logged-in account
// - Transfer: move money between two accounts
// - ListAccounts: public directory, no session required
type BankService struct {
	store    *accounts.Store
	sessions *sessions.Manager
	audit    audit.Recorder
	notifier Notifier
	logger   logging.Logger
}

func NewBankService(store *accounts.Store, sm *sessions.Manager, rec audit.Recorder, n Notifier, l logging.Logger) *BankService {
	if rec == nil {
		rec = audit.Discard
	}
	if n == nil {
		n = NopNotifier{}
	}
	return &BankService{
		store:    store,
		sessions: sm,
		audit:    rec,
		notifier: n,
		logger:   l.With("module", "bank"),
	}
}

// loginRace runs between authentication and opening the session. Tests
// replace it to interleave admin actions.
var loginRace = func(name string) {}

func relayHint(origin sessions.Origin) string {
	if origin.Via != "" {
		return origin.Via
	}
	return origin.Address
}

// Login verifies the credential, refuses locked accounts and opens a session
// bound to origin. It returns the current balance.
func (s *BankService) Login(ctx context.Context, origin sessions.Origin, name, password string) (decimal.Decimal, error) {
	a, err := s.store.Authenticate(name, password)
	if err != nil {
		return decimal.Zero, err
	}
	if a.Locked {
		return decimal.Zero, common.Locked(common.CodeAccountLocked, a.LockReason, a.LockedAt)
	}

	loginRace(name)

	if err := s.sessions.Login(name, origin); err != nil {
		return decimal.Zero, err
	}
	if err := s.store.MarkOnline(name, true, relayHint(origin)); err != nil {
		// locked or deleted since authentication
		s.sessions.Logout(name)
		return decimal.Zero, err
	}

	s.logger.Info(ctx, "login", "account", name, "origin", origin.Address, "via", origin.Via)
	return a.Balance, nil
}

// validate renews the session of name. An expired session also takes the
// account offline.
func (s *BankService) validate(name string) error {
	err := s.sessions.Validate(name)
	if errors.Is(err, common.ErrSessionExpired) {
		_ = s.store.MarkOnline(name, false, "")
	}
	return err
}

// Logout ends the session of an authenticated account. Calling it without a
// session succeeds.
func (s *BankService) Logout(ctx context.Context, name, password string) error {
	if _, err := s.store.Authenticate(name, password); err != nil {
		return err
	}
	if s.sessions.Logout(name) {
		s.logger.Info(ctx, "logout", "account", name)
	}
	_ = s.store.MarkOnline(name, false, "")
	return nil
}

// Balance re-checks the credential, renews the session and returns the
// balance.
func (s *BankService) Balance(ctx context.Context, name, password string) (decimal.Decimal, error) {
	if _, err := s.store.Authenticate(name, password); err != nil {
		return decimal.Zero, err
	}
	if err := s.validate(name); err != nil {
		return decimal.Zero, err
	}
	s.store.Touch(name)

	a, err := s.store.Get(name)
	if err != nil {
		return decimal.Zero, err
	}
	return a.Balance, nil
}

// Transfer moves amount from name to recipient and returns the sender's new
// balance. Every attempt past authentication is audited.
func (s *BankService) Transfer(ctx context.Context, name, password, recipient string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, common.ErrInvalidAmount
	}
	if _, err := s.store.Authenticate(name, password); err != nil {
		return decimal.Zero, err
	}
	if err := s.validate(name); err != nil {
		return decimal.Zero, err
	}

	balance, err := s.store.Transfer(ctx, name, recipient, amount)

	entry := audit.Entry{
		Actor:        name,
		Command:      wire.CmdTransfer,
		Account:      name,
		Counterparty: recipient,
		Amount:       money.Format(amount),
		Outcome:      outcome(err),
	}
	if aerr := s.audit.Record(entry); aerr != nil {
		s.logger.Error(ctx, "audit write failed", "error", aerr)
	}

	if err != nil {
		s.logger.Info(ctx, "transfer rejected", "from", name, "to", recipient, "code", common.CodeOf(err))
		return decimal.Zero, err
	}

	s.notifier.Notify(ctx, wire.EventBalanceChanged, recipient, []string{wire.KindClient, wire.KindManager})
	s.logger.Info(ctx, "transfer", "from", name, "to", recipient, "amount", money.Format(amount))
	return balance, nil
}

// ListAccounts returns every account name with its presence, sorted by name.
func (s *BankService) ListAccounts() []accounts.Summary {
	return s.store.List()
}

// Sweep ends expired sessions and marks their accounts offline.
func (s *BankService) Sweep(ctx context.Context) []string {
	expired := s.sessions.Sweep()
	for _, name := range expired {
		_ = s.store.MarkOnline(name, false, "")
		s.logger.Info(ctx, "session expired", "account", name)
	}
	return expired
}

func outcome(err error) string {
	if err == nil {
		return audit.OutcomeOK
	}
	return string(common.CodeOf(err))
}
