// Package accounts owns the account table: balances, lock state and
// credential digests, persisted as a whole through a replica set after every
// change.
package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a copy of one row; mutating it does not affect the store.
type Account struct {
	Name             string
	Credential       []byte
	Balance          decimal.Decimal
	Locked           bool
	LockReason       string
	LockedAt         time.Time
	CreatedAt        time.Time
	LastActivity     time.Time
	TransactionCount uint64
	// RelayHint is the relay that carried the last login.
	RelayHint string
	// Online is runtime state and is never persisted.
	Online bool
}

// Summary is the public view of an account.
type Summary struct {
	Name   string
	Online bool
}

func (a *Account) clone() Account {
	c := *a
	c.Credential = append([]byte(nil), a.Credential...)
	return c
}

// tableVersion is bumped on incompatible changes to the persisted layout.
const tableVersion = 1

type table struct {
	Version  int      `cbor:"version"`
	Accounts []record `cbor:"accounts"`
}

// record is the persisted form of an Account. Times are unix milliseconds,
// zero meaning unset.
type record struct {
	Name             string `cbor:"name"`
	Credential       []byte `cbor:"credential"`
	Balance          string `cbor:"balance"`
	Locked           bool   `cbor:"locked,omitempty"`
	LockReason       string `cbor:"lock_reason,omitempty"`
	LockedAt         int64  `cbor:"locked_at,omitempty"`
	CreatedAt        int64  `cbor:"created_at"`
	LastActivity     int64  `cbor:"last_activity,omitempty"`
	TransactionCount uint64 `cbor:"transaction_count"`
	RelayHint        string `cbor:"relay_hint,omitempty"`
}

func toRecord(a *Account) record {
	return record{
		Name:             a.Name,
		Credential:       a.Credential,
		Balance:          a.Balance.StringFixed(2),
		Locked:           a.Locked,
		LockReason:       a.LockReason,
		LockedAt:         unixMilli(a.LockedAt),
		CreatedAt:        unixMilli(a.CreatedAt),
		LastActivity:     unixMilli(a.LastActivity),
		TransactionCount: a.TransactionCount,
		RelayHint:        a.RelayHint,
	}
}

func fromRecord(r record) (*Account, error) {
	bal, err := decimal.NewFromString(r.Balance)
	if err != nil {
		return nil, err
	}
	return &Account{
		Name:             r.Name,
		Credential:       r.Credential,
		Balance:          bal,
		Locked:           r.Locked,
		LockReason:       r.LockReason,
		LockedAt:         fromMilli(r.LockedAt),
		CreatedAt:        fromMilli(r.CreatedAt),
		LastActivity:     fromMilli(r.LastActivity),
		TransactionCount: r.TransactionCount,
		RelayHint:        r.RelayHint,
	}, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
