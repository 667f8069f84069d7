package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/accounts"
	"github.com/dmitrijs2005/linkledger/internal/audit"
	"github.com/dmitrijs2005/linkledger/internal/clock"
	"github.com/dmitrijs2005/linkledger/internal/common"
	"github.com/dmitrijs2005/linkledger/internal/cryptox"
	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/sessions"
	"github.com/dmitrijs2005/linkledger/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type memPersister struct {
	mu      sync.Mutex
	payload []byte
	fail    bool
}

func (m *memPersister) Store(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk on fire")
	}
	m.payload = append([]byte(nil), payload...)
	return nil
}

func (m *memPersister) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.payload == nil {
		return nil, storage.ErrNotFound
	}
	return m.payload, nil
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Record(e audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingAudit) last(t *testing.T) audit.Entry {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.entries)
	return r.entries[len(r.entries)-1]
}

type notice struct {
	event, account string
	audience       []string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (r *recordingNotifier) Notify(ctx context.Context, event, account string, audience []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice{event, account, audience})
}

func (r *recordingNotifier) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.event+":"+n.account)
	}
	return out
}

// --- fixture ---

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

var jwtSecret = []byte("admin-secret")

type fixture struct {
	clock     *clock.FakeClock
	persister *memPersister
	store     *accounts.Store
	sessions  *sessions.Manager
	audit     *recordingAudit
	notifier  *recordingNotifier
	bank      *BankService
	admin     *AdminService
}

var relayOrigin = sessions.Origin{Address: "endpoint-1", Channel: 4000, Via: "relay-a"}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	h, err := cryptox.NewHasher([]byte("test-secret"), []byte("test-salt"))
	require.NoError(t, err)

	f := &fixture{
		clock:     clock.Fake(epoch),
		persister: &memPersister{},
		audit:     &recordingAudit{},
		notifier:  &recordingNotifier{},
	}
	f.store = accounts.NewStore(h, f.persister, f.clock, logging.Nop())
	f.sessions = sessions.NewManager(f.clock, 10*time.Minute)
	f.bank = NewBankService(f.store, f.sessions, f.audit, f.notifier, logging.Nop())
	f.admin = NewAdminService(f.store, f.sessions, f.audit, f.notifier, jwtSecret, logging.Nop())

	ctx := context.Background()
	require.NoError(t, f.store.Create(ctx, "alice", "alice-pw", decimal.NewFromInt(100)))
	require.NoError(t, f.store.Create(ctx, "bob", "bob-pw", decimal.Zero))
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireCode(t *testing.T, err error, code common.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, common.CodeOf(err), "error: %v", err)
}
