package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memVolume is an in-memory Volume with failure switches.
type memVolume struct {
	name string

	mu       sync.Mutex
	data     map[string][]byte
	writeErr error
	readErr  error
	// corruptOnWrite flips a byte of every stored chunk
	corruptOnWrite bool
}

func newMemVolume(name string) *memVolume {
	return &memVolume{name: name, data: map[string][]byte{}}
}

func (m *memVolume) Name() string { return m.name }

func (m *memVolume) Read(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	d, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), d...), nil
}

func (m *memVolume) Write(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	d := append([]byte(nil), data...)
	if m.corruptOnWrite {
		d[len(d)-1] ^= 0xff
	}
	m.data[key] = d
	return nil
}

func (m *memVolume) Close() error { return nil }

func (m *memVolume) corrupt(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key][len(m.data[key])-1] ^= 0xff
}

func newSet(t *testing.T, quorum int, vols ...Volume) *ReplicaSet {
	t.Helper()
	rs, err := NewReplicaSet(vols, Options{WriteQuorum: quorum, Compression: CompressionZstd}, logging.Nop())
	require.NoError(t, err)
	return rs
}

func TestNewReplicaSet_Validation(t *testing.T) {
	_, err := NewReplicaSet(nil, Options{}, logging.Nop())
	require.Error(t, err)

	_, err = NewReplicaSet([]Volume{newMemVolume("a")}, Options{WriteQuorum: 2}, logging.Nop())
	require.Error(t, err)

	rs, err := NewReplicaSet([]Volume{newMemVolume("a")}, Options{}, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Quorum())

	rs, err = NewReplicaSet([]Volume{newMemVolume("a"), newMemVolume("b"), newMemVolume("c")}, Options{}, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Quorum())
}

func TestReplicaSet_StoreThenLoad(t *testing.T) {
	a, b := newMemVolume("a"), newMemVolume("b")
	rs := newSet(t, 2, a, b)

	require.NoError(t, rs.Store(context.Background(), []byte("table-v1")))
	require.NoError(t, rs.Store(context.Background(), []byte("table-v2")))
	assert.Equal(t, uint64(2), rs.Generation())

	reloaded := newSet(t, 2, a, b)
	got, err := reloaded.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("table-v2"), got)
	assert.Equal(t, uint64(2), reloaded.Generation())
}

func TestReplicaSet_StoreToleratesFailuresWithinQuorum(t *testing.T) {
	a, b, c := newMemVolume("a"), newMemVolume("b"), newMemVolume("c")
	b.writeErr = errors.New("disk gone")
	rs := newSet(t, 2, a, b, c)

	require.NoError(t, rs.Store(context.Background(), []byte("table")))
	assert.Contains(t, a.data, "accounts")
	assert.Contains(t, c.data, "accounts")
}

func TestReplicaSet_StoreFailsBelowQuorum(t *testing.T) {
	a, b := newMemVolume("a"), newMemVolume("b")
	b.corruptOnWrite = true
	rs := newSet(t, 2, a, b)

	err := rs.Store(context.Background(), []byte("table"))
	require.ErrorIs(t, err, ErrQuorumNotReached)
	assert.ErrorIs(t, err, ErrCorrupt, "read-back verification reports the corrupt replica")
	assert.Equal(t, uint64(1), rs.Generation(), "volume a holds generation 1 now")

	a.writeErr = errors.New("disk gone")
	require.ErrorIs(t, rs.Store(context.Background(), []byte("table")), ErrQuorumNotReached)
	assert.Equal(t, uint64(1), rs.Generation(), "nothing was written")
}

func TestReplicaSet_NextStoreSupersedesFailedStore(t *testing.T) {
	a, b := newMemVolume("a"), newMemVolume("b")
	rs := newSet(t, 2, a, b)
	ctx := context.Background()

	require.NoError(t, rs.Store(ctx, []byte("committed")))

	b.writeErr = errors.New("disk gone")
	require.ErrorIs(t, rs.Store(ctx, []byte("abandoned")), ErrQuorumNotReached)

	b.writeErr = nil
	require.NoError(t, rs.Store(ctx, []byte("committed")))
	assert.Equal(t, uint64(3), rs.Generation())

	got, err := newSet(t, 2, a, b).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("committed"), got)
}

func TestReplicaSet_LoadSkipsCorruptFirstReplica(t *testing.T) {
	a, b := newMemVolume("a"), newMemVolume("b")
	rs := newSet(t, 2, a, b)
	require.NoError(t, rs.Store(context.Background(), []byte("good table")))

	a.corrupt("accounts")

	got, err := newSet(t, 2, a, b).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("good table"), got)
}

func TestReplicaSet_LoadSkipsUnreadableVolume(t *testing.T) {
	a, b := newMemVolume("a"), newMemVolume("b")
	rs := newSet(t, 2, a, b)
	require.NoError(t, rs.Store(context.Background(), []byte("table")))

	a.readErr = errors.New("io error")
	got, err := rs.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("table"), got)
}

func TestReplicaSet_LoadFreshInstall(t *testing.T) {
	rs := newSet(t, 1, newMemVolume("a"), newMemVolume("b"))
	_, err := rs.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplicaSet_LoadAllCorrupt(t *testing.T) {
	a, b := newMemVolume("a"), newMemVolume("b")
	rs := newSet(t, 2, a, b)
	require.NoError(t, rs.Store(context.Background(), []byte("table")))
	a.corrupt("accounts")
	b.corrupt("accounts")

	_, err := rs.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoValidReplica)
}

func TestReplicaSet_LoadMissingAndCorruptIsNotFresh(t *testing.T) {
	a, b := newMemVolume("a"), newMemVolume("b")
	rs := newSet(t, 1, a, b)
	require.NoError(t, rs.Store(context.Background(), []byte("table")))
	delete(a.data, "accounts")
	b.corrupt("accounts")

	_, err := rs.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoValidReplica)
}

func TestReplicaSet_MixedBackends(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDirVolume(filepath.Join(dir, "d"))
	require.NoError(t, err)
	b, err := OpenBoltVolume(filepath.Join(dir, "b.db"))
	require.NoError(t, err)

	rs := newSet(t, 2, d, b)
	defer rs.Close()

	require.NoError(t, rs.Store(context.Background(), []byte("mixed")))
	got, err := rs.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("mixed"), got)
}
