package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/linkledger/internal/logging"
)

var (
	// ErrQuorumNotReached is returned by Store when fewer than WriteQuorum
	// volumes accepted and verified the chunk.
	ErrQuorumNotReached = errors.New("storage: write quorum not reached")
	// ErrNoValidReplica is returned by Load when chunks exist but none of
	// them is readable and intact.
	ErrNoValidReplica = errors.New("storage: no valid replica")
)

// Options configures a ReplicaSet.
type Options struct {
	// Key names the chunk on every volume.
	Key string
	// WriteQuorum is the number of verified writes Store needs. Zero picks
	// 1 for a single volume and 2 otherwise.
	WriteQuorum int
	Compression Compression
}

// ReplicaSet writes one logical chunk to several volumes.
type ReplicaSet struct {
	volumes     []Volume
	key         string
	quorum      int
	compression Compression
	logger      logging.Logger

	mu         sync.Mutex
	generation uint64
}

func NewReplicaSet(volumes []Volume, opts Options, logger logging.Logger) (*ReplicaSet, error) {
	if len(volumes) == 0 {
		return nil, errors.New("storage: at least one volume is required")
	}
	if opts.Key == "" {
		opts.Key = "accounts"
	}
	q := opts.WriteQuorum
	if q == 0 {
		q = 1
		if len(volumes) > 1 {
			q = 2
		}
	}
	if q < 1 || q > len(volumes) {
		return nil, fmt.Errorf("storage: write quorum %d out of range 1..%d", q, len(volumes))
	}
	return &ReplicaSet{
		volumes:     volumes,
		key:         opts.Key,
		quorum:      q,
		compression: opts.Compression,
		logger:      logger.With("module", "storage"),
	}, nil
}

// Quorum returns the effective write quorum.
func (r *ReplicaSet) Quorum() int { return r.quorum }

// Generation returns the generation of the last stored or loaded chunk.
func (r *ReplicaSet) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// Store writes payload to every volume, reads each copy back and checks it.
// Volumes that fail are logged and skipped; the call succeeds once the
// quorum verified. A failed call may still leave the new chunk on some
// volumes: callers that abandon the payload must store the state they keep.
func (r *ReplicaSet) Store(ctx context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	gen := r.generation + 1
	chunk, err := EncodeChunk(gen, r.compression, payload)
	if err != nil {
		return fmt.Errorf("encode chunk: %w", err)
	}

	var (
		verified int
		errs     []error
	)
	for _, v := range r.volumes {
		if err := r.writeVerified(ctx, v, gen, chunk, payload); err != nil {
			r.logger.Warn(ctx, "replica write failed", "volume", v.Name(), "generation", gen, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", v.Name(), err))
			continue
		}
		verified++
	}

	if verified > 0 {
		// the chunk is on disk somewhere, so the next store must supersede it
		r.generation = gen
	}
	if verified < r.quorum {
		return fmt.Errorf("%w (%d/%d): %w", ErrQuorumNotReached, verified, r.quorum, errors.Join(errs...))
	}
	return nil
}

func (r *ReplicaSet) writeVerified(ctx context.Context, v Volume, gen uint64, chunk, payload []byte) error {
	if err := v.Write(ctx, r.key, chunk); err != nil {
		return err
	}
	back, err := v.Read(ctx, r.key)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	c, err := DecodeChunk(back)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if c.Generation != gen || !bytes.Equal(c.Payload, payload) {
		return fmt.Errorf("verify: %w: read back a different chunk", ErrCorrupt)
	}
	return nil
}

// Load returns the payload of the first valid chunk in volume order.
//
// It returns ErrNotFound when every volume reports the key missing (a fresh
// install) and ErrNoValidReplica when something was there but nothing
// usable could be read.
func (r *ReplicaSet) Load(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	missing := 0
	for _, v := range r.volumes {
		raw, err := v.Read(ctx, r.key)
		if errors.Is(err, ErrNotFound) {
			missing++
			continue
		}
		if err != nil {
			r.logger.Warn(ctx, "replica unreadable", "volume", v.Name(), "error", err)
			continue
		}
		c, err := DecodeChunk(raw)
		if err != nil {
			r.logger.Error(ctx, "replica failed integrity check", "volume", v.Name(), "error", err)
			continue
		}

		r.generation = c.Generation
		r.logger.Info(ctx, "loaded replica", "volume", v.Name(), "generation", c.Generation)
		return c.Payload, nil
	}

	if missing == len(r.volumes) {
		return nil, ErrNotFound
	}
	return nil, ErrNoValidReplica
}

// Close closes every volume.
func (r *ReplicaSet) Close() error {
	var errs []error
	for _, v := range r.volumes {
		if err := v.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", v.Name(), err))
		}
	}
	return errors.Join(errs...)
}
