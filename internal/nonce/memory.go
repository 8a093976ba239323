package nonce

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/signgate/internal/observability"
)

// BackendMemory is the name of the in-process backend.
const BackendMemory = "memory"

const (
	defaultShards        = 64
	defaultSweepInterval = 30 * time.Second
	defaultSweepBatch    = 1024
)

type shard struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// MemoryStore is a Store held in process memory.
//
// Entries are spread over a fixed set of mutex-guarded shards. An expired
// entry counts as absent as soon as its deadline passes; a background
// sweeper reclaims the memory later, holding a shard lock for at most
// sweepBatch entries at a time.
type MemoryStore struct {
	shards        []*shard
	clock         func() time.Time
	sweepInterval time.Duration
	sweepBatch    int
	logger        observability.Logger
	metrics       *Metrics

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithShards sets the number of shards.
func WithShards(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.shards = make([]*shard, n)
		}
	}
}

// WithSweepInterval sets how often expired entries are reclaimed.
// Zero or negative disables the sweeper.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.sweepInterval = d
	}
}

// WithSweepBatch bounds the number of entries visited per shard lock hold.
func WithSweepBatch(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.sweepBatch = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.clock = clock
	}
}

// WithMemoryLogger sets the logger.
func WithMemoryLogger(logger observability.Logger) MemoryOption {
	return func(s *MemoryStore) {
		s.logger = logger
	}
}

// WithMemoryMetrics sets the metrics.
func WithMemoryMetrics(m *Metrics) MemoryOption {
	return func(s *MemoryStore) {
		s.metrics = m
	}
}

// NewMemoryStore creates an in-memory store and starts its sweeper.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		shards:        make([]*shard, defaultShards),
		clock:         time.Now,
		sweepInterval: defaultSweepInterval,
		sweepBatch:    defaultSweepBatch,
		logger:        observability.NopLogger(),
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]time.Time)}
	}

	if s.sweepInterval > 0 {
		s.wg.Add(1)
		go s.sweepLoop()
	}

	return s
}

// Name implements Store.
func (s *MemoryStore) Name() string {
	return BackendMemory
}

// CheckAndSet implements Store.
func (s *MemoryStore) CheckAndSet(ctx context.Context, namespace, value string, ttl time.Duration) (Result, error) {
	if ttl <= 0 {
		return 0, ErrInvalidTTL
	}
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	start := time.Now()
	key := storageKey(namespace, value)
	sh := s.shardFor(key)
	now := s.clock()

	sh.mu.Lock()
	if deadline, ok := sh.entries[key]; ok && now.Before(deadline) {
		sh.mu.Unlock()
		s.metrics.recordOperation(BackendMemory, resultReplay, time.Since(start))
		return Replay, nil
	}
	sh.entries[key] = now.Add(ttl)
	sh.mu.Unlock()

	s.metrics.recordOperation(BackendMemory, resultFresh, time.Since(start))
	return Fresh, nil
}

// Len returns the number of entries held, expired or not.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Sweep removes expired entries from every shard and returns how many
// were removed.
func (s *MemoryStore) Sweep() int {
	removed := 0
	for _, sh := range s.shards {
		removed += s.sweepShard(sh)
	}
	s.metrics.setEntries(s.Len())
	return removed
}

// Close stops the sweeper. It is idempotent.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *MemoryStore) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.Debug("swept expired nonces", observability.Int("removed", removed))
			}
		}
	}
}

// sweepShard visits the shard in increments of at most sweepBatch entries,
// releasing the lock between increments.
func (s *MemoryStore) sweepShard(sh *shard) int {
	removed := 0

	sh.mu.Lock()
	passes := len(sh.entries)/s.sweepBatch + 1
	sh.mu.Unlock()

	for pass := 0; pass < passes; pass++ {
		now := s.clock()
		visited := 0

		sh.mu.Lock()
		for key, deadline := range sh.entries {
			if visited >= s.sweepBatch {
				break
			}
			visited++
			if !now.Before(deadline) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()

		if visited < s.sweepBatch {
			break
		}
	}

	return removed
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}
