package mining

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"bingot/blockchain"
	"bingot/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoSolutionFound = errors.New("no solution found in search space")
	ErrCandidateStale  = errors.New("candidate block is stale")

	errSolved = errors.New("round solved")
)

const (
	DefaultSearchSpace uint64 = 932838457459459
	DefaultBatchSize   uint64 = 4096
)

type Config struct {
	Workers     int
	SearchSpace uint64
	// BatchSize is how many nonces a worker tries between cancellation checks.
	BatchSize uint64
}

func DefaultConfig() Config {
	return Config{
		Workers:     runtime.NumCPU(),
		SearchSpace: DefaultSearchSpace,
		BatchSize:   DefaultBatchSize,
	}
}

func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.SearchSpace == 0 {
		return errors.New("search space must not be empty")
	}
	if c.BatchSize == 0 {
		return errors.New("batch size must be positive")
	}
	return nil
}

type Stats struct {
	Rounds uint64
	Solved uint64
	Active int64
}

// Coordinator searches the nonce space of a candidate block with a fixed
// pool of workers. Each round partitions the search space, and the first
// worker to find a nonce ends the round for all.
type Coordinator struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Metrics

	rounds atomic.Uint64
	solved atomic.Uint64
	active atomic.Int64
}

func NewCoordinator(cfg Config, logger zerolog.Logger, m *metrics.Metrics) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mining config: %w", err)
	}
	return &Coordinator{
		cfg:     cfg,
		logger:  logger.With().Str("component", "miner").Logger(),
		metrics: m,
	}, nil
}

func (c *Coordinator) Config() Config {
	return c.cfg
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		Rounds: c.rounds.Load(),
		Solved: c.solved.Load(),
		Active: c.active.Load(),
	}
}

// StartRound mines candidate and blocks until a worker finds a nonce, the
// search space is exhausted (ErrNoSolutionFound) or ctx is done. A context
// cancelled with a cause returns that cause, so callers cancel with
// ErrCandidateStale when the chain tip moves. The candidate is not modified;
// the solved block is a sealed copy.
func (c *Coordinator) StartRound(ctx context.Context, candidate *blockchain.Block) (*blockchain.Block, error) {
	if candidate == nil {
		return nil, errors.New("nil candidate block")
	}

	c.rounds.Add(1)
	c.active.Add(1)
	defer c.active.Add(-1)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	header := candidate.Header
	ranges := Partition(c.cfg.SearchSpace, c.cfg.Workers)
	started := time.Now()

	c.logger.Debug().
		Uint64("index", header.Index).
		Uint8("difficulty", header.Difficulty).
		Int("workers", len(ranges)).
		Msg("Mining round started")

	var (
		found    atomic.Bool
		solution atomic.Uint64
		hashes   atomic.Uint64
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range ranges {
		g.Go(func() error {
			nonce, ok, tried := c.search(gctx, &header, r)
			hashes.Add(tried)
			if ok && found.CompareAndSwap(false, true) {
				solution.Store(nonce)
				cancel(errSolved)
			}
			return nil
		})
	}
	_ = g.Wait()

	c.metrics.AddHashes(hashes.Load())

	if found.Load() {
		solved := *candidate
		solved.Seal(solution.Load())
		c.solved.Add(1)
		c.metrics.RoundFinished("solved")
		c.logger.Info().
			Uint64("index", solved.Header.Index).
			Str("hash", solved.Hash.Short()).
			Uint64("nonce", solved.Header.Nonce).
			Uint64("hashes", hashes.Load()).
			Dur("elapsed", time.Since(started)).
			Msg("Block solved")
		return &solved, nil
	}

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, errSolved) {
		outcome := "cancelled"
		if errors.Is(cause, ErrCandidateStale) {
			outcome = "stale"
		}
		c.metrics.RoundFinished(outcome)
		c.logger.Debug().Err(cause).Uint64("index", header.Index).Msg("Mining round stopped")
		return nil, cause
	}

	c.metrics.RoundFinished("exhausted")
	c.logger.Info().Uint64("index", header.Index).Uint64("hashes", hashes.Load()).Msg("Search space exhausted")
	return nil, ErrNoSolutionFound
}

// search scans r in batches, checking ctx between batches. The header
// encoding is copied once and only the nonce bytes change per attempt.
func (c *Coordinator) search(ctx context.Context, header *blockchain.BlockHeader, r NonceRange) (uint64, bool, uint64) {
	buf := header.PoWBytes()
	difficulty := header.Difficulty
	var tried uint64

	for start := r.Start; start < r.End; {
		if ctx.Err() != nil {
			return 0, false, tried
		}

		end := r.End
		if end-start > c.cfg.BatchSize {
			end = start + c.cfg.BatchSize
		}

		for nonce := start; nonce < end; nonce++ {
			binary.BigEndian.PutUint64(buf[blockchain.NonceOffset:], nonce)
			if blockchain.HashMeetsDifficulty(sha256.Sum256(buf[:]), difficulty) {
				return nonce, true, tried + (nonce - start) + 1
			}
		}
		tried += end - start
		start = end
	}
	return 0, false, tried
}
