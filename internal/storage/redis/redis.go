package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/worklog/internal/config"
	"github.com/goodtune/worklog/internal/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTimeout = 10 * time.Second
	lockRetryInterval  = 10 * time.Millisecond
)

// ErrLockLost is returned when the write lock expired before commit.
var ErrLockLost = errors.New("redis: write lock lost before commit")

// Store implements the storage.Store interface using Redis.
//
// Writers are serialised by a lock key so a transaction's reads and its
// buffered writes observe one consistent state; the buffered writes are
// committed with MULTI/EXEC while the lock is watched.
type Store struct {
	client      *redis.Client
	lockTimeout time.Duration
	mu          sync.Mutex
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	// Parse timeouts
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	lockTimeout := defaultLockTimeout
	if cfg.LockTimeout != "" {
		lockTimeout, err = time.ParseDuration(cfg.LockTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid lock_timeout: %w", err)
		}
	}

	// Determine address
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client, lockTimeout: lockTimeout}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Update runs fn with buffered writes and commits them atomically.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer s.releaseLock(token)

	tx := newTx(ctx, s.client, true)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit(token)
}

// View runs fn against the current Redis state without taking the lock.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(newTx(ctx, s.client, false))
}

func (s *Store) acquireLock(ctx context.Context) (string, error) {
	token := uuid.NewString()
	for {
		ok, err := s.client.SetNX(ctx, lockKey, token, s.lockTimeout).Result()
		if err != nil {
			return "", fmt.Errorf("failed to acquire write lock: %w", err)
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func (s *Store) releaseLock(token string) {
	// The caller's context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = redis.NewScript(releaseLockScript).Run(ctx, s.client, []string{lockKey}, token).Err()
}
