// Package leader keeps a single active orchestrator across instances with a
// Redis lease (SET NX PX, released and extended only by its owner).
package leader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLeaseNotAcquired = errors.New("lease not acquired")
	ErrLeaseNotHeld     = errors.New("lease not held")
)

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RedisLease is a renewable lease on key owned by this process.
type RedisLease struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration

	mu   sync.Mutex
	held bool
}

func NewRedisLease(client *redis.Client, key string, ttl time.Duration) *RedisLease {
	return &RedisLease{
		client: client,
		key:    key,
		owner:  uuid.NewString(),
		ttl:    ttl,
	}
}

func (l *RedisLease) Owner() string { return l.owner }

// TryLead extends the lease when held, otherwise tries to take it.
// It reports whether this process is the leader afterwards.
func (l *RedisLease) TryLead(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		err := l.extend(ctx)
		if err == nil {
			return true, nil
		}
		l.held = false
		if !errors.Is(err, ErrLeaseNotHeld) {
			return false, err
		}
	}

	err := l.acquire(ctx)
	if errors.Is(err, ErrLeaseNotAcquired) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	l.held = true
	return true, nil
}

// Resign releases the lease if this process holds it.
func (l *RedisLease) Resign(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}
	l.held = false
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLeaseNotHeld
	}
	return nil
}

func (l *RedisLease) acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLeaseNotAcquired
	}
	return nil
}

func (l *RedisLease) extend(ctx context.Context) error {
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLeaseNotHeld
	}
	return nil
}
