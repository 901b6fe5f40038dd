package refdata

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	pkgrefdata "ctgov-compliance-be/pkg/refdata"
)

const (
	organizationsKey = "refdata:organizations"
	userEmailsKey    = "refdata:user_emails"
)

// RedisProvider serves reference snapshots from Redis sets maintained by the
// dashboard's ingest jobs. Snapshots are cached for a TTL so every message
// does not cost two round trips, and the last good snapshot is served when
// Redis is unreachable.
type RedisProvider struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *log.Logger

	mu       sync.Mutex
	snapshot *pkgrefdata.Snapshot
	loadedAt time.Time
}

var _ pkgrefdata.Provider = &RedisProvider{}

func NewRedisProvider(client redis.Cmdable, ttl time.Duration, logger *log.Logger) *RedisProvider {
	return &RedisProvider{client: client, ttl: ttl, logger: logger}
}

func (p *RedisProvider) Snapshot(ctx context.Context) (*pkgrefdata.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.snapshot != nil && time.Since(p.loadedAt) < p.ttl {
		return p.snapshot, nil
	}

	fresh, err := p.load(ctx)
	if err != nil {
		if p.snapshot != nil {
			if p.logger != nil {
				p.logger.Printf("[WARN] Reference refresh failed (%v), serving snapshot from %s",
					err, p.loadedAt.Format(time.RFC3339))
			}
			return p.snapshot, nil
		}
		return nil, fmt.Errorf("load reference snapshot: %w", err)
	}

	p.snapshot = fresh
	p.loadedAt = time.Now()
	return p.snapshot, nil
}

func (p *RedisProvider) load(ctx context.Context) (*pkgrefdata.Snapshot, error) {
	orgs, err := p.client.SMembers(ctx, organizationsKey).Result()
	if err != nil {
		return nil, err
	}
	emails, err := p.client.SMembers(ctx, userEmailsKey).Result()
	if err != nil {
		return nil, err
	}

	// Stable order keeps ambiguity clarifications deterministic.
	sort.Strings(orgs)
	sort.Strings(emails)

	return &pkgrefdata.Snapshot{Organizations: orgs, UserEmails: emails}, nil
}
