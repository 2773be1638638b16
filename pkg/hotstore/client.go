// Package hotstore is the thin wrapper over the low-latency KV/pub-sub
// store (C1): get/set with TTL, sets, hashes, pub/sub and SCAN-based
// enumeration. It is the only package in this repository that imports
// github.com/redis/go-redis/v9 directly.
//
// Three logically separate connections are held, mirroring a real
// deployment's topology: one for commands, one for publish, one for
// subscribe — a subscribed connection cannot serve ordinary commands.
package hotstore

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"memhybrid.app/pkg/models"
)

// Handler processes a single pub/sub payload delivered on a channel or
// pattern subscription.
type Handler func(ctx context.Context, channel string, payload []byte)

// Client is the public C1 contract. It is implemented by *RedisClient
// (backed by a real or miniredis Redis server) so callers never branch on
// which backend is live — the service wiring that builds the client picks
// it once, at construction time.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	SetAdd(ctx context.Context, key string, members ...string) error
	SetRemove(ctx context.Context, key string, member string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	HashIncrBy(ctx context.Context, key, field string, n int64) (int64, error)
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashSet(ctx context.Context, key, field, value string) error
	HashDel(ctx context.Context, key string, fields ...string) error
	Scan(ctx context.Context, cursor uint64, matchPattern string, count int64) (newCursor uint64, keys []string, err error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Info(ctx context.Context, section string) (string, error)
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handler Handler) (cancel func(), err error)
	PatternSubscribe(ctx context.Context, pattern string, handler Handler) (cancel func(), err error)
	Ping(ctx context.Context) error
	Close() error
}

// RedisClient implements Client over github.com/redis/go-redis/v9.
type RedisClient struct {
	cmd *redis.Client
	pub *redis.Client
	sub *redis.Client

	mu            sync.Mutex
	subscriptions []*redis.PubSub
}

// Options configures a RedisClient. Addr is the connection string named by
// hotStore.url in the engine's configuration.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// New dials three independent connections against the same Redis instance.
func New(opts Options) *RedisClient {
	mk := func() *redis.Client {
		return redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})
	}
	return &RedisClient{cmd: mk(), pub: mk(), sub: mk()}
}

func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.cmd.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewHotStoreOperation("get", err)
	}
	return val, nil
}

func (c *RedisClient) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.cmd.Set(ctx, key, value, ttl).Err(); err != nil {
		return models.NewHotStoreOperation("set", err)
	}
	return nil
}

func (c *RedisClient) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.cmd.Del(ctx, keys...).Err(); err != nil {
		return models.NewHotStoreOperation("del", err)
	}
	return nil
}

func (c *RedisClient) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.cmd.Incr(ctx, key).Result()
	if err != nil {
		return 0, models.NewHotStoreOperation("incr", err)
	}
	return n, nil
}

func (c *RedisClient) SetAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := c.cmd.SAdd(ctx, key, args...).Err(); err != nil {
		return models.NewHotStoreOperation("sadd", err)
	}
	return nil
}

func (c *RedisClient) SetRemove(ctx context.Context, key string, member string) error {
	if err := c.cmd.SRem(ctx, key, member).Err(); err != nil {
		return models.NewHotStoreOperation("srem", err)
	}
	return nil
}

func (c *RedisClient) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.cmd.SMembers(ctx, key).Result()
	if err != nil {
		return nil, models.NewHotStoreOperation("smembers", err)
	}
	return members, nil
}

func (c *RedisClient) HashIncrBy(ctx context.Context, key, field string, n int64) (int64, error) {
	v, err := c.cmd.HIncrBy(ctx, key, field, n).Result()
	if err != nil {
		return 0, models.NewHotStoreOperation("hincrby", err)
	}
	return v, nil
}

func (c *RedisClient) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := c.cmd.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, models.NewHotStoreOperation("hgetall", err)
	}
	return m, nil
}

func (c *RedisClient) HashSet(ctx context.Context, key, field, value string) error {
	if err := c.cmd.HSet(ctx, key, field, value).Err(); err != nil {
		return models.NewHotStoreOperation("hset", err)
	}
	return nil
}

func (c *RedisClient) HashDel(ctx context.Context, key string, fields ...string) error {
	if err := c.cmd.HDel(ctx, key, fields...).Err(); err != nil {
		return models.NewHotStoreOperation("hdel", err)
	}
	return nil
}

// Scan is the only permitted enumeration primitive: unbounded keyspace
// globbing (KEYS) is never issued by this client.
func (c *RedisClient) Scan(ctx context.Context, cursor uint64, matchPattern string, count int64) (uint64, []string, error) {
	keys, newCursor, err := c.cmd.Scan(ctx, cursor, matchPattern, count).Result()
	if err != nil {
		return 0, nil, models.NewHotStoreOperation("scan", err)
	}
	return newCursor, keys, nil
}

// TTL reports the remaining time-to-live for key. A negative duration
// means the key carries no expiry (-1) or is already gone (-2), per
// Redis's own TTL semantics - callers that want "expired or absent" check
// for either.
func (c *RedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.cmd.TTL(ctx, key).Result()
	if err != nil {
		return 0, models.NewHotStoreOperation("ttl", err)
	}
	return d, nil
}

func (c *RedisClient) Info(ctx context.Context, section string) (string, error) {
	var (
		s   string
		err error
	)
	if section == "" {
		s, err = c.cmd.Info(ctx).Result()
	} else {
		s, err = c.cmd.Info(ctx, section).Result()
	}
	if err != nil {
		return "", models.NewHotStoreOperation("info", err)
	}
	return s, nil
}

func (c *RedisClient) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.pub.Publish(ctx, channel, payload).Err(); err != nil {
		return models.NewHotStoreOperation("publish", err)
	}
	return nil
}

func (c *RedisClient) Subscribe(ctx context.Context, channel string, handler Handler) (func(), error) {
	ps := c.sub.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, models.NewHotStoreOperation("subscribe", err)
	}
	c.trackSubscription(ps)
	go c.dispatch(ctx, ps, handler)
	return func() { ps.Close() }, nil
}

func (c *RedisClient) PatternSubscribe(ctx context.Context, pattern string, handler Handler) (func(), error) {
	ps := c.sub.PSubscribe(ctx, pattern)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, models.NewHotStoreOperation("psubscribe", err)
	}
	c.trackSubscription(ps)
	go c.dispatch(ctx, ps, handler)
	return func() { ps.Close() }, nil
}

func (c *RedisClient) trackSubscription(ps *redis.PubSub) {
	c.mu.Lock()
	c.subscriptions = append(c.subscriptions, ps)
	c.mu.Unlock()
}

func (c *RedisClient) dispatch(ctx context.Context, ps *redis.PubSub, handler Handler) {
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			handler(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.cmd.Ping(ctx).Err(); err != nil {
		return models.NewHotStoreUnavailable("ping", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	c.mu.Lock()
	for _, ps := range c.subscriptions {
		ps.Close()
	}
	c.mu.Unlock()

	var firstErr error
	for _, cl := range []*redis.Client{c.cmd, c.pub, c.sub} {
		if err := cl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// reconnectBackoff computes the exponential-backoff-with-jitter delay for
// attempt n (0-based), capped at 2s with +-200ms jitter.
func reconnectBackoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * 50 * time.Millisecond
	const cap = 2 * time.Second
	if base > cap {
		base = cap
	}
	jitter := time.Duration(rand.Intn(400)-200) * time.Millisecond
	d := base + jitter
	if d < 0 {
		d = 0
	}
	return d
}

// WaitForReady blocks, retrying Ping with reconnectBackoff, until ctx is
// canceled or the hot store answers; it never gives up on its own. No
// package in this repository calls it.
func WaitForReady(ctx context.Context, c Client) {
	attempt := 0
	for {
		if err := c.Ping(ctx); err == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectBackoff(attempt)):
			attempt++
		}
	}
}

// ParseInfoField extracts a single "key:value" line's value out of an INFO
// section blob (for example connected_clients) without parsing the whole
// payload into a struct.
func ParseInfoField(info, field string) (string, bool) {
	for _, line := range strings.Split(info, "\r\n") {
		if strings.HasPrefix(line, field+":") {
			return strings.TrimPrefix(line, field+":"), true
		}
	}
	return "", false
}
