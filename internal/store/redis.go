package store

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/Iron-Ham/agentsync/internal/errors"
)

const (
	// scanBatch is the COUNT hint passed to each SCAN call.
	scanBatch = 200

	// DefaultChannelPrefix prefixes the change-notification channel.
	DefaultChannelPrefix = "agentsync:"

	// DefaultConnectTimeout bounds the initial connection retries.
	DefaultConnectTimeout = 10 * time.Second
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// ChannelPrefix prefixes the pub/sub channel used for change
	// notifications; the channel is ChannelPrefix + "changes".
	ChannelPrefix string

	// ConnectTimeout bounds how long construction retries the initial PING.
	ConnectTimeout time.Duration
}

// RedisStore is the networked backend. Keys map one to one onto Redis keys
// and TTLs onto native expiry.
type RedisStore struct {
	client  *redis.Client
	channel string
	closed  atomic.Bool
}

// NewRedisStore connects to Redis and verifies the connection with PING,
// retrying with exponential backoff until opts.ConnectTimeout elapses.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.NewValidationError("redis address is required").WithField("store.redis.addr")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = opts.ConnectTimeout
	ping := func() error {
		return client.Ping(ctx).Err()
	}
	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		_ = client.Close()
		return nil, errors.NewStoreError("connect", err).WithBackend(BackendRedis)
	}

	return NewRedisStoreFromClient(client, opts.ChannelPrefix), nil
}

// NewRedisStoreFromClient wraps an existing client without pinging it.
// The store takes ownership of the client and closes it on Close.
func NewRedisStoreFromClient(client *redis.Client, channelPrefix string) *RedisStore {
	if channelPrefix == "" {
		channelPrefix = DefaultChannelPrefix
	}
	return &RedisStore{
		client:  client,
		channel: channelPrefix + "changes",
	}
}

// Set implements Store with SET key value EX ttl.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.check(key); err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return s.storeErr("set", key, err)
	}
	s.notify(ctx, key)
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.storeErr("get", key, err)
	}
	return value, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.check(key); err != nil {
		return err
	}
	removed, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return s.storeErr("delete", key, err)
	}
	if removed > 0 {
		s.notify(ctx, key)
	}
	return nil
}

// Scan implements Store by iterating SCAN MATCH <prefix>* with a cursor and
// fetching each batch with MGET. Keys that expire between the two calls are
// skipped.
func (s *RedisStore) Scan(ctx context.Context, prefix string) ([]Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := ValidatePrefix(prefix); err != nil {
		return nil, err
	}

	pattern := escapeGlob(prefix) + "*"
	var (
		entries []Entry
		cursor  uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, s.storeErr("scan", prefix, err)
		}
		if len(keys) > 0 {
			values, err := s.client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, s.storeErr("scan", prefix, err)
			}
			for i, v := range values {
				str, ok := v.(string)
				if !ok {
					continue
				}
				entries = append(entries, Entry{Key: keys[i], Value: []byte(str)})
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return dedupe(entries), nil
}

// Watch implements Watcher by subscribing to the change channel.
func (s *RedisStore) Watch(ctx context.Context, key string) (<-chan struct{}, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}

	sub := s.client.Subscribe(ctx, s.channel)
	// Receive blocks until the subscription is confirmed so that no change
	// published after Watch returns can be missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, s.storeErr("watch", key, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if msg.Payload != key {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return s.storeErr("close", "", err)
	}
	return nil
}

func (s *RedisStore) check(key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ValidateKey(key)
}

// notify publishes key on the change channel. Delivery is best-effort:
// watchers still poll, so a lost notification only delays them.
func (s *RedisStore) notify(ctx context.Context, key string) {
	_ = s.client.Publish(ctx, s.channel, key).Err()
}

func (s *RedisStore) storeErr(op, key string, err error) error {
	return errors.NewStoreError(op, err).WithBackend(BackendRedis).WithKey(key)
}

// escapeGlob escapes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// dedupe drops repeated keys; SCAN may return a key more than once when the
// keyspace is rehashed mid-iteration.
func dedupe(entries []Entry) []Entry {
	seen := make(map[string]struct{}, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if _, ok := seen[e.Key]; ok {
			continue
		}
		seen[e.Key] = struct{}{}
		out = append(out, e)
	}
	return out
}

var (
	_ Store   = (*RedisStore)(nil)
	_ Watcher = (*RedisStore)(nil)
)
