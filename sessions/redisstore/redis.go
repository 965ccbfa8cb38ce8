// Package redisstore provides a Redis-backed sessions.Store for deployments
// where the session table should survive a gateway restart or be shared
// across instances.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/agentgate/mcp-gateway-go/sessions"
)

// Config for the Redis-backed store. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SESSIONS_KEY_PREFIX
	KeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=gateway:sessions:"`
}

// Store persists sessions as JSON values under a common key prefix.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

var _ sessions.Store = (*Store)(nil)

// New builds a Store and verifies connectivity with a ping.
func New(cfg Config) (*Store, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "gateway:sessions:"
	}
	return &Store{client: cl, keyPrefix: prefix}, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv() (*Store, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode redis store config: %w", err)
	}
	return New(cfg)
}

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) key(id string) string { return s.keyPrefix + id }

func (s *Store) Put(ctx context.Context, sess sessions.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.client.Set(ctx, s.key(sess.ID), data, 0).Err()
}

func (s *Store) Get(ctx context.Context, id string) (sessions.Session, bool, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return sessions.Session{}, false, nil
	}
	if err != nil {
		return sessions.Session{}, false, err
	}
	var sess sessions.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return sessions.Session{}, false, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return sess, true, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) List(ctx context.Context) ([]sessions.Session, error) {
	var out []sessions.Session
	err := s.scan(ctx, func(sess sessions.Session) error {
		out = append(out, sess)
		return nil
	})
	return out, err
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n := 0
	err := s.scan(ctx, func(sessions.Session) error {
		n++
		return nil
	})
	return n, err
}

func (s *Store) Clear(ctx context.Context) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, iter.Err()
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	var stale []string
	err := s.scan(ctx, func(sess sessions.Session) error {
		if sess.LoginTime.Before(cutoff) {
			stale = append(stale, s.key(sess.ID))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, key := range stale {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// scan walks every session under the key prefix.
func (s *Store) scan(ctx context.Context, fn func(sessions.Session) error) error {
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return err
		}
		var sess sessions.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			// Skip foreign values under our prefix rather than failing the walk.
			continue
		}
		if err := fn(sess); err != nil {
			return err
		}
	}
	return iter.Err()
}
