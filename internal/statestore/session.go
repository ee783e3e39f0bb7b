// Package statestore implements the external-collaborator persistence
// layer: short-lived sessions with a Redis TTL view plus an in-memory
// fast path, and crash-recovery checkpoints written to disk with CRC32
// integrity checking and optional LZ4 compression.
package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/riptide-project/riptide/internal/config"
	"github.com/riptide-project/riptide/internal/types"
)

// SessionStore manages Session lifecycle: creation, lookup, data updates,
// and termination, backed by Redis for TTL and cross-process visibility
// with an in-memory map serving reads that don't need a round trip.
type SessionStore struct {
	cfg   config.StateStoreConfig
	rdb   *redis.Client
	mu    sync.RWMutex
	local map[string]*types.Session
}

func NewSessionStore(cfg config.StateStoreConfig) *SessionStore {
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	}
	return &SessionStore{cfg: cfg, rdb: rdb, local: make(map[string]*types.Session)}
}

// CreateSession allocates a new Session with the configured TTL, writing
// it to Redis (if configured) and the local cache.
func (s *SessionStore) CreateSession(ctx context.Context, userID string) (*types.Session, error) {
	ttl := s.cfg.SessionTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	now := time.Now()
	sess := &types.Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LastAccessed: now,
		Data:         make(map[string]string),
		UserID:       userID,
		Metadata:     make(map[string]string),
		TTL:          ttl,
		Status:       types.SessionActive,
	}

	s.mu.Lock()
	s.local[sess.ID] = sess
	s.mu.Unlock()

	if err := s.persist(ctx, sess); err != nil {
		return sess, fmt.Errorf("statestore: create session: %w", err)
	}
	return sess, nil
}

// GetSession returns the session by id, preferring the local cache and
// falling back to Redis. It returns (nil, false) if the session is absent
// or has expired (which also terminates it).
func (s *SessionStore) GetSession(ctx context.Context, id string) (*types.Session, bool) {
	s.mu.RLock()
	sess, ok := s.local[id]
	s.mu.RUnlock()

	if !ok && s.rdb != nil {
		sess, ok = s.loadFromRedis(ctx, id)
		if ok {
			s.mu.Lock()
			s.local[id] = sess
			s.mu.Unlock()
		}
	}
	if !ok {
		return nil, false
	}
	if sess.Expired(time.Now()) {
		s.TerminateSession(ctx, id)
		return nil, false
	}
	sess.LastAccessed = time.Now()
	return sess, true
}

// UpdateSessionData merges key/value pairs into the session's Data map and
// resets its expiry clock.
func (s *SessionStore) UpdateSessionData(ctx context.Context, id string, data map[string]string) error {
	sess, ok := s.GetSession(ctx, id)
	if !ok {
		return fmt.Errorf("statestore: session %s not found", id)
	}
	s.mu.Lock()
	for k, v := range data {
		sess.Data[k] = v
	}
	sess.LastAccessed = time.Now()
	s.mu.Unlock()
	return s.persist(ctx, sess)
}

// TerminateSession marks the session terminated and removes it from both
// the local cache and Redis.
func (s *SessionStore) TerminateSession(ctx context.Context, id string) error {
	s.mu.Lock()
	if sess, ok := s.local[id]; ok {
		sess.Status = types.SessionTerminated
	}
	delete(s.local, id)
	s.mu.Unlock()

	if s.rdb != nil {
		if err := s.rdb.Del(ctx, redisKey(id)).Err(); err != nil {
			return fmt.Errorf("statestore: terminate session: %w", err)
		}
	}
	return nil
}

func (s *SessionStore) persist(ctx context.Context, sess *types.Session) error {
	if s.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, redisKey(sess.ID), raw, sess.TTL).Err()
}

func (s *SessionStore) loadFromRedis(ctx context.Context, id string) (*types.Session, bool) {
	raw, err := s.rdb.Get(ctx, redisKey(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var sess types.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, false
	}
	return &sess, true
}

// Ping reports Redis reachability; the API server uses it as the /health
// dependency probe.
func (s *SessionStore) Ping(ctx context.Context) error {
	if s.rdb == nil {
		return fmt.Errorf("statestore: redis not configured")
	}
	return s.rdb.Ping(ctx).Err()
}

func redisKey(id string) string { return "riptide:session:" + id }
