package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"poker-quiz-bot/internal/app"
	"poker-quiz-bot/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const sessionPrefix = "quiz:session:"

// SessionStore is a Redis-backed implementation of app.SessionRepository.
// Sessions are served from a local map; every state change is mirrored to
// "quiz:session:<key>" as JSON with the TTL refreshed, so a record outlives
// the process by at most one TTL. The full-process snapshot remains the
// restore path.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger

	mu       sync.RWMutex
	sessions map[int64]*app.Session

	// last mirrored version per live session key
	writeMu sync.Mutex
	written map[int64]uint64
}

func NewSessionStore(client *redis.Client, ttl time.Duration, log zerolog.Logger) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		log:      log.With().Str("component", "redis_sessions").Logger(),
		sessions: make(map[int64]*app.Session),
		written:  make(map[int64]uint64),
	}
}

func (s *SessionStore) GetOrCreate(key int64) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[key]; ok {
		return session
	}
	session := app.NewSession(key)
	s.writeMu.Lock()
	s.written[key] = 0
	s.writeMu.Unlock()
	session.SetObserver(func(version uint64, snap domain.SessionSnapshot) {
		s.mirror(key, version, snap)
	})
	s.mirror(key, 0, session.Snapshot())
	s.sessions[key] = session
	return session
}

func (s *SessionStore) Get(key int64) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key]
	return session, ok
}

func (s *SessionStore) Keys() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]int64, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (s *SessionStore) DeleteIfIdle(key int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[key]
	if !ok || !session.IsIdle() {
		return
	}
	delete(s.sessions, key)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	delete(s.written, key)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		s.log.Warn().Err(err).Int64("session", key).Msg("failed to delete session record")
	}
}

// Stored reads the mirrored record for key. It reports false when no record
// exists, e.g. after the TTL lapsed.
func (s *SessionStore) Stored(ctx context.Context, key int64) (domain.SessionSnapshot, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SessionSnapshot{}, false, nil
	}
	if err != nil {
		return domain.SessionSnapshot{}, false, err
	}
	var snap domain.SessionSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.SessionSnapshot{}, false, fmt.Errorf("%w: session %d: %v", domain.ErrCorruptSnapshot, key, err)
	}
	return snap, true, nil
}

// StoredKeys lists the session keys that currently have a record, including
// those written by other processes sharing the Redis database.
func (s *SessionStore) StoredKeys(ctx context.Context) ([]int64, error) {
	var keys []int64
	iter := s.client.Scan(ctx, 0, sessionPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		k, err := strconv.ParseInt(strings.TrimPrefix(iter.Val(), sessionPrefix), 10, 64)
		if err != nil {
			continue
		}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// mirror writes snap unless a newer version of the same session already
// landed or the session was removed.
func (s *SessionStore) mirror(key int64, version uint64, snap domain.SessionSnapshot) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	last, live := s.written[key]
	if !live || (version != 0 && version <= last) {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		s.log.Error().Err(err).Int64("session", key).Msg("failed to encode session record")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, s.key(key), raw, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Int64("session", key).Msg("failed to mirror session record")
		return
	}
	s.written[key] = version
}

func (s *SessionStore) key(key int64) string {
	return sessionPrefix + strconv.FormatInt(key, 10)
}
