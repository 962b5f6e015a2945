package security

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/scout-hq/scout-api/internal/models"
	appErrors "github.com/scout-hq/scout-api/pkg/errors"
)

const (
	sessionKeyPrefix      = "session:"
	userSessionsKeyPrefix = "user_sessions:"
)

// SessionStore keeps server-side session records in Redis: one JSON record
// per session plus a set-valued reverse index per user, which is what makes
// "revoke everything for this user" a bounded operation.
type SessionStore struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{client: client, logger: logger, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (s *SessionStore) WithClock(now func() time.Time) *SessionStore {
	s.now = now
	return s
}

// Create persists a new session and indexes it under the owning user.
func (s *SessionStore) Create(ctx context.Context, userID, ip, userAgent string, ttl time.Duration) (*models.Session, error) {
	now := s.now().UTC()
	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+session.ID, payload, ttl)
	pipe.SAdd(ctx, userSessionsKeyPrefix+userID, session.ID)
	pipe.Expire(ctx, userSessionsKeyPrefix+userID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("failed to store session", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "failed to store session")
	}
	return session, nil
}

// Get loads one session record.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, appErrors.ErrServiceUnavailable.Message)
	}
	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete removes one session and its reverse-index member.
func (s *SessionStore) Delete(ctx context.Context, userID, sessionID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+sessionID)
	pipe.SRem(ctx, userSessionsKeyPrefix+userID, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("failed to delete session", zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "failed to delete session")
	}
	return nil
}

// ListByUser returns the user's live sessions. Members whose record already
// expired are pruned from the index as a side effect.
func (s *SessionStore) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	ids, err := s.client.SMembers(ctx, userSessionsKeyPrefix+userID).Result()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, appErrors.ErrServiceUnavailable.Message)
	}

	sessions := make([]models.Session, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		session, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, appErrors.ErrNotFound) {
				stale = append(stale, id)
				continue
			}
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	if len(stale) > 0 {
		if err := s.client.SRem(ctx, userSessionsKeyPrefix+userID, stale...).Err(); err != nil {
			s.logger.Warn("failed to prune stale session index", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return sessions, nil
}

// RevokeAll destroys every session and refresh-token entry for the user and
// reports how many of each were removed.
func (s *SessionStore) RevokeAll(ctx context.Context, userID string) (models.RevokeAllResult, error) {
	var result models.RevokeAllResult

	ids, err := s.client.SMembers(ctx, userSessionsKeyPrefix+userID).Result()
	if err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, appErrors.ErrServiceUnavailable.Message)
	}

	if len(ids) > 0 {
		keys := make([]string, 0, len(ids)+1)
		for _, id := range ids {
			keys = append(keys, sessionKeyPrefix+id)
		}
		keys = append(keys, userSessionsKeyPrefix+userID)
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return result, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "failed to delete sessions")
		}
		result.RevokedSessions = len(ids)
	}

	// Refresh entries live in their own namespace keyed by user, so a SCAN
	// bounded to that prefix finds them without touching other users.
	iter := s.client.Scan(ctx, 0, refreshKeyPrefix+userID+":*", 100).Iterator()
	var refreshKeys []string
	for iter.Next(ctx) {
		refreshKeys = append(refreshKeys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "failed to scan refresh tokens")
	}
	if len(refreshKeys) > 0 {
		if err := s.client.Del(ctx, refreshKeys...).Err(); err != nil {
			return result, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "failed to delete refresh tokens")
		}
		result.RevokedRefreshTokens = len(refreshKeys)
	}

	return result, nil
}
