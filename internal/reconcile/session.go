package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("reconcile: session not found")

// SessionStatus tracks the lifecycle of a reconciliation session.
type SessionStatus string

const (
	SessionProcessing SessionStatus = "processing"
	SessionReady      SessionStatus = "ready"
	SessionFailed     SessionStatus = "failed"
)

// Session is a stored reconciliation: the submitted rows, the match set and
// the latest computed result.
type Session struct {
	ID         string        `json:"id"`
	Status     SessionStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
	Parameters Parameters    `json:"parameters"`
	Input      []InputRow    `json:"input,omitempty"`
	Matches    *MatchSet     `json:"matches,omitempty"`
	Result     *Result       `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// SessionStore persists sessions in Redis as JSON with a sliding TTL.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{client: client, ttl: ttl, prefix: "quote:reconcile:session:"}
}

// Save writes s and refreshes its TTL.
func (s *SessionStore) Save(ctx context.Context, sess Session) error {
	if s == nil || s.client == nil {
		return errors.New("reconcile: session store not configured")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.client.Set(ctx, s.prefix+sess.ID, data, s.ttl).Err()
}

// Get loads a session by id.
func (s *SessionStore) Get(ctx context.Context, id string) (Session, error) {
	if s == nil || s.client == nil {
		return Session{}, errors.New("reconcile: session store not configured")
	}
	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

// Delete removes a session.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Del(ctx, s.prefix+id).Err()
}
