package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-quote/internal/catalog"
	"github.com/noah-isme/backend-quote/internal/pricing"
)

// ErrSessionNotReady is returned when a session has no result yet.
var ErrSessionNotReady = errors.New("reconcile: session not ready")

// ParseRequest submits customer rows together with pricing parameters.
type ParseRequest struct {
	Rows []InputRow `json:"rows" validate:"required,min=1,dive"`
	Parameters
}

// RecalculateRequest re-prices an existing match set without a stored session.
type RecalculateRequest struct {
	Matches MatchSet `json:"matches"`
	Parameters
}

// Locker runs fn while holding a cross-process lease on key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

const defaultLockTTL = 10 * time.Minute

// Service coordinates matching, recalculation and session storage.
type Service struct {
	matcher  *Matcher
	composer *Composer
	store    *SessionStore
	enqueuer Enqueuer
	locker   Locker
	lockTTL  time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// ServiceConfig groups Service dependencies. Store and Enqueuer are optional;
// without them results are not persisted and async submission is disabled.
// Locker keeps two workers from processing the same session at once.
type ServiceConfig struct {
	Matcher  *Matcher
	Composer *Composer
	Store    *SessionStore
	Enqueuer Enqueuer
	Locker   Locker
	LockTTL  time.Duration
	Logger   zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Matcher == nil || cfg.Composer == nil {
		return nil, errors.New("reconcile: matcher and composer are required")
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &Service{
		matcher:  cfg.Matcher,
		composer: cfg.Composer,
		store:    cfg.Store,
		enqueuer: cfg.Enqueuer,
		locker:   cfg.Locker,
		lockTTL:  lockTTL,
		logger:   cfg.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Reconcile matches and prices req synchronously. When a store is configured
// the outcome is kept as a session whose id is returned on the result.
func (s *Service) Reconcile(ctx context.Context, req ParseRequest) (Result, error) {
	if err := s.check(req.Parameters); err != nil {
		return Result{}, err
	}
	set, err := s.matcher.Match(ctx, req.Rows)
	if err != nil {
		return Result{}, err
	}
	res, err := s.composer.Recalculate(ctx, set, req.Parameters)
	if err != nil {
		return Result{}, err
	}
	if s.store == nil {
		return res, nil
	}
	now := s.now()
	sess := Session{
		ID:         uuid.NewString(),
		Status:     SessionReady,
		CreatedAt:  now,
		UpdatedAt:  now,
		Parameters: req.Parameters,
		Matches:    &set,
		Result:     &res,
	}
	res.ID = sess.ID
	if err := s.store.Save(ctx, sess); err != nil {
		return Result{}, fmt.Errorf("save session: %w", err)
	}
	return res, nil
}

// Submit stores req as a processing session and queues background matching.
func (s *Service) Submit(ctx context.Context, req ParseRequest) (Session, error) {
	if s.store == nil || s.enqueuer == nil {
		return Session{}, errors.New("reconcile: async submission not configured")
	}
	if err := s.check(req.Parameters); err != nil {
		return Session{}, err
	}
	if s.matcher.maxRows > 0 && len(req.Rows) > s.matcher.maxRows {
		return Session{}, fmt.Errorf("%w: %d rows, limit %d", ErrTooManyRows, len(req.Rows), s.matcher.maxRows)
	}
	now := s.now()
	sess := Session{
		ID:         uuid.NewString(),
		Status:     SessionProcessing,
		CreatedAt:  now,
		UpdatedAt:  now,
		Parameters: req.Parameters,
		Input:      req.Rows,
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}
	if err := s.enqueuer.EnqueueMatch(ctx, sess.ID); err != nil {
		sess.Status = SessionFailed
		sess.Error = "could not queue matching"
		_ = s.store.Save(ctx, sess)
		return Session{}, err
	}
	sess.Input = nil
	return sess, nil
}

// Process runs matching for a queued session. An unavailable catalog or an
// interrupted batch returns an error so the job is retried; other failures
// mark the session failed.
func (s *Service) Process(ctx context.Context, id string) error {
	if s.store == nil {
		return errors.New("reconcile: session store not configured")
	}
	if s.locker == nil {
		return s.process(ctx, id)
	}
	return s.locker.WithLock(ctx, "reconcile:"+id, s.lockTTL, func(ctx context.Context) error {
		return s.process(ctx, id)
	})
}

func (s *Service) process(ctx context.Context, id string) error {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			s.logger.Warn().Str("session_id", id).Msg("reconcile session expired before processing")
			return nil
		}
		return err
	}
	if sess.Status != SessionProcessing {
		return nil
	}

	set, err := s.matcher.Match(ctx, sess.Input)
	if err == nil && set.Incomplete {
		err = fmt.Errorf("match interrupted: %w", context.Cause(ctx))
	}
	if err != nil {
		if errors.Is(err, catalog.ErrUnavailable) || ctx.Err() != nil {
			return err
		}
		return s.fail(ctx, sess, err)
	}
	res, err := s.composer.Recalculate(ctx, set, sess.Parameters)
	if err != nil {
		if errors.Is(err, pricing.ErrScheduleUnavailable) {
			return err
		}
		return s.fail(ctx, sess, err)
	}
	res.ID = sess.ID
	sess.Status = SessionReady
	sess.UpdatedAt = s.now()
	sess.Input = nil
	sess.Matches = &set
	sess.Result = &res
	return s.store.Save(ctx, sess)
}

// Session returns a stored session.
func (s *Service) Session(ctx context.Context, id string) (Session, error) {
	if s.store == nil {
		return Session{}, ErrSessionNotFound
	}
	if _, err := uuid.Parse(id); err != nil {
		return Session{}, ErrSessionNotFound
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	sess.Input = nil
	return sess, nil
}

// RecalculateSession re-prices a stored session under p and keeps the new
// parameters and result on the session.
func (s *Service) RecalculateSession(ctx context.Context, id string, p Parameters) (Result, error) {
	sess, err := s.Session(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if sess.Status != SessionReady || sess.Matches == nil {
		return Result{}, ErrSessionNotReady
	}
	res, err := s.composer.Recalculate(ctx, *sess.Matches, p)
	if err != nil {
		return Result{}, err
	}
	res.ID = sess.ID
	sess.Parameters = p
	sess.Result = &res
	sess.UpdatedAt = s.now()
	if err := s.store.Save(ctx, sess); err != nil {
		return Result{}, fmt.Errorf("save session: %w", err)
	}
	return res, nil
}

// Recalculate re-prices a caller-held match set. The set is checked before
// pricing so malformed rows fail the request rather than the server.
func (s *Service) Recalculate(ctx context.Context, req RecalculateRequest) (Result, error) {
	if n := len(req.Matches.Rows); s.matcher.maxRows > 0 && n > s.matcher.maxRows {
		return Result{}, fmt.Errorf("%w: %d rows, limit %d", ErrTooManyRows, n, s.matcher.maxRows)
	}
	if err := req.Matches.Validate(); err != nil {
		return Result{}, err
	}
	return s.composer.Recalculate(ctx, req.Matches, req.Parameters)
}

// Result returns the latest result of a ready session.
func (s *Service) Result(ctx context.Context, id string) (Result, error) {
	sess, err := s.Session(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if sess.Status != SessionReady || sess.Result == nil {
		return Result{}, ErrSessionNotReady
	}
	return *sess.Result, nil
}

func (s *Service) check(p Parameters) error {
	if _, _, err := s.composer.defaults.Resolve(p.overrides()); err != nil {
		return err
	}
	if _, err := ParseCurrency(p.CustomerCurrency, s.composer.targetCurrency); err != nil {
		return fmt.Errorf("%w: %v", pricing.ErrInvalidParams, err)
	}
	return nil
}

func (s *Service) fail(ctx context.Context, sess Session, cause error) error {
	s.logger.Error().Err(cause).Str("session_id", sess.ID).Msg("reconcile session failed")
	sess.Status = SessionFailed
	sess.Error = cause.Error()
	sess.UpdatedAt = s.now()
	sess.Input = nil
	return s.store.Save(ctx, sess)
}
