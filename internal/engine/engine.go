package engine

import (
	"context"
	"log/slog"

	"github.com/sejongpeer/studybuddy/internal/buddy"
	"github.com/sejongpeer/studybuddy/internal/clock"
	"github.com/sejongpeer/studybuddy/internal/notify"
)

// Store is the persistence the engine needs. Implemented by *store.Store.
type Store interface {
	ListRequestsByStatus(ctx context.Context, status buddy.RequestStatus) ([]buddy.Request, error)
	ListRequestsByOwner(ctx context.Context, owner string) ([]buddy.Request, error)
	GetRequest(ctx context.Context, id string) (buddy.Request, error)
	FindInProgressMatches(ctx context.Context, requestID string) ([]buddy.Match, error)
	InsertRequest(ctx context.Context, r buddy.Request) error
	Apply(ctx context.Context, u buddy.Unit) error
}

// Engine runs the study-buddy procedures against a Store.
//
// Thread-safety: methods are safe for concurrent use. Ticks of the same
// procedure are serialized by the Locker; member operations rely on the
// store's guarded writes.
type Engine struct {
	store     Store
	clock     clock.Clock
	gateway   notify.Gateway
	locker    Locker
	requestID IDGenerator
	matchID   IDGenerator
	logger    *slog.Logger
}

// EngineOption allows configuration of engine collaborators.
type EngineOption func(*Engine)

// WithClock sets the time source. Default: clock.Real.
func WithClock(c clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithGateway sets the notification gateway. Default: notify.LogGateway.
func WithGateway(g notify.Gateway) EngineOption {
	return func(e *Engine) {
		e.gateway = g
	}
}

// WithLocker sets the per-procedure lock. Default: an in-process MutexLocker.
// Use a store.LeaseLocker when several processes share one database.
func WithLocker(l Locker) EngineOption {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithIDGenerators sets the request and match ID generators.
// Default: UUIDv7Generator for both.
func WithIDGenerators(requests, matches IDGenerator) EngineOption {
	return func(e *Engine) {
		e.requestID = requests
		e.matchID = matches
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine over s.
func New(s Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     s,
		clock:     clock.Real{},
		locker:    NewMutexLocker(),
		requestID: UUIDv7Generator{},
		matchID:   UUIDv7Generator{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.gateway == nil {
		e.gateway = notify.LogGateway{Logger: e.logger}
	}
	return e
}

// lock acquires the named procedure lock or reports ErrTickInProgress.
func (e *Engine) lock(ctx context.Context, name string) (func(), error) {
	release, ok, err := e.locker.Acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTickInProgress
	}
	return release, nil
}

// notify sends one message and logs a failure. Delivery never affects
// committed state.
func (e *Engine) notify(ctx context.Context, r buddy.Request, template notify.TemplateID) {
	to := notify.Recipient{MemberID: r.Owner, Phone: r.Contact}
	if err := e.gateway.Send(ctx, to, template); err != nil {
		e.logger.Warn("notification failed",
			"request_id", r.ID,
			"member_id", r.Owner,
			"template", string(template),
			"error", err)
	}
}
