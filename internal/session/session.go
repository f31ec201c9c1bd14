// Package session holds the per-connection state machine: it authenticates a
// connection once, then runs trip and item commands against the user's slice
// of the store and emits the resulting events.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/dukerupert/tripcart/internal/auth"
	"github.com/dukerupert/tripcart/internal/protocol"
	"github.com/dukerupert/tripcart/internal/store"
)

// Emitter delivers events produced by a session.
type Emitter interface {
	// Send delivers to the originating connection only.
	Send(ev protocol.Event)
	// Broadcast delivers to every connection concerned with tripID or its owner.
	Broadcast(ev protocol.Event, tripID, ownerID string)
	// Watch records the trip the connection is looking at.
	Watch(tripID string)
	// SetUser records the authenticated user on the connection.
	SetUser(userID string)
}

// State is the authentication state of a session.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	default:
		return "unauthenticated"
	}
}

// Default authenticate throttle: a burst of 5, then one attempt every 12s.
const (
	DefaultAuthBurst = 5
	DefaultAuthEvery = 12 * time.Second
)

// Deps are the collaborators shared by every session.
type Deps struct {
	Store    *store.Store
	Verifier auth.Verifier
	Logger   *slog.Logger

	// AuthLimit and AuthBurst throttle authenticate attempts. Zero values
	// fall back to the defaults.
	AuthLimit rate.Limit
	AuthBurst int

	// Now is the clock used for default trip dates.
	Now func() time.Time
}

// Session is the state of one connection.
type Session struct {
	id       string
	out      Emitter
	store    *store.Store
	verifier auth.Verifier
	logger   *slog.Logger
	limiter  *rate.Limiter
	now      func() time.Time

	state    State
	identity auth.Identity
	scope    *store.Scope
	watching string
}

// New creates an unauthenticated session for connection id.
func New(id string, out Emitter, deps Deps) *Session {
	limit := deps.AuthLimit
	if limit == 0 {
		limit = rate.Every(DefaultAuthEvery)
	}
	burst := deps.AuthBurst
	if burst == 0 {
		burst = DefaultAuthBurst
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		id:       id,
		out:      out,
		store:    deps.Store,
		verifier: deps.Verifier,
		logger:   logger.With("component", "session", "session_id", id),
		limiter:  rate.NewLimiter(limit, burst),
		now:      now,
	}
}

// ID returns the connection id the session belongs to.
func (s *Session) ID() string { return s.id }

// State returns the current authentication state.
func (s *Session) State() State { return s.state }

// Identity returns the bound identity. It is zero until authenticated.
func (s *Session) Identity() auth.Identity { return s.identity }

// Handle runs one command to completion.
func (s *Session) Handle(ctx context.Context, cmd protocol.Command) {
	if s.state == Closed {
		return
	}
	if c, ok := cmd.(protocol.Authenticate); ok {
		s.authenticate(ctx, c.Token)
		return
	}
	if s.state != Authenticated {
		s.out.Send(protocol.ErrorEvent("Not authenticated"))
		return
	}

	switch c := cmd.(type) {
	case protocol.GetTrips:
		s.getTrips(ctx)
	case protocol.CreateTrip:
		s.createTrip(ctx, c)
	case protocol.LoadTrip:
		s.loadTrip(ctx, c.TripID)
	case protocol.AddItem:
		s.addItem(ctx, c)
	case protocol.TogglePurchased:
		s.togglePurchased(ctx, c.ItemID)
	case protocol.UpdateQuantity:
		s.updateQuantity(ctx, c)
	case protocol.DeleteItem:
		s.deleteItem(ctx, c.ItemID)
	case protocol.DeleteTrip:
		s.deleteTrip(ctx, c.TripID)
	default:
		s.out.Send(protocol.ErrorEvent("Invalid request"))
	}
}

// Close releases the session. Further commands are ignored.
func (s *Session) Close() {
	if s.state == Closed {
		return
	}
	s.logger.Debug("session closed", "state", s.state)
	s.state = Closed
	s.scope = nil
}

func (s *Session) authenticate(ctx context.Context, token string) {
	if s.state == Authenticated {
		s.out.Send(protocol.NewEvent(protocol.EventAuthError, "Already authenticated"))
		return
	}
	if !s.limiter.Allow() {
		s.logger.Warn("authentication throttled")
		s.out.Send(protocol.NewEvent(protocol.EventAuthError, "Too many authentication attempts"))
		return
	}
	if token == "" {
		s.logger.Info("authentication failed", "error", "empty token")
		s.out.Send(protocol.NewEvent(protocol.EventAuthError, "Authentication failed"))
		return
	}

	id, err := s.verifier.Verify(ctx, token)
	if err != nil {
		s.logger.Info("authentication failed", "token", auth.Fingerprint(token), "error", err)
		s.out.Send(protocol.NewEvent(protocol.EventAuthError, "Authentication failed"))
		return
	}

	s.identity = id
	s.scope = s.store.ForUser(id.UserID)
	s.state = Authenticated
	s.logger = s.logger.With("user_id", id.UserID)
	s.out.SetUser(id.UserID)
	s.logger.Info("authenticated", "token", auth.Fingerprint(token))
	s.out.Send(protocol.NewEvent(protocol.EventAuthenticated, protocol.AuthResult{
		UserID: id.UserID,
		Email:  id.Email,
	}))
}

// fail logs a store failure and tells the client only the generic message.
func (s *Session) fail(ctx context.Context, op string, err error, message string) {
	level := slog.LevelError
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, op+" failed", "error", err)
	s.out.Send(protocol.ErrorEvent(message))
}

func (s *Session) watch(tripID string) {
	s.watching = tripID
	s.out.Watch(tripID)
}
