// Package authstate tracks who the current user is for one session source.
//
// A Tracker mirrors the session source, resolves the user's profile and
// notifies subscribers on every change. It never blocks on its own timers;
// provider calls are bounded only by the caller's context.
package authstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/solodesign/apiserver/types"
	"go.uber.org/zap"
)

// SessionSource is the session store the Tracker mirrors.
type SessionSource interface {
	GetSession(ctx context.Context) (*types.Session, error)
	OnChange(fn func(types.SessionEvent)) (unsubscribe func())
	SignOut(ctx context.Context) error
}

// ProfileLookup fetches the stored profile for a user.
type ProfileLookup interface {
	GetProfile(ctx context.Context, userID string) (types.Profile, error)
}

// State is the Tracker's lifecycle position.
type State int

const (
	Unresolved State = iota
	Resolving
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is what subscribers see after each transition.
type Snapshot struct {
	State State
	User  *types.AuthUser
}

// Loading reports whether the snapshot is still waiting on a resolution.
func (s Snapshot) Loading() bool {
	return s.State == Unresolved || s.State == Resolving
}

// SignOutError is a recoverable sign-out failure. Local state is already
// cleared when it is returned.
type SignOutError struct {
	Err error
}

func (e *SignOutError) Error() string {
	return "sign out: " + e.Err.Error()
}

func (e *SignOutError) Unwrap() error {
	return e.Err
}

// Tracker is safe for concurrent use.
type Tracker struct {
	source   SessionSource
	profiles ProfileLookup
	logger   *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	state       State
	user        *types.AuthUser
	subscribers map[int]func(Snapshot)
	nextID      int
	stop        func()
}

func NewTracker(source SessionSource, profiles ProfileLookup, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		source:      source,
		profiles:    profiles,
		logger:      logger,
		now:         time.Now,
		subscribers: make(map[int]func(Snapshot)),
	}
}

// Start resolves the current session and begins following source changes.
// Calling Start again re-resolves without subscribing twice.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.stop == nil {
		t.stop = t.source.OnChange(func(event types.SessionEvent) {
			t.handleEvent(ctx, event)
		})
	}
	t.mu.Unlock()

	return t.resolve(ctx)
}

// CurrentUser returns nil when signed out or not yet resolved.
func (t *Tracker) CurrentUser() *types.AuthUser {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.user
}

func (t *Tracker) Loading() bool {
	return t.Snapshot().Loading()
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{State: t.state, User: t.user}
}

// RefreshProfile re-reads the session and the profile and replaces the user.
func (t *Tracker) RefreshProfile(ctx context.Context) error {
	return t.resolve(ctx)
}

// SignOut ends the session at the provider and always clears local state.
// A provider failure is reported as *SignOutError. Signing out while already
// signed out does nothing.
func (t *Tracker) SignOut(ctx context.Context) error {
	t.mu.Lock()
	signedOut := t.state == Anonymous && t.user == nil
	t.mu.Unlock()
	if signedOut {
		return nil
	}

	err := t.source.SignOut(ctx)
	t.set(Anonymous, nil)
	if err != nil {
		t.logger.Warn("provider sign-out failed; local session cleared", zap.Error(err))
		return &SignOutError{Err: err}
	}
	return nil
}

// Subscribe registers fn for every subsequent snapshot.
func (t *Tracker) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subscribers[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subscribers, id)
			t.mu.Unlock()
		})
	}
}

// Close stops following the source and drops all subscribers.
func (t *Tracker) Close() {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	t.subscribers = make(map[int]func(Snapshot))
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (t *Tracker) resolve(ctx context.Context) error {
	t.set(Resolving, t.CurrentUser())

	session, err := t.source.GetSession(ctx)
	if err != nil {
		t.set(Anonymous, nil)
		return fmt.Errorf("get session: %w", err)
	}
	t.apply(ctx, session)
	return nil
}

func (t *Tracker) handleEvent(ctx context.Context, event types.SessionEvent) {
	t.set(Resolving, t.CurrentUser())
	if event.Kind == types.SessionSignedOut {
		t.set(Anonymous, nil)
		return
	}
	t.apply(ctx, event.Session)
}

func (t *Tracker) apply(ctx context.Context, session *types.Session) {
	if session == nil || session.Expired(t.now()) {
		t.set(Anonymous, nil)
		return
	}
	profile := t.profileFor(ctx, session)
	t.set(Authenticated, &types.AuthUser{
		ID:      session.Subject,
		Email:   session.Email,
		Profile: &profile,
	})
}

// profileFor never fails: a missing or unreadable profile becomes the
// default client profile.
func (t *Tracker) profileFor(ctx context.Context, session *types.Session) types.Profile {
	if t.profiles != nil {
		profile, err := t.profiles.GetProfile(ctx, session.Subject)
		if err == nil {
			return profile
		}
		t.logger.Warn("profile lookup failed; using default profile",
			zap.String("user_id", session.Subject),
			zap.Error(err),
		)
	}
	return types.DefaultProfile(session.Subject, session.Email, t.now())
}

func (t *Tracker) set(state State, user *types.AuthUser) {
	t.mu.Lock()
	t.state = state
	t.user = user
	snapshot := Snapshot{State: state, User: user}
	subscribers := make([]func(Snapshot), 0, len(t.subscribers))
	for _, fn := range t.subscribers {
		subscribers = append(subscribers, fn)
	}
	t.mu.Unlock()

	for _, fn := range subscribers {
		fn(snapshot)
	}
}
