// Package client drives the consent gate for one browser/device session: it
// evaluates the decision engine on page lifecycle triggers, submits
// confirmations and migrates anonymous consent once the visitor logs in.
package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"user_consent_gate/internal/consent"
	"user_consent_gate/internal/marker"
)

// ConfirmationFailedMessage is shown in the prompt after a failed submission.
const ConfirmationFailedMessage = "Your confirmation could not be saved. Please try again."

// ConfirmAPI is the server write API.
type ConfirmAPI interface {
	Confirm(ctx context.Context) (string, error)
}

// Presenter shows and hides the blocking prompt. Calls are made while the
// session is locked; implementations must not call back into the Session.
type Presenter interface {
	Show()
	Close()
}

// Location identifies the page being displayed.
type Location struct {
	Path      string
	RouteName string
}

type StateKind int

const (
	StateIdle StateKind = iota
	StatePrompting
	StateSubmitting
	StateError
)

func (k StateKind) String() string {
	switch k {
	case StatePrompting:
		return "prompting"
	case StateSubmitting:
		return "submitting"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// State is what the prompt currently shows. Message is set only for StateError.
type State struct {
	Kind    StateKind
	Message string
}

type Session struct {
	api       ConfirmAPI
	markers   marker.Store
	presenter Presenter
	policy    consent.Policy
	now       func() time.Time
	logger    *zap.Logger

	// inFlight serializes Confirm and Migrate. Losers are rejected, not queued.
	inFlight atomic.Bool

	mu         sync.Mutex
	user       *consent.Identity
	state      State
	promptOpen bool
}

func NewSession(api ConfirmAPI, markers marker.Store, presenter Presenter, policy consent.Policy, logger *zap.Logger) *Session {
	return &Session{
		api:       api,
		markers:   markers,
		presenter: presenter,
		policy:    policy,
		now:       time.Now,
		logger:    logger,
	}
}

// SetUser records an identity change. A nil user means anonymous. Callers
// follow it with MaybePrompt, as the host does on current-user:changed.
func (s *Session) SetUser(user *consent.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user == nil {
		s.user = nil
		return
	}
	u := *user
	s.user = &u
}

func (s *Session) User() *consent.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) PromptOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promptOpen
}

// InFlight reports whether a confirmation or migration is outstanding.
func (s *Session) InFlight() bool {
	return s.inFlight.Load()
}

// MaybePrompt is invoked on initial load, on every navigation and after every
// identity change. It returns the directive it applied.
func (s *Session) MaybePrompt(ctx context.Context, loc Location) consent.Action {
	adminSurface := consent.IsAdminSurface(loc.Path, loc.RouteName)

	if s.policy.Enabled && !adminSurface && s.User() != nil && s.markerPresent(ctx) {
		s.Migrate(ctx)
	}

	action := s.Evaluate(ctx, loc)
	s.apply(action)
	return action
}

// Evaluate reads both consent sources and runs the decision engine without
// touching the prompt.
func (s *Session) Evaluate(ctx context.Context, loc Location) consent.Action {
	c := consent.Context{
		FeatureEnabled: s.policy.Enabled,
		AdminSurface:   consent.IsAdminSurface(loc.Path, loc.RouteName),
		Now:            s.now(),
		ReaffirmDays:   s.policy.ReaffirmDays,
	}

	if !c.FeatureEnabled || c.AdminSurface {
		return consent.Decide(c)
	}

	if user := s.User(); user != nil {
		c.Identity = *user
	} else {
		c.LocalMarkerPresent = s.markerPresent(ctx)
	}

	return consent.Decide(c)
}

func (s *Session) apply(action consent.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch action {
	case consent.ShowPrompt:
		if s.promptOpen {
			return
		}
		s.promptOpen = true
		s.state = State{Kind: StatePrompting}
		s.presenter.Show()
	case consent.ClosePrompt:
		s.closeLocked()
	}
}

func (s *Session) closeLocked() {
	if !s.promptOpen {
		return
	}
	s.promptOpen = false
	s.state = State{Kind: StateIdle}
	s.presenter.Close()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Confirm is the prompt's accept callback. Authenticated users are confirmed
// through the server; anonymous visitors get the device marker. A caller that
// finds another submission outstanding gets consent.ErrInProgress and nothing
// is written.
func (s *Session) Confirm(ctx context.Context) (string, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return "", consent.ErrInProgress
	}
	defer s.inFlight.Store(false)

	s.setState(State{Kind: StateSubmitting})

	var confirmedAt string
	if s.User() != nil {
		var err error
		confirmedAt, err = s.submit(ctx)
		if err != nil {
			s.logger.Error("user consent confirmation failed", zap.Error(err))
			s.setState(State{Kind: StateError, Message: ConfirmationFailedMessage})
			return "", err
		}
	} else {
		if err := s.markers.Set(ctx); err != nil {
			s.logger.Warn("local storage unavailable, consent kept for this page only", zap.Error(err))
		}
		confirmedAt = consent.FormatTimestamp(s.now())
	}

	s.mu.Lock()
	s.closeLocked()
	s.state = State{Kind: StateIdle}
	s.mu.Unlock()

	return confirmedAt, nil
}

// submit posts the confirmation and records the returned timestamp on the
// current user. Must be called with inFlight held.
func (s *Session) submit(ctx context.Context) (string, error) {
	confirmedAt, err := s.api.Confirm(ctx)
	if err != nil {
		return "", err
	}

	if confirmedAt == "" {
		confirmedAt = consent.FormatTimestamp(s.now())
	}

	s.mu.Lock()
	if s.user != nil {
		s.user.ConfirmedAt = confirmedAt
	}
	s.mu.Unlock()

	return confirmedAt, nil
}

// Decline is the prompt's decline callback. It returns the navigation target
// and leaves all consent state untouched.
func (s *Session) Decline() string {
	return consent.RedirectTarget(s.policy.RedirectURL)
}

func (s *Session) markerPresent(ctx context.Context) bool {
	present, err := s.markers.Present(ctx)
	if err != nil {
		if !errors.Is(err, consent.ErrLocalStorageUnavailable) {
			s.logger.Warn("unexpected local storage error", zap.Error(err))
		}
		return false
	}
	return present
}

func (s *Session) clearMarker(ctx context.Context) {
	if err := s.markers.Clear(ctx); err != nil {
		s.logger.Debug("failed to clear local consent marker", zap.Error(err))
	}
}
