// Package auth keeps track of who is signed in.
//
// A Machine holds the authentication state and notifies subscribers of every
// change. A Service drives the machine from sign-in, sign-up, restore and
// refresh requests against the auth server, persists the session, and loads
// the user's profile once a session exists.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	jujuerrors "github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/nhle/lepinet/internal/model"
	"github.com/nhle/lepinet/internal/remote"
	"github.com/nhle/lepinet/internal/retry"
)

// ErrNotSignedIn is returned by operations that need a session.
var ErrNotSignedIn = errors.New("not signed in")

// refreshMargin is how long before expiry AccessToken refreshes the session.
const refreshMargin = 30 * time.Second

// Profiles reads and creates rows of the users collection. Get returns an
// error satisfying errors.Is(err, juju/errors.NotFound) when no row exists.
type Profiles interface {
	Get(ctx context.Context, userID string) (model.Profile, error)
	Create(ctx context.Context, p model.Profile) error
}

// Service signs users in and out.
type Service struct {
	gotrue   *GoTrue
	sessions SessionStore
	profiles Profiles
	machine  *Machine
	clock    clock.Clock
	retry    retry.Policy
	logger   *zap.Logger

	// refreshMu serializes refreshes so a refresh token is used once.
	refreshMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for expiry checks.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithProfileRetry sets the policy for waiting on a profile row that is
// created some time after sign-up.
func WithProfileRetry(p retry.Policy) Option {
	return func(s *Service) { s.retry = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService returns a Service in the Unauthenticated state. profiles may be
// set later with SetProfiles when it depends on the service's tokens.
func NewService(gotrue *GoTrue, sessions SessionStore, profiles Profiles, opts ...Option) *Service {
	s := &Service{
		gotrue:   gotrue,
		sessions: sessions,
		profiles: profiles,
		machine:  NewMachine(),
		clock:    clock.WallClock,
		retry: retry.Policy{
			Attempts: 5,
			Delay:    time.Second,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetProfiles sets the profile collection.
func (s *Service) SetProfiles(p Profiles) {
	s.profiles = p
}

// Machine returns the state machine driven by s.
func (s *Service) Machine() *Machine {
	return s.machine
}

// Subscribe registers fn for state changes.
func (s *Service) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return s.machine.Subscribe(fn)
}

// Current returns the current state.
func (s *Service) Current() Snapshot {
	return s.machine.Current()
}

// Session returns the current session or nil.
func (s *Service) Session() *Session {
	return s.machine.Current().Session
}

// Owner returns the id of the signed-in user, or "" when nobody is.
func (s *Service) Owner() string {
	if sess := s.Session(); sess != nil {
		return sess.User.ID
	}
	return ""
}

// AccessToken returns the access token of the current session, refreshing
// it first if it is about to expire. It returns "" when nobody is signed in.
func (s *Service) AccessToken(ctx context.Context) (string, error) {
	sess := s.Session()
	if sess == nil {
		return "", nil
	}
	if sess.ExpiresWithin(s.clock.Now(), refreshMargin) {
		err := s.refresh(ctx, func(cur *Session) bool {
			return cur.ExpiresWithin(s.clock.Now(), refreshMargin)
		})
		if err != nil {
			return "", err
		}
		sess = s.Session()
		if sess == nil {
			return "", ErrNotSignedIn
		}
	}
	return sess.AccessToken, nil
}

// SignIn authenticates with email and password and loads the profile.
func (s *Service) SignIn(ctx context.Context, email, password string) (Snapshot, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return s.Current(), jujuerrors.NotValidf("empty email or password")
	}

	if _, err := s.machine.Dispatch(Event{Kind: SignInStarted}); err != nil {
		return s.Current(), err
	}

	sess, err := s.gotrue.Password(ctx, email, password)
	if err != nil {
		s.fail(err)
		return s.Current(), fmt.Errorf("signing in: %w", err)
	}
	if err := s.establish(ctx, sess); err != nil {
		return s.Current(), err
	}
	return s.Current(), nil
}

// SignUp registers an account. When the server returns a session right away
// the profile row is created and the user is signed in. Otherwise the
// account awaits email confirmation and the state is unchanged.
func (s *Service) SignUp(
	ctx context.Context,
	email, password, firstName, lastName string,
) (SignUpResult, error) {
	email = strings.TrimSpace(email)
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if email == "" || password == "" {
		return SignUpResult{}, jujuerrors.NotValidf("empty email or password")
	}

	if _, err := s.machine.Dispatch(Event{Kind: SignInStarted}); err != nil {
		return SignUpResult{}, err
	}

	res, err := s.gotrue.SignUp(ctx, email, password, map[string]string{
		"first_name": firstName,
		"last_name":  lastName,
	})
	if err != nil {
		s.fail(err)
		return SignUpResult{}, fmt.Errorf("signing up: %w", err)
	}
	if res.Session == nil {
		s.fail(nil)
		s.logger.Info("sign-up awaiting confirmation", zap.String("user_id", res.User.ID))
		return res, nil
	}

	if err := s.sessions.Save(*res.Session); err != nil {
		s.fail(err)
		return res, fmt.Errorf("saving session: %w", err)
	}
	if _, err := s.machine.Dispatch(Event{Kind: SignInSucceeded, Session: res.Session}); err != nil {
		return res, err
	}

	if s.profiles == nil {
		_, _ = s.machine.Dispatch(Event{Kind: ProfileMissing})
		return res, nil
	}
	p := model.Profile{
		ID:        res.User.ID,
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
	}
	// A profile row created by a database trigger shows up as a conflict.
	if err := s.profiles.Create(ctx, p); err != nil && !remote.IsConflict(err) {
		s.logger.Warn("creating profile failed", zap.String("user_id", p.ID), zap.Error(err))
		_, _ = s.machine.Dispatch(Event{Kind: ProfileMissing})
		return res, fmt.Errorf("creating profile: %w", err)
	}

	s.loadProfile(ctx, res.User.ID)
	return res, nil
}

// ResetPassword asks the server to email a password reset link.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return jujuerrors.NotValidf("empty email")
	}
	if err := s.gotrue.Recover(ctx, email); err != nil {
		return fmt.Errorf("requesting password reset: %w", err)
	}
	return nil
}

// SignOut revokes the session on the server and forgets it locally. A
// server failure is logged; the local session is cleared regardless.
func (s *Service) SignOut(ctx context.Context) error {
	if sess := s.Session(); sess != nil {
		if err := s.gotrue.Logout(ctx, sess.AccessToken); err != nil {
			s.logger.Warn("server logout failed", zap.Error(err))
		}
	}
	if err := s.sessions.Clear(); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	if s.Current().State != Unauthenticated {
		if _, err := s.machine.Dispatch(Event{Kind: SignedOut}); err != nil {
			return err
		}
	}
	return nil
}

// Restore signs in with the persisted session, refreshing it if it has
// expired. Without a usable session the state stays Unauthenticated.
func (s *Service) Restore(ctx context.Context) (Snapshot, error) {
	sess, err := s.sessions.Load()
	if err != nil {
		return s.Current(), fmt.Errorf("loading session: %w", err)
	}
	if sess == nil {
		return s.Current(), nil
	}

	if _, err := s.machine.Dispatch(Event{Kind: SignInStarted}); err != nil {
		return s.Current(), err
	}

	if sess.ExpiresWithin(s.clock.Now(), refreshMargin) {
		fresh, err := s.gotrue.Refresh(ctx, sess.RefreshToken)
		if err != nil {
			if remote.IsRemoteError(err) && remote.StatusOf(err) != 0 {
				// The server rejected the refresh token.
				_ = s.sessions.Clear()
				s.fail(err)
				s.logger.Info("stored session expired", zap.Error(err))
				return s.Current(), nil
			}
			s.fail(err)
			return s.Current(), fmt.Errorf("refreshing stored session: %w", err)
		}
		sess = &fresh
	}

	if err := s.establish(ctx, *sess); err != nil {
		return s.Current(), err
	}
	return s.Current(), nil
}

// Refresh exchanges the refresh token for a new session. A rejected
// refresh token ends the session.
func (s *Service) Refresh(ctx context.Context) error {
	return s.refresh(ctx, func(*Session) bool { return true })
}

// refresh runs a refresh if needed still holds once no other refresh is in
// flight.
func (s *Service) refresh(ctx context.Context, needed func(*Session) bool) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	before := s.Session()
	if before == nil {
		return ErrNotSignedIn
	}
	if !needed(before) {
		return nil
	}

	fresh, err := s.gotrue.Refresh(ctx, before.RefreshToken)
	if err != nil {
		if remote.StatusOf(err) >= 400 && remote.StatusOf(err) < 500 {
			_ = s.sessions.Clear()
			_, _ = s.machine.Dispatch(Event{Kind: SessionExpired})
			s.logger.Info("session expired", zap.Error(err))
			return fmt.Errorf("%w: %w", ErrNotSignedIn, err)
		}
		return fmt.Errorf("refreshing session: %w", err)
	}

	if err := s.sessions.Save(fresh); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	if _, err := s.machine.Dispatch(Event{Kind: SessionRefreshed, Session: &fresh}); err != nil {
		return err
	}
	s.logger.Debug("session refreshed", zap.Time("expires", fresh.Expiry()))
	return nil
}

// ReloadProfile fetches the profile again, e.g. after it was edited.
func (s *Service) ReloadProfile(ctx context.Context) error {
	sess := s.Session()
	if sess == nil {
		return ErrNotSignedIn
	}
	p, err := s.profiles.Get(ctx, sess.User.ID)
	if err != nil {
		return err
	}
	_, err = s.machine.Dispatch(Event{Kind: ProfileLoaded, Profile: &p})
	return err
}

func (s *Service) establish(ctx context.Context, sess Session) error {
	if err := s.sessions.Save(sess); err != nil {
		s.fail(err)
		return fmt.Errorf("saving session: %w", err)
	}
	if _, err := s.machine.Dispatch(Event{Kind: SignInSucceeded, Session: &sess}); err != nil {
		return err
	}
	s.logger.Info("signed in", zap.String("user_id", sess.User.ID))
	s.loadProfile(ctx, sess.User.ID)
	return nil
}

// loadProfile waits for the user's profile row, which may be created some
// time after the account. Failing to find it leaves the session in place.
func (s *Service) loadProfile(ctx context.Context, userID string) {
	if s.profiles == nil {
		_, _ = s.machine.Dispatch(Event{Kind: ProfileMissing})
		return
	}

	var p model.Profile
	err := retry.Do(ctx, "fetch profile", s.retry.WithLogger(s.logger), func() error {
		var err error
		p, err = s.profiles.Get(ctx, userID)
		if errors.Is(err, jujuerrors.NotFound) {
			return retry.Retryable(err)
		}
		return err
	})
	if err != nil {
		s.logger.Warn("profile not loaded", zap.String("user_id", userID), zap.Error(err))
		_, _ = s.machine.Dispatch(Event{Kind: ProfileMissing})
		return
	}
	_, _ = s.machine.Dispatch(Event{Kind: ProfileLoaded, Profile: &p})
}

func (s *Service) fail(err error) {
	_, _ = s.machine.Dispatch(Event{Kind: SignInFailed, Err: err})
}
