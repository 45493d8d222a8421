package auth

import (
	"fmt"
	"sync"

	"github.com/nhle/lepinet/internal/model"
)

// State is the authentication state of the client.
type State int

const (
	Unauthenticated State = iota
	Authenticating
	AuthenticatedNoProfile
	AuthenticatedWithProfile
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case AuthenticatedNoProfile:
		return "authenticated (no profile)"
	case AuthenticatedWithProfile:
		return "authenticated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Authenticated reports whether a session is held.
func (s State) Authenticated() bool {
	return s == AuthenticatedNoProfile || s == AuthenticatedWithProfile
}

// EventKind identifies an input to the state machine.
type EventKind int

const (
	SignInStarted EventKind = iota
	SignInSucceeded
	SignInFailed
	ProfileLoaded
	ProfileMissing
	SessionRefreshed
	SignedOut
	SessionExpired
)

var eventNames = map[EventKind]string{
	SignInStarted:    "sign-in started",
	SignInSucceeded:  "sign-in succeeded",
	SignInFailed:     "sign-in failed",
	ProfileLoaded:    "profile loaded",
	ProfileMissing:   "profile missing",
	SessionRefreshed: "session refreshed",
	SignedOut:        "signed out",
	SessionExpired:   "session expired",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is dispatched to a Machine. Session is set for SignInSucceeded and
// SessionRefreshed, Profile for ProfileLoaded and Err for SignInFailed.
type Event struct {
	Kind    EventKind
	Session *Session
	Profile *model.Profile
	Err     error
}

// Snapshot is the observable state of a Machine.
type Snapshot struct {
	State   State
	Session *Session
	Profile *model.Profile

	// Err is the error of the last failed sign-in.
	Err error
}

// TransitionError is returned for an event the current state does not accept.
type TransitionError struct {
	From  State
	Event EventKind
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("auth: %s not allowed while %s", e.Event, e.From)
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// Machine holds the authentication state. Subscribers are notified
// synchronously, in subscription order, after every accepted event.
type Machine struct {
	mu     sync.Mutex
	snap   Snapshot
	subs   []subscriber
	nextID int
}

// NewMachine returns a machine in the Unauthenticated state.
func NewMachine() *Machine {
	return &Machine{}
}

// Current returns the current snapshot.
func (m *Machine) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Subscribe registers fn and returns a function that removes it.
func (m *Machine) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscriber{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Dispatch applies ev. An event the current state does not accept returns
// a *TransitionError and leaves the state unchanged.
func (m *Machine) Dispatch(ev Event) (Snapshot, error) {
	m.mu.Lock()
	next, err := transition(m.snap, ev)
	if err != nil {
		m.mu.Unlock()
		return next, err
	}
	m.snap = next
	subs := append([]subscriber(nil), m.subs...)
	m.mu.Unlock()

	for _, s := range subs {
		s.fn(next)
	}
	return next, nil
}

func transition(cur Snapshot, ev Event) (Snapshot, error) {
	reject := func() (Snapshot, error) {
		return cur, &TransitionError{From: cur.State, Event: ev.Kind}
	}

	switch ev.Kind {
	case SignInStarted:
		if cur.State != Unauthenticated {
			return reject()
		}
		return Snapshot{State: Authenticating}, nil

	case SignInSucceeded:
		if cur.State != Authenticating || ev.Session == nil {
			return reject()
		}
		return Snapshot{State: AuthenticatedNoProfile, Session: ev.Session}, nil

	case SignInFailed:
		if cur.State != Authenticating {
			return reject()
		}
		return Snapshot{State: Unauthenticated, Err: ev.Err}, nil

	case ProfileLoaded:
		if !cur.State.Authenticated() || ev.Profile == nil {
			return reject()
		}
		cur.State = AuthenticatedWithProfile
		cur.Profile = ev.Profile
		return cur, nil

	case ProfileMissing:
		if cur.State != AuthenticatedNoProfile {
			return reject()
		}
		return cur, nil

	case SessionRefreshed:
		if !cur.State.Authenticated() || ev.Session == nil {
			return reject()
		}
		cur.Session = ev.Session
		return cur, nil

	case SignedOut:
		if cur.State == Unauthenticated {
			return reject()
		}
		return Snapshot{State: Unauthenticated}, nil

	case SessionExpired:
		if !cur.State.Authenticated() {
			return reject()
		}
		return Snapshot{State: Unauthenticated}, nil
	}
	return reject()
}
