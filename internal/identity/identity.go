// Package identity abstracts the account identity provider. The sync
// engine only needs the current owner token and sign-in/sign-out
// transitions; authentication itself happens elsewhere.
package identity

import "sync"

// Transition is one sign-in or sign-out event.
type Transition struct {
	Owner    string
	SignedIn bool
}

// Provider supplies the current identity and its transitions.
type Provider interface {
	// Current returns the signed-in owner token, or "" when anonymous.
	Current() string

	// Subscribe registers fn for future transitions and returns its
	// cancel func.
	Subscribe(fn func(Transition)) (cancel func())
}

// Static is a Provider driven explicitly via SignIn/SignOut. The CLI and
// daemon construct one from config; tests drive transitions directly.
type Static struct {
	mu    sync.Mutex
	owner string
	next  int
	subs  map[int]func(Transition)
}

// NewStatic returns a provider already signed in as owner ("" = anonymous).
func NewStatic(owner string) *Static {
	return &Static{owner: owner, subs: make(map[int]func(Transition))}
}

func (s *Static) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

func (s *Static) Subscribe(fn func(Transition)) (cancel func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// SignIn switches to owner and notifies subscribers.
func (s *Static) SignIn(owner string) {
	s.transition(Transition{Owner: owner, SignedIn: true})
}

// SignOut clears the identity and notifies subscribers.
func (s *Static) SignOut() {
	s.transition(Transition{SignedIn: false})
}

func (s *Static) transition(tr Transition) {
	s.mu.Lock()
	s.owner = tr.Owner
	fns := make([]func(Transition), 0, len(s.subs))
	for id := 0; id < s.next; id++ {
		if fn, ok := s.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(tr)
	}
}
