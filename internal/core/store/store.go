package store

import (
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// State is the call/appointment slice of the application store.
type State struct {
	Call         domain.CallState
	Appointments Appointments
}

// Listener observes every dispatched action with the state before and after.
type Listener func(prev, next State, a Action)

type Store struct {
	mu        sync.Mutex
	state     State
	listeners []*listenerEntry
}

type listenerEntry struct {
	fn Listener
}

func New() *Store {
	return &Store{
		state: State{
			Call:         domain.IdleCallState(),
			Appointments: make(Appointments),
		},
	}
}

// Dispatch runs a through the reducers and notifies listeners in
// subscription order. Listeners run outside the store lock and may dispatch.
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	prev := s.state
	next := State{
		Call:         ReduceCall(prev.Call, a),
		Appointments: ReduceAppointments(prev.Appointments, a),
	}
	s.state = next
	listeners := make([]*listenerEntry, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	if prev.Call.Phase != next.Call.Phase {
		log.Debug().
			Str("action", a.Name()).
			Stringer("from", prev.Call.Phase).
			Stringer("to", next.Call.Phase).
			Msg("Call phase changed")
	}

	for _, l := range listeners {
		l.fn(prev, next, a)
	}
	return next
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Call:         s.state.Call.Clone(),
		Appointments: s.state.Appointments.clone(),
	}
}

func (s *Store) Call() domain.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Call.Clone()
}

func (s *Store) Appointment(id domain.AppointmentID) (domain.Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.Appointments[id]
	return a, ok
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	entry := &listenerEntry{fn: l}
	s.mu.Lock()
	s.listeners = append(s.listeners, entry)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, e := range s.listeners {
				if e == entry {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}
