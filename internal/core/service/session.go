package service

import (
	"context"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/rs/zerolog"
)

// callSession holds everything scoped to one call: its signaling channel,
// its peer connection, pending timers and the context that cancels in-flight
// continuations once the call is torn down.
type callSession struct {
	id     domain.CallID
	remote domain.UserID
	role   domain.Role
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	signaling *SignalingChannel
	peer      *PeerManager

	mu         sync.Mutex
	unsubs     []func()
	timers     []*time.Timer
	mediaReady bool
	offer      *domain.SessionDescription
	leaving    bool
	shareGen   uint64

	acceptOnce sync.Once
	stopOnce   sync.Once
}

func (s *callSession) alive() bool {
	return s.ctx.Err() == nil
}

// on registers a signaling handler that is dropped when the session stops.
func (s *callSession) on(t domain.SignalType, fn SignalHandler) {
	unsub := s.signaling.On(t, func(msg domain.SignalingMessage) {
		if !s.alive() {
			return
		}
		fn(msg)
	})
	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsub)
	s.mu.Unlock()
}

// schedule runs fn after d unless the session stops first.
func (s *callSession) schedule(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive() {
		return
	}
	t := time.AfterFunc(d, func() {
		if s.alive() {
			fn()
		}
	})
	s.timers = append(s.timers, t)
}

// stashOffer keeps an offer that arrived before local media was ready.
// It reports false when media is ready and the offer should be answered now.
func (s *callSession) stashOffer(desc domain.SessionDescription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mediaReady {
		return false
	}
	s.offer = &desc
	return true
}

// markMediaReady returns the offer stashed while media was being acquired.
func (s *callSession) markMediaReady() *domain.SessionDescription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mediaReady = true
	offer := s.offer
	s.offer = nil
	return offer
}

// markLeaving reports true the first time the remote side is seen leaving.
func (s *callSession) markLeaving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaving {
		return false
	}
	s.leaving = true
	return true
}

// nextShare starts a new screen share toggle and returns its generation.
func (s *callSession) nextShare() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shareGen++
	return s.shareGen
}

func (s *callSession) latestShare(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shareGen == gen
}

// stop cancels the session and releases its resources exactly once.
func (s *callSession) stop() {
	s.stopOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		timers := s.timers
		unsubs := s.unsubs
		s.timers = nil
		s.unsubs = nil
		s.mu.Unlock()

		for _, t := range timers {
			t.Stop()
		}
		for _, unsub := range unsubs {
			unsub()
		}
		if err := s.peer.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Peer close failed")
		}
		s.signaling.Disconnect()
		s.log.Info().Msg("Call session released")
	})
}
