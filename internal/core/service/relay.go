package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog/log"
)

// RelayService forwards call-control messages between connected users. It
// never looks inside payloads.
type RelayService struct {
	gateway port.SignalingGateway

	mu    sync.Mutex
	peers map[domain.UserID]domain.UserID
}

func NewRelayService(gateway port.SignalingGateway) *RelayService {
	return &RelayService{
		gateway: gateway,
		peers:   make(map[domain.UserID]domain.UserID),
	}
}

// HandleSignal relays msg on behalf of from. The sender id on the wire is
// always overwritten with the authenticated connection's user.
func (s *RelayService) HandleSignal(ctx context.Context, from domain.UserID, msg domain.SignalingMessage) error {
	msg.SenderID = from
	if err := msg.Validate(); err != nil {
		return err
	}

	if !s.gateway.IsOnline(msg.TargetID) {
		log.Debug().
			Str("sender_id", from.String()).
			Str("target_id", msg.TargetID.String()).
			Str("type", string(msg.Type)).
			Msg("Target offline, dropping signal")
		return fmt.Errorf("%w: %s is offline", domain.ErrSignalingDelivery, msg.TargetID)
	}

	s.track(msg)

	if err := s.gateway.SendSignal(ctx, msg.TargetID, msg); err != nil {
		log.Error().Err(err).
			Str("sender_id", from.String()).
			Str("target_id", msg.TargetID.String()).
			Msg("failed to relay signal")
		return fmt.Errorf("%w: %v", domain.ErrSignalingDelivery, err)
	}
	return nil
}

// track keeps the current correspondent of each user up to date.
func (s *RelayService) track(msg domain.SignalingMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Type {
	case domain.SignalCallRequest:
		s.peers[msg.SenderID] = msg.TargetID
		// A ringing callee is paired too, unless already busy with someone.
		if _, busy := s.peers[msg.TargetID]; !busy {
			s.peers[msg.TargetID] = msg.SenderID
		}
	case domain.SignalCallAccept:
		s.peers[msg.SenderID] = msg.TargetID
		s.peers[msg.TargetID] = msg.SenderID
	case domain.SignalEndCall, domain.SignalCallReject, domain.SignalBusy:
		s.unpair(msg.SenderID, msg.TargetID)
	}
}

func (s *RelayService) unpair(a, b domain.UserID) {
	if s.peers[a] == b {
		delete(s.peers, a)
	}
	if s.peers[b] == a {
		delete(s.peers, b)
	}
}

// Correspondent returns who userID is calling or talking to.
func (s *RelayService) Correspondent(userID domain.UserID) (domain.UserID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	peer, ok := s.peers[userID]
	return peer, ok
}

// HandleDisconnect tells everyone calling or talking to a dropped user that
// the call ended, which starts the grace window on their side.
func (s *RelayService) HandleDisconnect(ctx context.Context, userID domain.UserID) {
	s.mu.Lock()
	var notify []domain.UserID
	if peer, ok := s.peers[userID]; ok {
		notify = append(notify, peer)
		s.unpair(userID, peer)
	}
	for caller, callee := range s.peers {
		if callee == userID {
			notify = append(notify, caller)
			delete(s.peers, caller)
		}
	}
	s.mu.Unlock()

	for _, peer := range notify {
		s.notifyEnded(ctx, userID, peer)
	}
}

func (s *RelayService) notifyEnded(ctx context.Context, userID, peer domain.UserID) {
	if !s.gateway.IsOnline(peer) {
		return
	}
	msg, err := domain.NewSignalingMessage(domain.SignalEndCall, userID, peer, nil)
	if err != nil {
		log.Error().Err(err).Msg("Cannot build end-call")
		return
	}
	if err := s.gateway.SendSignal(ctx, peer, *msg); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Str("peer_id", peer.String()).Msg("End-call after disconnect not delivered")
		return
	}
	log.Info().Str("user_id", userID.String()).Str("peer_id", peer.String()).Msg("Notified peer of disconnect")
}
