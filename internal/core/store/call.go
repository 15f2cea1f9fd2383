package store

import (
	"encoding/json"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// ReduceCall is the call state machine. It is total over the action set:
// an action that is not legal in the current phase returns s unchanged.
func ReduceCall(s domain.CallState, a Action) domain.CallState {
	switch a := a.(type) {
	case OutgoingCall:
		if s.Phase != domain.PhaseIdle {
			return s
		}
		next := domain.IdleCallState()
		next.Phase = domain.PhaseOutgoing
		next.Session = &domain.CallSession{
			ID:                a.CallID,
			LocalUserID:       a.CallerID,
			RemoteUserID:      a.CalleeID,
			RemoteDisplayName: a.CalleeName,
			Role:              domain.RoleCaller,
			StartedAt:         a.At,
		}
		next.CallerID = ptr(a.CallerID)
		next.CallerName = ptr(a.CallerName)
		next.CalleeID = ptr(a.CalleeID)
		next.CalleeName = ptr(a.CalleeName)
		return next

	case IncomingCall:
		switch s.Phase {
		case domain.PhaseOutgoing, domain.PhaseConnected:
			// busy
			return s
		case domain.PhaseIncoming:
			// a second ringing caller does not displace the first one
			if s.CallerID == nil || *s.CallerID != a.CallerID {
				return s
			}
		}
		next := domain.IdleCallState()
		next.Phase = domain.PhaseIncoming
		next.Session = &domain.CallSession{
			ID:                a.CallID,
			LocalUserID:       a.CalleeID,
			RemoteUserID:      a.CallerID,
			RemoteDisplayName: a.CallerName,
			Role:              domain.RoleCallee,
			StartedAt:         a.At,
		}
		next.CallerID = ptr(a.CallerID)
		next.CallerName = ptr(a.CallerName)
		next.CalleeID = ptr(a.CalleeID)
		next.CalleeName = ptr(a.CalleeName)
		if a.Payload != nil {
			next.IncomingPayload = append(json.RawMessage(nil), a.Payload...)
		}
		return next

	case AcceptCall:
		if s.Phase != domain.PhaseOutgoing && s.Phase != domain.PhaseIncoming {
			return s
		}
		next := s.Clone()
		next.Phase = domain.PhaseConnected
		next.OtherPartyLeft = false
		next.Media = domain.DefaultMediaState()
		return next

	case RejectCall:
		if s.Phase != domain.PhaseOutgoing && s.Phase != domain.PhaseIncoming {
			return s
		}
		return domain.IdleCallState()

	case EndCall:
		return domain.IdleCallState()

	case OtherPartyLeft:
		if s.Phase == domain.PhaseIdle {
			return s
		}
		next := s.Clone()
		next.OtherPartyLeft = true
		return next

	case ToggleMute:
		if s.Phase != domain.PhaseConnected {
			return s
		}
		next := s.Clone()
		next.Media.Muted = !next.Media.Muted
		return next

	case ToggleVideo:
		if s.Phase != domain.PhaseConnected {
			return s
		}
		next := s.Clone()
		next.Media.VideoEnabled = !next.Media.VideoEnabled
		return next

	case ToggleScreenShare:
		if s.Phase != domain.PhaseConnected {
			return s
		}
		next := s.Clone()
		next.Media.ScreenSharing = !next.Media.ScreenSharing
		return next
	}
	return s
}

func ptr[T any](v T) *T {
	return &v
}
