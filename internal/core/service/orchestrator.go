package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/Wyydra/yacall/internal/core/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultGraceWindow = 5 * time.Second

type OrchestratorConfig struct {
	LocalUserID domain.UserID
	DisplayName string
	ICE         port.ICEConfig
	// GraceWindow is how long a call stays up after the other party left.
	GraceWindow time.Duration
}

// Orchestrator drives signaling and the peer connection from call state
// transitions. It owns at most one call session at a time.
type Orchestrator struct {
	cfg       OrchestratorConfig
	store     *store.Store
	transport port.SignalingTransport
	factory   port.PeerConnectionFactory
	devices   port.MediaDevices
	log       zerolog.Logger

	// opMu serializes user operations and inbound call requests.
	opMu sync.Mutex

	sessMu  sync.Mutex
	session *callSession

	inbox      *SignalingChannel
	unsubStore func()

	lmu           sync.RWMutex
	onIncoming    []func(domain.CallState)
	onError       []func(error)
	onConnState   []func(domain.ConnectionState)
	onRemoteTrack []func(port.RemoteTrack)
}

func NewOrchestrator(cfg OrchestratorConfig, st *store.Store, transport port.SignalingTransport, factory port.PeerConnectionFactory, devices port.MediaDevices) *Orchestrator {
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = DefaultGraceWindow
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		transport: transport,
		factory:   factory,
		devices:   devices,
		log:       log.With().Str("component", "orchestrator").Str("user_id", cfg.LocalUserID.String()).Logger(),
	}
}

func (o *Orchestrator) OnIncoming(fn func(domain.CallState)) {
	o.lmu.Lock()
	o.onIncoming = append(o.onIncoming, fn)
	o.lmu.Unlock()
}

func (o *Orchestrator) OnError(fn func(error)) {
	o.lmu.Lock()
	o.onError = append(o.onError, fn)
	o.lmu.Unlock()
}

// OnConnectionState reports the "connecting"/"connected" indicator.
func (o *Orchestrator) OnConnectionState(fn func(domain.ConnectionState)) {
	o.lmu.Lock()
	o.onConnState = append(o.onConnState, fn)
	o.lmu.Unlock()
}

func (o *Orchestrator) OnRemoteTrack(fn func(port.RemoteTrack)) {
	o.lmu.Lock()
	o.onRemoteTrack = append(o.onRemoteTrack, fn)
	o.lmu.Unlock()
}

// Start begins listening for incoming call requests.
func (o *Orchestrator) Start() error {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	if o.inbox != nil {
		return nil
	}

	inbox := NewSignalingChannel(o.transport, o.cfg.LocalUserID)
	inbox.AcceptFromAnyone(domain.SignalCallRequest)
	inbox.On(domain.SignalCallRequest, o.handleCallRequest)
	if err := inbox.Init(); err != nil {
		return err
	}
	o.inbox = inbox
	o.unsubStore = o.store.Subscribe(o.onTransition)
	o.log.Info().Msg("Orchestrator started")
	return nil
}

// Stop hangs up any call and stops listening.
func (o *Orchestrator) Stop(ctx context.Context) {
	_ = o.Hangup(ctx)

	o.opMu.Lock()
	defer o.opMu.Unlock()
	if o.inbox == nil {
		return
	}
	o.inbox.Disconnect()
	o.inbox = nil
	o.unsubStore()
	o.unsubStore = nil
}

func (o *Orchestrator) State() domain.CallState {
	return o.store.Call()
}

// Call places an outgoing call to callee.
func (o *Orchestrator) Call(ctx context.Context, callee domain.UserID, calleeName string) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	if o.inbox == nil {
		return errors.New("orchestrator not started")
	}
	if o.store.Call().Phase != domain.PhaseIdle {
		return domain.NewCallError(domain.ErrBusy, "call", errors.New("already in a call"))
	}
	o.releaseSession()

	callID := domain.NewCallID()
	st := o.store.Dispatch(store.OutgoingCall{
		CallID:     callID,
		CallerID:   o.cfg.LocalUserID,
		CallerName: o.cfg.DisplayName,
		CalleeID:   callee,
		CalleeName: calleeName,
		At:         time.Now().UTC(),
	})
	if st.Call.Phase != domain.PhaseOutgoing {
		return domain.NewCallError(domain.ErrBusy, "call", nil)
	}

	sess, err := o.openSession(callID, callee, domain.RoleCaller)
	if err != nil {
		o.store.Dispatch(store.EndCall{})
		return err
	}
	sess.on(domain.SignalCallAccept, func(domain.SignalingMessage) {
		sess.acceptOnce.Do(func() { go o.startCaller(sess) })
	})
	sess.on(domain.SignalCallReject, func(domain.SignalingMessage) { o.declined(sess, domain.ErrCallRejected) })
	sess.on(domain.SignalBusy, func(domain.SignalingMessage) { o.declined(sess, domain.ErrBusy) })
	sess.on(domain.SignalAnswer, func(msg domain.SignalingMessage) { o.handleAnswer(sess, msg) })

	if err := sess.signaling.SendCallRequest(ctx, callee, domain.CallRequest{CallerName: o.cfg.DisplayName, Video: true}); err != nil {
		o.store.Dispatch(store.EndCall{})
		return err
	}
	sess.log.Info().Msg("Calling")
	return nil
}

// Accept answers the ringing incoming call.
func (o *Orchestrator) Accept(ctx context.Context) error {
	o.opMu.Lock()
	sess := o.current()
	if o.store.Call().Phase != domain.PhaseIncoming || sess == nil || sess.role != domain.RoleCallee {
		o.opMu.Unlock()
		return domain.NewCallError(domain.ErrNoActiveCall, "accept", nil)
	}
	o.store.Dispatch(store.AcceptCall{})
	o.opMu.Unlock()

	// The peer connection exists before the caller hears about the accept,
	// so early candidates are buffered instead of lost.
	if err := o.initPeer(sess); err != nil {
		o.fail(sess, err)
		return err
	}
	if err := sess.signaling.SendCallAccept(ctx, sess.remote); err != nil {
		o.fail(sess, err)
		return err
	}
	if err := o.acquireMedia(sess); err != nil {
		o.fail(sess, err)
		return err
	}
	if offer := sess.markMediaReady(); offer != nil {
		o.answer(sess, *offer)
	}
	return nil
}

// Reject declines the ringing incoming call.
func (o *Orchestrator) Reject(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	sess := o.current()
	if o.store.Call().Phase != domain.PhaseIncoming || sess == nil {
		return domain.NewCallError(domain.ErrNoActiveCall, "reject", nil)
	}
	if err := sess.signaling.SendCallReject(ctx, sess.remote, "declined"); err != nil {
		sess.log.Warn().Err(err).Msg("Reject not delivered")
	}
	o.store.Dispatch(store.RejectCall{})
	return nil
}

// Hangup tells the peer the call is over and then tears down locally.
// Calling it without a call only resets the state.
func (o *Orchestrator) Hangup(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	if sess := o.current(); sess != nil {
		if err := sess.signaling.SendEndCall(ctx, sess.remote); err != nil {
			sess.log.Warn().Err(err).Msg("End-call not delivered")
		}
	}
	o.store.Dispatch(store.EndCall{})
	return nil
}

func (o *Orchestrator) ToggleMute() {
	st := o.store.Dispatch(store.ToggleMute{})
	if sess := o.current(); sess != nil && st.Call.IsInCall() {
		sess.peer.ToggleAudio(!st.Call.Media.Muted)
	}
}

func (o *Orchestrator) ToggleVideo() {
	st := o.store.Dispatch(store.ToggleVideo{})
	if sess := o.current(); sess != nil && st.Call.IsInCall() {
		sess.peer.ToggleVideo(st.Call.Media.VideoEnabled)
	}
}

// ToggleScreenShare starts or stops sharing. A dismissed picker reverts the
// flag and returns an error wrapping domain.ErrScreenShareCancelled.
func (o *Orchestrator) ToggleScreenShare(ctx context.Context) error {
	sess := o.current()
	if sess == nil || !o.store.Call().IsInCall() {
		return nil
	}
	gen := sess.nextShare()
	st := o.store.Dispatch(store.ToggleScreenShare{})
	if !st.Call.Media.ScreenSharing {
		return sess.peer.StopScreenShare()
	}

	err := sess.peer.ReplaceVideoTrackWithScreenShare(ctx, func() {
		o.resyncScreenShare(sess)
	})
	if err != nil {
		// A newer toggle owns the flag once this request is superseded.
		if sess.latestShare(gen) {
			o.resyncScreenShare(sess)
		}
		sess.log.Warn().Err(err).Msg("Screen share not started")
		return err
	}
	if !o.store.Call().Media.ScreenSharing {
		return sess.peer.StopScreenShare()
	}
	return nil
}

// resyncScreenShare clears the sharing flag once sharing stopped on its own.
func (o *Orchestrator) resyncScreenShare(sess *callSession) {
	if !sess.alive() || o.current() != sess {
		return
	}
	if o.store.Call().Media.ScreenSharing {
		o.store.Dispatch(store.ToggleScreenShare{})
	}
}

func (o *Orchestrator) current() *callSession {
	o.sessMu.Lock()
	defer o.sessMu.Unlock()
	return o.session
}

// releaseSession detaches and stops the current session, if any. Devices are
// released before this returns.
func (o *Orchestrator) releaseSession() {
	o.sessMu.Lock()
	sess := o.session
	o.session = nil
	o.sessMu.Unlock()
	if sess != nil {
		sess.stop()
	}
}

func (o *Orchestrator) onTransition(prev, next store.State, a store.Action) {
	if prev.Call.Phase != domain.PhaseIdle && next.Call.Phase == domain.PhaseIdle {
		o.releaseSession()
	}
}

func (o *Orchestrator) openSession(id domain.CallID, remote domain.UserID, role domain.Role) (*callSession, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &callSession{
		id:     id,
		remote: remote,
		role:   role,
		log: o.log.With().
			Str("call_id", id.String()).
			Str("remote_id", remote.String()).
			Str("role", string(role)).
			Logger(),
		ctx:       ctx,
		cancel:    cancel,
		signaling: NewSignalingChannel(o.transport, o.cfg.LocalUserID),
		peer:      NewPeerManager(o.factory, o.devices, o.cfg.ICE),
	}
	if err := sess.signaling.Init(); err != nil {
		cancel()
		return nil, err
	}
	sess.signaling.AddReceiverID(remote)
	sess.on(domain.SignalICECandidate, func(msg domain.SignalingMessage) { o.handleCandidate(sess, msg) })
	sess.on(domain.SignalEndCall, func(domain.SignalingMessage) { o.remoteLeft(sess, "end-call") })

	o.sessMu.Lock()
	o.session = sess
	o.sessMu.Unlock()
	return sess, nil
}

func (o *Orchestrator) handleCallRequest(msg domain.SignalingMessage) {
	var req domain.CallRequest
	if err := msg.Decode(&req); err != nil {
		o.log.Warn().Err(err).Msg("Malformed call request")
		return
	}

	o.opMu.Lock()
	defer o.opMu.Unlock()

	st := o.store.Call()
	sameCaller := st.Phase == domain.PhaseIncoming && st.CallerID != nil && *st.CallerID == msg.SenderID
	if st.Phase != domain.PhaseIdle && !sameCaller {
		o.log.Info().Str("caller_id", msg.SenderID.String()).Stringer("phase", st.Phase).Msg("Busy, refusing call")
		if err := o.inbox.SendBusy(context.Background(), msg.SenderID); err != nil {
			o.log.Warn().Err(err).Msg("Busy reply not delivered")
		}
		return
	}

	callID := domain.NewCallID()
	if sameCaller && st.Session != nil {
		callID = st.Session.ID
	}
	next := o.store.Dispatch(store.IncomingCall{
		CallID:     callID,
		CallerID:   msg.SenderID,
		CallerName: req.CallerName,
		CalleeID:   o.cfg.LocalUserID,
		CalleeName: o.cfg.DisplayName,
		Payload:    msg.Payload,
		At:         time.Now().UTC(),
	})
	if next.Call.Phase != domain.PhaseIncoming {
		return
	}

	if !sameCaller || o.current() == nil {
		o.releaseSession()
		sess, err := o.openSession(callID, msg.SenderID, domain.RoleCallee)
		if err != nil {
			o.log.Error().Err(err).Msg("Cannot open call session")
			o.store.Dispatch(store.EndCall{})
			return
		}
		sess.on(domain.SignalOffer, func(m domain.SignalingMessage) { o.handleOffer(sess, m) })
		sess.log.Info().Msg("Incoming call")
	}

	o.lmu.RLock()
	handlers := append(([]func(domain.CallState))(nil), o.onIncoming...)
	o.lmu.RUnlock()
	for _, fn := range handlers {
		fn(next.Call.Clone())
	}
}

func (o *Orchestrator) initPeer(sess *callSession) error {
	return sess.peer.Initialize(
		func(c domain.ICECandidate) {
			if !sess.alive() {
				return
			}
			if err := sess.signaling.SendIceCandidate(sess.ctx, sess.remote, c); err != nil {
				sess.log.Warn().Err(err).Msg("Candidate not sent")
			}
		},
		func(t port.RemoteTrack) {
			if !sess.alive() {
				return
			}
			o.lmu.RLock()
			handlers := append(([]func(port.RemoteTrack))(nil), o.onRemoteTrack...)
			o.lmu.RUnlock()
			for _, fn := range handlers {
				fn(t)
			}
		},
		func(s domain.ConnectionState) { o.connectionState(sess, s) },
	)
}

// acquireMedia attaches local capture with the privacy defaults of a freshly
// accepted call applied.
func (o *Orchestrator) acquireMedia(sess *callSession) error {
	if err := sess.peer.GetUserMedia(sess.ctx, true, true); err != nil {
		return err
	}
	if err := sess.peer.AddLocalStreamTracks(); err != nil {
		return err
	}
	if !sess.alive() {
		return domain.NewCallError(domain.ErrClosed, "acquireMedia", sess.ctx.Err())
	}
	media := o.store.Call().Media
	sess.peer.ToggleAudio(!media.Muted)
	sess.peer.ToggleVideo(media.VideoEnabled)
	return nil
}

func (o *Orchestrator) startCaller(sess *callSession) {
	if !sess.alive() || o.current() != sess {
		return
	}
	o.store.Dispatch(store.AcceptCall{})
	sess.log.Info().Msg("Call accepted by peer")

	if err := o.initPeer(sess); err != nil {
		o.fail(sess, err)
		return
	}
	if err := o.acquireMedia(sess); err != nil {
		o.fail(sess, err)
		return
	}
	offer, err := sess.peer.CreateOffer(sess.ctx)
	if err != nil {
		o.fail(sess, err)
		return
	}
	if err := sess.signaling.SendOffer(sess.ctx, sess.remote, offer); err != nil {
		o.fail(sess, err)
	}
}

func (o *Orchestrator) handleOffer(sess *callSession, msg domain.SignalingMessage) {
	var offer domain.SessionDescription
	if err := msg.Decode(&offer); err != nil {
		o.fail(sess, domain.NewCallError(domain.ErrNegotiation, "offer", err))
		return
	}
	if sess.stashOffer(offer) {
		sess.log.Debug().Msg("Offer buffered until local media is ready")
		return
	}
	o.answer(sess, offer)
}

func (o *Orchestrator) answer(sess *callSession, offer domain.SessionDescription) {
	if err := sess.peer.SetRemoteDescription(offer); err != nil {
		o.fail(sess, err)
		return
	}
	answer, err := sess.peer.CreateAnswer(sess.ctx)
	if err != nil {
		o.fail(sess, err)
		return
	}
	if err := sess.signaling.SendAnswer(sess.ctx, sess.remote, answer); err != nil {
		o.fail(sess, err)
	}
}

func (o *Orchestrator) handleAnswer(sess *callSession, msg domain.SignalingMessage) {
	var answer domain.SessionDescription
	if err := msg.Decode(&answer); err != nil {
		o.fail(sess, domain.NewCallError(domain.ErrNegotiation, "answer", err))
		return
	}
	if err := sess.peer.SetRemoteDescription(answer); err != nil {
		o.fail(sess, err)
	}
}

func (o *Orchestrator) handleCandidate(sess *callSession, msg domain.SignalingMessage) {
	var c domain.ICECandidate
	if err := msg.Decode(&c); err != nil {
		sess.log.Warn().Err(err).Msg("Malformed candidate")
		return
	}
	if err := sess.peer.AddIceCandidate(c); err != nil {
		if errors.Is(err, domain.ErrNotInitialized) || errors.Is(err, domain.ErrClosed) {
			sess.log.Debug().Err(err).Msg("Candidate arrived without a live peer connection")
			return
		}
		sess.log.Warn().Err(err).Msg("Candidate rejected")
	}
}

func (o *Orchestrator) connectionState(sess *callSession, s domain.ConnectionState) {
	if !sess.alive() {
		return
	}
	o.lmu.RLock()
	handlers := append(([]func(domain.ConnectionState))(nil), o.onConnState...)
	o.lmu.RUnlock()
	for _, fn := range handlers {
		fn(s)
	}
	if s == domain.ConnectionFailed {
		o.remoteLeft(sess, "connection failed")
	}
}

// remoteLeft flags the other party as gone and ends the call after the
// grace window.
func (o *Orchestrator) remoteLeft(sess *callSession, reason string) {
	if !sess.alive() || o.current() != sess || !sess.markLeaving() {
		return
	}
	sess.log.Info().Str("reason", reason).Dur("grace", o.cfg.GraceWindow).Msg("Other party left")
	o.store.Dispatch(store.OtherPartyLeft{})
	sess.schedule(o.cfg.GraceWindow, func() {
		if o.current() == sess {
			o.store.Dispatch(store.EndCall{})
		}
	})
}

// declined handles call-reject and busy from the callee.
func (o *Orchestrator) declined(sess *callSession, kind error) {
	if o.current() != sess {
		return
	}
	sess.log.Info().Err(kind).Msg("Call declined")
	o.store.Dispatch(store.RejectCall{})
	o.emitError(domain.NewCallError(kind, "call", nil))
}

// fail aborts the call attempt after a terminal error.
func (o *Orchestrator) fail(sess *callSession, err error) {
	if !sess.alive() || o.current() != sess {
		return
	}
	sess.log.Error().Err(err).Msg("Call attempt failed")
	if sendErr := sess.signaling.SendEndCall(context.Background(), sess.remote); sendErr != nil {
		sess.log.Debug().Err(sendErr).Msg("End-call not delivered")
	}
	o.store.Dispatch(store.EndCall{})
	o.emitError(err)
}

func (o *Orchestrator) emitError(err error) {
	o.lmu.RLock()
	handlers := append(([]func(error))(nil), o.onError...)
	o.lmu.RUnlock()
	for _, fn := range handlers {
		fn(err)
	}
}
