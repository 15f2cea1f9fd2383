package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

var trackSeq atomic.Int64

type fakeTrack struct {
	id   string
	kind domain.TrackKind

	mu       sync.Mutex
	enabled  bool
	stopped  bool
	onEnded  []func()
	toggles  int
	stopOnce sync.Once
}

func newFakeTrack(kind domain.TrackKind) *fakeTrack {
	return &fakeTrack{
		id:      fmt.Sprintf("%s-%d", kind, trackSeq.Add(1)),
		kind:    kind,
		enabled: true,
	}
}

func (t *fakeTrack) ID() string             { return t.id }
func (t *fakeTrack) Kind() domain.TrackKind { return t.kind }

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.toggles++
	t.mu.Unlock()
}

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		handlers := t.onEnded
		t.mu.Unlock()
		for _, fn := range handlers {
			fn()
		}
	})
}

func (t *fakeTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *fakeTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

// End simulates the OS "stop sharing" control.
func (t *fakeTrack) End() { t.Stop() }

type fakeSender struct {
	mu       sync.Mutex
	track    port.LocalTrack
	replaced int
	failNext error
}

func (s *fakeSender) Track() port.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

func (s *fakeSender) ReplaceTrack(track port.LocalTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	s.track = track
	s.replaced++
	return nil
}

func (s *fakeSender) Replaced() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaced
}

type fakeRemoteTrack struct {
	id   string
	kind domain.TrackKind
}

func (t fakeRemoteTrack) ID() string             { return t.id }
func (t fakeRemoteTrack) StreamID() string       { return "stream-" + t.id }
func (t fakeRemoteTrack) Kind() domain.TrackKind { return t.kind }

type fakePeerConnection struct {
	mu         sync.Mutex
	cfg        port.ICEConfig
	senders    []*fakeSender
	local      *domain.SessionDescription
	remote     *domain.SessionDescription
	applied    []domain.ICECandidate
	offers     int
	answers    int
	closed     int
	state      domain.ConnectionState
	onICE      func(domain.ICECandidate)
	onTrack    func(port.RemoteTrack)
	onState    func(domain.ConnectionState)
	failRemote error
}

func (pc *fakePeerConnection) AddTrack(track port.LocalTrack) (port.RTPSender, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed > 0 {
		return nil, errors.New("closed")
	}
	s := &fakeSender{track: track}
	pc.senders = append(pc.senders, s)
	return s, nil
}

func (pc *fakePeerConnection) CreateOffer() (domain.SessionDescription, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.offers++
	return domain.SessionDescription{Type: domain.SDPOffer, SDP: fmt.Sprintf("v=0 offer %d tracks=%d", pc.offers, len(pc.senders))}, nil
}

func (pc *fakePeerConnection) CreateAnswer() (domain.SessionDescription, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.remote == nil {
		return domain.SessionDescription{}, errors.New("no remote description")
	}
	pc.answers++
	return domain.SessionDescription{Type: domain.SDPAnswer, SDP: fmt.Sprintf("v=0 answer %d", pc.answers)}, nil
}

func (pc *fakePeerConnection) SetLocalDescription(desc domain.SessionDescription) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.local = &desc
	return nil
}

func (pc *fakePeerConnection) SetRemoteDescription(desc domain.SessionDescription) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.failRemote != nil {
		return pc.failRemote
	}
	pc.remote = &desc
	return nil
}

func (pc *fakePeerConnection) AddICECandidate(c domain.ICECandidate) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.remote == nil {
		return errors.New("remote description not set")
	}
	pc.applied = append(pc.applied, c)
	return nil
}

func (pc *fakePeerConnection) OnICECandidate(fn func(domain.ICECandidate)) {
	pc.mu.Lock()
	pc.onICE = fn
	pc.mu.Unlock()
}

func (pc *fakePeerConnection) OnTrack(fn func(port.RemoteTrack)) {
	pc.mu.Lock()
	pc.onTrack = fn
	pc.mu.Unlock()
}

func (pc *fakePeerConnection) OnConnectionStateChange(fn func(domain.ConnectionState)) {
	pc.mu.Lock()
	pc.onState = fn
	pc.mu.Unlock()
}

func (pc *fakePeerConnection) ConnectionState() domain.ConnectionState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.state
}

func (pc *fakePeerConnection) Close() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.closed++
	pc.state = domain.ConnectionClosed
	return nil
}

func (pc *fakePeerConnection) emitCandidate(c domain.ICECandidate) {
	pc.mu.Lock()
	fn := pc.onICE
	pc.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (pc *fakePeerConnection) emitTrack(t port.RemoteTrack) {
	pc.mu.Lock()
	fn := pc.onTrack
	pc.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

func (pc *fakePeerConnection) emitState(s domain.ConnectionState) {
	pc.mu.Lock()
	pc.state = s
	fn := pc.onState
	pc.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (pc *fakePeerConnection) Applied() []domain.ICECandidate {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return append([]domain.ICECandidate(nil), pc.applied...)
}

func (pc *fakePeerConnection) Offers() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.offers
}

func (pc *fakePeerConnection) Closed() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.closed
}

func (pc *fakePeerConnection) Remote() *domain.SessionDescription {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.remote
}

func (pc *fakePeerConnection) VideoSender() *fakeSender {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for _, s := range pc.senders {
		if s.Track() != nil && s.Track().Kind() == domain.TrackVideo {
			return s
		}
	}
	return nil
}

type fakeFactory struct {
	mu    sync.Mutex
	conns []*fakePeerConnection
	err   error
}

func (f *fakeFactory) NewPeerConnection(cfg port.ICEConfig) (port.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	pc := &fakePeerConnection{cfg: cfg, state: domain.ConnectionNew}
	f.conns = append(f.conns, pc)
	return pc, nil
}

func (f *fakeFactory) Last() *fakePeerConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

func (f *fakeFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

type fakeDevices struct {
	mu         sync.Mutex
	userErr    error
	displayErr error
	noVideo    bool
	// gate, when set, blocks GetUserMedia until it is closed.
	gate       chan struct{}
	// picker, when set, blocks GetDisplayMedia until it is closed.
	picker     chan struct{}
	pickers    int

	acquired []*fakeTrack
	screens  []*fakeTrack
}

func (d *fakeDevices) blockPicker() chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.picker = make(chan struct{})
	return d.picker
}

// Pickers counts GetDisplayMedia calls, including those still blocked.
func (d *fakeDevices) Pickers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pickers
}

func (d *fakeDevices) Screens() []*fakeTrack {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeTrack(nil), d.screens...)
}

func (d *fakeDevices) GetUserMedia(ctx context.Context, c port.MediaConstraints) ([]port.LocalTrack, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.userErr != nil {
		return nil, d.userErr
	}
	var tracks []port.LocalTrack
	if c.Audio {
		t := newFakeTrack(domain.TrackAudio)
		d.acquired = append(d.acquired, t)
		tracks = append(tracks, t)
	}
	if c.Video && !d.noVideo {
		t := newFakeTrack(domain.TrackVideo)
		d.acquired = append(d.acquired, t)
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func (d *fakeDevices) GetDisplayMedia(ctx context.Context) (port.LocalTrack, error) {
	d.mu.Lock()
	picker := d.picker
	d.pickers++
	d.mu.Unlock()
	if picker != nil {
		<-picker
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.displayErr != nil {
		return nil, d.displayErr
	}
	t := newFakeTrack(domain.TrackVideo)
	d.screens = append(d.screens, t)
	return t, nil
}

func (d *fakeDevices) Acquired() []*fakeTrack {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeTrack(nil), d.acquired...)
}

func (d *fakeDevices) LastScreen() *fakeTrack {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.screens) == 0 {
		return nil
	}
	return d.screens[len(d.screens)-1]
}

func (d *fakeDevices) track(kind domain.TrackKind) *fakeTrack {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.acquired) - 1; i >= 0; i-- {
		if d.acquired[i].kind == kind {
			return d.acquired[i]
		}
	}
	return nil
}

type fakeGateway struct {
	mu     sync.Mutex
	online map[domain.UserID]bool
	sent   []domain.SignalingMessage
	err    error
}

func newFakeGateway(online ...domain.UserID) *fakeGateway {
	g := &fakeGateway{online: make(map[domain.UserID]bool)}
	for _, id := range online {
		g.online[id] = true
	}
	return g
}

func (g *fakeGateway) SendSignal(ctx context.Context, userID domain.UserID, msg domain.SignalingMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.sent = append(g.sent, msg)
	return nil
}

func (g *fakeGateway) IsOnline(userID domain.UserID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.online[userID]
}

func (g *fakeGateway) Sent() []domain.SignalingMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.SignalingMessage(nil), g.sent...)
}

type fakeAppointmentRepo struct {
	mu    sync.Mutex
	items map[domain.AppointmentID]domain.Appointment
}

func newFakeAppointmentRepo() *fakeAppointmentRepo {
	return &fakeAppointmentRepo{items: make(map[domain.AppointmentID]domain.Appointment)}
}

func (r *fakeAppointmentRepo) Save(ctx context.Context, appt domain.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[appt.ID] = appt
	return nil
}

func (r *fakeAppointmentRepo) Get(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.items[id]
	if !ok {
		return domain.Appointment{}, domain.ErrAppointmentNotFound
	}
	return appt, nil
}

func (r *fakeAppointmentRepo) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Appointment
	for _, a := range r.items {
		if a.Involves(userID) {
			out = append(out, a)
		}
	}
	return out, nil
}
