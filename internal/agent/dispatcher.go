// Package agent owns the lifecycle of phone sessions: it joins rooms on
// webhook events, feeds keypad signals into each session's router and tears
// sessions down when the call ends.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	lksdk "github.com/livekit/server-sdk-go/v2"

	"phone-assistant/internal/calllog"
	"phone-assistant/internal/config"
	"phone-assistant/internal/registry"
	"phone-assistant/internal/routing"
	"phone-assistant/internal/session"
	"phone-assistant/internal/speech"
	"phone-assistant/internal/telephony"
)

// agentIdentity is the identity the assistant joins rooms under.
const agentIdentity = "phone-assistant"

// registryRefresh keeps live-session entries ahead of their Redis TTL.
const registryRefresh = 30 * time.Second

// ErrAtCapacity is returned when the concurrent-call cap is reached.
var ErrAtCapacity = errors.New("agent: at concurrent call capacity")

// Deps are the dispatcher's collaborators. Calls and Registry are optional;
// a nil Calls disables call logging, a nil Registry disables the shared
// presence set and the concurrency cap.
type Deps struct {
	Config   config.Config
	Calls    *calllog.Service
	Registry *registry.ActiveCalls
	Log      *slog.Logger
}

// SessionInfo is a point-in-time view of one live session.
type SessionInfo struct {
	RoomName            string        `json:"room_name"`
	ParticipantIdentity string        `json:"participant_identity,omitempty"`
	State               session.State `json:"state"`
	StartedAt           time.Time     `json:"started_at"`
}

type liveSession struct {
	roomName  string
	startedAt time.Time

	router  *session.Router
	speaker *speech.RealtimeSpeaker
	room    *lksdk.Room
	hasSlot bool

	mu          sync.Mutex
	callID      string
	participant string

	stopOnce    sync.Once
	stopRefresh chan struct{}
}

// Dispatcher maps room names to live sessions. All methods are safe for
// concurrent use; webhook deliveries and room callbacks race freely.
type Dispatcher struct {
	deps  Deps
	table *routing.Table
	log   *slog.Logger

	// connectFn joins the media room; swappable in tests.
	connectFn func(ctx context.Context, s *liveSession) (*lksdk.Room, error)

	mu       sync.Mutex
	sessions map[string]*liveSession
	closed   bool
}

func NewDispatcher(deps Deps) (*Dispatcher, error) {
	table, err := routing.NewTable(deps.Config.Routing.Departments)
	if err != nil {
		return nil, err
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		deps:     deps,
		table:    table,
		log:      log,
		sessions: make(map[string]*liveSession),
	}
	d.connectFn = d.connect
	return d, nil
}

// Table exposes the routing table for the ops API.
func (d *Dispatcher) Table() *routing.Table { return d.table }

// StartSession joins roomName and begins handling the call. Starting a room
// that already has a session is a no-op; webhooks are delivered at least once.
func (d *Dispatcher) StartSession(ctx context.Context, roomName string) error {
	if roomName == "" {
		return errors.New("agent: room name is required")
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.New("agent: dispatcher is closed")
	}
	if _, ok := d.sessions[roomName]; ok {
		d.mu.Unlock()
		return nil
	}
	s := &liveSession{
		roomName:    roomName,
		startedAt:   time.Now().UTC(),
		stopRefresh: make(chan struct{}),
	}
	d.sessions[roomName] = s
	d.mu.Unlock()

	if err := d.acquireSlot(ctx, s); err != nil {
		d.drop(roomName)
		return err
	}

	cfg := d.deps.Config
	s.speaker = speech.NewRealtimeSpeaker()
	router, err := session.New(roomName, session.Deps{
		Table:   d.table,
		Speaker: s.speaker,
		Transfers: telephony.NewLiveKitTransferClient(telephony.LiveKitCredentials{
			URL:       cfg.LiveKit.URL,
			APIKey:    cfg.LiveKit.APIKey,
			APISecret: cfg.LiveKit.APISecret,
		}),
		Observer:    &transferObserver{d: d, s: s},
		Company:     cfg.App.CompanyName,
		GracePeriod: cfg.Routing.GracePeriod,
		Log:         d.log.With("room", roomName),
	})
	if err != nil {
		d.releaseSlot(s)
		d.drop(roomName)
		return err
	}
	s.router = router

	room, err := d.connectFn(ctx, s)
	if err != nil {
		router.Shutdown()
		d.releaseSlot(s)
		d.drop(roomName)
		return err
	}
	s.room = room

	d.register(ctx, s)
	go d.refreshLoop(s)

	d.log.Info("session started", "room", roomName)
	return nil
}

// EndSession tears down the session for roomName, if any. Safe to call for
// unknown rooms and safe to call more than once.
func (d *Dispatcher) EndSession(roomName string) {
	d.mu.Lock()
	s := d.sessions[roomName]
	delete(d.sessions, roomName)
	d.mu.Unlock()
	if s == nil {
		return
	}
	d.teardown(s)
}

// Active returns a snapshot of live sessions on this instance.
func (d *Dispatcher) Active() []SessionInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]SessionInfo, 0, len(d.sessions))
	for _, s := range d.sessions {
		info := SessionInfo{
			RoomName:  s.roomName,
			StartedAt: s.startedAt,
		}
		if s.router != nil {
			info.State = s.router.State()
		}
		s.mu.Lock()
		info.ParticipantIdentity = s.participant
		s.mu.Unlock()
		out = append(out, info)
	}
	return out
}

// Close ends every live session. Used on shutdown.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	sessions := make([]*liveSession, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
	}
	d.sessions = make(map[string]*liveSession)
	d.mu.Unlock()

	for _, s := range sessions {
		d.teardown(s)
	}
}

// participantJoined runs on the room callback thread. The first remote
// participant is the caller; that is when the call record opens.
func (d *Dispatcher) participantJoined(ctx context.Context, s *liveSession, identity string) {
	if identity == agentIdentity {
		return
	}
	s.router.ParticipantJoined(identity)

	s.mu.Lock()
	first := s.participant == ""
	if first {
		s.participant = identity
	}
	s.mu.Unlock()
	if !first {
		return
	}

	if d.deps.Calls != nil {
		callID, err := d.deps.Calls.CallStarted(context.WithoutCancel(ctx), s.roomName, identity)
		if err != nil {
			d.log.Error("call log open failed", "room", s.roomName, "err", err)
		} else {
			s.mu.Lock()
			s.callID = callID
			s.mu.Unlock()
		}
	}
	d.register(ctx, s)
}

func (d *Dispatcher) teardown(s *liveSession) {
	s.stopOnce.Do(func() {
		close(s.stopRefresh)
		if s.router != nil {
			s.router.Shutdown()
		}
		if s.room != nil {
			s.room.Disconnect()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if d.deps.Registry != nil {
			if err := d.deps.Registry.Remove(ctx, s.roomName); err != nil {
				d.log.Error("registry remove failed", "room", s.roomName, "err", err)
			}
		}
		d.releaseSlot(s)

		s.mu.Lock()
		callID := s.callID
		s.mu.Unlock()
		if d.deps.Calls != nil && callID != "" {
			outcome := calllog.OutcomeHangup
			if s.router != nil && s.router.Transferred() {
				outcome = calllog.OutcomeTransferred
			}
			if err := d.deps.Calls.CallEnded(ctx, callID, outcome); err != nil {
				d.log.Error("call log close failed", "room", s.roomName, "err", err)
			}
		}
		d.log.Info("session torn down", "room", s.roomName)
	})
}

// drop removes a reservation that never became a live session.
func (d *Dispatcher) drop(roomName string) {
	d.mu.Lock()
	delete(d.sessions, roomName)
	d.mu.Unlock()
}

func (d *Dispatcher) acquireSlot(ctx context.Context, s *liveSession) error {
	limit := d.deps.Config.Routing.MaxConcurrentCalls
	if d.deps.Registry == nil || limit <= 0 {
		return nil
	}
	ok, err := d.deps.Registry.AcquireSlot(ctx, limit)
	if err != nil {
		// Redis being down must not drop calls; the cap is best effort.
		d.log.Error("slot acquire failed, admitting call", "room", s.roomName, "err", err)
		return nil
	}
	if !ok {
		return ErrAtCapacity
	}
	s.hasSlot = true
	return nil
}

func (d *Dispatcher) releaseSlot(s *liveSession) {
	if !s.hasSlot || d.deps.Registry == nil {
		return
	}
	s.hasSlot = false
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.deps.Registry.ReleaseSlot(ctx); err != nil {
		d.log.Error("slot release failed", "room", s.roomName, "err", err)
	}
}

func (d *Dispatcher) register(ctx context.Context, s *liveSession) {
	if d.deps.Registry == nil {
		return
	}
	s.mu.Lock()
	entry := registry.Entry{
		RoomName:            s.roomName,
		ParticipantIdentity: s.participant,
		StartedAt:           s.startedAt,
	}
	s.mu.Unlock()
	if err := d.deps.Registry.Put(context.WithoutCancel(ctx), entry); err != nil {
		d.log.Error("registry put failed", "room", s.roomName, "err", err)
	}
}

func (d *Dispatcher) refreshLoop(s *liveSession) {
	t := time.NewTicker(registryRefresh)
	defer t.Stop()
	for {
		select {
		case <-s.stopRefresh:
			return
		case <-t.C:
			d.register(context.Background(), s)
		}
	}
}

// transferObserver forwards transfer outcomes to the call log.
type transferObserver struct {
	d *Dispatcher
	s *liveSession
}

func (o *transferObserver) TransferAttempted(ctx context.Context, route routing.Route, transferErr error) {
	if o.d.deps.Calls == nil {
		return
	}
	o.s.mu.Lock()
	callID := o.s.callID
	o.s.mu.Unlock()
	if callID == "" {
		return
	}
	// Outlive the session context so a shutdown race cannot lose the record.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.d.deps.Calls.TransferAttempted(logCtx, callID, route.Signal, route.Label, route.Destination, transferErr); err != nil {
		o.d.log.Error("transfer attempt log failed", "room", o.s.roomName, "err", err)
	}
}
