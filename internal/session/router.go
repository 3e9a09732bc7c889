// Package session owns the per-call lifecycle: one Router per room, driven by
// platform events, holding the only mutable state in the system.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"phone-assistant/internal/routing"
	"phone-assistant/internal/speech"
	"phone-assistant/internal/telephony"
)

type State string

const (
	StateConnecting   State = "connecting"
	StateActive       State = "active"
	StateTransferring State = "transferring"
	StateEnded        State = "ended"
)

// Observer is notified of transfer attempts. Implementations must be
// best-effort; the call flow never blocks on them.
type Observer interface {
	TransferAttempted(ctx context.Context, route routing.Route, err error)
}

// Deps are the collaborators behind the Router. Table, Speaker and Transfers
// are required.
type Deps struct {
	Table     *routing.Table
	Speaker   speech.Speaker
	Transfers telephony.TransferClient
	Observer  Observer

	Company     string
	GracePeriod time.Duration

	Log *slog.Logger

	// Sleep implements the grace-period wait; overridable in tests.
	// It must return early with an error when ctx is cancelled.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Router is the call-routing state machine for one session.
//
// Event handlers (ParticipantJoined, HandleSignal, Shutdown) only perform the
// state transition and enqueue work; the announcement/transfer sequences run
// on a single task loop, so within a session the greeting always precedes any
// routing response and at most one transfer is ever in flight.
type Router struct {
	roomName string

	table     *routing.Table
	speaker   speech.Speaker
	transfers telephony.TransferClient
	observer  Observer

	company string
	grace   time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	log     *slog.Logger

	mu          sync.Mutex
	state       State
	participant string
	pending     *routing.Route
	transferred bool

	ctx    context.Context
	cancel context.CancelFunc
	tasks  chan func(context.Context)
	done   chan struct{}

	closeOnce sync.Once
}

const defaultGracePeriod = 6 * time.Second

// taskBacklog bounds queued announcement/transfer sequences. A caller mashing
// the keypad should not grow the queue without limit; overflow is dropped.
const taskBacklog = 8

func New(roomName string, deps Deps) (*Router, error) {
	if deps.Table == nil {
		return nil, errors.New("session: routing table is required")
	}
	if deps.Speaker == nil {
		return nil, errors.New("session: speaker is required")
	}
	if deps.Transfers == nil {
		return nil, errors.New("session: transfer client is required")
	}
	if deps.GracePeriod <= 0 {
		deps.GracePeriod = defaultGracePeriod
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepCtx
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		roomName:  roomName,
		table:     deps.Table,
		speaker:   deps.Speaker,
		transfers: deps.Transfers,
		observer:  deps.Observer,
		company:   deps.Company,
		grace:     deps.GracePeriod,
		sleep:     deps.Sleep,
		log:       deps.Log.With("room", roomName),
		state:     StateConnecting,
		ctx:       ctx,
		cancel:    cancel,
		tasks:     make(chan func(context.Context), taskBacklog),
		done:      make(chan struct{}),
	}
	go r.loop()
	return r, nil
}

func (r *Router) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			return
		case fn := <-r.tasks:
			fn(r.ctx)
		}
	}
}

func (r *Router) enqueue(fn func(context.Context)) {
	select {
	case r.tasks <- fn:
	default:
		r.log.Warn("task backlog full, dropping routing task")
	}
}

// State reports the current lifecycle state.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Participant reports the remote party eligible for transfer, if one joined.
func (r *Router) Participant() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participant
}

// ParticipantJoined moves the session to Active and issues the greeting.
// The greeting plays in the background; the session accepts input meanwhile.
func (r *Router) ParticipantJoined(identity string) {
	r.mu.Lock()
	if r.state != StateConnecting {
		r.mu.Unlock()
		return
	}
	r.state = StateActive
	r.participant = identity
	r.mu.Unlock()

	r.log.Info("participant joined", "identity", identity)
	greeting := routing.Greeting(r.company, r.table.Routes())
	r.enqueue(func(ctx context.Context) { r.say(ctx, greeting) })
}

// HandleSignal routes one decoded DTMF digit.
//
// Resolved signal: Active -> Transferring, then notice + grace wait + transfer
// on the task loop. Unresolved: invalid-input notice, state unchanged.
// Signals received while Transferring or after Ended are dropped.
func (r *Router) HandleSignal(digit string) {
	r.mu.Lock()
	switch r.state {
	case StateActive:
	case StateTransferring:
		r.mu.Unlock()
		r.log.Info("signal ignored, transfer in flight", "digit", digit)
		return
	default:
		r.mu.Unlock()
		r.log.Info("signal ignored", "digit", digit, "state", string(r.State()))
		return
	}

	route, ok := r.table.Resolve(digit)
	if !ok {
		r.mu.Unlock()
		r.log.Info("unresolved signal", "digit", digit)
		r.enqueue(func(ctx context.Context) { r.say(ctx, routing.InvalidSignalNotice()) })
		return
	}

	r.state = StateTransferring
	r.pending = &route
	participant := r.participant
	r.mu.Unlock()

	r.log.Info("signal routed", "digit", digit, "department", route.Label)
	r.enqueue(func(ctx context.Context) { r.runTransfer(ctx, participant, route) })
}

func (r *Router) runTransfer(ctx context.Context, participant string, route routing.Route) {
	r.say(ctx, routing.PreTransferNotice(route))

	// Grace period so the notice is not cut off by the teardown the
	// transfer causes. Shutdown cancels the wait and abandons the transfer.
	if err := r.sleep(ctx, r.grace); err != nil {
		r.log.Info("transfer abandoned during grace period", "department", route.Label)
		return
	}

	err := r.transfers.Transfer(ctx, telephony.TransferRequest{
		RoomName:            r.roomName,
		ParticipantIdentity: participant,
		Destination:         route.Destination,
		PlayDialtone:        true,
	})
	if r.observer != nil {
		r.observer.TransferAttempted(ctx, route, err)
	}

	if err != nil {
		r.log.Error("transfer failed", "department", route.Label, "err", err)
		r.mu.Lock()
		if r.state == StateTransferring {
			r.state = StateActive
			r.pending = nil
		}
		r.mu.Unlock()
		r.say(ctx, routing.TransferFailureNotice())
		return
	}

	r.log.Info("transfer succeeded", "department", route.Label)
	r.mu.Lock()
	if r.state == StateTransferring {
		// The platform owns the call now.
		r.state = StateEnded
		r.pending = nil
		r.transferred = true
	}
	r.mu.Unlock()
}

// Transferred reports whether the caller was handed off to a department.
func (r *Router) Transferred() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transferred
}

// say renders one announcement. Announcements become no-ops once the session
// has ended; the caller is no longer reachable.
func (r *Router) say(ctx context.Context, a speech.Announcement) {
	r.mu.Lock()
	ended := r.state == StateEnded
	r.mu.Unlock()
	if ended || ctx.Err() != nil {
		return
	}
	if err := r.speaker.Say(ctx, a); err != nil {
		r.log.Error("announcement failed", "err", err)
	}
}

// Shutdown enters the terminal state, waits for the in-flight sequence to
// settle and releases the transfer client. It is idempotent; repeated
// disconnect notifications are no-ops.
func (r *Router) Shutdown() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.state = StateEnded
		r.pending = nil
		r.mu.Unlock()

		r.cancel()
		<-r.done

		if err := r.transfers.Close(); err != nil {
			r.log.Error("transfer client close failed", "err", err)
		}
		r.log.Info("session ended")
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
