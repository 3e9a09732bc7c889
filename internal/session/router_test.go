package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"phone-assistant/internal/config"
	"phone-assistant/internal/routing"
	"phone-assistant/internal/speech"
	"phone-assistant/internal/telephony"
)

type stubSpeaker struct {
	mu   sync.Mutex
	said []speech.Announcement
}

func (s *stubSpeaker) Say(ctx context.Context, a speech.Announcement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.said = append(s.said, a)
	return nil
}

func (s *stubSpeaker) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.said))
	for i, a := range s.said {
		out[i] = a.Text
	}
	return out
}

type stubTransfers struct {
	mu     sync.Mutex
	calls  []telephony.TransferRequest
	err    error
	block  chan struct{} // when set, Transfer waits until it is closed
	closed int
}

func (s *stubTransfers) Transfer(ctx context.Context, req telephony.TransferRequest) error {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	block := s.block
	err := s.err
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *stubTransfers) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *stubTransfers) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type recordingObserver struct {
	mu       sync.Mutex
	attempts []error
}

func (o *recordingObserver) TransferAttempted(ctx context.Context, route routing.Route, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, err)
}

type fixture struct {
	router    *Router
	speaker   *stubSpeaker
	transfers *stubTransfers
	observer  *recordingObserver

	mu     sync.Mutex
	sleeps []time.Duration
}

func newFixture(t *testing.T, grace time.Duration, transferErr error) *fixture {
	t.Helper()

	tbl, err := routing.NewTable([]config.Department{
		{Signal: "1", Label: "Billing", Number: "+12345678901"},
		{Signal: "2", Label: "Tech Support", Number: "+19999999999"},
	})
	if err != nil {
		t.Fatalf("table: %v", err)
	}

	f := &fixture{
		speaker:   &stubSpeaker{},
		transfers: &stubTransfers{err: transferErr},
		observer:  &recordingObserver{},
	}
	f.router, err = New("support-room", Deps{
		Table:       tbl,
		Speaker:     f.speaker,
		Transfers:   f.transfers,
		Observer:    f.observer,
		Company:     "Vandelay Industries",
		GracePeriod: grace,
		Sleep: func(ctx context.Context, d time.Duration) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f.mu.Lock()
			f.sleeps = append(f.sleeps, d)
			f.mu.Unlock()
			return nil
		},
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	t.Cleanup(f.router.Shutdown)
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestJoinGreetsAndActivates(t *testing.T) {
	f := newFixture(t, 6*time.Second, nil)

	f.router.ParticipantJoined("caller-1")
	if got := f.router.State(); got != StateActive {
		t.Fatalf("expected active, got %q", got)
	}
	waitFor(t, "greeting", func() bool { return len(f.speaker.texts()) == 1 })

	greeting := f.speaker.texts()[0]
	for _, want := range []string{"1 for Billing", "2 for Tech Support"} {
		if !strings.Contains(greeting, want) {
			t.Fatalf("greeting missing %q: %q", want, greeting)
		}
	}

	// A second join notification must not restart the lifecycle.
	f.router.ParticipantJoined("caller-2")
	if got := f.router.Participant(); got != "caller-1" {
		t.Fatalf("expected caller-1 kept, got %q", got)
	}
}

func TestValidSignalTransfersAfterGracePeriod(t *testing.T) {
	f := newFixture(t, 6*time.Second, nil)
	f.router.ParticipantJoined("caller-1")

	f.router.HandleSignal("1")
	waitFor(t, "transfer", func() bool { return f.transfers.callCount() == 1 })

	texts := f.speaker.texts()
	if len(texts) < 2 {
		t.Fatalf("expected greeting then notice, got %v", texts)
	}
	if !strings.Contains(texts[0], "thanks for calling") {
		t.Fatalf("greeting must precede routing responses, got first: %q", texts[0])
	}
	if !strings.Contains(texts[1], "Billing") {
		t.Fatalf("pre-transfer notice should mention Billing, got %q", texts[1])
	}

	f.mu.Lock()
	sleeps := append([]time.Duration(nil), f.sleeps...)
	f.mu.Unlock()
	if len(sleeps) != 1 || sleeps[0] < 6*time.Second {
		t.Fatalf("expected one grace wait of at least 6s, got %v", sleeps)
	}

	f.transfers.mu.Lock()
	req := f.transfers.calls[0]
	f.transfers.mu.Unlock()
	if req.Destination != "+12345678901" {
		t.Fatalf("expected billing number, got %q", req.Destination)
	}
	if req.ParticipantIdentity != "caller-1" || req.RoomName != "support-room" {
		t.Fatalf("unexpected transfer request: %+v", req)
	}
	if !req.PlayDialtone {
		t.Fatalf("expected dialtone during transfer")
	}

	waitFor(t, "terminal state", func() bool { return f.router.State() == StateEnded })

	// Terminal state is idempotent: further signals are no-ops.
	f.router.HandleSignal("2")
	time.Sleep(20 * time.Millisecond)
	if f.transfers.callCount() != 1 {
		t.Fatalf("expected no transfer after end, got %d", f.transfers.callCount())
	}
}

func TestUnmappedSignalRepromptsWithoutTransfer(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	f.router.ParticipantJoined("caller-1")

	f.router.HandleSignal("9")
	waitFor(t, "invalid notice", func() bool { return len(f.speaker.texts()) == 2 })

	if got := f.speaker.texts()[1]; !strings.Contains(got, "sorry") {
		t.Fatalf("expected apology, got %q", got)
	}
	if f.transfers.callCount() != 0 {
		t.Fatalf("unmapped signal must never reach the transfer client")
	}
	if got := f.router.State(); got != StateActive {
		t.Fatalf("expected active after invalid input, got %q", got)
	}
}

func TestRejectedTransferRecoversToActive(t *testing.T) {
	rejectErr := &telephony.TransferError{Kind: telephony.ErrRejectedByPlatform}
	f := newFixture(t, time.Second, rejectErr)
	f.router.ParticipantJoined("caller-1")

	f.router.HandleSignal("2")
	waitFor(t, "failure notice", func() bool { return len(f.speaker.texts()) == 3 })

	if f.transfers.callCount() != 1 {
		t.Fatalf("expected exactly one attempt, got %d", f.transfers.callCount())
	}
	f.transfers.mu.Lock()
	dest := f.transfers.calls[0].Destination
	f.transfers.mu.Unlock()
	if dest != "+19999999999" {
		t.Fatalf("expected tech support number attempted, got %q", dest)
	}
	if got := f.speaker.texts()[2]; !strings.Contains(got, "couldn't transfer") {
		t.Fatalf("expected failure notice, got %q", got)
	}
	if got := f.router.State(); got != StateActive {
		t.Fatalf("expected active after failure, got %q", got)
	}

	f.observer.mu.Lock()
	attempts := len(f.observer.attempts)
	f.observer.mu.Unlock()
	if attempts != 1 {
		t.Fatalf("expected one observed attempt, got %d", attempts)
	}

	// The session handles a subsequent valid signal like a fresh Active one.
	f.transfers.mu.Lock()
	f.transfers.err = nil
	f.transfers.mu.Unlock()
	f.router.HandleSignal("1")
	waitFor(t, "second transfer", func() bool { return f.transfers.callCount() == 2 })
	waitFor(t, "terminal state", func() bool { return f.router.State() == StateEnded })
}

func TestSignalDuringTransferIsIgnored(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	f.transfers.block = make(chan struct{})
	f.router.ParticipantJoined("caller-1")

	f.router.HandleSignal("1")
	waitFor(t, "first transfer start", func() bool { return f.transfers.callCount() == 1 })

	// A second signal while Transferring must not race another transfer.
	f.router.HandleSignal("2")
	time.Sleep(20 * time.Millisecond)
	close(f.transfers.block)

	waitFor(t, "terminal state", func() bool { return f.router.State() == StateEnded })
	if f.transfers.callCount() != 1 {
		t.Fatalf("expected at most one transfer in flight, got %d", f.transfers.callCount())
	}
}

func TestShutdownIsIdempotentAndReleasesClient(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	f.router.ParticipantJoined("caller-1")

	f.router.Shutdown()
	f.router.Shutdown()

	f.transfers.mu.Lock()
	closed := f.transfers.closed
	f.transfers.mu.Unlock()
	if closed != 1 {
		t.Fatalf("expected exactly one client release, got %d", closed)
	}
	if got := f.router.State(); got != StateEnded {
		t.Fatalf("expected ended, got %q", got)
	}

	before := len(f.speaker.texts())
	f.router.HandleSignal("1")
	time.Sleep(20 * time.Millisecond)
	if f.transfers.callCount() != 0 {
		t.Fatalf("expected no transfer after shutdown")
	}
	if len(f.speaker.texts()) != before {
		t.Fatalf("expected no announcements after shutdown")
	}
}

func TestDisconnectMidTransferAbandonsQuietly(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	f.transfers.block = make(chan struct{})
	f.router.ParticipantJoined("caller-1")

	f.router.HandleSignal("1")
	waitFor(t, "transfer start", func() bool { return f.transfers.callCount() == 1 })

	// Shutdown cancels the session context; the blocked transfer is
	// abandoned without panicking and cleanup still completes.
	done := make(chan struct{})
	go func() {
		f.router.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("shutdown did not settle with a transfer in flight")
	}
	if got := f.router.State(); got != StateEnded {
		t.Fatalf("expected ended, got %q", got)
	}
}

func TestSignalBeforeJoinIsIgnored(t *testing.T) {
	f := newFixture(t, time.Second, nil)

	f.router.HandleSignal("1")
	time.Sleep(20 * time.Millisecond)
	if f.transfers.callCount() != 0 {
		t.Fatalf("expected no transfer before a participant joined")
	}
	if got := f.router.State(); got != StateConnecting {
		t.Fatalf("expected connecting, got %q", got)
	}
}
