package calllog

import (
	"context"
	"testing"
	"time"

	"phone-assistant/internal/telephony"
)

func TestService_CallLifecycle(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	now := time.Unix(1700000000, 0).UTC()
	svc.clock = func() time.Time { return now }

	id, err := svc.CallStarted(context.Background(), "support-room", "caller-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	recs, err := svc.RecentCalls(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(recs) != 1 || recs[0].Outcome != OutcomeInProgress {
		t.Fatalf("expected one in-progress call, got %+v", recs)
	}

	if err := svc.CallEnded(context.Background(), id, OutcomeTransferred); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	recs, _ = svc.RecentCalls(context.Background(), 10)
	if recs[0].Outcome != OutcomeTransferred || recs[0].EndedAt == nil {
		t.Fatalf("expected finished transferred call, got %+v", recs[0])
	}
}

func TestService_EndWithoutOutcomeDefaultsToHangup(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	id, err := svc.CallStarted(context.Background(), "room", "")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.CallEnded(context.Background(), id, ""); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	recs, _ := svc.RecentCalls(context.Background(), 1)
	if recs[0].Outcome != OutcomeHangup {
		t.Fatalf("expected hangup outcome, got %q", recs[0].Outcome)
	}
}

func TestService_TransferAttemptedClassifiesErrors(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	id, err := svc.CallStarted(context.Background(), "room", "caller")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	rejected := &telephony.TransferError{Kind: telephony.ErrRejectedByPlatform}
	if err := svc.TransferAttempted(context.Background(), id, "2", "Tech Support", "+19999999999", rejected); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.TransferAttempted(context.Background(), id, "1", "Billing", "+12345678901", nil); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	attempts, err := svc.AttemptsForCall(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].Succeeded || attempts[0].ErrorKind != string(telephony.ErrRejectedByPlatform) {
		t.Fatalf("expected failed rejected attempt, got %+v", attempts[0])
	}
	if !attempts[1].Succeeded || attempts[1].ErrorKind != "" {
		t.Fatalf("expected successful attempt, got %+v", attempts[1])
	}
}

func TestService_RequiresCallID(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if err := svc.TransferAttempted(context.Background(), "", "1", "Billing", "+1", nil); err == nil {
		t.Fatalf("expected error for missing call id")
	}
	if _, err := svc.CallStarted(context.Background(), "", ""); err == nil {
		t.Fatalf("expected error for missing room")
	}
}
