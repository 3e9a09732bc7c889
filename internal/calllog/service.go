package calllog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"phone-assistant/internal/telephony"
)

// Repository is the persistence contract for call records.
//
// It MUST be append-only for attempts; calls are created once and finished
// once. No delete methods are provided by design.
type Repository interface {
	CreateCall(ctx context.Context, rec CallRecord) error
	FinishCall(ctx context.Context, callID string, endedAt time.Time, outcome Outcome) error
	AppendAttempt(ctx context.Context, a TransferAttempt) error

	RecentCalls(ctx context.Context, limit int) ([]CallRecord, error)
	AttemptsForCall(ctx context.Context, callID string) ([]TransferAttempt, error)
}

// Service logs handled calls and transfer attempts.
//
// Callers should treat it as best-effort: an unreachable call log must never
// break call handling, so errors are returned for the caller to log, not act on.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidRecord = errors.New("calllog: invalid record")

// CallStarted opens a record for a new session and returns its ID.
func (s *Service) CallStarted(ctx context.Context, roomName, participantIdentity string) (string, error) {
	if s.repo == nil {
		return "", errors.New("calllog: repository not configured")
	}
	if roomName == "" {
		return "", ErrInvalidRecord
	}
	rec := CallRecord{
		ID:                  uuid.NewString(),
		RoomName:            roomName,
		ParticipantIdentity: participantIdentity,
		StartedAt:           s.clock().UTC(),
		Outcome:             OutcomeInProgress,
	}
	if err := s.repo.CreateCall(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *Service) CallEnded(ctx context.Context, callID string, outcome Outcome) error {
	if s.repo == nil {
		return errors.New("calllog: repository not configured")
	}
	if callID == "" {
		return ErrInvalidRecord
	}
	if outcome == "" || outcome == OutcomeInProgress {
		outcome = OutcomeHangup
	}
	return s.repo.FinishCall(ctx, callID, s.clock().UTC(), outcome)
}

// TransferAttempted records one platform invocation, successful or not.
func (s *Service) TransferAttempted(ctx context.Context, callID, signal, label, destination string, transferErr error) error {
	if s.repo == nil {
		return errors.New("calllog: repository not configured")
	}
	if callID == "" {
		return ErrInvalidRecord
	}
	a := TransferAttempt{
		ID:          uuid.NewString(),
		CallID:      callID,
		Signal:      signal,
		Label:       label,
		Destination: destination,
		Succeeded:   transferErr == nil,
		AttemptedAt: s.clock().UTC(),
	}
	var te *telephony.TransferError
	if errors.As(transferErr, &te) {
		a.ErrorKind = string(te.Kind)
	} else if transferErr != nil {
		a.ErrorKind = "unknown"
	}
	return s.repo.AppendAttempt(ctx, a)
}

func (s *Service) RecentCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	if s.repo == nil {
		return nil, errors.New("calllog: repository not configured")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.RecentCalls(ctx, limit)
}

func (s *Service) AttemptsForCall(ctx context.Context, callID string) ([]TransferAttempt, error) {
	if s.repo == nil {
		return nil, errors.New("calllog: repository not configured")
	}
	return s.repo.AttemptsForCall(ctx, callID)
}
