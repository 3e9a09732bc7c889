package calllog

import "time"

// CallRecord is an append-only record of one handled session.
//
// Invariants:
// - Records are never deleted; EndCall only fills ended_at/outcome.
// - Logging is best-effort; call handling never blocks on it.
//
// Storage recommendation (Postgres):
//
//	CREATE TABLE call_records (
//	    id                   text PRIMARY KEY,
//	    room_name            text NOT NULL,
//	    participant_identity text NOT NULL DEFAULT '',
//	    started_at           timestamptz NOT NULL,
//	    ended_at             timestamptz,
//	    outcome              text NOT NULL
//	);
//	CREATE TABLE transfer_attempts (
//	    id           text PRIMARY KEY,
//	    call_id      text NOT NULL REFERENCES call_records (id),
//	    signal       text NOT NULL,
//	    label        text NOT NULL,
//	    destination  text NOT NULL,
//	    succeeded    boolean NOT NULL,
//	    error_kind   text NOT NULL DEFAULT '',
//	    attempted_at timestamptz NOT NULL
//	);
type CallRecord struct {
	ID                  string     `json:"id" db:"id"`
	RoomName            string     `json:"room_name" db:"room_name"`
	ParticipantIdentity string     `json:"participant_identity,omitempty" db:"participant_identity"`
	StartedAt           time.Time  `json:"started_at" db:"started_at"`
	EndedAt             *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	Outcome             Outcome    `json:"outcome" db:"outcome"`
}

type Outcome string

const (
	OutcomeInProgress  Outcome = "in_progress"
	OutcomeTransferred Outcome = "transferred"
	OutcomeHangup      Outcome = "hangup"
)

// TransferAttempt records one invocation of the transfer platform.
type TransferAttempt struct {
	ID          string    `json:"id" db:"id"`
	CallID      string    `json:"call_id" db:"call_id"`
	Signal      string    `json:"signal" db:"signal"`
	Label       string    `json:"label" db:"label"`
	Destination string    `json:"destination" db:"destination"`
	Succeeded   bool      `json:"succeeded" db:"succeeded"`
	ErrorKind   string    `json:"error_kind,omitempty" db:"error_kind"`
	AttemptedAt time.Time `json:"attempted_at" db:"attempted_at"`
}
