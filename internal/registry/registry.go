// Package registry tracks live sessions in Redis so the ops API can list
// active calls across agent instances.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"phone-assistant/pkg/utils"
)

const (
	keyPrefix = "agent:active:"
	slotKey   = "agent:slots"
)

// Entry describes one live session.
type Entry struct {
	RoomName            string    `json:"room_name"`
	ParticipantIdentity string    `json:"participant_identity,omitempty"`
	StartedAt           time.Time `json:"started_at"`
}

// ActiveCalls is a presence set of live sessions. Entries carry a TTL so a
// crashed agent instance cannot leak ghost sessions; the dispatcher refreshes
// them while the session lives.
type ActiveCalls struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewActiveCalls(rdb *redis.Client, ttl time.Duration) *ActiveCalls {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &ActiveCalls{rdb: rdb, ttl: ttl}
}

func key(roomName string) string { return keyPrefix + roomName }

// Put registers (or refreshes) a live session.
func (a *ActiveCalls) Put(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := a.rdb.Set(ctx, key(e.RoomName), payload, a.ttl).Err(); err != nil {
		return fmt.Errorf("registry: put %q: %w", e.RoomName, err)
	}
	return nil
}

// Remove drops a session. Removing an unknown room is not an error.
func (a *ActiveCalls) Remove(ctx context.Context, roomName string) error {
	if err := a.rdb.Del(ctx, key(roomName)).Err(); err != nil {
		return fmt.Errorf("registry: remove %q: %w", roomName, err)
	}
	return nil
}

// AcquireSlot takes one concurrent-call slot, shared across agent instances.
// It returns false when limit calls are already live.
func (a *ActiveCalls) AcquireSlot(ctx context.Context, limit int) (bool, error) {
	return utils.AcquireSlot(ctx, a.rdb, slotKey, limit, a.ttl)
}

// ReleaseSlot returns a slot taken by AcquireSlot.
func (a *ActiveCalls) ReleaseSlot(ctx context.Context) error {
	return utils.ReleaseSlot(ctx, a.rdb, slotKey)
}

// List returns all live sessions known to the registry.
func (a *ActiveCalls) List(ctx context.Context) ([]Entry, error) {
	var out []Entry
	iter := a.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := a.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				// Expired between SCAN and GET.
				continue
			}
			return nil, fmt.Errorf("registry: get %q: %w", iter.Val(), err)
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("registry: scan: %w", err)
	}
	return out, nil
}
