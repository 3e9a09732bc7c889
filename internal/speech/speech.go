// Package speech defines the voice-rendering boundary.
//
// The agent never synthesizes audio itself; announcements are handed to the
// realtime voice model already present in the room.
package speech

import "context"

// Announcement is one message to render to the caller.
type Announcement struct {
	Text string

	// MustUseVoice requires audible speech. Callers are on a phone line with
	// no visual channel, so every announcement in this system sets it.
	MustUseVoice bool
}

// Speaker renders announcements to the connected participant.
//
// Say must be bounded by ctx; it must not block indefinitely.
type Speaker interface {
	Say(ctx context.Context, a Announcement) error
}
