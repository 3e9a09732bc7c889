package speech

import (
	"context"
	"encoding/json"
	"sync"

	lksdk "github.com/livekit/server-sdk-go/v2"
)

// SayTopic is the data-packet topic the realtime voice model listens on.
const SayTopic = "assistant.say"

// sayInstruction is the payload published to the voice model. The instruction
// prefix matters: without it the model may answer with text, which is useless
// on a phone call.
type sayInstruction struct {
	Instruction string `json:"instruction"`
	Voice       bool   `json:"voice"`
}

const voicePrefix = "Using your voice to respond, please say: "

// RealtimeSpeaker forwards announcements to the in-room realtime voice model
// over a reliable data packet. The room handle is attached once the room
// connection is established; Say blocks until then, so an announcement queued
// while the connection settles is spoken rather than dropped.
type RealtimeSpeaker struct {
	mu       sync.Mutex
	room     *lksdk.Room
	attached chan struct{}
}

func NewRealtimeSpeaker() *RealtimeSpeaker {
	return &RealtimeSpeaker{attached: make(chan struct{})}
}

func (s *RealtimeSpeaker) Attach(room *lksdk.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room != nil {
		return
	}
	s.room = room
	close(s.attached)
}

func (s *RealtimeSpeaker) Say(ctx context.Context, a Announcement) error {
	select {
	case <-s.attached:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	room := s.room
	s.mu.Unlock()

	text := a.Text
	if a.MustUseVoice {
		text = voicePrefix + text
	}
	payload, err := json.Marshal(sayInstruction{Instruction: text, Voice: a.MustUseVoice})
	if err != nil {
		return err
	}

	return room.LocalParticipant.PublishDataPacket(
		lksdk.UserData(payload),
		lksdk.WithDataPublishTopic(SayTopic),
		lksdk.WithDataPublishReliable(true),
	)
}
