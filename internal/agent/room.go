package agent

import (
	"context"
	"fmt"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// connect joins the room as the assistant and wires room events into the
// session router. DTMF arrives as SipDTMF data packets from the telephony
// bridge; each digit is one routing signal.
func (d *Dispatcher) connect(ctx context.Context, s *liveSession) (*lksdk.Room, error) {
	cb := &lksdk.RoomCallback{
		OnParticipantConnected: func(p *lksdk.RemoteParticipant) {
			d.participantJoined(context.Background(), s, p.Identity())
		},
		OnParticipantDisconnected: func(p *lksdk.RemoteParticipant) {
			// Rooms hold one caller; the caller leaving ends the session.
			if p.Identity() != agentIdentity {
				go d.EndSession(s.roomName)
			}
		},
		OnDisconnected: func() {
			go d.EndSession(s.roomName)
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnDataPacket: func(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
				dtmf, ok := data.(*livekit.SipDTMF)
				if !ok {
					return
				}
				digit := dtmf.Digit
				if digit == "" {
					digit = fmt.Sprintf("%d", dtmf.Code)
				}
				s.router.HandleSignal(digit)
			},
		},
	}

	cfg := d.deps.Config.LiveKit
	room, err := lksdk.ConnectToRoom(cfg.URL, lksdk.ConnectInfo{
		APIKey:              cfg.APIKey,
		APISecret:           cfg.APISecret,
		RoomName:            s.roomName,
		ParticipantIdentity: agentIdentity,
		ParticipantName:     agentIdentity,
	}, cb)
	if err != nil {
		return nil, fmt.Errorf("agent: join room %q: %w", s.roomName, err)
	}

	s.speaker.Attach(room)

	// The caller may have joined before we did.
	for _, p := range room.GetRemoteParticipants() {
		d.participantJoined(ctx, s, p.Identity())
	}
	return room, nil
}
