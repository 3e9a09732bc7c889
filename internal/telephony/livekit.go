package telephony

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// LiveKitCredentials identify the LiveKit project used for transfers.
type LiveKitCredentials struct {
	URL       string
	APIKey    string
	APISecret string
}

// LiveKitTransferClient executes SIP transfers through the LiveKit API.
//
// The underlying SIP client is built on first use and reused for the lifetime
// of the session. After Close, every Transfer reports PlatformUnavailable.
type LiveKitTransferClient struct {
	creds LiveKitCredentials

	mu     sync.Mutex
	sip    *lksdk.SIPClient
	closed bool
}

func NewLiveKitTransferClient(creds LiveKitCredentials) *LiveKitTransferClient {
	return &LiveKitTransferClient{creds: creds}
}

func (c *LiveKitTransferClient) client() (*lksdk.SIPClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("client is closed")
	}
	if c.sip != nil {
		return c.sip, nil
	}
	if c.creds.URL == "" || c.creds.APIKey == "" || c.creds.APISecret == "" {
		return nil, errors.New("missing LiveKit credentials")
	}
	c.sip = lksdk.NewSIPClient(c.creds.URL, c.creds.APIKey, c.creds.APISecret)
	return c.sip, nil
}

func (c *LiveKitTransferClient) Transfer(ctx context.Context, req TransferRequest) error {
	sip, err := c.client()
	if err != nil {
		return unavailable(err)
	}

	_, err = sip.TransferSIPParticipant(ctx, &livekit.TransferSIPParticipantRequest{
		ParticipantIdentity: req.ParticipantIdentity,
		RoomName:            req.RoomName,
		TransferTo:          TelURI(req.Destination),
		PlayDialtone:        req.PlayDialtone,
	})
	if err != nil {
		// The client was reachable; the platform refused or failed the
		// transfer itself.
		return rejected(err)
	}
	return nil
}

func (c *LiveKitTransferClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// The SIP client is HTTP-based and holds no connection, but dropping the
	// handle here makes release explicit and repeat-safe.
	c.sip = nil
	c.closed = true
	return nil
}

// TelURI normalizes a bare phone number to the tel: form the SIP bridge
// expects. Destinations that already carry a scheme pass through unchanged.
func TelURI(destination string) string {
	d := strings.TrimSpace(destination)
	if d == "" {
		return d
	}
	lower := strings.ToLower(d)
	if strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "sip:") {
		return d
	}
	return "tel:" + d
}
