package telephony

import (
	"context"
	"errors"
	"testing"
)

func TestTransfer_MissingCredentialsIsPlatformUnavailable(t *testing.T) {
	c := NewLiveKitTransferClient(LiveKitCredentials{})
	err := c.Transfer(context.Background(), TransferRequest{
		RoomName:            "room",
		ParticipantIdentity: "caller",
		Destination:         "+12345678901",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	var te *TransferError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransferError, got %T", err)
	}
	if te.Kind != ErrPlatformUnavailable {
		t.Fatalf("expected platform_unavailable, got %q", te.Kind)
	}
}

func TestTransfer_AfterCloseIsPlatformUnavailable(t *testing.T) {
	c := NewLiveKitTransferClient(LiveKitCredentials{URL: "https://x", APIKey: "k", APISecret: "s"})
	if err := c.Close(); err != nil {
		t.Fatalf("unexpected close err: %v", err)
	}
	// Close is repeat-safe.
	if err := c.Close(); err != nil {
		t.Fatalf("unexpected second close err: %v", err)
	}

	err := c.Transfer(context.Background(), TransferRequest{Destination: "+1"})
	var te *TransferError
	if !errors.As(err, &te) || te.Kind != ErrPlatformUnavailable {
		t.Fatalf("expected platform_unavailable after close, got %v", err)
	}
}

func TestTelURI(t *testing.T) {
	cases := map[string]string{
		"+12345678901":        "tel:+12345678901",
		" +12345678901 ":      "tel:+12345678901",
		"tel:+12345678901":    "tel:+12345678901",
		"sip:agent@pbx.local": "sip:agent@pbx.local",
		"":                    "",
	}
	for in, want := range cases {
		if got := TelURI(in); got != want {
			t.Fatalf("TelURI(%q) = %q, want %q", in, got, want)
		}
	}
}
