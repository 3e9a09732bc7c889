package routing

import (
	"fmt"
	"strings"

	"phone-assistant/internal/speech"
)

// Announcement policy: pure functions mapping routing events to the messages
// spoken to the caller. Every announcement requires voice; the caller has no
// visual channel.

// Greeting enumerates each route's signal and label in table order and invites
// free-form speech.
func Greeting(company string, routes []Route) speech.Announcement {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi, thanks for calling %s! ", company)
	for i, r := range routes {
		switch {
		case i == 0:
			fmt.Fprintf(&b, "You can press %s for %s", r.Signal, r.Label)
		case i == len(routes)-1:
			fmt.Fprintf(&b, ", or %s for %s", r.Signal, r.Label)
		default:
			fmt.Fprintf(&b, ", %s for %s", r.Signal, r.Label)
		}
	}
	b.WriteString(". You can also just talk to me.")
	return speech.Announcement{Text: b.String(), MustUseVoice: true}
}

// PreTransferNotice is spoken before the transfer begins; the orchestrator
// guarantees a grace period after it so the message is not cut off by the
// session teardown a transfer causes.
func PreTransferNotice(r Route) speech.Announcement {
	return speech.Announcement{
		Text:         fmt.Sprintf("Transferring you to our %s department in a moment. Please hold.", r.Label),
		MustUseVoice: true,
	}
}

// InvalidSignalNotice re-prompts after a keypad press with no matching route.
func InvalidSignalNotice() speech.Announcement {
	return speech.Announcement{
		Text:         "I'm sorry, please choose one of the options I mentioned earlier.",
		MustUseVoice: true,
	}
}

// TransferFailureNotice re-offers help; the caller is still connected after a
// failed transfer and must never be left in silence.
func TransferFailureNotice() speech.Announcement {
	return speech.Announcement{
		Text:         "I'm sorry, I couldn't transfer your call. Is there something else I can help with?",
		MustUseVoice: true,
	}
}
