// Package notification renders claim events for humans and ships them to the log.
package notification

import (
	"fmt"
	"strings"

	"github.com/garyjia/claim-review/internal/domain/event"
)

var headlines = map[event.Type]string{
	event.TypeClaimSubmitted:     "Claim %s was submitted",
	event.TypeClaimApproved:      "Claim %s was approved",
	event.TypeClaimRejected:      "Claim %s was rejected",
	event.TypeClaimInfoRequested: "More information is needed for claim %s",
	event.TypeClaimResubmitted:   "Claim %s was resubmitted",
	event.TypeClaimPartial:       "Claim %s received an approval and awaits another reviewer",
	event.TypeClaimEscalated:     "Claim %s was escalated",
	event.TypeClaimAssigned:      "Claim %s is waiting for your review",
	event.TypeClaimFlagged:       "Claim %s was flagged for review",
}

// Render formats an event as a short plain-text message
func Render(evt *event.Event) string {
	format, ok := headlines[evt.Type]
	if !ok {
		format = "Claim %s: " + evt.Type.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, format, evt.ClaimID)

	if amount := evt.GetPayloadString(event.KeyAmount); amount != "" {
		fmt.Fprintf(&b, "\nAmount: %s %s", amount, evt.GetPayloadString(event.KeyCurrency))
	}
	if _, ok := evt.Payload[event.KeyFraudScore]; ok {
		fmt.Fprintf(&b, "\nRisk score: %d", evt.GetPayloadInt(event.KeyFraudScore))
	}
	if actor := evt.GetPayloadString(event.KeyActor); actor != "" {
		fmt.Fprintf(&b, "\nBy: %s", actor)
	}
	if evt.Type == event.TypeClaimEscalated {
		fmt.Fprintf(&b, "\nLevel: %d, now with %s", evt.GetPayloadInt(event.KeyLevel), evt.GetPayloadString(event.KeyNewApprover))
	}
	if comment := evt.GetPayloadString(event.KeyComment); comment != "" {
		fmt.Fprintf(&b, "\nComment: %s", comment)
	}
	return b.String()
}
