// Package notify delivers templated messages to members.
//
// Delivery is best-effort from the caller's point of view: the engine
// commits its state changes first, then sends, and only logs failures.
package notify

import (
	"context"
	"fmt"
)

// TemplateID names a message template.
type TemplateID string

const (
	MatchFound               TemplateID = "MATCH_FOUND"
	MatchingAutoFailedReject TemplateID = "MATCHING_AUTO_FAILED_REJECT"
	MatchingAutoFailedDenied TemplateID = "MATCHING_AUTO_FAILED_DENIED"
	MatchingWithdrawnDenied  TemplateID = "MATCHING_WITHDRAWN_DENIED"
	MatchingCompleted        TemplateID = "MATCHING_COMPLETED"
)

var templates = map[TemplateID]string{
	MatchFound:               "[Study Buddy] We found you a study buddy. Please accept or decline the match before it expires.",
	MatchingAutoFailedReject: "[Study Buddy] Your match was cancelled because you did not respond in time. A penalty has been applied.",
	MatchingAutoFailedDenied: "[Study Buddy] Your match was cancelled because your partner did not respond in time. You can request a new buddy.",
	MatchingWithdrawnDenied:  "[Study Buddy] Your match was cancelled because your partner withdrew. You can request a new buddy.",
	MatchingCompleted:        "[Study Buddy] Both of you accepted. Your study buddy match is confirmed.",
}

// Render returns the message text for a template.
func Render(id TemplateID) (string, error) {
	text, ok := templates[id]
	if !ok {
		return "", fmt.Errorf("unknown template %q", id)
	}
	return text, nil
}

// Recipient identifies who a message goes to.
type Recipient struct {
	MemberID string
	Phone    string
}

// Gateway delivers one templated message.
type Gateway interface {
	Send(ctx context.Context, to Recipient, template TemplateID) error
}
