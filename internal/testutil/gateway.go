package testutil

import (
	"context"
	"sync"

	"github.com/sejongpeer/studybuddy/internal/notify"
)

// Sent is one recorded notification.
type Sent struct {
	MemberID string
	Template notify.TemplateID
}

// RecordingGateway is a notify.Gateway that remembers every send.
// Sends to a member listed in FailFor are recorded and then fail.
type RecordingGateway struct {
	mu      sync.Mutex
	sent    []Sent
	FailFor map[string]error
}

// NewRecordingGateway creates an empty recording gateway.
func NewRecordingGateway() *RecordingGateway {
	return &RecordingGateway{FailFor: map[string]error{}}
}

// Send records the call.
func (g *RecordingGateway) Send(_ context.Context, to notify.Recipient, template notify.TemplateID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sent = append(g.sent, Sent{MemberID: to.MemberID, Template: template})
	if err, ok := g.FailFor[to.MemberID]; ok {
		return err
	}
	return nil
}

// Sent returns a copy of every recorded send in call order.
func (g *RecordingGateway) Sent() []Sent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Sent(nil), g.sent...)
}

// SentWith returns the recorded sends that used template.
func (g *RecordingGateway) SentWith(template notify.TemplateID) []Sent {
	var out []Sent
	for _, s := range g.Sent() {
		if s.Template == template {
			out = append(out, s)
		}
	}
	return out
}

// Reset forgets every recorded send.
func (g *RecordingGateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = nil
}
