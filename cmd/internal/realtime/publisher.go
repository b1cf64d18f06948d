package realtime

import (
	"context"
	"crypto/rand"
	"time"

	v1 "rsvp/shared/contracts/rsvpfeed/v1"

	"github.com/oklog/ulid/v2"
)

// Publisher delivers feed envelopes to subscribers.
type Publisher interface {
	Publish(ctx context.Context, env v1.Envelope) error
}

// Emit builds an envelope of typ around payload and publishes it.
// A nil Publisher discards the event.
func Emit(ctx context.Context, p Publisher, typ string, payload any) error {
	if p == nil {
		return nil
	}
	now := time.Now().UTC()
	id, err := NewEnvelopeID(now)
	if err != nil {
		return err
	}
	env, err := v1.NewEnvelope(typ, id, now, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, env)
}

// NewEnvelopeID returns a ULID used as envelope id.
func NewEnvelopeID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
