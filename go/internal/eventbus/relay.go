package eventbus

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/outsider/go/internal/room"
	"github.com/rs/zerolog/log"
)

const defaultRelayBuffer = 1024

// Recorder observes publish outcomes.
type Recorder interface {
	RecordPublish(eventType string, success bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordPublish(string, bool) {}

// Relay forwards room-wide events to a Publisher. Private events, such as a
// player's dealt card, never leave the process.
type Relay struct {
	publisher Publisher
	clock     clockwork.Clock
	recorder  Recorder
	timeout   time.Duration
	ch        chan Envelope
}

func NewRelay(publisher Publisher, clock clockwork.Clock, recorder Recorder) *Relay {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Relay{
		publisher: publisher,
		clock:     clock,
		recorder:  recorder,
		timeout:   5 * time.Second,
		ch:        make(chan Envelope, defaultRelayBuffer),
	}
}

// Emit queues the event without blocking. It is called under a room lock.
func (r *Relay) Emit(ev room.Event) {
	if !ev.Audience.Public() {
		return
	}
	select {
	case r.ch <- NewEnvelope(ev, r.clock.Now()):
	default:
		log.Warn().
			Str("room_code", ev.Room).
			Str("event_type", string(ev.Type)).
			Msg("relay buffer full, dropping event")
	}
}

// Start publishes queued events until ctx is done.
func (r *Relay) Start(ctx context.Context) {
	log.Info().Msg("event relay started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event relay shutting down")
			return
		case env := <-r.ch:
			r.publish(ctx, env)
		}
	}
}

func (r *Relay) publish(ctx context.Context, env Envelope) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.publisher.Publish(ctx, env)
	r.recorder.RecordPublish(string(env.Type), err == nil)
	if err != nil {
		log.Error().
			Err(err).
			Str("event_id", env.ID).
			Str("event_type", string(env.Type)).
			Str("room_code", env.RoomCode).
			Msg("failed to publish event")
	}
}
