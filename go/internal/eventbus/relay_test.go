package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/outsider/go/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPublisher struct {
	mu   sync.Mutex
	envs []Envelope
	err  error
}

func (p *memPublisher) Publish(_ context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return p.err
}

func (p *memPublisher) Close() error { return nil }

func (p *memPublisher) published() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Envelope(nil), p.envs...)
}

type countRecorder struct {
	mu       sync.Mutex
	ok, fail int
}

func (c *countRecorder) RecordPublish(_ string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if success {
		c.ok++
	} else {
		c.fail++
	}
}

func (c *countRecorder) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ok, c.fail
}

func TestRelayPublishesOnlyPublicEvents(t *testing.T) {
	pub := &memPublisher{}
	rec := &countRecorder{}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	relay := NewRelay(pub, clock, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Start(ctx)

	relay.Emit(room.Event{Room: "AB12CD", Type: room.EventRoundStarted, Audience: room.ToPlayer("p1")})
	relay.Emit(room.Event{Room: "AB12CD", Type: room.EventPlayerJoined, Audience: room.ToAllExcept("p1")})
	relay.Emit(room.Event{Room: "AB12CD", Type: room.EventTick, Audience: room.ToAll(), Payload: room.TickPayload{RemainingSeconds: 9}})

	require.Eventually(t, func() bool { return len(pub.published()) == 1 }, time.Second, 5*time.Millisecond)

	env := pub.published()[0]
	assert.Equal(t, room.EventTick, env.Type)
	assert.Equal(t, "AB12CD", env.RoomCode)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, clock.Now(), env.Timestamp)

	ok, fail := rec.counts()
	assert.Equal(t, 1, ok)
	assert.Zero(t, fail)
}

func TestRelayRecordsFailures(t *testing.T) {
	pub := &memPublisher{err: errors.New("bus down")}
	rec := &countRecorder{}
	relay := NewRelay(pub, clockwork.NewFakeClock(), rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Start(ctx)

	relay.Emit(room.Event{Room: "AB12CD", Type: room.EventRoundReset, Audience: room.ToAll()})

	require.Eventually(t, func() bool {
		_, fail := rec.counts()
		return fail == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRelayDropsWhenFull(t *testing.T) {
	relay := NewRelay(&memPublisher{}, clockwork.NewFakeClock(), nil)
	for i := 0; i < defaultRelayBuffer+10; i++ {
		relay.Emit(room.Event{Room: "AB12CD", Type: room.EventTick, Audience: room.ToAll()})
	}
	assert.Len(t, relay.ch, defaultRelayBuffer)
}

type fakeConn struct {
	subjects []string
	payloads [][]byte
	drained  bool
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func TestNATSPublisherSubjectAndPayload(t *testing.T) {
	conn := &fakeConn{}
	p := &NATSPublisher{nc: conn, prefix: "outsider.rooms"}

	env := NewEnvelope(room.Event{
		Room:     "AB12CD",
		Type:     room.EventRoundEnded,
		Audience: room.ToAll(),
		Payload:  room.RoundEndedPayload{Outcome: room.Outcome{Result: room.ResultTownWins, ResolvedBy: room.ResolvedByVote}},
	}, time.Now())

	require.NoError(t, p.Publish(context.Background(), env))
	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "outsider.rooms.AB12CD.round-ended", conn.subjects[0])

	var decoded struct {
		Type string `json:"type"`
		Data struct {
			Result     string `json:"result"`
			ResolvedBy string `json:"resolved_by"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, "round-ended", decoded.Type)
	assert.Equal(t, "town_wins", decoded.Data.Result)
	assert.Equal(t, "vote", decoded.Data.ResolvedBy)

	require.NoError(t, p.Close())
	assert.True(t, conn.drained)
}
