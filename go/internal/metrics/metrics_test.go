package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/mcdev12/outsider/go/internal/room"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollectorRecords(t *testing.T) {
	c := NewPrometheusCollector("outsider")

	c.RecordActiveRooms(3)
	c.RecordActiveConnections(7)
	c.RecordEvent("tick")
	c.RecordEvent("tick")
	c.RecordRoundResult("town_wins", "vote")
	c.RecordInboundMessage("cast-vote", "ok")
	c.RecordImageLookup("location", "hit")
	c.RecordPublish("round-ended", false)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.activeRooms))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.activeConnections))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.events.WithLabelValues("tick")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rounds.WithLabelValues("town_wins", "vote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inbound.WithLabelValues("cast-vote", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.imageLookups.WithLabelValues("location", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.publishes.WithLabelValues("round-ended", "failure")))
}

func TestHandlerServesRegistry(t *testing.T) {
	c := NewPrometheusCollector("outsider")
	c.RecordActiveRooms(2)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "outsider_active_rooms 2")
	assert.Contains(t, string(body), "go_goroutines")
}

type sink struct{ events []room.Event }

func (s *sink) Emit(ev room.Event) { s.events = append(s.events, ev) }

func TestEmitterCountsAndForwards(t *testing.T) {
	c := NewPrometheusCollector("outsider")
	next := &sink{}
	e := NewEmitter(next, c)

	e.Emit(room.Event{Room: "AB12CD", Type: room.EventTick, Audience: room.ToAll(), Payload: room.TickPayload{RemainingSeconds: 4}})
	e.Emit(room.Event{
		Room:     "AB12CD",
		Type:     room.EventRoundEnded,
		Audience: room.ToAll(),
		Payload: room.RoundEndedPayload{Outcome: room.Outcome{
			Result:     room.ResultOutsiderWins,
			ResolvedBy: room.ResolvedByGuess,
		}},
	})

	require.Len(t, next.events, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues(string(room.EventTick))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rounds.WithLabelValues(string(room.ResultOutsiderWins), string(room.ResolvedByGuess))))
}
