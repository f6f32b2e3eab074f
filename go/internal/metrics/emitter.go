package metrics

import (
	"github.com/mcdev12/outsider/go/internal/room"
)

// Emitter counts room events before handing them on.
type Emitter struct {
	next      room.Emitter
	collector Collector
}

func NewEmitter(next room.Emitter, collector Collector) *Emitter {
	return &Emitter{next: next, collector: collector}
}

func (e *Emitter) Emit(ev room.Event) {
	e.collector.RecordEvent(string(ev.Type))
	// A round-ended replayed to a rejoining player is private and not counted.
	if ended, ok := ev.Payload.(room.RoundEndedPayload); ok && ev.Audience.Public() {
		e.collector.RecordRoundResult(string(ended.Result), string(ended.ResolvedBy))
	}
	e.next.Emit(ev)
}
