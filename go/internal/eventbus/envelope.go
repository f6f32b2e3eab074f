package eventbus

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/outsider/go/internal/room"
)

// Envelope is the wire form of a room event, used both on websockets and on
// the bus.
type Envelope struct {
	ID        string         `json:"id"`
	RoomCode  string         `json:"room_code"`
	Type      room.EventType `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      any            `json:"data"`
}

func NewEnvelope(ev room.Event, at time.Time) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		RoomCode:  ev.Room,
		Type:      ev.Type,
		Timestamp: at.UTC(),
		Data:      ev.Payload,
	}
}
