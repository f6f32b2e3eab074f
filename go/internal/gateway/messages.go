package gateway

import (
	"encoding/json"

	"github.com/mcdev12/outsider/go/internal/room"
)

// Inbound message types sent by clients.
const (
	MessageJoin                   = "join"
	MessageStartRound             = "start-round"
	MessageRequestVote            = "request-vote"
	MessageSubmitVoteConfirmation = "submit-vote-confirmation"
	MessageCastVote               = "cast-vote"
	MessageGuessLocation          = "guess-location"
	MessageResetRound             = "reset-round"
	MessageExitRoom               = "exit-room"
)

// EventError is sent only to the connection whose request was refused.
const EventError room.EventType = "error"

// Error kinds the gateway adds to the room taxonomy.
const (
	KindRateLimited room.Kind = "rate_limited"
	KindInternal    room.Kind = "internal"
)

// InboundMessage is the client frame: {"type": "...", "data": {...}}.
type InboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type JoinData struct {
	RoomCode   string `json:"room_code"`
	Name       string `json:"name"`
	PlayerID   string `json:"player_id,omitempty"`
	RejoinCode string `json:"rejoin_code,omitempty"`
}

type VoteConfirmationData struct {
	Approve bool `json:"approve"`
}

type CastVoteData struct {
	TargetID string `json:"target_id"`
}

type GuessData struct {
	Guess string `json:"guess"`
}

type ErrorPayload struct {
	Message string    `json:"message"`
	Kind    room.Kind `json:"kind"`
}
