package gateway

import (
	"encoding/json"
	"errors"

	"github.com/mcdev12/outsider/go/internal/directory"
	"github.com/mcdev12/outsider/go/internal/room"
	"github.com/rs/zerolog/log"
)

// Rooms is the slice of the room directory the gateway depends on.
type Rooms interface {
	Create(req directory.CreateRequest) (directory.Created, error)
	Get(code string) (*room.Room, bool)
	Len() int
}

// Dispatcher turns inbound client messages into room operations on behalf
// of the player bound to the connection.
type Dispatcher struct {
	rooms    Rooms
	cm       *ConnectionManager
	recorder Recorder
}

func NewDispatcher(rooms Rooms, cm *ConnectionManager, recorder Recorder) *Dispatcher {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Dispatcher{rooms: rooms, cm: cm, recorder: recorder}
}

func (d *Dispatcher) HandleMessage(c *Connection, data []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		d.finish(c, "", &room.Error{Kind: room.KindValidation, Message: "malformed message"})
		return
	}
	d.finish(c, msg.Type, d.dispatch(c, msg))
}

// HandleDisconnect marks the bound player offline. A connection replaced by
// a rejoin is ignored by the room.
func (d *Dispatcher) HandleDisconnect(c *Connection) {
	code, playerID := c.Binding()
	if playerID == "" {
		return
	}
	if rm, ok := d.rooms.Get(code); ok {
		rm.Disconnect(playerID, c.ID)
	}
}

func (d *Dispatcher) dispatch(c *Connection, msg InboundMessage) error {
	if msg.Type == MessageJoin {
		return d.join(c, msg.Data)
	}

	rm, playerID, err := d.boundRoom(c)
	if err != nil {
		return err
	}

	switch msg.Type {
	case MessageStartRound:
		return rm.StartRound(playerID)
	case MessageRequestVote:
		return rm.RequestVoteConfirmation(playerID)
	case MessageSubmitVoteConfirmation:
		var data VoteConfirmationData
		if err := decode(msg.Data, &data); err != nil {
			return err
		}
		return rm.SubmitVoteConfirmation(playerID, data.Approve)
	case MessageCastVote:
		var data CastVoteData
		if err := decode(msg.Data, &data); err != nil {
			return err
		}
		return rm.CastVote(playerID, data.TargetID)
	case MessageGuessLocation:
		var data GuessData
		if err := decode(msg.Data, &data); err != nil {
			return err
		}
		_, err := rm.GuessLocation(playerID, data.Guess)
		return err
	case MessageResetRound:
		return rm.Reset(playerID)
	case MessageExitRoom:
		if err := rm.Leave(playerID); err != nil {
			return err
		}
		c.unbind()
		return nil
	default:
		return &room.Error{Kind: room.KindValidation, Message: "unknown message type " + msg.Type}
	}
}

func (d *Dispatcher) join(c *Connection, raw json.RawMessage) error {
	if code, _ := c.Binding(); code != "" {
		return &room.Error{Kind: room.KindValidation, Message: "already in room " + code}
	}

	var data JoinData
	if err := decode(raw, &data); err != nil {
		return err
	}
	code := directory.NormalizeCode(data.RoomCode)
	rm, ok := d.rooms.Get(code)
	if !ok {
		return &room.Error{Kind: room.KindNotFound, Message: "room not found"}
	}

	if data.PlayerID == "" {
		creds, err := rm.Join(data.Name, c.ID)
		if err != nil {
			return err
		}
		c.bind(code, creds.PlayerID)
		return nil
	}

	previous := d.cm.findPlayer(code, data.PlayerID)
	creds, err := rm.Rejoin(data.PlayerID, data.RejoinCode, c.ID)
	if err != nil {
		return err
	}
	c.bind(code, creds.PlayerID)
	if previous != nil && previous != c {
		log.Info().
			Str("room_code", code).
			Str("player_id", creds.PlayerID).
			Str("connection_id", previous.ID).
			Msg("closing connection replaced by rejoin")
		d.cm.closeConnection(previous)
	}
	return nil
}

func (d *Dispatcher) boundRoom(c *Connection) (*room.Room, string, error) {
	code, playerID := c.Binding()
	if playerID == "" {
		return nil, "", &room.Error{Kind: room.KindValidation, Message: "join a room first"}
	}
	rm, ok := d.rooms.Get(code)
	if !ok {
		c.unbind()
		return nil, "", &room.Error{Kind: room.KindNotFound, Message: "room not found"}
	}
	return rm, playerID, nil
}

// finish records the outcome and tells the sender about refusals it can act
// on. Authority refusals are dropped.
func (d *Dispatcher) finish(c *Connection, msgType string, err error) {
	label := messageLabel(msgType)
	switch {
	case err == nil:
		d.recorder.RecordInboundMessage(label, "ok")
	case errors.Is(err, room.ErrAuthority):
		d.recorder.RecordInboundMessage(label, "ignored")
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("message_type", msgType).
			Msg("ignoring unauthorized request")
	default:
		d.recorder.RecordInboundMessage(label, "rejected")
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("message_type", msgType).
			Msg("request rejected")
		d.cm.SendTo(c, d.cm.errorEnvelope(c, err))
	}
}

// messageLabel keeps the metric label set closed.
func messageLabel(msgType string) string {
	switch msgType {
	case MessageJoin, MessageStartRound, MessageRequestVote, MessageSubmitVoteConfirmation,
		MessageCastVote, MessageGuessLocation, MessageResetRound, MessageExitRoom:
		return msgType
	}
	return "unknown"
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return &room.Error{Kind: room.KindValidation, Message: "missing message data"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &room.Error{Kind: room.KindValidation, Message: "malformed message data"}
	}
	return nil
}
