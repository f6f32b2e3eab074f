package room

// EventType names an outbound notification.
type EventType string

const (
	EventJoinedRoom               EventType = "joined-room"
	EventPlayerJoined             EventType = "player-joined"
	EventRoundStarted             EventType = "round-started"
	EventTick                     EventType = "tick"
	EventVoteConfirmationStarted  EventType = "vote-confirmation-started"
	EventVoteConfirmationProgress EventType = "vote-confirmation-progress"
	EventVoteConfirmationResult   EventType = "vote-confirmation-result"
	EventVotingStarted            EventType = "voting-started"
	EventVoteCast                 EventType = "vote-cast"
	EventOutsiderGuessing         EventType = "outsider-guessing"
	EventRoundEnded               EventType = "round-ended"
	EventImagesReady              EventType = "images-ready"
	EventRoundReset               EventType = "round-reset"
	EventPlayerLeft               EventType = "player-left"
	EventPlayerDisconnected       EventType = "player-disconnected"
	EventRoundCancelled           EventType = "round-cancelled"
	EventRoomExpired              EventType = "room-expired"
)

// AudienceKind selects which members receive an event.
type AudienceKind int

const (
	AudienceAll AudienceKind = iota
	AudiencePlayer
	AudienceAllExcept
)

type Audience struct {
	Kind     AudienceKind
	PlayerID string
}

func ToAll() Audience { return Audience{Kind: AudienceAll} }

func ToPlayer(id string) Audience { return Audience{Kind: AudiencePlayer, PlayerID: id} }

func ToAllExcept(id string) Audience { return Audience{Kind: AudienceAllExcept, PlayerID: id} }

// Public reports whether every member receives the event.
func (a Audience) Public() bool { return a.Kind == AudienceAll }

func (a Audience) Includes(id string) bool {
	switch a.Kind {
	case AudiencePlayer:
		return id == a.PlayerID
	case AudienceAllExcept:
		return id != a.PlayerID
	default:
		return true
	}
}

// Event is a tagged notification. Payload is one of the *Payload types below,
// matching Type.
type Event struct {
	Room     string
	Type     EventType
	Audience Audience
	Payload  any

	// Recipients are the connected members the audience resolved to at the
	// moment of emission.
	Recipients []Recipient
}

// Recipient pairs a player with the connection bound to them.
type Recipient struct {
	PlayerID string
	ConnID   string
}

// Emitter receives room events. Emit is called with the room lock held and
// must not block or call back into the room.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Emitters delivers each event to every emitter in order.
type Emitters []Emitter

func (es Emitters) Emit(e Event) {
	for _, em := range es {
		em.Emit(e)
	}
}

type ConfigView struct {
	RoundSeconds int  `json:"round_seconds"`
	PoolSize     int  `json:"pool_size"`
	RolesEnabled bool `json:"roles_enabled"`
}

// Snapshot is the public state of a room.
type Snapshot struct {
	Code             string       `json:"code"`
	Phase            Phase        `json:"phase"`
	OwnerID          string       `json:"owner_id,omitempty"`
	Players          []PlayerView `json:"players"`
	Config           ConfigView   `json:"config"`
	RemainingSeconds int          `json:"remaining_seconds"`
	LastOutcome      *Outcome     `json:"last_outcome,omitempty"`
}

type JoinedRoomPayload struct {
	Credentials
	Snapshot Snapshot `json:"snapshot"`
}

type PlayerJoinedPayload struct {
	PlayerID string       `json:"player_id"`
	Name     string       `json:"name"`
	Players  []PlayerView `json:"players"`
}

// RoundStartedPayload is tailored per recipient: the outsider gets the
// candidate set only.
type RoundStartedPayload struct {
	Outsider         bool     `json:"outsider"`
	Location         string   `json:"location,omitempty"`
	Role             string   `json:"role,omitempty"`
	Candidates       []string `json:"candidates"`
	Order            []string `json:"order"`
	FirstAskerID     string   `json:"first_asker_id"`
	RemainingSeconds int      `json:"remaining_seconds"`
	DurationSeconds  int      `json:"duration_seconds"`
	LocationImage    string   `json:"location_image,omitempty"`
	RoleImage        string   `json:"role_image,omitempty"`
}

type TickPayload struct {
	RemainingSeconds int `json:"remaining_seconds"`
}

type VoteConfirmationStartedPayload struct {
	InitiatorID     string `json:"initiator_id"`
	InitiatorName   string `json:"initiator_name"`
	DeadlineSeconds int    `json:"deadline_seconds"`
}

type VoteConfirmationProgressPayload struct {
	VotedCount int `json:"voted_count"`
	TotalCount int `json:"total_count"`
}

type VoteConfirmationResultPayload struct {
	Approved bool `json:"approved"`
	YesCount int  `json:"yes_count"`
	NoCount  int  `json:"no_count"`
}

type VotingStartedPayload struct {
	Candidates []PlayerView `json:"candidates"`
}

type VoteCastPayload struct {
	VotedCount int `json:"voted_count"`
	TotalCount int `json:"total_count"`
}

type OutsiderGuessingPayload struct {
	Guess string `json:"guess"`
}

// Outcome is the authoritative result of a resolved round.
type Outcome struct {
	Result       Result         `json:"result"`
	ResolvedBy   Resolution     `json:"resolved_by"`
	OutsiderID   string         `json:"outsider_id"`
	OutsiderName string         `json:"outsider_name"`
	Location     string         `json:"location"`
	Guess        string         `json:"guess,omitempty"`
	AccusedID    string         `json:"accused_id,omitempty"`
	Tally        map[string]int `json:"tally,omitempty"`
}

type RoundEndedPayload struct {
	Outcome
	Players []PlayerView `json:"players"`
}

type ImagesReadyPayload struct {
	LocationImage string `json:"location_image,omitempty"`
	RoleImage     string `json:"role_image,omitempty"`
}

type RoundResetPayload struct {
	Snapshot Snapshot `json:"snapshot"`
}

type PlayerLeftPayload struct {
	PlayerID  string       `json:"player_id"`
	Name      string       `json:"name"`
	OwnerLeft bool         `json:"owner_left"`
	Players   []PlayerView `json:"players"`
}

type PlayerDisconnectedPayload struct {
	PlayerID string       `json:"player_id"`
	Name     string       `json:"name"`
	Players  []PlayerView `json:"players"`
}

type RoundCancelledPayload struct {
	Reason  string       `json:"reason"`
	Players []PlayerView `json:"players"`
}

type RoomExpiredPayload struct {
	Reason string `json:"reason"`
}
