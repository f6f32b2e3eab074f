package room

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/outsider/go/internal/images"
	"github.com/rs/zerolog/log"
)

const minPlayers = 3

// Config is fixed at room creation.
type Config struct {
	RoundDuration time.Duration
	PoolSize      int
	RolesEnabled  bool
}

// Timing holds the process-wide timer windows.
type Timing struct {
	TickInterval       time.Duration
	ConfirmationWindow time.Duration
	EmptyGrace         time.Duration
	InactivityTimeout  time.Duration
	// DisconnectGrace is how long an offline player keeps their seat. Zero
	// keeps it until they exit.
	DisconnectGrace time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		TickInterval:       time.Second,
		ConfirmationWindow: 10 * time.Second,
		EmptyGrace:         30 * time.Second,
		InactivityTimeout:  10 * time.Minute,
		DisconnectGrace:    2 * time.Minute,
	}
}

// LocationSource supplies the randomization domain.
type LocationSource interface {
	Pool(n int) []string
	Roles(name string) ([]string, error)
}

// Enricher fetches display images off the state-transition path. done is
// called at most once, from any goroutine.
type Enricher interface {
	Enrich(req images.Request, done func(images.Result))
}

// Deps are the collaborators a Room needs. Clock, Catalog and Emitter are
// required.
type Deps struct {
	Clock    clockwork.Clock
	Catalog  LocationSource
	Emitter  Emitter
	Enricher Enricher
	Rand     *rand.Rand
	// OnExpire is called without the room lock once an eviction timer fires.
	OnExpire func(code string)
}

// Room owns all state of one game room. Every exported method is safe for
// concurrent use; they are serialized by mu.
type Room struct {
	code     string
	cfg      Config
	timing   Timing
	clock    clockwork.Clock
	catalog  LocationSource
	emitter  Emitter
	enricher Enricher
	rng      *rand.Rand
	onExpire func(code string)

	mu      sync.Mutex
	phase   Phase
	players *Registry
	expired bool

	// generation is bumped whenever round-scoped state is replaced, so late
	// timer and enrichment callbacks can tell they are stale.
	generation   uint64
	roundStarted bool
	createdAt    time.Time

	// round-scoped
	location      string
	candidates    []string
	outsiderID    string
	order         []string
	firstAskerID  string
	roles         map[string]string
	locationImage string
	roleImages    map[string]string
	votes         map[string]string
	confirmations map[string]bool
	remaining     int
	deadline      time.Time
	outcome       *Outcome

	confirmInitiatorID   string
	confirmInitiatorName string
	confirmDeadline      time.Time

	countdownStop chan struct{}
	confirmTimer  clockwork.Timer
	confirmSeq    uint64
	evictTimer    clockwork.Timer
	evictKind     evictionKind
	evictSeq      uint64
	drops         map[string]pendingDrop
	dropSeq       uint64
}

// New builds an empty room in the waiting phase and arms its inactivity
// eviction.
func New(code string, cfg Config, timing Timing, deps Deps) *Room {
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if deps.OnExpire == nil {
		deps.OnExpire = func(string) {}
	}

	r := &Room{
		code:     code,
		cfg:      cfg,
		timing:   timing,
		clock:    deps.Clock,
		catalog:  deps.Catalog,
		emitter:  deps.Emitter,
		enricher: deps.Enricher,
		rng:      deps.Rand,
		onExpire: deps.OnExpire,
		phase:    PhaseWaiting,
		players:  NewRegistry(),
		drops:    make(map[string]pendingDrop),
	}
	r.clearRound()

	r.mu.Lock()
	r.createdAt = r.clock.Now()
	r.armInactivity()
	r.mu.Unlock()

	return r
}

func (r *Room) Code() string {
	return r.code
}

func (r *Room) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Snapshot returns the public state of the room.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Admit registers a player without binding a connection. Room creation uses
// it for the owner, who connects afterwards with the returned credentials.
func (r *Room) Admit(name string) (Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired {
		return Credentials{}, notFoundf("room %s no longer exists", r.code)
	}
	p, err := r.players.Add(name, "")
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{PlayerID: p.ID, RejoinCode: p.RejoinCode}, nil
}

// Join admits a new player bound to connID.
func (r *Room) Join(name, connID string) (Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired {
		return Credentials{}, notFoundf("room %s no longer exists", r.code)
	}
	p, err := r.players.Add(name, connID)
	if err != nil {
		return Credentials{}, err
	}

	log.Info().Str("room_code", r.code).Str("player_id", p.ID).Str("name", p.Name).Msg("player joined")
	r.welcome(p)
	return Credentials{PlayerID: p.ID, RejoinCode: p.RejoinCode}, nil
}

// Rejoin rebinds an existing player to connID after a dropped connection.
func (r *Room) Rejoin(playerID, rejoinCode, connID string) (Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired {
		return Credentials{}, notFoundf("room %s no longer exists", r.code)
	}
	p, err := r.players.Reconnect(playerID, rejoinCode, connID)
	if err != nil {
		return Credentials{}, err
	}

	log.Info().Str("room_code", r.code).Str("player_id", p.ID).Msg("player reconnected")
	r.cancelDrop(p.ID)
	r.welcome(p)
	return Credentials{PlayerID: p.ID, RejoinCode: p.RejoinCode}, nil
}

// welcome sends the joiner its snapshot plus whatever the current phase
// requires, tells everyone else, and settles eviction timers.
func (r *Room) welcome(p *Player) {
	r.emit(EventJoinedRoom, ToPlayer(p.ID), JoinedRoomPayload{
		Credentials: Credentials{PlayerID: p.ID, RejoinCode: p.RejoinCode},
		Snapshot:    r.snapshot(),
	})
	r.emit(EventPlayerJoined, ToAllExcept(p.ID), PlayerJoinedPayload{
		PlayerID: p.ID,
		Name:     p.Name,
		Players:  r.players.Views(),
	})

	switch r.phase {
	case PhasePlaying, PhaseVotingConfirmation:
		if r.participates(p.ID) {
			r.emit(EventRoundStarted, ToPlayer(p.ID), r.roundStartedFor(p.ID))
		}
		if r.phase == PhaseVotingConfirmation {
			r.emit(EventVoteConfirmationStarted, ToPlayer(p.ID), r.confirmationStarted())
		}
	case PhaseVoting:
		r.emit(EventVotingStarted, ToPlayer(p.ID), VotingStartedPayload{Candidates: r.players.Views()})
	case PhaseEnded:
		if r.outcome != nil {
			r.emit(EventRoundEnded, ToPlayer(p.ID), RoundEndedPayload{Outcome: *r.outcome, Players: r.players.Views()})
		}
	}

	r.settleEviction()
}

// Leave removes a player for good.
func (r *Room) Leave(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired {
		return notFoundf("room %s no longer exists", r.code)
	}
	if _, ok := r.players.Get(playerID); !ok {
		return notFoundf("player not in room")
	}
	r.remove(playerID, "exit")
	return nil
}

// remove deletes a player, tells the remaining members, and cancels the
// round if it just lost its outsider.
func (r *Room) remove(playerID, reason string) {
	r.cancelDrop(playerID)
	p, ok := r.players.Remove(playerID)
	if !ok {
		return
	}
	r.forget(playerID)

	log.Info().
		Str("room_code", r.code).
		Str("player_id", p.ID).
		Str("reason", reason).
		Bool("owner", p.Owner).
		Msg("player left")
	r.emit(EventPlayerLeft, ToAll(), PlayerLeftPayload{
		PlayerID:  p.ID,
		Name:      p.Name,
		OwnerLeft: p.Owner,
		Players:   r.players.Views(),
	})

	if r.phase.InRound() && playerID == r.outsiderID {
		r.cancel("the outsider left the room")
	}
	r.afterMembershipLoss()
}

// Disconnect marks the player offline if connID is still the bound
// connection. The player stays in the roster and may rejoin.
func (r *Room) Disconnect(playerID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired || !r.players.Disconnect(playerID, connID) {
		return
	}
	p, _ := r.players.Get(playerID)

	log.Info().Str("room_code", r.code).Str("player_id", playerID).Msg("player disconnected")
	r.emit(EventPlayerDisconnected, ToAllExcept(playerID), PlayerDisconnectedPayload{
		PlayerID: playerID,
		Name:     p.Name,
		Players:  r.players.Views(),
	})

	r.armDrop(playerID)
	r.afterMembershipLoss()
}

// afterMembershipLoss re-evaluates everything that depends on the live
// player count.
func (r *Room) afterMembershipLoss() {
	live := r.players.Live()

	switch r.phase {
	case PhasePlaying, PhaseVotingConfirmation:
		if live < minPlayers {
			r.cancel("not enough players to continue the round")
		} else if r.phase == PhaseVotingConfirmation {
			r.maybeResolveConfirmation()
		}
	case PhaseVoting:
		if r.allVoted() {
			r.resolve("", ResolvedByVote, "")
		}
	}

	r.settleEviction()
}

// Reset returns the room to waiting from any phase, keeping players and scores.
func (r *Room) Reset(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired {
		return notFoundf("room %s no longer exists", r.code)
	}
	if _, ok := r.players.Get(playerID); !ok {
		return notFoundf("player not in room")
	}

	r.reset()
	r.emit(EventRoundReset, ToAll(), RoundResetPayload{Snapshot: r.snapshot()})
	return nil
}

func (r *Room) reset() {
	r.stopRoundTimers()
	r.clearRound()
	r.phase = PhaseWaiting
}

func (r *Room) cancel(reason string) {
	log.Info().Str("room_code", r.code).Str("reason", reason).Msg("round cancelled")
	r.reset()
	r.emit(EventRoundCancelled, ToAll(), RoundCancelledPayload{Reason: reason, Players: r.players.Views()})
}

// clearRound puts every round-scoped field back to its initial value.
func (r *Room) clearRound() {
	r.generation++
	r.location = ""
	r.candidates = nil
	r.outsiderID = ""
	r.order = nil
	r.firstAskerID = ""
	r.roles = make(map[string]string)
	r.locationImage = ""
	r.roleImages = make(map[string]string)
	r.votes = make(map[string]string)
	r.confirmations = make(map[string]bool)
	r.remaining = 0
	r.deadline = time.Time{}
	r.outcome = nil
	r.confirmInitiatorID = ""
	r.confirmInitiatorName = ""
	r.confirmDeadline = time.Time{}
}

// forget drops per-player round data for a departed player.
func (r *Room) forget(playerID string) {
	delete(r.roles, playerID)
	delete(r.roleImages, playerID)
	delete(r.votes, playerID)
	delete(r.confirmations, playerID)
}

// Close stops every timer without notifying anyone. Used on shutdown.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired = true
	r.stopRoundTimers()
	r.cancelEviction()
	r.stopDrops()
}

func (r *Room) snapshot() Snapshot {
	snap := Snapshot{
		Code:    r.code,
		Phase:   r.phase,
		OwnerID: r.players.OwnerID(),
		Players: r.players.Views(),
		Config: ConfigView{
			RoundSeconds: int(r.cfg.RoundDuration / time.Second),
			PoolSize:     r.cfg.PoolSize,
			RolesEnabled: r.cfg.RolesEnabled,
		},
		RemainingSeconds: r.remaining,
	}
	if r.outcome != nil {
		o := *r.outcome
		snap.LastOutcome = &o
	}
	return snap
}

func (r *Room) emit(t EventType, audience Audience, payload any) {
	var recipients []Recipient
	for _, p := range r.players.List() {
		if p.Online() && audience.Includes(p.ID) {
			recipients = append(recipients, Recipient{PlayerID: p.ID, ConnID: p.ConnID()})
		}
	}
	r.emitter.Emit(Event{Room: r.code, Type: t, Audience: audience, Payload: payload, Recipients: recipients})
}
