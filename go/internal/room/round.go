package room

import (
	"strings"
	"time"

	"github.com/mcdev12/outsider/go/internal/images"
	"github.com/rs/zerolog/log"
)

// StartRound deals a new secret and starts the countdown. Only the owner may
// start while an owner is online; otherwise any member may.
func (r *Room) StartRound(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired {
		return notFoundf("room %s no longer exists", r.code)
	}
	if _, ok := r.players.Get(playerID); !ok {
		return notFoundf("player not in room")
	}
	if !r.canStart(playerID) {
		log.Debug().Str("room_code", r.code).Str("player_id", playerID).Msg("start ignored: not the owner")
		return authorityf("only the room owner can start a round")
	}
	if r.phase != PhaseWaiting {
		return phaseError("start a round", r.phase)
	}
	if live := r.players.Live(); live < minPlayers {
		return validationf("at least %d connected players are needed to start, have %d", minPlayers, live)
	}

	r.deal()
	r.phase = PhasePlaying
	r.roundStarted = true
	r.cancelEviction()
	r.startCountdown()

	log.Info().
		Str("room_code", r.code).
		Int("players", len(r.order)).
		Int("pool_size", len(r.candidates)).
		Msg("round started")

	for _, id := range r.order {
		r.emit(EventRoundStarted, ToPlayer(id), r.roundStartedFor(id))
	}

	r.requestImages()
	return nil
}

func (r *Room) canStart(playerID string) bool {
	ownerID := r.players.OwnerID()
	if ownerID == "" || ownerID == playerID {
		return true
	}
	owner, ok := r.players.Get(ownerID)
	return !ok || !owner.Online()
}

// deal draws the round's secret assignment. Every draw is uniform.
func (r *Room) deal() {
	r.clearRound()

	r.candidates = r.catalog.Pool(r.cfg.PoolSize)
	r.location = r.candidates[r.rng.IntN(len(r.candidates))]

	// Offline players sit the round out.
	ids := r.players.LiveIDs()
	r.outsiderID = ids[r.rng.IntN(len(ids))]
	r.firstAskerID = ids[r.rng.IntN(len(ids))]

	r.order = make([]string, len(ids))
	for i, j := range r.rng.Perm(len(ids)) {
		r.order[i] = ids[j]
	}

	if !r.cfg.RolesEnabled {
		return
	}
	roles, err := r.catalog.Roles(r.location)
	if err != nil || len(roles) == 0 {
		log.Warn().Err(err).Str("room_code", r.code).Str("location", r.location).Msg("location has no roles")
		return
	}
	for _, id := range r.order {
		if id != r.outsiderID {
			r.roles[id] = roles[r.rng.IntN(len(roles))]
		}
	}
}

// participates reports whether id was dealt into the current round.
func (r *Room) participates(id string) bool {
	for _, pid := range r.order {
		if pid == id {
			return true
		}
	}
	return false
}

func (r *Room) roundStartedFor(id string) RoundStartedPayload {
	payload := RoundStartedPayload{
		Outsider:         id == r.outsiderID,
		Candidates:       append([]string(nil), r.candidates...),
		Order:            append([]string(nil), r.order...),
		FirstAskerID:     r.firstAskerID,
		RemainingSeconds: r.remaining,
		DurationSeconds:  int(r.cfg.RoundDuration / time.Second),
	}
	if !payload.Outsider {
		payload.Location = r.location
		payload.Role = r.roles[id]
		payload.LocationImage = r.locationImage
		payload.RoleImage = r.roleImages[id]
	}
	return payload
}

func (r *Room) requestImages() {
	if r.enricher == nil {
		return
	}
	gen := r.generation
	req := images.Request{Location: r.location, Roles: make(map[string]string, len(r.roles))}
	for id, role := range r.roles {
		req.Roles[id] = role
	}
	r.enricher.Enrich(req, func(res images.Result) {
		r.attachImages(gen, res)
	})
}

// attachImages records images for the round they were requested for. It
// only adds display data and never changes phase.
func (r *Room) attachImages(gen uint64, res images.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired || gen != r.generation {
		return
	}

	r.locationImage = res.LocationImage
	for id, url := range res.RoleImages {
		r.roleImages[id] = url
	}

	for _, id := range r.order {
		if id == r.outsiderID {
			continue
		}
		if _, ok := r.players.Get(id); !ok {
			continue
		}
		payload := ImagesReadyPayload{LocationImage: r.locationImage, RoleImage: r.roleImages[id]}
		if payload.LocationImage == "" && payload.RoleImage == "" {
			continue
		}
		r.emit(EventImagesReady, ToPlayer(id), payload)
	}
}

// GuessLocation lets the outsider end the round by naming the location.
func (r *Room) GuessLocation(playerID, guess string) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired {
		return Outcome{}, notFoundf("room %s no longer exists", r.code)
	}
	if _, ok := r.players.Get(playerID); !ok {
		return Outcome{}, notFoundf("player not in room")
	}
	if r.phase != PhasePlaying {
		return Outcome{}, phaseError("guess the location", r.phase)
	}
	if playerID != r.outsiderID {
		log.Debug().Str("room_code", r.code).Str("player_id", playerID).Msg("guess ignored: not the outsider")
		return Outcome{}, authorityf("only the outsider can guess the location")
	}

	guess = strings.TrimSpace(guess)
	if guess == "" {
		return Outcome{}, validationf("guess is required")
	}

	r.emit(EventOutsiderGuessing, ToAll(), OutsiderGuessingPayload{Guess: guess})

	result := ResultTownWins
	if foldName(guess) == foldName(r.location) {
		result = ResultOutsiderWins
	}
	return r.resolve(result, ResolvedByGuess, guess), nil
}

// ResolveRound ends the round. With forced == "" the vote tally decides;
// otherwise forced is scored as a direct-guess resolution. Calling it on an
// ended round returns the recorded outcome unchanged.
func (r *Room) ResolveRound(forced Result) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired {
		return Outcome{}, notFoundf("room %s no longer exists", r.code)
	}
	if r.phase == PhaseEnded && r.outcome != nil {
		return *r.outcome, nil
	}
	if !r.phase.InRound() {
		return Outcome{}, phaseError("resolve the round", r.phase)
	}

	by := ResolvedByVote
	if forced != "" {
		by = ResolvedByGuess
	}
	return r.resolve(forced, by, ""), nil
}

// resolve is the single place a round ends. It is a no-op on an ended round.
func (r *Room) resolve(forced Result, by Resolution, guess string) Outcome {
	if r.phase == PhaseEnded && r.outcome != nil {
		return *r.outcome
	}
	r.stopRoundTimers()

	outcome := Outcome{
		Result:     forced,
		ResolvedBy: by,
		OutsiderID: r.outsiderID,
		Location:   r.location,
		Guess:      guess,
	}
	if outsider, ok := r.players.Get(r.outsiderID); ok {
		outcome.OutsiderName = outsider.Name
	}

	if forced == "" {
		outcome.Tally, outcome.AccusedID = r.tally()
		outcome.Result = ResultOutsiderWins
		if outcome.AccusedID != "" && outcome.AccusedID == r.outsiderID {
			outcome.Result = ResultTownWins
		}
	}

	r.award(outcome)
	r.outcome = &outcome
	r.phase = PhaseEnded

	log.Info().
		Str("room_code", r.code).
		Str("result", string(outcome.Result)).
		Str("resolved_by", string(outcome.ResolvedBy)).
		Msg("round resolved")

	r.emit(EventRoundEnded, ToAll(), RoundEndedPayload{Outcome: outcome, Players: r.players.Views()})
	return outcome
}

func (r *Room) award(o Outcome) {
	switch o.Result {
	case ResultOutsiderWins:
		if p, ok := r.players.Get(r.outsiderID); ok {
			if o.ResolvedBy == ResolvedByGuess {
				p.Score += outsiderGuessPoints
			} else {
				p.Score += outsiderVotePoints
			}
		}
	case ResultTownWins:
		for _, p := range r.players.List() {
			if p.ID != r.outsiderID {
				p.Score += townPoints
			}
		}
	}
}

// tally counts votes per target and picks the plurality. Ties go to the
// target earliest in turn order, then admission order.
func (r *Room) tally() (map[string]int, string) {
	counts := make(map[string]int)
	for voter, target := range r.votes {
		if _, ok := r.players.Get(voter); !ok {
			continue
		}
		counts[target]++
	}

	seen := make(map[string]bool, len(r.order))
	candidates := make([]string, 0, len(r.order))
	for _, id := range append(append([]string(nil), r.order...), r.players.IDs()...) {
		if !seen[id] {
			seen[id] = true
			candidates = append(candidates, id)
		}
	}

	top, best := "", 0
	for _, id := range candidates {
		if counts[id] > best {
			top, best = id, counts[id]
		}
	}
	return counts, top
}
