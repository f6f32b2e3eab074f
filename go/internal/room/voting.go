package room

import (
	"time"

	"github.com/rs/zerolog/log"
)

// RequestVoteConfirmation opens the majority gate before a real vote.
func (r *Room) RequestVoteConfirmation(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired {
		return notFoundf("room %s no longer exists", r.code)
	}
	p, ok := r.players.Get(playerID)
	if !ok {
		return notFoundf("player not in room")
	}
	if r.phase != PhasePlaying {
		return phaseError("request a vote", r.phase)
	}
	if playerID == r.outsiderID {
		log.Debug().Str("room_code", r.code).Str("player_id", playerID).Msg("vote request ignored: outsider")
		return authorityf("the outsider cannot request a vote")
	}

	r.phase = PhaseVotingConfirmation
	r.confirmations = make(map[string]bool)
	r.confirmInitiatorID = p.ID
	r.confirmInitiatorName = p.Name
	r.confirmDeadline = r.clock.Now().Add(r.timing.ConfirmationWindow)
	r.armConfirmation()

	r.emit(EventVoteConfirmationStarted, ToAll(), r.confirmationStarted())
	return nil
}

// confirmationStarted describes the pending gate with the seconds left
// until its deadline.
func (r *Room) confirmationStarted() VoteConfirmationStartedPayload {
	left := r.confirmDeadline.Sub(r.clock.Now())
	secs := int((left + time.Second - 1) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return VoteConfirmationStartedPayload{
		InitiatorID:     r.confirmInitiatorID,
		InitiatorName:   r.confirmInitiatorName,
		DeadlineSeconds: secs,
	}
}

// SubmitVoteConfirmation records a yes/no. Resubmitting overwrites.
func (r *Room) SubmitVoteConfirmation(playerID string, yes bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired {
		return notFoundf("room %s no longer exists", r.code)
	}
	if _, ok := r.players.Get(playerID); !ok {
		return notFoundf("player not in room")
	}
	if r.phase != PhaseVotingConfirmation {
		return phaseError("confirm a vote", r.phase)
	}

	r.confirmations[playerID] = yes

	yesCount, noCount, total := r.confirmationCounts()
	r.emit(EventVoteConfirmationProgress, ToAll(), VoteConfirmationProgressPayload{
		VotedCount: yesCount + noCount,
		TotalCount: total,
	})

	r.maybeResolveConfirmation()
	return nil
}

// confirmationCounts counts the ballots of online players. total is the
// online player count.
func (r *Room) confirmationCounts() (yes, no, total int) {
	for _, p := range r.players.List() {
		if !p.Online() {
			continue
		}
		total++
		v, voted := r.confirmations[p.ID]
		switch {
		case !voted:
		case v:
			yes++
		default:
			no++
		}
	}
	return yes, no, total
}

// maybeResolveConfirmation closes the gate early once the outcome can no
// longer change: everyone voted, yes already has a strict majority, or yes
// can no longer reach one.
func (r *Room) maybeResolveConfirmation() {
	yes, no, total := r.confirmationCounts()
	if yes+no == total || yes*2 > total || (total-no)*2 <= total {
		r.resolveConfirmation()
	}
}

// resolveConfirmation tallies the gate. Non-voters count as no. It runs at
// most once per request because it leaves voting_confirmation.
func (r *Room) resolveConfirmation() {
	if r.phase != PhaseVotingConfirmation {
		return
	}
	r.stopConfirmation()

	yes, _, total := r.confirmationCounts()
	approved := yes*2 > total

	r.emit(EventVoteConfirmationResult, ToAll(), VoteConfirmationResultPayload{
		Approved: approved,
		YesCount: yes,
		NoCount:  total - yes,
	})

	if approved {
		r.enterVoting()
		return
	}

	r.phase = PhasePlaying
	r.confirmations = make(map[string]bool)
	r.emit(EventTick, ToAll(), TickPayload{RemainingSeconds: r.remaining})
}

// StartVoting skips the confirmation gate and opens the vote directly. It is
// only valid while playing.
func (r *Room) StartVoting() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired {
		return notFoundf("room %s no longer exists", r.code)
	}
	if r.phase != PhasePlaying {
		return phaseError("start voting", r.phase)
	}
	r.enterVoting()
	return nil
}

func (r *Room) enterVoting() {
	r.stopCountdown()
	r.stopConfirmation()
	r.votes = make(map[string]string)
	r.confirmations = make(map[string]bool)
	r.phase = PhaseVoting

	log.Info().Str("room_code", r.code).Msg("voting started")
	r.emit(EventVotingStarted, ToAll(), VotingStartedPayload{Candidates: r.players.Views()})
}

// CastVote records voterID's accusation. The round resolves once every
// online player has voted.
func (r *Room) CastVote(voterID, targetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired {
		return notFoundf("room %s no longer exists", r.code)
	}
	if _, ok := r.players.Get(voterID); !ok {
		return notFoundf("player not in room")
	}
	if r.phase != PhaseVoting {
		return phaseError("vote", r.phase)
	}
	if _, ok := r.players.Get(targetID); !ok {
		return validationf("vote target is not in the room")
	}

	r.votes[voterID] = targetID

	if r.allVoted() {
		r.resolve("", ResolvedByVote, "")
		return nil
	}

	voted, total := r.voteCounts()
	r.emit(EventVoteCast, ToAll(), VoteCastPayload{VotedCount: voted, TotalCount: total})
	return nil
}

func (r *Room) voteCounts() (voted, total int) {
	for _, p := range r.players.List() {
		if !p.Online() {
			continue
		}
		total++
		if _, ok := r.votes[p.ID]; ok {
			voted++
		}
	}
	return voted, total
}

func (r *Room) allVoted() bool {
	voted, total := r.voteCounts()
	return total > 0 && voted == total
}
