package room

// Phase is the lifecycle position of a room's current round.
type Phase string

const (
	PhaseWaiting            Phase = "waiting"
	PhasePlaying            Phase = "playing"
	PhaseVotingConfirmation Phase = "voting_confirmation"
	PhaseVoting             Phase = "voting"
	PhaseEnded              Phase = "ended"
)

// CanTransitionTo reports whether moving from p to next is a legal edge.
// Reset to waiting is legal from everywhere.
func (p Phase) CanTransitionTo(next Phase) bool {
	if next == PhaseWaiting {
		return true
	}
	switch p {
	case PhaseWaiting:
		return next == PhasePlaying
	case PhasePlaying:
		return next == PhaseVotingConfirmation || next == PhaseVoting || next == PhaseEnded
	case PhaseVotingConfirmation:
		return next == PhasePlaying || next == PhaseVoting
	case PhaseVoting:
		return next == PhaseEnded
	default:
		return false
	}
}

// InRound reports whether a secret is currently assigned and unresolved.
func (p Phase) InRound() bool {
	return p == PhasePlaying || p == PhaseVotingConfirmation || p == PhaseVoting
}

// Result is the binary outcome of a resolved round.
type Result string

const (
	ResultOutsiderWins Result = "outsider_wins"
	ResultTownWins     Result = "town_wins"
)

// Resolution records how a round was decided; it drives scoring.
type Resolution string

const (
	ResolvedByGuess Resolution = "guess"
	ResolvedByVote  Resolution = "vote"
)

const (
	outsiderGuessPoints = 3
	outsiderVotePoints  = 2
	townPoints          = 1
)
