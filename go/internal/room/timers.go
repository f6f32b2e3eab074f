package room

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type evictionKind int

const (
	evictNone evictionKind = iota
	evictInactivity
	evictEmpty
)

func (k evictionKind) reason() string {
	switch k {
	case evictInactivity:
		return "no round was started in time"
	case evictEmpty:
		return "room was empty"
	default:
		return ""
	}
}

// startCountdown arms the repeating tick for the current round. Remaining
// time is derived from the deadline, so a late or coalesced tick never makes
// it jump backwards.
func (r *Room) startCountdown() {
	r.stopCountdown()

	r.deadline = r.clock.Now().Add(r.cfg.RoundDuration)
	r.remaining = int(r.cfg.RoundDuration / time.Second)

	stop := make(chan struct{})
	r.countdownStop = stop
	ticker := r.clock.NewTicker(r.timing.TickInterval)
	go r.runCountdown(ticker, stop, r.generation)
}

func (r *Room) runCountdown(ticker clockwork.Ticker, stop <-chan struct{}, gen uint64) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if done := r.tick(gen); done {
				return
			}
		}
	}
}

// tick returns true once the countdown has nothing left to do.
func (r *Room) tick(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired || gen != r.generation {
		return true
	}
	if r.phase != PhasePlaying && r.phase != PhaseVotingConfirmation {
		return true
	}

	left := r.deadline.Sub(r.clock.Now())
	secs := int((left + time.Second - 1) / time.Second)
	if secs < 0 {
		secs = 0
	}
	if secs < r.remaining {
		r.remaining = secs
	}

	if r.remaining > 0 {
		// Ticks stay quiet while a confirmation vote is pending.
		if r.phase == PhasePlaying {
			r.emit(EventTick, ToAll(), TickPayload{RemainingSeconds: r.remaining})
		}
		return false
	}

	log.Info().Str("room_code", r.code).Msg("round time is up")
	r.countdownStop = nil
	r.enterVoting()
	return true
}

func (r *Room) stopCountdown() {
	if r.countdownStop != nil {
		close(r.countdownStop)
		r.countdownStop = nil
	}
}

func (r *Room) armConfirmation() {
	r.stopConfirmation()
	r.confirmSeq++
	seq := r.confirmSeq
	r.confirmTimer = r.clock.AfterFunc(r.timing.ConfirmationWindow, func() {
		r.confirmationExpired(seq)
	})
}

func (r *Room) confirmationExpired(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired || seq != r.confirmSeq || r.phase != PhaseVotingConfirmation {
		return
	}
	r.confirmTimer = nil
	r.resolveConfirmation()
}

func (r *Room) stopConfirmation() {
	if r.confirmTimer != nil {
		r.confirmTimer.Stop()
		r.confirmTimer = nil
	}
	// Invalidate a callback that already fired but has not taken the lock.
	r.confirmSeq++
}

func (r *Room) stopRoundTimers() {
	r.stopCountdown()
	r.stopConfirmation()
}

// armInactivity schedules eviction for a room where no round has started,
// counted from creation.
func (r *Room) armInactivity() {
	if r.roundStarted || r.timing.InactivityTimeout <= 0 {
		return
	}
	wait := r.createdAt.Add(r.timing.InactivityTimeout).Sub(r.clock.Now())
	if wait < 0 {
		wait = 0
	}
	r.armEviction(evictInactivity, wait)
}

// settleEviction makes the eviction timer match the current membership: an
// empty room gets the grace timer, an occupied room that never started a
// round gets the inactivity timer, anything else gets none.
func (r *Room) settleEviction() {
	switch {
	case r.players.Live() == 0:
		if r.evictKind != evictEmpty {
			r.armEviction(evictEmpty, r.timing.EmptyGrace)
		}
	case !r.roundStarted:
		if r.evictKind != evictInactivity {
			r.armInactivity()
		}
	default:
		r.cancelEviction()
	}
}

func (r *Room) armEviction(kind evictionKind, d time.Duration) {
	r.cancelEviction()
	r.evictSeq++
	seq := r.evictSeq
	r.evictKind = kind
	r.evictTimer = r.clock.AfterFunc(d, func() {
		r.evict(seq)
	})
}

func (r *Room) cancelEviction() {
	if r.evictTimer != nil {
		r.evictTimer.Stop()
		r.evictTimer = nil
	}
	r.evictKind = evictNone
	r.evictSeq++
}

func (r *Room) evict(seq uint64) {
	r.mu.Lock()
	if r.expired || seq != r.evictSeq {
		r.mu.Unlock()
		return
	}

	reason := r.evictKind.reason()
	r.expired = true
	r.evictTimer = nil
	r.evictKind = evictNone
	r.stopRoundTimers()

	r.stopDrops()

	log.Info().Str("room_code", r.code).Str("reason", reason).Msg("room expired")
	r.emit(EventRoomExpired, ToAll(), RoomExpiredPayload{Reason: reason})
	r.mu.Unlock()

	r.onExpire(r.code)
}

type pendingDrop struct {
	timer clockwork.Timer
	seq   uint64
}

// armDrop schedules the definitive removal of a player who went offline.
func (r *Room) armDrop(playerID string) {
	if r.timing.DisconnectGrace <= 0 {
		return
	}
	r.cancelDrop(playerID)
	r.dropSeq++
	seq := r.dropSeq
	r.drops[playerID] = pendingDrop{
		seq: seq,
		timer: r.clock.AfterFunc(r.timing.DisconnectGrace, func() {
			r.dropExpired(playerID, seq)
		}),
	}
}

func (r *Room) cancelDrop(playerID string) {
	if d, ok := r.drops[playerID]; ok {
		d.timer.Stop()
		delete(r.drops, playerID)
	}
}

func (r *Room) stopDrops() {
	for id := range r.drops {
		r.cancelDrop(id)
	}
}

func (r *Room) dropExpired(playerID string, seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drops[playerID]
	if r.expired || !ok || d.seq != seq {
		return
	}
	delete(r.drops, playerID)

	if p, ok := r.players.Get(playerID); !ok || p.Online() {
		return
	}
	r.remove(playerID, "disconnect timeout")
}

// Expired reports whether an eviction timer has already retired the room.
func (r *Room) Expired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expired
}
