package room

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/outsider/go/internal/catalog"
	"github.com/mcdev12/outsider/go/internal/images"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) count(t EventType) int {
	return len(r.ofType(t))
}

// forPlayer returns the payloads of type t that player id would receive.
func (r *recorder) forPlayer(t EventType, id string) []any {
	var out []any
	for _, e := range r.ofType(t) {
		if e.Audience.Includes(id) {
			out = append(out, e.Payload)
		}
	}
	return out
}

func (r *recorder) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type captureEnricher struct {
	mu    sync.Mutex
	reqs  []images.Request
	dones []func(images.Result)
}

func (c *captureEnricher) Enrich(req images.Request, done func(images.Result)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	c.dones = append(c.dones, done)
}

func (c *captureEnricher) last() (images.Request, func(images.Result)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.reqs)
	return c.reqs[n-1], c.dones[n-1]
}

type harness struct {
	t        *testing.T
	clock    *clockwork.FakeClock
	events   *recorder
	enricher *captureEnricher
	room     *Room
	expired  chan string
	creds    map[string]Credentials
}

func testCatalog(t *testing.T) *catalog.Catalog {
	c, err := catalog.New([]catalog.Location{
		{Name: "Hospital", Roles: []string{"Surgeon", "Nurse", "Patient", "Intern"}},
		{Name: "Bank", Roles: []string{"Teller", "Manager", "Guard"}},
		{Name: "Beach", Roles: []string{"Lifeguard", "Surfer"}},
		{Name: "Casino", Roles: []string{"Dealer", "Gambler"}},
	})
	require.NoError(t, err)
	return c
}

func testTiming() Timing {
	return Timing{
		TickInterval:       time.Second,
		ConfirmationWindow: 10 * time.Second,
		EmptyGrace:         30 * time.Second,
		InactivityTimeout:  10 * time.Minute,
	}
}

func newHarness(t *testing.T, cfg Config, seed uint64) *harness {
	t.Helper()
	return newHarnessWith(t, cfg, testTiming(), testCatalog(t), seed)
}

func newHarnessWith(t *testing.T, cfg Config, timing Timing, src LocationSource, seed uint64) *harness {
	t.Helper()

	h := &harness{
		t:        t,
		clock:    clockwork.NewFakeClock(),
		events:   &recorder{},
		enricher: &captureEnricher{},
		expired:  make(chan string, 1),
		creds:    make(map[string]Credentials),
	}
	h.room = New("AB12CD", cfg, timing, Deps{
		Clock:    h.clock,
		Catalog:  src,
		Emitter:  h.events,
		Enricher: h.enricher,
		Rand:     rand.New(rand.NewPCG(seed, seed+1)),
		OnExpire: func(code string) { h.expired <- code },
	})
	t.Cleanup(h.room.Close)
	return h
}

func defaultConfig() Config {
	return Config{RoundDuration: 60 * time.Second, PoolSize: 4, RolesEnabled: true}
}

// join admits players in order and returns their ids.
func (h *harness) join(names ...string) []string {
	h.t.Helper()
	ids := make([]string, 0, len(names))
	for _, name := range names {
		c, err := h.room.Join(name, connFor(name))
		require.NoError(h.t, err)
		h.creds[name] = c
		ids = append(ids, c.PlayerID)
	}
	return ids
}

func (h *harness) players(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("P%d", i+1)
	}
	return h.join(names...)
}

func connFor(name string) string {
	return "conn-" + name
}

// with runs fn while holding the room lock.
func (h *harness) with(fn func(r *Room)) {
	h.room.mu.Lock()
	defer h.room.mu.Unlock()
	fn(h.room)
}

func (h *harness) outsider() string {
	var id string
	h.with(func(r *Room) { id = r.outsiderID })
	return id
}

func (h *harness) score(id string) int {
	var s int
	h.with(func(r *Room) {
		p, ok := r.players.Get(id)
		require.True(h.t, ok)
		s = p.Score
	})
	return s
}

func (h *harness) scores(ids []string) map[string]int {
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		out[id] = h.score(id)
	}
	return out
}

func (h *harness) waitPhase(p Phase) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.room.Phase() == p }, time.Second, 5*time.Millisecond)
}

func without(ids []string, skip string) []string {
	var out []string
	for _, id := range ids {
		if id != skip {
			out = append(out, id)
		}
	}
	return out
}

// nameOf maps an id from players(n) back to its "P<i>" name.
func nameOf(ids []string, id string) string {
	for i, pid := range ids {
		if pid == id {
			return fmt.Sprintf("P%d", i+1)
		}
	}
	return ""
}
