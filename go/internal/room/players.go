package room

import (
	"crypto/subtle"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// MaxNameLength is the longest display name accepted, in characters.
const MaxNameLength = 20

// Player is one member of a room. Score survives across rounds.
type Player struct {
	ID         string
	RejoinCode string
	Name       string
	Owner      bool
	Score      int

	// connID is the live connection bound to this player, "" while offline.
	connID string
}

// Online reports whether a connection is currently bound.
func (p *Player) Online() bool {
	return p.connID != ""
}

// ConnID returns the bound connection id.
func (p *Player) ConnID() string {
	return p.connID
}

// PlayerView is the public projection of a Player.
type PlayerView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Owner  bool   `json:"owner"`
	Online bool   `json:"online"`
	Score  int    `json:"score"`
}

func (p *Player) view() PlayerView {
	return PlayerView{ID: p.ID, Name: p.Name, Owner: p.Owner, Online: p.Online(), Score: p.Score}
}

// Credentials let a player re-establish their identity after a dropped connection.
type Credentials struct {
	PlayerID   string `json:"player_id"`
	RejoinCode string `json:"rejoin_code"`
}

// Registry maps player identity to connection and game-visible attributes.
// It is not safe for concurrent use; the owning Room serializes access.
type Registry struct {
	players  map[string]*Player
	order    []string
	ownerID  string
	admitted int
	newID    func() string
}

func NewRegistry() *Registry {
	return &Registry{
		players: make(map[string]*Player),
		newID:   uuid.NewString,
	}
}

// NormalizeName trims name and checks it is non-empty and short enough.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationf("name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", validationf("name must be at most %d characters", MaxNameLength)
	}
	return name, nil
}

// Add admits a new player. The first player ever admitted becomes owner
// unless an owner already exists.
func (r *Registry) Add(name, connID string) (*Player, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	if r.nameTaken(name) {
		return nil, validationf("name %q is already taken in this room", name)
	}

	p := &Player{
		ID:         r.newID(),
		RejoinCode: r.newID(),
		Name:       name,
		Owner:      r.admitted == 0 && r.ownerID == "",
		connID:     connID,
	}
	if p.Owner {
		r.ownerID = p.ID
	}

	r.players[p.ID] = p
	r.order = append(r.order, p.ID)
	r.admitted++
	return p, nil
}

// Reconnect rebinds an existing player to connID. Score, role and owner flag
// are untouched.
func (r *Registry) Reconnect(id, code, connID string) (*Player, error) {
	p, ok := r.players[id]
	if !ok || subtle.ConstantTimeCompare([]byte(p.RejoinCode), []byte(code)) != 1 {
		return nil, notFoundf("no player matches the supplied rejoin data")
	}
	p.connID = connID
	return p, nil
}

// Disconnect clears the connection of player id if it is still bound to
// connID. A stale connID (already replaced by a reconnect) is ignored.
func (r *Registry) Disconnect(id, connID string) bool {
	p, ok := r.players[id]
	if !ok || p.connID == "" || p.connID != connID {
		return false
	}
	p.connID = ""
	return true
}

// Remove deletes the player. If it was the owner the room becomes ownerless.
func (r *Registry) Remove(id string) (*Player, bool) {
	p, ok := r.players[id]
	if !ok {
		return nil, false
	}

	delete(r.players, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.ownerID == id {
		r.ownerID = ""
	}
	return p, true
}

func (r *Registry) Get(id string) (*Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// Len counts present players, online or not.
func (r *Registry) Len() int {
	return len(r.players)
}

// Live counts players with a bound connection.
func (r *Registry) Live() int {
	n := 0
	for _, p := range r.players {
		if p.Online() {
			n++
		}
	}
	return n
}

// IDs returns player ids in admission order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// LiveIDs returns the ids of online players in admission order.
func (r *Registry) LiveIDs() []string {
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if r.players[id].Online() {
			out = append(out, id)
		}
	}
	return out
}

// List returns players in admission order.
func (r *Registry) List() []*Player {
	out := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.players[id])
	}
	return out
}

// Views returns the public roster in admission order.
func (r *Registry) Views() []PlayerView {
	out := make([]PlayerView, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.players[id].view())
	}
	return out
}

// OwnerID returns the owner's id, "" when the room is ownerless.
func (r *Registry) OwnerID() string {
	return r.ownerID
}

func (r *Registry) nameTaken(name string) bool {
	key := foldName(name)
	for _, p := range r.players {
		if foldName(p.Name) == key {
			return true
		}
	}
	return false
}

func foldName(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
