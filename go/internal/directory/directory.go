package directory

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	mrand "math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/outsider/go/internal/room"
	"github.com/rs/zerolog/log"
)

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
	codeAttempts = 10
)

var ErrNoFreeCode = errors.New("could not allocate a unique room code")

// Catalog is what the directory needs from the content catalog.
type Catalog interface {
	room.LocationSource
	Len() int
}

// Recorder observes the number of live rooms.
type Recorder interface {
	RecordActiveRooms(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordActiveRooms(int) {}

// Settings bound what a room creator may ask for.
type Settings struct {
	DefaultRoundDuration time.Duration
	MinRoundDuration     time.Duration
	MaxRoundDuration     time.Duration
	DefaultPoolSize      int
	Timing               room.Timing
}

func DefaultSettings() Settings {
	return Settings{
		DefaultRoundDuration: 300 * time.Second,
		MinRoundDuration:     30 * time.Second,
		MaxRoundDuration:     time.Hour,
		DefaultPoolSize:      50,
		Timing:               room.DefaultTiming(),
	}
}

// Deps are shared by every room the directory creates.
type Deps struct {
	Clock    clockwork.Clock
	Catalog  Catalog
	Emitter  room.Emitter
	Enricher room.Enricher
	Recorder Recorder
}

// CreateRequest is what a room creator supplies. Zero values take defaults.
type CreateRequest struct {
	OwnerName    string `json:"owner_name"`
	RoundSeconds int    `json:"round_seconds"`
	PoolSize     int    `json:"pool_size"`
	RolesEnabled bool   `json:"roles_enabled"`
}

type Created struct {
	RoomCode   string `json:"room_code"`
	PlayerID   string `json:"player_id"`
	RejoinCode string `json:"rejoin_code"`
}

// Directory is the process-wide registry of active rooms keyed by code.
type Directory struct {
	settings Settings
	deps     Deps
	newCode  func() (string, error)

	mu    sync.RWMutex
	rooms map[string]*room.Room
}

func New(settings Settings, deps Deps) *Directory {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	return &Directory{
		settings: settings,
		deps:     deps,
		newCode:  randomCode,
		rooms:    make(map[string]*room.Room),
	}
}

// Create allocates a code, builds the room and admits the owner. The owner
// binds a connection later by rejoining with the returned credentials.
func (d *Directory) Create(req CreateRequest) (Created, error) {
	ownerName, err := room.NormalizeName(req.OwnerName)
	if err != nil {
		return Created{}, err
	}
	cfg, err := d.roomConfig(req)
	if err != nil {
		return Created{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	code, err := d.allocateCode()
	if err != nil {
		return Created{}, err
	}

	var rm *room.Room
	rm = room.New(code, cfg, d.settings.Timing, room.Deps{
		Clock:    d.deps.Clock,
		Catalog:  d.deps.Catalog,
		Emitter:  d.deps.Emitter,
		Enricher: d.deps.Enricher,
		Rand:     mrand.New(mrand.NewPCG(mrand.Uint64(), mrand.Uint64())),
		OnExpire: func(string) {
			d.mu.Lock()
			defer d.mu.Unlock()
			if d.rooms[code] == rm {
				d.removeLocked(code)
			}
		},
	})

	creds, err := rm.Admit(ownerName)
	if err != nil {
		rm.Close()
		return Created{}, err
	}

	d.rooms[code] = rm
	d.deps.Recorder.RecordActiveRooms(len(d.rooms))

	log.Info().
		Str("room_code", code).
		Int("round_seconds", int(cfg.RoundDuration/time.Second)).
		Int("pool_size", cfg.PoolSize).
		Bool("roles_enabled", cfg.RolesEnabled).
		Msg("room created")

	return Created{RoomCode: code, PlayerID: creds.PlayerID, RejoinCode: creds.RejoinCode}, nil
}

func (d *Directory) roomConfig(req CreateRequest) (room.Config, error) {
	duration := d.settings.DefaultRoundDuration
	if req.RoundSeconds != 0 {
		duration = time.Duration(req.RoundSeconds) * time.Second
	}
	if duration < d.settings.MinRoundDuration || duration > d.settings.MaxRoundDuration {
		return room.Config{}, &room.Error{
			Kind: room.KindValidation,
			Message: fmt.Sprintf("round duration must be between %d and %d seconds",
				int(d.settings.MinRoundDuration/time.Second), int(d.settings.MaxRoundDuration/time.Second)),
		}
	}

	pool := d.settings.DefaultPoolSize
	if req.PoolSize != 0 {
		pool = req.PoolSize
	}
	if pool > d.deps.Catalog.Len() && req.PoolSize == 0 {
		pool = d.deps.Catalog.Len()
	}
	if pool < 1 || pool > d.deps.Catalog.Len() {
		return room.Config{}, &room.Error{
			Kind:    room.KindValidation,
			Message: fmt.Sprintf("location pool size must be between 1 and %d", d.deps.Catalog.Len()),
		}
	}

	return room.Config{RoundDuration: duration, PoolSize: pool, RolesEnabled: req.RolesEnabled}, nil
}

func (d *Directory) allocateCode() (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := d.newCode()
		if err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}
		if _, taken := d.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", ErrNoFreeCode
}

// Get looks a room up by code, ignoring case and surrounding space.
func (d *Directory) Get(code string) (*room.Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rm, ok := d.rooms[NormalizeCode(code)]
	return rm, ok
}

// Remove drops a room immediately and stops its timers.
func (d *Directory) Remove(code string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removeLocked(NormalizeCode(code))
}

func (d *Directory) removeLocked(code string) bool {
	rm, ok := d.rooms[code]
	if !ok {
		return false
	}
	delete(d.rooms, code)
	rm.Close()
	d.deps.Recorder.RecordActiveRooms(len(d.rooms))
	log.Info().Str("room_code", code).Int("active_rooms", len(d.rooms)).Msg("room removed")
	return true
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

// Codes returns the active room codes, sorted.
func (d *Directory) Codes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	codes := make([]string, 0, len(d.rooms))
	for code := range d.rooms {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Close stops every room. Used on shutdown.
func (d *Directory) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for code, rm := range d.rooms {
		rm.Close()
		delete(d.rooms, code)
	}
	d.deps.Recorder.RecordActiveRooms(0)
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func randomCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, codeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}
