package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcdev12/outsider/go/internal/directory"
	"github.com/mcdev12/outsider/go/internal/room"
	"github.com/rs/zerolog/log"
)

const maxCreateBody = 4096

// RoomsHandler serves room creation and lookup over plain HTTP.
type RoomsHandler struct {
	rooms Rooms
}

func NewRoomsHandler(rooms Rooms) *RoomsHandler {
	return &RoomsHandler{rooms: rooms}
}

type roomInfo struct {
	RoomCode    string     `json:"room_code"`
	Phase       room.Phase `json:"phase"`
	PlayerCount int        `json:"player_count"`
}

type errorResponse struct {
	Error string    `json:"error"`
	Kind  room.Kind `json:"kind,omitempty"`
}

func (h *RoomsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req directory.CreateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCreateBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: room.KindValidation})
		return
	}

	created, err := h.rooms.Create(req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, created)
	case errors.Is(err, room.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: room.KindValidation})
	case errors.Is(err, directory.ErrNoFreeCode):
		log.Error().Err(err).Int("active_rooms", h.rooms.Len()).Msg("room code space exhausted")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no room codes available, try again"})
	default:
		log.Error().Err(err).Msg("failed to create room")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (h *RoomsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rm, ok := h.rooms.Get(r.PathValue("code"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "room not found", Kind: room.KindNotFound})
		return
	}
	snap := rm.Snapshot()
	writeJSON(w, http.StatusOK, roomInfo{RoomCode: snap.Code, Phase: snap.Phase, PlayerCount: len(snap.Players)})
}

func (h *RoomsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/rooms", h.HandleCreate)
	mux.HandleFunc("GET /api/rooms/{code}", h.HandleGet)
}
