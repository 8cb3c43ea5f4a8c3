package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"

	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// SessionReader looks up recorded sessions.
type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (domain.SessionRecord, error)
}

// RoomsHandler serves the REST side: room creation, room info, join QR
// codes and recorded sessions.
type RoomsHandler struct {
	registry  *app.Registry
	sessions  SessionReader
	publicURL string
	logger    *slog.Logger
}

func NewRoomsHandler(registry *app.Registry, sessions SessionReader, publicURL string, logger *slog.Logger) *RoomsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomsHandler{
		registry:  registry,
		sessions:  sessions,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger,
	}
}

type createRoomRequest struct {
	QuizID string `json:"quizId"`
	HostID string `json:"hostId"`
}

type createRoomResponse struct {
	RoomCode string `json:"roomCode"`
	JoinURL  string `json:"joinUrl"`
}

// CreateRoom handles POST /rooms.
func (h *RoomsHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" || req.HostID == "" {
		writeError(w, http.StatusBadRequest, "quizId and hostId are required")
		return
	}
	info, err := h.registry.Create(r.Context(), req.QuizID, req.HostID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createRoomResponse{RoomCode: info.Code, JoinURL: h.joinURL(info.Code)})
}

// GetRoom handles GET /rooms/{code}.
func (h *RoomsHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	info, err := h.registry.Info(app.NormalizeCode(r.PathValue("code")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// RoomQR handles GET /rooms/{code}/qr with a PNG of the join URL.
func (h *RoomsHandler) RoomQR(w http.ResponseWriter, r *http.Request) {
	code := app.NormalizeCode(r.PathValue("code"))
	if _, err := h.registry.Info(code); err != nil {
		h.writeDomainError(w, err)
		return
	}
	png, err := qrcode.Encode(h.joinURL(code), qrcode.Medium, qrSize)
	if err != nil {
		h.logger.Error("encode qr", "room", code, "error", err)
		writeError(w, http.StatusInternalServerError, "could not render qr code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// GetSession handles GET /sessions/{id}.
func (h *RoomsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	rec, err := h.sessions.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RoomsHandler) joinURL(code string) string {
	return h.publicURL + "/join/" + code
}

func (h *RoomsHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrCodeSpaceExhausted):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Message: message})
}
