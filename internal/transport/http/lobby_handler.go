package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"quiz-lobby-service/internal/app"
	"quiz-lobby-service/internal/domain"
)

// LobbyHandler serves read-only lobby state for operators.
type LobbyHandler struct {
	service *app.LobbyService
	logger  zerolog.Logger
}

func NewLobbyHandler(service *app.LobbyService, logger zerolog.Logger) *LobbyHandler {
	return &LobbyHandler{service: service, logger: logger}
}

// Routes registers the websocket and lobby endpoints on mux.
func Routes(mux *http.ServeMux, ws *WSHandler, lobbies *LobbyHandler) {
	mux.HandleFunc("GET /healthz", lobbies.Health)
	mux.HandleFunc("GET /lobbies/{code}", lobbies.Snapshot)
	mux.HandleFunc("/ws", ws.ServeWS)
}

// Health reports liveness and the number of live lobbies.
func (h *LobbyHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"lobbies": h.service.Registry().Len(),
	})
}

// Snapshot returns the current state of one lobby.
func (h *LobbyHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), r.PathValue("code"))
	if err != nil {
		status := http.StatusInternalServerError
		switch domain.ErrorKind(err) {
		case domain.KindValidation:
			status = http.StatusNotFound
		case domain.KindConnectivity:
			status = http.StatusGatewayTimeout
		default:
			h.logger.Error().Err(err).Msg("lobby snapshot")
		}
		writeJSON(w, status, domain.ErrorPayload{Code: domain.ErrorCode(err), Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
