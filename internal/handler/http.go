package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/reeldle/internal/domain"
	"github.com/reeldle/internal/service"
	"github.com/reeldle/internal/websocket"
)

// Handler provides HTTP handlers for the daily game API
type Handler struct {
	service *service.GameService
	hub     *websocket.Hub
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service *service.GameService, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// guessRequest is the body of a guess submission
type guessRequest struct {
	Guess string `json:"guess"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/game", func(r chi.Router) {
			r.Get("/", h.GetGame)
			r.Post("/guess", h.SubmitGuess)
		})

		r.Get("/stats", h.GetStats)
		r.Get("/movies/search", h.SearchMovies)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-Session-Token")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// sessionToken extracts the opaque player token from the request: the
// X-Session-Token header, falling back to the session cookie.
func sessionToken(r *http.Request) string {
	if token := r.Header.Get("X-Session-Token"); token != "" {
		return token
	}
	if cookie, err := r.Cookie("session"); err == nil {
		return cookie.Value
	}
	return ""
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps domain errors to HTTP statuses. Internal errors
// surface a generic message; the detail stays in the logs.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrGameNotActive):
		h.writeError(w, http.StatusConflict, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrCatalogUnavailable):
		h.logger.Error(op, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrCatalogUnavailable)
	default:
		h.logger.Error(op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// GetGame returns the player's state for today's game, creating the daily
// game and the player's session as needed
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.GameState(r.Context(), sessionToken(r))
	if err != nil {
		h.writeServiceError(w, "failed to get game state", err)
		return
	}
	h.writeSuccess(w, state)
}

// SubmitGuess handles a guess submission
func (h *Handler) SubmitGuess(w http.ResponseWriter, r *http.Request) {
	var req guessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	state, err := h.service.SubmitGuess(r.Context(), sessionToken(r), req.Guess)
	if err != nil {
		h.writeServiceError(w, "failed to submit guess", err)
		return
	}
	h.writeSuccess(w, state)
}

// GetStats returns the player's cumulative statistics
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.PlayerStats(r.Context(), sessionToken(r))
	if err != nil {
		h.writeServiceError(w, "failed to get stats", err)
		return
	}
	h.writeSuccess(w, stats)
}

// SearchMovies returns title autocomplete results
func (h *Handler) SearchMovies(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.SearchMovies(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeServiceError(w, "failed to search movies", err)
		return
	}
	h.writeSuccess(w, results)
}
