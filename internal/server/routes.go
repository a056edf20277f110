package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := mux.NewRouter()

	// Apply CORS middleware
	r.Use(s.corsMiddleware)

	r.HandleFunc("/health", s.HealthHandler)

	r.HandleFunc("/api/rooms/join-random", s.JoinRandomHandler)
	r.HandleFunc("/api/rooms/generate-id", s.GenerateIdHandler)
	r.HandleFunc("/api/images/game-over", s.GameOverImageHandler)

	r.HandleFunc("/ws", s.ws.HandleSocket)

	return r
}

// CORS middleware. With no configured origins every origin is allowed.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed := "*"
		if len(s.cfg.CORSAllowedOrigins) > 0 {
			allowed = ""
			origin := r.Header.Get("Origin")
			for _, o := range s.cfg.CORSAllowedOrigins {
				if o == origin {
					allowed = origin
					break
				}
			}
		}
		if allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Credentials", "false")
		}

		// If it's a websocket upgrade, skip further CORS checks
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		s.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// JoinRandomHandler returns a public room with a free seat, or 404 when
// nobody is hosting one.
func (s *Server) JoinRandomHandler(w http.ResponseWriter, r *http.Request) {
	roomId, err := s.engine.FindPublicRoom(r.Context())
	if err != nil {
		s.logger.Error("join-random lookup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "something went wrong"})
		return
	}
	if roomId == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no joinable rooms available"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"room_id": roomId})
}

// GenerateIdHandler hands out an adjective-noun room slug that no live room
// is using.
func (s *Server) GenerateIdHandler(w http.ResponseWriter, r *http.Request) {
	for range 16 {
		id := petname.Generate(2, "-")
		exists, err := s.store.RoomExists(r.Context(), id)
		if err != nil {
			s.logger.Error("generate-id lookup failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "something went wrong"})
			return
		}
		if !exists {
			writeJSON(w, http.StatusOK, map[string]string{"room_id": id})
			return
		}
	}
	// Every petname collided; fall back to something that cannot.
	id := petname.Generate(2, "-") + "-" + uuid.NewString()[:8]
	writeJSON(w, http.StatusOK, map[string]string{"room_id": id})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
