package debug

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguechat/go/internal/chat/notify"
	"github.com/mcdev12/leaguechat/go/internal/chat/session"
	"github.com/mcdev12/leaguechat/go/internal/models"
)

// StateProvider exposes the session state served by the debug endpoints
type StateProvider interface {
	Snapshot() session.State
	Messages(roomID string) []models.Message
	Feed() *notify.Feed
}

// RoomMessagesResponse is the body of GET /debug/rooms/{roomID}/messages
type RoomMessagesResponse struct {
	RoomID   string           `json:"roomId"`
	Count    int              `json:"count"`
	Messages []models.Message `json:"messages"`
}

// Handler serves read-only session diagnostics
type Handler struct {
	provider StateProvider
	gatherer prometheus.Gatherer
}

func NewHandler(provider StateProvider, gatherer prometheus.Gatherer) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		provider: provider,
		gatherer: gatherer,
	}
}

// Router returns the debug routes wrapped with CORS.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/debug/state", h.HandleState).Methods(http.MethodGet)
	r.HandleFunc("/debug/rooms/{roomID}/messages", h.HandleRoomMessages).Methods(http.MethodGet)
	r.HandleFunc("/debug/notifications", h.HandleNotifications).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

// NewServer returns an HTTP server for the debug routes on addr.
func NewServer(addr string, h *Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// HandleHealth handles GET /healthz
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HandleState handles GET /debug/state
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.provider.Snapshot())
}

// HandleRoomMessages handles GET /debug/rooms/{roomID}/messages
func (h *Handler) HandleRoomMessages(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]
	msgs := h.provider.Messages(roomID)
	if msgs == nil {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, RoomMessagesResponse{RoomID: roomID, Count: len(msgs), Messages: msgs})
}

// HandleNotifications handles GET /debug/notifications
func (h *Handler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.provider.Feed().List())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode debug response")
	}
}
