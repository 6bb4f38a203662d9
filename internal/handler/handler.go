package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"boardsync/internal/config"
	"boardsync/internal/hub"
	"boardsync/internal/model"
	"boardsync/internal/store"
)

// Catalog records board identities outside the process.
type Catalog interface {
	SaveBoard(ctx context.Context, b model.BoardSummary) error
}

// Handler holds application dependencies
type Handler struct {
	Store   *store.Store
	Hub     *hub.Hub
	Catalog Catalog
	Config  config.Config
}

// New creates a new Handler with the given dependencies. catalog may be nil.
func New(s *store.Store, h *hub.Hub, catalog Catalog, cfg config.Config) *Handler {
	return &Handler{
		Store:   s,
		Hub:     h,
		Catalog: catalog,
		Config:  cfg,
	}
}

// SetupRouter configures and returns the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)

	// REST API
	r.HandleFunc("/boards", h.GetBoards).Methods("GET")
	r.HandleFunc("/boards", h.CreateBoard).Methods("POST")
	r.HandleFunc("/boards/{id}", h.GetBoard).Methods("GET")
	r.HandleFunc("/boards/{id}/boxes/{uuid}", h.DeleteBox).Methods("DELETE")

	// WebSocket
	r.HandleFunc("/ws", h.HandleWebSocket).Methods("GET")

	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		log.Printf("[HTTP] %s %s -> %d (%s)", r.Method, r.URL.Path, m.Code, m.Duration)
	})
}
