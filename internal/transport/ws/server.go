// Package ws carries player input in and simulation state out over
// WebSocket connections.
package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/vovakirdan/runstake/internal/session"
	"github.com/vovakirdan/runstake/internal/storage"
)

// Records looks up persisted runs. *storage.Store implements it.
type Records interface {
	RunByID(id string) (*storage.RunRecord, error)
}

// Server accepts WebSocket connections and binds them to runs.
type Server struct {
	manager  *session.Manager
	records  Records
	registry *session.Registry
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewServer creates a WebSocket server for the given manager.
func NewServer(manager *session.Manager, records Records, logger *log.Logger) *Server {
	return &Server{
		manager:  manager,
		records:  records,
		registry: session.NewRegistry(),
		upgrader: websocket.Upgrader{
			// Origins are enforced by the CORS layer.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.WithPrefix("ws"),
	}
}

// Handler returns the HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /runs/{id}", s.handleRun)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

// HTTPServer wraps Handler in an http.Server with sane timeouts.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	return s.registry.Count()
}

// handleWebSocket upgrades the request. With ?run=<id>&user=<u> the
// connection reattaches to an active run.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run")
	user := r.URL.Query().Get("user")

	var run *session.Run
	if runID != "" {
		run = s.manager.Get(runID)
		owner, ok := s.manager.Owner(runID)
		if run == nil || !ok || owner != user {
			http.Error(w, "run not active", http.StatusNotFound)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := newConnection(conn, s.manager, s.logger)
	s.registry.Register(client.handle)
	s.logger.Info("Client connected", "total", s.registry.Count())

	go func() {
		<-client.handle.Done()
		s.registry.Unregister(client.handle.ID())
		s.logger.Info("Client disconnected", "total", s.registry.Count())
	}()

	client.start()
	if run != nil {
		client.attach(run, user)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// runView is the public JSON form of a run record.
type runView struct {
	ID               string `json:"id"`
	User             string `json:"user"`
	RunCount         int    `json:"runCount"`
	Commitment       string `json:"commitment"`
	Secret           string `json:"secret,omitempty"`
	PlayerSeed       string `json:"playerSeed"`
	InitialLedger    string `json:"initialLedger"`
	FinalLedger      string `json:"finalLedger,omitempty"`
	Reason           string `json:"reason"`
	EventsDigest     string `json:"eventsDigest,omitempty"`
	RulesFingerprint string `json:"rulesFingerprint"`
	Verified         bool   `json:"verified"`
	Finalized        bool   `json:"finalized"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.records.RunByID(r.PathValue("id"))
	if err != nil {
		s.logger.Error("Failed to load run", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(runView{
		ID:               rec.ID,
		User:             rec.User,
		RunCount:         rec.RunCount,
		Commitment:       rec.Commitment,
		Secret:           rec.Secret,
		PlayerSeed:       rec.PlayerSeed,
		InitialLedger:    rec.InitialLedger,
		FinalLedger:      rec.FinalLedger,
		Reason:           string(rec.Reason),
		EventsDigest:     rec.EventsDigest,
		RulesFingerprint: rec.RulesFingerprint,
		Verified:         rec.Verified,
		Finalized:        rec.Finalized(),
	})
}
