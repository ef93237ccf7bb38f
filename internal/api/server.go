package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/dyike/RightOfWay/internal/registry"
	"github.com/dyike/RightOfWay/internal/simulation"
	"github.com/dyike/RightOfWay/internal/storage/sqlite"
	"github.com/dyike/RightOfWay/internal/tools"
	"github.com/dyike/RightOfWay/models"
	"github.com/dyike/RightOfWay/pkg/app"
)

// History is the read side of the negotiation archive.
type History interface {
	ListNegotiations(ctx context.Context, cursor int64, limit int) ([]sqlite.NegotiationWithMeta, error)
	GetNegotiation(ctx context.Context, id string) (*sqlite.NegotiationWithMeta, error)
}

// Agents lists the registered agent cards.
type Agents interface {
	Cards() []registry.AgentCard
	Card(id int) (registry.AgentCard, error)
}

type Server struct {
	sim      *simulation.Machine
	neg      tools.Negotiator
	history  History
	agents   Agents
	mcp      *mcpserver.MCPServer
	upgrader websocket.Upgrader
	router   *mux.Router
}

type Option func(*Server)

func WithHistory(h History) Option { return func(s *Server) { s.history = h } }

func WithAgents(a Agents) Option { return func(s *Server) { s.agents = a } }

// WithMCP mounts the MCP server at /mcp over streamable HTTP.
func WithMCP(m *mcpserver.MCPServer) Option { return func(s *Server) { s.mcp = m } }

func NewServer(sim *simulation.Machine, neg tools.Negotiator, opts ...Option) *Server {
	s := &Server{
		sim: sim,
		neg: neg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/simulation", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/simulation", s.handleControl).Methods(http.MethodPost)
	api.HandleFunc("/congestion/{locationId}", s.handleCongestion).Methods(http.MethodGet)
	api.HandleFunc("/negotiate", s.handleNegotiate).Methods(http.MethodPost)
	api.HandleFunc("/negotiations", s.handleListNegotiations).Methods(http.MethodGet)
	api.HandleFunc("/negotiations/{id}", s.handleGetNegotiation).Methods(http.MethodGet)
	api.HandleFunc("/agents", s.handleAgents).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id:[0-9]+}", s.handleAgent).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.handleWS)
	if s.mcp != nil {
		r.PathPrefix("/mcp").Handler(mcpserver.NewStreamableHTTPServer(s.mcp))
	}
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[API] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": time.Now().Unix()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.State())
}

type controlRequest struct {
	Action   string `json:"action"`
	SellerID string `json:"sellerId,omitempty"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.sim.Control(req.Action, req.SellerID); err != nil {
		switch {
		case errors.Is(err, simulation.ErrUnknownAction):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, simulation.ErrUnknownAgent):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, s.sim.State())
}

func (s *Server) handleCongestion(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["locationId"]
	if _, ok := models.ParseLocationID(id); !ok {
		writeError(w, http.StatusNotFound, "unknown location: "+id)
		return
	}
	writeJSON(w, http.StatusOK, s.sim.Board().Level(id))
}

func (s *Server) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	var req app.NegotiationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	out, err := s.neg.Negotiate(r.Context(), req)
	if out == nil {
		switch {
		case errors.Is(err, app.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, registry.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	summary := tools.Summarize(out)
	if err != nil {
		summary.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListNegotiations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "negotiation archive not configured")
		return
	}
	q := r.URL.Query()
	cursor, _ := strconv.ParseInt(q.Get("cursor"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))

	items, err := s.history.ListNegotiations(r.Context(), cursor, limit)
	if err != nil {
		log.Printf("[API] list negotiations: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]any{"negotiations": items}
	if n := len(items); n > 0 {
		resp["nextCursor"] = items[n-1].RowID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetNegotiation(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "negotiation archive not configured")
		return
	}
	id := mux.Vars(r)["id"]
	rec, err := s.history.GetNegotiation(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "negotiation not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if s.agents == nil {
		writeJSON(w, http.StatusOK, []registry.AgentCard{})
		return
	}
	writeJSON(w, http.StatusOK, s.agents.Cards())
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	if s.agents == nil {
		writeError(w, http.StatusNotFound, "agent registry not configured")
		return
	}
	card, err := s.agents.Card(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
