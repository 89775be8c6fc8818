package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"i4.energy/across/cellgw/modem"
)

// Server handles incoming HTTP requests for interacting with the
// configured modem instance
type Server struct {
	Logger    *slog.Logger
	Modem     *modem.Modem
	ContextID int

	router *mux.Router
}

// NewServer builds the HTTP API around one modem instance.
func NewServer(logger *slog.Logger, m *modem.Modem, contextID int) *Server {
	s := &Server{
		Logger:    logger,
		Modem:     m,
		ContextID: contextID,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/signal", s.handleSignal).Methods(http.MethodGet)
	r.HandleFunc("/sim", s.handleSIM).Methods(http.MethodGet)
	r.HandleFunc("/network", s.handleNetwork).Methods(http.MethodGet)
	r.HandleFunc("/pdn", s.handlePDN).Methods(http.MethodGet)
	r.HandleFunc("/dns", s.handleDNS).Methods(http.MethodPost)
	s.router = r

	return s
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	sq, err := s.Modem.Signal(r.Context())
	if err != nil {
		s.Logger.Error("Failed to query signal", "error", err)
		s.sendError(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.sendJSON(w, sq)
}

func (s *Server) handleSIM(w http.ResponseWriter, r *http.Request) {
	info, err := s.Modem.CardInfo(r.Context())
	if err != nil {
		s.Logger.Error("Failed to read SIM", "error", err)
		s.sendError(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.sendJSON(w, info)
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	state, err := s.Modem.RegistrationStatus(r.Context())
	if err != nil {
		s.Logger.Error("Failed to query registration", "error", err)
		s.sendError(w, err.Error(), http.StatusBadGateway)
		return
	}
	operator, err := s.Modem.Operator(r.Context())
	if err != nil {
		s.Logger.Error("Failed to query operator", "error", err)
		s.sendError(w, err.Error(), http.StatusBadGateway)
		return
	}

	s.sendJSON(w, map[string]any{
		"state":      state.String(),
		"registered": state.Registered(),
		"operator":   operator,
	})
}

func (s *Server) handlePDN(w http.ResponseWriter, r *http.Request) {
	contexts, err := s.Modem.PDNStatus(r.Context())
	if err != nil {
		s.Logger.Error("Failed to query PDN contexts", "error", err)
		s.sendError(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.sendJSON(w, contexts)
}

// handleDNS resolves a hostname through the module's DNS client
func (s *Server) handleDNS(w http.ResponseWriter, r *http.Request) {
	type DNSRequest struct {
		Host string `json:"host"`
	}

	var req DNSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Host == "" {
		s.sendError(w, "'host' field is required", http.StatusBadRequest)
		return
	}

	addrs, err := s.Modem.Resolve(r.Context(), s.ContextID, req.Host)
	if err != nil {
		s.Logger.Error("Failed to resolve host", "error", err, "host", req.Host)
		s.sendError(w, err.Error(), http.StatusBadGateway)
		return
	}

	s.sendJSON(w, map[string]any{"host": req.Host, "addresses": addrs})
}
