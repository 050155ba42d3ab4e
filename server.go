package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"i4.energy/across/cellular/modem"
)

// Server handles incoming HTTP requests for interacting with the
// configured modem instance
type Server struct {
	Logger *slog.Logger
	Modem  *modem.Modem
	Data   *modem.DataService
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /signal", s.handleSignal)
	mux.HandleFunc("POST /resolve", s.handleResolve)
	mux.HandleFunc("POST /probe", s.handleProbe)
	mux.ServeHTTP(w, r)
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

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleSignal reports the current signal quality
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	quality, err := s.Modem.Network().SignalQuality(r.Context())
	if err != nil {
		s.Logger.Error("Failed to read signal quality", "error", err)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type SignalResponse struct {
		RssiDbm *int  `json:"rssi_dbm"`
		Ber     uint8 `json:"ber"`
	}
	s.sendJSON(w, SignalResponse{RssiDbm: quality.RssiDbm, Ber: quality.Ber})
}

// handleResolve runs a DNS lookup through the modem
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	type ResolveRequest struct {
		Host string `json:"host"`
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Host == "" {
		s.sendError(w, "the 'host' field is required", http.StatusBadRequest)
		return
	}

	ip, err := s.Data.ResolveHost(r.Context(), req.Host)
	if err != nil {
		var dnsErr *modem.DNSError
		if errors.As(err, &dnsErr) {
			s.sendError(w, err.Error(), http.StatusBadGateway)
			return
		}
		s.Logger.Error("Failed to resolve host", "error", err, "host", req.Host)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type ResolveResponse struct {
		Host string `json:"host"`
		IP   string `json:"ip"`
	}
	s.sendJSON(w, ResolveResponse{Host: req.Host, IP: ip})
}

// handleProbe opens a connection, optionally sends a payload, and
// returns whatever the peer answers within the read budget
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	type ProbeRequest struct {
		Host    string `json:"host"`
		Port    string `json:"port"`
		Payload string `json:"payload"`
	}

	var req ProbeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Host == "" || req.Port == "" {
		s.sendError(w, "both 'host' and 'port' fields are required", http.StatusBadRequest)
		return
	}

	sock, err := s.Data.Connect(r.Context(), "TCP", req.Host, req.Port)
	if err != nil {
		s.Logger.Error("Failed to connect", "error", err, "host", req.Host, "port", req.Port)
		s.sendError(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer sock.Close(r.Context())

	if req.Payload != "" {
		if _, err := sock.Write(r.Context(), []byte(req.Payload)); err != nil {
			s.Logger.Error("Failed to write probe payload", "error", err, "socket", sock.ID())
			s.sendError(w, err.Error(), http.StatusBadGateway)
			return
		}
	}

	buf := make([]byte, 1024)
	n, err := sock.Read(r.Context(), buf)
	if err != nil && !errors.Is(err, modem.ErrReadTimeout) {
		s.Logger.Error("Failed to read probe response", "error", err, "socket", sock.ID())
		s.sendError(w, err.Error(), http.StatusBadGateway)
		return
	}

	type ProbeResponse struct {
		Socket   int    `json:"socket"`
		Response string `json:"response"`
	}
	s.sendJSON(w, ProbeResponse{Socket: sock.ID(), Response: string(buf[:n])})
}
