// Package statusapi implements the C9 read-only HTTP status API: a thin
// gorilla/mux router over the HDMI network's device snapshots, built the
// same way capi/main.go serves its JSON endpoints (a uniform envelope via
// respondJSON/respondSuccess/respondError).
package statusapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/konikvranik/cecbridge/internal/device"
	"github.com/konikvranik/cecbridge/internal/frame"
)

// Network is the subset of *hdmi.Network the status API reads.
type Network interface {
	Devices() []frame.LogicalAddress
	Snapshot(addr frame.LogicalAddress) (device.Snapshot, bool)
	Snapshots() []device.Snapshot
	AdapterReady() bool
}

// Server is the C9 HTTP API. It never mutates the network; it only reads
// snapshots the device loop already owns.
type Server struct {
	network Network
	router  *mux.Router
	http    *http.Server
}

// response is the uniform JSON envelope every handler replies with.
type response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// New builds a status API server around network, ready to Serve on addr.
func New(network Network, addr string) *Server {
	s := &Server{network: network, router: mux.NewRouter()}
	s.router.HandleFunc("/api/health", s.healthHandler).Methods("GET")
	s.router.HandleFunc("/api/devices", s.devicesHandler).Methods("GET")
	s.router.HandleFunc("/api/devices/{address}", s.deviceHandler).Methods("GET")
	s.http = &http.Server{Addr: addr, Handler: s.router}
	return s
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown closes the HTTP server immediately, including any active
// connections.
func (s *Server) Shutdown() error {
	return s.http.Close()
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, response{Status: "error", Message: message})
}

func respondSuccess(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, response{Status: "success", Data: data})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, map[string]interface{}{
		"status":        "ok",
		"devices":       len(s.network.Devices()),
		"adapter_ready": s.network.AdapterReady(),
	})
}

func (s *Server) devicesHandler(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, s.network.Snapshots())
}

func (s *Server) deviceHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addr, err := strconv.Atoi(vars["address"])
	if err != nil || addr < 0 || addr > 15 {
		respondError(w, http.StatusBadRequest, "invalid logical address")
		return
	}
	snap, ok := s.network.Snapshot(frame.LogicalAddress(addr))
	if !ok {
		respondError(w, http.StatusNotFound, "device not found")
		return
	}
	respondSuccess(w, snap)
}
