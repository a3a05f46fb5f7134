// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package hueapi implements the REST surface of the emulated bridge.
//
// The surface is the minimal subset of the Hue bridge API that voice
// assistants exercise: the UPnP description document, the pairing endpoint,
// and the light listing/read/write endpoints. Handlers read current state at
// call time; nothing is cached across requests.
//
// Pairing always succeeds with a fixed token and no handler validates the
// token on later requests. That mirrors the device being emulated: trust is
// scoped to the local network, not to credentials. Do not add authentication
// here without re-scoping that boundary.
package hueapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/soothill/hue-bridge-emulator/pkg/interfaces"
	"github.com/soothill/hue-bridge-emulator/pkg/logger"
	"github.com/soothill/hue-bridge-emulator/pkg/metrics"
	"github.com/soothill/hue-bridge-emulator/registry"
	"github.com/soothill/hue-bridge-emulator/state"
)

// PairingToken is the static credential returned by the pairing endpoint.
const PairingToken = "c6260f982b43a226b5542b967f612ce"

const (
	lightType      = "Extended color light"
	lightModelID   = "LCT007"
	lightSwVersion = "5.105.0.21169"

	shutdownGracePeriod = 10 * time.Second
)

// CommitListener is notified after a state write has been persisted.
// The notification runs off the request path; implementations must not
// assume they can fail the originating request.
type CommitListener interface {
	StateCommitted(device interfaces.Device, attrs state.Attributes)
}

// LightState is the state block of one light as serialized to clients.
type LightState struct {
	On        bool   `json:"on"`
	Bri       int    `json:"bri"`
	Hue       int    `json:"hue"`
	Sat       int    `json:"sat"`
	Effect    string `json:"effect"`
	Ct        int    `json:"ct"`
	Alert     string `json:"alert"`
	ColorMode string `json:"colormode"`
	Reachable bool   `json:"reachable"`
}

// Light is one light as serialized to clients.
type Light struct {
	State     LightState `json:"state"`
	Type      string     `json:"type"`
	Name      string     `json:"name"`
	ModelID   string     `json:"modelid"`
	UniqueID  string     `json:"uniqueid"`
	SwVersion string     `json:"swversion"`
}

// Server serves the bridge REST API.
type Server struct {
	hubID    string
	port     int
	registry *registry.Registry
	store    *state.Store
	listener CommitListener

	srv *http.Server
}

// NewServer creates the API server. The commit listener may be nil.
func NewServer(hubID string, port int, reg *registry.Registry, store *state.Store, listener CommitListener) *Server {
	return &Server{
		hubID:    hubID,
		port:     port,
		registry: reg,
		store:    store,
		listener: listener,
	}
}

// Router builds the request router. Exposed for tests.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/description.xml", s.handleDescription).Methods(http.MethodGet)
	r.HandleFunc("/api", s.handlePairing).Methods(http.MethodPost)
	r.HandleFunc("/api/{token}", s.handlePairing).Methods(http.MethodGet)
	r.HandleFunc("/api/{token}/lights", s.handleLights).Methods(http.MethodGet)
	r.HandleFunc("/api/{token}/lights/{id}", s.handleLight).Methods(http.MethodGet)
	r.HandleFunc("/api/{token}/lights/{id}/state", s.handleSetState).Methods(http.MethodPut)

	return r
}

// Start binds the HTTP listener. It returns once the port is bound;
// serving continues in the background until Shutdown.
// A bind failure is reported immediately, not retried.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind API port %d: %w", s.port, err)
	}

	logger.Info().Int("port", s.port).Msg("Hue API listening")

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Hue API server error")
		}
	}()

	return nil
}

// Shutdown stops accepting connections and lets in-flight requests finish
// within the grace period.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
	defer cancel()

	logger.Info().Msg("Shutting down Hue API")
	return s.srv.Shutdown(ctx)
}

// instrument wraps handlers with request logging and metrics.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}
		metrics.APIRequestsTotal.WithLabelValues(endpoint, r.Method).Inc()

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Msg("API request")

		next.ServeHTTP(w, r)
	})
}

// handleDescription renders the UPnP device description using the host the
// client reached us on, so the document is valid on multi-homed machines.
func (s *Server) handleDescription(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if h, _, err := net.SplitHostPort(r.Host); err == nil {
		host = h
	}

	data := descriptionData{
		Address: host,
		Port:    s.port,
		HubID:   s.hubID,
	}

	w.Header().Set("Content-Type", "application/xml")
	if err := descriptionTemplate.Execute(w, data); err != nil {
		logger.Error().Err(err).Msg("Failed to render device description")
	}
}

// handlePairing serves both POST /api and GET /api/{token}. Every caller
// receives the same static token; any request body is ignored.
func (s *Server) handlePairing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, []map[string]map[string]string{
		{"success": {"username": PairingToken}},
	})
}

// handleLights lists every registered device merged with its stored state.
func (s *Server) handleLights(w http.ResponseWriter, _ *http.Request) {
	lights := make(map[string]Light)
	for _, dev := range s.registry.List() {
		lights[dev.ID] = s.light(dev.Name, dev.ID)
	}
	writeJSON(w, lights)
}

// handleLight returns one device's merged state. An unknown id is served
// with the default record and an empty name rather than an error.
func (s *Server) handleLight(w http.ResponseWriter, r *http.Request) {
	id := registry.NormalizeID(mux.Vars(r)["id"])

	name := ""
	if dev, ok := s.registry.Lookup(id); ok {
		name = dev.Name
	}
	writeJSON(w, s.light(name, id))
}

// handleSetState applies a partial update and answers with the standard Hue
// success array. The outward sync notification runs after the store commit
// and never affects the response.
func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	id := registry.NormalizeID(mux.Vars(r)["id"])

	var update state.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		logger.Warn().Err(err).Str("device_id", id).Msg("Malformed state update body")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	attrs, err := s.store.Set(id, update)
	if err != nil {
		logger.Error().Err(err).Str("device_id", id).Msg("Failed to persist state update")
		http.Error(w, "failed to persist state", http.StatusInternalServerError)
		return
	}

	metrics.StateUpdatesTotal.WithLabelValues("api").Inc()
	writeJSON(w, successResponse(id, update))

	if s.listener != nil {
		device, ok := s.registry.Lookup(id)
		if !ok {
			device = interfaces.Device{ID: id}
		}
		go s.listener.StateCommitted(device, attrs)
	}
}

// light assembles the client-facing view of one device.
func (s *Server) light(name, id string) Light {
	attrs := s.store.Get(id)
	return Light{
		State: LightState{
			On:        attrs.On,
			Bri:       attrs.Bri,
			Hue:       attrs.Hue,
			Sat:       attrs.Sat,
			Effect:    "none",
			Ct:        attrs.Ct,
			Alert:     "none",
			ColorMode: attrs.ColorMode,
			Reachable: true,
		},
		Type:      lightType,
		Name:      name,
		ModelID:   lightModelID,
		UniqueID:  id,
		SwVersion: lightSwVersion,
	}
}

// successResponse builds the per-attribute Hue success array for a write.
func successResponse(id string, u state.Update) []map[string]map[string]interface{} {
	prefix := fmt.Sprintf("/lights/%s/state/", id)
	entries := make([]map[string]map[string]interface{}, 0, 5)

	add := func(key string, value interface{}) {
		entries = append(entries, map[string]map[string]interface{}{
			"success": {prefix + key: value},
		})
	}

	if u.On != nil {
		add("on", *u.On)
	}
	if u.Bri != nil {
		add("bri", *u.Bri)
	}
	if u.Hue != nil {
		add("hue", *u.Hue)
	}
	if u.Sat != nil {
		add("sat", *u.Sat)
	}
	if u.Ct != nil {
		add("ct", *u.Ct)
	}
	return entries
}

// writeJSON serializes a response body with the JSON content type.
func writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response body")
	}
}
