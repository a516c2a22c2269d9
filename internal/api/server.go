// Package api exposes the daemon's HTTP control surface: a small JSON API
// over the node registry and DMX output, plus a WebSocket monitor feed.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/openlumen/artnode/internal/database/models"
	"github.com/openlumen/artnode/internal/database/repositories"
	"github.com/openlumen/artnode/internal/services/dmx"
	"github.com/openlumen/artnode/internal/services/fade"
	"github.com/openlumen/artnode/internal/services/pubsub"
	"github.com/openlumen/artnode/internal/services/registry"
	"github.com/openlumen/artnode/pkg/artnet"
)

// Version is set at build time.
var Version = "0.1.0"

// Config carries the API server's wiring.
type Config struct {
	CORSOrigin      string
	Development     bool
	DiscoveryWindow time.Duration // defaults to 3s
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	log      *logrus.Entry
	cfg      Config
	router   chi.Router
	tx       *dmx.Transmitter
	fades    *fade.Engine
	reg      *registry.Service
	nodes    *repositories.NodeRepository
	ps       *pubsub.PubSub
	upgrader websocket.Upgrader
}

// NewServer builds the router. Pass the result to http.Server as Handler.
func NewServer(tx *dmx.Transmitter, fades *fade.Engine, reg *registry.Service, nodes *repositories.NodeRepository, ps *pubsub.PubSub, log *logrus.Entry, cfg Config) *Server {
	if cfg.DiscoveryWindow <= 0 {
		cfg.DiscoveryWindow = 3 * time.Second
	}
	s := &Server{
		log:   log,
		cfg:   cfg,
		tx:    tx,
		fades: fades,
		reg:   reg,
		nodes: nodes,
		ps:    ps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{s.cfg.CORSOrigin, "http://localhost:3000", "http://localhost:4000"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		Debug:            s.cfg.Development,
	})
	router.Use(corsMiddleware.Handler)

	router.Get("/health", s.handleHealth)
	router.Route("/api", func(r chi.Router) {
		r.Get("/nodes", s.handleNodes)
		r.Post("/discover", s.handleDiscover)
		r.Get("/universe", s.handleUniverse)
		r.Post("/channels", s.handleChannels)
		r.Post("/blackout", s.handleBlackout)
		r.Post("/fade", s.handleFade)
	})
	router.Get("/ws", s.handleWebSocket)

	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.nodes.FindAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if nodes == nil {
		nodes = []models.Node{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

type discoverRequest struct {
	WindowMS int `json:"windowMs"`
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	window := s.cfg.DiscoveryWindow
	if req.WindowMS > 0 {
		window = time.Duration(req.WindowMS) * time.Millisecond
	}

	nodes, err := s.reg.Discover(r.Context(), window)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if nodes == nil {
		nodes = []models.Node{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleUniverse(w http.ResponseWriter, r *http.Request) {
	snapshot := s.tx.Snapshot()
	channels := make([]int, len(snapshot))
	for i, v := range snapshot {
		channels[i] = int(v)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"size":     artnet.UniverseSize,
		"channels": channels,
	})
}

type channelsRequest struct {
	// 1-based channel number to value. -1 leaves a channel untouched in
	// persistent mode.
	Channels   map[int]int `json:"channels"`
	Persistent *bool       `json:"persistent,omitempty"`
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	var req channelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Channels) == 0 {
		writeError(w, http.StatusBadRequest, "no channels given")
		return
	}
	for ch := range req.Channels {
		if ch < 1 || ch > artnet.UniverseSize {
			writeError(w, http.StatusBadRequest, "channel out of range")
			return
		}
	}

	if req.Persistent != nil {
		s.tx.SetPersistent(*req.Persistent)
	}
	s.tx.Merge(dmx.Sparse(req.Channels))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBlackout(w http.ResponseWriter, r *http.Request) {
	s.fades.CancelAllFades()
	s.tx.Blackout()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type fadeRequest struct {
	Targets    []fade.Target `json:"targets"`
	DurationMS int           `json:"durationMs"`
	Easing     string        `json:"easing,omitempty"`
	FadeID     string        `json:"fadeId,omitempty"`
}

func (s *Server) handleFade(w http.ResponseWriter, r *http.Request) {
	var req fadeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Targets) == 0 {
		writeError(w, http.StatusBadRequest, "no fade targets given")
		return
	}
	if req.DurationMS < 0 {
		writeError(w, http.StatusBadRequest, "negative duration")
		return
	}
	for _, target := range req.Targets {
		if target.Channel < 1 || target.Channel > artnet.UniverseSize {
			writeError(w, http.StatusBadRequest, "channel out of range")
			return
		}
	}

	id := s.fades.FadeChannels(req.Targets,
		time.Duration(req.DurationMS)*time.Millisecond,
		req.FadeID, fade.EasingType(req.Easing), nil)
	writeJSON(w, http.StatusOK, map[string]string{"fadeId": id})
}

// wsMessage is the envelope pushed to monitor sessions.
type wsMessage struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

// handleWebSocket streams pubsub traffic to one client until it hangs up.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	topics := []pubsub.Topic{
		pubsub.TopicDMXReceived,
		pubsub.TopicNodeDiscovered,
		pubsub.TopicRawData,
		pubsub.TopicTransportError,
	}
	merged := make(chan wsMessage, 64)
	done := make(chan struct{})

	var subs []*pubsub.Subscription
	for _, topic := range topics {
		sub := s.ps.Subscribe(topic, 16)
		if sub == nil {
			return
		}
		subs = append(subs, sub)
		go func(sub *pubsub.Subscription) {
			for msg := range sub.C {
				payload := msg
				if err, ok := msg.(error); ok {
					payload = err.Error()
				}
				select {
				case merged <- wsMessage{Topic: string(sub.Topic), Payload: payload}:
				case <-done:
					return
				}
			}
		}(sub)
	}
	defer func() {
		close(done)
		for _, sub := range subs {
			s.ps.Unsubscribe(sub)
		}
	}()

	// Drain client frames so pings are answered and closure is noticed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				select {
				case merged <- wsMessage{}:
				default:
				}
				_ = conn.Close()
				return
			}
		}
	}()

	for msg := range merged {
		if msg.Topic == "" {
			return
		}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
