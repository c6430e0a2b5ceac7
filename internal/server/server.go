// Package server exposes the marketplace read path over HTTP: JSON
// listings of primary and second-hand offers, asset and account lookups,
// and a websocket feed that pushes the offer book after every commit.
// Flows are composed and signed client-side; the server never holds keys.
package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tokility/tokilityd/internal/config"
	"github.com/tokility/tokilityd/internal/core/ledger"
	"github.com/tokility/tokilityd/internal/core/ledger/service"
	"github.com/tokility/tokilityd/internal/core/ticket"
)

// Server serves the marketplace API.
type Server struct {
	cfg       config.ServerConfig
	ledger    *ledger.Ledger
	discovery *service.Service
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

// New builds a server over a ledger and its discovery service.
func New(cfg config.ServerConfig, l *ledger.Ledger, discovery *service.Service, log zerolog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		ledger:    l,
		discovery: discovery,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/offers/primary", s.handlePrimaryOffers)
	mux.HandleFunc("GET /v1/offers/secondary", s.handleSecondaryOffers)
	mux.HandleFunc("GET /v1/assets/{id}", s.handleAsset)
	mux.HandleFunc("GET /v1/accounts/{addr}", s.handleAccount)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	return mux
}

// Run serves until the context is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info().Str("addr", addr).Msg("api server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "tokilityd"})
}

func (s *Server) handlePrimaryOffers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"offers": s.discovery.PrimaryOffers()})
}

func (s *Server) handleSecondaryOffers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"offers": s.discovery.SecondaryOffers()})
}

type assetResponse struct {
	Asset  ledger.AssetParams `json:"asset"`
	Ticket *ticket.Ticket     `json:"ticket,omitempty"`
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "asset id must be numeric")
		return
	}
	params, ok := s.ledger.Asset(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no asset %d", id))
		return
	}
	resp := assetResponse{Asset: params}
	if tk, err := ticket.Decode(params.Metadata); err == nil {
		resp.Ticket = tk
	}
	// The raw metadata is already in the decoded ticket.
	resp.Asset.Metadata = nil
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("addr")
	acc, ok := s.ledger.Account(addr)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no account %s", addr))
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// offerBookEvent is one websocket frame: the group that committed and the
// offer book as of that commit.
type offerBookEvent struct {
	GroupID   string              `json:"group_id"`
	Primary   []service.SaleOffer `json:"primary"`
	Secondary []service.SaleOffer `json:"secondary"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events := s.ledger.Subscribe()
	defer s.ledger.Unsubscribe(events)

	// Reader goroutine: we never expect client frames, but reading is
	// what detects a dropped connection.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev := <-events:
			frame := offerBookEvent{
				GroupID:   hex.EncodeToString(ev.GroupID[:]),
				Primary:   s.discovery.PrimaryOffers(),
				Secondary: s.discovery.SecondaryOffers(),
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
