package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"hormur-widget-backend/internal/backend"
	"hormur-widget-backend/internal/chat"
	"hormur-widget-backend/internal/config"
	"hormur-widget-backend/internal/prompts"
	"hormur-widget-backend/internal/types"
)

const turnTimeout = 120 * time.Second

// TurnService is what the chat route needs from the orchestrator.
type TurnService interface {
	SubmitTurn(ctx context.Context, turn chat.Turn) (*types.ChatReply, error)
}

type Server struct {
	router  *chi.Mux
	cfg     config.Config
	turns   TurnService
	prompts prompts.Spec
	log     zerolog.Logger
}

func New(cfg config.Config, turns TurnService, spec prompts.Spec, log zerolog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.AllowedOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Session-Id", "X-Requested-With"},
		ExposedHeaders: []string{"X-Session-Id"},
		MaxAge:         300,
	}))
	s := &Server{
		router:  r,
		cfg:     cfg,
		turns:   turns,
		prompts: spec,
		log:     log.With().Str("component", "server").Logger(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/profiles", s.handleProfiles)
	s.router.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(30, time.Minute))
		r.Post("/api/chat", s.handleChat)
	})
	// Bare preflight for embedders that skip the CORS middleware path.
	s.router.Options("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleProfiles serves the widget copy (greetings, labels, Calendly links)
// so the shell renders from the same source of truth as the backend.
func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"welcome":  s.prompts.Messages.Welcome,
		"profiles": s.prompts.Profiles,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeReply(w, http.StatusBadRequest, types.ChatReply{
			Message: s.prompts.Messages.EmptyInput,
			Results: []types.ResultItem{},
			Error:   "invalid JSON body",
		})
		return
	}
	sid := strings.TrimSpace(req.SessionID)
	if sid == "" {
		sid = strings.TrimSpace(r.Header.Get("X-Session-Id"))
	}

	if err := s.cfg.ValidateBackend(); err != nil {
		s.log.Error().Err(err).Msg("backend not configured")
		s.writeReply(w, http.StatusInternalServerError, types.ChatReply{
			Message:      s.prompts.Messages.ConfigMissing,
			Results:      []types.ResultItem{},
			ShowCalendly: true,
			Error:        err.Error(),
		})
		return
	}

	var audio []byte
	if strings.TrimSpace(req.AudioData) != "" {
		if err := s.cfg.ValidateTranscription(); err != nil {
			s.writeReply(w, http.StatusInternalServerError, types.ChatReply{
				Message:      s.prompts.Messages.ConfigMissing,
				Results:      []types.ResultItem{},
				ShowCalendly: true,
				Error:        err.Error(),
			})
			return
		}
		var err error
		audio, err = decodeAudio(req.AudioData)
		if err != nil {
			s.writeReply(w, http.StatusBadRequest, types.ChatReply{
				Message: s.prompts.Messages.BadAudio,
				Results: []types.ResultItem{},
				Error:   "invalid base64 audio payload",
			})
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), turnTimeout)
	defer cancel()

	reply, err := s.turns.SubmitTurn(ctx, chat.Turn{
		SessionID:   sid,
		UserProfile: strings.TrimSpace(req.UserProfile),
		Text:        req.Message,
		Audio:       audio,
		AudioMIME:   req.AudioMIME,
	})
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	if reply.SessionID != "" {
		w.Header().Set("X-Session-Id", reply.SessionID)
	}
	s.writeReply(w, http.StatusOK, *reply)
}

// writeTurnError maps the error taxonomy onto HTTP statuses and a graceful
// reply. The Calendly CTA is forced on for the failure classes where a
// human fallback helps; validation and bad audio just invite a retry.
func (s *Server) writeTurnError(w http.ResponseWriter, err error) {
	msgs := s.prompts.Messages
	reply := types.ChatReply{Results: []types.ResultItem{}, Error: err.Error()}

	var (
		trErr  *chat.TranscriptionError
		rfErr  *chat.RunFailedError
		reqErr *backend.RequestError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chat.ErrEmptyInput):
		status = http.StatusBadRequest
		reply.Message = msgs.EmptyInput
	case errors.As(err, &trErr):
		status = http.StatusBadRequest
		reply.Message = msgs.BadAudio
	case errors.Is(err, chat.ErrTurnInFlight):
		status = http.StatusConflict
		reply.Message = msgs.Busy
	case errors.Is(err, chat.ErrPollTimeout),
		errors.Is(err, backend.ErrDeadline),
		errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		reply.Message = msgs.Timeout
		reply.ShowCalendly = true
	case errors.Is(err, backend.ErrUpstream):
		status = http.StatusBadGateway
		reply.Message = msgs.TechnicalIssue
		reply.ShowCalendly = true
	case errors.As(err, &rfErr), errors.As(err, &reqErr):
		reply.Message = msgs.TechnicalIssue
		reply.ShowCalendly = true
	default:
		reply.Message = msgs.TechnicalIssue
		reply.ShowCalendly = true
	}
	s.log.Warn().Err(err).Int("status", status).Msg("turn failed")
	s.writeReply(w, status, reply)
}

func (s *Server) writeReply(w http.ResponseWriter, status int, reply types.ChatReply) {
	if reply.Results == nil {
		reply.Results = []types.ResultItem{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(reply)
}

// decodeAudio accepts plain base64 or a browser data URL.
func decodeAudio(data string) ([]byte, error) {
	if i := strings.Index(data, "base64,"); i >= 0 {
		data = data[i+len("base64,"):]
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(data))
}
