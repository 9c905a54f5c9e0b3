package main

import (
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"hormur-widget-backend/internal/backend"
	"hormur-widget-backend/internal/chat"
	"hormur-widget-backend/internal/config"
	"hormur-widget-backend/internal/prompts"
	"hormur-widget-backend/internal/server"
	"hormur-widget-backend/internal/store"
	"hormur-widget-backend/internal/transcribe"
)

func main() {
	cfg := config.Load()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	spec := prompts.Default()
	if cfg.PromptsFile != "" {
		loaded, err := prompts.Load(cfg.PromptsFile)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.PromptsFile).Msg("failed to load prompts file")
		}
		spec = loaded
	}

	var client backend.Client
	switch cfg.BackendFlavor {
	case config.FlavorWebhook:
		client = backend.NewWebhookClient(cfg, logger)
	default:
		client = backend.NewChatKitClient(cfg, logger)
	}

	orch := chat.New(
		client,
		transcribe.NewWhisper(cfg),
		spec,
		logger,
		chat.WithCache(store.NewReplyCache(cfg.CacheMaxEntries)),
	)
	s := server.New(cfg, orch, spec, logger)

	addr := ":" + cfg.Port
	logger.Info().Str("addr", addr).Str("flavor", cfg.BackendFlavor).Msg("hormur widget backend listening")
	if err := http.ListenAndServe(addr, s.Router()); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
