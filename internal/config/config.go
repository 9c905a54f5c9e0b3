package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	FlavorChatKit = "chatkit"
	FlavorWebhook = "webhook"
)

// Config is loaded once at startup and passed by reference into the
// components that need it. Request-handling code never reads the process
// environment directly.
type Config struct {
	Port          string
	AllowedOrigin string

	// BackendFlavor selects the conversational backend: FlavorChatKit
	// (session/run/poll API) or FlavorWebhook (synchronous webhook).
	BackendFlavor string

	OpenAIAPIKey   string
	WorkflowID     string
	ChatKitBaseURL string

	WebhookURL     string
	WebhookTimeout time.Duration

	STTModel    string
	STTLanguage string

	PromptsFile     string
	CacheMaxEntries int
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Port:            getEnvDefault("PORT", "8080"),
		AllowedOrigin:   getEnvDefault("ALLOWED_ORIGIN", "*"),
		BackendFlavor:   getEnvDefault("BACKEND_FLAVOR", FlavorChatKit),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		WorkflowID:      os.Getenv("WORKFLOW_ID"),
		ChatKitBaseURL:  getEnvDefault("CHATKIT_BASE_URL", "https://api.openai.com/v1/chatkit"),
		WebhookURL:      os.Getenv("WEBHOOK_URL"),
		WebhookTimeout:  getEnvDurationDefault("WEBHOOK_TIMEOUT", 28*time.Second),
		STTModel:        getEnvDefault("OPENAI_STT_MODEL", "whisper-1"),
		STTLanguage:     getEnvDefault("STT_LANGUAGE", "fr"),
		PromptsFile:     os.Getenv("PROMPTS_FILE"),
		CacheMaxEntries: getEnvIntDefault("CACHE_MAX_ENTRIES", 128),
	}
	if cfg.BackendFlavor == FlavorChatKit && cfg.OpenAIAPIKey == "" {
		log.Println("warning: OPENAI_API_KEY is not set; chat requests will fail until provided")
	}
	return cfg
}

// ValidateBackend reports which required variables are missing for the
// active flavor. It is called per request so a misconfigured deployment
// answers with a clean configuration error instead of an opaque upstream one.
func (c Config) ValidateBackend() error {
	switch c.BackendFlavor {
	case FlavorChatKit:
		var missing []string
		if c.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
		if c.WorkflowID == "" {
			missing = append(missing, "WORKFLOW_ID")
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
		}
		return nil
	case FlavorWebhook:
		if c.WebhookURL == "" {
			return fmt.Errorf("missing configuration: WEBHOOK_URL")
		}
		return nil
	default:
		return fmt.Errorf("unknown backend flavor %q", c.BackendFlavor)
	}
}

// ValidateTranscription checks the variables needed to transcribe audio
// turns, which are required in both flavors.
func (c Config) ValidateTranscription() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("missing configuration: OPENAI_API_KEY")
	}
	return nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			return d
		}
	}
	return def
}
