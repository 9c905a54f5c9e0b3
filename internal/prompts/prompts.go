// Package prompts holds the widget copy: profile greetings, the first-turn
// profile framing tag, Calendly links and the user-facing fallback messages.
// The compiled-in defaults match the production widget; a YAML file can
// override any subset of them.
package prompts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Profile struct {
	ID          string `yaml:"id" json:"id"`
	Label       string `yaml:"label" json:"label"`
	Greeting    string `yaml:"greeting" json:"greeting"`
	CalendlyURL string `yaml:"calendly_url" json:"calendlyUrl"`
}

// Messages are the user-safe strings substituted for raw errors. The widget
// never sees a stack trace; it sees one of these.
type Messages struct {
	Welcome        string `yaml:"welcome" json:"welcome"`
	EmptyInput     string `yaml:"empty_input" json:"-"`
	EmptyReply     string `yaml:"empty_reply" json:"-"`
	BadAudio       string `yaml:"bad_audio" json:"-"`
	TechnicalIssue string `yaml:"technical_issue" json:"-"`
	ConfigMissing  string `yaml:"config_missing" json:"-"`
	Busy           string `yaml:"busy" json:"-"`
	Timeout        string `yaml:"timeout" json:"-"`
}

type Spec struct {
	// FramingTag is the fmt template applied to the first turn of a session
	// when the visitor picked a profile, e.g. "[profile: artiste] <text>".
	FramingTag string    `yaml:"framing_tag"`
	Profiles   []Profile `yaml:"profiles"`
	Messages   Messages  `yaml:"messages"`
}

func Default() Spec {
	return Spec{
		FramingTag: "[profile: %s] %s",
		Profiles: []Profile{
			{
				ID:          "spectateur",
				Label:       "Spectateur",
				Greeting:    "Super ! Je vais vous aider à trouver un événement. Plutôt concert, expo ou atelier ? Et dans quelle ville ? ✨",
				CalendlyURL: "https://calendly.com/hormur/decouverte",
			},
			{
				ID:          "hote",
				Label:       "Hôte",
				Greeting:    "Parfait ! Quel type d'artiste cherchez-vous pour votre événement ? (musique, théâtre, arts visuels…)",
				CalendlyURL: "https://calendly.com/hormur/hote",
			},
			{
				ID:          "artiste",
				Label:       "Artiste",
				Greeting:    "Génial ! Quel type de lieu recherchez-vous pour votre art ? (appartement, jardin, galerie, commerce…)",
				CalendlyURL: "https://calendly.com/hormur/artiste",
			},
		},
		Messages: Messages{
			Welcome:        "Bonjour 👋 Je suis l'assistant Hormur. Vous voulez découvrir un événement, trouver un artiste ou repérer un lieu ?",
			EmptyInput:     "Merci d'écrire un message 😊",
			EmptyReply:     "Désolé, je n'ai pas pu générer de réponse.",
			BadAudio:       "Je n'ai pas réussi à comprendre l'audio. Pouvez-vous réécrire votre message ?",
			TechnicalIssue: "Désolé, problème technique. Pouvez-vous réessayer ? 🙏",
			ConfigMissing:  "Configuration manquante. Vérifiez les variables d'environnement du serveur.",
			Busy:           "Je suis encore en train de répondre à votre message précédent. Un instant 🙏",
			Timeout:        "La réponse met trop de temps à arriver. Pouvez-vous réessayer ?",
		},
	}
}

// Load reads a YAML copy file and overlays it on the defaults, so a partial
// file only overrides what it names.
func Load(path string) (Spec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, err
	}
	var in Spec
	if err := yaml.Unmarshal(b, &in); err != nil {
		return Spec{}, fmt.Errorf("parse prompts file %s: %w", path, err)
	}
	out := Default()
	if in.FramingTag != "" {
		out.FramingTag = in.FramingTag
	}
	if len(in.Profiles) > 0 {
		out.Profiles = in.Profiles
	}
	mergeMessages(&out.Messages, in.Messages)
	return out, nil
}

func mergeMessages(dst *Messages, src Messages) {
	if src.Welcome != "" {
		dst.Welcome = src.Welcome
	}
	if src.EmptyInput != "" {
		dst.EmptyInput = src.EmptyInput
	}
	if src.EmptyReply != "" {
		dst.EmptyReply = src.EmptyReply
	}
	if src.BadAudio != "" {
		dst.BadAudio = src.BadAudio
	}
	if src.TechnicalIssue != "" {
		dst.TechnicalIssue = src.TechnicalIssue
	}
	if src.ConfigMissing != "" {
		dst.ConfigMissing = src.ConfigMissing
	}
	if src.Busy != "" {
		dst.Busy = src.Busy
	}
	if src.Timeout != "" {
		dst.Timeout = src.Timeout
	}
}

// Frame prefixes the first turn of a session with the machine-readable
// profile tag.
func (s Spec) Frame(profile, text string) string {
	return fmt.Sprintf(s.FramingTag, profile, text)
}
