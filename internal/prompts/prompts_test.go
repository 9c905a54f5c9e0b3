package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreComplete(t *testing.T) {
	spec := Default()

	assert.NotEmpty(t, spec.FramingTag)
	require.Len(t, spec.Profiles, 3)
	for _, p := range spec.Profiles {
		assert.NotEmpty(t, p.ID)
		assert.NotEmpty(t, p.Greeting)
		assert.NotEmpty(t, p.CalendlyURL)
	}
	m := spec.Messages
	for _, s := range []string{m.Welcome, m.EmptyInput, m.EmptyReply, m.BadAudio, m.TechnicalIssue, m.ConfigMissing, m.Busy, m.Timeout} {
		assert.NotEmpty(t, s)
	}
}

func TestFrame(t *testing.T) {
	spec := Default()
	assert.Equal(t, "[profile: artiste] un concert", spec.Frame("artiste", "un concert"))
}

func TestLoadOverlaysPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := `
framing_tag: "[visiteur: %s] %s"
messages:
  welcome: "Salut !"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	spec, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "[visiteur: artiste] coucou", spec.Frame("artiste", "coucou"))
	assert.Equal(t, "Salut !", spec.Messages.Welcome)
	// Everything not named keeps its default.
	assert.Equal(t, Default().Messages.Timeout, spec.Messages.Timeout)
	assert.Len(t, spec.Profiles, 3)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadBadYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml: ["), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
