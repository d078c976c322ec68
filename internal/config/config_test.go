package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadBots(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"bots": {
			"Bot1-GY": {"campuses": ["Georgetown"], "profile": "/profiles/bot1"},
			"Bot3-NIL": {"campuses": ["NULL", "NIL"], "profile": "/profiles/bot3"}
		},
		"settings": {"poll_interval": 10, "batch_size": 3}
	}`)

	bots, settings, err := LoadBots(path)
	require.NoError(t, err)
	require.Len(t, bots, 2)
	require.Equal(t, []string{"Georgetown"}, bots["Bot1-GY"].Campuses)
	require.Equal(t, "/profiles/bot3", bots["Bot3-NIL"].Profile)

	require.Equal(t, 10*time.Second, settings.PollInterval())
	require.Equal(t, 3, settings.BatchSize)
	// Omitted knobs keep their defaults.
	require.Equal(t, 3*time.Second, settings.DelayMin())
	require.Equal(t, 15*time.Second, settings.StaggerDelay())
}

func TestLoadBotsEmpty(t *testing.T) {
	path := writeFile(t, "config.json", `{"bots": {}}`)
	_, _, err := LoadBots(path)
	require.Error(t, err)
}

func TestLoadTemplates(t *testing.T) {
	path := writeFile(t, "messages.json", `{
		"Doctor of Medicine": "Hi {name}, welcome to {program}!",
		"Default": "Hi {name}!"
	}`)

	templates, err := LoadTemplates(path)
	require.NoError(t, err)
	require.Len(t, templates, 2)
	require.Contains(t, templates["Doctor of Medicine"], "{program}")
}
