package triage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIBase, cfg.APIBase)
	assert.Equal(t, DefaultCollection, cfg.Collection)
	assert.Equal(t, DefaultListenAddr, cfg.Listen)
	assert.Equal(t, DefaultGuardRoutes(), cfg.Routes)
	assert.False(t, cfg.AdminPolicy().IsAdmin(&Identity{Email: adminEmail}))
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triage.yaml")
	doc := `
api_base: http://classifier.internal:8000/
admin_emails:
  - ` + adminEmail + `
collection: feedback
routes:
  profile: /onboarding
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	t.Setenv("TRIAGE_COLLECTION", "complaints_v2")
	t.Setenv("TRIAGE_CHART_THEME", "dark")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://classifier.internal:8000", cfg.APIBase)
	assert.Equal(t, "complaints_v2", cfg.Collection)
	assert.Equal(t, "dark", cfg.ChartTheme)
	assert.Equal(t, "/onboarding", cfg.Routes.Profile)
	assert.Equal(t, "/login", cfg.Routes.SignIn)
	assert.True(t, cfg.AdminPolicy().IsAdmin(&Identity{Email: adminEmail}))
}

func TestLoadConfigAdminEmailsFromEnv(t *testing.T) {
	t.Setenv("TRIAGE_ADMIN_EMAILS", "one@campus.edu, two@campus.edu")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	policy := cfg.AdminPolicy()
	assert.True(t, policy.IsAdmin(&Identity{Email: "one@campus.edu"}))
	assert.True(t, policy.IsAdmin(&Identity{Email: "two@campus.edu"}))
	assert.ElementsMatch(t, []string{"one@campus.edu", "two@campus.edu"}, policy.Emails())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDecodeConfigRejectsUnknownKeys(t *testing.T) {
	_, err := DecodeConfig(strings.NewReader("admin_email: a@b.c\n"))
	require.Error(t, err)

	cfg, err := DecodeConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{APIBase: "https://api.campus.edu/"}.WithDefaults()
	assert.Equal(t, "https://api.campus.edu", cfg.APIBase)
	assert.Equal(t, DefaultCollection, cfg.Collection)
	assert.Equal(t, DefaultListenAddr, cfg.Listen)
	assert.Equal(t, DefaultGuardRoutes(), cfg.Routes)
}
