package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GM_PROJECT_ID", "proj")
	t.Setenv("GM_PROJECT_SECRET", "secret")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.GinMode)
	assert.Equal(t, "proj", cfg.Project.ID)
	assert.Equal(t, "https://cast.walletconnect.com", cfg.Cast.URL)
	assert.Equal(t, 5*time.Minute, cfg.Auth.ChallengeTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenExpiry)
	assert.True(t, cfg.Notify.RequireSubscriber)
}

func TestLoad_MissingProjectID(t *testing.T) {
	t.Setenv("GM_PROJECT_ID", "")
	t.Setenv("PROJECT_ID", "")
	t.Setenv("GM_PROJECT_SECRET", "secret")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project.id")
}

func TestLoad_PortAlias(t *testing.T) {
	t.Setenv("GM_PROJECT_ID", "proj")
	t.Setenv("GM_PROJECT_SECRET", "secret")
	t.Setenv("PORT", "1234")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1234, cfg.Server.Port)
}

func TestLoad_RelayURLAlias(t *testing.T) {
	t.Setenv("GM_PROJECT_ID", "proj")
	t.Setenv("GM_PROJECT_SECRET", "secret")
	t.Setenv("RELAY_URL", "https://relay.example")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "https://relay.example", cfg.Cast.URL)
	assert.Equal(t, "./data/identities.json", cfg.Auth.IdentitiesFile)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := "project:\n  id: from-file\n  secret: file-secret\ncast:\n  timeout: 3s\ndatabase:\n  driver: postgres\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("GM_PROJECT_ID", "")
	t.Setenv("PROJECT_ID", "")
	t.Setenv("GM_PROJECT_SECRET", "")
	t.Setenv("CAST_PROJECT_SECRET", "")
	t.Setenv("GM_CAST_URL", "http://cast.local")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Project.ID)
	assert.Equal(t, "file-secret", cfg.Project.Secret)
	assert.Equal(t, 3*time.Second, cfg.Cast.Timeout)
	assert.Equal(t, "http://cast.local", cfg.Cast.URL)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoad_MissingProjectSecret(t *testing.T) {
	t.Setenv("GM_PROJECT_ID", "proj")
	t.Setenv("GM_PROJECT_SECRET", "")
	t.Setenv("CAST_PROJECT_SECRET", "")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project.secret")
}

func TestLoad_ProjectSecretAlias(t *testing.T) {
	t.Setenv("GM_PROJECT_ID", "proj")
	t.Setenv("GM_PROJECT_SECRET", "")
	t.Setenv("CAST_PROJECT_SECRET", "cast-secret")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "cast-secret", cfg.Project.Secret)
}

func TestValidate_RejectsUnknownDriver(t *testing.T) {
	cfg := Config{
		Project:  ProjectConfig{ID: "p", Secret: "s"},
		Server:   ServerConfig{Port: 1},
		Auth:     AuthConfig{TokenExpiry: time.Hour, ChallengeTTL: time.Minute},
		Database: DatabaseConfig{Driver: "oracle"},
	}
	assert.Error(t, cfg.Validate())
}

func TestApplyRuntimeDefaults_GeneratesSecretOnce(t *testing.T) {
	cfg := &Config{}
	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"auth.jwt_secret"}, generated)
	assert.Len(t, cfg.Auth.JWTSecret, 64)

	generated, err = ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	assert.Empty(t, generated)
}

func TestDecodeClient(t *testing.T) {
	v := NewViper()
	SetClientDefaults(v)
	v.Set("project_id", "proj")
	v.Set("timeout", "5s")

	cfg, err := DecodeClient(v)
	require.NoError(t, err)
	assert.Equal(t, "proj", cfg.ProjectID)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "eip155:1", cfg.Chain)

	v.Set("project_id", " ")
	_, err = DecodeClient(v)
	assert.Error(t, err)
}
