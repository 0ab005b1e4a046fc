package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig configures gmctl and any other process driving a lifecycle session.
type ClientConfig struct {
	ProjectID string        `mapstructure:"project_id"`
	ServerURL string        `mapstructure:"server_url"`
	RelayURL  string        `mapstructure:"relay_url"`
	Chain     string        `mapstructure:"chain"`
	StateFile string        `mapstructure:"state_file"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Offline   bool          `mapstructure:"offline"`
	LogLevel  string        `mapstructure:"log_level"`
	// KeyringDir and KeyringBackend select where the wallet seed lives. An
	// empty backend tries the OS keychains before the file backend.
	KeyringDir     string `mapstructure:"keyring_dir"`
	KeyringBackend string `mapstructure:"keyring_backend"`
}

func SetClientDefaults(v *viper.Viper) {
	v.SetDefault("project_id", "")
	v.SetDefault("server_url", "http://localhost:3000")
	v.SetDefault("relay_url", "https://notify.walletconnect.com")
	v.SetDefault("chain", "eip155:1")
	v.SetDefault("state_file", "~/.config/gmctl/state.json")
	v.SetDefault("timeout", "30s")
	v.SetDefault("offline", false)
	v.SetDefault("log_level", "warn")
	v.SetDefault("keyring_dir", "~/.config/gmctl/keys")
	v.SetDefault("keyring_backend", "")
	_ = v.BindEnv("project_id", "GM_PROJECT_ID", "PROJECT_ID")
	_ = v.BindEnv("relay_url", "GM_RELAY_URL", "RELAY_URL")
}

// DecodeClient reads a ClientConfig from v. The project id is required, as it
// is for the server.
func DecodeClient(v *viper.Viper) (ClientConfig, error) {
	var cfg ClientConfig
	if err := v.Unmarshal(&cfg, DecodeHook()); err != nil {
		return ClientConfig{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.ProjectID = strings.TrimSpace(cfg.ProjectID)
	if cfg.ProjectID == "" {
		return ClientConfig{}, errors.New("project id is required (set GM_PROJECT_ID or --project-id)")
	}
	if !cfg.Offline && cfg.ServerURL == "" {
		return ClientConfig{}, errors.New("server url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return cfg, nil
}
