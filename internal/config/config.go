package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// credentialSlots is how many userN_email/userN_pass pairs are read from the
// environment. Matches the fixed-list credential scheme of the deployment.
const credentialSlots = 5

var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
}

// Credential is one allowed email+password pair for the login endpoint.
type Credential struct {
	Email    string
	Password string
}

// Config holds relay server configuration, populated from the environment.
type Config struct {
	Port           string
	StreamTimeout  time.Duration
	TeardownGrace  time.Duration
	AllowedOrigins []string
	StaticDir      string
	LogLevel       string
	Users          []Credential
}

// Load reads configuration from the environment with defaults applied.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("RELAY_STREAM_TIMEOUT", "1h")
	v.SetDefault("RELAY_TEARDOWN_GRACE", "3s")
	v.SetDefault("RELAY_STATIC_DIR", "./public")
	v.SetDefault("RELAY_LOG_LEVEL", "info")

	cfg := Config{
		Port:           v.GetString("PORT"),
		StreamTimeout:  v.GetDuration("RELAY_STREAM_TIMEOUT"),
		TeardownGrace:  v.GetDuration("RELAY_TEARDOWN_GRACE"),
		AllowedOrigins: append([]string(nil), defaultAllowedOrigins...),
		StaticDir:      v.GetString("RELAY_STATIC_DIR"),
		LogLevel:       strings.ToLower(v.GetString("RELAY_LOG_LEVEL")),
	}

	if cfg.StreamTimeout <= 0 {
		return Config{}, fmt.Errorf("RELAY_STREAM_TIMEOUT must be positive, got %s", cfg.StreamTimeout)
	}
	if cfg.TeardownGrace <= 0 {
		return Config{}, fmt.Errorf("RELAY_TEARDOWN_GRACE must be positive, got %s", cfg.TeardownGrace)
	}

	if origins := v.GetString("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = ParseAllowedOrigins(origins)
	}

	for i := 1; i <= credentialSlots; i++ {
		// The credential variables are lower-case in the deployment, which
		// AutomaticEnv alone would miss (it upper-cases keys on lookup).
		emailKey := fmt.Sprintf("user%d_email", i)
		passKey := fmt.Sprintf("user%d_pass", i)
		_ = v.BindEnv(emailKey, emailKey)
		_ = v.BindEnv(passKey, passKey)

		email := v.GetString(emailKey)
		password := v.GetString(passKey)
		if email == "" || password == "" {
			continue
		}
		cfg.Users = append(cfg.Users, Credential{Email: email, Password: password})
	}

	return cfg, nil
}

// ParseAllowedOrigins splits a comma-separated origin list, trimming blanks.
func ParseAllowedOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if origin := strings.TrimSpace(part); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
