package config

import "time"

type AppConfig struct {
	ListenAddr string        `yaml:"listen_addr" env:"SENTINEL_LISTEN_ADDR" env-default:"0.0.0.0:8080"`
	BaseURL    string        `yaml:"base_url" env:"SENTINEL_BASE_URL"`
	AppEnv     string        `yaml:"app_env" env:"SENTINEL_APP_ENV" env-default:"prod"`
	SessionTTL time.Duration `yaml:"session_ttl" env:"SENTINEL_SESSION_TTL" env-default:"8h"`
	// SessionSecret signs the session cookie value.
	SessionSecret string `yaml:"session_secret" env:"SENTINEL_SESSION_SECRET"`

	DBDriver string `yaml:"db_driver" env:"SENTINEL_DB_DRIVER"`
	DBURL    string `yaml:"db_url" env:"SENTINEL_DB_URL"`
	DBPath   string `yaml:"db_path" env:"SENTINEL_DB_PATH"`

	Keycloak      KeycloakConfig      `yaml:"keycloak"`
	Refresh       RefreshConfig       `yaml:"refresh"`
	Dashboards    DashboardsConfig    `yaml:"dashboards"`
	Observability ObservabilityConfig `yaml:"observability"`
	Cleanup       CleanupConfig       `yaml:"cleanup"`
}

// KeycloakConfig holds the identity-provider client settings. Issuer is the
// full realm issuer URL, e.g. https://sso.example.com/realms/console.
type KeycloakConfig struct {
	ClientID          string `yaml:"client_id" env:"SENTINEL_KC_CLIENT_ID"`
	ClientSecret      string `yaml:"client_secret" env:"SENTINEL_KC_CLIENT_SECRET"`
	Issuer            string `yaml:"issuer" env:"SENTINEL_KC_ISSUER"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec" env:"SENTINEL_KC_TIMEOUT_SEC" env-default:"10"`
}

// RefreshConfig tunes the background token refresh loop.
type RefreshConfig struct {
	Enabled bool `yaml:"enabled" env:"SENTINEL_REFRESH_ENABLED" env-default:"true"`
	// TickFraction is the fraction of the session lifetime between checks.
	TickFraction float64 `yaml:"tick_fraction" env:"SENTINEL_REFRESH_TICK_FRACTION" env-default:"0.75"`
	// CooldownMinutes is the minimum gap between refresh attempts per session.
	CooldownMinutes int `yaml:"cooldown_minutes" env:"SENTINEL_REFRESH_COOLDOWN_MIN" env-default:"30"`
}

type DashboardsConfig struct {
	ServiceURL string `yaml:"service_url" env:"SENTINEL_DASHBOARDS_URL"`
	GrafanaURL string `yaml:"grafana_url" env:"SENTINEL_GRAFANA_URL"`
	TimeoutSec int    `yaml:"timeout_sec" env:"SENTINEL_DASHBOARDS_TIMEOUT_SEC" env-default:"5"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled" env:"SENTINEL_METRICS_ENABLED" env-default:"true"`
	MetricsToken   string `yaml:"metrics_token" env:"SENTINEL_METRICS_TOKEN"`
}

// CleanupConfig drives the cron job that purges dead session rows.
type CleanupConfig struct {
	Enabled  bool   `yaml:"enabled" env:"SENTINEL_CLEANUP_ENABLED" env-default:"true"`
	Schedule string `yaml:"schedule" env:"SENTINEL_CLEANUP_SCHEDULE" env-default:"@every 15m"`
}

func (c *AppConfig) IsDev() bool {
	if c == nil {
		return false
	}
	return c.AppEnv == "dev"
}
