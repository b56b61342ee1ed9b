package config

import (
	"fmt"
	"strings"
)

func Validate(cfg *AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Keycloak.ClientID) == "" {
		return fmt.Errorf("keycloak.client_id must be set")
	}
	if strings.TrimSpace(cfg.Keycloak.ClientSecret) == "" {
		return fmt.Errorf("keycloak.client_secret must be set")
	}
	issuer := strings.TrimSpace(cfg.Keycloak.Issuer)
	if issuer == "" {
		return fmt.Errorf("keycloak.issuer must be set")
	}
	if !strings.HasPrefix(issuer, "http://") && !strings.HasPrefix(issuer, "https://") {
		return fmt.Errorf("keycloak.issuer must be an absolute URL")
	}
	if !cfg.IsDev() && !strings.HasPrefix(issuer, "https://") {
		return fmt.Errorf("keycloak.issuer must use https outside APP_ENV=dev")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return fmt.Errorf("base_url must be set")
	}
	if strings.TrimSpace(cfg.SessionSecret) == "" {
		return fmt.Errorf("session_secret must be set via env")
	}
	if len(cfg.SessionSecret) < 32 && !cfg.IsDev() {
		return fmt.Errorf("session_secret must be at least 32 characters outside APP_ENV=dev")
	}
	if cfg.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive")
	}
	return nil
}

// VarPresence reports whether a required configuration value is set without
// exposing the value itself.
type VarPresence struct {
	Name string `json:"name"`
	Set  bool   `json:"set"`
}

// Presence lists the required variables and whether each one is present.
// Secret values are reported by presence only.
func Presence(cfg *AppConfig) []VarPresence {
	if cfg == nil {
		cfg = &AppConfig{}
	}
	return []VarPresence{
		{Name: "SENTINEL_KC_CLIENT_ID", Set: strings.TrimSpace(cfg.Keycloak.ClientID) != ""},
		{Name: "SENTINEL_KC_CLIENT_SECRET", Set: strings.TrimSpace(cfg.Keycloak.ClientSecret) != ""},
		{Name: "SENTINEL_KC_ISSUER", Set: strings.TrimSpace(cfg.Keycloak.Issuer) != ""},
		{Name: "SENTINEL_BASE_URL", Set: strings.TrimSpace(cfg.BaseURL) != ""},
		{Name: "SENTINEL_SESSION_SECRET", Set: strings.TrimSpace(cfg.SessionSecret) != ""},
		{Name: "SENTINEL_SESSION_TTL", Set: cfg.SessionTTL > 0},
	}
}
