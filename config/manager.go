package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	defaultConfigPath = "config/app.yaml"
	envPrefix         = "SENTINEL_"
)

func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	cfgPath := resolveConfigPath()
	if st, err := os.Stat(cfgPath); err == nil && !st.IsDir() {
		if err := cleanenv.ReadConfig(cfgPath, cfg); err != nil {
			return nil, err
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}
	applyEnvAliases(cfg)
	normalizeConfig(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvAliases honors the shorter variable names used by deployment
// tooling alongside the SENTINEL_-prefixed canonical ones.
func applyEnvAliases(cfg *AppConfig) {
	if cfg == nil {
		return
	}
	if v := getEnv("KEYCLOAK_CLIENT_ID"); v != "" {
		cfg.Keycloak.ClientID = strings.TrimSpace(v)
	}
	if v := getEnv("KEYCLOAK_CLIENT_SECRET"); v != "" {
		cfg.Keycloak.ClientSecret = strings.TrimSpace(v)
	}
	if v := getEnv("KEYCLOAK_ISSUER"); v != "" {
		cfg.Keycloak.Issuer = strings.TrimSpace(v)
	}
	if v := getEnv("SESSION_SECRET"); v != "" {
		cfg.SessionSecret = strings.TrimSpace(v)
	}
	if v := getEnv("APP_BASE_URL", "NEXTAUTH_URL"); v != "" {
		cfg.BaseURL = strings.TrimSpace(v)
	}
	if v := getEnv("ENV", "APP_ENV"); v != "" {
		cfg.AppEnv = strings.ToLower(strings.TrimSpace(v))
	}
	if v := getEnv("PORT", envPrefix+"PORT"); v != "" {
		cfg.ListenAddr = listenAddrWithPort(cfg.ListenAddr, v)
	}
	if v := getEnv("DATABASE_URL"); v != "" {
		cfg.DBURL = strings.TrimSpace(v)
	}
	if v := getEnv("SESSION_MAX_AGE_SEC"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.SessionTTL = secondsDuration(n)
		}
	}
}

func normalizeConfig(cfg *AppConfig) {
	if cfg == nil {
		return
	}
	cfg.ListenAddr = strings.TrimSpace(cfg.ListenAddr)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.SessionSecret = strings.TrimSpace(cfg.SessionSecret)
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.DBURL = strings.TrimSpace(cfg.DBURL)
	cfg.Keycloak.ClientID = strings.TrimSpace(cfg.Keycloak.ClientID)
	cfg.Keycloak.ClientSecret = strings.TrimSpace(cfg.Keycloak.ClientSecret)
	cfg.Keycloak.Issuer = strings.TrimRight(strings.TrimSpace(cfg.Keycloak.Issuer), "/")
	cfg.Dashboards.ServiceURL = strings.TrimRight(strings.TrimSpace(cfg.Dashboards.ServiceURL), "/")
	cfg.Dashboards.GrafanaURL = strings.TrimRight(strings.TrimSpace(cfg.Dashboards.GrafanaURL), "/")
	cfg.Cleanup.Schedule = strings.TrimSpace(cfg.Cleanup.Schedule)
	if cfg.Keycloak.RequestTimeoutSec <= 0 {
		cfg.Keycloak.RequestTimeoutSec = 10
	}
	if cfg.Refresh.TickFraction <= 0 || cfg.Refresh.TickFraction >= 1 {
		cfg.Refresh.TickFraction = 0.75
	}
	if cfg.Refresh.CooldownMinutes <= 0 {
		cfg.Refresh.CooldownMinutes = 30
	}
	if cfg.Dashboards.TimeoutSec <= 0 {
		cfg.Dashboards.TimeoutSec = 5
	}
	if cfg.Cleanup.Schedule == "" {
		cfg.Cleanup.Schedule = "@every 15m"
	}
}

func secondsDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func getEnv(keys ...string) string {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func resolveConfigPath() string {
	if v := getEnv("APP_CONFIG", envPrefix+"APP_CONFIG"); v != "" {
		return strings.TrimSpace(v)
	}
	return defaultConfigPath
}

func listenAddrWithPort(currentAddr, portRaw string) string {
	port := strings.TrimSpace(portRaw)
	if port == "" {
		return currentAddr
	}
	if _, err := strconv.Atoi(port); err != nil {
		return currentAddr
	}
	host := "0.0.0.0"
	parts := strings.Split(strings.TrimSpace(currentAddr), ":")
	if len(parts) > 1 {
		host = strings.Join(parts[:len(parts)-1], ":")
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return host + ":" + port
}
