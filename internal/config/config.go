// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"idflow/internal/domain"
)

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	IssuerURL string // OIDC issuer URL for bearer-token verification
	JWTSecret string // HS256 shared secret for local/dev JWT auth
	Audience  string // required JWT audience claim
}

// Enabled reports whether any API authentication is configured.
func (a *AuthConfig) Enabled() bool {
	return a.IssuerURL != "" || a.JWTSecret != ""
}

// FederationConfig holds this organization's side of the SAML bootstrap.
type FederationConfig struct {
	PeerOrg     string // peer organization name
	Role        domain.FederationRole
	Issuer      string // IdP: own issuer
	SSOURL      string // IdP: own SSO URL
	SigningCert string // IdP: own signing certificate (PEM or path)
	ACSURL      string // SP: own assertion consumer service URL
	Audience    string // SP: own audience restriction
}

// Configured reports whether a federation peer is set up at all.
func (f *FederationConfig) Configured() bool {
	return f.PeerOrg != ""
}

// Metadata builds the self-referential endpoint descriptor published as
// this side's placeholder record.
func (f *FederationConfig) Metadata() domain.EndpointMetadata {
	return domain.EndpointMetadata{
		Issuer:      f.Issuer,
		SSOURL:      f.SSOURL,
		SigningCert: f.SigningCert,
		ACSURL:      f.ACSURL,
		Audience:    f.Audience,
	}
}

// StoreConfig selects and parameterizes the shared configuration store.
type StoreConfig struct {
	Backend string // memory, sqlite, s3, gcs, azure

	// S3-compatible
	S3Endpoint string
	S3Region   string
	S3KeyID    string
	S3Secret   string
	S3Bucket   string

	// GCS
	GCSKeyFile string
	GCSBucket  string

	// Azure Blob
	AzureAccount   string
	AzureKey       string
	AzureContainer string
}

// Config holds the full engine configuration.
type Config struct {
	OrgName       string // this organization's name, used as federation identity
	RulesPath     string // rule configuration YAML
	DirectoryPath string // directory snapshot YAML
	MetaDBPath    string // path to the SQLite metastore
	ListenAddr    string // HTTP listen address (default ":8080")
	TickSchedule  string // cron spec for reconciliation ticks (default "@every 5m")
	LogLevel      string // debug, info, warn, error (default "info")
	Env           string // "development" (default) or "production"

	// Expiration scheduler thresholds, in days.
	WarningDays     int
	FinalNoticeDays int

	// Reconciler tuning.
	ReconcileWorkers int

	// Notification delivery.
	NotifyEndpoints     []string // webhook URLs; empty means no sinks
	NotifySigningSecret string   // HS256 secret for delivery tokens
	NotifyRatePerSec    float64

	// Rate limiting for the admin API.
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // default ["*"]

	Auth       AuthConfig
	Federation FederationConfig
	Store      StoreConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the engine is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		OrgName:             os.Getenv("ORG_NAME"),
		RulesPath:           os.Getenv("RULES_PATH"),
		DirectoryPath:       os.Getenv("DIRECTORY_PATH"),
		MetaDBPath:          os.Getenv("META_DB_PATH"),
		ListenAddr:          os.Getenv("LISTEN_ADDR"),
		TickSchedule:        os.Getenv("TICK_SCHEDULE"),
		LogLevel:            os.Getenv("LOG_LEVEL"),
		Env:                 os.Getenv("ENV"),
		NotifySigningSecret: os.Getenv("NOTIFY_SIGNING_SECRET"),
	}

	cfg.WarningDays = parseIntEnv("WARNING_DAYS", 30)
	cfg.FinalNoticeDays = parseIntEnv("FINAL_NOTICE_DAYS", 7)
	cfg.ReconcileWorkers = parseIntEnv("RECONCILE_WORKERS", 8)
	cfg.RateLimitBurst = parseIntEnv("RATE_LIMIT_BURST", 200)

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("NOTIFY_RATE_PER_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.NotifyRatePerSec = f
		}
	}
	if v := os.Getenv("NOTIFY_ENDPOINTS"); v != "" {
		cfg.NotifyEndpoints = splitTrimmed(v)
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitTrimmed(v)
	}

	cfg.Auth = AuthConfig{
		IssuerURL: os.Getenv("AUTH_ISSUER_URL"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		Audience:  os.Getenv("AUTH_AUDIENCE"),
	}

	cfg.Federation = FederationConfig{
		PeerOrg:     os.Getenv("FEDERATION_PEER_ORG"),
		Role:        domain.FederationRole(os.Getenv("FEDERATION_ROLE")),
		Issuer:      os.Getenv("FEDERATION_ISSUER"),
		SSOURL:      os.Getenv("FEDERATION_SSO_URL"),
		SigningCert: os.Getenv("FEDERATION_SIGNING_CERT"),
		ACSURL:      os.Getenv("FEDERATION_ACS_URL"),
		Audience:    os.Getenv("FEDERATION_AUDIENCE"),
	}

	cfg.Store = StoreConfig{
		Backend:        os.Getenv("STORE_BACKEND"),
		S3Endpoint:     os.Getenv("STORE_S3_ENDPOINT"),
		S3Region:       os.Getenv("STORE_S3_REGION"),
		S3KeyID:        os.Getenv("STORE_S3_KEY_ID"),
		S3Secret:       os.Getenv("STORE_S3_SECRET"),
		S3Bucket:       os.Getenv("STORE_S3_BUCKET"),
		GCSKeyFile:     os.Getenv("STORE_GCS_KEY_FILE"),
		GCSBucket:      os.Getenv("STORE_GCS_BUCKET"),
		AzureAccount:   os.Getenv("STORE_AZURE_ACCOUNT"),
		AzureKey:       os.Getenv("STORE_AZURE_KEY"),
		AzureContainer: os.Getenv("STORE_AZURE_CONTAINER"),
	}

	// Defaults.
	if cfg.OrgName == "" {
		cfg.OrgName = "default-org"
		cfg.Warnings = append(cfg.Warnings, "ORG_NAME not set — using \"default-org\"")
	}
	if cfg.RulesPath == "" {
		cfg.RulesPath = "rules.yaml"
	}
	if cfg.DirectoryPath == "" {
		cfg.DirectoryPath = "directory.yaml"
	}
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "idflow_meta.sqlite"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.TickSchedule == "" {
		cfg.TickSchedule = "@every 5m"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "sqlite"
	}

	// Consistency checks.
	if cfg.WarningDays <= cfg.FinalNoticeDays {
		return nil, fmt.Errorf("WARNING_DAYS (%d) must exceed FINAL_NOTICE_DAYS (%d)", cfg.WarningDays, cfg.FinalNoticeDays)
	}
	if cfg.Federation.Configured() {
		switch cfg.Federation.Role {
		case domain.RoleSP, domain.RoleIdP:
		default:
			return nil, fmt.Errorf("FEDERATION_ROLE must be %q or %q when FEDERATION_PEER_ORG is set", domain.RoleSP, domain.RoleIdP)
		}
	}
	if !cfg.Auth.Enabled() {
		cfg.Warnings = append(cfg.Warnings, "API auth is not configured — set AUTH_ISSUER_URL or JWT_SECRET")
	}
	if len(cfg.NotifyEndpoints) > 0 && cfg.NotifySigningSecret == "" {
		cfg.Warnings = append(cfg.Warnings, "NOTIFY_SIGNING_SECRET not set — webhook deliveries will be unsigned")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if !cfg.Auth.Enabled() {
			return nil, fmt.Errorf("API auth must be configured in production (set AUTH_ISSUER_URL or JWT_SECRET)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
		if cfg.Federation.Configured() && cfg.Store.Backend == "memory" {
			return nil, fmt.Errorf("STORE_BACKEND=memory cannot serve cross-organization federation in production")
		}
	}

	return cfg, nil
}

func parseIntEnv(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func splitTrimmed(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be in KEY=VALUE format. Comments (#) and blank
// lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Env vars take precedence over .env entries.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
