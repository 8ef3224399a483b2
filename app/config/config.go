package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted in AUTHN_PROVIDER.
const (
	ProviderSimple = "simple"
	ProviderLDAP   = "ldap"
	ProviderAAD    = "aad"
	ProviderOpenID = "openid"
)

// Config holds all configuration for the authentication service.
// Values come from an optional YAML file (AUTHN_CONFIG_FILE) overridden by
// environment variables.
type Config struct {
	// Server
	Port     string `yaml:"port"`
	Host     string `yaml:"host"`
	LogLevel string `yaml:"log_level"`
	// ServerAddress is the externally reachable base URL, used to build
	// the OpenID redirect_uri.
	ServerAddress string `yaml:"server_address"`

	// Database (user directory, and credential storage for the simple
	// backend)
	DatabaseURL string `yaml:"database_url"`

	// Authentication
	AuthnProvider        string `yaml:"authn_provider"`
	SessionExpiryMinutes int    `yaml:"session_expiry_minutes"`
	// InsecureMode disables the cookie Secure attribute for local
	// development. Production must leave this off.
	InsecureMode bool `yaml:"insecure_mode"`

	LDAP LDAPConfig   `yaml:"ldap"`
	OIDC OpenIDConfig `yaml:"openid"`
}

// LDAPConfig configures the LDAP/Active Directory backend.
type LDAPConfig struct {
	ServerURL       string `yaml:"server_url"`
	SearchBase      string `yaml:"search_base"`
	FilterField     string `yaml:"filter_field"`
	EmailField      string `yaml:"email_field"`
	Domain          string `yaml:"domain"`
	ActiveDirectory bool   `yaml:"active_directory"`
	NormalizeLogins bool   `yaml:"normalize_logins"`
}

// OpenIDConfig configures the OpenID Connect / Azure AD backend. For the
// aad provider Tenant is required and the discovery URL is derived; for
// the openid provider DiscoveryURL is required.
type OpenIDConfig struct {
	Tenant       string `yaml:"tenant"`
	DiscoveryURL string `yaml:"discovery_url"`
	ClientID     string `yaml:"client_id"`
}

// SessionExpiry returns the configured session max-age.
func (c *Config) SessionExpiry() time.Duration {
	return time.Duration(c.SessionExpiryMinutes) * time.Minute
}

// Load reads configuration from the optional YAML file named by
// AUTHN_CONFIG_FILE, then applies environment variable overrides.
func Load() (*Config, error) {
	config := &Config{
		Port:                 "9500",
		Host:                 "0.0.0.0",
		LogLevel:             "info",
		AuthnProvider:        ProviderSimple,
		SessionExpiryMinutes: 120,
		LDAP: LDAPConfig{
			FilterField:     "sAMAccountName",
			EmailField:      "mail",
			NormalizeLogins: true,
		},
	}

	if path := os.Getenv("AUTHN_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func applyEnv(c *Config) {
	setString(&c.Port, "PORT")
	setString(&c.Host, "HOST")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.ServerAddress, "SERVER_ADDRESS")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.AuthnProvider, "AUTHN_PROVIDER")
	setInt(&c.SessionExpiryMinutes, "SESSION_EXPIRY_MINUTES")
	setBool(&c.InsecureMode, "INSECURE_MODE")

	setString(&c.LDAP.ServerURL, "LDAP_SERVER_URL")
	setString(&c.LDAP.SearchBase, "LDAP_SEARCH_BASE")
	setString(&c.LDAP.FilterField, "LDAP_FILTER_FIELD")
	setString(&c.LDAP.EmailField, "LDAP_EMAIL_FIELD")
	setString(&c.LDAP.Domain, "LDAP_DOMAIN")
	setBool(&c.LDAP.ActiveDirectory, "LDAP_ACTIVE_DIRECTORY")
	setBool(&c.LDAP.NormalizeLogins, "LDAP_NORMALIZE_LOGINS")

	setString(&c.OIDC.Tenant, "OIDC_TENANT")
	setString(&c.OIDC.DiscoveryURL, "OIDC_DISCOVERY_URL")
	setString(&c.OIDC.ClientID, "OIDC_CLIENT_ID")
}

// Validate checks if the configuration is valid for the selected provider.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil {
		return fmt.Errorf("invalid port: %s", c.Port)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535: %s", c.Port)
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.SessionExpiryMinutes < 1 {
		return fmt.Errorf("session expiry must be at least 1 minute, got: %d", c.SessionExpiryMinutes)
	}

	c.AuthnProvider = strings.ToLower(c.AuthnProvider)
	switch c.AuthnProvider {
	case ProviderSimple:
	case ProviderLDAP:
		if c.LDAP.ServerURL == "" {
			return fmt.Errorf("LDAP_SERVER_URL is required for the ldap provider")
		}
		if c.LDAP.SearchBase == "" {
			return fmt.Errorf("LDAP_SEARCH_BASE is required for the ldap provider")
		}
	case ProviderAAD:
		if c.OIDC.Tenant == "" {
			return fmt.Errorf("OIDC_TENANT is required for the aad provider")
		}
		if c.ServerAddress == "" {
			return fmt.Errorf("SERVER_ADDRESS is required for the aad provider")
		}
	case ProviderOpenID:
		if c.OIDC.DiscoveryURL == "" {
			return fmt.Errorf("OIDC_DISCOVERY_URL is required for the openid provider")
		}
		if c.ServerAddress == "" {
			return fmt.Errorf("SERVER_ADDRESS is required for the openid provider")
		}
	default:
		return fmt.Errorf("unknown authn provider: %s", c.AuthnProvider)
	}

	c.ServerAddress = strings.TrimRight(c.ServerAddress, "/")

	return nil
}

// Helper functions

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*dst = parsed
		}
	}
}

func setBool(dst *bool, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*dst = parsed
		}
	}
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
