// Package config loads settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultAuthURL  = "https://appcenter.intuit.com/connect/oauth2"
	defaultTokenURL = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	defaultScopes   = "com.intuit.quickbooks.accounting"
)

type Config struct {
	QuickBooks QuickBooksConfig
	Pipedrive  PipedriveConfig
	Database   DatabaseConfig
	Log        LogConfig

	HTTPTimeout time.Duration
}

type QuickBooksConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	MinorVersion string
	// MinRequestInterval spaces consecutive API requests.
	MinRequestInterval time.Duration
	// StrictNumbering refuses to restart numbering at 1 when the latest document number is not numeric.
	StrictNumbering bool
}

type PipedriveConfig struct {
	APIBaseURL string
	APIToken   string
	// InvoiceNumberFieldKey is the deal custom field that stores the accounting document number.
	InvoiceNumberFieldKey string
}

type DatabaseConfig struct {
	Path string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads .env (when present) and then the process environment.
// Environment variables win over .env values, and both win over built-in defaults.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		QuickBooks: QuickBooksConfig{
			ClientID:           v.GetString("qbo_client_id"),
			ClientSecret:       v.GetString("qbo_client_secret"),
			RedirectURI:        v.GetString("qbo_redirect_uri"),
			Scopes:             strings.Fields(v.GetString("qbo_scopes")),
			AuthURL:            v.GetString("qbo_auth_url"),
			TokenURL:           v.GetString("qbo_token_url"),
			APIBaseURL:         strings.TrimRight(v.GetString("qbo_api_base_url"), "/"),
			MinorVersion:       v.GetString("qbo_minor_version"),
			MinRequestInterval: v.GetDuration("qbo_min_request_interval"),
			StrictNumbering:    v.GetBool("strict_numbering"),
		},
		Pipedrive: PipedriveConfig{
			APIBaseURL:            strings.TrimRight(v.GetString("pipedrive_api_base_url"), "/"),
			APIToken:              v.GetString("pipedrive_api_token"),
			InvoiceNumberFieldKey: v.GetString("invoice_number_field_key"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database_path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
		HTTPTimeout: v.GetDuration("http_timeout"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("qbo_scopes", defaultScopes)
	v.SetDefault("qbo_auth_url", defaultAuthURL)
	v.SetDefault("qbo_token_url", defaultTokenURL)
	v.SetDefault("qbo_api_base_url", "https://quickbooks.api.intuit.com")
	v.SetDefault("qbo_minor_version", "65")
	v.SetDefault("qbo_min_request_interval", "120ms")
	v.SetDefault("qbo_redirect_uri", "http://localhost:8080/callback")
	v.SetDefault("strict_numbering", false)
	v.SetDefault("pipedrive_api_base_url", "https://api.pipedrive.com")
	v.SetDefault("invoice_number_field_key", "")
	v.SetDefault("database_path", "ledger_bridge.db")
	v.SetDefault("http_timeout", "30s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	// Secrets have no default; bind them so AllKeys lists them.
	for _, key := range []string{"qbo_client_id", "qbo_client_secret", "pipedrive_api_token"} {
		_ = v.BindEnv(key)
	}
}

// Validate reports every required setting that is missing.
func (c *Config) Validate() error {
	var missing []string
	if c.QuickBooks.ClientID == "" {
		missing = append(missing, "QBO_CLIENT_ID")
	}
	if c.QuickBooks.ClientSecret == "" {
		missing = append(missing, "QBO_CLIENT_SECRET")
	}
	if c.Pipedrive.APIToken == "" {
		missing = append(missing, "PIPEDRIVE_API_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}
