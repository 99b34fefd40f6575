// Package config loads the console settings from config.yaml, an optional
// .env file and environment variables into typed structs.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	AuthMethodAPIKey = "api_key"
	AuthMethodOAuth  = "oauth"

	DefaultBaseURL = "https://api.sumup.com"
	// PublishableKeyPrefix marks SumUp keys that cannot authorize API calls.
	PublishableKeyPrefix = "sum_pk_"
	DefaultRealm   = "SumUp Terminal"
)

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	SumUp     SumUpConfig      `mapstructure:"sumup"`
	Auth      AuthConfig       `mapstructure:"auth"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Webhook   WebhookConfig    `mapstructure:"webhook"`
	Log       LogConfig        `mapstructure:"log"`
	MySQL     MySQLConfig      `mapstructure:"mysql"`
	Terminals []TerminalConfig `mapstructure:"terminals"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
	// Mode is the gin mode: release, debug or test.
	Mode            string        `mapstructure:"mode"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SumUpConfig holds the account level credentials. Per-terminal API keys
// live in the terminal storage file.
type SumUpConfig struct {
	AuthMethod   string        `mapstructure:"auth_method"`
	APIKey       string        `mapstructure:"api_key"`
	AccessToken  string        `mapstructure:"access_token"`
	MerchantCode string        `mapstructure:"merchant_code"`
	MerchantID   string        `mapstructure:"merchant_id"`
	Currency     string        `mapstructure:"currency"`
	MinorUnit    int           `mapstructure:"minor_unit"`
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type AuthUser struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

type AuthConfig struct {
	Realm string     `mapstructure:"realm"`
	Users []AuthUser `mapstructure:"users"`
}

// StorageConfig points at the single writable directory all flat files
// live in. Individual paths may be overridden; relative overrides are
// resolved against Dir.
type StorageConfig struct {
	Dir             string `mapstructure:"dir"`
	TerminalsFile   string `mapstructure:"terminals_file"`
	TransactionsDir string `mapstructure:"transactions_dir"`
	TransactionLog  string `mapstructure:"transaction_log"`
	CredentialFile  string `mapstructure:"credential_file"`
	KeyFile         string `mapstructure:"key_file"`
}

type WebhookConfig struct {
	SharedSecret string `mapstructure:"shared_secret"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// MySQLConfig enables the optional attempt ledger when Host is set.
type MySQLConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

func (m MySQLConfig) Enabled() bool {
	return strings.TrimSpace(m.Host) != ""
}

type TerminalConfig struct {
	Label            string `mapstructure:"label"`
	MerchantCode     string `mapstructure:"merchant_code"`
	ReaderID         string `mapstructure:"reader_id"`
	AppID            string `mapstructure:"app_id"`
	AffiliateKey     string `mapstructure:"affiliate_key"`
	APIKey           string `mapstructure:"api_key"`
	DefaultReturnURL string `mapstructure:"default_return_url"`
}

// UserMap returns the configured Basic Auth users keyed by username.
func (a AuthConfig) UserMap() map[string]string {
	users := make(map[string]string, len(a.Users))
	for _, u := range a.Users {
		users[u.Username] = u.PasswordHash
	}
	return users
}

// EffectiveMerchantCode prefers merchant_code and falls back to merchant_id.
func (s SumUpConfig) EffectiveMerchantCode() string {
	if s.MerchantCode != "" {
		return s.MerchantCode
	}
	return s.MerchantID
}

func applyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if len(c.Server.TrustedProxies) == 0 {
		c.Server.TrustedProxies = []string{"127.0.0.1"}
	}

	c.SumUp.AuthMethod = strings.ToLower(strings.TrimSpace(c.SumUp.AuthMethod))
	c.SumUp.APIKey = strings.TrimSpace(c.SumUp.APIKey)
	c.SumUp.AccessToken = strings.TrimSpace(c.SumUp.AccessToken)
	if c.SumUp.AuthMethod == "" {
		c.SumUp.AuthMethod = deriveAuthMethod(c.SumUp.AccessToken)
	}
	if c.SumUp.Currency == "" {
		c.SumUp.Currency = "EUR"
	}
	c.SumUp.Currency = strings.ToUpper(c.SumUp.Currency)
	if c.SumUp.BaseURL == "" {
		c.SumUp.BaseURL = DefaultBaseURL
	}
	if c.SumUp.Timeout == 0 {
		c.SumUp.Timeout = 30 * time.Second
	}

	if c.Auth.Realm == "" {
		c.Auth.Realm = DefaultRealm
	}

	if c.Storage.Dir == "" {
		c.Storage.Dir = "var"
	}
	c.Storage.TerminalsFile = resolvePath(c.Storage.Dir, c.Storage.TerminalsFile, "terminals.json")
	c.Storage.TransactionsDir = resolvePath(c.Storage.Dir, c.Storage.TransactionsDir, "transactions")
	c.Storage.TransactionLog = resolvePath(c.Storage.Dir, c.Storage.TransactionLog, "transactions.log")
	c.Storage.CredentialFile = resolvePath(c.Storage.Dir, c.Storage.CredentialFile, "sumup_credentials.json")
	c.Storage.KeyFile = resolvePath(c.Storage.Dir, c.Storage.KeyFile, "secure_store.key")

	c.Webhook.SharedSecret = strings.TrimSpace(c.Webhook.SharedSecret)

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.MySQL.Port == 0 {
		c.MySQL.Port = 3306
	}
}

func deriveAuthMethod(accessToken string) string {
	if accessToken != "" {
		return AuthMethodOAuth
	}
	return AuthMethodAPIKey
}

func resolvePath(dir, value, fallback string) string {
	if value == "" {
		return filepath.Join(dir, fallback)
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(dir, value)
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Auth.Users) == 0 {
		errs = append(errs, errors.New("auth.users: at least one user must be configured"))
	}
	for i, u := range c.Auth.Users {
		if strings.TrimSpace(u.Username) == "" || u.PasswordHash == "" {
			errs = append(errs, fmt.Errorf("auth.users[%d]: username and password_hash are required", i))
		}
	}
	if c.SumUp.AuthMethod != AuthMethodAPIKey && c.SumUp.AuthMethod != AuthMethodOAuth {
		errs = append(errs, fmt.Errorf("sumup.auth_method: %q is not one of api_key, oauth", c.SumUp.AuthMethod))
	}
	if len(c.SumUp.Currency) != 3 {
		errs = append(errs, fmt.Errorf("sumup.currency: %q is not an ISO 4217 code", c.SumUp.Currency))
	}
	if c.SumUp.MinorUnit < 0 || c.SumUp.MinorUnit > 6 {
		errs = append(errs, fmt.Errorf("sumup.minor_unit: %d is outside 0..6", c.SumUp.MinorUnit))
	}
	if strings.TrimSpace(c.Storage.Dir) == "" {
		errs = append(errs, errors.New("storage.dir: must not be empty"))
	}
	switch c.Server.Mode {
	case "release", "debug", "test":
	default:
		errs = append(errs, fmt.Errorf("server.mode: %q is not one of release, debug, test", c.Server.Mode))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d is not a valid port", c.Server.Port))
	}

	for i, t := range c.Terminals {
		errs = append(errs, t.validate(i)...)
	}

	return errors.Join(errs...)
}

func (t TerminalConfig) validate(i int) []error {
	var errs []error
	if strings.TrimSpace(t.Label) == "" || strings.TrimSpace(t.ReaderID) == "" {
		errs = append(errs, fmt.Errorf("terminals[%d]: label and reader_id are required", i))
	}
	apiKey := strings.TrimSpace(t.APIKey)
	switch {
	case apiKey == "":
		errs = append(errs, fmt.Errorf("terminals[%d]: api_key is required", i))
	case strings.HasPrefix(apiKey, PublishableKeyPrefix):
		errs = append(errs, fmt.Errorf("terminals[%d]: api_key is a publishable key, use the secret sum_sk_ key", i))
	}
	if strings.TrimSpace(t.MerchantCode) != "" && (strings.TrimSpace(t.AppID) == "" || strings.TrimSpace(t.AffiliateKey) == "") {
		errs = append(errs, fmt.Errorf("terminals[%d]: app_id and affiliate_key are required with merchant_code", i))
	}
	return errs
}
