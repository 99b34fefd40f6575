package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 9090
sumup:
  api_key: sum_sk_configured
  merchant_code: MCRNF79M
  currency: eur
auth:
  realm: Kasse
  users:
    - username: kasse
      password_hash: $2y$10$n9DYLqWc1jBJUniH1IpR/OYlfCfPfkKnSVYju3MrnaqwTfKRAK5wi
terminals:
  - label: Tresen
    reader_id: rdr_1
    api_key: sum_sk_terminal
webhook:
  shared_secret: "  s3cret  "
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ReadsYAMLAndAppliesDefaults(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, AuthMethodAPIKey, cfg.SumUp.AuthMethod)
	assert.Equal(t, "EUR", cfg.SumUp.Currency)
	assert.Equal(t, 2, cfg.SumUp.MinorUnit)
	assert.Equal(t, 30*time.Second, cfg.SumUp.Timeout)
	assert.Equal(t, DefaultBaseURL, cfg.SumUp.BaseURL)
	assert.Equal(t, "Kasse", cfg.Auth.Realm)
	assert.Equal(t, "s3cret", cfg.Webhook.SharedSecret)
	assert.Equal(t, filepath.Join("var", "terminals.json"), cfg.Storage.TerminalsFile)
	assert.Equal(t, filepath.Join("var", "secure_store.key"), cfg.Storage.KeyFile)
	require.Len(t, cfg.Terminals, 1)
	assert.Equal(t, "rdr_1", cfg.Terminals[0].ReaderID)
	assert.Contains(t, cfg.Auth.UserMap(), "kasse")
}

func TestLoad_EnvironmentOverridesStorageDir(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	dir := t.TempDir()
	t.Setenv("SUMUP_STORAGE_DIR", dir)
	t.Setenv("SUMUP_WEBHOOK_SECRET", "from-env")

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Storage.Dir)
	assert.Equal(t, filepath.Join(dir, "transactions"), cfg.Storage.TransactionsDir)
	assert.Equal(t, "from-env", cfg.Webhook.SharedSecret)
}

func TestLoad_DotEnvFileIsOptional(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	_, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.Error(t, err)
}

func TestApplyDefaults_DerivesOAuthFromAccessToken(t *testing.T) {
	var c Config
	c.SumUp.AccessToken = " token "
	applyDefaults(&c)

	assert.Equal(t, AuthMethodOAuth, c.SumUp.AuthMethod)
	assert.Equal(t, "token", c.SumUp.AccessToken)
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	c := Config{}
	applyDefaults(&c)
	c.SumUp.AuthMethod = "password"
	c.SumUp.Currency = "EURO"

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.users")
	assert.Contains(t, err.Error(), "sumup.auth_method")
	assert.Contains(t, err.Error(), "sumup.currency")
}

func TestEffectiveMerchantCode(t *testing.T) {
	assert.Equal(t, "MC1", SumUpConfig{MerchantCode: "MC1", MerchantID: "MC2"}.EffectiveMerchantCode())
	assert.Equal(t, "MC2", SumUpConfig{MerchantID: "MC2"}.EffectiveMerchantCode())
}

func TestValidate_RejectsUnusableTerminals(t *testing.T) {
	c := Config{
		Auth: AuthConfig{Users: []AuthUser{{Username: "kasse", PasswordHash: "x"}}},
		Terminals: []TerminalConfig{
			{Label: "Ok", ReaderID: "rdr_0", APIKey: "sum_sk_ok"},
			{Label: "Public", ReaderID: "rdr_1", APIKey: "sum_pk_public"},
			{Label: "Keyless", ReaderID: "rdr_2"},
			{Label: "Merchant", ReaderID: "rdr_3", APIKey: "sum_sk_x", MerchantCode: "MC1"},
			{APIKey: "sum_sk_y"},
		},
	}
	applyDefaults(&c)

	err := c.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.NotContains(t, msg, "terminals[0]")
	assert.Contains(t, msg, "terminals[1]: api_key is a publishable key")
	assert.Contains(t, msg, "terminals[2]: api_key is required")
	assert.Contains(t, msg, "terminals[3]: app_id and affiliate_key are required")
	assert.Contains(t, msg, "terminals[4]: label and reader_id are required")
}

func TestLoad_FailsOnPublishableTerminalKey(t *testing.T) {
	path := writeConfig(t, strings.Replace(sampleYAML, "sum_sk_terminal", "sum_pk_terminal", 1))

	_, err := Load(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publishable")
}
