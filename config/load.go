package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string][]string{
	"server.port":           {"SERVER_PORT"},
	"server.mode":           {"GIN_MODE"},
	"sumup.auth_method":     {"SUMUP_AUTH_METHOD"},
	"sumup.api_key":         {"SUMUP_API_KEY"},
	"sumup.access_token":    {"SUMUP_ACCESS_TOKEN"},
	"sumup.merchant_code":   {"SUMUP_MERCHANT_CODE"},
	"sumup.base_url":        {"SUMUP_BASE_URL"},
	"storage.dir":           {"SUMUP_STORAGE_DIR"},
	"webhook.shared_secret": {"SUMUP_WEBHOOK_SECRET"},
	"log.level":             {"LOG_LEVEL"},
	"mysql.host":            {"MYSQL_HOST"},
	"mysql.password":        {"MYSQL_PASSWORD"},
}

// Load reads envFile (optional) into the process environment, then the YAML
// configFile, overlays environment variables, applies defaults and validates.
func Load(configFile, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("sumup.minor_unit", 2)

	for key, names := range envBindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
