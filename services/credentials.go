package services

import (
	"fmt"

	"github.com/zhifu/sumup-terminal/config"
)

const (
	CredentialSourceStore  = "store"
	CredentialSourceConfig = "config"
)

// CredentialOption is one credential the operator can pick for account
// level calls such as pairing.
type CredentialOption struct {
	Key          string
	Label        string
	Credential   string
	MerchantCode string
}

type CredentialResolver struct {
	cfg   config.SumUpConfig
	store *CredentialStore
}

func NewCredentialResolver(cfg config.SumUpConfig, store *CredentialStore) *CredentialResolver {
	return &CredentialResolver{cfg: cfg, store: store}
}

func (r *CredentialResolver) Method() AuthMethod {
	return AuthMethod(r.cfg.AuthMethod)
}

// Options lists the usable credentials in preference order. A store that
// cannot be read is reported but does not hide the config option.
func (r *CredentialResolver) Options() ([]CredentialOption, error) {
	var (
		options  []CredentialOption
		storeErr error
	)

	if r.Method() == AuthOAuth {
		if r.cfg.AccessToken != "" {
			options = append(options, CredentialOption{
				Key:          CredentialSourceConfig,
				Label:        "OAuth access token from config",
				Credential:   r.cfg.AccessToken,
				MerchantCode: r.cfg.EffectiveMerchantCode(),
			})
		}
		return options, nil
	}

	if r.store != nil {
		stored, err := r.store.GetAPICredential()
		if err != nil {
			storeErr = fmt.Errorf("read stored credential: %w", err)
		} else if stored != nil && stored.APIKey != "" {
			options = append(options, CredentialOption{
				Key:          CredentialSourceStore,
				Label:        "Stored API key",
				Credential:   stored.APIKey,
				MerchantCode: stored.MerchantID,
			})
		}
	}
	if r.cfg.APIKey != "" {
		options = append(options, CredentialOption{
			Key:          CredentialSourceConfig,
			Label:        "API key from config",
			Credential:   r.cfg.APIKey,
			MerchantCode: r.cfg.EffectiveMerchantCode(),
		})
	}
	return options, storeErr
}

// Select returns the option with the given key, or the first option when
// key is empty.
func (r *CredentialResolver) Select(key string) (CredentialOption, error) {
	options, _ := r.Options()
	if len(options) == 0 {
		return CredentialOption{}, ValidationErrors{"No credential is available. Check the configuration or store an API key."}
	}
	if key == "" {
		return options[0], nil
	}
	for _, o := range options {
		if o.Key == key {
			return o, nil
		}
	}
	return CredentialOption{}, ValidationErrors{fmt.Sprintf("Unknown credential source %q.", key)}
}

// DefaultMerchantCode prefers the merchant stored with the API key over the
// configured one.
func (r *CredentialResolver) DefaultMerchantCode() string {
	if r.store != nil {
		if stored, err := r.store.GetAPICredential(); err == nil && stored != nil && stored.MerchantID != "" {
			return stored.MerchantID
		}
	}
	return r.cfg.EffectiveMerchantCode()
}
