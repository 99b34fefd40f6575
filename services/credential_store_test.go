package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhifu/sumup-terminal/config"
)

func newTestStore(t *testing.T) (*CredentialStore, string, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "secure")
	credFile := filepath.Join(dir, "sumup_credentials.json")
	keyFile := filepath.Join(dir, "secure_store.key")
	return NewCredentialStore(credFile, keyFile), credFile, keyFile
}

func TestCredentialStore_RoundTrip(t *testing.T) {
	store, credFile, keyFile := newTestStore(t)
	assert.False(t, store.HasAPIKey())

	require.NoError(t, store.SaveAPIKey(" MCRNF79M ", " sum_sk_live_secret "))
	assert.True(t, store.HasAPIKey())

	got, err := store.GetAPICredential()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "MCRNF79M", got.MerchantID)
	assert.Equal(t, "sum_sk_live_secret", got.APIKey)
	assert.False(t, got.UpdatedAt.IsZero())

	raw, err := os.ReadFile(credFile)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sum_sk_live_secret")
	assert.Contains(t, string(raw), `"nonce"`)

	for _, f := range []string{credFile, keyFile} {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), f)
	}
	key, err := os.ReadFile(keyFile)
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestCredentialStore_ReusesKeyAcrossInstances(t *testing.T) {
	store, credFile, keyFile := newTestStore(t)
	require.NoError(t, store.SaveAPIKey("MC1", "sum_sk_one"))

	again := NewCredentialStore(credFile, keyFile)
	got, err := again.GetAPICredential()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sum_sk_one", got.APIKey)
}

func TestCredentialStore_UnreadableKeyIsNotReplaced(t *testing.T) {
	store, credFile, keyFile := newTestStore(t)
	// a directory at the key path fails to read without being missing
	require.NoError(t, os.MkdirAll(keyFile, 0o700))

	err := store.SaveAPIKey("MC1", "sum_sk_one")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read key file")

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	_, err = os.Stat(credFile)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCredentialStore_RegeneratesShortKey(t *testing.T) {
	store, _, keyFile := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(keyFile), 0o700))
	require.NoError(t, os.WriteFile(keyFile, []byte("short"), 0o644))

	require.NoError(t, store.SaveAPIKey("MC1", "sum_sk_one"))
	key, err := os.ReadFile(keyFile)
	require.NoError(t, err)
	assert.Len(t, key, 32)
	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := store.GetAPICredential()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sum_sk_one", got.APIKey)
}

func TestCredentialStore_RejectsBadKeys(t *testing.T) {
	store, credFile, _ := newTestStore(t)

	assert.ErrorIs(t, store.SaveAPIKey("MC1", "   "), ErrEmptyAPIKey)
	assert.ErrorIs(t, store.SaveAPIKey("MC1", "sum_pk_public"), ErrPublishableKey)
	assert.NoFileExists(t, credFile)
}

func TestCredentialStore_UndecryptableMeansNoCredential(t *testing.T) {
	store, credFile, keyFile := newTestStore(t)
	require.NoError(t, store.SaveAPIKey("MC1", "sum_sk_one"))

	// a different installation key cannot open the box
	require.NoError(t, os.WriteFile(keyFile, make([]byte, 32), 0o600))
	got, err := store.GetAPICredential()
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, os.WriteFile(credFile, []byte("{not json"), 0o600))
	got, err = store.GetAPICredential()
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, store.HasAPIKey())
}

func TestCredentialStore_Clear(t *testing.T) {
	store, credFile, _ := newTestStore(t)
	require.NoError(t, store.Clear())

	require.NoError(t, store.SaveAPIKey("MC1", "sum_sk_one"))
	require.NoError(t, store.Clear())

	assert.NoFileExists(t, credFile)
	got, err := store.GetAPICredential()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCredentialResolver_APIKeyPrefersStore(t *testing.T) {
	store, _, _ := newTestStore(t)
	cfg := config.SumUpConfig{AuthMethod: config.AuthMethodAPIKey, APIKey: "sum_sk_config", MerchantID: "MCCONF"}
	resolver := NewCredentialResolver(cfg, store)

	options, err := resolver.Options()
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.Equal(t, CredentialSourceConfig, options[0].Key)
	assert.Equal(t, "MCCONF", resolver.DefaultMerchantCode())

	require.NoError(t, store.SaveAPIKey("MCSTORE", "sum_sk_stored"))
	options, err = resolver.Options()
	require.NoError(t, err)
	require.Len(t, options, 2)
	assert.Equal(t, CredentialSourceStore, options[0].Key)
	assert.Equal(t, "sum_sk_stored", options[0].Credential)
	assert.Equal(t, "MCSTORE", resolver.DefaultMerchantCode())

	selected, err := resolver.Select("")
	require.NoError(t, err)
	assert.Equal(t, CredentialSourceStore, selected.Key)

	selected, err = resolver.Select(CredentialSourceConfig)
	require.NoError(t, err)
	assert.Equal(t, "sum_sk_config", selected.Credential)

	_, err = resolver.Select("other")
	var verrs ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestCredentialResolver_OAuthUsesAccessTokenOnly(t *testing.T) {
	store, _, _ := newTestStore(t)
	require.NoError(t, store.SaveAPIKey("MCSTORE", "sum_sk_stored"))
	resolver := NewCredentialResolver(config.SumUpConfig{
		AuthMethod:   config.AuthMethodOAuth,
		AccessToken:  "token",
		MerchantCode: "MC1",
	}, store)

	options, err := resolver.Options()
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.Equal(t, "token", options[0].Credential)
	assert.Equal(t, AuthOAuth, resolver.Method())
}

func TestCredentialResolver_NoOptions(t *testing.T) {
	resolver := NewCredentialResolver(config.SumUpConfig{AuthMethod: config.AuthMethodAPIKey}, nil)

	_, err := resolver.Select("")
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 1)
}
