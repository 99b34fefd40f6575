package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhifu/sumup-terminal/config"
	"github.com/zhifu/sumup-terminal/models"
)

func newTerminalStorage(t *testing.T) *TerminalStorage {
	t.Helper()
	s, err := NewTerminalStorage(filepath.Join(t.TempDir(), "var", "terminals.json"))
	require.NoError(t, err)
	return s
}

func TestTerminalStorage_AddThenRemoveRestoresList(t *testing.T) {
	s := newTerminalStorage(t)
	_, err := s.Add(models.Terminal{Label: "Bar", ReaderID: "rdr_1", APIKey: "sum_sk_1"})
	require.NoError(t, err)
	before, err := s.All()
	require.NoError(t, err)

	added, err := s.Add(models.Terminal{Label: "Kiosk", MerchantCode: "MC1", ReaderID: "rdr_2"})
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{16}$`, added.ID)

	found, err := s.Find(added.ID)
	require.NoError(t, err)
	assert.Equal(t, added, found)

	require.NoError(t, s.Remove(added.ID))
	after, err := s.All()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = s.Find(added.ID)
	assert.ErrorIs(t, err, ErrTerminalNotFound)
}

func TestTerminalStorage_KeepsGivenID(t *testing.T) {
	s := newTerminalStorage(t)
	added, err := s.Add(models.Terminal{ID: "fixed", Label: "Bar"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", added.ID)

	assert.ErrorIs(t, s.Remove("unknown"), ErrTerminalNotFound)
	all, err := s.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTerminalStorage_Seed(t *testing.T) {
	s := newTerminalStorage(t)
	_, err := s.Add(models.Terminal{Label: "Stored", ReaderID: "rdr_1"})
	require.NoError(t, err)

	added, err := s.Seed([]config.TerminalConfig{
		{Label: "Duplicate", ReaderID: "rdr_1"},
		{Label: "New", ReaderID: "rdr_2", MerchantCode: "MC1"},
		{Label: "New twice", ReaderID: "rdr_2"},
		{Label: "No reader"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "New", all[1].Label)
	assert.Equal(t, "MC1", all[1].MerchantCode)

	added, err = s.Seed([]config.TerminalConfig{{Label: "New", ReaderID: "rdr_2"}})
	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestTerminalStorage_InvalidJSONFails(t *testing.T) {
	file := filepath.Join(t.TempDir(), "terminals.json")
	require.NoError(t, os.WriteFile(file, []byte("[broken"), 0o644))

	_, err := NewTerminalStorage(file)
	assert.Error(t, err)
}

func TestTerminalStorage_UnwritableDirectoryFails(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := NewTerminalStorage(filepath.Join(blocker, "terminals.json"))
	assert.Error(t, err)
}

func TestTransactionStorage_AppendKeepsEarlierEvents(t *testing.T) {
	s, err := NewTransactionStorage(filepath.Join(t.TempDir(), "transactions"))
	require.NoError(t, err)

	first := models.WebhookRecord{ID: "e1", StorageKey: "ft/1", Payload: map[string]any{"status": "PENDING"}}
	second := models.WebhookRecord{ID: "e2", StorageKey: "ft/1", Payload: map[string]any{"status": "SUCCESSFUL"}}
	require.NoError(t, s.Append("ft/1", first))
	loaded, err := s.Load("ft/1")
	require.NoError(t, err)
	created := loaded.CreatedAt

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Append("ft/1", second))

	loaded, err = s.Load("ft/1")
	require.NoError(t, err)
	assert.Equal(t, "ft/1", loaded.ID)
	assert.Equal(t, created, loaded.CreatedAt)
	assert.True(t, loaded.LastUpdated.After(created))
	require.Len(t, loaded.Events, 2)
	assert.Equal(t, "e1", loaded.Events[0].ID)
	assert.Equal(t, "PENDING", loaded.Events[0].Fields()["status"])
	assert.Equal(t, "e2", loaded.Events[1].ID)

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"ft_1"}, keys)
}

func TestTransactionStorage_LoadAndKeyErrors(t *testing.T) {
	s, err := NewTransactionStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.Load("missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	assert.ErrorIs(t, s.Append("  ", models.WebhookRecord{}), ErrInvalidStorageKey)
	assert.Equal(t, "a_b_c-d_e", SanitizeStorageKey("a/b.c-d e"))
}

func TestTransactionLog_WritesTabSeparatedLines(t *testing.T) {
	file := filepath.Join(t.TempDir(), "transactions.log")
	log := NewTransactionLog(file)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, log.Record(context.Background(), models.TransactionAttempt{
		CreatedAt:     at,
		Username:      "kasse",
		TerminalID:    "abc",
		TerminalLabel: "Bar",
		Amount:        "10,50",
		Currency:      "EUR",
		Outcome:       "rejected\tline\nbreak",
	}))
	require.NoError(t, log.Record(context.Background(), models.TransactionAttempt{CreatedAt: at, Username: "kasse", Outcome: "sent"}))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"2026-03-01T12:00:00Z", "kasse", "Bar (abc)", "10,50 EUR", "rejected line break"}, strings.Split(lines[0], "\t"))
	assert.Len(t, strings.Split(lines[1], "\t"), 5)
}

type recorderFunc func(models.TransactionAttempt) error

func (f recorderFunc) Record(_ context.Context, a models.TransactionAttempt) error { return f(a) }

func TestMultiRecorder_ReachesEveryRecorder(t *testing.T) {
	var calls int
	ok := recorderFunc(func(models.TransactionAttempt) error { calls++; return nil })
	failing := recorderFunc(func(models.TransactionAttempt) error { calls++; return assert.AnError })

	err := MultiRecorder{failing, ok}.Record(context.Background(), models.TransactionAttempt{})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 2, calls)
}
