package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileIsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoad_MalformedJSONIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_SeedsBundleFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"session":"abc","csrf":"xyz"}`), 0o600))

	store, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Bundle().Len())
	assert.Equal(t, map[string]string{"session": "abc", "csrf": "xyz"}, store.Bundle().Snapshot())
}

func TestPersist_WritesBundleAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))

	store, err := Load(path)
	require.NoError(t, err)
	store.Bundle().ApplyCookieUpdate("session=abc; Path=/")

	require.NoError(t, store.Persist())

	_, err = os.Stat(path + ".tmp")
	assert.Error(t, err, "temp file should be renamed away, not left behind")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]string
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "abc", raw["session"])
}

func TestApplyCookieUpdate_ParsesNameValueAndIgnoresAttributes(t *testing.T) {
	b := NewBundle()
	b.ApplyCookieUpdate("session=abc123; Path=/; HttpOnly; Secure")
	assert.Equal(t, "abc123", b.Snapshot()["session"])
}

func TestApplyCookieUpdate_ToleratesNonStandardFractionalMaxAge(t *testing.T) {
	b := NewBundle()
	b.ApplyCookieUpdate("session=abc123; Max-Age=1234.5678; Path=/")
	assert.Equal(t, "abc123", b.Snapshot()["session"])
}

func TestApplyCookieUpdate_IgnoresMalformedHeader(t *testing.T) {
	b := NewBundle()
	b.ApplyCookieUpdate("garbage-without-equals-sign")
	assert.Zero(t, b.Len())
}

func TestApplyCookieUpdate_OverwritesExistingValue(t *testing.T) {
	b := NewBundle()
	b.ApplyCookieUpdate("session=first")
	b.ApplyCookieUpdate("session=second")
	assert.Equal(t, "second", b.Snapshot()["session"])
	assert.Equal(t, 1, b.Len())
}
