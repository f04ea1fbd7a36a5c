package middleware

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyStore_Defaults(t *testing.T) {
	keys := NewKeyStore("admin-secret")
	assert.Equal(t, 2, keys.Len())

	admin, ok := keys.Lookup("admin-secret")
	require.True(t, ok)
	assert.Equal(t, "Admin Key", admin.Name)
	assert.True(t, admin.Has(PermRead))
	assert.True(t, admin.Has(PermWrite))
	assert.True(t, admin.Has(PermAdmin))
	assert.Equal(t, 1000, admin.RateLimit)

	demo, ok := keys.Lookup(DemoReadOnlyKey)
	require.True(t, ok)
	assert.Equal(t, "Demo Read Only", demo.Name)
	assert.True(t, demo.Has(PermRead))
	assert.False(t, demo.Has(PermWrite))
	assert.Equal(t, 100, demo.RateLimit)

	_, ok = keys.Lookup("")
	assert.False(t, ok)
	_, ok = keys.Lookup("nope")
	assert.False(t, ok)
}

func writeKeysFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keys.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestKeyStore_LoadFile(t *testing.T) {
	path := writeKeysFile(t, `
keys:
  - key: reporting-7f3a
    name: Reporting
    permissions: [read]
    rate_limit: 500
  - key: ingest-19cc
    permissions: [read, write]
`)
	keys := NewKeyStore("admin-secret")
	require.NoError(t, keys.LoadFile(path))
	assert.Equal(t, 4, keys.Len())

	reporting, ok := keys.Lookup("reporting-7f3a")
	require.True(t, ok)
	assert.Equal(t, "Reporting", reporting.Name)
	assert.Equal(t, 500, reporting.RateLimit)
	assert.False(t, reporting.Has(PermWrite))

	ingest, ok := keys.Lookup("ingest-19cc")
	require.True(t, ok)
	assert.Equal(t, "Key 2", ingest.Name)
	assert.Equal(t, 100, ingest.RateLimit)
	assert.True(t, ingest.Has(PermWrite))
}

func TestKeyStore_LoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "keys: [", "parse api keys file"},
		{"missing key", "keys:\n  - name: x\n    permissions: [read]\n", "has no key"},
		{"bad permission", "keys:\n  - key: k\n    name: x\n    permissions: [delete]\n", "unknown permission"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewKeyStore("a").LoadFile(writeKeysFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	err := NewKeyStore("a").LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestClientID(t *testing.T) {
	id := ClientID("dev-key-analytics-2024")
	assert.Equal(t, "key_bf978145", id)
	assert.Equal(t, id, ClientID("dev-key-analytics-2024"))
	assert.NotEqual(t, id, ClientID(DemoReadOnlyKey))
}

func TestKeyStore_ReloadReplacesFileKeys(t *testing.T) {
	path := writeKeysFile(t, "keys:\n  - key: old-key\n    permissions: [read]\n")
	keys := NewKeyStore("admin-secret")
	require.NoError(t, keys.LoadFile(path))

	require.NoError(t, os.WriteFile(path, []byte("keys:\n  - key: new-key\n    permissions: [read]\n"), 0o600))
	require.NoError(t, keys.LoadFile(path))

	_, ok := keys.Lookup("old-key")
	assert.False(t, ok)
	_, ok = keys.Lookup("new-key")
	assert.True(t, ok)
	_, ok = keys.Lookup("admin-secret")
	assert.True(t, ok, "built-in keys survive reloads")

	require.NoError(t, os.WriteFile(path, []byte("keys: ["), 0o600))
	assert.Error(t, keys.LoadFile(path))
	_, ok = keys.Lookup("new-key")
	assert.True(t, ok, "a broken file keeps the previous keys")
}

func TestKeyStore_FileKeyShadowsBuiltin(t *testing.T) {
	path := writeKeysFile(t, "keys:\n  - key: demo-readonly-key\n    name: Demo Override\n    permissions: [read, write]\n")
	keys := NewKeyStore("admin-secret")
	require.NoError(t, keys.LoadFile(path))

	demo, ok := keys.Lookup(DemoReadOnlyKey)
	require.True(t, ok)
	assert.Equal(t, "Demo Override", demo.Name)
	assert.Equal(t, 2, keys.Len())
}

func TestKeyStore_WatchFile(t *testing.T) {
	path := writeKeysFile(t, "keys:\n  - key: first\n    permissions: [read]\n")
	keys := NewKeyStore("admin-secret")
	require.NoError(t, keys.LoadFile(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reloads atomic.Int32
	require.NoError(t, keys.WatchFile(ctx, path, nil, func(error) { reloads.Add(1) }))

	require.NoError(t, os.WriteFile(path, []byte("keys:\n  - key: second\n    permissions: [read, write]\n"), 0o600))

	require.Eventually(t, func() bool {
		_, ok := keys.Lookup("second")
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	_, ok := keys.Lookup("first")
	assert.False(t, ok)
	assert.Positive(t, reloads.Load())
}

func TestKeyStore_WatchFileMissingDir(t *testing.T) {
	keys := NewKeyStore("admin-secret")
	err := keys.WatchFile(context.Background(), filepath.Join(t.TempDir(), "nope", "keys.yaml"), nil, nil)
	assert.Error(t, err)
}
