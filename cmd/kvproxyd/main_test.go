package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kng-mtd/kvproxy/archive"
)

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand(&stdout, &stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func boltArgs(path string) []string {
	return []string{"--store-backend", "bolt", "--store-bolt-path", path, "--log-level", "error", "--metrics-enabled=false"}
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "kvproxyd dev\n", out)
}

func TestBackupRestoreThroughFiles(t *testing.T) {
	dir := t.TempDir()
	dbA := filepath.Join(dir, "a.db")
	dbB := filepath.Join(dir, "b.db")
	seed := `{"backupData":[{"key":"acme:cfg","value":{"on":true}},{"key":"acme:n","value":0},{"key":"beta:s","value":"x"}]}`

	_, stderr, err := run(t, seed, append([]string{"restore", "--in", "-"}, boltArgs(dbA)...)...)
	require.NoError(t, err, stderr)
	assert.Contains(t, stderr, "restored 3 of 3 entries")

	snap := filepath.Join(dir, "snap.cbor")
	_, stderr, err = run(t, "", append([]string{"backup", "--out", snap}, boltArgs(dbA)...)...)
	require.NoError(t, err, stderr)
	assert.Contains(t, stderr, "backed up 3 entries")
	assert.Contains(t, stderr, "cbor")

	_, stderr, err = run(t, "", append([]string{"restore", "--in", snap}, boltArgs(dbB)...)...)
	require.NoError(t, err, stderr)

	out, stderr, err := run(t, "", append([]string{"backup", "--tenant", "acme", "--format", "json"}, boltArgs(dbB)...)...)
	require.NoError(t, err, stderr)
	assert.JSONEq(t, `[{"key":"acme:cfg","value":{"on":true}},{"key":"acme:n","value":0}]`, out)
}

func TestRestoreReportsFailedEntries(t *testing.T) {
	db := filepath.Join(t.TempDir(), "kv.db")
	_, stderr, err := run(t, `[{"key":"t:a","value":1},{"key":"","value":2}]`,
		append([]string{"restore"}, boltArgs(db)...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 entries failed")
	assert.Contains(t, stderr, "entry 1")
}

func TestServeRequiresSecret(t *testing.T) {
	_, _, err := run(t, "", "serve", "--metrics-enabled=false")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.secret")
}

func TestConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "kvproxy.toml")
	db := filepath.Join(dir, "kv.db")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
[store]
backend = "bolt"

[store.bolt]
path = "`+filepath.ToSlash(db)+`"

[log]
level = "error"
`), 0o600))
	t.Setenv("KVPROXY_METRICS_ENABLED", "false")

	_, stderr, err := run(t, `[{"key":"t:k","value":[1]}]`, "restore", "--config", cfgPath)
	require.NoError(t, err, stderr)

	out, stderr, err := run(t, "", "backup", "--config", cfgPath)
	require.NoError(t, err, stderr)
	assert.JSONEq(t, `[{"key":"t:k","value":[1]}]`, out)
}

func TestPickFormat(t *testing.T) {
	for _, tc := range []struct {
		name, path, want string
	}{
		{"", "snap.msgpack", "msgpack"},
		{"", "snap.protobuf", "protobuf"},
		{"", "snap.bin", "json"},
		{"", "-", "json"},
		{"CBOR", "snap.json", "cbor"},
	} {
		f, err := pickFormat(tc.name, tc.path)
		require.NoError(t, err)
		assert.Equal(t, tc.want, f.Name, "%q %q", tc.name, tc.path)
	}
	_, err := pickFormat("xml", "")
	assert.Error(t, err)
	assert.Len(t, archive.Names(), 4)
}
