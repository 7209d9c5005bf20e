package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ENTITYSYNC_STORAGE_DRIVER", "memory")
	t.Setenv("ENTITYSYNC_TRANSPORT_PROVIDER", "memory")
	t.Setenv("ENTITYSYNC_BLOB_DRIVER", "none")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", t.TempDir()}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootRejectsUnknownFormat(t *testing.T) {
	_, err := run(t, "--format", "yaml", "retry", "stats")
	assert.ErrorContains(t, err, "invalid format")
}

func TestRetryStatsJSON(t *testing.T) {
	out, err := run(t, "--format", "json", "retry", "stats")
	require.NoError(t, err)

	var stats map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 0, stats["total_retrying"])
}

func TestDLQListText(t *testing.T) {
	out, err := run(t, "dlq", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "MESSAGE")
}

func TestDLQResolveParsesID(t *testing.T) {
	_, err := run(t, "dlq", "resolve", "not-a-uuid", "--note", "x")
	assert.ErrorContains(t, err, "invalid dead-letter id")

	_, err = run(t, "dlq", "list", "--state", "lost")
	assert.ErrorContains(t, err, "invalid state")
}
