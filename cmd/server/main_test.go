package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "cafeteria dev")
}

func TestBatch_FlagValidation(t *testing.T) {
	_, err := run(t, "batch", "--date", "2025-03-10", "--from", "2025-03-10")
	assert.ErrorContains(t, err, "cannot be combined")

	_, err = run(t, "batch", "--from", "2025-03-10")
	assert.ErrorContains(t, err, "must be given together")
}

func TestBatch_MemoryStoreRange(t *testing.T) {
	// GIVEN: an empty in-memory store, so every batch has zero users
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("TIMEZONE", "UTC")

	// WHEN: a two-day range runs
	out, err := run(t, "batch", "--from", "2025-03-10", "--to", "2025-03-11")

	// THEN: one manifest per date is printed
	require.NoError(t, err)
	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Len(t, results, 2)
}

func TestBatch_InvalidDate(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")

	_, err := run(t, "batch", "--date", "10/03/2025")
	assert.ErrorContains(t, err, "invalid --date")
}
