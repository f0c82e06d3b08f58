package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
)

// decodeOnly asserts that out holds exactly one JSON result document.
func decodeOnly(t *testing.T, out *bytes.Buffer) domain.RunResult {
	t.Helper()

	dec := json.NewDecoder(out)
	var res domain.RunResult
	require.NoError(t, dec.Decode(&res))

	var extra json.RawMessage
	require.ErrorIs(t, dec.Decode(&extra), io.EOF)
	return res
}

func TestOneShotKeepsLogsOffStdout(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "logging:\n  level: debug\n  format: json\n" +
		"store:\n  type: sqlite\n  uri: " + filepath.Join(dir, "missing", "news.db") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-config", cfgPath}, &stdout, &stderr))

	res := decodeOnly(t, &stdout)
	require.Contains(t, res.Error, "connect store")
	require.Contains(t, stderr.String(), "run finished")
}

func TestConfigErrorIsReportedAsResult(t *testing.T) {
	var stdout, stderr bytes.Buffer
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	require.NoError(t, run(context.Background(), []string{"-config", missing}, &stdout, &stderr))

	res := decodeOnly(t, &stdout)
	require.Nil(t, res.Articles)
	require.Contains(t, res.Error, "read config")
}

func TestUnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Error(t, run(context.Background(), []string{"-bogus"}, &stdout, &stderr))
	require.Zero(t, stdout.Len())
}
