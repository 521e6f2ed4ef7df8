package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/regstore/recstore"
)

func writeTestConfig(t *testing.T) string {
	dir := t.TempDir()
	cfg := "file:\n  dir: " + filepath.Join(dir, "data") + "\n" +
		"backup:\n  dir: " + filepath.Join(dir, "backups") + "\n" +
		"log:\n  dir: " + filepath.Join(dir, "logs") + "\n"
	path := filepath.Join(dir, "regstore.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path
}

func runCmd(t *testing.T, cfgPath string, args ...string) (int, string) {
	var out bytes.Buffer
	args = append([]string{"-config", cfgPath}, args...)
	code := run(args, &out)
	return code, out.String()
}

func TestCommands(t *testing.T) {
	cfg := writeTestConfig(t)

	code, out := runCmd(t, cfg, "save", "-name", "Ana", "-last-name", "Diaz", "-email", "ana@x.com", "-key", "K1")
	assert.Equal(t, 0, code)
	assert.Equal(t, "K1\n", out)

	code, out = runCmd(t, cfg, "key-exists", "K1")
	assert.Equal(t, 0, code)
	assert.Equal(t, "true\n", out)

	code, out = runCmd(t, cfg, "key-exists", "K2")
	assert.Equal(t, exitNotFound, code)
	assert.Equal(t, "false\n", out)

	code, out = runCmd(t, cfg, "user-exists", "-email", "ana@x.com")
	assert.Equal(t, 0, code)
	assert.Equal(t, "true\n", out)

	code, out = runCmd(t, cfg, "get-key", "-email", "ana@x.com")
	assert.Equal(t, 0, code)
	assert.Equal(t, "K1\n", out)

	code, out = runCmd(t, cfg, "get-key", "-email", "bob@x.com")
	assert.Equal(t, exitNotFound, code)
	assert.Equal(t, "not found\n", out)

	// key is generated if not given
	code, out = runCmd(t, cfg, "save", "-name", "Bob", "-last-name", "Ruiz", "-email", "bob@x.com")
	assert.Equal(t, 0, code)
	bobKey := strings.TrimSpace(out)
	assert.NotEqual(t, "", bobKey)

	code, out = runCmd(t, cfg, "list")
	assert.Equal(t, 0, code)
	assert.Equal(t, "Ana Diaz ana@x.com K1\nBob Ruiz bob@x.com "+bobKey+"\n", out)

	code, out = runCmd(t, cfg, "list", "-json")
	assert.Equal(t, 0, code)
	var entries []recstore.Entry
	assert.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Equal(t, 2, len(entries))
	assert.Equal(t, "bob@x.com", entries[1].Email)
}

func TestBackupAndRestore(t *testing.T) {
	cfg := writeTestConfig(t)
	code, _ := runCmd(t, cfg, "save", "-name", "Ana", "-last-name", "Diaz", "-email", "ana@x.com", "-key", "K1")
	assert.Equal(t, 0, code)

	code, out := runCmd(t, cfg, "backup")
	assert.Equal(t, 0, code)
	snapshot := strings.TrimSpace(out)
	assert.True(t, strings.HasSuffix(snapshot, ".txt.zst"), "%s", snapshot)

	cfg2 := writeTestConfig(t)
	code, _ = runCmd(t, cfg2, "restore", "-in", snapshot)
	assert.Equal(t, 0, code)
	code, out = runCmd(t, cfg2, "get-key", "-email", "ana@x.com")
	assert.Equal(t, 0, code)
	assert.Equal(t, "K1\n", out)
}

func TestBadUsage(t *testing.T) {
	cfg := writeTestConfig(t)
	code, _ := runCmd(t, cfg)
	assert.Equal(t, 2, code)
	code, _ = runCmd(t, cfg, "frobnicate")
	assert.Equal(t, 2, code)
	code, _ = runCmd(t, cfg, "save", "-name", "Ana")
	assert.Equal(t, 2, code)
	code, _ = runCmd(t, cfg, "key-exists")
	assert.Equal(t, 2, code)
}

func TestMetricsFlag(t *testing.T) {
	cfg := writeTestConfig(t)
	code, out := runCmd(t, cfg, "-metrics", "key-exists", "K1")
	assert.Equal(t, exitNotFound, code)
	assert.True(t, strings.Contains(out, "key_exists miss: "), "%s", out)
}
