package backend

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// echoScript answers train with success and classify with a fixed
// prediction, logging each action to calls.log in its working directory.
const echoScript = `#!/bin/sh
req=$(cat)
case "$req" in
  *'"action":"train"'*)
    echo train >> calls.log
    echo '{"success":true}'
    ;;
  *'"action":"classify"'*)
    echo classify >> calls.log
    echo '{"success":true,"data":{"label":"fist","confidence":87.5}}'
    ;;
  *)
    echo '{"success":false,"error":"unknown action"}'
    ;;
esac
`

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}
}

// installBackend writes a backend directory with a manifest and script
// under root and returns the discovered form.
func installBackend(t *testing.T, root, name, script string) *Backend {
	t.Helper()

	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create backend dir: %v", err)
	}

	manifest := Manifest{
		Name:       name,
		Version:    "1.0.0",
		Executable: "run.sh",
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	exe := filepath.Join(dir, "run.sh")
	if err := os.WriteFile(exe, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	return &Backend{Manifest: manifest, Path: dir, Executable: exe}
}

// calls returns the actions logged by echoScript.
func calls(t *testing.T, b *Backend) []string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(b.Path, "calls.log"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("failed to read calls.log: %v", err)
	}
	return strings.Fields(string(data))
}
