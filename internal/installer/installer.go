// Package installer writes the shell hooks and settings snippet that wire
// membank into the host editor's session lifecycle. Pure templating; the
// scripts only exec membank subcommands.
package installer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const sessionStartScript = `#!/bin/sh
# membank session-start hook. Prints recent context for injection.
# Always exits 0: a memory failure must never break the host session.
exec membank hook session-start --quiet
`

const sessionEndScript = `#!/bin/sh
# membank session-end hook. Reads the transcript on stdin.
# Always exits 0: a memory failure must never break the host session.
exec membank hook session-end --quiet
`

// settings is the JSON snippet users merge into their editor settings to
// register the hooks.
type settings struct {
	Hooks map[string]string `json:"hooks"`
}

// Result lists what Install wrote.
type Result struct {
	HooksDir     string   `json:"hooks_dir"`
	Files        []string `json:"files"`
	SettingsPath string   `json:"settings_path"`
}

// Install writes the hook scripts and a settings snippet under dir.
func Install(dir string) (*Result, error) {
	hooksDir := filepath.Join(dir, "hooks")
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create hooks dir: %w", err)
	}

	scripts := map[string]string{
		"membank-session-start.sh": sessionStartScript,
		"membank-session-end.sh":   sessionEndScript,
	}

	res := &Result{HooksDir: hooksDir}
	for name, body := range scripts {
		path := filepath.Join(hooksDir, name)
		if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		res.Files = append(res.Files, path)
	}

	snippet := settings{Hooks: map[string]string{
		"session-start": filepath.Join(hooksDir, "membank-session-start.sh"),
		"session-end":   filepath.Join(hooksDir, "membank-session-end.sh"),
	}}
	b, _ := json.MarshalIndent(snippet, "", "  ")

	res.SettingsPath = filepath.Join(dir, "membank-settings.json")
	if err := os.WriteFile(res.SettingsPath, append(b, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("write settings snippet: %w", err)
	}

	return res, nil
}
