// Package framework implements the hierarchical execution engine: a Suite
// runs Cases, a Case runs Steps, and Steps record Verifications against
// numbered requirements. Every scope owns a directory on disk and persists
// its JSON result as it closes, so a run that dies mid-flight still leaves a
// valid partial result tree behind.
//
// Control flow between scopes uses Signal error values instead of
// panics: a body returns Skip/Stop/Abort from the scope it wants to end, and
// each enclosing scope's close logic finalizes itself and forwards the signal
// until the target scope resolves it.
package framework

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
)

const resultFilename = "result.json"

// runScope executes a scope body, converting panics into errors so a broken
// collaborator or test body aborts its scope instead of killing the process.
func runScope(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}

// slug converts a scope title into a filesystem-safe directory component.
func slug(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '_', r == '-', r == '.':
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), "_")
	if s == "" {
		return "untitled"
	}
	return s
}

// writeResultJSON persists a result via write-to-temp-then-rename so the file
// named result.json is always a complete document, even if the process dies
// mid-write.
func writeResultJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
