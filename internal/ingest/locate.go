package ingest

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// LocateExecutable finds a tool binary. Search order: the explicit override,
// extra configured directories, the ecosystem's well-known directories, then
// $PATH. An override that exists but is not executable is an error rather
// than a silent fallback.
func LocateExecutable(name, override string, extraDirs, wellKnownDirs []string) (string, error) {
	if override != "" {
		if err := findExecutable(override); err != nil {
			return "", fmt.Errorf("configured tool path %s: %w", override, err)
		}
		return override, nil
	}

	for _, dir := range extraDirs {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if err := findExecutable(candidate); err == nil {
			return candidate, nil
		}
	}

	for _, dir := range wellKnownDirs {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if err := findExecutable(candidate); err == nil {
			return candidate, nil
		}
	}

	return exec.LookPath(name)
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
