// Package pathutil confines file arguments received from tool clients to a
// set of allowed directories.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutside is wrapped when a path resolves outside every allowed root.
var ErrOutside = errors.New("outside allowed directories")

// PlanDirName is the per-user plan directory under the state directory.
const PlanDirName = "plans"

// RedactPath shortens a path to .../<parent>/<base> for error messages.
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// Resolve returns path with symlinks resolved, provided the result lies in
// one of roots. The file itself need not exist yet.
func Resolve(path string, roots []string) (string, error) {
	switch {
	case path == "":
		return "", fmt.Errorf("path validation failed: path is empty")
	case len(roots) == 0:
		return "", fmt.Errorf("path validation failed: no allowed directories configured")
	case strings.ContainsRune(path, '\x00'):
		return "", fmt.Errorf("path validation failed: path contains null byte")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("path validation failed: %w", err)
	}
	resolved, err := resolveExisting(abs)
	if err != nil {
		return "", fmt.Errorf("path validation failed: %w", err)
	}

	for _, root := range roots {
		rootAbs, err := filepath.Abs(filepath.Clean(root))
		if err != nil {
			continue
		}
		rootResolved, err := resolveExisting(rootAbs)
		if err != nil {
			continue
		}
		if within(resolved, rootResolved) {
			return resolved, nil
		}
	}

	return "", fmt.Errorf("path validation failed: %q is %w", RedactPath(abs), ErrOutside)
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of p
// and re-appends the missing tail.
func resolveExisting(p string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(p)
	if parent == p {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(p))
	}
	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(p)), nil
}

// within reports whether p is base or below it.
func within(p, base string) bool {
	return p == base || strings.HasPrefix(p, base+string(os.PathSeparator))
}

// DefaultPlanDirs returns the directories plan files may be read from:
// stateDir/plans and, when non-empty, the working directory.
func DefaultPlanDirs(stateDir, workDir string) []string {
	dirs := []string{filepath.Join(stateDir, PlanDirName)}
	if workDir != "" {
		dirs = append(dirs, workDir)
	}
	return dirs
}
