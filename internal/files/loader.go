// Package files gives the agent read access to project files with the
// path and size restrictions the tool surface requires.
package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	// MaxFileSize is the hard cap on readable files.
	MaxFileSize = 2 * 1024 * 1024

	// LargeFileThreshold marks files that get chunked and analyzed
	// instead of being fed to the agent whole.
	LargeFileThreshold = 256 * 1024
)

var (
	ErrPathOutsideRoot = errors.New("files: path escapes the project root")
	ErrPathBlocked     = errors.New("files: path is blocked")
	ErrFileTooLarge    = errors.New("files: file exceeds the size limit")
	ErrNotText         = errors.New("files: file is not valid UTF-8 text")
)

// Names and extensions that commonly hold credentials. Matched against
// the base name, case-insensitively.
var blockedNames = []string{
	".env",
	".envrc",
	".netrc",
	".npmrc",
	".pypirc",
	"credentials",
	"credentials.json",
	"secrets",
	"secrets.json",
	"secrets.yaml",
	"secrets.yml",
	"id_rsa",
	"id_ed25519",
}

var blockedExtensions = []string{".pem", ".key", ".p12", ".pfx"}

// Loader reads files under a fixed project root.
type Loader struct {
	root string
}

// NewLoader anchors a loader at root. An empty root falls back to the
// process working directory.
func NewLoader(root string) (*Loader, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("files: failed to resolve working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("files: invalid project root %q: %w", root, err)
	}
	return &Loader{root: abs}, nil
}

// Root returns the absolute project root.
func (l *Loader) Root() string { return l.root }

// Resolve validates a relative path and returns its absolute location
// under the root. Absolute paths, parent traversal, and blocked names
// are rejected before touching the filesystem.
func (l *Loader) Resolve(relPath string) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("%w: empty path", ErrPathOutsideRoot)
	}
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("%w: absolute path %q", ErrPathOutsideRoot, relPath)
	}

	clean := filepath.Clean(relPath)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathOutsideRoot, relPath)
	}
	if err := checkBlocked(clean); err != nil {
		return "", err
	}
	return filepath.Join(l.root, clean), nil
}

// Read returns the file content as text. Files over LargeFileThreshold
// still load here; callers decide whether to chunk.
func (l *Loader) Read(relPath string) (string, error) {
	abs, err := l.Resolve(relPath)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("files: failed to stat %q: %w", relPath, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("files: %q is a directory", relPath)
	}
	if info.Size() > MaxFileSize {
		return "", fmt.Errorf("%w: %q is %d bytes (limit %d)", ErrFileTooLarge, relPath, info.Size(), MaxFileSize)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("files: failed to read %q: %w", relPath, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %q", ErrNotText, relPath)
	}
	return string(data), nil
}

// IsLarge reports whether the file should go through the chunked
// analysis path.
func (l *Loader) IsLarge(relPath string) (bool, error) {
	abs, err := l.Resolve(relPath)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return false, fmt.Errorf("files: failed to stat %q: %w", relPath, err)
	}
	return info.Size() >= LargeFileThreshold, nil
}

func checkBlocked(clean string) error {
	base := strings.ToLower(filepath.Base(clean))
	for _, name := range blockedNames {
		if base == name || strings.HasPrefix(base, name+".") {
			return fmt.Errorf("%w: %q", ErrPathBlocked, clean)
		}
	}
	for _, ext := range blockedExtensions {
		if strings.HasSuffix(base, ext) {
			return fmt.Errorf("%w: %q", ErrPathBlocked, clean)
		}
	}
	return nil
}
