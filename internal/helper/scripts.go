package helper

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
)

// Bundled macOS helpers, run with the swift interpreter
const (
	ListWindowsScript = "list_windows.swift"
	RaiseWindowScript = "raise_window.swift"
)

//go:embed scripts/*.swift
var scripts embed.FS

// Script returns the source of a bundled helper script
func Script(name string) ([]byte, error) {
	data, err := scripts.ReadFile("scripts/" + name)
	if err != nil {
		return nil, fmt.Errorf("unknown helper script %s: %w", name, err)
	}
	return data, nil
}

// InstallScript writes the bundled script name into dir and returns the argv
// that runs it. An identical copy already on disk is left alone.
func InstallScript(dir, name string) ([]string, error) {
	data, err := Script(name)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, name)
	argv := []string{"swift", path}
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return argv, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create helper directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write helper script: %w", err)
	}

	logger.WithComponent("helper").Debug().
		Str("path", path).
		Msg("Installed helper script")
	return argv, nil
}
