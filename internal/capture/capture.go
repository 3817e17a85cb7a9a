// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package capture pulls text from external sources to enrich a chat message.
//
// Sources are best-effort: a missing file, failed command, or denied
// permission yields empty output, never an error. The chat flow treats an
// empty capture as "nothing to add".
package capture

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Robdel12/DraftPatch/internal/config"
	"github.com/alecthomas/chroma/v2/lexers"
)

// maxCaptureBytes caps captured text so a huge file or chatty command
// cannot blow up the request payload.
const maxCaptureBytes = 256 * 1024

// defaultCommandTimeout bounds capture command execution.
const defaultCommandTimeout = 5 * time.Second

// Source provides external text for message enrichment.
type Source interface {
	// CapturedText returns the captured text and a file extension hint
	// for language tagging. Best effort: failures return empty strings.
	CapturedText(ctx context.Context) (text, extension string)
}

// NewSource builds a Source from a configured capture target.
// Returns nil when the target defines neither a path nor a command.
func NewSource(target *config.CaptureTarget) Source {
	if target == nil {
		return nil
	}
	switch {
	case target.Path != "":
		return &FileSource{Path: target.Path, Extension: target.Extension}
	case len(target.Command) > 0:
		return &CommandSource{Args: target.Command, Extension: target.Extension}
	default:
		return nil
	}
}

// =============================================================================
// FILE SOURCE
// =============================================================================

// FileSource captures the contents of a file on disk.
type FileSource struct {
	// Path is the file to read.
	Path string
	// Extension overrides extension detection when set (no leading dot).
	Extension string
}

// CapturedText reads the file, returning empty text when it cannot be read.
func (f *FileSource) CapturedText(_ context.Context) (string, string) {
	file, err := os.Open(f.Path)
	if err != nil {
		return "", ""
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxCaptureBytes))
	if err != nil {
		return "", ""
	}

	ext := f.Extension
	if ext == "" {
		ext = strings.TrimPrefix(filepath.Ext(f.Path), ".")
	}
	return strings.TrimRight(string(data), "\n"), ext
}

// =============================================================================
// COMMAND SOURCE
// =============================================================================

// CommandSource captures the stdout of an external command, for targets
// that expose their state through a CLI (clipboard tools, editor servers).
type CommandSource struct {
	// Args is the command and its arguments.
	Args []string
	// Extension tags the captured text's language (no leading dot).
	Extension string
	// Timeout bounds command execution. Zero means the default.
	Timeout time.Duration
}

// CapturedText runs the command, returning empty text on any failure.
func (c *CommandSource) CapturedText(ctx context.Context) (string, string) {
	if len(c.Args) == 0 {
		return "", ""
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", ""
	}

	text := out.String()
	if len(text) > maxCaptureBytes {
		text = text[:maxCaptureBytes]
	}
	return strings.TrimRight(text, "\n"), c.Extension
}

// =============================================================================
// ENRICHMENT
// =============================================================================

// LanguageTag maps a file extension to a fenced-code-block language tag
// using chroma's lexer registry. Unknown extensions pass through as-is,
// an empty extension defaults to "txt".
func LanguageTag(ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		return "txt"
	}
	lexer := lexers.Match("capture." + ext)
	if lexer == nil {
		return ext
	}
	cfg := lexer.Config()
	if len(cfg.Aliases) > 0 {
		return cfg.Aliases[0]
	}
	return strings.ToLower(cfg.Name)
}

// Enrich combines the user's text with captured external text. The capture
// is fenced as a distinct sub-block tagged with the detected language.
// When the user text is empty the fenced block stands alone; when both are
// empty the result is empty and the caller sends nothing.
func Enrich(userText, captured, ext string) string {
	userText = strings.TrimSpace(userText)
	if captured == "" {
		return userText
	}
	block := "```" + LanguageTag(ext) + "\n" + captured + "\n```"
	if userText == "" {
		return block
	}
	return userText + "\n\n---\n" + block
}
