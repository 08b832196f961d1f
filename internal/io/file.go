package ioutils

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxNameBytes caps the length of a sanitized title.
const MaxNameBytes = 200

var (
	invalidChars = regexp.MustCompile(`[:/\\?*"<>|\r\n\t]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// SanitizeTitle turns a track or album title into a safe path component.
//
// The following transformations are applied:
//   - the characters : / \ ? * " < > | and CR, LF, TAB are removed
//   - runs of whitespace collapse to a single space
//   - leading and trailing whitespace is trimmed
//   - leading dots are removed so the name never looks hidden
//   - the result is capped at MaxNameBytes on a rune boundary
//
// An empty result falls back to fallback (usually the track id).
//
// Example:
//
//	SanitizeTitle("AC/DC: Back in Black", "abc") // "ACDC Back in Black"
//	SanitizeTitle("???", "dQw4w9WgXcQ")          // "dQw4w9WgXcQ"
func SanitizeTitle(title, fallback string) string {
	name := invalidChars.ReplaceAllString(title, "")
	name = whitespace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(strings.TrimLeft(name, ". "))
	name = truncateBytes(name, MaxNameBytes)
	// Truncation may leave a trailing space.
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	return name
}

func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// CopyFile copies a file from source to destination.
//
// The destination file is created with mode 0644 if it doesn't exist,
// or truncated if it does. The copy is aborted between chunks when ctx
// is cancelled.
func CopyFile(ctx context.Context, src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	_, err = io.Copy(destFile, &ctxReader{ctx: ctx, r: sourceFile})
	if closeErr := destFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst)
	}
	return err
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// MoveFile renames src to dst, falling back to copy and remove when the
// two paths live on different filesystems.
func MoveFile(ctx context.Context, src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := CopyFile(ctx, src, dst); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	return os.Remove(src)
}

// WriteFileAtomic writes data to a temporary file in the same directory and
// renames it over path, so readers observe either the old or the new content.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// Exists reports whether path exists as a regular file with non-zero size.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
