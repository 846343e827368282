/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package media resolves schedule targets against the uploads folder and
// enumerates playable audio files.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a file or folder does not exist.
	ErrNotFound = errors.New("media not found")
	// ErrNotDirectory is returned when a playlist folder is a file.
	ErrNotDirectory = errors.New("media path is not a directory")
	// ErrNoAudioFiles is returned when a folder has no recognized audio files.
	ErrNoAudioFiles = errors.New("no audio files in folder")
	// ErrInvalidName is returned for upload names that escape the media root.
	ErrInvalidName = errors.New("invalid media file name")
)

var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".ogg":  {},
	".m4a":  {},
	".flac": {},
}

// IsAudioFile reports whether name has a recognized audio extension.
func IsAudioFile(name string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Library is the uploads folder.
type Library struct {
	root   string
	logger zerolog.Logger
}

// NewLibrary creates a library rooted at root.
func NewLibrary(root string, logger zerolog.Logger) *Library {
	return &Library{
		root:   root,
		logger: logger.With().Str("component", "media").Logger(),
	}
}

// Root returns the library root.
func (l *Library) Root() string { return l.root }

// Path joins a target onto the root unless it is already absolute.
func (l *Library) Path(target string) string {
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Join(l.root, target)
}

// ResolveFile returns the absolute path of a single-file target.
func (l *Library) ResolveFile(name string) (string, error) {
	path := l.Path(name)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}
	return path, nil
}

// ResolveFolder returns the path of a playlist folder.
func (l *Library) ResolveFolder(folder string) (string, error) {
	path := l.Path(folder)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}
	return path, nil
}

// Tracks lists the audio files directly inside folder, sorted by name
// without regard to case. Subfolders are not descended into.
func (l *Library) Tracks(folder string) ([]string, error) {
	dir, err := l.ResolveFolder(folder)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read folder %s: %w", dir, err)
	}

	tracks := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsAudioFile(entry.Name()) {
			continue
		}
		tracks = append(tracks, filepath.Join(dir, entry.Name()))
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAudioFiles, dir)
	}

	SortTracks(tracks)
	return tracks, nil
}

// SortTracks orders paths by base name, case-insensitively, with the exact
// name as tie-breaker.
func SortTracks(tracks []string) {
	sort.SliceStable(tracks, func(i, j int) bool {
		a, b := filepath.Base(tracks[i]), filepath.Base(tracks[j])
		la, lb := strings.ToLower(a), strings.ToLower(b)
		if la != lb {
			return la < lb
		}
		return a < b
	})
}

// Files lists every audio file under the root, relative to it.
func (l *Library) Files(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(l.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !IsAudioFile(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: media root %s", ErrNotFound, l.root)
		}
		return nil, fmt.Errorf("walk media root: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// Store copies r into the library as name, which may contain forward-slash
// subfolders. The file is written to a temporary name and renamed so a
// running session never sees a partial file.
func (l *Library) Store(ctx context.Context, name string, r io.Reader) (string, error) {
	rel, err := cleanName(name)
	if err != nil {
		return "", err
	}
	if !IsAudioFile(rel) {
		return "", fmt.Errorf("%w: %s has no recognized audio extension", ErrInvalidName, name)
	}

	fullPath := filepath.Join(l.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("create directories: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, readerWithContext(ctx, r)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return "", fmt.Errorf("move file into place: %w", err)
	}

	l.logger.Debug().Str("path", fullPath).Msg("media file stored")
	return rel, nil
}

// CheckAccess verifies the root exists and is a directory.
func (l *Library) CheckAccess() error {
	info, err := os.Stat(l.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: media root %s", ErrNotFound, l.root)
		}
		return fmt.Errorf("cannot access media root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: media root %s", ErrNotDirectory, l.root)
	}
	return nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(name)))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return cleaned, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
