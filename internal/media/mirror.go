/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// RemoteObject is an object listed by a RemoteSource.
type RemoteObject struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// RemoteSource lists and fetches objects from central storage.
type RemoteSource interface {
	List(ctx context.Context, prefix string) ([]RemoteObject, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// MirrorResult summarizes a mirror run.
type MirrorResult struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// Mirror copies audio objects under prefix into the library, keeping the
// key layout below the prefix. Objects whose local copy already has the same
// size and is not older are skipped. Local files are never deleted.
func (l *Library) Mirror(ctx context.Context, src RemoteSource, prefix string) (MirrorResult, error) {
	var result MirrorResult

	objects, err := src.List(ctx, prefix)
	if err != nil {
		return result, fmt.Errorf("list remote media: %w", err)
	}

	for _, obj := range objects {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if !IsAudioFile(obj.Key) {
			continue
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(obj.Key, prefix), "/")
		rel = path.Clean(rel)
		if rel == "." || rel == "" {
			continue
		}

		local := filepath.Join(l.root, filepath.FromSlash(rel))
		if info, err := os.Stat(local); err == nil && info.Size() == obj.Size && !info.ModTime().Before(obj.LastModified) {
			result.Skipped++
			continue
		}

		if err := l.fetch(ctx, src, obj.Key, rel); err != nil {
			result.Failed++
			l.logger.Warn().Err(err).Str("key", obj.Key).Msg("media mirror download failed")
			continue
		}
		result.Downloaded++
	}

	l.logger.Info().
		Int("downloaded", result.Downloaded).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("media mirror complete")
	return result, nil
}

func (l *Library) fetch(ctx context.Context, src RemoteSource, key, rel string) error {
	body, err := src.Get(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	_, err = l.Store(ctx, rel, body)
	return err
}
