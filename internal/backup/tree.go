package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// defaultUploadWorkers bounds concurrent per-file uploads when the caller
// does not configure a limit.
const defaultUploadWorkers = 4

// Uploader is the drive surface the tree uploader needs. Satisfied by
// *drive.Client; tests substitute a recorder.
type Uploader interface {
	Upload(ctx context.Context, localPath, folderID string) error
}

// PathResolver resolves a chain of folder names to a folder id. Satisfied
// by *drive.Resolver, whose run-scoped cache makes repeat resolutions free.
type PathResolver interface {
	EnsurePath(ctx context.Context, segments []string, rootID string) (string, error)
}

// UploadStats summarizes the successful portion of a tree upload: how many
// files landed remotely and how many bytes they carried. Failed files count
// toward neither.
type UploadStats struct {
	Files int
	Bytes int64
}

// TreeUploader walks a local directory and mirrors every regular file into
// the remote tree, creating remote folders on demand through the resolver.
type TreeUploader struct {
	uploader Uploader
	resolver PathResolver
	logger   *slog.Logger
	workers  int
}

// NewTreeUploader builds a TreeUploader. workers <= 0 selects the default
// concurrency bound.
func NewTreeUploader(uploader Uploader, resolver PathResolver, workers int, logger *slog.Logger) *TreeUploader {
	if logger == nil {
		logger = slog.Default()
	}

	if workers <= 0 {
		workers = defaultUploadWorkers
	}

	return &TreeUploader{
		uploader: uploader,
		resolver: resolver,
		logger:   logger,
		workers:  workers,
	}
}

// UploadTree mirrors localRoot into rootFolderID. A single regular file
// bypasses tree walking and uploads directly into rootFolderID. Directories
// are walked in lexical order; each file's remote folder is resolved before
// its upload is dispatched, and the uploads themselves run concurrently up
// to the worker bound. One file's failure never prevents the rest — all
// per-file errors are collected and reported together after the walk.
func (t *TreeUploader) UploadTree(ctx context.Context, localRoot, rootFolderID string) (UploadStats, error) {
	info, err := os.Stat(localRoot)
	if err != nil {
		return UploadStats{}, fmt.Errorf("backup: stat %s: %w", localRoot, err)
	}

	if info.Mode().IsRegular() {
		if upErr := t.uploader.Upload(ctx, localRoot, rootFolderID); upErr != nil {
			return UploadStats{}, upErr
		}

		return UploadStats{Files: 1, Bytes: info.Size()}, nil
	}

	if !info.IsDir() {
		return UploadStats{}, fmt.Errorf("backup: %s is neither a regular file nor a directory", localRoot)
	}

	// Paths are computed relative to localRoot's parent so the tree keeps
	// the root directory's own name as its first segment.
	base := filepath.Dir(localRoot)

	var (
		mu    sync.Mutex
		stats UploadStats

		failures []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)

	walkErr := filepath.WalkDir(localRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if gctx.Err() != nil {
			return gctx.Err()
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, relErr := filepath.Rel(base, path)
		if relErr != nil {
			return relErr
		}

		// Folder resolution stays on the walk goroutine: a path's id chain
		// must exist before any file is uploaded into it, and the resolver
		// cache makes repeat visits to the same directory free.
		folderID, resolveErr := t.resolver.EnsurePath(gctx, splitSegments(filepath.Dir(rel)), rootFolderID)
		if resolveErr != nil {
			return fmt.Errorf("resolving remote folder for %s: %w", rel, resolveErr)
		}

		fileInfo, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}

		size := fileInfo.Size()

		g.Go(func() error {
			if upErr := t.uploader.Upload(gctx, path, folderID); upErr != nil {
				t.logger.Warn("file upload failed",
					slog.String("path", path),
					slog.String("error", upErr.Error()),
				)

				mu.Lock()
				failures = append(failures, upErr)
				mu.Unlock()

				// Per-file failures are isolated; returning nil keeps the
				// group running for the remaining files.
				return nil
			}

			mu.Lock()
			stats.Files++
			stats.Bytes += size
			mu.Unlock()

			return nil
		})

		return nil
	})

	groupErr := g.Wait()

	if walkErr != nil {
		return stats, fmt.Errorf("backup: walking %s: %w", localRoot, walkErr)
	}

	if groupErr != nil {
		return stats, fmt.Errorf("backup: uploading %s: %w", localRoot, groupErr)
	}

	t.logger.Info("tree upload finished",
		slog.String("root", localRoot),
		slog.Int("uploaded", stats.Files),
		slog.Int64("bytes", stats.Bytes),
		slog.Int("failed", len(failures)),
	)

	if len(failures) > 0 {
		return stats, fmt.Errorf("backup: %d of %d uploads failed: %w",
			len(failures), stats.Files+len(failures), errors.Join(failures...))
	}

	return stats, nil
}

// splitSegments splits a relative directory into path segments.
// "." (a file directly under the walk base) yields no segments.
func splitSegments(relDir string) []string {
	if relDir == "." || relDir == "" {
		return nil
	}

	return strings.Split(filepath.ToSlash(relDir), "/")
}
