package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/drivestash/drivestash/internal/drive"
)

// Fatal restore-selection failures. Each maps to a distinct process exit
// status in the CLI.
var (
	// ErrMissingFolder means an expected remote folder (the backup root or
	// a host folder) does not exist.
	ErrMissingFolder = errors.New("backup: expected remote folder not found")

	// ErrNoFullBackup means the host's backup listing contains no entry
	// carrying the full-backup marker, so no restorable set exists.
	ErrNoFullBackup = errors.New("backup: no full backup marker found")
)

// Downloader is the content-retrieval surface of the drive client.
// Satisfied by *drive.Client.
type Downloader interface {
	Download(ctx context.Context, fileID string, w io.Writer) (int64, error)
}

// Fetcher downloads a selected set of remote files into a local staging
// directory, preserving names.
type Fetcher struct {
	client Downloader
	logger *slog.Logger
}

// NewFetcher builds a Fetcher.
func NewFetcher(client Downloader, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		client: client,
		logger: logger,
	}
}

// ListByName returns folderID's children ordered by name, the ordering
// SelectLatest depends on.
func ListByName(ctx context.Context, client Lister, folderID string) ([]drive.Node, error) {
	filter := fmt.Sprintf("'%s' in parents and trashed = false", folderID)

	return client.List(ctx, filter, drive.DefaultFields, "name")
}

// SelectLatest scans a name-ordered listing backward for the most recent
// full-backup marker and returns the trailing window: the full backup plus
// every subsequent incremental entry. Returns ErrNoFullBackup when no entry
// carries the marker.
func SelectLatest(nodes []drive.Node) ([]drive.Node, error) {
	for i := len(nodes) - 1; i >= 0; i-- {
		if IsFullMarker(nodes[i].Name) {
			return nodes[i:], nil
		}
	}

	return nil, ErrNoFullBackup
}

// Fetch downloads each id into a fresh staging directory under the
// positionally paired name, overwriting any existing file of that name,
// and returns the staging directory path. ids and names must be equal
// length.
func (f *Fetcher) Fetch(ctx context.Context, ids, names []string) (string, error) {
	if len(ids) != len(names) {
		return "", fmt.Errorf("backup: %d ids paired with %d names", len(ids), len(names))
	}

	staging, err := os.MkdirTemp("", "drivestash-restore-*")
	if err != nil {
		return "", fmt.Errorf("backup: creating staging directory: %w", err)
	}

	f.logger.Info("staging directory created",
		slog.String("path", staging),
		slog.Int("files", len(ids)),
	)

	for i, id := range ids {
		if fetchErr := f.fetchOne(ctx, id, filepath.Join(staging, names[i])); fetchErr != nil {
			return staging, fetchErr
		}
	}

	return staging, nil
}

// fetchOne downloads a single file id to dest.
func (f *Fetcher) fetchOne(ctx context.Context, id, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("backup: creating %s: %w", dest, err)
	}

	n, dlErr := f.client.Download(ctx, id, out)

	if closeErr := out.Close(); closeErr != nil && dlErr == nil {
		dlErr = closeErr
	}

	if dlErr != nil {
		return fmt.Errorf("backup: fetching %s to %s: %w", id, dest, dlErr)
	}

	f.logger.Debug("fetched file",
		slog.String("id", id),
		slog.String("dest", dest),
		slog.Int64("bytes", n),
	)

	return nil
}
