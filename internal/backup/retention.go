package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/drivestash/drivestash/internal/drive"
)

// retentionFields projects the fields the purge comparator needs.
const retentionFields = "id,name,modifiedTime"

// Lister is the query surface of the drive client used by retention and
// restore. Satisfied by *drive.Client.
type Lister interface {
	List(ctx context.Context, filter, fields, orderBy string) ([]drive.Node, error)
	Delete(ctx context.Context, id string) error
}

// Purger deletes remote children older than a retention horizon.
type Purger struct {
	client Lister
	logger *slog.Logger

	// now is the clock used to derive the cutoff. Tests pin it.
	now func() time.Time
}

// NewPurger builds a Purger using the wall clock.
func NewPurger(client Lister, logger *slog.Logger) *Purger {
	if logger == nil {
		logger = slog.Default()
	}

	return &Purger{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// PurgeOlderThan deletes every child of folderID whose last-modified time
// strictly precedes now minus the retention window. An empty candidate set
// means nothing to delete, not an error. Deletions are independent and
// unordered; one failure never stops the rest, and all failures are
// aggregated into the returned error. Returns the number of deleted nodes.
func (p *Purger) PurgeOlderThan(ctx context.Context, folderID string, days int) (int, error) {
	if days <= 0 {
		return 0, fmt.Errorf("backup: retention window must be positive, got %d", days)
	}

	cutoff := p.now().UTC().AddDate(0, 0, -days)

	filter := fmt.Sprintf("'%s' in parents and modifiedTime < '%s' and trashed = false",
		folderID, cutoff.Format(time.RFC3339))

	nodes, err := p.client.List(ctx, filter, retentionFields, "name")
	if err != nil {
		return 0, fmt.Errorf("backup: listing purge candidates: %w", err)
	}

	p.logger.Info("purge candidates listed",
		slog.String("folder_id", folderID),
		slog.Time("cutoff", cutoff),
		slog.Int("candidates", len(nodes)),
	)

	var (
		deleted  int
		failures []error
	)

	for _, node := range nodes {
		// The filter already applies the strict less-than comparator
		// remotely; re-checking here keeps a misbehaving listing from
		// deleting nodes inside the window.
		if !node.ModifiedAt.Before(cutoff) {
			continue
		}

		if delErr := p.client.Delete(ctx, node.ID); delErr != nil {
			p.logger.Warn("purge delete failed",
				slog.String("id", node.ID),
				slog.String("name", node.Name),
				slog.String("error", delErr.Error()),
			)

			failures = append(failures, fmt.Errorf("deleting %s (%s): %w", node.Name, node.ID, delErr))

			continue
		}

		p.logger.Info("purged node",
			slog.String("id", node.ID),
			slog.String("name", node.Name),
			slog.Time("modified_at", node.ModifiedAt),
		)

		deleted++
	}

	if len(failures) > 0 {
		return deleted, fmt.Errorf("backup: %d of %d purge deletions failed: %w",
			len(failures), len(failures)+deleted, errors.Join(failures...))
	}

	return deleted, nil
}
