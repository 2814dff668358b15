package drive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// Download streams the byte content of a remote file to the given writer
// and returns the number of bytes written. Whole-object download only —
// there is no ranged or partial retrieval.
func (c *Client) Download(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	c.logger.Info("downloading file",
		slog.String("file_id", fileID),
	)

	resp, err := c.Do(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID)+"?alt=media", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, copyErr := io.Copy(w, resp.Body)
	if copyErr != nil {
		c.logger.Error("streaming download content failed",
			slog.String("file_id", fileID),
			slog.Int64("bytes_before_error", n),
			slog.String("error", copyErr.Error()),
		)

		return n, fmt.Errorf("drive: streaming content of %s: %w", fileID, copyErr)
	}

	c.logger.Debug("download complete",
		slog.String("file_id", fileID),
		slog.Int64("bytes_written", n),
	)

	return n, nil
}
