package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

// fallbackContentType is declared for files whose extension maps to no
// known media type. Payload content is never inspected.
const fallbackContentType = "application/octet-stream"

// UploadSession is the ephemeral state between the two upload phases.
// Created by CreateUploadSession, consumed exactly once by TransferContent,
// then discarded. Never persisted across process restarts.
type UploadSession struct {
	URI         string
	FolderID    string
	Size        int64
	ContentType string
}

// uploadMetadata is the phase-one JSON body naming the object and its parent.
type uploadMetadata struct {
	Name    string   `json:"name"`
	Parents []string `json:"parents"`
}

// Upload mirrors one local file into the target remote folder via the
// two-phase resumable protocol: initiate a session declaring the object,
// then stream the bytes to the returned session URI. Failures carry a
// TransferError whose Phase distinguishes initiation from transfer.
func (c *Client) Upload(ctx context.Context, localPath, folderID string) error {
	name := filepath.Base(localPath)

	f, err := os.Open(localPath)
	if err != nil {
		return &TransferError{Phase: PhaseInit, Name: name, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &TransferError{Phase: PhaseInit, Name: name, Err: err}
	}

	contentType := detectContentType(name)

	session, err := c.CreateUploadSession(ctx, name, folderID, info.Size(), contentType)
	if err != nil {
		return err
	}

	return c.TransferContent(ctx, name, session, f)
}

// CreateUploadSession runs upload phase one: submit the object's metadata
// with headers declaring the coming content's type and size, and capture
// the session URI from the Location header.
func (c *Client) CreateUploadSession(
	ctx context.Context, name, folderID string, size int64, contentType string,
) (*UploadSession, error) {
	c.logger.Info("creating upload session",
		slog.String("name", name),
		slog.String("folder_id", folderID),
		slog.Int64("size", size),
		slog.String("content_type", contentType),
	)

	bodyBytes, err := json.Marshal(uploadMetadata{
		Name:    name,
		Parents: []string{folderID},
	})
	if err != nil {
		return nil, &TransferError{Phase: PhaseInit, Name: name, Err: fmt.Errorf("marshaling metadata: %w", err)}
	}

	url := c.uploadURL + "/files?uploadType=resumable"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, &TransferError{Phase: PhaseInit, Name: name, Err: err}
	}

	req.Header.Set("Authorization", c.creds.AuthorizationHeader())
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Type", contentType)
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransferError{Phase: PhaseInit, Name: name, Err: err}
	}
	defer resp.Body.Close()

	// Drain to reuse the connection; the body carries nothing we need.
	if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
		return nil, &TransferError{Phase: PhaseInit, Name: name, Err: fmt.Errorf("draining session response: %w", drainErr)}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &TransferError{
			Phase: PhaseInit,
			Name:  name,
			Err:   &APIError{StatusCode: resp.StatusCode, Message: "upload session refused", Err: classifyStatus(resp.StatusCode)},
		}
	}

	sessionURI := resp.Header.Get("Location")
	if sessionURI == "" {
		return nil, &TransferError{Phase: PhaseInit, Name: name, Err: fmt.Errorf("no Location header in session response")}
	}

	c.logger.Debug("upload session created",
		slog.String("name", name),
	)

	return &UploadSession{
		URI:         sessionURI,
		FolderID:    folderID,
		Size:        size,
		ContentType: contentType,
	}, nil
}

// TransferContent runs upload phase two: stream the full body to the
// session URI with the declared content type and length. The session URI is
// pre-authenticated, so no Authorization header is sent. The session is
// consumed whether or not the transfer succeeds.
func (c *Client) TransferContent(ctx context.Context, name string, session *UploadSession, body io.Reader) error {
	c.logger.Debug("transferring content",
		slog.String("name", name),
		slog.Int64("size", session.Size),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.URI, body)
	if err != nil {
		return &TransferError{Phase: PhaseTransfer, Name: name, Err: err}
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", session.ContentType)
	req.ContentLength = session.Size

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransferError{Phase: PhaseTransfer, Name: name, Err: err}
	}
	defer resp.Body.Close()

	if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
		return &TransferError{Phase: PhaseTransfer, Name: name, Err: fmt.Errorf("draining transfer response: %w", drainErr)}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &TransferError{
			Phase: PhaseTransfer,
			Name:  name,
			Err:   &APIError{StatusCode: resp.StatusCode, Message: "content transfer rejected", Err: classifyStatus(resp.StatusCode)},
		}
	}

	c.logger.Info("upload complete",
		slog.String("name", name),
		slog.Int64("size", session.Size),
	)

	return nil
}

// detectContentType maps a file name to a declared media type by extension.
func detectContentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}

	return fallbackContentType
}
