package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// folderMimeType marks folder nodes in the remote store.
const folderMimeType = "application/vnd.google-apps.folder"

// DefaultFields is the projection used when the caller does not need
// modification times.
const DefaultFields = "id,name"

// Node is a remote file or folder projection. Only the fields named in the
// query's projection are populated; everything else is zero.
type Node struct {
	ID         string
	Name       string
	MimeType   string
	ModifiedAt time.Time
}

// IsFolder reports whether the node is a folder. Meaningful only when the
// projection included mimeType.
func (n Node) IsFolder() bool {
	return n.MimeType == folderMimeType
}

// fileResource mirrors the Drive API files resource JSON for the fields
// this client projects. Unexported — callers use Node via toNode().
type fileResource struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	ModifiedTime string `json:"modifiedTime"`
}

type fileListResponse struct {
	Files         []fileResource `json:"files"`
	NextPageToken string         `json:"nextPageToken"`
}

// toNode normalizes a files resource into a Node. An unparseable
// modifiedTime is surfaced as an error rather than silently zeroed — the
// retention comparator depends on it.
func (f *fileResource) toNode() (Node, error) {
	node := Node{
		ID:       f.ID,
		Name:     f.Name,
		MimeType: f.MimeType,
	}

	if f.ModifiedTime != "" {
		t, err := time.Parse(time.RFC3339, f.ModifiedTime)
		if err != nil {
			return Node{}, fmt.Errorf("parsing modifiedTime %q of %s: %w", f.ModifiedTime, f.ID, err)
		}

		node.ModifiedAt = t
	}

	return node, nil
}

// List issues a filtered, field-projected, ordered listing against the
// remote store, following page cursors until exhaustion. fields is wrapped
// as files(<fields>); pass DefaultFields when modification times are not
// needed. Transport failures, rejected filters, and undecodable payloads
// all surface as QueryError — never as an empty result set.
func (c *Client) List(ctx context.Context, filter, fields, orderBy string) ([]Node, error) {
	if fields == "" {
		fields = DefaultFields
	}

	if orderBy == "" {
		orderBy = "name"
	}

	var nodes []Node

	pageToken := ""

	for {
		page, next, err := c.listPage(ctx, filter, fields, orderBy, pageToken)
		if err != nil {
			return nil, err
		}

		nodes = append(nodes, page...)

		if next == "" {
			return nodes, nil
		}

		pageToken = next
	}
}

// listPage fetches one page of results and returns the next page token
// (empty when the listing is exhausted).
func (c *Client) listPage(ctx context.Context, filter, fields, orderBy, pageToken string) ([]Node, string, error) {
	q := url.Values{}
	q.Set("q", filter)
	q.Set("fields", fmt.Sprintf("nextPageToken,files(%s)", fields))
	q.Set("orderBy", orderBy)

	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	resp, err := c.Do(ctx, http.MethodGet, "/files?"+q.Encode(), nil)
	if err != nil {
		return nil, "", &QueryError{Filter: filter, Err: err}
	}
	defer resp.Body.Close()

	var flr fileListResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&flr); decErr != nil {
		return nil, "", &QueryError{Filter: filter, Err: fmt.Errorf("decoding file list: %w", decErr)}
	}

	nodes := make([]Node, 0, len(flr.Files))

	for i := range flr.Files {
		node, convErr := flr.Files[i].toNode()
		if convErr != nil {
			return nil, "", &QueryError{Filter: filter, Err: convErr}
		}

		nodes = append(nodes, node)
	}

	return nodes, flr.NextPageToken, nil
}

// Delete removes a remote node by id. No response body is expected.
func (c *Client) Delete(ctx context.Context, id string) error {
	c.logger.Info("deleting node",
		slog.String("id", id),
	)

	resp, err := c.Do(ctx, http.MethodDelete, "/files/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Drain to reuse the connection.
	if _, copyErr := io.Copy(io.Discard, resp.Body); copyErr != nil {
		return fmt.Errorf("drive: draining delete response body: %w", copyErr)
	}

	return nil
}
