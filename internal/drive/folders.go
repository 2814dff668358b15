package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// createFolderRequest is the JSON body for folder creation.
type createFolderRequest struct {
	MimeType string   `json:"mimeType"`
	Name     string   `json:"name"`
	Parents  []string `json:"parents"`
}

// createFolderResponse carries the new node's id.
type createFolderResponse struct {
	ID string `json:"id"`
}

// Resolver maps folder names to folder ids with idempotent get-or-create
// semantics, caching every resolution for the lifetime of the run so a
// directory shared by many files is resolved at most once.
//
// Resolution of a single path is strictly sequential — each segment's id is
// the next segment's parent — but distinct Resolver calls may arrive from
// concurrent uploaders, so the cache is guarded by a mutex.
type Resolver struct {
	client *Client
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]string // (parent id, name) -> folder id
}

// NewResolver creates a Resolver with an empty run-scoped cache.
func NewResolver(client *Client, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		client: client,
		logger: logger,
		cache:  map[string]string{},
	}
}

// EnsureFolder returns the id of the folder with the given name under
// parentID, creating it when absent. When the remote store unexpectedly
// holds several folders of the same name under one parent, the first listed
// match wins — names are expected, not enforced, to be unique.
func (r *Resolver) EnsureFolder(ctx context.Context, name, parentID string) (string, error) {
	// Normalize up front so the cache key, the search, and any create all
	// use the same byte form regardless of how the caller composed the name.
	name = norm.NFC.String(name)
	cacheKey := parentID + "\x00" + name

	r.mu.Lock()
	cached, ok := r.cache[cacheKey]
	r.mu.Unlock()

	if ok {
		return cached, nil
	}

	id, err := r.findFolder(ctx, name, parentID)
	if err != nil {
		return "", err
	}

	if id == "" {
		id, err = r.createFolder(ctx, name, parentID)
		if errors.Is(err, ErrConflict) {
			// Another writer created the folder between our search and our
			// create. Re-query and use the existing id.
			r.logger.Warn("folder create conflicted, re-querying",
				slog.String("name", name),
				slog.String("parent_id", parentID),
			)

			id, err = r.findFolder(ctx, name, parentID)
			if err == nil && id == "" {
				err = fmt.Errorf("drive: folder %q under %s: conflict reported but no match found: %w", name, parentID, ErrNotFound)
			}
		}

		if err != nil {
			return "", err
		}
	}

	r.mu.Lock()
	r.cache[cacheKey] = id
	r.mu.Unlock()

	return id, nil
}

// EnsurePath folds EnsureFolder over the path segments left to right,
// each resolution depending on the previous result. The chain is inherently
// sequential and must not be parallelized.
func (r *Resolver) EnsurePath(ctx context.Context, segments []string, rootID string) (string, error) {
	parentID := rootID

	for _, segment := range segments {
		id, err := r.EnsureFolder(ctx, segment, parentID)
		if err != nil {
			return "", fmt.Errorf("resolving segment %q: %w", segment, err)
		}

		parentID = id
	}

	return parentID, nil
}

// Lookup returns the id of the folder with the given name under parentID,
// or "" when no such folder exists. Unlike EnsureFolder it never creates
// and never caches — callers that must treat absence as fatal use this.
func (r *Resolver) Lookup(ctx context.Context, name, parentID string) (string, error) {
	return r.findFolder(ctx, name, parentID)
}

// findFolder searches for a folder by exact name under a parent. Returns ""
// when no match exists. Names are normalized to NFC before the filter is
// built and remote names are compared under the same normalization — the
// store preserves whatever form the creator sent, so a Mac-composed name
// and a Linux-composed name must still resolve to the same folder.
func (r *Resolver) findFolder(ctx context.Context, name, parentID string) (string, error) {
	want := norm.NFC.String(name)

	filter := fmt.Sprintf("'%s' in parents and mimeType = '%s' and name = '%s' and trashed = false",
		escapeQueryValue(parentID), folderMimeType, escapeQueryValue(want))

	nodes, err := r.client.List(ctx, filter, DefaultFields, "name")
	if err != nil {
		return "", err
	}

	var matches []Node

	for _, node := range nodes {
		if norm.NFC.String(node.Name) == want {
			matches = append(matches, node)
		}
	}

	if len(matches) == 0 {
		return "", nil
	}

	if len(matches) > 1 {
		r.logger.Warn("duplicate folders under one parent, using first",
			slog.String("name", name),
			slog.String("parent_id", parentID),
			slog.Int("matches", len(matches)),
		)
	}

	return matches[0].ID, nil
}

// createFolder creates a new folder node and returns its id.
func (r *Resolver) createFolder(ctx context.Context, name, parentID string) (string, error) {
	r.logger.Info("creating folder",
		slog.String("name", name),
		slog.String("parent_id", parentID),
	)

	reqBody := createFolderRequest{
		MimeType: folderMimeType,
		Name:     name,
		Parents:  []string{parentID},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("drive: marshaling create folder request: %w", err)
	}

	resp, err := r.client.Do(ctx, http.MethodPost, "/files", bodyBytes)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var cfr createFolderResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&cfr); decErr != nil {
		return "", fmt.Errorf("drive: decoding create folder response: %w", decErr)
	}

	if cfr.ID == "" {
		return "", fmt.Errorf("drive: create folder response for %q missing id", name)
	}

	return cfr.ID, nil
}

// escapeQueryValue escapes a value for interpolation into a q filter
// expression: backslashes and single quotes are backslash-escaped.
func escapeQueryValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)

	return strings.ReplaceAll(v, `'`, `\'`)
}
