package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivestash/drivestash/internal/drive"
)

func TestSelectLatestReturnsTrailingWindow(t *testing.T) {
	nodes := []drive.Node{
		{ID: "1", Name: "u.full.bkp"},
		{ID: "2", Name: "v.inc.bkp"},
		{ID: "3", Name: "x.full.bkp"},
		{ID: "4", Name: "y.inc.bkp"},
		{ID: "5", Name: "z.inc.bkp"},
	}

	set, err := SelectLatest(nodes)
	require.NoError(t, err)

	// Exactly the latest full backup plus all subsequent incrementals;
	// everything before x.full.bkp is excluded.
	require.Len(t, set, 3)
	assert.Equal(t, "x.full.bkp", set[0].Name)
	assert.Equal(t, "y.inc.bkp", set[1].Name)
	assert.Equal(t, "z.inc.bkp", set[2].Name)
}

func TestSelectLatestFullOnlyTail(t *testing.T) {
	nodes := []drive.Node{
		{ID: "1", Name: "a.inc.bkp"},
		{ID: "2", Name: "b.full.bkp"},
	}

	set, err := SelectLatest(nodes)
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Equal(t, "b.full.bkp", set[0].Name)
}

func TestSelectLatestWithoutMarkerFails(t *testing.T) {
	nodes := []drive.Node{
		{ID: "1", Name: "a.inc.bkp"},
		{ID: "2", Name: "b.inc.bkp"},
	}

	_, err := SelectLatest(nodes)
	assert.ErrorIs(t, err, ErrNoFullBackup)
}

func TestSelectLatestEmptyListingFails(t *testing.T) {
	_, err := SelectLatest(nil)
	assert.ErrorIs(t, err, ErrNoFullBackup)
}

// fakeDownloader writes canned content per file id.
type fakeDownloader struct {
	content map[string]string
	failID  string
}

func (f *fakeDownloader) Download(_ context.Context, fileID string, w io.Writer) (int64, error) {
	if fileID == f.failID {
		return 0, errors.New("download refused")
	}

	body, ok := f.content[fileID]
	if !ok {
		return 0, fmt.Errorf("unknown id %s", fileID)
	}

	n, err := io.WriteString(w, body)

	return int64(n), err
}

func TestFetchWritesPairedNamesIntoStaging(t *testing.T) {
	dl := &fakeDownloader{content: map[string]string{
		"id-1": "full payload",
		"id-2": "inc payload",
	}}

	fetcher := NewFetcher(dl, testLogger())

	staging, err := fetcher.Fetch(context.Background(), []string{"id-1", "id-2"}, []string{"x.full.bkp", "y.inc.bkp"})
	require.NoError(t, err)

	t.Cleanup(func() { _ = os.RemoveAll(staging) })

	full, err := os.ReadFile(filepath.Join(staging, "x.full.bkp"))
	require.NoError(t, err)
	assert.Equal(t, "full payload", string(full))

	inc, err := os.ReadFile(filepath.Join(staging, "y.inc.bkp"))
	require.NoError(t, err)
	assert.Equal(t, "inc payload", string(inc))
}

func TestFetchRejectsMismatchedPairs(t *testing.T) {
	fetcher := NewFetcher(&fakeDownloader{}, testLogger())

	_, err := fetcher.Fetch(context.Background(), []string{"id-1"}, []string{"a", "b"})
	require.Error(t, err)
}

func TestFetchPropagatesDownloadFailure(t *testing.T) {
	dl := &fakeDownloader{
		content: map[string]string{"id-1": "ok"},
		failID:  "id-2",
	}

	fetcher := NewFetcher(dl, testLogger())

	staging, err := fetcher.Fetch(context.Background(), []string{"id-1", "id-2"}, []string{"a.full.bkp", "b.inc.bkp"})
	require.Error(t, err)

	if staging != "" {
		t.Cleanup(func() { _ = os.RemoveAll(staging) })
	}
}

func TestListByNameFilter(t *testing.T) {
	store := &fakeStore{nodes: []drive.Node{{ID: "1", Name: "a"}}}

	nodes, err := ListByName(context.Background(), store, "host-folder")
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	require.Len(t, store.filters, 1)
	assert.Equal(t, "'host-folder' in parents and trashed = false", store.filters[0])
}
