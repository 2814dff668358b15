package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUploader records uploads and optionally fails selected base names.
type fakeUploader struct {
	mu       sync.Mutex
	uploads  map[string]string // local path -> folder id
	failName string
}

func (f *fakeUploader) Upload(_ context.Context, localPath, folderID string) error {
	if f.failName != "" && filepath.Base(localPath) == f.failName {
		return errors.New("upload refused")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.uploads == nil {
		f.uploads = map[string]string{}
	}

	f.uploads[localPath] = folderID

	return nil
}

// fakeResolver derives folder ids from the path segments themselves so
// assertions can tie files to folders without remote state.
type fakeResolver struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeResolver) EnsurePath(_ context.Context, segments []string, rootID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.Join(segments, "/")
	f.calls = append(f.calls, key)

	if key == "" {
		return rootID, nil
	}

	return rootID + "/" + key, nil
}

// buildTree lays out a small local tree:
//
//	src/top.bin
//	src/photos/cat.jpg
//	src/photos/raw/img.dat
func buildTree(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	root := filepath.Join(base, "src")

	require.NoError(t, os.MkdirAll(filepath.Join(root, "photos", "raw"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.bin"), []byte("t"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "photos", "cat.jpg"), []byte("c"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "photos", "raw", "img.dat"), []byte("i"), 0o600))

	return root
}

func TestUploadTreeMirrorsDirectories(t *testing.T) {
	root := buildTree(t)
	up := &fakeUploader{}
	res := &fakeResolver{}

	uploader := NewTreeUploader(up, res, 2, testLogger())

	stats, err := uploader.UploadTree(context.Background(), root, "dest")
	require.NoError(t, err)
	assert.Equal(t, UploadStats{Files: 3, Bytes: 3}, stats)

	// Paths are relative to the root's parent, so "src" itself is the
	// first remote segment.
	assert.Equal(t, "dest/src", up.uploads[filepath.Join(root, "top.bin")])
	assert.Equal(t, "dest/src/photos", up.uploads[filepath.Join(root, "photos", "cat.jpg")])
	assert.Equal(t, "dest/src/photos/raw", up.uploads[filepath.Join(root, "photos", "raw", "img.dat")])
}

func TestUploadTreeResolvesFoldersBeforeDispatch(t *testing.T) {
	root := buildTree(t)
	up := &fakeUploader{}
	res := &fakeResolver{}

	uploader := NewTreeUploader(up, res, 1, testLogger())

	_, err := uploader.UploadTree(context.Background(), root, "dest")
	require.NoError(t, err)

	// WalkDir visits lexically: photos/ before top.bin, raw/ within photos.
	assert.Equal(t, []string{"src/photos", "src/photos/raw", "src"}, res.calls)
}

func TestUploadTreeSingleFileBypassesWalk(t *testing.T) {
	base := t.TempDir()
	file := filepath.Join(base, "single.bkp")
	require.NoError(t, os.WriteFile(file, []byte("s"), 0o600))

	up := &fakeUploader{}
	res := &fakeResolver{}

	uploader := NewTreeUploader(up, res, 2, testLogger())

	stats, err := uploader.UploadTree(context.Background(), file, "dest")
	require.NoError(t, err)

	assert.Equal(t, UploadStats{Files: 1, Bytes: 1}, stats)
	assert.Equal(t, "dest", up.uploads[file])
	assert.Empty(t, res.calls, "single files resolve no folders")
}

func TestUploadTreeIsolatesPerFileFailures(t *testing.T) {
	root := buildTree(t)
	up := &fakeUploader{failName: "cat.jpg"}
	res := &fakeResolver{}

	uploader := NewTreeUploader(up, res, 2, testLogger())

	stats, err := uploader.UploadTree(context.Background(), root, "dest")
	require.Error(t, err)

	// The other two files still uploaded despite cat.jpg failing, and only
	// they count toward the stats.
	assert.Len(t, up.uploads, 2)
	assert.Equal(t, UploadStats{Files: 2, Bytes: 2}, stats)
	assert.Contains(t, err.Error(), "1 of 3 uploads failed")
}

func TestUploadTreeMissingRootFails(t *testing.T) {
	uploader := NewTreeUploader(&fakeUploader{}, &fakeResolver{}, 2, testLogger())

	_, err := uploader.UploadTree(context.Background(), filepath.Join(t.TempDir(), "absent"), "dest")
	require.Error(t, err)
}

func TestSplitSegments(t *testing.T) {
	assert.Nil(t, splitSegments("."))
	assert.Nil(t, splitSegments(""))
	assert.Equal(t, []string{"a"}, splitSegments("a"))
	assert.Equal(t, []string{"a", "b", "c"}, splitSegments(filepath.Join("a", "b", "c")))
}
